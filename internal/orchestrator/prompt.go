package orchestrator

import (
	"fmt"
	"strings"
)

// historyLineCap trims quoted transcript lines in the planning prompt.
const historyLineCap = 100

// groupSystemPrompt renders the planner's standing block: the setting and
// the full roster with personality capsules and speaking history. The turn
// format contract is appended downstream by the oracle, so this stays
// purely in-world.
func groupSystemPrompt(setting string, ri *roundInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are orchestrating a group conversation among the residents of %s.\n", setting)

	sb.WriteString("\nPARTICIPANTS:\n")
	for _, ms := range ri.members {
		fmt.Fprintf(&sb, "- %s: %s, a %s.", ms.id, ms.name, ms.role)
		if ms.traits != "" {
			fmt.Fprintf(&sb, " Traits: %s.", ms.traits)
		}
		fmt.Fprintf(&sb, " Mood: %s.", ms.mood)
		if ms.spoke {
			fmt.Fprintf(&sb, " Spoke %d times, last %.0fs ago.\n", ms.statements, ms.silentFor.Seconds())
		} else {
			sb.WriteString(" Has not spoken yet.\n")
		}
	}

	sb.WriteString("\nWrite the next turns of the conversation. Stay in character for every\n")
	sb.WriteString("speaker and let them react to each other, not only to the player.\n")
	return sb.String()
}

// groupRoundPrompt renders the per-round block: shared state, the recent
// lines, the player's message and the ranked speaker slate.
func groupRoundPrompt(ri *roundInput, text string, slate []speakerPick, addressee string) string {
	var sb strings.Builder
	if ri.location != "" {
		fmt.Fprintf(&sb, "GROUP CONVERSATION at %s.\n", ri.location)
	} else {
		sb.WriteString("GROUP CONVERSATION.\n")
	}
	fmt.Fprintf(&sb, "Topic: %s. Tension: %s.\n", ri.topic, tensionLabel(ri.tension))

	if len(ri.history) > 0 {
		sb.WriteString("\nRECENT LINES:\n")
		for _, msg := range ri.history {
			fmt.Fprintf(&sb, "- %s: %q\n", msg.SpeakerName, trimLine(msg.Text, historyLineCap))
		}
	}

	fmt.Fprintf(&sb, "\nPlayer (%s) says: %q\n", ri.playerName, text)
	if addressee != "" {
		for _, ms := range ri.members {
			if ms.id == addressee {
				fmt.Fprintf(&sb, "The message is addressed to %s (%s).\n", ms.name, ms.id)
				break
			}
		}
	}

	fmt.Fprintf(&sb, "\nWrite turns for up to %d of these participants, most engaged first:\n", len(slate))
	for i, p := range slate {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, p.id, p.name)
	}
	return sb.String()
}

// tensionLabel buckets the tension scalar for the prompt.
func tensionLabel(t float64) string {
	switch {
	case t > 0.6:
		return "high"
	case t > 0.3:
		return "moderate"
	default:
		return "calm"
	}
}

// trimLine caps a quoted line at n runes.
func trimLine(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
