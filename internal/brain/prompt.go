package brain

import (
	"fmt"
	"strings"

	"github.com/solmae/animus/pkg/types"
)

// DefaultSetting frames the world for agents whose deployment does not
// override it.
const DefaultSetting = "a post-collapse frontier settlement where resources are scarce and trust is rare"

// PersonaPrompt renders the agent's standing system prompt: identity, the
// eight trait values, role context and speech hints. The cognition contract
// (output format, intent vocabulary) is appended downstream by the oracle,
// so this stays purely in-world.
//
// The builder is pure: no I/O, no side effects, safe for concurrent use.
func PersonaPrompt(agent *types.Agent, setting string) string {
	if setting == "" {
		setting = DefaultSetting
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a %s in %s.\n", agent.Name, agent.Role, setting)

	sb.WriteString("\nPERSONALITY TRAITS (0.0-1.0 scale):\n")
	for _, t := range types.AllTraits {
		fmt.Fprintf(&sb, "- %s: %.2f\n", traitLabel(t), agent.Personality.Get(t))
	}

	sb.WriteString("\nROLE & CONTEXT:\n")
	if agent.Location.Zone != "" {
		fmt.Fprintf(&sb, "You are stationed at %s.", agent.Location.Zone)
	} else {
		sb.WriteString("You wander without a fixed post.")
	}
	if agent.Backstory != "" {
		sb.WriteString(" " + strings.TrimSpace(agent.Backstory))
	}
	sb.WriteString("\n")

	if summary := agent.TraitSummary(); len(summary) > 0 {
		fmt.Fprintf(&sb, "\nYour defining qualities: %s.\n", strings.Join(summary, ", "))
	}
	if agent.DialogueStyle != "" {
		fmt.Fprintf(&sb, "\nSPEAKING STYLE: %s\n", agent.DialogueStyle)
	}

	return sb.String()
}

// SituationPrompt renders the per-exchange user prompt from the assembled
// context: who the player is to this agent, the agent's own state, what it
// remembers and has heard, and finally the action to respond to. Empty
// sections are omitted entirely rather than rendering as bare headers.
func SituationPrompt(ictx *InteractionContext, action string) string {
	var sb strings.Builder
	sb.WriteString("CURRENT SITUATION:\n")

	fmt.Fprintf(&sb, "Player %s (reputation with you: %+.2f)", ictx.PlayerName, ictx.Reputation)
	if ictx.Agent.Faction != "" {
		fmt.Fprintf(&sb, "; your faction's view of them: %+.2f", ictx.FactionStanding)
	}
	sb.WriteString(".")
	if len(ictx.Rumors) > 0 {
		fmt.Fprintf(&sb, " You've heard: %s", ictx.Rumors[0].Content)
	}
	sb.WriteString("\n")

	sb.WriteString("\nYOUR STATE:\n")
	fmt.Fprintf(&sb, "- Vitals: Hunger %.1f, Fatigue %.1f\n", ictx.Agent.Vitals.Hunger, ictx.Agent.Vitals.Fatigue)
	mood := ictx.Agent.Mood
	label := mood.Label
	if label == "" {
		label = "neutral"
	}
	fmt.Fprintf(&sb, "- Mood: %s (arousal %.2f, valence %.2f)\n", label, mood.Arousal, mood.Valence)

	if goals := formatGoals(ictx.Agent.Goals); goals != "" {
		sb.WriteString("\nYOUR GOALS:\n")
		sb.WriteString(goals)
	}

	if remembered := formatRemembered(ictx.Remembered); remembered != "" {
		sb.WriteString("\nYou remember these things about this player:\n")
		sb.WriteString(remembered)
		sb.WriteString("Reference these memories naturally when relevant.\n")
	}

	if heard := formatHeard(ictx.Heard); heard != "" {
		sb.WriteString("\nYou've also heard about this player from others:\n")
		sb.WriteString(heard)
		sb.WriteString("Consider what you've heard, but form your own judgment.\n")
	}

	fmt.Fprintf(&sb, "\nPlayer's current action: %s\n", action)
	return sb.String()
}

// traitLabel renders a trait id as prompt text ("risk_tolerance" reads
// "Risk tolerance").
func traitLabel(t types.Trait) string {
	s := strings.ReplaceAll(string(t), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatGoals renders active goals strongest first, capped at three.
func formatGoals(goals []types.Goal) string {
	if len(goals) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, g := range goals {
		if i == 3 {
			break
		}
		fmt.Fprintf(&sb, "- [priority %.2f] %s\n", g.Priority, g.Description)
	}
	return sb.String()
}

// formatRemembered renders the agent's own memories about the player with a
// clarity hint from their current strength and a note when the memory has
// come up before.
func formatRemembered(mems []types.Memory) string {
	if len(mems) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, m := range mems {
		fmt.Fprintf(&sb, "- [%s] (%s", m.Category, memoryClarity(m.Strength))
		if m.RefCount > 0 {
			fmt.Fprintf(&sb, ", recalled %d times", m.RefCount)
		}
		fmt.Fprintf(&sb, ") %q\n", m.Content)
	}
	return sb.String()
}

// formatHeard renders secondhand notes with the teller and a confidence
// qualifier derived from the surviving strength of the copy.
func formatHeard(mems []types.Memory) string {
	if len(mems) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, m := range mems {
		qualifier := "supposedly"
		if m.Strength > 0.5 {
			qualifier = "reliably"
		}
		fmt.Fprintf(&sb, "- %s %s told you: %q\n", m.Source, qualifier, m.Content)
	}
	return sb.String()
}

// memoryClarity maps recall strength onto how sharply the agent should
// speak about the memory.
func memoryClarity(strength float64) string {
	switch {
	case strength > 0.8:
		return "vividly"
	case strength > 0.5:
		return "clearly"
	default:
		return "vaguely"
	}
}
