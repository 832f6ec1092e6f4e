package orchestrator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/solmae/animus/internal/oracle"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

// Salience decides who wants the floor. The score blends how well the
// participant knows the player, how much the message matters to them, and
// how jumpy the room makes them, minus a penalty for having just spoken.
const (
	interestWeight = 0.6
	tensionWeight  = 0.8
	recencyPenalty = 0.5

	// addresseeBonus puts a directly addressed participant on top of any
	// unaddressed score.
	addresseeBonus = 1.5

	// recentRounds is how many rounds back a turn still counts as "just
	// spoke".
	recentRounds = 2

	// chimeThreshold is the minimum chime-in score for a secondary speaker;
	// maxSecondary caps how many join the primary.
	chimeThreshold = 0.35
	maxSecondary   = 2
)

// roundInput is the group snapshot one planning pass runs on.
type roundInput struct {
	groupID    string
	playerID   string
	playerName string
	location   string
	topic      string
	tension    float64
	round      int
	members    []memberSnap
	history    []Message
}

// memberSnap is one seat frozen at round start: identity and speaking
// history from the group, affect and traits from the agent runtime.
type memberSnap struct {
	id         string
	name       string
	role       string
	lastRound  int
	statements int
	silentFor  time.Duration
	spoke      bool

	mood   string
	traits string

	paranoia   float64
	curiosity  float64
	empathy    float64
	aggression float64
}

// speakerPick is one participant chosen for the round's speaker slate.
type speakerPick struct {
	id        string
	name      string
	salience  float64
	chime     float64
	addressed bool
}

// rankSpeakers scores every seat and returns the ordered slate the planner
// writes turns for, plus the id of the directly addressed participant when
// one was detected. The slate is the salience leader followed by up to
// [maxSecondary] seats willing to chime in.
func (m *Manager) rankSpeakers(ctx context.Context, ri *roundInput, text, target string) ([]speakerPick, string) {
	if len(ri.members) == 0 {
		return nil, ""
	}

	addressee := m.detectAddressee(text, target, ri.members)
	pull := topicPull(text)

	picks := make([]speakerPick, 0, len(ri.members))
	for _, ms := range ri.members {
		var familiarity float64
		if m.relations != nil {
			if _, fam, err := m.relations.Trust(ctx, ms.id, ri.playerID); err == nil {
				familiarity = fam
			} else {
				m.log.Warn("salience: familiarity unavailable",
					"group", ri.groupID, "agent", ms.id, "error", err)
			}
		}

		interest := (ms.curiosity + ms.empathy) / 2 * pull
		score := familiarity + interestWeight*interest + tensionWeight*ri.tension*ms.paranoia
		if ms.spoke && ri.round-ms.lastRound <= recentRounds {
			score -= recencyPenalty
		}

		p := speakerPick{
			id:       ms.id,
			name:     ms.name,
			salience: score,
			chime:    (ms.curiosity+ms.empathy)/4 + ms.aggression*0.2,
		}
		if ms.id == addressee {
			p.salience += addresseeBonus
			p.addressed = true
		}
		picks = append(picks, p)
	}

	// Salience first; ties go to whoever has been silent longest, then by
	// id so replays order identically.
	silent := make(map[string]time.Duration, len(ri.members))
	for _, ms := range ri.members {
		silent[ms.id] = ms.silentFor
	}
	sort.Slice(picks, func(i, j int) bool {
		if picks[i].salience != picks[j].salience {
			return picks[i].salience > picks[j].salience
		}
		if silent[picks[i].id] != silent[picks[j].id] {
			return silent[picks[i].id] > silent[picks[j].id]
		}
		return picks[i].id < picks[j].id
	})

	slate := make([]speakerPick, 0, 1+maxSecondary)
	slate = append(slate, picks[0])
	for _, p := range picks[1:] {
		if len(slate) == 1+maxSecondary {
			break
		}
		if p.chime >= chimeThreshold {
			slate = append(slate, p)
		}
	}
	return slate, addressee
}

// detectAddressee resolves who the player is talking to: an explicit target
// (seat id or name) when given, otherwise a participant name heard in the
// message itself.
func (m *Manager) detectAddressee(text, target string, members []memberSnap) string {
	names := make([]string, len(members))
	byName := make(map[string]string, len(members))
	for i, ms := range members {
		names[i] = ms.name
		byName[strings.ToLower(ms.name)] = ms.id
	}

	if target != "" {
		for _, ms := range members {
			if ms.id == target {
				return ms.id
			}
		}
		if id, ok := byName[strings.ToLower(target)]; ok {
			return id
		}
		if name, _, ok := m.matcher.Match(target, names); ok {
			return byName[strings.ToLower(name)]
		}
		m.log.Debug("addressed target not in group", "target", target)
		return ""
	}

	if name, _, ok := m.matcher.MatchInText(text, names); ok {
		return byName[strings.ToLower(name)]
	}
	return ""
}

// plan asks the oracle for the ordered turns. A failed planning pass
// returns the deterministic fallback: the slate leader answers the player
// directly with a placeholder line.
func (m *Manager) plan(ctx context.Context, ri *roundInput, text string, slate []speakerPick, addressee string) ([]types.GroupUtterance, bool) {
	turns, err := m.planner.Orchestrate(ctx, oracle.OrchestrateRequest{
		GroupID: ri.groupID,
		System:  groupSystemPrompt(m.setting, ri),
		Prompt:  groupRoundPrompt(ri, text, slate, addressee),
	})
	if err != nil {
		m.log.Info("planning degraded", "group", ri.groupID, "error", err)
		return fallbackPlan(slate, ri.playerID), true
	}
	return turns, false
}

// fallbackPlan is the degraded round: the slate leader replies directly.
func fallbackPlan(slate []speakerPick, playerID string) []types.GroupUtterance {
	return []types.GroupUtterance{{
		Speaker:     slate[0].id,
		Type:        types.ResponseDirectReply,
		AddressedTo: playerID,
	}}
}

// validateTurns filters a model plan against the roster: seats only, one
// turn per speaker, silent entries removed. Speakers and addressees given
// as display names resolve to ids.
func validateTurns(turns []types.GroupUtterance, members []memberSnap, playerID string) []types.GroupUtterance {
	idSet := make(map[string]struct{}, len(members))
	byName := make(map[string]string, len(members))
	for _, ms := range members {
		idSet[ms.id] = struct{}{}
		byName[strings.ToLower(ms.name)] = ms.id
	}
	resolve := func(ref string) string {
		if _, ok := idSet[ref]; ok {
			return ref
		}
		if id, ok := byName[strings.ToLower(ref)]; ok {
			return id
		}
		return ""
	}

	seen := make(map[string]struct{}, len(turns))
	kept := make([]types.GroupUtterance, 0, len(turns))
	for _, t := range turns {
		if t.Type == types.ResponseSilent {
			continue
		}
		id := resolve(t.Speaker)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t.Speaker = id
		if t.AddressedTo != "" && t.AddressedTo != playerID {
			if aid := resolve(t.AddressedTo); aid != "" && aid != id {
				t.AddressedTo = aid
			} else {
				t.AddressedTo = ""
			}
		}
		kept = append(kept, t)
	}
	return kept
}

// strongestTopic names the heaviest theme in the player's message, or empty
// when nothing memorable was said.
func strongestTopic(text string) string {
	var (
		best   string
		weight float64
	)
	for _, t := range memory.ExtractTopics(text) {
		if t.Weight > weight {
			best, weight = string(t.Category), t.Weight
		}
	}
	return best
}

// topicPull is how hard the message itself pulls attention: the strongest
// extracted topic weight, floored at 0.5 so small talk still draws some.
func topicPull(text string) float64 {
	pull := 0.5
	for _, t := range memory.ExtractTopics(text) {
		if t.Weight > pull {
			pull = t.Weight
		}
	}
	return pull
}
