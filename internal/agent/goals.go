package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/pkg/types"
)

// MaxGoals caps how many objectives an agent pursues at once.
const MaxGoals = 3

// AbandonBelow is the priority floor for a seat at the cap. When the goal
// list is full, the weakest goal is abandoned to make room only if its
// priority has sunk below this line.
const AbandonBelow = 0.3

// Dice is the randomness a goal roll consumes. Streams from the world
// clock satisfy it.
type Dice interface {
	Float64() float64
	IntN(n int) int
}

// goalTemplate is one built-in objective: phrasing and target variants,
// which factions pursue it, and how urgently.
type goalTemplate struct {
	descriptions []string
	targets      []string
	factions     []string
	basePriority float64
}

// goalOrder fixes template iteration so weighted selection replays
// identically from a given dice stream.
var goalOrder = []types.GoalType{
	types.GoalTrade,
	types.GoalHunt,
	types.GoalProtect,
	types.GoalRevenge,
	types.GoalAcquire,
	types.GoalSocialize,
	types.GoalSurvive,
	types.GoalTerritory,
}

var goalTemplates = map[types.GoalType]goalTemplate{
	types.GoalTrade: {
		descriptions: []string{
			"Establish trade connection with {target}",
			"Negotiate better prices with {target}",
			"Find new customers for my goods",
		},
		targets:      []string{"the merchant guild", "northern traders", "a new supplier", "the docks"},
		factions:     []string{"traders", "citizens"},
		basePriority: 0.6,
	},
	types.GoalHunt: {
		descriptions: []string{
			"Track down {target}",
			"Bring {target} to justice",
			"Eliminate the threat of {target}",
		},
		targets:      []string{"the bandit leader", "a wanted criminal", "the outlaw", "smugglers"},
		factions:     []string{"guards"},
		basePriority: 0.8,
	},
	types.GoalProtect: {
		descriptions: []string{
			"Keep {target} safe from harm",
			"Guard {target} against threats",
			"Ensure the security of {target}",
		},
		targets:      []string{"the city gates", "the merchant quarter", "the citizens", "the trade route"},
		factions:     []string{"guards", "citizens"},
		basePriority: 0.7,
	},
	types.GoalRevenge: {
		descriptions: []string{
			"Get revenge on {target}",
			"Make {target} pay for what they did",
			"Settle the score with {target}",
		},
		targets:      []string{"those who wronged me", "the betrayer", "my enemy", "the one responsible"},
		factions:     []string{"outcasts", "citizens"},
		basePriority: 0.9,
	},
	types.GoalAcquire: {
		descriptions: []string{
			"Obtain {target}",
			"Secure {target} for myself",
			"Find a way to get {target}",
		},
		targets:      []string{"rare goods", "valuable information", "weapons", "resources"},
		factions:     []string{"traders", "outcasts"},
		basePriority: 0.5,
	},
	types.GoalSocialize: {
		descriptions: []string{
			"Build friendship with {target}",
			"Gain the trust of {target}",
			"Form an alliance with {target}",
		},
		targets:      []string{"influential people", "potential allies", "the guild master", "newcomers"},
		factions:     []string{"traders", "citizens"},
		basePriority: 0.4,
	},
	types.GoalSurvive: {
		descriptions: []string{
			"Find food and shelter",
			"Avoid {target}",
			"Stay alive another day",
		},
		targets:      []string{"the authorities", "my enemies", "starvation", "danger"},
		factions:     []string{"outcasts", "citizens"},
		basePriority: 0.95,
	},
	types.GoalTerritory: {
		descriptions: []string{
			"Expand control to {target}",
			"Defend {target} from rivals",
			"Reclaim {target} for our faction",
		},
		targets:      []string{"the northern district", "the market square", "the old quarter", "the docks"},
		factions:     []string{"guards", "outcasts"},
		basePriority: 0.75,
	},
}

// RollGoal drafts an objective suited to a faction. Candidates are the
// templates listing that faction, weighted by base priority; a faction no
// template claims falls back to staying alive. The final priority wobbles
// up to 0.1 around the template base. The caller seats the result with
// [Actor.AdoptGoal] or [Actor.SetGoal].
func RollGoal(d Dice, factionID string) types.Goal {
	var (
		cands []types.GoalType
		total float64
	)
	for _, gt := range goalOrder {
		if slices.Contains(goalTemplates[gt].factions, factionID) {
			cands = append(cands, gt)
			total += goalTemplates[gt].basePriority
		}
	}
	if len(cands) == 0 {
		cands, total = []types.GoalType{types.GoalSurvive}, goalTemplates[types.GoalSurvive].basePriority
	}

	pick := cands[0]
	r := d.Float64() * total
	var cum float64
	for _, gt := range cands {
		cum += goalTemplates[gt].basePriority
		if r <= cum {
			pick = gt
			break
		}
	}

	t := goalTemplates[pick]
	target := t.targets[d.IntN(len(t.targets))]
	desc := strings.ReplaceAll(t.descriptions[d.IntN(len(t.descriptions))], "{target}", target)
	return types.Goal{
		Type:        pick,
		Description: desc,
		Target:      target,
		Priority:    types.ClampUnit(t.basePriority + (d.Float64()*0.2 - 0.1)),
	}
}

// AdoptGoal seats a freshly rolled goal, respecting the active cap. At the
// cap the weakest goal is abandoned when its priority sits below
// [AbandonBelow]; otherwise the newcomer is turned away and the second
// return reports false.
func (a *Actor) AdoptGoal(ctx context.Context, g types.Goal) (types.Goal, bool, error) {
	if g.Description == "" {
		return types.Goal{}, false, fault.New(fault.InvalidArgument, "agent: goal description must not be empty")
	}
	if g.Type != "" && !g.Type.Valid() {
		return types.Goal{}, false, fault.New(fault.InvalidArgument, fmt.Sprintf("agent: unknown goal type %q", g.Type))
	}
	seated := false
	err := a.do(ctx, func(st *types.Agent) error {
		if len(st.Goals) >= MaxGoals {
			weakest := st.Goals[len(st.Goals)-1]
			if weakest.Priority >= AbandonBelow {
				return nil
			}
			st.Goals = st.Goals[:len(st.Goals)-1]
		}
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = a.rt.now()
		}
		g.Priority = types.ClampUnit(g.Priority)
		g.Progress = types.ClampUnit(g.Progress)
		st.Goals = append(st.Goals, g)
		sortGoals(st.Goals)
		seated = true
		return nil
	})
	if err != nil {
		return types.Goal{}, false, err
	}
	return g, seated, nil
}
