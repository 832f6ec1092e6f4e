package brain

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

// rumorContextLimit caps how many rumors about the player feed the prompt.
const rumorContextLimit = 3

// InteractionContext is everything the engine knows about the player before
// a cognition pass. Every field degrades independently: a failed source
// leaves its field empty and the exchange proceeds on what the rest
// delivered.
type InteractionContext struct {
	// Agent is the read-only snapshot the exchange runs against.
	Agent *types.Agent

	// PlayerID and PlayerName identify the acting player. PlayerName falls
	// back to the id when no display name was supplied.
	PlayerID   string
	PlayerName string

	// Reputation is the player's standing with this agent in [-1, 1].
	Reputation float64

	// FactionStanding is the player's standing with the agent's faction.
	// Only meaningful when the agent belongs to one.
	FactionStanding float64

	// Rumors are what the agent has heard about the player, strongest first.
	Rumors []types.Rumor

	// Topics are the memorable themes detected in the action text.
	Topics []memory.Topic

	// Remembered are the agent's own memories about the player, ranked with
	// a boost for categories the current action touches.
	Remembered []types.Memory

	// Heard are secondhand notes other agents passed along about the player.
	Heard []types.Memory

	// AssemblyTime records how long the concurrent fetch took.
	AssemblyTime time.Duration
}

// assemble fans out the context fetches and collects whatever arrives.
// Sources that fail are logged and skipped rather than aborting the
// exchange; a player facing an agent with a cold store still gets a reply.
func (e *Engine) assemble(ctx context.Context, snap *types.Agent, req InteractRequest) *InteractionContext {
	start := e.now()

	ictx := &InteractionContext{
		Agent:      snap,
		PlayerID:   req.PlayerID,
		PlayerName: req.displayName(),
		Topics:     memory.ExtractTopics(req.Action),
	}

	eg, egCtx := errgroup.WithContext(ctx)

	// ── agent standing ──
	eg.Go(func() error {
		score, err := e.relations.ReputationOf(egCtx, req.PlayerID, types.ReputationAgent, snap.ID)
		if err != nil {
			e.log.Warn("context: reputation unavailable",
				"agent", snap.ID, "player", req.PlayerID, "error", err)
			return nil
		}
		ictx.Reputation = score
		return nil
	})

	// ── faction standing ──
	if snap.Faction != "" {
		eg.Go(func() error {
			score, err := e.relations.ReputationOf(egCtx, req.PlayerID, types.ReputationFaction, snap.Faction)
			if err != nil {
				e.log.Warn("context: faction standing unavailable",
					"faction", snap.Faction, "player", req.PlayerID, "error", err)
				return nil
			}
			ictx.FactionStanding = score
			return nil
		})
	}

	// ── rumors ──
	eg.Go(func() error {
		rumors, err := e.memory.KnownRumors(egCtx, snap.ID, req.PlayerID, rumorContextLimit)
		if err != nil {
			e.log.Warn("context: rumors unavailable",
				"agent", snap.ID, "player", req.PlayerID, "error", err)
			return nil
		}
		ictx.Rumors = rumors
		return nil
	})

	// ── memories about the player ──
	eg.Go(func() error {
		opts := []memory.RetrieveOpt{memory.AboutSubject(req.PlayerID)}
		if cats := memory.TopicCategories(ictx.Topics); len(cats) > 0 {
			opts = append(opts, memory.WithCategories(cats...))
		}
		mems, err := e.memory.Retrieve(egCtx, snap.ID, opts...)
		if err != nil {
			e.log.Warn("context: memories unavailable",
				"agent", snap.ID, "player", req.PlayerID, "error", err)
			return nil
		}
		for _, m := range mems {
			if m.Source == "" {
				ictx.Remembered = append(ictx.Remembered, m)
			} else {
				ictx.Heard = append(ictx.Heard, m)
			}
		}
		return nil
	})

	// Sources never return errors; Wait is purely the join point.
	_ = eg.Wait()

	ictx.AssemblyTime = e.now().Sub(start)
	return ictx
}
