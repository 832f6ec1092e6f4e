package relation

import (
	"context"
	"fmt"

	"github.com/solmae/animus/pkg/types"
)

const (
	// FactionShare is the fraction of an agent trust delta that carries
	// over to the agent's faction standing.
	FactionShare = 0.25

	// RippleFactor is how much of a faction standing change reflects onto
	// that faction's enemies, with opposite sign.
	RippleFactor = 0.5

	// EnemyThreshold is the faction relation score at or below which a
	// faction counts as an enemy for the reputation ripple.
	EnemyThreshold = -0.2
)

// PlayerEffect reports the reputation scores after one interaction commit.
type PlayerEffect struct {
	// AgentScore is the player's updated standing with the agent.
	AgentScore float64 `json:"agent_score"`

	// FactionScores maps faction id to the updated standing, covering the
	// agent's own faction and every rippled enemy.
	FactionScores map[string]float64 `json:"faction_scores,omitempty"`
}

// UpdateReputation applies delta to one standing, creating the record at
// zero on first contact. The result is clamped to [-1, 1] and returned.
func (e *Engine) UpdateReputation(ctx context.Context, playerID string, kind types.ReputationKind, targetID string, delta float64) (float64, error) {
	if playerID == "" || targetID == "" {
		return 0, fmt.Errorf("relation: update reputation: player and target ids required")
	}
	rep, err := e.store.GetReputation(ctx, playerID, kind, targetID)
	if err != nil {
		return 0, fmt.Errorf("relation: update reputation %s->%s: %w", playerID, targetID, err)
	}
	if rep == nil {
		rep = &types.Reputation{PlayerID: playerID, Kind: kind, TargetID: targetID}
	}
	rep.Score = types.ClampSigned(rep.Score + delta)
	rep.UpdatedAt = e.now()

	if err := e.store.UpsertReputation(ctx, *rep); err != nil {
		return 0, fmt.Errorf("relation: update reputation %s->%s: %w", playerID, targetID, err)
	}
	return rep.Score, nil
}

// ApplyPlayerDelta commits the reputation side of one player interaction:
// the agent standing moves by trustDelta, the agent's faction by
// FactionShare of it, and each enemy faction by -RippleFactor of the
// faction movement. enemies is the set of faction ids hostile to
// factionID, computed by the faction engine. A zero delta writes nothing.
func (e *Engine) ApplyPlayerDelta(ctx context.Context, playerID, agentID, factionID string, trustDelta float64, enemies []string) (*PlayerEffect, error) {
	effect := &PlayerEffect{}

	if trustDelta == 0 {
		rep, err := e.store.GetReputation(ctx, playerID, types.ReputationAgent, agentID)
		if err != nil {
			return nil, fmt.Errorf("relation: apply player delta: %w", err)
		}
		if rep != nil {
			effect.AgentScore = rep.Score
		}
		return effect, nil
	}

	score, err := e.UpdateReputation(ctx, playerID, types.ReputationAgent, agentID, trustDelta)
	if err != nil {
		return nil, err
	}
	effect.AgentScore = score

	if factionID == "" {
		return effect, nil
	}
	effect.FactionScores = make(map[string]float64, 1+len(enemies))

	factionDelta := FactionShare * trustDelta
	score, err = e.UpdateReputation(ctx, playerID, types.ReputationFaction, factionID, factionDelta)
	if err != nil {
		return nil, err
	}
	effect.FactionScores[factionID] = score

	rippleDelta := -RippleFactor * factionDelta
	for _, enemy := range enemies {
		if enemy == "" || enemy == factionID {
			continue
		}
		score, err = e.UpdateReputation(ctx, playerID, types.ReputationFaction, enemy, rippleDelta)
		if err != nil {
			return nil, err
		}
		effect.FactionScores[enemy] = score
	}

	e.log.Debug("player reputation updated",
		"player", playerID,
		"agent", agentID,
		"delta", trustDelta,
		"agent_score", effect.AgentScore,
	)
	return effect, nil
}

// ReputationOf returns one standing score, or 0 when no record exists.
func (e *Engine) ReputationOf(ctx context.Context, playerID string, kind types.ReputationKind, targetID string) (float64, error) {
	rep, err := e.store.GetReputation(ctx, playerID, kind, targetID)
	if err != nil {
		return 0, fmt.Errorf("relation: reputation %s->%s: %w", playerID, targetID, err)
	}
	if rep == nil {
		return 0, nil
	}
	return rep.Score, nil
}

// Reputations returns every standing the player holds.
func (e *Engine) Reputations(ctx context.Context, playerID string) ([]types.Reputation, error) {
	reps, err := e.store.ReputationsForPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("relation: reputations of %s: %w", playerID, err)
	}
	return reps, nil
}
