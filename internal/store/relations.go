package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solmae/animus/internal/relation"
	"github.com/solmae/animus/pkg/types"
)

// Store satisfies the relation engine's persistence contract.
var _ relation.Store = (*Store)(nil)

// UpsertRelation inserts or replaces the pair record. The caller's id order
// does not matter; the canonical (low, high) key is applied here.
func (s *Store) UpsertRelation(ctx context.Context, r types.Relation) error {
	if r.A == "" || r.B == "" {
		return fmt.Errorf("store: upsert relation: both participant ids required")
	}
	if a, b := types.RelationKey(r.A, r.B); a != r.A {
		r.A, r.B = a, b
		r.TrustAB, r.TrustBA = r.TrustBA, r.TrustAB
	}

	const query = `
		INSERT INTO relations (a, b, trust_ab, trust_ba, familiarity, last_interaction_at)
		VALUES (:a, :b, :trust_ab, :trust_ba, :familiarity, :last_interaction_at)
		ON CONFLICT (a, b) DO UPDATE SET
			trust_ab = excluded.trust_ab,
			trust_ba = excluded.trust_ba,
			familiarity = excluded.familiarity,
			last_interaction_at = excluded.last_interaction_at`
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("store: upsert relation %s/%s: %w", r.A, r.B, err)
	}
	return nil
}

// GetRelation retrieves the pair record for two agents in either id order.
// Returns (nil, nil) when the pair has never interacted.
func (s *Store) GetRelation(ctx context.Context, a, b string) (*types.Relation, error) {
	lo, hi := types.RelationKey(a, b)
	var r types.Relation
	err := s.db.GetContext(ctx, &r, `
		SELECT a, b, trust_ab, trust_ba, familiarity, last_interaction_at
		FROM relations WHERE a = ? AND b = ?`, lo, hi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get relation %s/%s: %w", lo, hi, err)
	}
	return &r, nil
}

// RelationsOf returns every pair record the given agent participates in.
func (s *Store) RelationsOf(ctx context.Context, agentID string) ([]types.Relation, error) {
	var rels []types.Relation
	err := s.db.SelectContext(ctx, &rels, `
		SELECT a, b, trust_ab, trust_ba, familiarity, last_interaction_at
		FROM relations WHERE a = ? OR b = ? ORDER BY a, b`, agentID, agentID)
	if err != nil {
		return nil, fmt.Errorf("store: relations of %s: %w", agentID, err)
	}
	return rels, nil
}

// UpsertReputation inserts or replaces a player's standing with one agent
// or faction.
func (s *Store) UpsertReputation(ctx context.Context, r types.Reputation) error {
	if r.PlayerID == "" || r.TargetID == "" {
		return fmt.Errorf("store: upsert reputation: player and target ids required")
	}
	const query = `
		INSERT INTO reputations (player_id, kind, target_id, score, updated_at)
		VALUES (:player_id, :kind, :target_id, :score, :updated_at)
		ON CONFLICT (player_id, kind, target_id) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at`
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("store: upsert reputation %s→%s: %w", r.PlayerID, r.TargetID, err)
	}
	return nil
}

// GetReputation retrieves one standing record. Returns (nil, nil) when the
// player has no recorded standing with the target.
func (s *Store) GetReputation(ctx context.Context, playerID string, kind types.ReputationKind, targetID string) (*types.Reputation, error) {
	var r types.Reputation
	err := s.db.GetContext(ctx, &r, `
		SELECT player_id, kind, target_id, score, updated_at
		FROM reputations WHERE player_id = ? AND kind = ? AND target_id = ?`,
		playerID, kind, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get reputation %s→%s: %w", playerID, targetID, err)
	}
	return &r, nil
}

// ReputationsForPlayer returns every standing the player holds, agents and
// factions alike.
func (s *Store) ReputationsForPlayer(ctx context.Context, playerID string) ([]types.Reputation, error) {
	var reps []types.Reputation
	err := s.db.SelectContext(ctx, &reps, `
		SELECT player_id, kind, target_id, score, updated_at
		FROM reputations WHERE player_id = ? ORDER BY kind, target_id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("store: reputations for %s: %w", playerID, err)
	}
	return reps, nil
}
