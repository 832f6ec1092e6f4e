// Package relation maintains the two standing graphs of the world: directed
// trust with symmetric familiarity between any two participants (agents or
// players), and player reputation with agents and factions including the
// enemy-faction ripple.
//
// Stored trust lives in [-1, 1]. Display surfaces use the [0, 1] standing
// produced by [Standing], where 0.5 is neutral; fresh pairs read 0.6 for
// same-faction observers and 0.3 otherwise.
package relation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solmae/animus/pkg/types"
)

const (
	// MaxTrustDelta bounds how far one interaction can move trust.
	MaxTrustDelta = 0.2

	// ParanoiaGain amplifies negative deltas felt by paranoid agents.
	ParanoiaGain = 1.5

	// EmpathyGain amplifies positive deltas felt by empathetic agents.
	EmpathyGain = 1.3

	// ModulationThreshold is the trait value above which paranoia or
	// empathy modulation applies.
	ModulationThreshold = 0.7

	// FamiliarityStep is the familiarity gained per recorded interaction.
	FamiliarityStep = 0.05

	// WitnessThreshold is the minimum |trust delta| that leaves a witness
	// memory behind.
	WitnessThreshold = 0.05

	// WitnessStrength is the strength of witness social memories.
	WitnessStrength = 0.7

	// SameFactionStanding and StrangerStanding are the display standings
	// of a pair that has never interacted.
	SameFactionStanding = 0.6
	StrangerStanding    = 0.3
)

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	GetRelation(ctx context.Context, a, b string) (*types.Relation, error)
	UpsertRelation(ctx context.Context, r types.Relation) error
	RelationsOf(ctx context.Context, agentID string) ([]types.Relation, error)
	GetReputation(ctx context.Context, playerID string, kind types.ReputationKind, targetID string) (*types.Reputation, error)
	UpsertReputation(ctx context.Context, r types.Reputation) error
	ReputationsForPlayer(ctx context.Context, playerID string) ([]types.Reputation, error)
}

// Engine mutates the standing graphs. All methods are safe for concurrent
// use as long as the underlying store is.
type Engine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// Option configures an [Engine].
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithNow overrides the wall-clock source, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an [Engine] backed by store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "relation")
	return e
}

// ── pure helpers ──────────────────────────────────────────────────────────────

// ModulateTrustDelta applies the receiver's personality to a raw trust
// delta: paranoid agents feel negative deltas half again as hard,
// empathetic agents amplify positive ones. The result is clamped to
// [-MaxTrustDelta, MaxTrustDelta].
func ModulateTrustDelta(delta float64, p types.Personality) float64 {
	switch {
	case delta < 0 && p.Paranoia > ModulationThreshold:
		delta *= ParanoiaGain
	case delta > 0 && p.Empathy > ModulationThreshold:
		delta *= EmpathyGain
	}
	if delta > MaxTrustDelta {
		return MaxTrustDelta
	}
	if delta < -MaxTrustDelta {
		return -MaxTrustDelta
	}
	return delta
}

// Standing blends directed trust in [-1, 1] with the pair's familiarity
// into the [0, 1] display scale. Trust shows through in proportion to how
// well the pair knows each other, so strangers read nearer neutral; 0.5
// always means neutral.
func Standing(trust, familiarity float64) float64 {
	return types.ClampUnit(0.5 + 0.5*trust*(0.5+0.5*types.ClampUnit(familiarity)))
}

// DefaultStanding is the display standing of a pair with no recorded
// relation.
func DefaultStanding(sameFaction bool) float64 {
	if sameFaction {
		return SameFactionStanding
	}
	return StrangerStanding
}

// WitnessNote formats the social memory a bystander stores after watching
// an interaction. standing is the witness's [0, 1] standing toward the
// actor.
func WitnessNote(actorName string, standing float64, action string) string {
	return fmt.Sprintf("%s (trust: %.2f): %s", actorName, standing, action)
}

// TrustShiftNote formats the social memory an agent stores about its own
// trust moving, recorded when |delta| exceeds [WitnessThreshold].
func TrustShiftNote(otherName string, delta, newStanding float64) string {
	return fmt.Sprintf("Trust towards %s changed by %+.2f to %.2f", otherName, delta, newStanding)
}

// ── relation graph ────────────────────────────────────────────────────────────

// Trust returns from's trust toward to and the pair's familiarity. Pairs
// that never interacted report (0, 0).
func (e *Engine) Trust(ctx context.Context, from, to string) (trust, familiarity float64, err error) {
	r, err := e.store.GetRelation(ctx, from, to)
	if err != nil {
		return 0, 0, fmt.Errorf("relation: trust %s->%s: %w", from, to, err)
	}
	if r == nil {
		return 0, 0, nil
	}
	return r.TrustOf(from), r.Familiarity, nil
}

// StandingOf returns the display standing from one participant toward
// another, falling back to the fresh-pair default when they have never
// interacted.
func (e *Engine) StandingOf(ctx context.Context, from, to string, sameFaction bool) (float64, error) {
	r, err := e.store.GetRelation(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("relation: standing %s->%s: %w", from, to, err)
	}
	if r == nil {
		return DefaultStanding(sameFaction), nil
	}
	return Standing(r.TrustOf(from), r.Familiarity), nil
}

// RecordInteraction moves from's trust toward to by trustDelta (already
// modulated and bounded by the caller) and grows familiarity one step.
// The relation row is created on first contact. Returns the updated
// relation.
func (e *Engine) RecordInteraction(ctx context.Context, from, to string, trustDelta float64) (*types.Relation, error) {
	if from == "" || to == "" || from == to {
		return nil, fmt.Errorf("relation: record interaction: need two distinct participants")
	}
	r, err := e.store.GetRelation(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("relation: record interaction %s->%s: %w", from, to, err)
	}
	if r == nil {
		a, b := types.RelationKey(from, to)
		r = &types.Relation{A: a, B: b}
	}
	r.SetTrust(from, r.TrustOf(from)+trustDelta)
	r.Familiarity = types.ClampUnit(r.Familiarity + FamiliarityStep)
	r.LastInteractionAt = e.now()

	if err := e.store.UpsertRelation(ctx, *r); err != nil {
		return nil, fmt.Errorf("relation: record interaction %s->%s: %w", from, to, err)
	}
	return r, nil
}

// Circle returns every relation the participant appears in.
func (e *Engine) Circle(ctx context.Context, id string) ([]types.Relation, error) {
	rels, err := e.store.RelationsOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("relation: circle of %s: %w", id, err)
	}
	return rels, nil
}
