// Package agent runs the live state of every simulated NPC.
//
// The two primary abstractions are:
//
//   - [Actor] — owns one agent's mutable state. A single goroutine started at
//     spawn time executes every mutation; other components submit work through
//     the actor's mailbox and read from a published immutable snapshot.
//   - [Runtime] — the registry of running actors. It spawns, wakes, and stops
//     actors and pushes every published snapshot into persistence.
//
// This package lives under internal/ because it encapsulates application-private
// simulation state and is not intended to be imported by external code.
package agent

import (
	"context"
	"time"

	"github.com/solmae/animus/pkg/types"
)

// Store is the persistence surface the runtime needs. *store.Store satisfies it.
type Store interface {
	// GetAgent returns the persisted agent, or (nil, nil) when the id is unknown.
	GetAgent(ctx context.Context, id string) (*types.Agent, error)

	// PutAgent inserts or replaces the persisted agent state.
	PutAgent(ctx context.Context, a types.Agent) error
}

// Default vitals for agents spawned without any.
const (
	DefaultHunger  = 0.2
	DefaultFatigue = 0.3
)

const (
	// EpisodicActionStrength is the initial strength of the episodic memory
	// recorded for each player action.
	EpisodicActionStrength = 0.6

	// DriftUrgency is the urgency a cognition frame must exceed before an
	// action is allowed to nudge personality traits.
	DriftUrgency = 0.7

	// ThreatParanoiaDrift is the paranoia delta applied after a high-urgency
	// threatening action.
	ThreatParanoiaDrift = 0.1

	// AssistEmpathyDrift is the empathy delta applied after a high-urgency
	// helpful action.
	AssistEmpathyDrift = 0.05

	// ThreatArousalBoost raises arousal (and lowers valence) when an action
	// reads as threatening.
	ThreatArousalBoost = 0.3

	// GratitudeValenceBoost raises valence when an action reads as helpful;
	// arousal settles by half the boost.
	GratitudeValenceBoost = 0.2

	// RestRecoveryPerHour is the fatigue cleared per hour of rest. Recovery
	// runs at twice the rate exhaustion accrues, so a fully exhausted agent
	// needs three hours of sleep.
	RestRecoveryPerHour = 1.0 / 3

	// MealRecovery is the hunger cleared by one meal.
	MealRecovery = 0.6
)

// Mood labels set by keyword reactions.
const (
	MoodThreatened = "threatened"
	MoodGrateful   = "grateful"
)

// TraitDelta is one entry in an agent's trait ledger. Every call to
// [Actor.ApplyTraitDelta] records exactly one entry; From and To are the
// soft-clamped values around the write.
type TraitDelta struct {
	Trait  types.Trait `json:"trait"`
	From   float64     `json:"from"`
	To     float64     `json:"to"`
	Delta  float64     `json:"delta"`
	Reason string      `json:"reason"`
	At     time.Time   `json:"at"`
}

// ActionResult reports what a player action did to the agent.
type ActionResult struct {
	// Mood is the agent's mood after reaction and settling.
	Mood types.Mood `json:"mood"`

	// Reaction is the keyword-triggered mood label ("threatened" or
	// "grateful"), or empty when the action matched neither word list.
	Reaction string `json:"reaction,omitempty"`

	// MemoryNote is the content for the episodic memory the caller should
	// record at [EpisodicActionStrength].
	MemoryNote string `json:"memory_note"`

	// Drift holds the trait ledger entries produced by urgency-driven
	// personality drift, if any.
	Drift []TraitDelta `json:"drift,omitempty"`
}
