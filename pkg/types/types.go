// Package types defines the shared domain model used across all animus packages.
//
// These types form the lingua franca between the store, the agent runtime, the
// cognition pipeline, and the world systems. They are intentionally minimal —
// each package defines its own working types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import (
	"math"
	"time"
)

// ── clamping helpers ──

// ClampUnit bounds v to [0, 1].
func ClampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ClampSigned bounds v to [-1, 1].
func ClampSigned(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// SoftClamp maps a raw trait value onto the open interval [0.05, 0.95] through
// a steep sigmoid centered at 0.5. Repeated positive deltas approach 0.95
// asymptotically; the bounds are never crossed regardless of input magnitude.
func SoftClamp(v float64) float64 {
	x := (v - 0.5) * 10
	sig := 1 / (1 + math.Exp(-x))
	return 0.05 + 0.9*sig
}

// ── personality ──

// Trait identifies one of the eight personality dimensions.
type Trait string

const (
	TraitCuriosity     Trait = "curiosity"
	TraitEmpathy       Trait = "empathy"
	TraitRiskTolerance Trait = "risk_tolerance"
	TraitAggression    Trait = "aggression"
	TraitDiscipline    Trait = "discipline"
	TraitRomanticism   Trait = "romanticism"
	TraitOpportunism   Trait = "opportunism"
	TraitParanoia      Trait = "paranoia"
)

// AllTraits lists every trait in a stable order. Iteration over personality
// values must use this slice so that derived randomness stays reproducible.
var AllTraits = []Trait{
	TraitCuriosity,
	TraitEmpathy,
	TraitRiskTolerance,
	TraitAggression,
	TraitDiscipline,
	TraitRomanticism,
	TraitOpportunism,
	TraitParanoia,
}

// Valid reports whether t is one of the eight known traits.
func (t Trait) Valid() bool {
	switch t {
	case TraitCuriosity, TraitEmpathy, TraitRiskTolerance, TraitAggression,
		TraitDiscipline, TraitRomanticism, TraitOpportunism, TraitParanoia:
		return true
	}
	return false
}

// Personality holds the eight trait values of an agent. Every persisted value
// lies in [0.05, 0.95]; use [Personality.Set] (or [SoftClamp] directly) for
// all writes.
type Personality struct {
	Curiosity     float64 `json:"curiosity" db:"curiosity"`
	Empathy       float64 `json:"empathy" db:"empathy"`
	RiskTolerance float64 `json:"risk_tolerance" db:"risk_tolerance"`
	Aggression    float64 `json:"aggression" db:"aggression"`
	Discipline    float64 `json:"discipline" db:"discipline"`
	Romanticism   float64 `json:"romanticism" db:"romanticism"`
	Opportunism   float64 `json:"opportunism" db:"opportunism"`
	Paranoia      float64 `json:"paranoia" db:"paranoia"`
}

// Get returns the value of trait t, or 0.5 for an unknown trait.
func (p Personality) Get(t Trait) float64 {
	switch t {
	case TraitCuriosity:
		return p.Curiosity
	case TraitEmpathy:
		return p.Empathy
	case TraitRiskTolerance:
		return p.RiskTolerance
	case TraitAggression:
		return p.Aggression
	case TraitDiscipline:
		return p.Discipline
	case TraitRomanticism:
		return p.Romanticism
	case TraitOpportunism:
		return p.Opportunism
	case TraitParanoia:
		return p.Paranoia
	}
	return 0.5
}

// Set writes trait t through the soft-clamp. Unknown traits are ignored.
func (p *Personality) Set(t Trait, v float64) {
	v = SoftClamp(v)
	switch t {
	case TraitCuriosity:
		p.Curiosity = v
	case TraitEmpathy:
		p.Empathy = v
	case TraitRiskTolerance:
		p.RiskTolerance = v
	case TraitAggression:
		p.Aggression = v
	case TraitDiscipline:
		p.Discipline = v
	case TraitRomanticism:
		p.Romanticism = v
	case TraitOpportunism:
		p.Opportunism = v
	case TraitParanoia:
		p.Paranoia = v
	}
}

// Clamped returns a copy with every trait passed through the soft-clamp.
// Used at init time so externally supplied personalities respect the bounds.
func (p Personality) Clamped() Personality {
	out := p
	for _, t := range AllTraits {
		out.Set(t, p.Get(t))
	}
	return out
}

// ── vitals and mood ──

// Vitals are the physical needs of an agent. Both values live in [0, 1] and
// rise monotonically with simulated time; only rest and eat actions lower them.
type Vitals struct {
	Hunger  float64 `json:"hunger" db:"hunger"`
	Fatigue float64 `json:"fatigue" db:"fatigue"`
}

// Mood is the affective state of an agent: a free-form label plus bounded
// arousal (calm → agitated) and valence (negative → positive) axes.
type Mood struct {
	Label   string  `json:"label" db:"mood_label"`
	Arousal float64 `json:"arousal" db:"mood_arousal"`
	Valence float64 `json:"valence" db:"mood_valence"`
}

// Clamped returns a copy with arousal and valence bounded to [0, 1].
func (m Mood) Clamped() Mood {
	m.Arousal = ClampUnit(m.Arousal)
	m.Valence = ClampUnit(m.Valence)
	return m
}

// Decayed returns the mood after one settling step: arousal fades toward 0
// and valence relaxes toward the 0.5 midpoint.
func (m Mood) Decayed() Mood {
	m.Arousal = ClampUnit(m.Arousal * 0.95)
	m.Valence = ClampUnit(0.5 + (m.Valence-0.5)*0.9)
	return m
}

// ── goals ──

// GoalType identifies one of the built-in goal templates.
type GoalType string

const (
	GoalTrade     GoalType = "trade"
	GoalHunt      GoalType = "hunt"
	GoalProtect   GoalType = "protect"
	GoalRevenge   GoalType = "revenge"
	GoalAcquire   GoalType = "acquire"
	GoalSocialize GoalType = "socialize"
	GoalSurvive   GoalType = "survive"
	GoalTerritory GoalType = "territory"
)

// Valid reports whether g is a known goal type.
func (g GoalType) Valid() bool {
	switch g {
	case GoalTrade, GoalHunt, GoalProtect, GoalRevenge,
		GoalAcquire, GoalSocialize, GoalSurvive, GoalTerritory:
		return true
	}
	return false
}

// Goal is a persistent objective an agent works toward across ticks.
type Goal struct {
	ID          string    `json:"id"`
	Type        GoalType  `json:"type"`
	Description string    `json:"description"`
	Target      string    `json:"target,omitempty"`
	Priority    float64   `json:"priority"`
	Progress    float64   `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
}

// ── placement ──

// Position is a point in a zone's local 3D coordinate space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the Euclidean distance between two positions.
func (p Position) DistanceTo(o Position) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Location places an agent in the world. Zone is a coordinate namespace;
// Position may be nil for agents that have not been placed spatially. Unplaced
// agents are excluded from proximity queries but remain fully functional.
type Location struct {
	Zone     string    `json:"zone"`
	Position *Position `json:"position,omitempty"`
}

// ── voice ──

// VoiceFingerprint holds the synthesis parameters derived from an agent's
// personality. Values are provider-neutral; the TTS layer maps them onto
// whatever controls the backend exposes.
type VoiceFingerprint struct {
	// Stability shifts delivery between erratic (negative) and steady.
	Stability float64 `json:"stability"`

	// Similarity controls how tightly output adheres to the base voice.
	Similarity float64 `json:"similarity"`

	// Style is the expressiveness exaggeration applied to the base voice.
	Style float64 `json:"style"`

	// Speed is the speaking-rate multiplier (1.0 = neutral).
	Speed float64 `json:"speed"`

	// Pitch is a short delivery description ("harsh, aggressive",
	// "warm, gentle", "normal"). Used in prompts and status payloads.
	Pitch string `json:"pitch"`
}

// ── agent ──

// Agent is the complete persisted state of one NPC. All mutation goes through
// the agent runtime's mailbox; everything else sees read-only snapshots.
type Agent struct {
	// ID is the stable, unique identifier of this agent. Never reused.
	ID string `json:"id" db:"id"`

	// Name is the in-world display name.
	Name string `json:"name" db:"name"`

	// Role describes the agent's occupation (guard, merchant, scholar, ...).
	Role string `json:"role" db:"role"`

	// Location places the agent in a zone, optionally at a 3D position.
	Location Location `json:"location"`

	// Personality holds the eight soft-clamped trait values.
	Personality Personality `json:"personality"`

	// Vitals are the agent's current physical needs.
	Vitals Vitals `json:"vitals"`

	// Mood is the agent's current affective state.
	Mood Mood `json:"mood"`

	// Faction is the id of the faction this agent belongs to; empty for none.
	Faction string `json:"faction,omitempty" db:"faction"`

	// Goals are the agent's active objectives, strongest priority first.
	Goals []Goal `json:"goals,omitempty"`

	// Voice is the synthesis fingerprint; nil until first derived.
	Voice *VoiceFingerprint `json:"voice,omitempty"`

	// Backstory seeds the agent's initial memories and prompt persona.
	Backstory string `json:"backstory,omitempty" db:"backstory"`

	// DialogueStyle is a short prompt hint for how the agent speaks.
	DialogueStyle string `json:"dialogue_style,omitempty" db:"dialogue_style"`

	// CreatedAt is when the agent was initialised.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LastActiveAt is the wall-clock time of the last player interaction.
	// Drives update-tier classification.
	LastActiveAt time.Time `json:"last_active_at" db:"last_active_at"`
}

// TraitSummary returns the traits that deviate notably from the 0.5 midpoint,
// for prompt assembly. High traits read "very curious", low ones "incurious".
func (a *Agent) TraitSummary() []string {
	var out []string
	for _, t := range AllTraits {
		v := a.Personality.Get(t)
		switch {
		case v >= 0.75:
			out = append(out, "very high "+string(t))
		case v >= 0.65:
			out = append(out, "high "+string(t))
		case v <= 0.25:
			out = append(out, "very low "+string(t))
		case v <= 0.35:
			out = append(out, "low "+string(t))
		}
	}
	return out
}
