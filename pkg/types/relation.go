package types

import "time"

// RelationKey orders two agent ids into the canonical (low, high) pair used
// to key relation records. Both orderings of the same pair map to one key.
func RelationKey(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Relation is the first-class record of how two agents stand toward each
// other. Trust is directed (A's view of B can differ from B's view of A);
// familiarity is shared. Agents themselves hold only ids; all pair state
// lives here, keyed by the ordered id pair.
type Relation struct {
	// A and B are the participant ids with A <= B.
	A string `json:"a" db:"a"`
	B string `json:"b" db:"b"`

	// TrustAB is A's trust toward B in [-1, 1]; TrustBA the reverse.
	TrustAB float64 `json:"trust_ab" db:"trust_ab"`
	TrustBA float64 `json:"trust_ba" db:"trust_ba"`

	// Familiarity in [0, 1] grows with shared interactions, symmetric.
	Familiarity float64 `json:"familiarity" db:"familiarity"`

	// LastInteractionAt is the wall-clock time of the last contact.
	LastInteractionAt time.Time `json:"last_interaction_at" db:"last_interaction_at"`
}

// TrustOf returns from's trust toward the other participant. Unknown ids
// return 0.
func (r *Relation) TrustOf(from string) float64 {
	switch from {
	case r.A:
		return r.TrustAB
	case r.B:
		return r.TrustBA
	}
	return 0
}

// SetTrust writes from's trust toward the other participant, clamped to
// [-1, 1]. Unknown ids are ignored.
func (r *Relation) SetTrust(from string, v float64) {
	v = ClampSigned(v)
	switch from {
	case r.A:
		r.TrustAB = v
	case r.B:
		r.TrustBA = v
	}
}

// RelationLabel is the display band for a blended standing value in [0, 1].
func RelationLabel(v float64) string {
	switch {
	case v < 0.2:
		return "hostile"
	case v < 0.4:
		return "unfriendly"
	case v < 0.6:
		return "neutral"
	case v < 0.8:
		return "friendly"
	default:
		return "allied"
	}
}

// ReputationKind distinguishes the two reputation target spaces.
type ReputationKind string

const (
	// ReputationAgent scores a player in the eyes of one agent.
	ReputationAgent ReputationKind = "agent"

	// ReputationFaction scores a player in the eyes of a whole faction.
	ReputationFaction ReputationKind = "faction"
)

// Reputation is a player's standing with one agent or faction, in [-1, 1].
// Faction reputation ripples: hurting a faction's standing nudges its enemies
// the opposite way.
type Reputation struct {
	PlayerID  string         `json:"player_id" db:"player_id"`
	Kind      ReputationKind `json:"kind" db:"kind"`
	TargetID  string         `json:"target_id" db:"target_id"`
	Score     float64        `json:"score" db:"score"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}
