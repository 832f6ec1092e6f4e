package types

import "time"

// MemoryCategory classifies what a memory is about. The category determines
// the default emotional weight, which in turn slows decay: heavily weighted
// memories (secrets, crimes, family) persist far longer than trivia.
type MemoryCategory string

const (
	MemoryFamily     MemoryCategory = "family"
	MemoryGoal       MemoryCategory = "goal"
	MemoryFear       MemoryCategory = "fear"
	MemoryEvent      MemoryCategory = "event"
	MemorySecret     MemoryCategory = "secret"
	MemoryPreference MemoryCategory = "preference"
	MemoryOrigin     MemoryCategory = "origin"
	MemoryProfession MemoryCategory = "profession"
	MemoryCrime      MemoryCategory = "crime"
)

// AllMemoryCategories lists every category in a stable order.
var AllMemoryCategories = []MemoryCategory{
	MemoryFamily,
	MemoryGoal,
	MemoryFear,
	MemoryEvent,
	MemorySecret,
	MemoryPreference,
	MemoryOrigin,
	MemoryProfession,
	MemoryCrime,
}

// Valid reports whether c is a known category.
func (c MemoryCategory) Valid() bool {
	switch c {
	case MemoryFamily, MemoryGoal, MemoryFear, MemoryEvent, MemorySecret,
		MemoryPreference, MemoryOrigin, MemoryProfession, MemoryCrime:
		return true
	}
	return false
}

// EmotionalWeight returns the base weight for memories of this category.
// Unknown categories fall back to the event weight.
func (c MemoryCategory) EmotionalWeight() float64 {
	switch c {
	case MemoryFamily:
		return 0.9
	case MemoryGoal:
		return 0.7
	case MemoryFear:
		return 0.8
	case MemoryEvent:
		return 0.75
	case MemorySecret:
		return 0.95
	case MemoryPreference:
		return 0.5
	case MemoryOrigin:
		return 0.6
	case MemoryProfession:
		return 0.5
	case MemoryCrime:
		return 0.9
	}
	return 0.75
}

// Memory is one remembered fact held by an agent. Strength decays with
// simulated time and recovers on reinforcement; memories below the retrieval
// floor (0.05) are invisible to recall and are purged once below 0.01.
type Memory struct {
	// ID is the unique identifier of this memory row.
	ID string `json:"id" db:"id"`

	// Owner is the agent holding the memory.
	Owner string `json:"owner" db:"owner"`

	// Subject is who or what the memory is about: a player id, another
	// agent's id, or a free-form topic key.
	Subject string `json:"subject" db:"subject"`

	// Category classifies the memory and fixes its base emotional weight.
	Category MemoryCategory `json:"category" db:"category"`

	// Content is the remembered text.
	Content string `json:"content" db:"content"`

	// Strength is the current recall strength in [0, 1].
	Strength float64 `json:"strength" db:"strength"`

	// EmotionalWeight in [0, 1] slows decay; 1.0 never decays.
	EmotionalWeight float64 `json:"emotional_weight" db:"emotional_weight"`

	// Source is the original owner when this memory arrived secondhand;
	// empty for firsthand memories. Provenance survives re-sharing.
	Source string `json:"source,omitempty" db:"source"`

	// SourceMemoryID links a secondhand memory to the memory it was shared
	// from, so the same fact is never delivered to the same agent twice.
	SourceMemoryID string `json:"source_memory_id,omitempty" db:"source_memory_id"`

	// CreatedAt is the wall-clock creation time.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LastReferencedAt is updated on every reinforcement.
	LastReferencedAt time.Time `json:"last_referenced_at" db:"last_referenced_at"`

	// RefCount counts reinforcements since creation.
	RefCount int `json:"ref_count" db:"ref_count"`
}

// Rumor is a claim circulating between agents. Unlike a memory it has no
// single owner: it tracks which agents have already heard it so gossip never
// delivers the same rumor to the same agent twice.
type Rumor struct {
	ID        string    `json:"id" db:"id"`
	About     string    `json:"about" db:"about"`
	Content   string    `json:"content" db:"content"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	Strength  float64   `json:"strength" db:"strength"`
	Spread    []string  `json:"spread"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Heard reports whether the given agent is already in the spread set.
func (r *Rumor) Heard(agentID string) bool {
	for _, id := range r.Spread {
		if id == agentID {
			return true
		}
	}
	return false
}

// MarkHeard adds the agent to the spread set if not already present.
func (r *Rumor) MarkHeard(agentID string) {
	if !r.Heard(agentID) {
		r.Spread = append(r.Spread, agentID)
	}
}
