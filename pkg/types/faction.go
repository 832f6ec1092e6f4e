package types

import "time"

// Faction is a political grouping of agents with shared values, pooled
// resources, and scored relations toward every other faction.
type Faction struct {
	ID        string                     `json:"id" db:"id"`
	Name      string                     `json:"name" db:"name"`
	Values    []string                   `json:"values"`
	Resources map[string]float64         `json:"resources"`
	Relations map[string]FactionRelation `json:"relations"`
}

// FactionRelation scores one faction's stance toward another.
type FactionRelation struct {
	// Score in [-1, 1]; drifts toward 0 over simulated time unless pinned.
	Score float64 `json:"score"`

	// Label is the display band derived from Score.
	Label string `json:"label"`

	// Pinned exempts the relation from neutral drift (sworn enmities,
	// formal alliances).
	Pinned bool `json:"pinned,omitempty"`
}

// FactionRelationLabel is the display band for a faction relation score
// in [-1, 1].
func FactionRelationLabel(score float64) string {
	switch {
	case score >= 0.6:
		return "allied"
	case score >= 0.2:
		return "friendly"
	case score > -0.2:
		return "neutral"
	case score > -0.6:
		return "unfriendly"
	default:
		return "hostile"
	}
}

// Territory is a contestable region with a controlling faction.
type Territory struct {
	ID                 string  `json:"id" db:"id"`
	Name               string  `json:"name" db:"name"`
	ControllingFaction string  `json:"controlling_faction" db:"controlling_faction"`
	ControlStrength    float64 `json:"control_strength" db:"control_strength"`
	StrategicValue     float64 `json:"strategic_value" db:"strategic_value"`
	Contested          bool    `json:"contested" db:"contested"`
}

// RouteStatus is the lifecycle state of a trade route.
type RouteStatus string

const (
	RouteActive    RouteStatus = "active"
	RouteDisrupted RouteStatus = "disrupted"
	RouteRetired   RouteStatus = "retired"
)

// TradeGoods lists every tradeable good, in a stable order for reproducible
// sampling.
var TradeGoods = []string{
	"food",
	"weapons",
	"medicine",
	"tools",
	"luxury_goods",
	"raw_materials",
	"information",
}

// TradeRoute is a recurring exchange between two factions. Active routes
// roll once per simulated day: success pays both endpoints, failure risks
// disruption.
type TradeRoute struct {
	ID            string      `json:"id" db:"id"`
	From          string      `json:"from" db:"from_faction"`
	To            string      `json:"to" db:"to_faction"`
	Goods         []string    `json:"goods"`
	ProfitMargin  float64     `json:"profit_margin" db:"profit_margin"`
	RiskLevel     float64     `json:"risk_level" db:"risk_level"`
	Status        RouteStatus `json:"status" db:"status"`
	TotalTrades   int         `json:"total_trades" db:"total_trades"`
	EstablishedAt time.Time   `json:"established_at" db:"established_at"`
}

// BattleStatus is the lifecycle state of a territorial battle.
type BattleStatus string

const (
	BattleInProgress  BattleStatus = "in_progress"
	BattleAttackerWon BattleStatus = "attacker_won"
	BattleDefenderWon BattleStatus = "defender_won"
)

// Battle is an ongoing or resolved fight over a territory. Strengths erode
// each tick; the battle resolves once one side drops below 40% of the other.
type Battle struct {
	ID               string       `json:"id" db:"id"`
	TerritoryID      string       `json:"territory_id" db:"territory_id"`
	Attacker         string       `json:"attacker" db:"attacker"`
	Defender         string       `json:"defender" db:"defender"`
	AttackerStrength float64      `json:"attacker_strength" db:"attacker_strength"`
	DefenderStrength float64      `json:"defender_strength" db:"defender_strength"`
	Status           BattleStatus `json:"status" db:"status"`
	Casualties       int          `json:"casualties" db:"casualties"`
	StartedAt        time.Time    `json:"started_at" db:"started_at"`
}
