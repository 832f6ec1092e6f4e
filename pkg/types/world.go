package types

import "fmt"

// WorldTime is a point on the simulated clock. TotalHours is the monotonic
// source of truth; day, hour and minute are derived for display. Days are
// 1-based and 24 simulated hours long.
type WorldTime struct {
	Day        int     `json:"day"`
	Hour       int     `json:"hour"`
	Minute     int     `json:"minute"`
	TotalHours float64 `json:"total_hours"`
}

// TimeAt derives the calendar fields for a total-hours value.
func TimeAt(totalHours float64) WorldTime {
	day := int(totalHours / 24)
	rem := totalHours - float64(day)*24
	hour := int(rem)
	minute := int((rem - float64(hour)) * 60)
	return WorldTime{
		Day:        day + 1,
		Hour:       hour,
		Minute:     minute,
		TotalHours: totalHours,
	}
}

// Add returns the world time hours later. Negative deltas are not allowed;
// the clock never runs backward.
func (t WorldTime) Add(hours float64) WorldTime {
	if hours < 0 {
		hours = 0
	}
	return TimeAt(t.TotalHours + hours)
}

// String renders the time as "day 3 14:30".
func (t WorldTime) String() string {
	return fmt.Sprintf("day %d %02d:%02d", t.Day, t.Hour, t.Minute)
}

// EventKind classifies world events for subscription filtering.
type EventKind string

const (
	EventSkirmish         EventKind = "skirmish"
	EventTradeDeal        EventKind = "trade_deal"
	EventBetrayal         EventKind = "betrayal"
	EventAllianceFormed   EventKind = "alliance_formed"
	EventBattleStarted    EventKind = "battle_started"
	EventBattleResolved   EventKind = "battle_resolved"
	EventTerritoryTaken   EventKind = "territory_taken"
	EventRouteEstablished EventKind = "route_established"
	EventRouteExecuted    EventKind = "route_executed"
	EventRouteDisrupted   EventKind = "route_disrupted"
	EventRouteRestored    EventKind = "route_restored"
	EventQuestOffered     EventKind = "quest_offered"
	EventQuestCompleted   EventKind = "quest_completed"
	EventQuestExpired     EventKind = "quest_expired"
	EventUrgent           EventKind = "urgent"
)

// WorldEvent is one entry in the world event log. Events carry only
// simulation-derived data (sequence, simulated time, deterministic text) so
// that runs from the same seed and snapshot produce byte-identical logs.
type WorldEvent struct {
	Seq     uint64    `json:"seq"`
	Time    WorldTime `json:"time"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
	Actors  []string  `json:"actors,omitempty"`
}
