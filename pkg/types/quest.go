package types

import "time"

// QuestType identifies one of the built-in quest templates.
type QuestType string

const (
	QuestFetch       QuestType = "fetch"
	QuestProtect     QuestType = "protect"
	QuestInvestigate QuestType = "investigate"
	QuestRevenge     QuestType = "revenge"
	QuestTrade       QuestType = "trade"
	QuestRescue      QuestType = "rescue"
)

// QuestDifficulty scales rewards.
type QuestDifficulty string

const (
	QuestEasy   QuestDifficulty = "easy"
	QuestMedium QuestDifficulty = "medium"
	QuestHard   QuestDifficulty = "hard"
)

// Rewards returns the payout for completing a quest of this difficulty.
func (d QuestDifficulty) Rewards() QuestRewards {
	switch d {
	case QuestEasy:
		return QuestRewards{Gold: 50, Reputation: 0.05}
	case QuestMedium:
		return QuestRewards{Gold: 100, Reputation: 0.10}
	case QuestHard:
		return QuestRewards{Gold: 200, Reputation: 0.20}
	}
	return QuestRewards{Gold: 50, Reputation: 0.05}
}

// QuestRewards is what a player earns on completion: gold plus a reputation
// boost with the giver (and, through the ripple, the giver's faction).
type QuestRewards struct {
	Gold       int     `json:"gold"`
	Reputation float64 `json:"reputation"`
}

// QuestStatus is the lifecycle state of a quest.
type QuestStatus string

const (
	QuestAvailable QuestStatus = "available"
	QuestAccepted  QuestStatus = "accepted"
	QuestCompleted QuestStatus = "completed"
	QuestExpired   QuestStatus = "expired"
)

// Quest is a task offered by an agent to a player. Quests expire if not
// completed before ExpiresAt (simulated time, checked each tick). Chained
// quests carry the chain id and stage; completing a stage unlocks the next.
type Quest struct {
	ID          string          `json:"id" db:"id"`
	GiverID     string          `json:"giver_id" db:"giver_id"`
	PlayerID    string          `json:"player_id,omitempty" db:"player_id"`
	Type        QuestType       `json:"type" db:"type"`
	Difficulty  QuestDifficulty `json:"difficulty" db:"difficulty"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	Rewards     QuestRewards    `json:"rewards"`
	Status      QuestStatus     `json:"status" db:"status"`
	ChainID     string          `json:"chain_id,omitempty" db:"chain_id"`
	ChainStage  int             `json:"chain_stage,omitempty" db:"chain_stage"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`

	// ExpiresAtHours is the simulated-clock deadline in total hours.
	ExpiresAtHours float64 `json:"expires_at_hours" db:"expires_at_hours"`
}
