package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solmae/animus/pkg/types"
)

// questRow is the flat scan target for the quests table.
type questRow struct {
	ID               string    `db:"id"`
	GiverID          string    `db:"giver_id"`
	PlayerID         string    `db:"player_id"`
	Type             string    `db:"type"`
	Difficulty       string    `db:"difficulty"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	RewardGold       int       `db:"reward_gold"`
	RewardReputation float64   `db:"reward_reputation"`
	Status           string    `db:"status"`
	ChainID          string    `db:"chain_id"`
	ChainStage       int       `db:"chain_stage"`
	CreatedAt        time.Time `db:"created_at"`
	ExpiresAtHours   float64   `db:"expires_at_hours"`
}

func questToRow(q types.Quest) questRow {
	return questRow{
		ID:               q.ID,
		GiverID:          q.GiverID,
		PlayerID:         q.PlayerID,
		Type:             string(q.Type),
		Difficulty:       string(q.Difficulty),
		Title:            q.Title,
		Description:      q.Description,
		RewardGold:       q.Rewards.Gold,
		RewardReputation: q.Rewards.Reputation,
		Status:           string(q.Status),
		ChainID:          q.ChainID,
		ChainStage:       q.ChainStage,
		CreatedAt:        q.CreatedAt,
		ExpiresAtHours:   q.ExpiresAtHours,
	}
}

func (row questRow) toQuest() types.Quest {
	return types.Quest{
		ID:          row.ID,
		GiverID:     row.GiverID,
		PlayerID:    row.PlayerID,
		Type:        types.QuestType(row.Type),
		Difficulty:  types.QuestDifficulty(row.Difficulty),
		Title:       row.Title,
		Description: row.Description,
		Rewards: types.QuestRewards{
			Gold:       row.RewardGold,
			Reputation: row.RewardReputation,
		},
		Status:         types.QuestStatus(row.Status),
		ChainID:        row.ChainID,
		ChainStage:     row.ChainStage,
		CreatedAt:      row.CreatedAt,
		ExpiresAtHours: row.ExpiresAtHours,
	}
}

const questColumns = `
	id, giver_id, player_id, type, difficulty, title, description,
	reward_gold, reward_reputation, status, chain_id, chain_stage,
	created_at, expires_at_hours`

// PutQuest inserts or replaces a quest record.
func (s *Store) PutQuest(ctx context.Context, q types.Quest) error {
	if q.ID == "" {
		return fmt.Errorf("store: put quest: id required")
	}
	const query = `
		INSERT INTO quests (` + questColumns + `)
		VALUES (
			:id, :giver_id, :player_id, :type, :difficulty, :title, :description,
			:reward_gold, :reward_reputation, :status, :chain_id, :chain_stage,
			:created_at, :expires_at_hours
		)
		ON CONFLICT (id) DO UPDATE SET
			player_id = excluded.player_id,
			status = excluded.status,
			expires_at_hours = excluded.expires_at_hours`
	if _, err := s.db.NamedExecContext(ctx, query, questToRow(q)); err != nil {
		return fmt.Errorf("store: put quest %s: %w", q.ID, err)
	}
	return nil
}

// GetQuest retrieves a quest by id. Returns (nil, nil) when absent.
func (s *Store) GetQuest(ctx context.Context, id string) (*types.Quest, error) {
	var row questRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+questColumns+` FROM quests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get quest %s: %w", id, err)
	}
	q := row.toQuest()
	return &q, nil
}

// QuestFilter narrows [Store.ListQuests]. Zero-value fields match all.
type QuestFilter struct {
	GiverID  string
	PlayerID string
	Status   types.QuestStatus
}

// ListQuests returns quests matching the filter, newest first.
func (s *Store) ListQuests(ctx context.Context, filter QuestFilter) ([]types.Quest, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + questColumns + ` FROM quests WHERE 1=1`)
	var args []any
	if filter.GiverID != "" {
		sb.WriteString(` AND giver_id = ?`)
		args = append(args, filter.GiverID)
	}
	if filter.PlayerID != "" {
		sb.WriteString(` AND player_id = ?`)
		args = append(args, filter.PlayerID)
	}
	if filter.Status != "" {
		sb.WriteString(` AND status = ?`)
		args = append(args, filter.Status)
	}
	sb.WriteString(` ORDER BY created_at DESC, id`)

	var rows []questRow
	if err := s.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("store: list quests: %w", err)
	}
	quests := make([]types.Quest, 0, len(rows))
	for _, row := range rows {
		quests = append(quests, row.toQuest())
	}
	return quests, nil
}

// ExpireQuests marks every open quest whose deadline has passed as expired
// and returns the quests that changed, for event emission.
func (s *Store) ExpireQuests(ctx context.Context, nowHours float64) ([]types.Quest, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: expire quests: %w", err)
	}
	defer tx.Rollback()

	var rows []questRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT `+questColumns+` FROM quests
		WHERE status IN (?, ?) AND expires_at_hours > 0 AND expires_at_hours <= ?
		ORDER BY id`,
		types.QuestAvailable, types.QuestAccepted, nowHours)
	if err != nil {
		return nil, fmt.Errorf("store: expire quests: select: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	expired := make([]types.Quest, 0, len(rows))
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`UPDATE quests SET status = ? WHERE id = ?`, types.QuestExpired, row.ID); err != nil {
			return nil, fmt.Errorf("store: expire quest %s: %w", row.ID, err)
		}
		q := row.toQuest()
		q.Status = types.QuestExpired
		expired = append(expired, q)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: expire quests: commit: %w", err)
	}
	return expired, nil
}
