package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

// Store satisfies the memory engine's persistence contract.
var _ memory.Store = (*Store)(nil)

const memoryColumns = `
	id, owner, subject, category, content, strength, emotional_weight,
	source, source_memory_id, created_at, last_referenced_at, ref_count`

// InsertMemory writes one memory row.
func (s *Store) InsertMemory(ctx context.Context, m types.Memory) error {
	const query = `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES (
			:id, :owner, :subject, :category, :content, :strength, :emotional_weight,
			:source, :source_memory_id, :created_at, :last_referenced_at, :ref_count
		)`
	if _, err := s.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("store: insert memory %s: %w", m.ID, err)
	}
	return nil
}

// UpdateMemory replaces all mutable fields of an existing memory row.
func (s *Store) UpdateMemory(ctx context.Context, m types.Memory) error {
	const query = `
		UPDATE memories SET
			subject = :subject,
			category = :category,
			content = :content,
			strength = :strength,
			emotional_weight = :emotional_weight,
			last_referenced_at = :last_referenced_at,
			ref_count = :ref_count
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return fmt.Errorf("store: update memory %s: %w", m.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: update memory %s: no such row", m.ID)
	}
	return nil
}

// QueryMemories returns the owner's memories at or above the strength floor,
// ranked by strength·(1 + 0.5·emotionalWeight) descending. An empty subject
// matches all subjects; a non-positive limit returns every match.
func (s *Store) QueryMemories(ctx context.Context, owner string, params memory.RetrieveParams) ([]types.Memory, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + memoryColumns + ` FROM memories WHERE owner = ? AND strength >= ?`)
	args := []any{owner, params.MinStrength}

	if params.Subject != "" {
		sb.WriteString(` AND subject = ?`)
		args = append(args, params.Subject)
	}
	sb.WriteString(` ORDER BY strength * (1.0 + 0.5 * emotional_weight) DESC, created_at DESC`)
	if params.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, params.Limit)
	}

	var memories []types.Memory
	if err := s.db.SelectContext(ctx, &memories, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("store: query memories for %s: %w", owner, err)
	}
	return memories, nil
}

// HasSecondhand reports whether the owner already holds a copy shared from
// the given source memory.
func (s *Store) HasSecondhand(ctx context.Context, owner, sourceMemoryID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM memories WHERE owner = ? AND source_memory_id = ?)`,
		owner, sourceMemoryID)
	if err != nil {
		return false, fmt.Errorf("store: has secondhand: %w", err)
	}
	return exists, nil
}

// DecayMemories applies deltaHours of exponential decay to every memory in
// one indexed UPDATE. Emotional weight slows decay; weight 1.0 is immune.
// Returns the number of rows touched.
func (s *Store) DecayMemories(ctx context.Context, deltaHours, lambda float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET strength = strength * exp(-? * ? * (1.0 - emotional_weight))`,
		lambda, deltaHours)
	if err != nil {
		return 0, fmt.Errorf("store: decay memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: decay memories: %w", err)
	}
	return n, nil
}

// DeleteMemoriesBelow removes memories whose strength has fallen under the
// threshold. Returns the number of rows deleted.
func (s *Store) DeleteMemoriesBelow(ctx context.Context, threshold float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE strength < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("store: delete memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete memories: %w", err)
	}
	return n, nil
}

// CountMemories returns the number of memory rows.
func (s *Store) CountMemories(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM memories`); err != nil {
		return 0, fmt.Errorf("store: count memories: %w", err)
	}
	return n, nil
}

// ── rumors ────────────────────────────────────────────────────────────────────

// rumorRow is the scan target for the rumors table; the spread set is a
// JSON column.
type rumorRow struct {
	ID         string    `db:"id"`
	About      string    `db:"about"`
	Content    string    `db:"content"`
	CreatedBy  string    `db:"created_by"`
	Strength   float64   `db:"strength"`
	SpreadJSON string    `db:"spread_json"`
	CreatedAt  time.Time `db:"created_at"`
}

func rumorToRow(r types.Rumor) (rumorRow, error) {
	spread := r.Spread
	if spread == nil {
		spread = []string{}
	}
	b, err := json.Marshal(spread)
	if err != nil {
		return rumorRow{}, fmt.Errorf("marshal spread: %w", err)
	}
	return rumorRow{
		ID:         r.ID,
		About:      r.About,
		Content:    r.Content,
		CreatedBy:  r.CreatedBy,
		Strength:   r.Strength,
		SpreadJSON: string(b),
		CreatedAt:  r.CreatedAt,
	}, nil
}

func (row rumorRow) toRumor() (types.Rumor, error) {
	r := types.Rumor{
		ID:        row.ID,
		About:     row.About,
		Content:   row.Content,
		CreatedBy: row.CreatedBy,
		Strength:  row.Strength,
		CreatedAt: row.CreatedAt,
	}
	if row.SpreadJSON != "" {
		if err := json.Unmarshal([]byte(row.SpreadJSON), &r.Spread); err != nil {
			return r, fmt.Errorf("unmarshal spread: %w", err)
		}
	}
	return r, nil
}

// InsertRumor writes one rumor row.
func (s *Store) InsertRumor(ctx context.Context, r types.Rumor) error {
	row, err := rumorToRow(r)
	if err != nil {
		return fmt.Errorf("store: insert rumor %s: %w", r.ID, err)
	}
	const query = `
		INSERT INTO rumors (id, about, content, created_by, strength, spread_json, created_at)
		VALUES (:id, :about, :content, :created_by, :strength, :spread_json, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("store: insert rumor %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRumor replaces the mutable fields of an existing rumor row.
func (s *Store) UpdateRumor(ctx context.Context, r types.Rumor) error {
	row, err := rumorToRow(r)
	if err != nil {
		return fmt.Errorf("store: update rumor %s: %w", r.ID, err)
	}
	const query = `
		UPDATE rumors SET
			content = :content,
			strength = :strength,
			spread_json = :spread_json
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("store: update rumor %s: %w", r.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: update rumor %s: no such row", r.ID)
	}
	return nil
}

// RumorsAbout returns rumors about the given subject, strongest first. A
// non-positive limit returns every match.
func (s *Store) RumorsAbout(ctx context.Context, about string, limit int) ([]types.Rumor, error) {
	query := `
		SELECT id, about, content, created_by, strength, spread_json, created_at
		FROM rumors WHERE about = ? ORDER BY strength DESC, created_at DESC`
	args := []any{about}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []rumorRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: rumors about %s: %w", about, err)
	}
	rumors := make([]types.Rumor, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRumor()
		if err != nil {
			return nil, fmt.Errorf("store: rumors about %s: %w", about, err)
		}
		rumors = append(rumors, r)
	}
	return rumors, nil
}

// DecayRumors applies deltaHours of exponential decay to every rumor.
// Rumors carry no emotional weight, so they decay at the full rate.
func (s *Store) DecayRumors(ctx context.Context, deltaHours, lambda float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rumors SET strength = strength * exp(-? * ?)`, lambda, deltaHours)
	if err != nil {
		return 0, fmt.Errorf("store: decay rumors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: decay rumors: %w", err)
	}
	return n, nil
}

// DeleteRumorsBelow removes rumors whose strength has fallen under the
// threshold. Returns the number of rows deleted.
func (s *Store) DeleteRumorsBelow(ctx context.Context, threshold float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rumors WHERE strength < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("store: delete rumors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete rumors: %w", err)
	}
	return n, nil
}
