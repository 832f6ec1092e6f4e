package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solmae/animus/pkg/types"
)

// eventRow is the flat scan target for the world_events table. The sequence
// number is assigned by SQLite (INTEGER PRIMARY KEY rowid alias) so that
// ordering survives restarts without an in-process counter.
type eventRow struct {
	Seq        uint64  `db:"seq"`
	TotalHours float64 `db:"total_hours"`
	Kind       string  `db:"kind"`
	Message    string  `db:"message"`
	ActorsJSON string  `db:"actors_json"`
}

func (row eventRow) toEvent() (types.WorldEvent, error) {
	ev := types.WorldEvent{
		Seq:     row.Seq,
		Time:    types.TimeAt(row.TotalHours),
		Kind:    types.EventKind(row.Kind),
		Message: row.Message,
	}
	if row.ActorsJSON != "" && row.ActorsJSON != "null" {
		if err := json.Unmarshal([]byte(row.ActorsJSON), &ev.Actors); err != nil {
			return types.WorldEvent{}, fmt.Errorf("actors: %w", err)
		}
	}
	return ev, nil
}

// AppendWorldEvent persists a single event and returns it with the assigned
// sequence number filled in.
func (s *Store) AppendWorldEvent(ctx context.Context, ev types.WorldEvent) (types.WorldEvent, error) {
	actors, err := json.Marshal(ev.Actors)
	if err != nil {
		return types.WorldEvent{}, fmt.Errorf("store: append event: actors: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO world_events (total_hours, kind, message, actors_json)
		VALUES (?, ?, ?, ?)`,
		ev.Time.TotalHours, ev.Kind, ev.Message, string(actors))
	if err != nil {
		return types.WorldEvent{}, fmt.Errorf("store: append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return types.WorldEvent{}, fmt.Errorf("store: append event: %w", err)
	}
	ev.Seq = uint64(seq)
	return ev, nil
}

// AppendWorldEvents persists a batch of events in one transaction, in order.
// Returned events carry their assigned sequence numbers.
func (s *Store) AppendWorldEvents(ctx context.Context, evs []types.WorldEvent) ([]types.WorldEvent, error) {
	if len(evs) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: append events: %w", err)
	}
	defer tx.Rollback()

	out := make([]types.WorldEvent, 0, len(evs))
	for _, ev := range evs {
		actors, err := json.Marshal(ev.Actors)
		if err != nil {
			return nil, fmt.Errorf("store: append events: actors: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO world_events (total_hours, kind, message, actors_json)
			VALUES (?, ?, ?, ?)`,
			ev.Time.TotalHours, ev.Kind, ev.Message, string(actors))
		if err != nil {
			return nil, fmt.Errorf("store: append events: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("store: append events: %w", err)
		}
		ev.Seq = uint64(seq)
		out = append(out, ev)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: append events: commit: %w", err)
	}
	return out, nil
}

// ListWorldEvents returns the most recent events in ascending sequence
// order. limit <= 0 returns everything.
func (s *Store) ListWorldEvents(ctx context.Context, limit int) ([]types.WorldEvent, error) {
	query := `SELECT seq, total_hours, kind, message, actors_json FROM world_events ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	events := make([]types.WorldEvent, len(rows))
	for i, row := range rows {
		ev, err := row.toEvent()
		if err != nil {
			return nil, fmt.Errorf("store: list events: seq %d: %w", row.Seq, err)
		}
		// Reverse while filling: the query walks newest-first.
		events[len(rows)-1-i] = ev
	}
	return events, nil
}

// EventsSince returns events with sequence numbers strictly greater than
// afterSeq, oldest first. Used by stream catch-up after reconnect.
func (s *Store) EventsSince(ctx context.Context, afterSeq uint64, limit int) ([]types.WorldEvent, error) {
	query := `SELECT seq, total_hours, kind, message, actors_json FROM world_events WHERE seq > ? ORDER BY seq`
	args := []any{afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: events since %d: %w", afterSeq, err)
	}
	events := make([]types.WorldEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEvent()
		if err != nil {
			return nil, fmt.Errorf("store: events since %d: seq %d: %w", afterSeq, row.Seq, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// LastEventSeq returns the highest assigned sequence number, zero when the
// log is empty.
func (s *Store) LastEventSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM world_events`)
	if err != nil {
		return 0, fmt.Errorf("store: last event seq: %w", err)
	}
	return seq, nil
}

// PruneWorldEvents deletes all but the newest keep events. The in-memory
// ring is the hot path; the table is trimmed opportunistically to match.
func (s *Store) PruneWorldEvents(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = 1000
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM world_events
		WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM world_events) - ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune events: %w", err)
	}
	return n, nil
}
