package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/solmae/animus/pkg/types"
)

// SnapshotVersion increments whenever the snapshot layout changes
// incompatibly. Restore refuses snapshots with a newer version.
const SnapshotVersion = 1

// SnapshotHeader is written as a plain JSON line at the front of the
// compressed stream so `zstdcat world.snap | head -1` identifies a file
// without decoding the gob body. The same header repeats inside the body.
type SnapshotHeader struct {
	Version    int       `json:"version"`
	Seed       string    `json:"seed"`
	TotalHours float64   `json:"total_hours"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot is a complete export of world state, sufficient to rebuild the
// database from scratch.
type Snapshot struct {
	Header SnapshotHeader

	Meta        map[string]string
	Agents      []types.Agent
	Memories    []types.Memory
	Rumors      []types.Rumor
	Relations   []types.Relation
	Reputations []types.Reputation
	Factions    []types.Faction
	Territories []types.Territory
	Routes      []types.TradeRoute
	Battles     []types.Battle
	Quests      []types.Quest
	Events      []types.WorldEvent
}

// Counts summarises the snapshot for API responses and logs.
func (snap *Snapshot) Counts() map[string]int {
	return map[string]int{
		"agents":      len(snap.Agents),
		"memories":    len(snap.Memories),
		"rumors":      len(snap.Rumors),
		"relations":   len(snap.Relations),
		"reputations": len(snap.Reputations),
		"factions":    len(snap.Factions),
		"territories": len(snap.Territories),
		"routes":      len(snap.Routes),
		"battles":     len(snap.Battles),
		"quests":      len(snap.Quests),
		"events":      len(snap.Events),
	}
}

// ExportSnapshot dumps every table into a [Snapshot]. Callers should
// quiesce writers (or flush the write-behind queue) first so the export is
// a consistent point-in-time image.
func (s *Store) ExportSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Meta: make(map[string]string)}

	var metaRows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &metaRows, `SELECT key, value FROM meta`); err != nil {
		return nil, fmt.Errorf("store: export: meta: %w", err)
	}
	for _, row := range metaRows {
		snap.Meta[row.Key] = row.Value
	}

	var err error
	if snap.Agents, err = s.ListAgents(ctx); err != nil {
		return nil, fmt.Errorf("store: export: %w", err)
	}
	var memRows []types.Memory
	if err := s.db.SelectContext(ctx, &memRows,
		`SELECT `+memoryColumns+` FROM memories ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: export: memories: %w", err)
	}
	snap.Memories = memRows

	var rRows []rumorRow
	if err := s.db.SelectContext(ctx, &rRows,
		`SELECT id, about, content, strength, created_by, created_at, spread_json FROM rumors ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: export: rumors: %w", err)
	}
	for _, row := range rRows {
		rumor, err := row.toRumor()
		if err != nil {
			return nil, fmt.Errorf("store: export: rumor %s: %w", row.ID, err)
		}
		snap.Rumors = append(snap.Rumors, rumor)
	}

	if err := s.db.SelectContext(ctx, &snap.Relations,
		`SELECT a, b, trust_ab, trust_ba, familiarity, last_interaction_at FROM relations ORDER BY a, b`); err != nil {
		return nil, fmt.Errorf("store: export: relations: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Reputations,
		`SELECT player_id, kind, target_id, score, updated_at FROM reputations ORDER BY player_id, kind, target_id`); err != nil {
		return nil, fmt.Errorf("store: export: reputations: %w", err)
	}
	if snap.Factions, err = s.ListFactions(ctx); err != nil {
		return nil, fmt.Errorf("store: export: %w", err)
	}
	if snap.Territories, err = s.ListTerritories(ctx); err != nil {
		return nil, fmt.Errorf("store: export: %w", err)
	}
	if snap.Routes, err = s.ListRoutes(ctx); err != nil {
		return nil, fmt.Errorf("store: export: %w", err)
	}
	if snap.Battles, err = s.ListBattles(ctx, ""); err != nil {
		return nil, fmt.Errorf("store: export: %w", err)
	}
	if snap.Quests, err = s.ListQuests(ctx, QuestFilter{}); err != nil {
		return nil, fmt.Errorf("store: export: %w", err)
	}
	if snap.Events, err = s.ListWorldEvents(ctx, 0); err != nil {
		return nil, fmt.Errorf("store: export: %w", err)
	}

	totalHours, _ := strconv.ParseFloat(snap.Meta[MetaTotalHours], 64)
	snap.Header = SnapshotHeader{
		Version:    SnapshotVersion,
		Seed:       snap.Meta[MetaSeed],
		TotalHours: totalHours,
		CreatedAt:  time.Now().UTC(),
	}
	return snap, nil
}

// WriteSnapshot exports the world and streams it to w as a zstd-compressed
// gob payload prefixed with a JSON header line.
func (s *Store) WriteSnapshot(ctx context.Context, w io.Writer) (*Snapshot, error) {
	snap, err := s.ExportSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := EncodeSnapshot(w, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// WriteSnapshotFile writes a snapshot to path, creating parent directories
// as needed. The file is written to a temp name and renamed into place so
// a crash never leaves a truncated snapshot at path.
func (s *Store) WriteSnapshotFile(ctx context.Context, path string) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	snap, err := s.WriteSnapshot(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	return snap, nil
}

// EncodeSnapshot serialises snap to w: zstd stream containing one JSON
// header line followed by the gob body.
func EncodeSnapshot(w io.Writer, snap *Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("store: snapshot: %w", err)
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return fmt.Errorf("store: snapshot: header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		return fmt.Errorf("store: snapshot: %w", err)
	}
	if err := bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("store: snapshot: %w", err)
	}
	if err := gob.NewEncoder(bw).Encode(snap); err != nil {
		return fmt.Errorf("store: snapshot: gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("store: snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("store: snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a snapshot stream produced by [EncodeSnapshot] and
// validates its version.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body carries the same header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return nil, fmt.Errorf("store: snapshot: header: %w", err)
	}

	var snap Snapshot
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return nil, fmt.Errorf("store: snapshot: gob decode: %w", err)
	}
	if snap.Header.Version > SnapshotVersion {
		return nil, fmt.Errorf("store: snapshot: version %d is newer than supported %d",
			snap.Header.Version, SnapshotVersion)
	}
	return &snap, nil
}

// ReadSnapshotFile loads a snapshot from disk.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	defer f.Close()
	return DecodeSnapshot(f)
}

// ImportSnapshot atomically replaces all world state with the snapshot's
// contents. Every table is wiped and repopulated in one transaction, so a
// failure partway leaves the previous state untouched. World event
// sequence numbers are preserved.
func (s *Store) ImportSnapshot(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: restore: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"meta", "agents", "memories", "rumors", "relations", "reputations",
		"factions", "territories", "trade_routes", "battles", "quests", "world_events",
	} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("store: restore: wipe %s: %w", table, err)
		}
	}

	for key, value := range snap.Meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("store: restore: meta %s: %w", key, err)
		}
	}

	for i := range snap.Agents {
		row, err := agentToRow(&snap.Agents[i])
		if err != nil {
			return fmt.Errorf("store: restore: agent %s: %w", snap.Agents[i].ID, err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO agents (`+agentColumns+`)
			VALUES (
				:id, :name, :role, :zone, :position_json,
				:curiosity, :empathy, :risk_tolerance, :aggression,
				:discipline, :romanticism, :opportunism, :paranoia,
				:hunger, :fatigue, :mood_label, :mood_arousal, :mood_valence,
				:faction, :goals_json, :voice_json, :backstory, :dialogue_style,
				:created_at, :last_active_at
			)`, row); err != nil {
			return fmt.Errorf("store: restore: agent %s: %w", row.ID, err)
		}
	}

	for _, m := range snap.Memories {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO memories (`+memoryColumns+`)
			VALUES (
				:id, :owner, :subject, :category, :content, :strength, :emotional_weight,
				:source, :source_memory_id, :created_at, :last_referenced_at, :ref_count
			)`, m); err != nil {
			return fmt.Errorf("store: restore: memory %s: %w", m.ID, err)
		}
	}

	for _, r := range snap.Rumors {
		row, err := rumorToRow(r)
		if err != nil {
			return fmt.Errorf("store: restore: rumor %s: %w", r.ID, err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO rumors (id, about, content, strength, created_by, created_at, spread_json)
			VALUES (:id, :about, :content, :strength, :created_by, :created_at, :spread_json)`,
			row); err != nil {
			return fmt.Errorf("store: restore: rumor %s: %w", r.ID, err)
		}
	}

	for _, r := range snap.Relations {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO relations (a, b, trust_ab, trust_ba, familiarity, last_interaction_at)
			VALUES (:a, :b, :trust_ab, :trust_ba, :familiarity, :last_interaction_at)`,
			r); err != nil {
			return fmt.Errorf("store: restore: relation %s/%s: %w", r.A, r.B, err)
		}
	}

	for _, r := range snap.Reputations {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO reputations (player_id, kind, target_id, score, updated_at)
			VALUES (:player_id, :kind, :target_id, :score, :updated_at)`, r); err != nil {
			return fmt.Errorf("store: restore: reputation %s→%s: %w", r.PlayerID, r.TargetID, err)
		}
	}

	for _, f := range snap.Factions {
		row, err := factionToRow(f)
		if err != nil {
			return fmt.Errorf("store: restore: faction %s: %w", f.ID, err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO factions (id, name, values_json, resources_json, relations_json)
			VALUES (:id, :name, :values_json, :resources_json, :relations_json)`,
			row); err != nil {
			return fmt.Errorf("store: restore: faction %s: %w", f.ID, err)
		}
	}

	for _, t := range snap.Territories {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO territories (id, name, controlling_faction, control_strength, strategic_value, contested)
			VALUES (:id, :name, :controlling_faction, :control_strength, :strategic_value, :contested)`,
			t); err != nil {
			return fmt.Errorf("store: restore: territory %s: %w", t.ID, err)
		}
	}

	for _, r := range snap.Routes {
		row, err := routeToRow(r)
		if err != nil {
			return fmt.Errorf("store: restore: route %s: %w", r.ID, err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO trade_routes (id, from_faction, to_faction, goods_json,
				profit_margin, risk_level, status, total_trades, established_at)
			VALUES (:id, :from_faction, :to_faction, :goods_json,
				:profit_margin, :risk_level, :status, :total_trades, :established_at)`,
			row); err != nil {
			return fmt.Errorf("store: restore: route %s: %w", r.ID, err)
		}
	}

	for _, b := range snap.Battles {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO battles (id, territory_id, attacker, defender,
				attacker_strength, defender_strength, status, casualties, started_at)
			VALUES (:id, :territory_id, :attacker, :defender,
				:attacker_strength, :defender_strength, :status, :casualties, :started_at)`,
			b); err != nil {
			return fmt.Errorf("store: restore: battle %s: %w", b.ID, err)
		}
	}

	for _, q := range snap.Quests {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO quests (`+questColumns+`)
			VALUES (
				:id, :giver_id, :player_id, :type, :difficulty, :title, :description,
				:reward_gold, :reward_reputation, :status, :chain_id, :chain_stage,
				:created_at, :expires_at_hours
			)`, questToRow(q)); err != nil {
			return fmt.Errorf("store: restore: quest %s: %w", q.ID, err)
		}
	}

	for _, ev := range snap.Events {
		actors, err := json.Marshal(ev.Actors)
		if err != nil {
			return fmt.Errorf("store: restore: event %d: %w", ev.Seq, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO world_events (seq, total_hours, kind, message, actors_json)
			VALUES (?, ?, ?, ?, ?)`,
			ev.Seq, ev.Time.TotalHours, ev.Kind, ev.Message, string(actors)); err != nil {
			return fmt.Errorf("store: restore: event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: restore: commit: %w", err)
	}
	s.log.Info("snapshot restored",
		"seed", snap.Header.Seed,
		"total_hours", snap.Header.TotalHours,
		"agents", len(snap.Agents),
		"memories", len(snap.Memories),
	)
	return nil
}

// RestoreSnapshot decodes a snapshot stream and imports it.
func (s *Store) RestoreSnapshot(ctx context.Context, r io.Reader) (*Snapshot, error) {
	snap, err := DecodeSnapshot(r)
	if err != nil {
		return nil, err
	}
	if err := s.ImportSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
