// Package store provides SQLite-backed persistence for all world state.
//
// A single [Store] owns the database file: agents, memories, rumors,
// relations, reputations, factions, territories, trade routes, battles,
// quests, world events and clock metadata. The schema is created on open and
// versioned through a meta row; migrations are forward-only.
//
// Writes from the hot path go through [WriteBehind], which coalesces by key
// and flushes in the background with bounded retries. Reads are served
// directly; callers front them with internal/cache.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// schemaVersion is the schema this build reads and writes. Databases with a
// newer version are refused rather than downgraded.
const schemaVersion = 1

// Meta keys used by the world runtime. Stored in the meta table alongside
// the schema version.
const (
	MetaSeed       = "world_seed"
	MetaTotalHours = "world_total_hours"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	role           TEXT NOT NULL DEFAULT '',
	zone           TEXT NOT NULL DEFAULT '',
	position_json  TEXT,
	curiosity      REAL NOT NULL,
	empathy        REAL NOT NULL,
	risk_tolerance REAL NOT NULL,
	aggression     REAL NOT NULL,
	discipline     REAL NOT NULL,
	romanticism    REAL NOT NULL,
	opportunism    REAL NOT NULL,
	paranoia       REAL NOT NULL,
	hunger         REAL NOT NULL DEFAULT 0,
	fatigue        REAL NOT NULL DEFAULT 0,
	mood_label     TEXT NOT NULL DEFAULT '',
	mood_arousal   REAL NOT NULL DEFAULT 0,
	mood_valence   REAL NOT NULL DEFAULT 0.5,
	faction        TEXT NOT NULL DEFAULT '',
	goals_json     TEXT NOT NULL DEFAULT '[]',
	voice_json     TEXT,
	backstory      TEXT NOT NULL DEFAULT '',
	dialogue_style TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	last_active_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agents_zone ON agents(zone);
CREATE INDEX IF NOT EXISTS idx_agents_faction ON agents(faction);

CREATE TABLE IF NOT EXISTS memories (
	id                 TEXT PRIMARY KEY,
	owner              TEXT NOT NULL,
	subject            TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL,
	content            TEXT NOT NULL,
	strength           REAL NOT NULL,
	emotional_weight   REAL NOT NULL,
	source             TEXT NOT NULL DEFAULT '',
	source_memory_id   TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL,
	last_referenced_at TIMESTAMP NOT NULL,
	ref_count          INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_owner_subject ON memories(owner, subject);
CREATE INDEX IF NOT EXISTS idx_memories_owner_referenced ON memories(owner, last_referenced_at);
CREATE INDEX IF NOT EXISTS idx_memories_owner_source ON memories(owner, source_memory_id);

CREATE TABLE IF NOT EXISTS rumors (
	id          TEXT PRIMARY KEY,
	about       TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_by  TEXT NOT NULL DEFAULT '',
	strength    REAL NOT NULL,
	spread_json TEXT NOT NULL DEFAULT '[]',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rumors_about ON rumors(about);

CREATE TABLE IF NOT EXISTS relations (
	a                   TEXT NOT NULL,
	b                   TEXT NOT NULL,
	trust_ab            REAL NOT NULL DEFAULT 0,
	trust_ba            REAL NOT NULL DEFAULT 0,
	familiarity         REAL NOT NULL DEFAULT 0,
	last_interaction_at TIMESTAMP NOT NULL,
	PRIMARY KEY (a, b)
);

CREATE TABLE IF NOT EXISTS reputations (
	player_id  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	score      REAL NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (player_id, kind, target_id)
);
CREATE INDEX IF NOT EXISTS idx_reputations_player ON reputations(player_id);

CREATE TABLE IF NOT EXISTS factions (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	values_json    TEXT NOT NULL DEFAULT '[]',
	resources_json TEXT NOT NULL DEFAULT '{}',
	relations_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS territories (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	controlling_faction TEXT NOT NULL DEFAULT '',
	control_strength    REAL NOT NULL DEFAULT 0,
	strategic_value     REAL NOT NULL DEFAULT 0,
	contested           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trade_routes (
	id             TEXT PRIMARY KEY,
	from_faction   TEXT NOT NULL,
	to_faction     TEXT NOT NULL,
	goods_json     TEXT NOT NULL DEFAULT '[]',
	profit_margin  REAL NOT NULL,
	risk_level     REAL NOT NULL,
	status         TEXT NOT NULL,
	total_trades   INTEGER NOT NULL DEFAULT 0,
	established_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS battles (
	id                TEXT PRIMARY KEY,
	territory_id      TEXT NOT NULL,
	attacker          TEXT NOT NULL,
	defender          TEXT NOT NULL,
	attacker_strength REAL NOT NULL,
	defender_strength REAL NOT NULL,
	status            TEXT NOT NULL,
	casualties        INTEGER NOT NULL DEFAULT 0,
	started_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battles_status ON battles(status);

CREATE TABLE IF NOT EXISTS quests (
	id                TEXT PRIMARY KEY,
	giver_id          TEXT NOT NULL,
	player_id         TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL,
	difficulty        TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	reward_gold       INTEGER NOT NULL DEFAULT 0,
	reward_reputation REAL NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	chain_id          TEXT NOT NULL DEFAULT '',
	chain_stage       INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	expires_at_hours  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_quests_status ON quests(status);
CREATE INDEX IF NOT EXISTS idx_quests_player ON quests(player_id);

CREATE TABLE IF NOT EXISTS world_events (
	seq         INTEGER PRIMARY KEY,
	total_hours REAL NOT NULL,
	kind        TEXT NOT NULL,
	message     TEXT NOT NULL,
	actors_json TEXT NOT NULL DEFAULT '[]'
);
`

// Store wraps the SQLite connection behind typed accessors.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// Option configures [Open].
type Option func(*Store)

// WithLogger sets the store logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open opens or creates the database at path and brings the schema up to
// date. Use ":memory:" for an ephemeral database in tests.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	s := &Store{db: db, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "store")

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	s.log.Info("database open", "path", path, "schema_version", schemaVersion)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates missing tables and records the schema version. A database
// written by a newer build is refused.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaV1); err != nil {
		return err
	}

	current, err := s.readSchemaVersion()
	if err != nil {
		return err
	}
	switch {
	case current > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported %d", current, schemaVersion)
	case current < schemaVersion:
		// Forward-only: future versions chain ALTER statements here, keyed
		// on the version they upgrade from.
		if _, err := s.db.Exec(
			`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
			strconv.Itoa(schemaVersion),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readSchemaVersion() (int, error) {
	var raw string
	err := s.db.Get(&raw, `SELECT value FROM meta WHERE key = 'schema_version'`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed schema_version %q", raw)
	}
	return v, nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT value FROM meta WHERE key = 'schema_version'`)
	if err != nil {
		return 0, fmt.Errorf("store: schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("store: malformed schema_version %q", raw)
	}
	return v, nil
}

// GetMeta returns the value for key, or "" when the key is absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM meta WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get meta %q: %w", key, err)
	}
	return value, nil
}

// PutMeta stores a key/value pair in the meta table.
func (s *Store) PutMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("store: put meta %q: %w", key, err)
	}
	return nil
}
