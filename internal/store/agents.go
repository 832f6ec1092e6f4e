package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/pkg/types"
)

// Store satisfies the agent runtime's persistence contract.
var _ agent.Store = (*Store)(nil)

// agentRow is the flat scan target for the agents table. Structured fields
// (position, goals, voice) are stored as JSON columns.
type agentRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Role          string         `db:"role"`
	Zone          string         `db:"zone"`
	PositionJSON  sql.NullString `db:"position_json"`
	Curiosity     float64        `db:"curiosity"`
	Empathy       float64        `db:"empathy"`
	RiskTolerance float64        `db:"risk_tolerance"`
	Aggression    float64        `db:"aggression"`
	Discipline    float64        `db:"discipline"`
	Romanticism   float64        `db:"romanticism"`
	Opportunism   float64        `db:"opportunism"`
	Paranoia      float64        `db:"paranoia"`
	Hunger        float64        `db:"hunger"`
	Fatigue       float64        `db:"fatigue"`
	MoodLabel     string         `db:"mood_label"`
	MoodArousal   float64        `db:"mood_arousal"`
	MoodValence   float64        `db:"mood_valence"`
	Faction       string         `db:"faction"`
	GoalsJSON     string         `db:"goals_json"`
	VoiceJSON     sql.NullString `db:"voice_json"`
	Backstory     string         `db:"backstory"`
	DialogueStyle string         `db:"dialogue_style"`
	CreatedAt     time.Time      `db:"created_at"`
	LastActiveAt  time.Time      `db:"last_active_at"`
}

func agentToRow(a *types.Agent) (agentRow, error) {
	row := agentRow{
		ID:            a.ID,
		Name:          a.Name,
		Role:          a.Role,
		Zone:          a.Location.Zone,
		Curiosity:     a.Personality.Curiosity,
		Empathy:       a.Personality.Empathy,
		RiskTolerance: a.Personality.RiskTolerance,
		Aggression:    a.Personality.Aggression,
		Discipline:    a.Personality.Discipline,
		Romanticism:   a.Personality.Romanticism,
		Opportunism:   a.Personality.Opportunism,
		Paranoia:      a.Personality.Paranoia,
		Hunger:        a.Vitals.Hunger,
		Fatigue:       a.Vitals.Fatigue,
		MoodLabel:     a.Mood.Label,
		MoodArousal:   a.Mood.Arousal,
		MoodValence:   a.Mood.Valence,
		Faction:       a.Faction,
		Backstory:     a.Backstory,
		DialogueStyle: a.DialogueStyle,
		CreatedAt:     a.CreatedAt,
		LastActiveAt:  a.LastActiveAt,
	}

	if a.Location.Position != nil {
		b, err := json.Marshal(a.Location.Position)
		if err != nil {
			return row, fmt.Errorf("marshal position: %w", err)
		}
		row.PositionJSON = sql.NullString{String: string(b), Valid: true}
	}

	goals := a.Goals
	if goals == nil {
		goals = []types.Goal{}
	}
	gb, err := json.Marshal(goals)
	if err != nil {
		return row, fmt.Errorf("marshal goals: %w", err)
	}
	row.GoalsJSON = string(gb)

	if a.Voice != nil {
		vb, err := json.Marshal(a.Voice)
		if err != nil {
			return row, fmt.Errorf("marshal voice: %w", err)
		}
		row.VoiceJSON = sql.NullString{String: string(vb), Valid: true}
	}
	return row, nil
}

func (r agentRow) toAgent() (*types.Agent, error) {
	a := &types.Agent{
		ID:   r.ID,
		Name: r.Name,
		Role: r.Role,
		Location: types.Location{
			Zone: r.Zone,
		},
		Personality: types.Personality{
			Curiosity:     r.Curiosity,
			Empathy:       r.Empathy,
			RiskTolerance: r.RiskTolerance,
			Aggression:    r.Aggression,
			Discipline:    r.Discipline,
			Romanticism:   r.Romanticism,
			Opportunism:   r.Opportunism,
			Paranoia:      r.Paranoia,
		},
		Vitals: types.Vitals{Hunger: r.Hunger, Fatigue: r.Fatigue},
		Mood: types.Mood{
			Label:   r.MoodLabel,
			Arousal: r.MoodArousal,
			Valence: r.MoodValence,
		},
		Faction:       r.Faction,
		Backstory:     r.Backstory,
		DialogueStyle: r.DialogueStyle,
		CreatedAt:     r.CreatedAt,
		LastActiveAt:  r.LastActiveAt,
	}

	if r.PositionJSON.Valid {
		var pos types.Position
		if err := json.Unmarshal([]byte(r.PositionJSON.String), &pos); err != nil {
			return nil, fmt.Errorf("unmarshal position: %w", err)
		}
		a.Location.Position = &pos
	}
	if r.GoalsJSON != "" {
		if err := json.Unmarshal([]byte(r.GoalsJSON), &a.Goals); err != nil {
			return nil, fmt.Errorf("unmarshal goals: %w", err)
		}
	}
	if r.VoiceJSON.Valid {
		var voice types.VoiceFingerprint
		if err := json.Unmarshal([]byte(r.VoiceJSON.String), &voice); err != nil {
			return nil, fmt.Errorf("unmarshal voice: %w", err)
		}
		a.Voice = &voice
	}
	return a, nil
}

const agentColumns = `
	id, name, role, zone, position_json,
	curiosity, empathy, risk_tolerance, aggression,
	discipline, romanticism, opportunism, paranoia,
	hunger, fatigue, mood_label, mood_arousal, mood_valence,
	faction, goals_json, voice_json, backstory, dialogue_style,
	created_at, last_active_at`

// PutAgent inserts or replaces the complete agent record.
func (s *Store) PutAgent(ctx context.Context, a types.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("store: put agent: agent must have an id")
	}
	row, err := agentToRow(&a)
	if err != nil {
		return fmt.Errorf("store: put agent %s: %w", a.ID, err)
	}

	const query = `
		INSERT INTO agents (` + agentColumns + `)
		VALUES (
			:id, :name, :role, :zone, :position_json,
			:curiosity, :empathy, :risk_tolerance, :aggression,
			:discipline, :romanticism, :opportunism, :paranoia,
			:hunger, :fatigue, :mood_label, :mood_arousal, :mood_valence,
			:faction, :goals_json, :voice_json, :backstory, :dialogue_style,
			:created_at, :last_active_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			zone = excluded.zone,
			position_json = excluded.position_json,
			curiosity = excluded.curiosity,
			empathy = excluded.empathy,
			risk_tolerance = excluded.risk_tolerance,
			aggression = excluded.aggression,
			discipline = excluded.discipline,
			romanticism = excluded.romanticism,
			opportunism = excluded.opportunism,
			paranoia = excluded.paranoia,
			hunger = excluded.hunger,
			fatigue = excluded.fatigue,
			mood_label = excluded.mood_label,
			mood_arousal = excluded.mood_arousal,
			mood_valence = excluded.mood_valence,
			faction = excluded.faction,
			goals_json = excluded.goals_json,
			voice_json = excluded.voice_json,
			backstory = excluded.backstory,
			dialogue_style = excluded.dialogue_style,
			created_at = excluded.created_at,
			last_active_at = excluded.last_active_at`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("store: put agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent by id. Returns (nil, nil) when no agent with
// that id exists.
func (s *Store) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	var row agentRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent %s: %w", id, err)
	}
	a, err := row.toAgent()
	if err != nil {
		return nil, fmt.Errorf("store: get agent %s: %w", id, err)
	}
	return a, nil
}

// ListAgents returns all agents ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]types.Agent, error) {
	return s.selectAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
}

// ListAgentsInZone returns all agents in the given zone, ordered by id.
func (s *Store) ListAgentsInZone(ctx context.Context, zone string) ([]types.Agent, error) {
	return s.selectAgents(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE zone = ? ORDER BY id`, zone)
}

// ListAgentIDs returns every agent id, ordered. The stable ordering seeds
// per-agent randomness deterministically.
func (s *Store) ListAgentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM agents ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: list agent ids: %w", err)
	}
	return ids, nil
}

// CountAgents returns the number of agent records.
func (s *Store) CountAgents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM agents`); err != nil {
		return 0, fmt.Errorf("store: count agents: %w", err)
	}
	return n, nil
}

func (s *Store) selectAgents(ctx context.Context, query string, args ...any) ([]types.Agent, error) {
	var rows []agentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	agents := make([]types.Agent, 0, len(rows))
	for _, row := range rows {
		a, err := row.toAgent()
		if err != nil {
			return nil, fmt.Errorf("store: list agents: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, nil
}
