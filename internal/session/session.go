// Package session tracks player presence. One session exists per player id
// and records the display name, first and last contact, the interaction
// count, and the player's last reported location.
//
// The manager feeds two consumers: the brain logs exchanges through it, and
// the scheduler reads agent liveness (which agents a player touched recently,
// which zones hold a live player) to assign update tiers.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/solmae/animus/internal/brain"
	"github.com/solmae/animus/pkg/types"
)

// Manager satisfies the brain's exchange log.
var _ brain.SessionLog = (*Manager)(nil)

// DefaultIdleAfter is how long a silent player counts as present. Sessions
// older than this drop out of PlayerZones and ActivePlayers.
const DefaultIdleAfter = 5 * time.Minute

// Session is the bookkeeping for one player.
type Session struct {
	PlayerID     string         `json:"player_id"`
	PlayerName   string         `json:"player_name,omitempty"`
	Location     types.Location `json:"location"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastSeen     time.Time      `json:"last_seen"`
	Interactions int            `json:"interactions"`

	// LastAgentID is the agent of the most recent exchange.
	LastAgentID string `json:"last_agent_id,omitempty"`
}

// Config tunes a [Manager]. Zero values take defaults.
type Config struct {
	// IdleAfter bounds how long a quiet session still counts as present.
	// Default: 5m.
	IdleAfter time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Manager holds all live player sessions. Safe for concurrent use.
type Manager struct {
	idleAfter time.Duration
	log       *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	// agentTouch records the last player exchange per agent id, feeding the
	// Active tier.
	agentTouch map[string]time.Time
}

// NewManager creates an empty [Manager].
func NewManager(cfg Config) *Manager {
	cfg.setDefaults()
	return &Manager{
		idleAfter:  cfg.IdleAfter,
		log:        cfg.Logger.With("component", "session"),
		now:        cfg.Now,
		sessions:   make(map[string]*Session),
		agentTouch: make(map[string]time.Time),
	}
}

// Touch creates or refreshes the session for a player. A non-empty name
// updates the stored display name.
func (m *Manager) Touch(_ context.Context, playerID, playerName string) error {
	if playerID == "" {
		return nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[playerID]
	if !ok {
		s = &Session{PlayerID: playerID, FirstSeen: now}
		m.sessions[playerID] = s
		m.log.Info("player session started", "player", playerID, "name", playerName)
	}
	if playerName != "" {
		s.PlayerName = playerName
	}
	s.LastSeen = now
	return nil
}

// LogExchange records one completed exchange between a player and an agent.
// The agent's touch time feeds the Active scheduling tier.
func (m *Manager) LogExchange(_ context.Context, playerID, agentID, action, dialogue string, repChange float64) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[playerID]
	if !ok {
		s = &Session{PlayerID: playerID, FirstSeen: now}
		m.sessions[playerID] = s
	}
	s.LastSeen = now
	s.Interactions++
	s.LastAgentID = agentID
	if agentID != "" {
		m.agentTouch[agentID] = now
	}

	m.log.Debug("exchange logged",
		"player", playerID,
		"agent", agentID,
		"rep_change", repChange,
		"action_len", len(action),
		"dialogue_len", len(dialogue),
	)
	return nil
}

// SetLocation updates the player's reported location and refreshes liveness.
func (m *Manager) SetLocation(playerID string, loc types.Location) {
	if playerID == "" {
		return
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[playerID]
	if !ok {
		s = &Session{PlayerID: playerID, FirstSeen: now}
		m.sessions[playerID] = s
	}
	s.Location = loc
	s.LastSeen = now
}

// Get returns a copy of the session for a player, or false when none exists.
func (m *Manager) Get(playerID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[playerID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Sessions returns copies of all sessions, sorted by player id.
func (m *Manager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Count returns the number of sessions, present or idle.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ActivePlayers returns the ids of players seen within the idle window.
func (m *Manager) ActivePlayers() []string {
	cutoff := m.now().Add(-m.idleAfter)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, s := range m.sessions {
		if !s.LastSeen.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// PlayerZones returns the set of zones holding at least one present player.
// Agents in these zones schedule at the Nearby tier.
func (m *Manager) PlayerZones() map[string]bool {
	cutoff := m.now().Add(-m.idleAfter)

	m.mu.RLock()
	defer m.mu.RUnlock()

	zones := make(map[string]bool)
	for _, s := range m.sessions {
		if s.LastSeen.Before(cutoff) || s.Location.Zone == "" {
			continue
		}
		zones[s.Location.Zone] = true
	}
	return zones
}

// LastAgentTouch returns when a player last exchanged with the given agent;
// the zero time means never.
func (m *Manager) LastAgentTouch(agentID string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agentTouch[agentID]
}
