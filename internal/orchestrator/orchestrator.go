// Package orchestrator runs multi-agent conversations. A group ties one
// player to up to [MaxGroupSize] agents; each player message becomes one
// round: participants are scored for salience, the oracle plans the ordered
// speaker turns, and the standard per-agent effects commit turn by turn so
// later speakers react to earlier lines.
//
// Group state is shared by every boundary: a conversation started over HTTP
// continues over the socket and vice versa. Rounds within one group are
// serialized; distinct groups proceed concurrently.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/brain"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/oracle"
	"github.com/solmae/animus/internal/phonetic"
	"github.com/solmae/animus/internal/tier"
	"github.com/solmae/animus/pkg/types"
)

// The scheduler reads live conversation membership from the manager.
var _ tier.Conversed = (*Manager)(nil)

const (
	// MaxGroupSize caps the agents in one conversation.
	MaxGroupSize = 6

	// DefaultIdleTimeout expires groups with no activity.
	DefaultIdleTimeout = 10 * time.Minute

	// transcriptCap bounds the per-group transcript; older lines fall off.
	transcriptCap = 200

	// historyContext is how many transcript lines feed the planning prompt.
	historyContext = 5
)

// Tension movement per round: each disagreement or interruption raises it,
// each agreement eases it.
const (
	tensionRaise = 0.15
	tensionEase  = 0.05
)

// Planner produces the ordered turn plan for one group round.
type Planner interface {
	Orchestrate(ctx context.Context, req oracle.OrchestrateRequest) ([]types.GroupUtterance, error)
}

// Responder commits the standard per-agent effects for one planned turn.
// *brain.Engine satisfies it.
type Responder interface {
	Converse(ctx context.Context, req brain.ConverseRequest) (*brain.InteractResult, error)
}

// Locator answers who is close enough to join an auto-filled group.
// *proximity.Index satisfies it.
type Locator interface {
	Location(id string) (types.Location, bool)
	Nearby(loc types.Location, exclude string) []string
}

// Familiarity reads pair familiarity for salience scoring.
// *relation.Engine satisfies it.
type Familiarity interface {
	Trust(ctx context.Context, from, to string) (trust, familiarity float64, err error)
}

// Config wires a [Manager]. Agents, Brain and Planner are required.
type Config struct {
	// Agents is the live actor runtime.
	Agents *agent.Runtime

	// Brain commits per-speaker effects.
	Brain Responder

	// Planner turns one round into ordered speaker turns.
	Planner Planner

	// Proximity fills auto-started groups; nil requires explicit rosters.
	Proximity Locator

	// Relations feeds familiarity into salience; nil scores it zero.
	Relations Familiarity

	// Setting frames the planning prompt. Defaults to [brain.DefaultSetting].
	Setting string

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides the wall-clock source, for tests.
	Now func() time.Time

	// IdleTimeout expires silent groups. Default: 10m.
	IdleTimeout time.Duration

	// MaxSize caps participants per group. Default: [MaxGroupSize].
	MaxSize int
}

func (c *Config) setDefaults() {
	if c.Setting == "" {
		c.Setting = brain.DefaultSetting
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxSize <= 0 {
		c.MaxSize = MaxGroupSize
	}
}

// Manager holds every live conversation group. Safe for concurrent use;
// rounds within one group are serialized, groups proceed independently.
type Manager struct {
	agents    *agent.Runtime
	brain     Responder
	planner   Planner
	prox      Locator
	relations Familiarity
	matcher   *phonetic.Matcher
	setting   string
	log       *slog.Logger
	now       func() time.Time
	idle      time.Duration
	maxSize   int

	mu      sync.RWMutex
	groups  map[string]*group
	byAgent map[string]map[string]struct{} // agent id → group ids
}

// New creates a [Manager] from cfg.
func New(cfg Config) (*Manager, error) {
	if cfg.Agents == nil {
		return nil, fault.New(fault.InvalidArgument, "orchestrator: agent runtime must not be nil")
	}
	if cfg.Brain == nil {
		return nil, fault.New(fault.InvalidArgument, "orchestrator: brain must not be nil")
	}
	if cfg.Planner == nil {
		return nil, fault.New(fault.InvalidArgument, "orchestrator: planner must not be nil")
	}
	cfg.setDefaults()
	return &Manager{
		agents:    cfg.Agents,
		brain:     cfg.Brain,
		planner:   cfg.Planner,
		prox:      cfg.Proximity,
		relations: cfg.Relations,
		matcher:   phonetic.New(),
		setting:   cfg.Setting,
		log:       cfg.Logger.With("component", "orchestrator"),
		now:       cfg.Now,
		idle:      cfg.IdleTimeout,
		maxSize:   cfg.MaxSize,
		groups:    make(map[string]*group),
		byAgent:   make(map[string]map[string]struct{}),
	}, nil
}

// ─── group state ─────────────────────────────────────────────────────────────

// Message is one transcript line: the player, an agent, or the system.
type Message struct {
	SpeakerID   string             `json:"speaker_id"`
	SpeakerName string             `json:"speaker_name"`
	Text        string             `json:"text"`
	Type        types.ResponseType `json:"type,omitempty"`
	AddressedTo string             `json:"addressed_to,omitempty"`
	At          time.Time          `json:"at"`
}

// Member is one agent's seat in a group.
type Member struct {
	AgentID     string    `json:"agent_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSpokeAt time.Time `json:"last_spoke_at"`
	Statements  int       `json:"statements"`
}

// GroupState is the externally visible snapshot of a group.
type GroupState struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name,omitempty"`
	Location   string    `json:"location,omitempty"`
	Topic      string    `json:"topic"`
	Tension    float64   `json:"tension"`
	Active     bool      `json:"active"`
	Rounds     int       `json:"rounds"`
	StartedAt  time.Time `json:"started_at"`
	LastActive time.Time `json:"last_active"`
	Members    []Member  `json:"members"`
	Transcript []Message `json:"transcript,omitempty"`
}

// Response is one committed speaker turn of a round.
type Response struct {
	AgentID     string             `json:"agent_id"`
	AgentName   string             `json:"agent_name"`
	Type        types.ResponseType `json:"type"`
	AddressedTo string             `json:"addressed_to,omitempty"`
	Dialogue    string             `json:"dialogue"`
	Mood        types.Mood         `json:"mood"`
	TrustDelta  float64            `json:"trust_delta"`
	Fallback    bool               `json:"fallback,omitempty"`
}

// Exchange is the outcome of one player message to a group.
type Exchange struct {
	GroupID   string     `json:"group_id"`
	Round     int        `json:"round"`
	Responses []Response `json:"responses"`
	Tension   float64    `json:"tension"`

	// Fallback reports that the planning pass degraded and the round ran on
	// the deterministic default plan.
	Fallback bool `json:"fallback,omitempty"`
}

// group is one live conversation. The convo mutex serializes rounds; the
// state mutex guards the cheap fields and is never held across provider or
// store calls.
type group struct {
	id         string
	playerID   string
	playerName string
	location   string

	convoMu sync.Mutex

	mu         sync.Mutex
	topic      string
	tension    float64
	round      int
	startedAt  time.Time
	lastActive time.Time
	members    map[string]*member
	order      []string // member ids in join order
	transcript []Message
}

// member tracks one participant's speaking history.
type member struct {
	id         string
	name       string
	role       string
	joinedAt   time.Time
	lastSpoke  time.Time
	lastRound  int
	statements int
}

// expired reports whether the group idled out. Caller must not hold g.mu.
func (g *group) expired(now time.Time, idle time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return now.Sub(g.lastActive) > idle
}

// snapshot renders the external view. Caller must not hold g.mu.
func (g *group) snapshot(active bool) *GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := &GroupState{
		ID:         g.id,
		PlayerID:   g.playerID,
		PlayerName: g.playerName,
		Location:   g.location,
		Topic:      g.topic,
		Tension:    g.tension,
		Active:     active,
		Rounds:     g.round,
		StartedAt:  g.startedAt,
		LastActive: g.lastActive,
		Members:    make([]Member, 0, len(g.members)),
		Transcript: append([]Message(nil), g.transcript...),
	}
	for _, id := range g.order {
		mb := g.members[id]
		st.Members = append(st.Members, Member{
			AgentID:     mb.id,
			Name:        mb.name,
			Role:        mb.role,
			JoinedAt:    mb.joinedAt,
			LastSpokeAt: mb.lastSpoke,
			Statements:  mb.statements,
		})
	}
	return st
}

// append adds a transcript line and refreshes activity. Caller holds g.mu.
func (g *group) append(msg Message) {
	g.transcript = append(g.transcript, msg)
	if len(g.transcript) > transcriptCap {
		g.transcript = g.transcript[len(g.transcript)-transcriptCap:]
	}
	g.lastActive = msg.At
}

// ─── lifecycle ───────────────────────────────────────────────────────────────

// Start opens a group for a player. An empty npcIDs roster auto-fills from
// proximity around the player; either way the group needs at least one
// agent. Rosters longer than the size cap are truncated.
func (m *Manager) Start(playerID, playerName string, npcIDs []string, location string) (*GroupState, error) {
	if playerID == "" {
		return nil, fault.New(fault.InvalidArgument, "orchestrator: player id must not be empty")
	}

	if len(npcIDs) == 0 {
		npcIDs = m.autoFill(playerID)
	}

	now := m.now()
	members := make(map[string]*member)
	var order []string
	for _, id := range npcIDs {
		if id == "" || id == playerID {
			continue
		}
		if _, ok := members[id]; ok {
			continue
		}
		if len(order) == m.maxSize {
			break
		}
		snap, err := m.agents.Snapshot(id)
		if err != nil {
			return nil, err
		}
		members[id] = &member{id: id, name: snap.Name, role: snap.Role, joinedAt: now}
		order = append(order, id)
	}
	if len(order) == 0 {
		return nil, fault.New(fault.InvalidArgument, "orchestrator: no agents available for conversation")
	}

	g := &group{
		id:         "conv-" + uuid.NewString()[:8],
		playerID:   playerID,
		playerName: playerName,
		location:   location,
		topic:      "general",
		startedAt:  now,
		lastActive: now,
		members:    members,
		order:      order,
	}

	m.mu.Lock()
	m.groups[g.id] = g
	for id := range members {
		m.indexLocked(id, g.id)
	}
	m.mu.Unlock()

	m.log.Info("conversation started",
		"group", g.id, "player", playerID, "participants", len(order), "location", location)
	return g.snapshot(true), nil
}

// autoFill picks conversation partners around the player, nearest first.
// Entries the runtime does not know (other players, stale index rows) are
// skipped.
func (m *Manager) autoFill(playerID string) []string {
	if m.prox == nil {
		return nil
	}
	loc, ok := m.prox.Location(playerID)
	if !ok {
		return nil
	}
	var ids []string
	for _, id := range m.prox.Nearby(loc, playerID) {
		if _, err := m.agents.Snapshot(id); err != nil {
			continue
		}
		ids = append(ids, id)
		if len(ids) == m.maxSize {
			break
		}
	}
	return ids
}

// AddAgent seats another agent in a live group and notes the arrival in the
// transcript.
func (m *Manager) AddAgent(groupID, npcID string) (*GroupState, error) {
	g, err := m.live(groupID)
	if err != nil {
		return nil, err
	}
	snap, err := m.agents.Snapshot(npcID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if _, ok := g.members[npcID]; ok {
		g.mu.Unlock()
		return nil, fault.Errorf(fault.InvalidArgument, "orchestrator: agent %q already in group %q", npcID, groupID)
	}
	if len(g.members) >= m.maxSize {
		g.mu.Unlock()
		return nil, fault.Errorf(fault.InvalidArgument, "orchestrator: group %q is full", groupID)
	}
	now := m.now()
	g.members[npcID] = &member{id: npcID, name: snap.Name, role: snap.Role, joinedAt: now}
	g.order = append(g.order, npcID)
	g.append(Message{
		SpeakerID:   "system",
		SpeakerName: "system",
		Text:        snap.Name + " has joined the conversation.",
		At:          now,
	})
	g.mu.Unlock()

	m.mu.Lock()
	m.indexLocked(npcID, groupID)
	m.mu.Unlock()

	m.log.Info("agent joined conversation", "group", groupID, "agent", npcID)
	return g.snapshot(true), nil
}

// RemoveAgent unseats an agent. Removing the last agent ends the group.
func (m *Manager) RemoveAgent(groupID, npcID string) (*GroupState, error) {
	g, err := m.live(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if _, ok := g.members[npcID]; !ok {
		g.mu.Unlock()
		return nil, fault.Errorf(fault.InvalidArgument, "orchestrator: agent %q is not in group %q", npcID, groupID)
	}
	delete(g.members, npcID)
	for i, id := range g.order {
		if id == npcID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	empty := len(g.members) == 0
	g.mu.Unlock()

	m.mu.Lock()
	m.unindexLocked(npcID, groupID)
	m.mu.Unlock()

	m.log.Info("agent left conversation", "group", groupID, "agent", npcID)
	if empty {
		return m.End(groupID)
	}
	return g.snapshot(true), nil
}

// End finalizes a group and returns its last state. Further operations on
// the id report [fault.GroupClosed].
func (m *Manager) End(groupID string) (*GroupState, error) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if ok {
		m.dropLocked(g)
	}
	m.mu.Unlock()
	if !ok {
		return nil, fault.Errorf(fault.GroupClosed, "orchestrator: group %q not found", groupID)
	}

	st := g.snapshot(false)
	m.log.Info("conversation ended",
		"group", groupID, "rounds", st.Rounds, "participants", len(st.Members))
	return st, nil
}

// Get returns the current state of a live group.
func (m *Manager) Get(groupID string) (*GroupState, error) {
	g, err := m.live(groupID)
	if err != nil {
		return nil, err
	}
	return g.snapshot(true), nil
}

// ByPlayer returns the live groups a player is part of, oldest first.
func (m *Manager) ByPlayer(playerID string) []*GroupState {
	now := m.now()

	m.mu.RLock()
	var live []*group
	for _, g := range m.groups {
		if g.playerID == playerID {
			live = append(live, g)
		}
	}
	m.mu.RUnlock()

	var out []*GroupState
	for _, g := range live {
		if g.expired(now, m.idle) {
			continue
		}
		out = append(out, g.snapshot(true))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// ByAgent returns the live groups an agent is seated in, oldest first.
func (m *Manager) ByAgent(npcID string) []*GroupState {
	now := m.now()

	m.mu.RLock()
	var live []*group
	for gid := range m.byAgent[npcID] {
		if g, ok := m.groups[gid]; ok {
			live = append(live, g)
		}
	}
	m.mu.RUnlock()

	var out []*GroupState
	for _, g := range live {
		if g.expired(now, m.idle) {
			continue
		}
		out = append(out, g.snapshot(true))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// InConversation reports whether an agent sits in any live group. The
// scheduler promotes such agents to the Active tier.
func (m *Manager) InConversation(agentID string) bool {
	now := m.now()

	m.mu.RLock()
	var live []*group
	for gid := range m.byAgent[agentID] {
		if g, ok := m.groups[gid]; ok {
			live = append(live, g)
		}
	}
	m.mu.RUnlock()

	for _, g := range live {
		if !g.expired(now, m.idle) {
			return true
		}
	}
	return false
}

// Sweep drops idle-expired groups and returns how many were closed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var stale []*group
	for _, g := range m.groups {
		if g.expired(now, m.idle) {
			stale = append(stale, g)
		}
	}
	for _, g := range stale {
		m.dropLocked(g)
	}
	m.mu.Unlock()

	for _, g := range stale {
		m.log.Info("conversation expired", "group", g.id)
	}
	return len(stale)
}

// Stats summarizes the registry for health and metrics reporting.
type Stats struct {
	Groups       int `json:"groups"`
	Participants int `json:"participants"`
}

// Stats counts live groups and seated agents.
func (m *Manager) Stats() Stats {
	now := m.now()

	m.mu.RLock()
	live := make([]*group, 0, len(m.groups))
	for _, g := range m.groups {
		live = append(live, g)
	}
	m.mu.RUnlock()

	var st Stats
	for _, g := range live {
		if g.expired(now, m.idle) {
			continue
		}
		st.Groups++
		g.mu.Lock()
		st.Participants += len(g.members)
		g.mu.Unlock()
	}
	return st
}

// ─── registry plumbing ───────────────────────────────────────────────────────

// live resolves a group id, expiring it on the way when it idled out.
func (m *Manager) live(groupID string) (*group, error) {
	m.mu.RLock()
	g, ok := m.groups[groupID]
	m.mu.RUnlock()
	if !ok {
		return nil, fault.Errorf(fault.GroupClosed, "orchestrator: group %q not found", groupID)
	}

	if g.expired(m.now(), m.idle) {
		m.mu.Lock()
		m.dropLocked(g)
		m.mu.Unlock()
		m.log.Info("conversation expired", "group", groupID)
		return nil, fault.Errorf(fault.GroupClosed, "orchestrator: group %q has expired", groupID)
	}
	return g, nil
}

// dropLocked removes a group and its agent index entries. Caller holds m.mu.
func (m *Manager) dropLocked(g *group) {
	if _, ok := m.groups[g.id]; !ok {
		return
	}
	delete(m.groups, g.id)

	g.mu.Lock()
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		m.unindexLocked(id, g.id)
	}
}

func (m *Manager) indexLocked(agentID, groupID string) {
	set, ok := m.byAgent[agentID]
	if !ok {
		set = make(map[string]struct{})
		m.byAgent[agentID] = set
	}
	set[groupID] = struct{}{}
}

func (m *Manager) unindexLocked(agentID, groupID string) {
	set, ok := m.byAgent[agentID]
	if !ok {
		return
	}
	delete(set, groupID)
	if len(set) == 0 {
		delete(m.byAgent, agentID)
	}
}

// ─── rounds ──────────────────────────────────────────────────────────────────

// Message runs one round: record the player line, rank and plan the
// speakers, commit each turn in order, then settle tension. A degraded
// planning pass falls back to the top-ranked participant answering
// directly; the round itself never fails on oracle trouble.
func (m *Manager) Message(ctx context.Context, groupID, text, target string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fault.New(fault.InvalidArgument, "orchestrator: message must not be empty")
	}
	g, err := m.live(groupID)
	if err != nil {
		return nil, err
	}

	g.convoMu.Lock()
	defer g.convoMu.Unlock()

	// The group may have ended while this round waited its turn.
	m.mu.RLock()
	_, ok := m.groups[groupID]
	m.mu.RUnlock()
	if !ok {
		return nil, fault.Errorf(fault.GroupClosed, "orchestrator: group %q not found", groupID)
	}

	ri := m.openRound(g, text)

	picks, addressee := m.rankSpeakers(ctx, ri, text, target)
	if len(picks) == 0 {
		// Every seat failed to resolve; the group has nothing left to say.
		_, _ = m.End(groupID)
		return nil, fault.Errorf(fault.GroupClosed, "orchestrator: group %q has no participants left", groupID)
	}

	turns, fallback := m.plan(ctx, ri, text, picks, addressee)
	turns = validateTurns(turns, ri.members, g.playerID)
	if len(turns) == 0 {
		turns = fallbackPlan(picks, g.playerID)
		fallback = true
	}

	ex := &Exchange{GroupID: g.id, Round: ri.round, Fallback: fallback}
	for _, turn := range turns {
		res, err := m.brain.Converse(ctx, brain.ConverseRequest{
			AgentID:     turn.Speaker,
			PlayerID:    g.playerID,
			PlayerName:  g.playerName,
			Message:     text,
			Dialogue:    turn.Dialogue,
			Response:    turn.Type,
			AddressedTo: turn.AddressedTo,
			Witnesses:   witnessesOf(ri.members, turn.Speaker),
			Fallback:    fallback,
		})
		if err != nil {
			m.log.Warn("group turn failed", "group", g.id, "agent", turn.Speaker, "error", err)
			continue
		}
		ex.Responses = append(ex.Responses, Response{
			AgentID:     res.AgentID,
			AgentName:   res.AgentName,
			Type:        turn.Type,
			AddressedTo: turn.AddressedTo,
			Dialogue:    res.Frame.Dialogue,
			Mood:        res.Mood,
			TrustDelta:  res.TrustDelta,
			Fallback:    res.Fallback,
		})
		m.recordTurn(g, res.AgentID, res.AgentName, res.Frame.Dialogue, turn, ri.round)
	}

	ex.Tension = m.settleTension(g, ex.Responses)

	m.log.Debug("round complete",
		"group", g.id,
		"round", ri.round,
		"speakers", len(ex.Responses),
		"tension", ex.Tension,
		"fallback", fallback,
	)
	return ex, nil
}

// openRound drops seats whose agent no longer exists, records the player
// line, advances the round counter and snapshots everything the planning
// pass needs.
func (m *Manager) openRound(g *group, text string) *roundInput {
	now := m.now()

	g.mu.Lock()
	ids := append([]string(nil), g.order...)
	g.mu.Unlock()

	snaps := make(map[string]*types.Agent, len(ids))
	var vanished []string
	for _, id := range ids {
		snap, err := m.agents.Snapshot(id)
		if err != nil {
			vanished = append(vanished, id)
			continue
		}
		snaps[id] = snap
	}
	if len(vanished) > 0 {
		g.mu.Lock()
		for _, id := range vanished {
			m.log.Warn("dropping vanished participant", "group", g.id, "agent", id)
			delete(g.members, id)
			for i, oid := range g.order {
				if oid == id {
					g.order = append(g.order[:i], g.order[i+1:]...)
					break
				}
			}
		}
		g.mu.Unlock()

		m.mu.Lock()
		for _, id := range vanished {
			m.unindexLocked(id, g.id)
		}
		m.mu.Unlock()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.round++
	playerName := g.playerName
	if playerName == "" {
		playerName = g.playerID
	}

	// History is captured before the player line goes in; the round prompt
	// quotes the current message separately.
	var history []Message
	if n := len(g.transcript); n > historyContext {
		history = append(history, g.transcript[n-historyContext:]...)
	} else {
		history = append(history, g.transcript...)
	}

	g.append(Message{
		SpeakerID:   g.playerID,
		SpeakerName: playerName,
		Text:        text,
		At:          now,
	})
	if topic := strongestTopic(text); topic != "" {
		g.topic = topic
	}

	ri := &roundInput{
		groupID:    g.id,
		playerID:   g.playerID,
		playerName: playerName,
		location:   g.location,
		topic:      g.topic,
		tension:    g.tension,
		round:      g.round,
	}
	for _, id := range g.order {
		mb := g.members[id]
		snap := snaps[id]
		if snap == nil {
			continue
		}
		ms := memberSnap{
			id:         mb.id,
			name:       mb.name,
			role:       mb.role,
			lastRound:  mb.lastRound,
			statements: mb.statements,
			mood:       snap.Mood.Label,
			traits:     strings.Join(snap.TraitSummary(), ", "),
			paranoia:   snap.Personality.Get(types.TraitParanoia),
			curiosity:  snap.Personality.Get(types.TraitCuriosity),
			empathy:    snap.Personality.Get(types.TraitEmpathy),
			aggression: snap.Personality.Get(types.TraitAggression),
		}
		if ms.mood == "" {
			ms.mood = "neutral"
		}
		if !mb.lastSpoke.IsZero() {
			ms.silentFor = now.Sub(mb.lastSpoke)
			ms.spoke = true
		} else {
			ms.silentFor = now.Sub(mb.joinedAt)
		}
		ri.members = append(ri.members, ms)
	}
	ri.history = history
	return ri
}

// recordTurn appends a committed turn to the transcript and updates the
// speaker's seat.
func (m *Manager) recordTurn(g *group, agentID, agentName, dialogue string, turn types.GroupUtterance, round int) {
	now := m.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.append(Message{
		SpeakerID:   agentID,
		SpeakerName: agentName,
		Text:        dialogue,
		Type:        turn.Type,
		AddressedTo: turn.AddressedTo,
		At:          now,
	})
	if mb, ok := g.members[agentID]; ok {
		mb.lastSpoke = now
		mb.lastRound = round
		mb.statements++
	}
}

// settleTension applies the round's response mix to the group tension.
func (m *Manager) settleTension(g *group, responses []Response) float64 {
	var raise, ease int
	for _, r := range responses {
		switch {
		case r.Type.RaisesTension():
			raise++
		case r.Type == types.ResponseAgreement:
			ease++
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.tension = types.ClampUnit(g.tension + tensionRaise*float64(raise) - tensionEase*float64(ease))
	return g.tension
}

// witnessesOf lists every seat except the speaker.
func witnessesOf(members []memberSnap, speaker string) []string {
	var out []string
	for _, mb := range members {
		if mb.id != speaker {
			out = append(out, mb.id)
		}
	}
	return out
}
