// Package gateway is the WebSocket surface of the animus server. One
// connection serves one player: requests arrive as typed JSON envelopes,
// responses echo the request id, and world events stream in between
// requests on the channels the client subscribed to.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/brain"
	"github.com/solmae/animus/internal/cache"
	"github.com/solmae/animus/internal/clock"
	"github.com/solmae/animus/internal/faction"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/orchestrator"
	"github.com/solmae/animus/internal/proximity"
	"github.com/solmae/animus/internal/session"
	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/internal/voice"
	"github.com/solmae/animus/pkg/provider/stt"
	"github.com/solmae/animus/pkg/provider/tts"
	"github.com/solmae/animus/pkg/types"
)

// Speech is the slice of the oracle the voice messages drive.
// *oracle.Oracle satisfies it.
type Speech interface {
	Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error)
	Transcribe(ctx context.Context, clip stt.Clip) (*stt.Transcript, error)
}

// Envelope is the wire frame in both directions. Data carries the typed
// payload; RequestID ties a response back to the request that caused it and
// is empty on server-initiated pushes.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config wires a [Handler]. Agents, Brain, Store and Events are required;
// nil optional dependencies disable the matching message types, which then
// answer with an invalid_argument error envelope.
type Config struct {
	// Agents is the live actor runtime.
	Agents *agent.Runtime

	// Brain runs single-NPC interactions.
	Brain *brain.Engine

	// Store backs cold agent reads.
	Store *store.Store

	// AgentCache fronts store reads; nil disables the cached path.
	AgentCache *cache.Cache[string, *types.Agent]

	// Events is the world event ring every connection subscribes to.
	Events *clock.EventLog

	// Factions serves get_factions; nil disables it.
	Factions *faction.Engine

	// Conversations serves the conversation_* messages; nil disables them.
	Conversations *orchestrator.Manager

	// Sessions tracks player liveness and location.
	Sessions *session.Manager

	// Proximity resolves witnesses for npc_action.
	Proximity *proximity.Index

	// Speech serves voice_generate and speech_transcribe; nil disables
	// both.
	Speech Speech

	// Voices assigns base voice profiles per agent.
	Voices *voice.Assigner

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Handler upgrades /ws/game requests and serves the connection protocol.
// Create with [New], mount with [Handler.Register].
type Handler struct {
	agents        *agent.Runtime
	brain         *brain.Engine
	store         *store.Store
	agentCache    *cache.Cache[string, *types.Agent]
	events        *clock.EventLog
	factions      *faction.Engine
	conversations *orchestrator.Manager
	sessions      *session.Manager
	proximity     *proximity.Index
	speech        Speech
	voices        *voice.Assigner
	log           *slog.Logger
}

var _ http.Handler = (*Handler)(nil)

// New creates a [Handler] from cfg.
func New(cfg Config) (*Handler, error) {
	if cfg.Agents == nil {
		return nil, fault.New(fault.InvalidArgument, "gateway: agent runtime must not be nil")
	}
	if cfg.Brain == nil {
		return nil, fault.New(fault.InvalidArgument, "gateway: brain must not be nil")
	}
	if cfg.Store == nil {
		return nil, fault.New(fault.InvalidArgument, "gateway: store must not be nil")
	}
	if cfg.Events == nil {
		return nil, fault.New(fault.InvalidArgument, "gateway: event log must not be nil")
	}
	cfg.setDefaults()

	return &Handler{
		agents:        cfg.Agents,
		brain:         cfg.Brain,
		store:         cfg.Store,
		agentCache:    cfg.AgentCache,
		events:        cfg.Events,
		factions:      cfg.Factions,
		conversations: cfg.Conversations,
		sessions:      cfg.Sessions,
		proximity:     cfg.Proximity,
		speech:        cfg.Speech,
		voices:        cfg.Voices,
		log:           cfg.Logger.With("component", "gateway"),
	}, nil
}

// Register mounts the gateway on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws/game", h)
}

// ServeHTTP upgrades the request and runs the connection until the client
// goes away or the server shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}
	playerName := r.URL.Query().Get("player_name")

	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Debug("websocket accept failed", "player", playerID, "error", err)
		return
	}

	if h.sessions != nil {
		if err := h.sessions.Touch(r.Context(), playerID, playerName); err != nil {
			h.log.Warn("session touch failed", "player", playerID, "error", err)
		}
	}

	c := &conn{
		h:          h,
		sock:       sock,
		playerID:   playerID,
		playerName: playerName,
		inbound:    make(chan Envelope),
		outbound:   make(chan Envelope, outboundBuffer),
		subs:       make(map[string]bool),
		log:        h.log.With("player", playerID),
	}
	c.run(r.Context())
}

// snapshotOf resolves an agent snapshot: the live runtime first, then the
// read cache, then the store (populating the cache on the way out).
func (h *Handler) snapshotOf(ctx context.Context, id string) (*types.Agent, error) {
	if snap, err := h.agents.Snapshot(id); err == nil {
		return snap, nil
	}
	if h.agentCache != nil {
		if snap, ok := h.agentCache.Get(id); ok {
			return snap, nil
		}
	}
	snap, err := h.store.GetAgent(ctx, id)
	if err != nil {
		return nil, fault.Wrap(fault.StoreUnavailable, "load agent "+id, err)
	}
	if snap == nil {
		return nil, fault.New(fault.AgentUnknown, "agent "+id+" does not exist")
	}
	if h.agentCache != nil {
		h.agentCache.Put(id, snap)
	}
	return snap, nil
}
