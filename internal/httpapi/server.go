// Package httpapi is the HTTP surface of the animus server. One request maps
// to one core operation; handlers decode, delegate and encode, with all
// domain decisions living in the engines. Errors surface through the shared
// fault taxonomy as a JSON envelope; interactive endpoints never fail on
// model-provider trouble because the brain already degrades those to
// fallback frames.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/brain"
	"github.com/solmae/animus/internal/cache"
	"github.com/solmae/animus/internal/clock"
	"github.com/solmae/animus/internal/faction"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/npcgen"
	"github.com/solmae/animus/internal/orchestrator"
	"github.com/solmae/animus/internal/proximity"
	"github.com/solmae/animus/internal/quest"
	"github.com/solmae/animus/internal/session"
	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/internal/voice"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/provider/stt"
	"github.com/solmae/animus/pkg/provider/tts"
	"github.com/solmae/animus/pkg/types"
)

// Speech is the slice of the oracle the voice endpoints drive.
// *oracle.Oracle satisfies it.
type Speech interface {
	Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error)
	Transcribe(ctx context.Context, clip stt.Clip) (*stt.Transcript, error)
}

// Config wires a [Server]. Agents, Brain, Store, Clock and Events are
// required; a nil optional dependency disables its endpoints, which then
// answer with InvalidArgument.
type Config struct {
	// Agents is the live actor runtime.
	Agents *agent.Runtime

	// Brain runs single-NPC interactions.
	Brain *brain.Engine

	// Memory serves recall and the manual decay sweep.
	Memory *memory.Engine

	// Store backs snapshot export/import and cold agent reads.
	Store *store.Store

	// Queue reports write-behind depth on /world/stats; nil hides it.
	Queue *store.WriteBehind

	// AgentCache fronts store reads for agents that are not resident in the
	// runtime. Nil disables the degraded-read path.
	AgentCache *cache.Cache[string, *types.Agent]

	// Clock owns simulated time.
	Clock *clock.Clock

	// Events is the world event ring.
	Events *clock.EventLog

	// Factions serves the political layer; nil disables those routes.
	Factions *faction.Engine

	// Quests serves the quest lifecycle; nil disables those routes.
	Quests *quest.Engine

	// Conversations manages group conversations; nil disables those routes.
	Conversations *orchestrator.Manager

	// Sessions tracks player liveness, for /world/stats.
	Sessions *session.Manager

	// Proximity resolves witnesses for interactions and placement updates.
	Proximity *proximity.Index

	// Generator mints agents for /npc/init; nil disables it.
	Generator *npcgen.Generator

	// Speech serves /voice/generate and /speech/transcribe; nil disables
	// both.
	Speech Speech

	// Voices assigns base voice profiles per agent.
	Voices *voice.Assigner

	// RatePerSecond and RateBurst configure the per-client token bucket on
	// interactive endpoints. Zero disables throttling.
	RatePerSecond float64
	RateBurst     int

	// SnapshotDir also writes /world/snapshot exports to disk when set.
	SnapshotDir string

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Server holds the handler dependencies. Create with [New], mount with
// [Server.Routes].
type Server struct {
	agents        *agent.Runtime
	brain         *brain.Engine
	memory        *memory.Engine
	store         *store.Store
	queue         *store.WriteBehind
	agentCache    *cache.Cache[string, *types.Agent]
	clock         *clock.Clock
	events        *clock.EventLog
	factions      *faction.Engine
	quests        *quest.Engine
	conversations *orchestrator.Manager
	sessions      *session.Manager
	proximity     *proximity.Index
	generator     *npcgen.Generator
	speech        Speech
	voices        *voice.Assigner
	limiter       *limiter
	snapshotDir   string
	log           *slog.Logger
	now           func() time.Time
	startedAt     time.Time
}

// New creates a [Server] from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Agents == nil {
		return nil, fault.New(fault.InvalidArgument, "httpapi: agent runtime must not be nil")
	}
	if cfg.Brain == nil {
		return nil, fault.New(fault.InvalidArgument, "httpapi: brain must not be nil")
	}
	if cfg.Store == nil {
		return nil, fault.New(fault.InvalidArgument, "httpapi: store must not be nil")
	}
	if cfg.Clock == nil {
		return nil, fault.New(fault.InvalidArgument, "httpapi: clock must not be nil")
	}
	if cfg.Events == nil {
		return nil, fault.New(fault.InvalidArgument, "httpapi: event log must not be nil")
	}
	cfg.setDefaults()

	var lim *limiter
	if cfg.RatePerSecond > 0 {
		lim = newLimiter(cfg.RatePerSecond, cfg.RateBurst, cfg.Now)
	}

	return &Server{
		agents:        cfg.Agents,
		brain:         cfg.Brain,
		memory:        cfg.Memory,
		store:         cfg.Store,
		queue:         cfg.Queue,
		agentCache:    cfg.AgentCache,
		clock:         cfg.Clock,
		events:        cfg.Events,
		factions:      cfg.Factions,
		quests:        cfg.Quests,
		conversations: cfg.Conversations,
		sessions:      cfg.Sessions,
		proximity:     cfg.Proximity,
		generator:     cfg.Generator,
		speech:        cfg.Speech,
		voices:        cfg.Voices,
		limiter:       lim,
		snapshotDir:   cfg.SnapshotDir,
		log:           cfg.Logger.With("component", "httpapi"),
		now:           cfg.Now,
		startedAt:     cfg.Now(),
	}, nil
}

// Routes mounts every handler on a fresh mux using Go 1.22 method patterns.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Agents.
	mux.HandleFunc("POST /npc/init", s.handleNPCInit)
	mux.HandleFunc("POST /npc/action", s.throttled(s.handleNPCAction))
	mux.HandleFunc("GET /npc/status/{id}", s.handleNPCStatus)
	mux.HandleFunc("GET /npc/list", s.handleNPCList)
	mux.HandleFunc("GET /npc/memories/{agent}/{player}", s.handleNPCMemories)
	mux.HandleFunc("POST /memory/decay", s.handleMemoryDecay)

	// World clock.
	mux.HandleFunc("POST /world/start", s.handleWorldStart)
	mux.HandleFunc("POST /world/stop", s.handleWorldStop)
	mux.HandleFunc("POST /world/tick", s.handleWorldTick)
	mux.HandleFunc("POST /world/advance/{hours}", s.handleWorldAdvance)
	mux.HandleFunc("GET /world/events", s.handleWorldEvents)
	mux.HandleFunc("GET /world/stats", s.handleWorldStats)
	mux.HandleFunc("POST /world/snapshot", s.handleWorldSnapshot)
	mux.HandleFunc("POST /world/restore", s.handleWorldRestore)

	// Quests.
	mux.HandleFunc("POST /quest/generate/{agent}", s.handleQuestGenerate)
	mux.HandleFunc("POST /quest/accept/{id}", s.handleQuestAccept)
	mux.HandleFunc("POST /quest/complete/{id}", s.handleQuestComplete)

	// Factions.
	mux.HandleFunc("GET /factions", s.handleFactions)
	mux.HandleFunc("GET /territory/control", s.handleTerritoryControl)
	mux.HandleFunc("GET /traderoutes", s.handleTradeRoutes)
	mux.HandleFunc("POST /territory/{territory}/battle", s.handleBattleStart)
	mux.HandleFunc("POST /battle/{id}/resolve", s.handleBattleResolve)
	mux.HandleFunc("POST /traderoute/establish", s.handleRouteEstablish)
	mux.HandleFunc("POST /traderoute/execute", s.handleRouteExecute)
	mux.HandleFunc("POST /traderoute/disrupt", s.handleRouteDisrupt)
	mux.HandleFunc("POST /traderoute/restore", s.handleRouteRestore)

	// Conversations.
	mux.HandleFunc("POST /conversation/start", s.handleConversationStart)
	mux.HandleFunc("POST /conversation/message", s.throttled(s.handleConversationMessage))
	mux.HandleFunc("POST /conversation/end", s.handleConversationEnd)
	mux.HandleFunc("POST /conversation/add-npc", s.handleConversationAddNPC)
	mux.HandleFunc("POST /conversation/remove-npc", s.handleConversationRemoveNPC)
	mux.HandleFunc("GET /conversation/location/npc/{id}", s.handleConversationByNPC)
	mux.HandleFunc("GET /conversation/location/player/{id}", s.handleConversationByPlayer)

	// Speech.
	mux.HandleFunc("POST /voice/generate/{id}", s.throttled(s.handleVoiceGenerate))
	mux.HandleFunc("POST /speech/transcribe", s.throttled(s.handleTranscribe))

	return mux
}

// throttled wraps an interactive handler with the per-client token bucket.
func (s *Server) throttled(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			s.writeError(w, r, fault.New(fault.RateLimited, "request budget exhausted"))
			return
		}
		next(w, r)
	}
}

// snapshotOf resolves an agent snapshot: the live runtime first, then the
// read cache, then the store (populating the cache on the way out).
func (s *Server) snapshotOf(ctx context.Context, id string) (*types.Agent, error) {
	if snap, err := s.agents.Snapshot(id); err == nil {
		return snap, nil
	}
	if s.agentCache != nil {
		if snap, ok := s.agentCache.Get(id); ok {
			return snap, nil
		}
	}
	snap, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, fault.Wrap(fault.StoreUnavailable, "load agent "+id, err)
	}
	if snap == nil {
		return nil, fault.New(fault.AgentUnknown, "agent "+id+" does not exist")
	}
	if s.agentCache != nil {
		s.agentCache.Put(id, snap)
	}
	return snap, nil
}
