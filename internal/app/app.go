// Package app wires all animus subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem, Run serves HTTP and WebSocket traffic until the context ends,
// and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithCognizer,
// WithPlanner). When an option is not provided, New builds the real thing
// from the config and providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/brain"
	"github.com/solmae/animus/internal/cache"
	"github.com/solmae/animus/internal/clock"
	"github.com/solmae/animus/internal/config"
	"github.com/solmae/animus/internal/faction"
	"github.com/solmae/animus/internal/gateway"
	"github.com/solmae/animus/internal/health"
	"github.com/solmae/animus/internal/httpapi"
	"github.com/solmae/animus/internal/npcgen"
	"github.com/solmae/animus/internal/observe"
	"github.com/solmae/animus/internal/oracle"
	"github.com/solmae/animus/internal/orchestrator"
	"github.com/solmae/animus/internal/proximity"
	"github.com/solmae/animus/internal/quest"
	"github.com/solmae/animus/internal/relation"
	"github.com/solmae/animus/internal/session"
	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/internal/tier"
	"github.com/solmae/animus/internal/voice"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/provider/llm"
	"github.com/solmae/animus/pkg/provider/stt"
	"github.com/solmae/animus/pkg/provider/tts"
	"github.com/solmae/animus/pkg/types"
)

// agentCacheSize bounds the read cache fronting cold store lookups.
const agentCacheSize = 512

// sweepInterval is how often idle conversation groups are reaped.
const sweepInterval = time.Minute

// Providers holds one interface value per model boundary. Nil means the
// boundary is not configured. Populated by main.go via the config registry,
// already wrapped in resilience fallback groups.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider
	STT stt.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	store         *store.Store
	queue         *store.WriteBehind
	agents        *agent.Runtime
	memories      *memory.Engine
	relations     *relation.Engine
	sessions      *session.Manager
	proximity     *proximity.Index
	voices        *voice.Assigner
	oracle        *oracle.Oracle
	cognizer      brain.Cognizer
	planner       orchestrator.Planner
	brain         *brain.Engine
	factions      *faction.Engine
	quests        *quest.Engine
	conversations *orchestrator.Manager
	scheduler     *tier.Scheduler
	events        *clock.EventLog
	dice          *clock.Dice
	pool          *clock.DicePool
	clock         *clock.Clock
	generator     *npcgen.Generator
	handler       http.Handler

	httpServer *http.Server

	// closers run in order during Shutdown.
	closers []func(ctx context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCognizer injects a cognition source instead of building the oracle
// from the LLM provider.
func WithCognizer(c brain.Cognizer) Option {
	return func(a *App) { a.cognizer = c }
}

// WithPlanner injects a group-conversation planner instead of using the
// oracle.
func WithPlanner(p orchestrator.Planner) Option {
	return func(a *App) { a.planner = p }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). New is
// fully synchronous: when it returns, the store is open, the persisted
// population is awake (or the configured one minted) and the handler is
// ready to serve.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default().With("component", "app"),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Store + write-behind queue ────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Agent runtime + memory/relation engines ───────────────────────
	if err := a.initAgents(); err != nil {
		return nil, fmt.Errorf("app: init agents: %w", err)
	}

	// ── 3. World randomness + event log ──────────────────────────────────
	if err := a.initWorld(ctx); err != nil {
		return nil, fmt.Errorf("app: init world: %w", err)
	}

	// ── 4. Oracle + brain ────────────────────────────────────────────────
	if err := a.initOracle(); err != nil {
		return nil, fmt.Errorf("app: init oracle: %w", err)
	}

	// ── 5. Conversations, tiers, clock ───────────────────────────────────
	if err := a.initSimulation(ctx); err != nil {
		return nil, fmt.Errorf("app: init simulation: %w", err)
	}

	// ── 6. Population ────────────────────────────────────────────────────
	if err := a.initPopulation(ctx); err != nil {
		return nil, fmt.Errorf("app: init population: %w", err)
	}

	// ── 7. HTTP + WebSocket boundary ─────────────────────────────────────
	if err := a.initBoundary(); err != nil {
		return nil, fmt.Errorf("app: init boundary: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	st, err := store.Open(a.cfg.Store.Path, store.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })

	a.queue = store.NewWriteBehind(store.WriteBehindConfig{
		Logger: a.log,
		OnDrop: func(key string, err error) {
			a.log.Error("persistence write dropped", "key", key, "error", err)
		},
	})
	a.queue.Start(ctx)
	a.closers = append(a.closers, a.queue.Close)
	return nil
}

func (a *App) initAgents() error {
	runtime, err := agent.NewRuntime(agent.Config{
		Store:  a.store,
		Logger: a.log,
		Defer: func(key string, op func(ctx context.Context) error) {
			a.queue.Enqueue("agent:"+key, op)
		},
	})
	if err != nil {
		return err
	}
	a.agents = runtime
	a.closers = append(a.closers, runtime.Stop)

	a.memories = memory.New(a.store, memory.WithLogger(a.log))
	a.relations = relation.New(a.store, relation.WithLogger(a.log))
	a.sessions = session.NewManager(session.Config{Logger: a.log})
	a.proximity = proximity.New()
	a.voices = voice.NewAssigner()
	return nil
}

func (a *App) initWorld(ctx context.Context) error {
	seed, err := clock.LoadSeed(ctx, a.store, a.cfg.World.Seed)
	if err != nil {
		return err
	}
	a.dice = clock.NewDice(seed)
	a.pool = clock.NewDicePool(seed)

	events, err := clock.NewEventLog(ctx, a.store, 0, a.log)
	if err != nil {
		return err
	}
	a.events = events

	factions, err := faction.New(ctx, faction.Config{
		Store:  a.store,
		Dice:   a.dice,
		Events: events,
		Logger: a.log,
	})
	if err != nil {
		return err
	}
	a.factions = factions

	quests, err := quest.New(quest.Config{
		Store:       a.store,
		Agents:      a.agents,
		Memories:    a.memories,
		Reputations: a.relations,
		Factions:    factions,
		Dice:        a.dice,
		Events:      events,
		Logger:      a.log,
	})
	if err != nil {
		return err
	}
	a.quests = quests
	return nil
}

func (a *App) initOracle() error {
	if a.providers.LLM != nil {
		orc, err := oracle.New(oracle.Config{
			LLM:            a.providers.LLM,
			TTS:            a.providers.TTS,
			STT:            a.providers.STT,
			Logger:         a.log,
			Temperature:    a.cfg.Oracle.Temperature,
			MaxTokens:      a.cfg.Oracle.MaxTokens,
			CognizeTimeout: time.Duration(a.cfg.Oracle.CognizeTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		a.oracle = orc
		if a.cognizer == nil {
			a.cognizer = orc
		}
		if a.planner == nil {
			a.planner = orc
		}
	}
	if a.cognizer == nil {
		return fmt.Errorf("an LLM provider (or an injected cognizer) is required")
	}

	eng, err := brain.New(brain.Config{
		Agents:    a.agents,
		Memory:    a.memories,
		Relations: a.relations,
		Oracle:    a.cognizer,
		Sessions:  a.sessions,
		Factions:  a.factions,
		Events:    a.events,
		Setting:   a.cfg.World.Setting,
		Logger:    a.log,
		// Interactive draws come from per-agent streams, not the tick
		// stream: player traffic against one agent must not shift any
		// other agent's replay.
		Rand: a.pool.Float64,
	})
	if err != nil {
		return err
	}
	a.brain = eng
	return nil
}

func (a *App) initSimulation(ctx context.Context) error {
	if a.planner != nil {
		conv, err := orchestrator.New(orchestrator.Config{
			Agents:    a.agents,
			Brain:     a.brain,
			Planner:   a.planner,
			Proximity: a.proximity,
			Relations: a.relations,
			Setting:   a.cfg.World.Setting,
			Logger:    a.log,
		})
		if err != nil {
			return err
		}
		a.conversations = conv
	} else {
		a.log.Warn("no planner available, group conversations disabled")
	}

	a.scheduler = tier.New(tier.Config{
		Presence:      a.sessions,
		Conversations: a.conversations,
		Logger:        a.log,
		OverBudget: func(_ int) {
			a.metrics.BudgetOverruns.Add(context.Background(), 1)
		},
	})

	clk, err := clock.New(ctx, clock.Config{
		Store:        a.store,
		Agents:       a.agents,
		Scheduler:    a.scheduler,
		Events:       a.events,
		Dice:         a.dice,
		Memories:     a.memories,
		Factions:     a.factions,
		Relations:    a.relations,
		Quests:       a.quests,
		TimeScale:    a.cfg.World.TimeScale,
		TickInterval: a.cfg.World.TickInterval(),
		Logger:       a.log,
		OnTick: func(r clock.TickReport) {
			a.metrics.TickDuration.Record(context.Background(), r.Elapsed.Seconds())
		},
	})
	if err != nil {
		return err
	}
	a.clock = clk
	a.closers = append(a.closers, func(context.Context) error {
		clk.Stop()
		return nil
	})

	gen, err := npcgen.New(npcgen.Config{
		Agents:   a.agents,
		Memories: a.memories,
		Dice:     a.dice,
		Logger:   a.log,
	})
	if err != nil {
		return err
	}
	a.generator = gen
	return nil
}

// initPopulation mints the configured agents on an empty store and wakes
// the persisted population otherwise. Config NPCs only seed first boot;
// after that the store is the source of truth.
func (a *App) initPopulation(ctx context.Context) error {
	count, err := a.store.CountAgents(ctx)
	if err != nil {
		return err
	}

	if count == 0 {
		for i, npc := range a.cfg.NPCs {
			snap, err := a.generator.Mint(ctx, npcgen.Request{
				Name:    npc.Name,
				Role:    npc.Role,
				Zone:    npc.Zone,
				Faction: npc.Faction,
			})
			if err != nil {
				return fmt.Errorf("mint configured agent %d (%q): %w", i, npc.Name, err)
			}
			a.proximity.Upsert(snap.ID, snap.Location)
		}
		a.log.Info("seeded world", "agents", len(a.cfg.NPCs))
		return nil
	}

	ids, err := a.store.ListAgentIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		actor, err := a.agents.Wake(ctx, id)
		if err != nil {
			a.log.Warn("wake failed, agent stays cold", "agent", id, "error", err)
			continue
		}
		snap := actor.Snapshot()
		a.proximity.Upsert(snap.ID, snap.Location)
	}
	a.log.Info("woke persisted population", "agents", len(ids))
	return nil
}

func (a *App) initBoundary() error {
	var speech httpapi.Speech
	if a.oracle != nil && (a.providers.TTS != nil || a.providers.STT != nil) {
		speech = a.oracle
	}

	agentCache := cache.New[string, *types.Agent](cache.Config{
		Capacity: agentCacheSize,
		TTL:      5 * time.Minute,
	})

	api, err := httpapi.New(httpapi.Config{
		Agents:        a.agents,
		Brain:         a.brain,
		Memory:        a.memories,
		Store:         a.store,
		Queue:         a.queue,
		AgentCache:    agentCache,
		Clock:         a.clock,
		Events:        a.events,
		Factions:      a.factions,
		Quests:        a.quests,
		Conversations: a.conversations,
		Sessions:      a.sessions,
		Proximity:     a.proximity,
		Generator:     a.generator,
		Speech:        speech,
		Voices:        a.voices,
		RatePerSecond: a.cfg.Server.RateLimit.PerSecond,
		RateBurst:     a.cfg.Server.RateLimit.Burst,
		SnapshotDir:   a.cfg.Store.SnapshotDir,
		Logger:        a.log,
	})
	if err != nil {
		return err
	}
	mux := api.Routes()

	var gwSpeech gateway.Speech
	if speech != nil {
		gwSpeech = a.oracle
	}
	gw, err := gateway.New(gateway.Config{
		Agents:        a.agents,
		Brain:         a.brain,
		Store:         a.store,
		AgentCache:    agentCache,
		Events:        a.events,
		Factions:      a.factions,
		Conversations: a.conversations,
		Sessions:      a.sessions,
		Proximity:     a.proximity,
		Speech:        gwSpeech,
		Voices:        a.voices,
		Logger:        a.log,
	})
	if err != nil {
		return err
	}
	gw.Register(mux)

	checkers := []health.Checker{
		health.StoreChecker(a.store),
		health.WriteQueueChecker(a.queue),
	}
	if a.oracle != nil {
		checkers = append(checkers, health.OracleChecker(a.oracle))
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = observe.Middleware(a.metrics)(mux)
	return nil
}

// Handler exposes the fully wired HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled or the listener fails. When the clock
// is configured to autostart it begins ticking before the first request.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.World.Autostart {
		a.clock.Start()
		a.log.Info("world clock autostarted",
			"time_scale", a.clock.Pace(), "interval", a.clock.Interval())
	}

	if a.conversations != nil {
		go a.sweepLoop(ctx)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	a.log.Info("server listening", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// sweepLoop reaps idle conversation groups until ctx ends.
func (a *App) sweepLoop(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.conversations.Sweep(); n > 0 {
				a.log.Debug("swept idle conversations", "groups", n)
			}
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops traffic first, then tears subsystems down in reverse-init
// order: clock, runtime (flushing actor state through the queue), queue,
// store. It respects the context deadline; closers remaining when ctx
// expires are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				a.log.Warn("http shutdown error", "error", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
