package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/pkg/types"
)

const (
	defaultDeltaLogCap = 128
	defaultMailboxSize = 16
	persistTimeout     = 5 * time.Second
)

// Config holds the dependencies for a [Runtime]. Zero-value optional fields
// are replaced with sensible defaults.
type Config struct {
	// Store persists agent state. Must not be nil.
	Store Store

	// Defer, when set, receives one persistence op per published snapshot
	// instead of the runtime writing through synchronously. Wire it to a
	// write-behind queue keyed by agent id.
	Defer func(key string, op func(ctx context.Context) error)

	// Logger for runtime events. Defaults to slog.Default.
	Logger *slog.Logger

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time

	// DeltaLogCap bounds each actor's trait ledger. Defaults to 128.
	DeltaLogCap int

	// MailboxSize is the per-actor command buffer. Defaults to 16.
	MailboxSize int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.DeltaLogCap <= 0 {
		c.DeltaLogCap = defaultDeltaLogCap
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = defaultMailboxSize
	}
}

// Runtime is the registry of running actors. It is safe for concurrent use.
type Runtime struct {
	store       Store
	deferFn     func(key string, op func(ctx context.Context) error)
	log         *slog.Logger
	now         func() time.Time
	deltaLogCap int
	mailboxSize int

	mu     sync.RWMutex
	actors map[string]*Actor
	closed bool
}

// NewRuntime creates an empty runtime.
func NewRuntime(cfg Config) (*Runtime, error) {
	if cfg.Store == nil {
		return nil, errors.New("agent: Store must not be nil")
	}
	cfg.setDefaults()
	return &Runtime{
		store:       cfg.Store,
		deferFn:     cfg.Defer,
		log:         cfg.Logger.With("component", "agent-runtime"),
		now:         cfg.Now,
		deltaLogCap: cfg.DeltaLogCap,
		mailboxSize: cfg.MailboxSize,
		actors:      make(map[string]*Actor),
	}, nil
}

// Spawn creates a new agent from st and starts its actor. The personality
// passes the soft-clamp exactly once here; later loads via [Runtime.Wake]
// keep the stored values untouched so repeated restarts cannot drift traits.
func (r *Runtime) Spawn(ctx context.Context, st types.Agent) (*Actor, error) {
	if st.ID == "" || st.Name == "" {
		return nil, fault.New(fault.InvalidArgument, "agent: id and name must not be empty")
	}
	if err := r.running(st.ID); err != nil {
		return nil, err
	}

	st.Personality = st.Personality.Clamped()
	st.Mood = st.Mood.Clamped()
	if st.Mood.Label == "" {
		st.Mood.Label = "neutral"
	}
	if st.Vitals == (types.Vitals{}) {
		st.Vitals = types.Vitals{Hunger: DefaultHunger, Fatigue: DefaultFatigue}
	}
	st.Vitals.Hunger = types.ClampUnit(st.Vitals.Hunger)
	st.Vitals.Fatigue = types.ClampUnit(st.Vitals.Fatigue)
	if st.CreatedAt.IsZero() {
		st.CreatedAt = r.now()
	}
	if st.LastActiveAt.IsZero() {
		st.LastActiveAt = st.CreatedAt
	}

	if err := r.store.PutAgent(ctx, st); err != nil {
		return nil, fmt.Errorf("agent: persist spawn of %s: %w", st.ID, err)
	}
	return r.register(&st)
}

// Wake starts an actor for an already persisted agent, or returns the running
// one. Unknown ids report [fault.AgentUnknown].
func (r *Runtime) Wake(ctx context.Context, id string) (*Actor, error) {
	if a, err := r.Actor(id); err == nil {
		return a, nil
	}
	row, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("agent: load %s: %w", id, err)
	}
	if row == nil {
		return nil, fault.New(fault.AgentUnknown, "agent "+id+" does not exist")
	}
	return r.register(row)
}

func (r *Runtime) running(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errors.New("agent: runtime is stopped")
	}
	if _, ok := r.actors[id]; ok {
		return fault.New(fault.InvalidArgument, "agent "+id+" is already running")
	}
	return nil
}

func (r *Runtime) register(st *types.Agent) (*Actor, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("agent: runtime is stopped")
	}
	if have, ok := r.actors[st.ID]; ok {
		r.mu.Unlock()
		return have, nil
	}
	a := newActor(r, st)
	r.actors[st.ID] = a
	r.mu.Unlock()

	go a.loop()
	r.log.Debug("agent actor started", "agent", st.ID)
	return a, nil
}

// Actor returns the running actor for id, or [fault.AgentUnknown].
func (r *Runtime) Actor(id string) (*Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[id]
	if !ok {
		return nil, fault.New(fault.AgentUnknown, "agent "+id+" is not running")
	}
	return a, nil
}

// Snapshot returns the published state of a running agent.
func (r *Runtime) Snapshot(id string) (*types.Agent, error) {
	a, err := r.Actor(id)
	if err != nil {
		return nil, err
	}
	return a.Snapshot(), nil
}

// Snapshots returns the published state of every running agent, ordered by id
// so iteration stays reproducible.
func (r *Runtime) Snapshots() []*types.Agent {
	r.mu.RLock()
	out := make([]*types.Agent, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, a.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the ids of all running agents in ascending order.
func (r *Runtime) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.actors))
	for id := range r.actors {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of running actors.
func (r *Runtime) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Despawn stops one actor and writes its final state through directly.
func (r *Runtime) Despawn(ctx context.Context, id string) error {
	r.mu.Lock()
	a, ok := r.actors[id]
	if ok {
		delete(r.actors, id)
	}
	r.mu.Unlock()
	if !ok {
		return fault.New(fault.AgentUnknown, "agent "+id+" is not running")
	}

	a.stop()
	if err := r.store.PutAgent(ctx, *a.Snapshot()); err != nil {
		return fmt.Errorf("agent: persist despawn of %s: %w", id, err)
	}
	r.log.Debug("agent actor stopped", "agent", id)
	return nil
}

// Stop shuts down every actor and writes final states through directly. After
// Stop returns no actor accepts further commands.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.actors = make(map[string]*Actor)
	r.mu.Unlock()

	sort.Slice(actors, func(i, j int) bool { return actors[i].id < actors[j].id })

	var errs []error
	for _, a := range actors {
		a.stop()
		if err := r.store.PutAgent(ctx, *a.Snapshot()); err != nil {
			r.log.Warn("final agent state write failed", "agent", a.id, "error", err)
			errs = append(errs, fmt.Errorf("agent %s: %w", a.id, err))
		}
	}
	r.log.Info("agent runtime stopped", "agents", len(actors))
	return errors.Join(errs...)
}

// persistSnapshot pushes a published snapshot into storage, through the
// write-behind hook when configured, synchronously otherwise.
func (r *Runtime) persistSnapshot(id string, snap *types.Agent) {
	if r.deferFn != nil {
		r.deferFn("agent:"+id, func(ctx context.Context) error {
			return r.store.PutAgent(ctx, *snap)
		})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.store.PutAgent(ctx, *snap); err != nil {
		r.log.Warn("agent state write failed", "agent", id, "error", err)
	}
}
