// Package clock advances simulated world time. Each tick runs a fixed
// pipeline over the live agents: time moves, memories decay, factions act,
// agents update by activity tier, quests expire and the event history is
// trimmed. All world randomness flows through one seeded stream in tick
// order, so two runs from the same seed and snapshot produce identical
// event logs.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/faction"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/internal/tier"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

const (
	// DefaultTickHours is the simulated time one tick covers when the
	// caller does not say otherwise.
	DefaultTickHours = 1.0

	// TimeScale bounds, in simulated hours per autorun tick.
	MinTimeScale = 0.1
	MaxTimeScale = 100.0

	// Tick interval bounds for the autorun loop, in wall time.
	MinTickInterval     = 10 * time.Second
	MaxTickInterval     = 300 * time.Second
	DefaultTickInterval = 30 * time.Second

	// EventRingCap is how much event history the world keeps.
	EventRingCap = 1000

	// AmbientQuestChance is the per-tick probability that some agent
	// starts offering work unprompted.
	AmbientQuestChance = 0.10

	// GossipChance is the per-tick probability that one pair of agents
	// trades memories.
	GossipChance = 0.30

	// GossipTrust is the confidence gossip transfers at between pairs with
	// no established relation.
	GossipTrust = 0.5

	// GoalProgressPerHour is how much of a goal an attending agent works
	// off per simulated hour.
	GoalProgressPerHour = 0.02
)

// MetaStore persists clock state between runs and trims event history.
// *store.Store satisfies it.
type MetaStore interface {
	GetMeta(ctx context.Context, key string) (string, error)
	PutMeta(ctx context.Context, key, value string) error
	PruneWorldEvents(ctx context.Context, keep int) (int64, error)
}

// Memories is the clock's view of the memory engine: decay every tick,
// plus the occasional gossip exchange between two agents.
type Memories interface {
	Sweep(ctx context.Context, deltaHours float64) (memory.SweepResult, error)
	Share(ctx context.Context, from, to, subject string, trust float64) ([]types.Memory, error)
}

// Factions advances the political layer once per tick.
type Factions interface {
	Tick(ctx context.Context, deltaHours, nowHours float64) (faction.TickResult, error)
}

// Trusts reads live pair trust for the gossip phase. *relation.Engine
// satisfies it.
type Trusts interface {
	Trust(ctx context.Context, from, to string) (trust, familiarity float64, err error)
}

// Quests retires overdue offers and rolls ambient ones.
type Quests interface {
	ExpireDue(ctx context.Context, nowHours float64) ([]types.Quest, error)
	Generate(ctx context.Context, giverID, playerID string, nowHours float64) (*types.Quest, error)
}

// Config wires a [Clock]. Store, Agents, Scheduler, Events and Dice are
// required; leaving an engine nil disables its phase.
type Config struct {
	// Store persists total simulated hours across restarts.
	Store MetaStore

	// Agents is the live actor runtime the tick drives.
	Agents *agent.Runtime

	// Scheduler classifies agents into update tiers and runs the batch.
	Scheduler *tier.Scheduler

	// Events is the shared world event log.
	Events *EventLog

	// Dice is the tick randomness stream.
	Dice *Dice

	// Memories handles decay and gossip; nil skips both.
	Memories Memories

	// Factions runs the political layer; nil skips it.
	Factions Factions

	// Relations supplies pair trust for gossip; nil transfers everything
	// at GossipTrust.
	Relations Trusts

	// Quests handles expiry and ambient offers; nil skips both.
	Quests Quests

	// TimeScale is simulated hours per autorun tick, clamped to
	// [MinTimeScale, MaxTimeScale]. Defaults to DefaultTickHours.
	TimeScale float64

	// TickInterval is the autorun wall period, clamped to
	// [MinTickInterval, MaxTickInterval]. Defaults to DefaultTickInterval.
	TickInterval time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// OnTick, when set, observes every completed tick report.
	OnTick func(TickReport)
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.TimeScale == 0 {
		c.TimeScale = DefaultTickHours
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
}

// Clock owns simulated time and the tick pipeline. Ticks are serialized;
// the cheap state accessors never wait on a running tick.
type Clock struct {
	store    MetaStore
	agents   *agent.Runtime
	sched    *tier.Scheduler
	events   *EventLog
	dice      *Dice
	memories  Memories
	factions  Factions
	relations Trusts
	quests    Quests
	log      *slog.Logger
	onTick   func(TickReport)

	tickMu sync.Mutex // one tick at a time

	mu         sync.Mutex
	totalHours float64
	ticks      uint64
	timeScale  float64
	interval   time.Duration
	census     tier.Census
	running    bool
	stop       chan struct{}
	done       chan struct{}
}

// New builds a clock and restores the persisted simulated time.
func New(ctx context.Context, cfg Config) (*Clock, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("clock: store must not be nil")
	}
	if cfg.Agents == nil {
		return nil, fmt.Errorf("clock: agent runtime must not be nil")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("clock: scheduler must not be nil")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("clock: event log must not be nil")
	}
	if cfg.Dice == nil {
		return nil, fmt.Errorf("clock: dice must not be nil")
	}
	cfg.setDefaults()

	c := &Clock{
		store:     cfg.Store,
		agents:    cfg.Agents,
		sched:     cfg.Scheduler,
		events:    cfg.Events,
		dice:      cfg.Dice,
		memories:  cfg.Memories,
		factions:  cfg.Factions,
		relations: cfg.Relations,
		quests:    cfg.Quests,
		log:       cfg.Logger.With("component", "clock"),
		onTick:    cfg.OnTick,
		timeScale: clampScale(cfg.TimeScale),
		interval:  clampInterval(cfg.TickInterval),
	}

	raw, err := c.store.GetMeta(ctx, store.MetaTotalHours)
	if err != nil {
		return nil, fmt.Errorf("clock: load total hours: %w", err)
	}
	if raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("clock: malformed stored hours %q: %w", raw, err)
		}
		c.totalHours = hours
	}
	c.events.SetHours(c.totalHours)
	return c, nil
}

// TickReport summarizes what one tick did.
type TickReport struct {
	Tick     uint64
	Delta    float64
	Time     types.WorldTime
	Census   tier.Census
	Updated  int
	Errors   int
	Sweep       memory.SweepResult
	Factions    faction.TickResult
	Expired     int
	GoalsRolled int
	Gossiped    bool
	Offered     bool
	Elapsed     time.Duration
}

// Tick advances the world by deltaHours of simulated time. Zero means
// [DefaultTickHours]; negative is rejected. Phases run in a fixed order and
// all randomness draws from the tick stream, so a tick sequence replays
// byte-identically from the same seed and state.
func (c *Clock) Tick(ctx context.Context, deltaHours float64) (TickReport, error) {
	if deltaHours < 0 {
		return TickReport{}, fault.New(fault.InvalidArgument, "clock: hours must not be negative")
	}
	if deltaHours == 0 {
		deltaHours = DefaultTickHours
	}

	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	start := time.Now()

	// ── time ──
	c.mu.Lock()
	c.totalHours += deltaHours
	c.ticks++
	now, tick := c.totalHours, c.ticks
	c.mu.Unlock()
	c.events.SetHours(now)

	rep := TickReport{Tick: tick, Delta: deltaHours, Time: types.TimeAt(now)}

	// ── memory decay ──
	if c.memories != nil {
		sweep, err := c.memories.Sweep(ctx, deltaHours)
		if err != nil {
			c.log.Warn("decay sweep failed", "tick", tick, "error", err)
		}
		rep.Sweep = sweep
	}

	// ── factions ──
	if c.factions != nil {
		res, err := c.factions.Tick(ctx, deltaHours, now)
		if err != nil {
			c.log.Warn("faction tick failed", "tick", tick, "error", err)
		}
		rep.Factions = res
	}

	// ── agents by tier ──
	agents := c.agents.Snapshots()
	tph := ticksPerHour(deltaHours)
	plan := c.sched.Plan(agents, start, tick, tph)
	rep.Census = plan.Census
	var (
		doneMu  sync.Mutex
		doneIDs []string
	)
	run := c.sched.Run(ctx, plan, c.updateAgent(deltaHours, tph, func(id string) {
		doneMu.Lock()
		doneIDs = append(doneIDs, id)
		doneMu.Unlock()
	}))
	rep.Updated, rep.Errors = run.Updated, run.Errors

	// Completed goals get a successor rolled from the tick stream. The
	// worker pool reports completions in arrival order, so the ids are
	// sorted before any draw to keep replays identical.
	sort.Strings(doneIDs)
	for _, id := range doneIDs {
		actor, err := c.agents.Actor(id)
		if err != nil {
			continue
		}
		goal := agent.RollGoal(c.dice, actor.Snapshot().Faction)
		if _, adopted, err := actor.AdoptGoal(ctx, goal); err != nil {
			c.log.Warn("successor goal not adopted", "agent", id, "error", err)
		} else if adopted {
			rep.GoalsRolled++
		}
	}

	// One pair of agents may swap stories. This stays out of the worker
	// pool: the pair and the roll come from the tick stream, which only
	// the serial phases may touch.
	if c.memories != nil && len(agents) >= 2 && c.dice.Float64() < GossipChance {
		i := c.dice.IntN(len(agents))
		j := c.dice.IntN(len(agents) - 1)
		if j >= i {
			j++
		}
		from, to := agents[i], agents[j]
		trust := GossipTrust
		if c.relations != nil {
			if t, fam, err := c.relations.Trust(ctx, from.ID, to.ID); err == nil && fam > 0 {
				trust = t
			}
		}
		if trust <= 0 {
			// Hostile pairs keep their stories to themselves.
			c.log.Debug("gossip skipped", "from", from.ID, "to", to.ID, "trust", trust)
		} else if _, err := c.memories.Share(ctx, from.ID, to.ID, "", trust); err != nil {
			c.log.Warn("gossip failed", "from", from.ID, "to", to.ID, "error", err)
		} else {
			rep.Gossiped = true
		}
	}

	if c.quests != nil && len(agents) > 0 && c.dice.Float64() < AmbientQuestChance {
		giver := agents[c.dice.IntN(len(agents))]
		if _, err := c.quests.Generate(ctx, giver.ID, "", now); err != nil {
			c.log.Warn("ambient quest failed", "giver", giver.ID, "error", err)
		} else {
			rep.Offered = true
		}
	}

	// ── quest expiry ──
	if c.quests != nil {
		expired, err := c.quests.ExpireDue(ctx, now)
		if err != nil {
			c.log.Warn("quest expiry failed", "tick", tick, "error", err)
		}
		rep.Expired = len(expired)
	}

	// ── history cap and persistence ──
	if _, err := c.store.PruneWorldEvents(ctx, EventRingCap); err != nil {
		c.log.Warn("event prune failed", "tick", tick, "error", err)
	}
	if err := c.store.PutMeta(ctx, store.MetaTotalHours, strconv.FormatFloat(now, 'g', -1, 64)); err != nil {
		c.log.Warn("total hours not persisted", "tick", tick, "error", err)
	}

	c.mu.Lock()
	c.census = plan.Census
	c.mu.Unlock()

	rep.Elapsed = time.Since(start)
	c.log.Info("tick complete",
		"tick", tick,
		"time", rep.Time.String(),
		"delta_hours", deltaHours,
		"updated", rep.Updated,
		"errors", rep.Errors,
		"elapsed", rep.Elapsed)
	if c.onTick != nil {
		c.onTick(rep)
	}
	return rep, nil
}

// updateAgent is the per-agent tick work. It runs inside the worker pool,
// so it must not touch the tick dice or the event log; completed goals are
// reported through goalDone and replaced serially after the batch.
func (c *Clock) updateAgent(deltaHours float64, ticksPerHour int, goalDone func(id string)) tier.UpdateFunc {
	return func(ctx context.Context, a *types.Agent, t tier.Tier) error {
		actor, err := c.agents.Actor(a.ID)
		if err != nil {
			return err
		}

		// Slow tiers tick rarely, so each update covers the hours they
		// sat out. No tier loses simulated time.
		hours := deltaHours * float64(tier.Stride(t, ticksPerHour))
		if _, err := actor.AdvanceVitals(ctx, hours); err != nil {
			return err
		}

		// Only agents near the action work their goals; the rest keep
		// vitals only.
		if t < tier.Nearby || len(a.Goals) == 0 {
			return nil
		}
		top := a.Goals[0]
		_, done, err := actor.ProgressGoal(ctx, top.ID, GoalProgressPerHour*hours)
		if err != nil {
			return err
		}
		if done {
			c.log.Info("goal completed", "agent", a.ID, "goal", top.Description)
			if goalDone != nil {
				goalDone(a.ID)
			}
		}
		return nil
	}
}

// Start launches the autorun loop. Returns false when already running.
func (c *Clock) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	c.log.Info("autorun started", "time_scale", c.timeScale, "interval", c.interval)
	return true
}

// Stop halts the autorun loop. A tick already underway finishes first;
// Stop returns after it has, and no further ticks run. Returns false when
// not running.
func (c *Clock) Stop() bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return false
	}
	c.running = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	c.log.Info("autorun stopped", "time", c.Now().String())
	return true
}

// run paces ticks at the configured interval, charging each tick's own
// runtime against the sleep so wall pacing holds under load.
func (c *Clock) run(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		began := time.Now()
		if _, err := c.Tick(context.Background(), c.Pace()); err != nil {
			c.log.Error("tick failed", "error", err)
		}

		wait := c.Interval() - time.Since(began)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-stop:
			return
		case <-time.After(wait):
		}
	}
}

// Running reports whether the autorun loop is on.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetPace adjusts autorun pacing and returns the values in effect. Zero
// keeps the current setting; everything else is clamped to the safe range.
func (c *Clock) SetPace(timeScale float64, interval time.Duration) (float64, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeScale != 0 {
		c.timeScale = clampScale(timeScale)
	}
	if interval != 0 {
		c.interval = clampInterval(interval)
	}
	return c.timeScale, c.interval
}

// Pace returns the simulated hours each autorun tick covers.
func (c *Clock) Pace() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeScale
}

// Interval returns the autorun wall period.
func (c *Clock) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Now returns the current simulated time.
func (c *Clock) Now() types.WorldTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.TimeAt(c.totalHours)
}

// Ticks returns how many ticks have completed.
func (c *Clock) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Status is the clock's public state snapshot.
type Status struct {
	Running      bool            `json:"running"`
	Time         types.WorldTime `json:"time"`
	Ticks        uint64          `json:"ticks"`
	TimeScale    float64         `json:"time_scale"`
	TickInterval float64         `json:"tick_interval_seconds"`
	Census       tier.Census     `json:"census"`
}

// Status reports the clock state and the census from the latest tick.
func (c *Clock) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running:      c.running,
		Time:         types.TimeAt(c.totalHours),
		Ticks:        c.ticks,
		TimeScale:    c.timeScale,
		TickInterval: c.interval.Seconds(),
		Census:       c.census,
	}
}

func clampScale(v float64) float64 {
	return math.Min(MaxTimeScale, math.Max(MinTimeScale, v))
}

func clampInterval(d time.Duration) time.Duration {
	if d < MinTickInterval {
		return MinTickInterval
	}
	if d > MaxTickInterval {
		return MaxTickInterval
	}
	return d
}

// ticksPerHour is the dormant heartbeat cadence implied by the tick size:
// how many ticks cover one simulated hour, never less than one.
func ticksPerHour(deltaHours float64) int {
	n := int(math.Round(1 / deltaHours))
	if n < 1 {
		n = 1
	}
	return n
}
