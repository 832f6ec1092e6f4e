// Package tier decides how often each agent updates. Agents close to player
// attention tick every time, agents nobody is near coast on a heartbeat, and
// everything in between lands on a fixed cadence in powers of two. The
// scheduler also owns the worker pool that fans per-agent work out without
// letting a large population starve the tick loop.
package tier

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/solmae/animus/pkg/types"
)

// Tier is an agent's scheduling class for one tick.
type Tier int

const (
	// Dormant agents have seen no interaction for over DormantAfter. They
	// update on an hourly simulated heartbeat.
	Dormant Tier = iota
	// Idle agents update every 8th tick, vitals only.
	Idle
	// Nearby agents share a zone with a present player, every 2nd tick.
	Nearby
	// Active agents are in a conversation or were player-interacted within
	// ActiveWindow. They update every tick.
	Active
)

func (t Tier) String() string {
	switch t {
	case Active:
		return "active"
	case Nearby:
		return "nearby"
	case Idle:
		return "idle"
	default:
		return "dormant"
	}
}

const (
	// ActiveWindow is how recently a player exchange keeps an agent Active.
	ActiveWindow = 60 * time.Second

	// DormantAfter is how long without any interaction an agent goes Dormant.
	DormantAfter = 30 * time.Minute

	// MaxWorkers caps the pool regardless of GOMAXPROCS.
	MaxWorkers = 32
)

// Cadence: a tier runs when the tick counter is divisible by its stride.
const (
	nearbyStride = 2
	idleStride   = 8
)

// Presence reports player attention. *session.Manager satisfies it.
type Presence interface {
	// LastAgentTouch is when a player last exchanged with the agent; zero
	// means never.
	LastAgentTouch(agentID string) time.Time

	// PlayerZones is the set of zones holding at least one present player.
	PlayerZones() map[string]bool
}

// Conversed reports live conversation membership. The group orchestrator
// satisfies it; nil means no conversation tracking.
type Conversed interface {
	InConversation(agentID string) bool
}

// Config tunes a [Scheduler]. Zero-value optional fields take defaults.
type Config struct {
	// Presence feeds tier classification. Must not be nil.
	Presence Presence

	// Conversations marks agents Active while they are in a group. Optional.
	Conversations Conversed

	// Workers bounds concurrent per-agent updates. Defaults to
	// min(GOMAXPROCS, MaxWorkers).
	Workers int

	// Budget is the advisory cognition allowance per tick. When a tick plans
	// more updates than this, OverBudget fires; nothing is skipped. Zero
	// disables the check.
	Budget int

	// OverBudget is invoked with the overrun size when a tick exceeds
	// Budget. Wire it to a metric counter.
	OverBudget func(over int)

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler classifies agents and runs their tick work on a bounded pool.
// Safe for concurrent use, though ticks are expected to arrive one at a time.
type Scheduler struct {
	presence   Presence
	convos     Conversed
	workers    int64
	budget     int
	overBudget func(over int)
	log        *slog.Logger
	sem        *semaphore.Weighted
}

// New creates a [Scheduler]. Presence must not be nil.
func New(cfg Config) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		presence:   cfg.Presence,
		convos:     cfg.Conversations,
		workers:    int64(cfg.Workers),
		budget:     cfg.Budget,
		overBudget: cfg.OverBudget,
		log:        cfg.Logger.With("component", "tier"),
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// Classify places one agent snapshot into its tier as of now. zones is the
// present-player zone set, captured once per tick so every agent in the same
// tick sees the same world.
func (s *Scheduler) Classify(a *types.Agent, now time.Time, zones map[string]bool) Tier {
	if s.convos != nil && s.convos.InConversation(a.ID) {
		return Active
	}

	touched := s.presence.LastAgentTouch(a.ID)
	if a.LastActiveAt.After(touched) {
		touched = a.LastActiveAt
	}
	if !touched.IsZero() && now.Sub(touched) <= ActiveWindow {
		return Active
	}
	if a.Location.Zone != "" && zones[a.Location.Zone] {
		return Nearby
	}
	if touched.IsZero() || now.Sub(touched) > DormantAfter {
		return Dormant
	}
	return Idle
}

// Due reports whether a tier's cadence fires on the given tick. ticksPerHour
// is how many ticks make up one simulated hour; values below 1 are treated
// as 1 so Dormant still heartbeats when a single tick spans multiple hours.
func Due(t Tier, tick uint64, ticksPerHour int) bool {
	switch t {
	case Active:
		return true
	case Nearby:
		return tick%nearbyStride == 0
	case Idle:
		return tick%idleStride == 0
	default:
		if ticksPerHour < 1 {
			ticksPerHour = 1
		}
		return tick%uint64(ticksPerHour) == 0
	}
}

// Stride is the tier's cadence in ticks: how many ticks pass between two
// updates of an agent in this tier. Per-agent work scales its simulated
// hours by the stride so slower tiers don't lose time.
func Stride(t Tier, ticksPerHour int) int {
	switch t {
	case Active:
		return 1
	case Nearby:
		return nearbyStride
	case Idle:
		return idleStride
	default:
		if ticksPerHour < 1 {
			ticksPerHour = 1
		}
		return ticksPerHour
	}
}

// Census counts agents per tier for one tick.
type Census struct {
	Active  int `json:"active"`
	Nearby  int `json:"nearby"`
	Idle    int `json:"idle"`
	Dormant int `json:"dormant"`
}

// Total is the whole population.
func (c Census) Total() int { return c.Active + c.Nearby + c.Idle + c.Dormant }

// Bound is the cadence-weighted update allowance for one tick: every Active
// agent, half the Nearby set, an eighth of Idle, and the Dormant heartbeat
// share. Planned work per tick averages at or below this.
func (c Census) Bound(ticksPerHour int) float64 {
	if ticksPerHour < 1 {
		ticksPerHour = 1
	}
	return float64(c.Active) +
		float64(c.Nearby)/nearbyStride +
		float64(c.Idle)/idleStride +
		float64(c.Dormant)/float64(ticksPerHour)
}

// Assignment is one agent due for an update this tick.
type Assignment struct {
	Agent *types.Agent
	Tier  Tier
}

// Plan is the classification result for one tick.
type Plan struct {
	Census Census
	Due    []Assignment
}

// Plan classifies every agent and selects those whose cadence fires on this
// tick. agents arrive ordered by id (runtime snapshots), and the plan keeps
// that order so fan-out stays reproducible.
func (s *Scheduler) Plan(agents []*types.Agent, now time.Time, tick uint64, ticksPerHour int) Plan {
	zones := s.presence.PlayerZones()

	var p Plan
	for _, a := range agents {
		t := s.Classify(a, now, zones)
		switch t {
		case Active:
			p.Census.Active++
		case Nearby:
			p.Census.Nearby++
		case Idle:
			p.Census.Idle++
		default:
			p.Census.Dormant++
		}
		if Due(t, tick, ticksPerHour) {
			p.Due = append(p.Due, Assignment{Agent: a, Tier: t})
		}
	}

	if s.budget > 0 && len(p.Due) > s.budget {
		over := len(p.Due) - s.budget
		s.log.Warn("tick update budget exceeded",
			"planned", len(p.Due), "budget", s.budget, "over", over)
		if s.overBudget != nil {
			s.overBudget(over)
		}
	}
	return p
}

// UpdateFunc is the per-agent work for one tick.
type UpdateFunc func(ctx context.Context, a *types.Agent, t Tier) error

// Report summarizes one fan-out.
type Report struct {
	Updated int
	Errors  int
}

// Run executes fn for every due agent across the worker pool. Individual
// failures are logged and counted, never propagated: one broken agent must
// not stall the world. Run returns early only when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, plan Plan, fn UpdateFunc) Report {
	var updated, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for _, as := range plan.Due {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer s.sem.Release(1)
			if err := fn(ctx, as.Agent, as.Tier); err != nil {
				failed.Add(1)
				s.log.Warn("agent update failed",
					"agent", as.Agent.ID, "tier", as.Tier.String(), "error", err)
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	g.Wait()

	return Report{Updated: int(updated.Load()), Errors: int(failed.Load())}
}
