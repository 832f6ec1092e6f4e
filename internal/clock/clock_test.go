package clock

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/faction"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/internal/tier"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

// ── fakes ──

type fakeMeta struct {
	mu     sync.Mutex
	meta   map[string]string
	prunes []int
}

func newFakeMeta() *fakeMeta { return &fakeMeta{meta: make(map[string]string)} }

func (s *fakeMeta) GetMeta(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[key], nil
}

func (s *fakeMeta) PutMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

func (s *fakeMeta) PruneWorldEvents(_ context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunes = append(s.prunes, keep)
	return 0, nil
}

func (s *fakeMeta) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[key]
}

type fakeAgentStore struct {
	mu     sync.Mutex
	agents map[string]types.Agent
}

func (s *fakeAgentStore) GetAgent(_ context.Context, id string) (*types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *fakeAgentStore) PutAgent(_ context.Context, a types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

type fakePresence struct {
	mu      sync.Mutex
	touched map[string]time.Time
	zones   map[string]bool
}

func (p *fakePresence) LastAgentTouch(id string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.touched[id]
}

func (p *fakePresence) PlayerZones() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zones
}

// phases records engine calls in tick order.
type phases struct {
	mu    sync.Mutex
	calls []string
}

func (p *phases) add(name string) {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
}

func (p *phases) take() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.calls
	p.calls = nil
	return out
}

type fakeMemories struct {
	ph      *phases
	onSweep func()
	err     error

	sweeps []float64
	pairs  [][2]string
	trusts []float64
}

func (m *fakeMemories) Sweep(_ context.Context, deltaHours float64) (memory.SweepResult, error) {
	m.ph.add("sweep")
	if m.onSweep != nil {
		m.onSweep()
	}
	m.sweeps = append(m.sweeps, deltaHours)
	if m.err != nil {
		return memory.SweepResult{}, m.err
	}
	return memory.SweepResult{MemoriesDecayed: 3}, nil
}

func (m *fakeMemories) Share(_ context.Context, from, to, _ string, trust float64) ([]types.Memory, error) {
	m.ph.add("gossip")
	m.pairs = append(m.pairs, [2]string{from, to})
	m.trusts = append(m.trusts, trust)
	if m.err != nil {
		return nil, m.err
	}
	return nil, nil
}

type fakeFactions struct {
	ph    *phases
	err   error
	ticks [][2]float64
}

func (f *fakeFactions) Tick(_ context.Context, deltaHours, nowHours float64) (faction.TickResult, error) {
	f.ph.add("faction")
	f.ticks = append(f.ticks, [2]float64{deltaHours, nowHours})
	if f.err != nil {
		return faction.TickResult{}, f.err
	}
	return faction.TickResult{RelationsDrifted: 2}, nil
}

type fakeQuests struct {
	ph  *phases
	err error

	givers   []string
	expiries []float64
}

func (q *fakeQuests) ExpireDue(_ context.Context, nowHours float64) ([]types.Quest, error) {
	q.ph.add("expire")
	q.expiries = append(q.expiries, nowHours)
	if q.err != nil {
		return nil, q.err
	}
	return []types.Quest{{ID: "stale"}}, nil
}

func (q *fakeQuests) Generate(_ context.Context, giverID, _ string, _ float64) (*types.Quest, error) {
	q.ph.add("offer")
	q.givers = append(q.givers, giverID)
	if q.err != nil {
		return nil, q.err
	}
	return &types.Quest{ID: "ambient"}, nil
}

// ── fixture ──

type worldFixture struct {
	meta     *fakeMeta
	evStore  *fakeEventStore
	events   *EventLog
	agents   *agent.Runtime
	sched    *tier.Scheduler
	presence *fakePresence
	ph       *phases
	memories *fakeMemories
	factions *fakeFactions
	quests   *fakeQuests
	clock    *Clock
}

func newWorldFixture(t *testing.T, seed uint64) *worldFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ph := &phases{}
	f := &worldFixture{
		meta:     newFakeMeta(),
		evStore:  &fakeEventStore{},
		presence: &fakePresence{zones: map[string]bool{}},
		ph:       ph,
		memories: &fakeMemories{ph: ph},
		factions: &fakeFactions{ph: ph},
		quests:   &fakeQuests{ph: ph},
	}

	var err error
	f.events, err = NewEventLog(context.Background(), f.evStore, EventRingCap, logger)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	f.agents, err = agent.NewRuntime(agent.Config{
		Store:  &fakeAgentStore{agents: make(map[string]types.Agent)},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(func() { f.agents.Stop(context.Background()) })

	f.sched = tier.New(tier.Config{Presence: f.presence, Logger: logger})
	f.clock, err = New(context.Background(), Config{
		Store:     f.meta,
		Agents:    f.agents,
		Scheduler: f.sched,
		Events:    f.events,
		Dice:      NewDice(seed),
		Memories:  f.memories,
		Factions:  f.factions,
		Quests:    f.quests,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *worldFixture) spawn(t *testing.T, id, name string, lastActive time.Time, goals ...types.Goal) {
	t.Helper()
	f.spawnAt(t, id, name, "", lastActive, goals...)
}

func (f *worldFixture) spawnAt(t *testing.T, id, name, zone string, lastActive time.Time, goals ...types.Goal) {
	t.Helper()
	actor, err := f.agents.Spawn(context.Background(), types.Agent{
		ID:           id,
		Name:         name,
		Role:         "guard",
		Location:     types.Location{Zone: zone},
		Vitals:       types.Vitals{Hunger: 0.1, Fatigue: 0.1},
		CreatedAt:    lastActive,
		LastActiveAt: lastActive,
	})
	if err != nil {
		t.Fatalf("Spawn(%s): %v", id, err)
	}
	for _, g := range goals {
		if _, err := actor.SetGoal(context.Background(), g); err != nil {
			t.Fatalf("SetGoal(%s): %v", id, err)
		}
	}
}

func (f *worldFixture) snapshot(t *testing.T, id string) *types.Agent {
	t.Helper()
	a, err := f.agents.Actor(id)
	if err != nil {
		t.Fatalf("Actor(%s): %v", id, err)
	}
	return a.Snapshot()
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

// ── tests ──

func TestNewRestoresPersistedHours(t *testing.T) {
	f := newWorldFixture(t, 1)
	f.meta.PutMeta(context.Background(), store.MetaTotalHours, "48.25")

	c, err := New(context.Background(), Config{
		Store:     f.meta,
		Agents:    f.agents,
		Scheduler: f.sched,
		Events:    f.events,
		Dice:      NewDice(1),
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := c.Now()
	if now.TotalHours != 48.25 {
		t.Errorf("TotalHours = %v, want 48.25", now.TotalHours)
	}
	if now.Day != 3 || now.Hour != 0 || now.Minute != 15 {
		t.Errorf("time = %s, want day 3 00:15", now)
	}
}

func TestTickRejectsNegativeHours(t *testing.T) {
	f := newWorldFixture(t, 1)

	if _, err := f.clock.Tick(context.Background(), -1); !fault.Is(err, fault.InvalidArgument) {
		t.Fatalf("Tick(-1) error = %v, want invalid_argument", err)
	}

	rep, err := f.clock.Tick(context.Background(), 0)
	if err != nil {
		t.Fatalf("Tick(0): %v", err)
	}
	if rep.Delta != DefaultTickHours {
		t.Errorf("Delta = %v, want default %v", rep.Delta, DefaultTickHours)
	}
	if got := f.clock.Now().TotalHours; got != DefaultTickHours {
		t.Errorf("TotalHours = %v, want %v", got, DefaultTickHours)
	}
}

func TestTickPhaseOrder(t *testing.T) {
	f := newWorldFixture(t, 11)
	now := time.Now()
	f.spawn(t, "npc-1", "Garrett", now)
	f.spawn(t, "npc-2", "Elena", now)

	gossips, offers := 0, 0
	for i := 0; i < 300; i++ {
		if _, err := f.clock.Tick(context.Background(), 1); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		calls := f.ph.take()
		if len(calls) < 3 {
			t.Fatalf("tick %d: calls = %v, want at least sweep, faction, expire", i, calls)
		}
		if calls[0] != "sweep" || calls[1] != "faction" || calls[len(calls)-1] != "expire" {
			t.Fatalf("tick %d: phase order = %v", i, calls)
		}
		for _, c := range calls[2 : len(calls)-1] {
			switch c {
			case "gossip":
				gossips++
			case "offer":
				offers++
			default:
				t.Fatalf("tick %d: unexpected phase %q in %v", i, c, calls)
			}
		}
		gi, oi := indexOf(calls, "gossip"), indexOf(calls, "offer")
		if gi >= 0 && oi >= 0 && oi < gi {
			t.Fatalf("tick %d: ambient offer rolled before gossip: %v", i, calls)
		}
	}

	if gossips == 0 {
		t.Error("no gossip in 300 ticks")
	}
	if offers == 0 {
		t.Error("no ambient quest in 300 ticks")
	}
	for _, tr := range f.memories.trusts {
		if tr != GossipTrust {
			t.Fatalf("gossip trust = %v, want %v", tr, GossipTrust)
		}
	}
	for _, pair := range f.memories.pairs {
		if pair[0] == pair[1] {
			t.Fatalf("agent %s gossiped with itself", pair[0])
		}
	}
}

func TestTickSpreadsHoursAcrossTiers(t *testing.T) {
	f := newWorldFixture(t, 1)
	now := time.Now()
	goal := func(id string) types.Goal {
		return types.Goal{ID: id, Type: types.GoalProtect, Description: "hold the gate", Priority: 0.8}
	}
	f.spawn(t, "npc-active", "Garrett", now, goal("g-active"))
	f.spawnAt(t, "npc-nearby", "Tomas", "market", now.Add(-10*time.Minute), goal("g-nearby"))
	f.spawn(t, "npc-idle", "Mira", now.Add(-10*time.Minute), goal("g-idle"))
	f.spawn(t, "npc-dormant", "Elena", now.Add(-45*time.Minute), goal("g-dormant"))
	f.presence.zones["market"] = true

	var updates []int
	for i := 0; i < 4; i++ {
		rep, err := f.clock.Tick(context.Background(), 0.25)
		if err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		updates = append(updates, rep.Updated)
		if i == 0 {
			want := tier.Census{Active: 1, Nearby: 1, Idle: 1, Dormant: 1}
			if rep.Census != want {
				t.Fatalf("census = %+v, want %+v", rep.Census, want)
			}
		}
	}

	// Active ticked four times at 0.25h, Nearby twice at 0.5h, Dormant once
	// at 1h: all three aged exactly one simulated hour.
	for _, id := range []string{"npc-active", "npc-nearby", "npc-dormant"} {
		snap := f.snapshot(t, id)
		if got := snap.Vitals.Hunger; math.Abs(got-0.35) > 1e-9 {
			t.Errorf("%s hunger = %v, want 0.35", id, got)
		}
		if got := snap.Vitals.Fatigue; math.Abs(got-(0.1+1.0/6.0)) > 1e-9 {
			t.Errorf("%s fatigue = %v, want %v", id, got, 0.1+1.0/6.0)
		}
	}

	// Idle agents update every 8th tick; nothing due inside four ticks.
	if got := f.snapshot(t, "npc-idle").Vitals.Hunger; got != 0.1 {
		t.Errorf("idle hunger = %v, want untouched 0.1", got)
	}

	// Goal work happens for Active and Nearby only, scaled the same way.
	for _, id := range []string{"npc-active", "npc-nearby"} {
		goals := f.snapshot(t, id).Goals
		if len(goals) != 1 || math.Abs(goals[0].Progress-0.02) > 1e-9 {
			t.Errorf("%s goals = %+v, want one goal at progress 0.02", id, goals)
		}
	}
	if got := f.snapshot(t, "npc-dormant").Goals[0].Progress; got != 0 {
		t.Errorf("dormant goal progress = %v, want 0", got)
	}

	if want := []int{1, 2, 1, 3}; !slices.Equal(updates, want) {
		t.Errorf("updates per tick = %v, want %v", updates, want)
	}
}

func TestStopFinishesInFlightTick(t *testing.T) {
	f := newWorldFixture(t, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.memories.onSweep = func() {
		once.Do(func() { close(started) })
		<-release
	}

	if !f.clock.Start() {
		t.Fatal("Start = false")
	}
	<-started

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	if !f.clock.Stop() {
		t.Fatal("Stop = false")
	}

	if f.clock.Running() {
		t.Error("Running = true after Stop")
	}
	if got := f.clock.Ticks(); got != 1 {
		t.Errorf("Ticks = %d, want the in-flight tick to finish", got)
	}
	calls := f.ph.take()
	if len(calls) == 0 || calls[0] != "sweep" || calls[len(calls)-1] != "expire" {
		t.Errorf("in-flight tick did not run to completion: %v", calls)
	}

	time.Sleep(80 * time.Millisecond)
	if got := f.clock.Ticks(); got != 1 {
		t.Errorf("Ticks = %d after Stop, want 1", got)
	}
	if late := f.ph.take(); len(late) != 0 {
		t.Errorf("engine calls after Stop: %v", late)
	}
}

func TestStartStopFlags(t *testing.T) {
	f := newWorldFixture(t, 1)

	if !f.clock.Start() {
		t.Fatal("Start = false")
	}
	if f.clock.Start() {
		t.Error("second Start = true, want false")
	}
	if !f.clock.Running() {
		t.Error("Running = false while started")
	}
	if !f.clock.Stop() {
		t.Fatal("Stop = false")
	}
	if f.clock.Stop() {
		t.Error("second Stop = true, want false")
	}
}

func TestPaceClamps(t *testing.T) {
	f := newWorldFixture(t, 1)

	scale, interval := f.clock.SetPace(0.01, time.Second)
	if scale != MinTimeScale || interval != MinTickInterval {
		t.Errorf("SetPace(low) = (%v, %v), want (%v, %v)", scale, interval, MinTimeScale, MinTickInterval)
	}

	scale, interval = f.clock.SetPace(500, time.Hour)
	if scale != MaxTimeScale || interval != MaxTickInterval {
		t.Errorf("SetPace(high) = (%v, %v), want (%v, %v)", scale, interval, MaxTimeScale, MaxTickInterval)
	}

	scale, interval = f.clock.SetPace(0, 0)
	if scale != MaxTimeScale || interval != MaxTickInterval {
		t.Errorf("SetPace(0, 0) = (%v, %v), want settings kept", scale, interval)
	}
}

func TestConfigPaceClamps(t *testing.T) {
	f := newWorldFixture(t, 1)

	c, err := New(context.Background(), Config{
		Store:        f.meta,
		Agents:       f.agents,
		Scheduler:    f.sched,
		Events:       f.events,
		Dice:         NewDice(1),
		TimeScale:    1000,
		TickInterval: time.Second,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Pace(); got != MaxTimeScale {
		t.Errorf("Pace = %v, want clamped %v", got, MaxTimeScale)
	}
	if got := c.Interval(); got != MinTickInterval {
		t.Errorf("Interval = %v, want clamped %v", got, MinTickInterval)
	}
}

func TestTickRandomnessReplays(t *testing.T) {
	run := func(seed uint64) ([][2]string, []string) {
		f := newWorldFixture(t, seed)
		now := time.Now()
		f.spawn(t, "npc-1", "Garrett", now)
		f.spawn(t, "npc-2", "Elena", now)
		f.spawn(t, "npc-3", "Mira", now)
		for i := 0; i < 200; i++ {
			if _, err := f.clock.Tick(context.Background(), 1); err != nil {
				t.Fatalf("Tick %d: %v", i, err)
			}
		}
		return f.memories.pairs, f.quests.givers
	}

	pairs1, givers1 := run(23)
	pairs2, givers2 := run(23)
	if len(pairs1) == 0 || len(givers1) == 0 {
		t.Fatalf("no randomness exercised: %d pairs, %d givers", len(pairs1), len(givers1))
	}
	if !slices.Equal(pairs1, pairs2) {
		t.Error("gossip pairs differ between runs of the same seed")
	}
	if !slices.Equal(givers1, givers2) {
		t.Error("quest givers differ between runs of the same seed")
	}

	pairs3, _ := run(29)
	if slices.Equal(pairs1, pairs3) {
		t.Error("seeds 23 and 29 produced identical gossip")
	}
}

func TestTickPersistsHoursAndPrunes(t *testing.T) {
	f := newWorldFixture(t, 1)
	for i := 0; i < 3; i++ {
		if _, err := f.clock.Tick(context.Background(), 2); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}

	if got := f.meta.get(store.MetaTotalHours); got != "6" {
		t.Errorf("persisted hours = %q, want \"6\"", got)
	}
	if len(f.meta.prunes) != 3 {
		t.Fatalf("prune calls = %d, want 3", len(f.meta.prunes))
	}
	for _, keep := range f.meta.prunes {
		if keep != EventRingCap {
			t.Errorf("prune keep = %d, want %d", keep, EventRingCap)
		}
	}
	if want := []float64{2, 4, 6}; !slices.Equal(f.quests.expiries, want) {
		t.Errorf("expiry times = %v, want %v", f.quests.expiries, want)
	}
	if want := [][2]float64{{2, 2}, {2, 4}, {2, 6}}; !slices.Equal(f.factions.ticks, want) {
		t.Errorf("faction ticks = %v, want %v", f.factions.ticks, want)
	}
	if want := []float64{2, 2, 2}; !slices.Equal(f.memories.sweeps, want) {
		t.Errorf("sweeps = %v, want %v", f.memories.sweeps, want)
	}
}

func TestTickKeepsGoingWhenEnginesFail(t *testing.T) {
	f := newWorldFixture(t, 1)
	f.memories.err = errors.New("memory down")
	f.factions.err = errors.New("faction down")
	f.quests.err = errors.New("quest down")

	rep, err := f.clock.Tick(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.Sweep != (memory.SweepResult{}) {
		t.Errorf("Sweep = %+v, want zero", rep.Sweep)
	}
	if rep.Factions != (faction.TickResult{}) {
		t.Errorf("Factions = %+v, want zero", rep.Factions)
	}
	if rep.Expired != 0 {
		t.Errorf("Expired = %d, want 0", rep.Expired)
	}
	if got := f.clock.Now().TotalHours; got != 1 {
		t.Errorf("TotalHours = %v, want time to advance regardless", got)
	}
	if got := f.meta.get(store.MetaTotalHours); got != "1" {
		t.Errorf("persisted hours = %q, want \"1\"", got)
	}
}

func TestStatusReportsCensus(t *testing.T) {
	f := newWorldFixture(t, 1)
	f.spawn(t, "npc-1", "Garrett", time.Now())
	if _, err := f.clock.Tick(context.Background(), 1); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	st := f.clock.Status()
	if st.Running {
		t.Error("Running = true, want false")
	}
	if st.Ticks != 1 {
		t.Errorf("Ticks = %d, want 1", st.Ticks)
	}
	if st.Time.TotalHours != 1 {
		t.Errorf("TotalHours = %v, want 1", st.Time.TotalHours)
	}
	if st.Census.Active != 1 || st.Census.Total() != 1 {
		t.Errorf("census = %+v, want one active agent", st.Census)
	}
	if st.TimeScale != DefaultTickHours {
		t.Errorf("TimeScale = %v, want %v", st.TimeScale, DefaultTickHours)
	}
	if st.TickInterval != DefaultTickInterval.Seconds() {
		t.Errorf("TickInterval = %v, want %v", st.TickInterval, DefaultTickInterval.Seconds())
	}
}

type fakeTrusts struct {
	trust map[[2]string]float64
	fam   float64
}

func (f *fakeTrusts) Trust(_ context.Context, from, to string) (float64, float64, error) {
	if v, ok := f.trust[[2]string{from, to}]; ok {
		return v, f.fam, nil
	}
	return 0, 0, nil
}

// withTrusts rebuilds the fixture clock with a pair-trust source wired in.
func (f *worldFixture) withTrusts(t *testing.T, tr Trusts, seed uint64) {
	t.Helper()
	clk, err := New(context.Background(), Config{
		Store:     f.meta,
		Agents:    f.agents,
		Scheduler: f.sched,
		Events:    f.events,
		Dice:      NewDice(seed),
		Memories:  f.memories,
		Factions:  f.factions,
		Relations: tr,
		Quests:    f.quests,
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.clock = clk
}

func TestGossipTransfersAtPairTrust(t *testing.T) {
	f := newWorldFixture(t, 3)
	now := time.Now()
	f.spawn(t, "a", "Ava", now)
	f.spawn(t, "b", "Bren", now)
	f.withTrusts(t, &fakeTrusts{
		trust: map[[2]string]float64{{"a", "b"}: 0.8, {"b", "a"}: 0.8},
		fam:   1,
	}, 3)

	for i := 0; i < 200 && len(f.memories.trusts) == 0; i++ {
		if _, err := f.clock.Tick(context.Background(), 1); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if len(f.memories.trusts) == 0 {
		t.Fatal("no gossip exchange in 200 ticks")
	}
	for _, tr := range f.memories.trusts {
		if tr != 0.8 {
			t.Errorf("gossip trust = %v, want the live pair trust 0.8", tr)
		}
	}
}

func TestGossipDefaultsForStrangers(t *testing.T) {
	f := newWorldFixture(t, 3)
	now := time.Now()
	f.spawn(t, "a", "Ava", now)
	f.spawn(t, "b", "Bren", now)
	// The source knows neither pair: familiarity zero means no relation.
	f.withTrusts(t, &fakeTrusts{}, 3)

	for i := 0; i < 200 && len(f.memories.trusts) == 0; i++ {
		if _, err := f.clock.Tick(context.Background(), 1); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if len(f.memories.trusts) == 0 {
		t.Fatal("no gossip exchange in 200 ticks")
	}
	for _, tr := range f.memories.trusts {
		if tr != GossipTrust {
			t.Errorf("stranger gossip trust = %v, want %v", tr, GossipTrust)
		}
	}
}

func TestGossipSkipsHostilePairs(t *testing.T) {
	f := newWorldFixture(t, 3)
	now := time.Now()
	f.spawn(t, "a", "Ava", now)
	f.spawn(t, "b", "Bren", now)
	f.withTrusts(t, &fakeTrusts{
		trust: map[[2]string]float64{{"a", "b"}: -0.4, {"b", "a"}: -0.4},
		fam:   1,
	}, 3)

	for i := 0; i < 200; i++ {
		rep, err := f.clock.Tick(context.Background(), 1)
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if rep.Gossiped {
			t.Fatal("hostile pair reported as gossiping")
		}
	}
	if len(f.memories.pairs) != 0 {
		t.Errorf("hostile pair exchanged %d times, want 0", len(f.memories.pairs))
	}
}

func TestTickRollsSuccessorGoals(t *testing.T) {
	f := newWorldFixture(t, 5)
	f.spawn(t, "a", "Ava", time.Now(), types.Goal{
		Type:        types.GoalProtect,
		Description: "Hold the gate",
		Priority:    0.7,
		Progress:    0.999,
	})

	rep, err := f.clock.Tick(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.GoalsRolled != 1 {
		t.Fatalf("GoalsRolled = %d, want 1", rep.GoalsRolled)
	}

	snap := f.snapshot(t, "a")
	if len(snap.Goals) != 1 {
		t.Fatalf("goals after completion = %d, want 1 successor", len(snap.Goals))
	}
	got := snap.Goals[0]
	if got.Description == "Hold the gate" {
		t.Error("completed goal still seated")
	}
	// Factionless agents fall back to the survival template.
	if got.Type != types.GoalSurvive {
		t.Errorf("successor goal type = %q, want %q", got.Type, types.GoalSurvive)
	}
}
