package tier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/solmae/animus/pkg/types"
)

var testNow = time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)

type fakePresence struct {
	touches map[string]time.Time
	zones   map[string]bool
}

func (f *fakePresence) LastAgentTouch(agentID string) time.Time { return f.touches[agentID] }
func (f *fakePresence) PlayerZones() map[string]bool            { return f.zones }

type fakeConversations struct {
	members map[string]bool
}

func (f *fakeConversations) InConversation(agentID string) bool { return f.members[agentID] }

func dueIDs(p Plan) []string {
	ids := make([]string, 0, len(p.Due))
	for _, a := range p.Due {
		ids = append(ids, a.Agent.ID)
	}
	return ids
}

func testAgent(id, zone string, lastActive time.Time) *types.Agent {
	return &types.Agent{
		ID:           id,
		Name:         "Agent " + id,
		Location:     types.Location{Zone: zone},
		LastActiveAt: lastActive,
	}
}

func TestClassify(t *testing.T) {
	pres := &fakePresence{
		touches: map[string]time.Time{
			"touched": testNow.Add(-30 * time.Second),
			"stale":   testNow.Add(-10 * time.Minute),
		},
		zones: map[string]bool{"tavern": true},
	}
	convos := &fakeConversations{members: map[string]bool{"talking": true}}
	s := New(Config{Presence: pres, Conversations: convos, Logger: slog.Default()})

	old := testNow.Add(-2 * time.Hour)
	tests := []struct {
		name  string
		agent *types.Agent
		want  Tier
	}{
		{"in conversation", testAgent("talking", "", old), Active},
		{"recent player exchange", testAgent("touched", "", old), Active},
		{"recent own activity", testAgent("a", "", testNow.Add(-10 * time.Second)), Active},
		{"player in zone", testAgent("a", "tavern", old), Nearby},
		{"stale touch, empty zone", testAgent("stale", "", old), Idle},
		{"never touched", testAgent("a", "cellar", time.Time{}), Dormant},
		{"long silent", testAgent("a", "cellar", testNow.Add(-45 * time.Minute)), Dormant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Classify(tt.agent, testNow, pres.zones); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueCadence(t *testing.T) {
	const ticksPerHour = 4
	counts := map[Tier]int{}
	for tick := uint64(1); tick <= 8; tick++ {
		for _, tier := range []Tier{Active, Nearby, Idle, Dormant} {
			if Due(tier, tick, ticksPerHour) {
				counts[tier]++
			}
		}
	}
	want := map[Tier]int{Active: 8, Nearby: 4, Idle: 1, Dormant: 2}
	for tier, n := range want {
		if counts[tier] != n {
			t.Errorf("%s fired %d times over 8 ticks, want %d", tier, counts[tier], n)
		}
	}

	// A tick spanning multiple hours still heartbeats Dormant every tick.
	if !Due(Dormant, 3, 0) {
		t.Error("Dormant should fire every tick when ticksPerHour < 1")
	}
}

func TestStrideMatchesCadence(t *testing.T) {
	tests := []struct {
		tier         Tier
		ticksPerHour int
		want         int
	}{
		{Active, 4, 1},
		{Nearby, 4, 2},
		{Idle, 4, 8},
		{Dormant, 4, 4},
		{Dormant, 0, 1},
	}
	for _, tt := range tests {
		if got := Stride(tt.tier, tt.ticksPerHour); got != tt.want {
			t.Errorf("Stride(%s, %d) = %d, want %d", tt.tier, tt.ticksPerHour, got, tt.want)
		}
	}
}

func TestCensusBound(t *testing.T) {
	c := Census{Active: 4, Nearby: 8, Idle: 16, Dormant: 40}
	if got, want := c.Total(), 68; got != want {
		t.Errorf("Total = %d, want %d", got, want)
	}
	// 4 + 8/2 + 16/8 + 40/4 = 20
	if got, want := c.Bound(4), 20.0; got != want {
		t.Errorf("Bound = %v, want %v", got, want)
	}
}

func TestPlanSelectsDueAgents(t *testing.T) {
	pres := &fakePresence{
		touches: map[string]time.Time{"a1": testNow.Add(-5 * time.Second)},
		zones:   map[string]bool{"market": true},
	}
	s := New(Config{Presence: pres})

	old := testNow.Add(-2 * time.Hour)
	agents := []*types.Agent{
		testAgent("a1", "", old),                           // Active
		testAgent("a2", "market", old),                     // Nearby
		testAgent("a3", "", testNow.Add(-10*time.Minute)),  // Idle
		testAgent("a4", "cellar", time.Time{}),             // Dormant
	}

	// Tick 1: only Active fires.
	p := s.Plan(agents, testNow, 1, 4)
	if want := (Census{Active: 1, Nearby: 1, Idle: 1, Dormant: 1}); p.Census != want {
		t.Errorf("census = %+v, want %+v", p.Census, want)
	}
	if len(p.Due) != 1 || p.Due[0].Agent.ID != "a1" {
		t.Fatalf("tick 1 due = %v, want [a1]", dueIDs(p))
	}

	// Tick 8: Active, Nearby, Idle and Dormant (8 % 4 == 0) all fire.
	p = s.Plan(agents, testNow, 8, 4)
	if got, want := len(p.Due), 4; got != want {
		t.Fatalf("tick 8 due = %v, want all four", dueIDs(p))
	}
	for i, id := range []string{"a1", "a2", "a3", "a4"} {
		if p.Due[i].Agent.ID != id {
			t.Errorf("due[%d] = %s, want %s (input order preserved)", i, p.Due[i].Agent.ID, id)
		}
	}
}

func TestPlanBudgetIsAdvisory(t *testing.T) {
	pres := &fakePresence{
		touches: map[string]time.Time{
			"a1": testNow.Add(-time.Second),
			"a2": testNow.Add(-time.Second),
			"a3": testNow.Add(-time.Second),
		},
		zones: map[string]bool{},
	}
	var over int
	s := New(Config{Presence: pres, Budget: 2, OverBudget: func(n int) { over = n }})

	agents := []*types.Agent{
		testAgent("a1", "", time.Time{}),
		testAgent("a2", "", time.Time{}),
		testAgent("a3", "", time.Time{}),
	}
	p := s.Plan(agents, testNow, 1, 1)
	if over != 1 {
		t.Errorf("overrun = %d, want 1", over)
	}
	// Advisory only: nothing is dropped.
	if got, want := len(p.Due), 3; got != want {
		t.Errorf("due = %d agents, want %d", got, want)
	}
}

func TestRunCountsFailuresAndKeepsGoing(t *testing.T) {
	pres := &fakePresence{touches: map[string]time.Time{}, zones: map[string]bool{}}
	s := New(Config{Presence: pres, Workers: 2})

	plan := Plan{}
	for i := 0; i < 10; i++ {
		plan.Due = append(plan.Due, Assignment{
			Agent: testAgent(fmt.Sprintf("a%02d", i), "", time.Time{}),
			Tier:  Idle,
		})
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	rep := s.Run(context.Background(), plan, func(ctx context.Context, a *types.Agent, tier Tier) error {
		mu.Lock()
		seen[a.ID] = true
		mu.Unlock()
		if a.ID == "a03" || a.ID == "a07" {
			return errors.New("boom")
		}
		return nil
	})

	if rep.Updated != 8 || rep.Errors != 2 {
		t.Errorf("report = %+v, want 8 updated, 2 errors", rep)
	}
	if len(seen) != 10 {
		t.Errorf("ran %d agents, want 10", len(seen))
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	pres := &fakePresence{touches: map[string]time.Time{}, zones: map[string]bool{}}
	s := New(Config{Presence: pres, Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := Plan{Due: []Assignment{{Agent: testAgent("a1", "", time.Time{}), Tier: Idle}}}
	rep := s.Run(ctx, plan, func(ctx context.Context, a *types.Agent, tier Tier) error {
		t.Error("update ran after cancellation")
		return nil
	})
	if rep.Updated != 0 {
		t.Errorf("updated = %d, want 0", rep.Updated)
	}
}
