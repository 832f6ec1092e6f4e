package agent

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/pkg/types"
)

var testNow = time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)

// fakeStore is an in-memory agent store safe for concurrent actor writes.
type fakeStore struct {
	mu   sync.Mutex
	rows map[string]types.Agent
	puts int
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]types.Agent)}
}

func (f *fakeStore) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (f *fakeStore) PutAgent(ctx context.Context, a types.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows[a.ID] = a
	f.puts++
	return nil
}

func (f *fakeStore) row(id string) (types.Agent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	return row, ok
}

func (f *fakeStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func newTestRuntime(t *testing.T, store *fakeStore) *Runtime {
	t.Helper()
	rt, err := NewRuntime(Config{Store: store, Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() { rt.Stop(context.Background()) })
	return rt
}

// testAgent uses midline traits so the spawn-time clamp keeps them at exactly
// 0.5 and test arithmetic stays readable.
func testAgent(id string) types.Agent {
	return types.Agent{
		ID:       id,
		Name:     "Garrett",
		Role:     "guard",
		Location: types.Location{Zone: "market"},
		Personality: types.Personality{
			Curiosity: 0.5, Empathy: 0.5, RiskTolerance: 0.5, Aggression: 0.5,
			Discipline: 0.5, Romanticism: 0.5, Opportunism: 0.5, Paranoia: 0.5,
		},
		Vitals:  types.Vitals{Hunger: 0.2, Fatigue: 0.3},
		Mood:    types.Mood{Label: "calm", Arousal: 0.2, Valence: 0.5},
		Faction: "guards",
	}
}

func spawnTestAgent(t *testing.T, rt *Runtime, id string) *Actor {
	t.Helper()
	a, err := rt.Spawn(context.Background(), testAgent(id))
	if err != nil {
		t.Fatalf("spawn %s: %v", id, err)
	}
	return a
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ── trait ledger ──────────────────────────────────────────────────────────────

func TestApplyTraitDelta_RecordsLedgerEntry(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	entry, err := a.ApplyTraitDelta(ctx, types.TraitCuriosity, 0.2, "found a locked chest")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := types.SoftClamp(0.7)
	if !almostEqual(entry.From, 0.5) {
		t.Errorf("entry.From = %v, want 0.5", entry.From)
	}
	if !almostEqual(entry.To, want) {
		t.Errorf("entry.To = %v, want %v", entry.To, want)
	}
	if entry.Delta != 0.2 || entry.Reason != "found a locked chest" {
		t.Errorf("entry = %+v, want delta 0.2 and reason preserved", entry)
	}
	if !entry.At.Equal(testNow) {
		t.Errorf("entry.At = %v, want %v", entry.At, testNow)
	}

	if got := a.Snapshot().Personality.Curiosity; !almostEqual(got, want) {
		t.Errorf("snapshot curiosity = %v, want %v", got, want)
	}
	log := a.DeltaLog()
	if len(log) != 1 {
		t.Fatalf("ledger has %d entries, want exactly 1", len(log))
	}
	if log[0] != entry {
		t.Errorf("ledger entry = %+v, want %+v", log[0], entry)
	}
}

func TestApplyTraitDelta_BoundsHold(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	up, err := a.ApplyTraitDelta(ctx, types.TraitAggression, 50, "impossible spike")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if up.To < 0.05 || up.To > 0.95 {
		t.Errorf("after +50, aggression = %v, want within [0.05, 0.95]", up.To)
	}
	down, err := a.ApplyTraitDelta(ctx, types.TraitAggression, -50, "impossible crash")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if down.To < 0.05 || down.To > 0.95 {
		t.Errorf("after -50, aggression = %v, want within [0.05, 0.95]", down.To)
	}
}

func TestApplyTraitDelta_UnknownTrait(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	_, err := a.ApplyTraitDelta(context.Background(), "charisma", 0.1, "nope")
	if err == nil {
		t.Fatal("expected error for unknown trait")
	}
	if fault.KindOf(err) != fault.InvalidArgument {
		t.Errorf("kind = %v, want %v", fault.KindOf(err), fault.InvalidArgument)
	}
	if len(a.DeltaLog()) != 0 {
		t.Error("rejected write must not reach the ledger")
	}
}

func TestDeltaLog_KeepsNewestUpToCap(t *testing.T) {
	store := newFakeStore()
	rt, err := NewRuntime(Config{Store: store, Now: func() time.Time { return testNow }, DeltaLogCap: 3})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() { rt.Stop(context.Background()) })
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	reasons := []string{"one", "two", "three", "four", "five"}
	for _, reason := range reasons {
		if _, err := a.ApplyTraitDelta(ctx, types.TraitCuriosity, 0.01, reason); err != nil {
			t.Fatalf("apply %s: %v", reason, err)
		}
	}
	log := a.DeltaLog()
	if len(log) != 3 {
		t.Fatalf("ledger has %d entries, want 3", len(log))
	}
	if log[0].Reason != "three" || log[2].Reason != "five" {
		t.Errorf("ledger reasons = [%s %s %s], want oldest dropped", log[0].Reason, log[1].Reason, log[2].Reason)
	}
}

// ── vitals ────────────────────────────────────────────────────────────────────

func TestAdvanceVitals(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	v, err := a.AdvanceVitals(ctx, 2)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !almostEqual(v.Hunger, 0.7) {
		t.Errorf("hunger = %v, want 0.7 after 2h", v.Hunger)
	}
	if !almostEqual(v.Fatigue, 0.3+2.0/6) {
		t.Errorf("fatigue = %v, want %v after 2h", v.Fatigue, 0.3+2.0/6)
	}

	v, err = a.AdvanceVitals(ctx, 100)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if v.Hunger != 1 || v.Fatigue != 1 {
		t.Errorf("vitals = %+v, want both capped at 1", v)
	}
}

func TestAdvanceVitals_RejectsNegativeHours(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	if _, err := a.AdvanceVitals(context.Background(), -1); err == nil {
		t.Fatal("expected error for negative hours")
	}
	if got := a.Snapshot().Vitals; !almostEqual(got.Hunger, 0.2) {
		t.Errorf("hunger = %v, want untouched 0.2", got.Hunger)
	}
}

func TestRestAndEat_AreTheOnlyDecreases(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	if _, err := a.AdvanceVitals(ctx, 2); err != nil {
		t.Fatalf("advance: %v", err)
	}

	v, err := a.Rest(ctx, 1.5)
	if err != nil {
		t.Fatalf("rest: %v", err)
	}
	wantFatigue := 0.3 + 2.0/6 - 1.5/3
	if !almostEqual(v.Fatigue, wantFatigue) {
		t.Errorf("fatigue = %v, want %v after 1.5h rest", v.Fatigue, wantFatigue)
	}

	v, err = a.Eat(ctx)
	if err != nil {
		t.Fatalf("eat: %v", err)
	}
	if !almostEqual(v.Hunger, 0.1) {
		t.Errorf("hunger = %v, want 0.1 after one meal", v.Hunger)
	}
	v, err = a.Eat(ctx)
	if err != nil {
		t.Fatalf("second eat: %v", err)
	}
	if v.Hunger != 0 {
		t.Errorf("hunger = %v, want floored at 0", v.Hunger)
	}
}

// ── actions and mood ──────────────────────────────────────────────────────────

func TestApplyAction_ThreatReaction(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	res, err := a.ApplyAction(context.Background(), "draws a weapon and steps closer", nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Reaction != MoodThreatened {
		t.Errorf("reaction = %q, want %q", res.Reaction, MoodThreatened)
	}
	if res.Mood.Label != MoodThreatened {
		t.Errorf("label = %q, want %q", res.Mood.Label, MoodThreatened)
	}
	if !almostEqual(res.Mood.Arousal, 0.5*0.95) {
		t.Errorf("arousal = %v, want %v", res.Mood.Arousal, 0.5*0.95)
	}
	if !almostEqual(res.Mood.Valence, 0.5+(0.2-0.5)*0.9) {
		t.Errorf("valence = %v, want %v", res.Mood.Valence, 0.5+(0.2-0.5)*0.9)
	}
	if res.MemoryNote != "Player action: draws a weapon and steps closer" {
		t.Errorf("memory note = %q", res.MemoryNote)
	}
}

func TestApplyAction_HelpReaction(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	res, err := a.ApplyAction(context.Background(), "offers to help carry the crates", nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Reaction != MoodGrateful {
		t.Errorf("reaction = %q, want %q", res.Reaction, MoodGrateful)
	}
	if !almostEqual(res.Mood.Valence, 0.5+(0.7-0.5)*0.9) {
		t.Errorf("valence = %v, want %v", res.Mood.Valence, 0.5+(0.7-0.5)*0.9)
	}
	if !almostEqual(res.Mood.Arousal, 0.1*0.95) {
		t.Errorf("arousal = %v, want %v", res.Mood.Arousal, 0.1*0.95)
	}
}

func TestApplyAction_NeutralActionOnlySettles(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	res, err := a.ApplyAction(context.Background(), "asks about the weather", nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Reaction != "" {
		t.Errorf("reaction = %q, want none", res.Reaction)
	}
	if res.Mood.Label != "calm" {
		t.Errorf("label = %q, want unchanged calm", res.Mood.Label)
	}
	if !almostEqual(res.Mood.Arousal, 0.2*0.95) {
		t.Errorf("arousal = %v, want settled %v", res.Mood.Arousal, 0.2*0.95)
	}
}

func TestApplyAction_FrameShiftLandsAfterSettling(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	frame := &types.CognitiveFrame{
		Intent:    types.IntentGuard,
		MoodShift: types.MoodShift{Label: "wary", Arousal: 0.1, Valence: -0.1},
		Urgency:   0.5,
	}
	res, err := a.ApplyAction(context.Background(), "asks about the weather", frame)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Mood.Label != "wary" {
		t.Errorf("label = %q, want frame label wary", res.Mood.Label)
	}
	if !almostEqual(res.Mood.Arousal, 0.2*0.95+0.1) {
		t.Errorf("arousal = %v, want settled plus shift", res.Mood.Arousal)
	}
	if len(res.Drift) != 0 {
		t.Errorf("drift = %v, want none at urgency 0.5", res.Drift)
	}
}

func TestApplyAction_HighUrgencyThreatDriftsParanoia(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	frame := &types.CognitiveFrame{Intent: types.IntentGuard, Urgency: 0.9}
	res, err := a.ApplyAction(context.Background(), "shouts a threat across the square", frame)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Drift) != 1 {
		t.Fatalf("drift entries = %d, want 1", len(res.Drift))
	}
	d := res.Drift[0]
	if d.Trait != types.TraitParanoia || d.Delta != ThreatParanoiaDrift {
		t.Errorf("drift = %+v, want paranoia %+v", d, ThreatParanoiaDrift)
	}
	if want := types.SoftClamp(0.6); !almostEqual(a.Snapshot().Personality.Paranoia, want) {
		t.Errorf("paranoia = %v, want %v", a.Snapshot().Personality.Paranoia, want)
	}
	if len(a.DeltaLog()) != 1 {
		t.Errorf("ledger entries = %d, want exactly 1", len(a.DeltaLog()))
	}
}

func TestApplyAction_IntentBreaksDriftTies(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	frame := &types.CognitiveFrame{Intent: types.IntentAssist, Urgency: 0.8}
	res, err := a.ApplyAction(context.Background(), "hands over a sealed package", frame)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Drift) != 1 {
		t.Fatalf("drift entries = %d, want 1", len(res.Drift))
	}
	if res.Drift[0].Trait != types.TraitEmpathy || res.Drift[0].Delta != AssistEmpathyDrift {
		t.Errorf("drift = %+v, want empathy %+v", res.Drift[0], AssistEmpathyDrift)
	}
}

func TestApplyAction_UrgencyAtThresholdDoesNotDrift(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	frame := &types.CognitiveFrame{Intent: types.IntentAttack, Urgency: DriftUrgency}
	res, err := a.ApplyAction(context.Background(), "brandishes a weapon", frame)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Drift) != 0 {
		t.Errorf("drift = %v, want none at the threshold", res.Drift)
	}
}

func TestApplyAction_TouchesLastActive(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	if _, err := a.ApplyAction(context.Background(), "nods", nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := a.Snapshot().LastActiveAt; !got.Equal(testNow) {
		t.Errorf("last active = %v, want %v", got, testNow)
	}
}

// ── goals ─────────────────────────────────────────────────────────────────────

func TestGoals_SortedStrongestFirst(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	if _, err := a.SetGoal(ctx, types.Goal{ID: "g1", Type: types.GoalTrade, Description: "sell the surplus", Priority: 0.4}); err != nil {
		t.Fatalf("set g1: %v", err)
	}
	if _, err := a.SetGoal(ctx, types.Goal{ID: "g2", Type: types.GoalProtect, Description: "watch the gate", Priority: 0.9}); err != nil {
		t.Fatalf("set g2: %v", err)
	}

	goals := a.Snapshot().Goals
	if len(goals) != 2 {
		t.Fatalf("got %d goals, want 2", len(goals))
	}
	if goals[0].ID != "g2" || goals[1].ID != "g1" {
		t.Errorf("goal order = [%s %s], want strongest first", goals[0].ID, goals[1].ID)
	}
}

func TestSetGoal_GeneratesIDAndReplaces(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	g, err := a.SetGoal(ctx, types.Goal{Type: types.GoalSurvive, Description: "stock up for winter", Priority: 0.5})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if g.ID == "" {
		t.Fatal("goal id not generated")
	}
	if !g.CreatedAt.Equal(testNow) {
		t.Errorf("created at = %v, want %v", g.CreatedAt, testNow)
	}

	g.Priority = 0.8
	if _, err := a.SetGoal(ctx, g); err != nil {
		t.Fatalf("replace: %v", err)
	}
	goals := a.Snapshot().Goals
	if len(goals) != 1 {
		t.Fatalf("got %d goals, want 1 after replace", len(goals))
	}
	if goals[0].Priority != 0.8 {
		t.Errorf("priority = %v, want 0.8", goals[0].Priority)
	}
}

func TestSetGoal_Validates(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	if _, err := a.SetGoal(ctx, types.Goal{Type: types.GoalTrade}); err == nil {
		t.Error("expected error for empty description")
	}
	if _, err := a.SetGoal(ctx, types.Goal{Type: "conquer_the_moon", Description: "x"}); err == nil {
		t.Error("expected error for unknown goal type")
	}
}

func TestProgressGoal_CompletesAndRemoves(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	if _, err := a.SetGoal(ctx, types.Goal{ID: "g1", Type: types.GoalHunt, Description: "track the wolf", Priority: 0.6, Progress: 0.5}); err != nil {
		t.Fatalf("set: %v", err)
	}

	g, completed, err := a.ProgressGoal(ctx, "g1", 0.3)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if completed {
		t.Error("goal at 0.8 reported completed")
	}
	if !almostEqual(g.Progress, 0.8) {
		t.Errorf("progress = %v, want 0.8", g.Progress)
	}

	g, completed, err = a.ProgressGoal(ctx, "g1", 0.3)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !completed {
		t.Error("goal reaching 1.0 not reported completed")
	}
	if g.Progress != 1 {
		t.Errorf("progress = %v, want clamped 1", g.Progress)
	}
	if len(a.Snapshot().Goals) != 0 {
		t.Error("completed goal still in the active list")
	}
}

func TestProgressGoal_Missing(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	_, _, err := a.ProgressGoal(context.Background(), "ghost", 0.1)
	if err == nil {
		t.Fatal("expected error for unknown goal")
	}
	if fault.KindOf(err) != fault.InvalidArgument {
		t.Errorf("kind = %v, want %v", fault.KindOf(err), fault.InvalidArgument)
	}
}

func TestAbandonGoal(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	if _, err := a.SetGoal(ctx, types.Goal{ID: "g1", Type: types.GoalRevenge, Description: "find the thief", Priority: 0.7}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := a.AbandonGoal(ctx, "g1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if len(a.Snapshot().Goals) != 0 {
		t.Error("abandoned goal still present")
	}
	if err := a.AbandonGoal(ctx, "g1"); err == nil {
		t.Error("expected error abandoning twice")
	}
}

// ── snapshots ─────────────────────────────────────────────────────────────────

func TestSnapshot_OldReadsStayStable(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")

	before := a.Snapshot()
	if _, err := a.ApplyTraitDelta(context.Background(), types.TraitCuriosity, 0.3, "shift"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !almostEqual(before.Personality.Curiosity, 0.5) {
		t.Errorf("held snapshot curiosity = %v, want unchanged 0.5", before.Personality.Curiosity)
	}
	if after := a.Snapshot().Personality.Curiosity; almostEqual(after, 0.5) {
		t.Errorf("fresh snapshot curiosity = %v, want shifted", after)
	}
}

func TestActor_ConcurrentMutations(t *testing.T) {
	rt := newTestRuntime(t, newFakeStore())
	a := spawnTestAgent(t, rt, "npc-1")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.AdvanceVitals(ctx, 0.1); err != nil {
				t.Errorf("advance: %v", err)
			}
		}()
	}
	wg.Wait()

	want := 0.2 + workers*0.1/4
	if got := a.Snapshot().Vitals.Hunger; !almostEqual(got, want) {
		t.Errorf("hunger = %v, want %v after %d serialized advances", got, want, workers)
	}
}
