package quest

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/relation"
	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

var testNow = time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)

type fakeStore struct {
	quests map[string]types.Quest
}

func newFakeStore() *fakeStore {
	return &fakeStore{quests: make(map[string]types.Quest)}
}

func (f *fakeStore) PutQuest(ctx context.Context, q types.Quest) error {
	f.quests[q.ID] = q
	return nil
}

func (f *fakeStore) GetQuest(ctx context.Context, id string) (*types.Quest, error) {
	q, ok := f.quests[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (f *fakeStore) ListQuests(ctx context.Context, filter store.QuestFilter) ([]types.Quest, error) {
	var out []types.Quest
	for _, q := range f.quests {
		if filter.GiverID != "" && q.GiverID != filter.GiverID {
			continue
		}
		if filter.PlayerID != "" && q.PlayerID != filter.PlayerID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeStore) ExpireQuests(ctx context.Context, nowHours float64) ([]types.Quest, error) {
	var expired []types.Quest
	for id, q := range f.quests {
		open := q.Status == types.QuestAvailable || q.Status == types.QuestAccepted
		if open && q.ExpiresAtHours > 0 && q.ExpiresAtHours <= nowHours {
			q.Status = types.QuestExpired
			f.quests[id] = q
			expired = append(expired, q)
		}
	}
	return expired, nil
}

type fakeAgents struct {
	agents map[string]*types.Agent
}

func (f *fakeAgents) Snapshot(id string) (*types.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, fault.New(fault.AgentUnknown, "agent "+id+" is not running")
	}
	return a, nil
}

type fakeMemories struct {
	memories []types.Memory
	err      error
}

func (f *fakeMemories) Retrieve(ctx context.Context, owner string, opts ...memory.RetrieveOpt) ([]types.Memory, error) {
	return f.memories, f.err
}

type repCall struct {
	playerID  string
	agentID   string
	factionID string
	delta     float64
	enemies   []string
}

type fakeReputations struct {
	calls []repCall
}

func (f *fakeReputations) ApplyPlayerDelta(ctx context.Context, playerID, agentID, factionID string, trustDelta float64, enemies []string) (*relation.PlayerEffect, error) {
	f.calls = append(f.calls, repCall{playerID, agentID, factionID, trustDelta, enemies})
	return &relation.PlayerEffect{AgentScore: trustDelta}, nil
}

type fakeFactions struct {
	enemies map[string][]string
}

func (f *fakeFactions) Enemies(factionID string) []string { return f.enemies[factionID] }

type recorder struct {
	kinds    []types.EventKind
	messages []string
}

func (r *recorder) Record(kind types.EventKind, message string, actors ...string) {
	r.kinds = append(r.kinds, kind)
	r.messages = append(r.messages, message)
}

func (r *recorder) count(kind types.EventKind) int {
	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	engine *Engine
	store  *fakeStore
	reps   *fakeReputations
	events *recorder
	mems   *fakeMemories
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store:  newFakeStore(),
		reps:   &fakeReputations{},
		events: &recorder{},
		mems:   &fakeMemories{},
	}
	agents := &fakeAgents{agents: map[string]*types.Agent{
		"giver-1": {ID: "giver-1", Name: "Garrett Stone", Role: "guard", Faction: "guards"},
		"giver-2": {ID: "giver-2", Name: "Elena Vale", Role: "merchant", Faction: "traders"},
	}}
	e, err := New(Config{
		Store:       fx.store,
		Agents:      agents,
		Memories:    fx.mems,
		Reputations: fx.reps,
		Factions:    &fakeFactions{enemies: map[string][]string{"guards": {"outcasts"}}},
		Dice:        rand.New(rand.NewPCG(1, 1)),
		Events:      fx.events,
		Now:         func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fx.engine = e
	return fx
}

func TestGenerateAmbient(t *testing.T) {
	fx := newFixture(t)

	q, err := fx.engine.Generate(context.Background(), "giver-1", "", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	switch q.Type {
	case types.QuestFetch, types.QuestTrade, types.QuestProtect:
	default:
		t.Errorf("ambient quest type = %s, want fetch/trade/protect", q.Type)
	}
	if q.Status != types.QuestAvailable {
		t.Errorf("status = %s, want available", q.Status)
	}
	if q.PlayerID != "" {
		t.Errorf("ambient quest bound to player %q", q.PlayerID)
	}
	if q.ExpiresAtHours != 10+ExpiryHours {
		t.Errorf("expires at %v, want %v", q.ExpiresAtHours, 10+float64(ExpiryHours))
	}
	if strings.Contains(q.Title, "{") || strings.Contains(q.Description, "{") {
		t.Errorf("unfilled placeholder: %q / %q", q.Title, q.Description)
	}
	if q.Rewards != q.Difficulty.Rewards() {
		t.Errorf("rewards = %+v, want %+v", q.Rewards, q.Difficulty.Rewards())
	}
	if fx.events.count(types.EventQuestOffered) != 1 {
		t.Errorf("quest_offered events = %d, want 1", fx.events.count(types.EventQuestOffered))
	}
	if !strings.Contains(fx.events.messages[0], "Garrett Stone") {
		t.Errorf("event should name the giver: %q", fx.events.messages[0])
	}
}

func TestGeneratePersonalisedByMemories(t *testing.T) {
	fx := newFixture(t)
	fx.mems.memories = []types.Memory{
		{
			Category:        types.MemoryCrime,
			Content:         "Saw the player fight off a bandit raid",
			EmotionalWeight: 0.9,
		},
	}

	q, err := fx.engine.Generate(context.Background(), "giver-1", "player-1", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q.Type != types.QuestInvestigate && q.Type != types.QuestRevenge {
		t.Errorf("crime memory quest type = %s, want investigate or revenge", q.Type)
	}
	if q.PlayerID != "player-1" {
		t.Errorf("player = %q, want player-1", q.PlayerID)
	}
	if !strings.HasSuffix(q.Description, contextAdditions[types.MemoryCrime]) {
		t.Errorf("description missing crime context: %q", q.Description)
	}
}

func TestAcceptLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	q, err := fx.engine.Generate(ctx, "giver-1", "", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	accepted, err := fx.engine.Accept(ctx, q.ID, "player-1")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != types.QuestAccepted || accepted.PlayerID != "player-1" {
		t.Errorf("accepted = %s/%s, want accepted/player-1", accepted.Status, accepted.PlayerID)
	}

	// Second accept fails: the quest is no longer available.
	if _, err := fx.engine.Accept(ctx, q.ID, "player-2"); !fault.Is(err, fault.InvalidArgument) {
		t.Errorf("double accept error = %v, want invalid_argument", err)
	}
	// Unknown quest id fails.
	if _, err := fx.engine.Accept(ctx, "nope", "player-1"); !fault.Is(err, fault.InvalidArgument) {
		t.Errorf("unknown quest error = %v, want invalid_argument", err)
	}
}

func TestCompletePaysReputation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	q, err := fx.engine.Generate(ctx, "giver-1", "", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := fx.engine.Accept(ctx, q.ID, "player-1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	res, err := fx.engine.Complete(ctx, q.ID, "player-1", 5)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Quest.Status != types.QuestCompleted {
		t.Errorf("status = %s, want completed", res.Quest.Status)
	}
	if res.Rewards != q.Difficulty.Rewards() {
		t.Errorf("rewards = %+v, want %+v", res.Rewards, q.Difficulty.Rewards())
	}

	if len(fx.reps.calls) != 1 {
		t.Fatalf("reputation calls = %d, want 1", len(fx.reps.calls))
	}
	call := fx.reps.calls[0]
	if call.playerID != "player-1" || call.agentID != "giver-1" || call.factionID != "guards" {
		t.Errorf("reputation call = %+v", call)
	}
	if call.delta != q.Rewards.Reputation {
		t.Errorf("delta = %v, want %v", call.delta, q.Rewards.Reputation)
	}
	if len(call.enemies) != 1 || call.enemies[0] != "outcasts" {
		t.Errorf("enemies = %v, want [outcasts]", call.enemies)
	}
	if fx.events.count(types.EventQuestCompleted) != 1 {
		t.Errorf("quest_completed events = %d, want 1", fx.events.count(types.EventQuestCompleted))
	}

	// Completing again fails.
	if _, err := fx.engine.Complete(ctx, q.ID, "player-1", 5); !fault.Is(err, fault.InvalidArgument) {
		t.Errorf("double complete error = %v, want invalid_argument", err)
	}
}

func TestCompleteRejectsWrongPlayer(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	q, err := fx.engine.Generate(ctx, "giver-1", "", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := fx.engine.Accept(ctx, q.ID, "player-1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := fx.engine.Complete(ctx, q.ID, "player-2", 0); !fault.Is(err, fault.InvalidArgument) {
		t.Errorf("wrong player error = %v, want invalid_argument", err)
	}
}

func TestChainRunsAllStages(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// giver-1 is a guard, so the guard storyline is the only fit.
	q, err := fx.engine.StartChain(ctx, "giver-1", "player-1", 0)
	if err != nil {
		t.Fatalf("StartChain: %v", err)
	}
	if q.ChainStage != 0 || q.Status != types.QuestAccepted {
		t.Errorf("first stage = stage %d status %s, want 0/accepted", q.ChainStage, q.Status)
	}
	if !strings.HasPrefix(q.ChainID, "bandit_hunt-") {
		t.Errorf("chain id = %q, want bandit_hunt prefix", q.ChainID)
	}
	if !strings.Contains(q.Title, "(1/4)") {
		t.Errorf("title = %q, want stage marker (1/4)", q.Title)
	}

	// Walk the storyline to the end.
	for stage := 0; ; stage++ {
		res, err := fx.engine.Complete(ctx, q.ID, "player-1", float64(stage))
		if err != nil {
			t.Fatalf("Complete stage %d: %v", stage, err)
		}
		if res.Next == nil {
			if stage != 3 {
				t.Errorf("storyline ended at stage %d, want 3", stage)
			}
			break
		}
		if res.Next.ChainStage != stage+1 {
			t.Errorf("next stage = %d, want %d", res.Next.ChainStage, stage+1)
		}
		if res.Next.ChainID != q.ChainID {
			t.Errorf("next chain id = %q, want %q", res.Next.ChainID, q.ChainID)
		}
		if res.Next.Status != types.QuestAccepted {
			t.Errorf("next stage status = %s, want accepted", res.Next.Status)
		}
		q = res.Next
	}

	if q.Difficulty != types.QuestHard {
		t.Errorf("final stage difficulty = %s, want hard", q.Difficulty)
	}
	// One offer per stage beyond the first, plus the chain start.
	if got := fx.events.count(types.EventQuestOffered); got != 4 {
		t.Errorf("quest_offered events = %d, want 4", got)
	}
	if got := fx.events.count(types.EventQuestCompleted); got != 4 {
		t.Errorf("quest_completed events = %d, want 4", got)
	}
}

func TestExpireDueRecordsEvents(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.engine.Generate(ctx, "giver-1", "", 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := fx.engine.Generate(ctx, "giver-2", "", 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Not yet due.
	expired, err := fx.engine.ExpireDue(ctx, ExpiryHours-1)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expired %d quests early", len(expired))
	}

	expired, err = fx.engine.ExpireDue(ctx, ExpiryHours+1)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expired = %d, want 2", len(expired))
	}
	if got := fx.events.count(types.EventQuestExpired); got != 2 {
		t.Errorf("quest_expired events = %d, want 2", got)
	}
	for _, q := range expired {
		if q.Status != types.QuestExpired {
			t.Errorf("quest %s status = %s, want expired", q.ID, q.Status)
		}
	}
}

func TestForListsOwnAndUnclaimed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ambient, err := fx.engine.Generate(ctx, "giver-1", "", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mine, err := fx.engine.Generate(ctx, "giver-2", "player-1", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	theirs, err := fx.engine.Generate(ctx, "giver-2", "player-2", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	qs, err := fx.engine.For(ctx, "player-1")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	ids := map[string]bool{}
	for _, q := range qs {
		ids[q.ID] = true
	}
	if !ids[ambient.ID] || !ids[mine.ID] {
		t.Errorf("player-1 should see ambient and own quests, got %v", ids)
	}
	if ids[theirs.ID] {
		t.Error("player-1 should not see another player's personalised quest")
	}
}
