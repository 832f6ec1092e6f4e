package clock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/pkg/types"
)

// ── fakes ──

type fakeEventStore struct {
	mu     sync.Mutex
	events []types.WorldEvent
	seq    uint64
	fail   bool
}

func (s *fakeEventStore) AppendWorldEvent(_ context.Context, ev types.WorldEvent) (types.WorldEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return types.WorldEvent{}, errors.New("store down")
	}
	s.seq++
	ev.Seq = s.seq
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *fakeEventStore) ListWorldEvents(_ context.Context, limit int) ([]types.WorldEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	out := make([]types.WorldEvent, len(evs))
	copy(out, evs)
	return out, nil
}

func (s *fakeEventStore) LastEventSeq(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, nil
}

func (s *fakeEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestLog(t *testing.T, st *fakeEventStore, capacity int) *EventLog {
	t.Helper()
	l, err := NewEventLog(context.Background(), st, capacity, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	return l
}

// ── dice ──

func TestDiceReplays(t *testing.T) {
	a, b := NewDice(7), NewDice(7)
	for i := 0; i < 32; i++ {
		if got, want := a.Float64(), b.Float64(); got != want {
			t.Fatalf("draw %d: got %v, want %v", i, got, want)
		}
		if got, want := a.IntN(100), b.IntN(100); got != want {
			t.Fatalf("int draw %d: got %d, want %d", i, got, want)
		}
	}
}

func TestDiceSeedsDiffer(t *testing.T) {
	a, b := NewDice(7), NewDice(8)
	same := true
	for i := 0; i < 8; i++ {
		if a.Float64() != b.Float64() {
			same = false
		}
	}
	if same {
		t.Error("seeds 7 and 8 produced identical streams")
	}
}

func TestDeriveDiceStreams(t *testing.T) {
	a1, a2 := DeriveDice(7, "alpha"), DeriveDice(7, "alpha")
	for i := 0; i < 16; i++ {
		if got, want := a1.Float64(), a2.Float64(); got != want {
			t.Fatalf("derived draw %d: got %v, want %v", i, got, want)
		}
	}

	alpha, beta := DeriveDice(7, "alpha"), DeriveDice(7, "beta")
	same := true
	for i := 0; i < 8; i++ {
		if alpha.Float64() != beta.Float64() {
			same = false
		}
	}
	if same {
		t.Error("streams alpha and beta are identical")
	}
}

func TestDicePoolIsStablePerAgent(t *testing.T) {
	pool := NewDicePool(7)
	if pool.For("npc-1") != pool.For("npc-1") {
		t.Fatal("pool handed out two streams for one agent")
	}
	if got, want := pool.Float64("npc-2"), DeriveDice(7, "npc-2").Float64(); got != want {
		t.Errorf("pool draw = %v, want derived %v", got, want)
	}
}

// ── seed bootstrap ──

func TestLoadSeedPrefersStored(t *testing.T) {
	meta := newFakeMeta()
	meta.meta[store.MetaSeed] = "99"

	seed, err := LoadSeed(context.Background(), meta, 42)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if seed != 99 {
		t.Errorf("seed = %d, want stored 99", seed)
	}
}

func TestLoadSeedPersistsConfigured(t *testing.T) {
	meta := newFakeMeta()

	seed, err := LoadSeed(context.Background(), meta, 42)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if seed != 42 {
		t.Errorf("seed = %d, want 42", seed)
	}
	if got := meta.meta[store.MetaSeed]; got != "42" {
		t.Errorf("stored seed = %q, want \"42\"", got)
	}
}

func TestLoadSeedRollsWhenUnset(t *testing.T) {
	meta := newFakeMeta()

	seed, err := LoadSeed(context.Background(), meta, 0)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if seed == 0 {
		t.Fatal("seed = 0, want a rolled value")
	}

	again, err := LoadSeed(context.Background(), meta, 0)
	if err != nil {
		t.Fatalf("LoadSeed again: %v", err)
	}
	if again != seed {
		t.Errorf("second load = %d, want persisted %d", again, seed)
	}
}

func TestLoadSeedRejectsMalformed(t *testing.T) {
	meta := newFakeMeta()
	meta.meta[store.MetaSeed] = "not-a-number"

	if _, err := LoadSeed(context.Background(), meta, 42); err == nil {
		t.Error("LoadSeed accepted a malformed stored seed")
	}
}

// ── event log ──

func TestEventLogRecordAssignsSeqAndTime(t *testing.T) {
	st := &fakeEventStore{}
	l := newTestLog(t, st, 10)
	l.SetHours(30)

	l.Record(types.EventSkirmish, "Guards clash with outcasts at the gates", "guards", "outcasts")

	got := l.Recent(0)
	if len(got) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(got))
	}
	ev := got[0]
	if ev.Seq != 1 {
		t.Errorf("Seq = %d, want 1", ev.Seq)
	}
	if ev.Time.Day != 2 || ev.Time.Hour != 6 {
		t.Errorf("Time = %s, want day 2 06:00", ev.Time)
	}
	if len(ev.Actors) != 2 {
		t.Errorf("Actors = %v, want two", ev.Actors)
	}
	if st.count() != 1 {
		t.Errorf("store events = %d, want 1", st.count())
	}
}

func TestEventLogRingKeepsNewest(t *testing.T) {
	st := &fakeEventStore{}
	l := newTestLog(t, st, 3)

	for i := 0; i < 5; i++ {
		l.Record(types.EventTradeDeal, "A caravan arrives")
	}

	got := l.Recent(0)
	if len(got) != 3 {
		t.Fatalf("ring size = %d, want 3", len(got))
	}
	for i, want := range []uint64{3, 4, 5} {
		if got[i].Seq != want {
			t.Errorf("ring[%d].Seq = %d, want %d", i, got[i].Seq, want)
		}
	}
	if st.count() != 5 {
		t.Errorf("store events = %d, want all 5", st.count())
	}

	if limited := l.Recent(2); len(limited) != 2 || limited[0].Seq != 4 {
		t.Errorf("Recent(2) = %v, want seqs 4 and 5", limited)
	}
}

func TestEventLogSince(t *testing.T) {
	l := newTestLog(t, &fakeEventStore{}, 10)
	for i := 0; i < 4; i++ {
		l.Record(types.EventTradeDeal, "A deal closes")
	}

	got := l.Since(2)
	if len(got) != 2 || got[0].Seq != 3 || got[1].Seq != 4 {
		t.Fatalf("Since(2) seqs = %v, want [3 4]", got)
	}
	if rest := l.Since(4); len(rest) != 0 {
		t.Errorf("Since(4) = %v, want empty", rest)
	}
}

func TestEventLogWarmStartsFromStore(t *testing.T) {
	st := &fakeEventStore{}
	st.events = []types.WorldEvent{
		{Seq: 1, Kind: types.EventSkirmish, Message: "old clash"},
		{Seq: 2, Kind: types.EventTradeDeal, Message: "old deal"},
	}
	st.seq = 2

	l := newTestLog(t, st, 10)
	if got := l.Recent(0); len(got) != 2 {
		t.Fatalf("warm ring = %d events, want 2", len(got))
	}
	if l.LastSeq() != 2 {
		t.Errorf("LastSeq = %d, want 2", l.LastSeq())
	}

	l.Record(types.EventBetrayal, "a pact collapses")
	if got := l.Recent(1); got[0].Seq != 3 {
		t.Errorf("next Seq = %d, want 3", got[0].Seq)
	}
}

func TestEventLogSurvivesStoreFailure(t *testing.T) {
	st := &fakeEventStore{}
	l := newTestLog(t, st, 10)
	l.Record(types.EventSkirmish, "first")

	st.mu.Lock()
	st.fail = true
	st.mu.Unlock()

	l.Record(types.EventSkirmish, "second")

	got := l.Recent(0)
	if len(got) != 2 {
		t.Fatalf("ring = %d events, want 2", len(got))
	}
	if got[1].Seq != 2 {
		t.Errorf("fallback Seq = %d, want 2", got[1].Seq)
	}
	if st.count() != 1 {
		t.Errorf("store events = %d, want only the first", st.count())
	}
}

func TestEventLogFanOutDropsSlowSubscribers(t *testing.T) {
	l := newTestLog(t, &fakeEventStore{}, 10)

	ch, cancel := l.Subscribe(1)
	defer cancel()
	if l.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", l.Subscribers())
	}

	l.Record(types.EventSkirmish, "one")
	l.Record(types.EventSkirmish, "two")
	l.Record(types.EventSkirmish, "three")

	if got := l.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
	ev := <-ch
	if ev.Message != "one" {
		t.Errorf("delivered = %q, want the first event", ev.Message)
	}
}

func TestEventLogSubscribeCancelCloses(t *testing.T) {
	l := newTestLog(t, &fakeEventStore{}, 10)

	ch, cancel := l.Subscribe(4)
	cancel()
	cancel() // second cancel is a no-op

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	if l.Subscribers() != 0 {
		t.Errorf("Subscribers = %d, want 0", l.Subscribers())
	}

	// Recording after cancel must not panic or deliver.
	l.Record(types.EventSkirmish, "after cancel")
}
