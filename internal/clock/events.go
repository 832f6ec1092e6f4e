package clock

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/pkg/types"
)

// recordTimeout bounds the synchronous store write behind one Record call.
const recordTimeout = 5 * time.Second

// Dice is a mutex-guarded PCG stream shared by the deterministic world
// systems. The tick pipeline fixes the draw order, so a single stream keeps
// replays identical for a given seed.
type Dice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDice creates a stream seeded for replay.
func NewDice(seed uint64) *Dice {
	return &Dice{rng: rand.New(rand.NewPCG(seed, seed))}
}

// DeriveDice derives a named sub-stream from the master seed. The same
// master and name always give the same stream, and no derived stream
// shares state with the tick stream.
func DeriveDice(master uint64, name string) *Dice {
	h := fnv.New64a()
	io.WriteString(h, name)
	return &Dice{rng: rand.New(rand.NewPCG(master, h.Sum64()))}
}

// Float64 returns the next draw in [0, 1).
func (d *Dice) Float64() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64()
}

// IntN returns the next draw in [0, n).
func (d *Dice) IntN(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.IntN(n)
}

// DicePool hands out per-agent streams derived from one master seed. An
// agent's interactive draws replay identically no matter which other
// agents acted in between, which the shared tick stream cannot offer.
type DicePool struct {
	master uint64

	mu   sync.Mutex
	byID map[string]*Dice
}

// NewDicePool creates a pool over the master seed.
func NewDicePool(master uint64) *DicePool {
	return &DicePool{master: master, byID: make(map[string]*Dice)}
}

// For returns the stream for one agent, creating it on first use.
func (p *DicePool) For(agentID string) *Dice {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.byID[agentID]
	if !ok {
		d = DeriveDice(p.master, agentID)
		p.byID[agentID] = d
	}
	return d
}

// Float64 draws from the named agent's stream.
func (p *DicePool) Float64(agentID string) float64 {
	return p.For(agentID).Float64()
}

// LoadSeed resolves the world seed: the persisted one wins so restarts
// replay the same stream, otherwise the configured value (or a random one
// when zero) is stored and returned.
func LoadSeed(ctx context.Context, st MetaStore, configured uint64) (uint64, error) {
	raw, err := st.GetMeta(ctx, store.MetaSeed)
	if err != nil {
		return 0, fmt.Errorf("clock: load seed: %w", err)
	}
	if raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("clock: malformed stored seed %q: %w", raw, err)
		}
		return seed, nil
	}

	seed := configured
	if seed == 0 {
		seed = rand.Uint64()
	}
	if err := st.PutMeta(ctx, store.MetaSeed, strconv.FormatUint(seed, 10)); err != nil {
		return 0, fmt.Errorf("clock: persist seed: %w", err)
	}
	return seed, nil
}

// EventStore is the persistence behind the event log. *store.Store
// satisfies it.
type EventStore interface {
	AppendWorldEvent(ctx context.Context, ev types.WorldEvent) (types.WorldEvent, error)
	ListWorldEvents(ctx context.Context, limit int) ([]types.WorldEvent, error)
	LastEventSeq(ctx context.Context) (uint64, error)
}

// EventLog is the world's event stream: a bounded in-memory ring backed by
// the store, fanned out to live subscribers. Every world system records
// through one log so the stream is totally ordered.
type EventLog struct {
	store    EventStore
	capacity int
	log      *slog.Logger

	mu      sync.Mutex
	hours   float64 // current simulated time, set by the clock each tick
	ring    []types.WorldEvent
	lastSeq uint64
	subs    map[uint64]chan types.WorldEvent
	nextSub uint64
	dropped uint64
}

// NewEventLog opens the event log, warming the ring with the newest
// persisted events so reads and catch-up work immediately after restart.
func NewEventLog(ctx context.Context, st EventStore, capacity int, logger *slog.Logger) (*EventLog, error) {
	if capacity <= 0 {
		capacity = EventRingCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	ring, err := st.ListWorldEvents(ctx, capacity)
	if err != nil {
		return nil, fmt.Errorf("clock: warm event ring: %w", err)
	}
	lastSeq, err := st.LastEventSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("clock: last event seq: %w", err)
	}
	return &EventLog{
		store:    st,
		capacity: capacity,
		log:      logger.With("component", "events"),
		ring:     ring,
		lastSeq:  lastSeq,
		subs:     make(map[uint64]chan types.WorldEvent),
	}, nil
}

// SetHours moves the log's simulated timestamp. The clock calls this at the
// top of every tick; events recorded in between carry the tick's time.
func (l *EventLog) SetHours(totalHours float64) {
	l.mu.Lock()
	l.hours = totalHours
	l.mu.Unlock()
}

// Record appends one event at the current simulated time, persists it, and
// fans it out. A failed store write keeps the event in the ring so the
// stream degrades rather than dropping history silently.
func (l *EventLog) Record(kind types.EventKind, message string, actors ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := types.WorldEvent{
		Time:    types.TimeAt(l.hours),
		Kind:    kind,
		Message: message,
		Actors:  actors,
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	persisted, err := l.store.AppendWorldEvent(ctx, ev)
	cancel()
	if err != nil {
		l.lastSeq++
		ev.Seq = l.lastSeq
		l.log.Warn("event write failed, ring only", "kind", kind, "error", err)
	} else {
		ev = persisted
		l.lastSeq = ev.Seq
	}

	l.ring = append(l.ring, ev)
	if len(l.ring) > l.capacity {
		l.ring = l.ring[len(l.ring)-l.capacity:]
	}

	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			l.dropped++
			l.log.Debug("slow event subscriber, dropping", "subscriber", id, "seq", ev.Seq)
		}
	}
}

// Recent returns the newest events, oldest first. limit <= 0 returns the
// whole ring.
func (l *EventLog) Recent(limit int) []types.WorldEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.ring)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.WorldEvent, n)
	copy(out, l.ring[len(l.ring)-n:])
	return out
}

// Since returns ring events with sequence numbers after afterSeq, oldest
// first. Events older than the ring are gone from here; callers needing
// deeper history read the store.
func (l *EventLog) Since(afterSeq uint64) []types.WorldEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.WorldEvent
	for _, ev := range l.ring {
		if ev.Seq > afterSeq {
			out = append(out, ev)
		}
	}
	return out
}

// LastSeq returns the newest assigned sequence number.
func (l *EventLog) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Subscribe registers a listener for new events. The returned cancel
// detaches it and closes the channel. Slow subscribers lose events rather
// than stalling the world.
func (l *EventLog) Subscribe(buffer int) (<-chan types.WorldEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan types.WorldEvent, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers returns the number of attached listeners.
func (l *EventLog) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Dropped returns how many events were lost to slow subscribers.
func (l *EventLog) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
