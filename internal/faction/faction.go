// Package faction runs the inter-faction layer of the world: scored
// relations that drift toward neutral, territorial battles with per-tick
// attrition, and trade routes that roll once per simulated day.
//
// The engine is the single owner of faction and territory state; the store
// holds the persistent copy and every mutation writes through. All
// randomness draws from one Dice handed in by the world clock, so runs from
// the same seed replay identically.
package faction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/pkg/types"
)

const (
	// DriftHalfLife is the simulated hours for an unpinned relation score
	// to decay halfway to neutral.
	DriftHalfLife = 48.0

	// ResolveRatio ends a battle once one side's effective strength falls
	// below this fraction of the other's.
	ResolveRatio = 0.4

	// AttritionRate is the strength lost per simulated hour per unit of
	// opposing effective strength.
	AttritionRate = 0.08

	// DefenderTerritoryBonus scales the defender's effective strength by
	// 1 + bonus·controlStrength; attackers fight without it.
	DefenderTerritoryBonus = 0.25

	// WinnerControlStrength is the control a faction holds over freshly
	// taken territory.
	WinnerControlStrength = 0.6

	// EnemyScore is the relation score at or below which two factions are
	// enemies for the reputation ripple.
	EnemyScore = -0.5

	// RouteBaseGold is the gold a successful trade pays before the profit
	// margin applies.
	RouteBaseGold = 100
)

// Relation deltas applied by faction events. Betrayals and alliances pin
// the relation so it stops drifting back to neutral.
const (
	SkirmishDelta     = -0.15
	TradeDealDelta    = 0.10
	BetrayalDelta     = -0.40
	AllianceDelta     = 0.50
	BattleStartDelta  = -0.20
	BattleResultDelta = -0.10
)

// Faction resource keys. Strength is the aggregate fighting pool battles
// draw down; morale scales battle effectiveness; gold accrues from trade.
const (
	ResourceStrength = "strength"
	ResourceMorale   = "morale"
	ResourceGold     = "gold"
)

// Dice is the deterministic random source shared with the world clock.
// *rand.Rand from math/rand/v2 satisfies it directly in tests.
type Dice interface {
	Float64() float64
	IntN(n int) int
}

// EventSink receives world events raised by faction activity.
type EventSink interface {
	Record(kind types.EventKind, message string, actors ...string)
}

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	PutFaction(ctx context.Context, f types.Faction) error
	ListFactions(ctx context.Context) ([]types.Faction, error)
	PutTerritory(ctx context.Context, t types.Territory) error
	ListTerritories(ctx context.Context) ([]types.Territory, error)
	PutRoute(ctx context.Context, r types.TradeRoute) error
	GetRoute(ctx context.Context, id string) (*types.TradeRoute, error)
	ListRoutes(ctx context.Context) ([]types.TradeRoute, error)
	PutBattle(ctx context.Context, b types.Battle) error
	GetBattle(ctx context.Context, id string) (*types.Battle, error)
	ListBattles(ctx context.Context, status types.BattleStatus) ([]types.Battle, error)
}

// Config wires a faction [Engine]. Store and Dice are required.
type Config struct {
	// Store holds the persistent copies of factions, territories, routes
	// and battles.
	Store Store

	// Dice is the shared deterministic random source.
	Dice Dice

	// Events receives faction world events; nil drops them.
	Events EventSink

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Now stamps route and battle records. Defaults to time.Now; the
	// timestamps are bookkeeping only and never reach the event log.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine owns the faction layer. All exported methods are safe for
// concurrent use; a single mutex serializes state and dice access so the
// random stream stays reproducible.
type Engine struct {
	store  Store
	dice   Dice
	events EventSink
	log    *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	factions    map[string]*types.Faction
	territories map[string]*types.Territory
}

// New creates an [Engine] and loads any persisted factions and territories.
// An empty store is seeded with the default world.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("faction: store must not be nil")
	}
	if cfg.Dice == nil {
		return nil, fmt.Errorf("faction: dice must not be nil")
	}
	cfg.setDefaults()
	e := &Engine{
		store:       cfg.Store,
		dice:        cfg.Dice,
		events:      cfg.Events,
		log:         cfg.Logger.With("component", "faction"),
		now:         cfg.Now,
		factions:    make(map[string]*types.Faction),
		territories: make(map[string]*types.Territory),
	}
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(ctx context.Context) error {
	factions, err := e.store.ListFactions(ctx)
	if err != nil {
		return fmt.Errorf("faction: load: %w", err)
	}
	territories, err := e.store.ListTerritories(ctx)
	if err != nil {
		return fmt.Errorf("faction: load: %w", err)
	}
	if len(factions) == 0 {
		return e.seed(ctx)
	}
	for i := range factions {
		e.factions[factions[i].ID] = &factions[i]
	}
	for i := range territories {
		e.territories[territories[i].ID] = &territories[i]
	}
	e.log.Info("faction state loaded", "factions", len(factions), "territories", len(territories))
	return nil
}

// ── read surface ──────────────────────────────────────────────────────────────

// Factions returns every faction sorted by id.
func (e *Engine) Factions() []types.Faction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Faction, 0, len(e.factions))
	for _, id := range e.factionIDs() {
		out = append(out, cloneFaction(e.factions[id]))
	}
	return out
}

// Faction returns one faction by id.
func (e *Engine) Faction(id string) (types.Faction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.factions[id]
	if !ok {
		return types.Faction{}, fault.Errorf(fault.InvalidArgument, "faction: unknown faction %q", id)
	}
	return cloneFaction(f), nil
}

// Territories returns every territory sorted by id.
func (e *Engine) Territories() []types.Territory {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.territories))
	for id := range e.territories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]types.Territory, 0, len(ids))
	for _, id := range ids {
		out = append(out, *e.territories[id])
	}
	return out
}

// RelationBetween returns a's scored stance toward b. Unknown pairs read
// neutral.
func (e *Engine) RelationBetween(a, b string) types.FactionRelation {
	e.mu.Lock()
	defer e.mu.Unlock()
	fa, ok := e.factions[a]
	if !ok {
		return types.FactionRelation{Label: types.FactionRelationLabel(0)}
	}
	rel, ok := fa.Relations[b]
	if !ok {
		return types.FactionRelation{Label: types.FactionRelationLabel(0)}
	}
	return rel
}

// Enemies names the factions hostile to the given one, for the reputation
// ripple. A faction is an enemy at relation score <= EnemyScore.
func (e *Engine) Enemies(factionID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.factions[factionID]
	if !ok {
		return nil
	}
	var out []string
	for _, other := range e.factionIDs() {
		if other == factionID {
			continue
		}
		if rel, ok := f.Relations[other]; ok && rel.Score <= EnemyScore {
			out = append(out, other)
		}
	}
	return out
}

// ── faction events ────────────────────────────────────────────────────────────

// ApplyEvent mutates the relation between two factions by the event kind's
// deterministic delta and records a world event. Betrayals and alliances
// pin the relation against drift.
func (e *Engine) ApplyEvent(ctx context.Context, kind types.EventKind, a, b, detail string) (types.FactionRelation, error) {
	var delta float64
	var pin bool
	switch kind {
	case types.EventSkirmish:
		delta = SkirmishDelta
	case types.EventTradeDeal:
		delta = TradeDealDelta
	case types.EventBetrayal:
		delta, pin = BetrayalDelta, true
	case types.EventAllianceFormed:
		delta, pin = AllianceDelta, true
	default:
		return types.FactionRelation{}, fault.Errorf(fault.InvalidArgument, "faction: %q is not a faction event", kind)
	}

	e.mu.Lock()
	fa, okA := e.factions[a]
	fb, okB := e.factions[b]
	if !okA || !okB {
		e.mu.Unlock()
		return types.FactionRelation{}, fault.Errorf(fault.InvalidArgument, "faction: unknown pair %q/%q", a, b)
	}
	rel := e.shiftRelation(fa, fb, delta, pin)
	err := e.persistFactions(ctx, fa, fb)
	e.mu.Unlock()
	if err != nil {
		return types.FactionRelation{}, err
	}

	if detail == "" {
		detail = fmt.Sprintf("%s between %s and %s", kind, fa.Name, fb.Name)
	}
	e.record(kind, detail, a, b)
	e.log.Info("faction event applied", "kind", kind, "a", a, "b", b, "score", rel.Score)
	return rel, nil
}

// shiftRelation moves the symmetric relation between two factions and
// refreshes both labels. Caller holds the mutex.
func (e *Engine) shiftRelation(fa, fb *types.Faction, delta float64, pin bool) types.FactionRelation {
	rel := fa.Relations[fb.ID]
	rel.Score = types.ClampSigned(rel.Score + delta)
	rel.Label = types.FactionRelationLabel(rel.Score)
	if pin {
		rel.Pinned = true
	}
	if fa.Relations == nil {
		fa.Relations = make(map[string]types.FactionRelation)
	}
	if fb.Relations == nil {
		fb.Relations = make(map[string]types.FactionRelation)
	}
	fa.Relations[fb.ID] = rel
	fb.Relations[fa.ID] = rel
	return rel
}

// ── internals ─────────────────────────────────────────────────────────────────

// factionIDs returns faction ids in sorted order. Caller holds the mutex.
func (e *Engine) factionIDs() []string {
	ids := make([]string, 0, len(e.factions))
	for id := range e.factions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persistFactions writes factions through to the store. Caller holds the
// mutex.
func (e *Engine) persistFactions(ctx context.Context, fs ...*types.Faction) error {
	for _, f := range fs {
		if err := e.store.PutFaction(ctx, *f); err != nil {
			return fmt.Errorf("faction: persist %s: %w", f.ID, err)
		}
	}
	return nil
}

func (e *Engine) record(kind types.EventKind, message string, actors ...string) {
	if e.events != nil {
		e.events.Record(kind, message, actors...)
	}
}

// morale reads a faction's morale resource clamped to [0.5, 1.5]. Caller
// holds the mutex.
func (e *Engine) morale(id string) float64 {
	f, ok := e.factions[id]
	if !ok {
		return 1.0
	}
	m, ok := f.Resources[ResourceMorale]
	if !ok || m == 0 {
		return 1.0
	}
	return types.Clamp(m, 0.5, 1.5)
}

// addResource accumulates a faction resource, flooring strength at 0.1 so
// no faction ever fights at zero. Caller holds the mutex.
func (e *Engine) addResource(f *types.Faction, key string, delta float64) {
	if f.Resources == nil {
		f.Resources = make(map[string]float64)
	}
	v := f.Resources[key] + delta
	if key == ResourceStrength && v < 0.1 {
		v = 0.1
	}
	f.Resources[key] = v
}

// uniform draws from [lo, hi) on the shared dice. Caller holds the mutex.
func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + e.dice.Float64()*(hi-lo)
}

func cloneFaction(f *types.Faction) types.Faction {
	out := *f
	out.Values = append([]string(nil), f.Values...)
	out.Resources = make(map[string]float64, len(f.Resources))
	for k, v := range f.Resources {
		out.Resources[k] = v
	}
	out.Relations = make(map[string]types.FactionRelation, len(f.Relations))
	for k, v := range f.Relations {
		out.Relations[k] = v
	}
	return out
}

func newID() string { return uuid.NewString() }

func driftFactor(deltaHours float64) float64 {
	return math.Exp2(-deltaHours / DriftHalfLife)
}
