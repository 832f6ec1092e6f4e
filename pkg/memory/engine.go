package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/solmae/animus/pkg/types"
)

// Default tuning. HideThreshold and DeleteThreshold are contract values
// (retrieval visibility and sweep deletion); the rest are rate parameters.
const (
	DefaultDecayRate       = 0.02 // λ in exp(−λ·Δh·(1−w))
	DefaultReinforceAlpha  = 0.3  // α in s + α·(1−s)
	DefaultShareTrustBase  = 0.7  // fixed discount on every secondhand copy
	DefaultHideThreshold   = 0.05
	DefaultDeleteThreshold = 0.01
	DefaultRetrieveLimit   = 8
	DefaultShareTopM       = 3
)

// Config tunes the engine's decay, reinforcement, sharing and retrieval
// behavior. The zero value is replaced by the defaults above.
type Config struct {
	// DecayRate is λ in the per-sweep factor exp(−λ·Δh·(1−w)).
	DecayRate float64

	// ReinforceAlpha is α in the reinforcement bump s ← s + α·(1−s).
	ReinforceAlpha float64

	// ShareTrustBase is the fixed multiplier applied to every share on top
	// of the recipient's trust in the teller.
	ShareTrustBase float64

	// HideThreshold is the strength below which memories vanish from
	// retrieval.
	HideThreshold float64

	// DeleteThreshold is the strength below which a sweep deletes rows.
	DeleteThreshold float64

	// RetrieveLimit is the default result cap for Retrieve.
	RetrieveLimit int

	// ShareTopM is how many of the teller's strongest memories a single
	// share call passes on.
	ShareTopM int
}

func (c *Config) setDefaults() {
	if c.DecayRate <= 0 {
		c.DecayRate = DefaultDecayRate
	}
	if c.ReinforceAlpha <= 0 {
		c.ReinforceAlpha = DefaultReinforceAlpha
	}
	if c.ShareTrustBase <= 0 {
		c.ShareTrustBase = DefaultShareTrustBase
	}
	if c.HideThreshold <= 0 {
		c.HideThreshold = DefaultHideThreshold
	}
	if c.DeleteThreshold <= 0 {
		c.DeleteThreshold = DefaultDeleteThreshold
	}
	if c.RetrieveLimit <= 0 {
		c.RetrieveLimit = DefaultRetrieveLimit
	}
	if c.ShareTopM <= 0 {
		c.ShareTopM = DefaultShareTopM
	}
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithConfig replaces the default tuning.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the engine logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithNow overrides the wall-clock source. Tests use this to pin
// lastReferencedAt timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine drives all memory and rumor mechanics against a [Store].
// Safe for concurrent use when the underlying Store is.
type Engine struct {
	store Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

// New creates an Engine over the given store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.cfg.setDefaults()
	e.log = e.log.With("component", "memory")
	return e
}

// ── pure mechanics ────────────────────────────────────────────────────────────

// DecayFactor returns the multiplicative decay exp(−λ·Δh·(1−w)) for one
// sweep of deltaHours simulated hours over a memory of weight w.
func DecayFactor(deltaHours, lambda, weight float64) float64 {
	if deltaHours <= 0 {
		return 1
	}
	return math.Exp(-lambda * deltaHours * (1 - types.ClampUnit(weight)))
}

// Reinforced returns the post-reinforcement strength min(1, s + α·(1−s)).
func Reinforced(strength, alpha float64) float64 {
	return math.Min(1, strength+alpha*(1-strength))
}

// SecondhandStrength returns the strength of a shared copy:
// src·trust·base, floored at 0 and never exceeding the source strength.
// trust below zero contributes nothing; nobody believes an enemy's gossip.
func SecondhandStrength(src, trust, base float64) float64 {
	s := src * math.Max(0, trust) * base
	return math.Min(math.Max(0, s), src)
}

// ── memories ──────────────────────────────────────────────────────────────────

// Remember inserts a new firsthand memory at full strength. A zero weight
// takes the category's base emotional weight.
func (e *Engine) Remember(ctx context.Context, owner, subject string, category types.MemoryCategory, content string, weight float64) (*types.Memory, error) {
	return e.RememberAt(ctx, owner, subject, category, content, weight, 1.0)
}

// RememberAt inserts a firsthand memory at an explicit starting strength.
// Witness notes and other attenuated observations enter below full strength.
// A strength outside (0, 1] falls back to 1.0; zero weight takes the
// category's base emotional weight.
func (e *Engine) RememberAt(ctx context.Context, owner, subject string, category types.MemoryCategory, content string, weight, strength float64) (*types.Memory, error) {
	if owner == "" || content == "" {
		return nil, fmt.Errorf("memory: remember: owner and content must not be empty")
	}
	if weight <= 0 {
		weight = category.EmotionalWeight()
	}
	if strength <= 0 || strength > 1 {
		strength = 1.0
	}

	now := e.now()
	m := types.Memory{
		ID:               uuid.NewString(),
		Owner:            owner,
		Subject:          subject,
		Category:         category,
		Content:          content,
		Strength:         strength,
		EmotionalWeight:  types.ClampUnit(weight),
		CreatedAt:        now,
		LastReferencedAt: now,
	}
	if err := e.store.InsertMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("memory: remember: %w", err)
	}
	return &m, nil
}

// Retrieve returns the owner's visible memories ranked by
// strength·(1 + 0.5·emotionalWeight), with a rank boost for memories whose
// category matches a requested topic category. Memories under the hide
// threshold never appear.
func (e *Engine) Retrieve(ctx context.Context, owner string, opts ...RetrieveOpt) ([]types.Memory, error) {
	params := ApplyRetrieveOpts(opts)
	if params.MinStrength < e.cfg.HideThreshold {
		params.MinStrength = e.cfg.HideThreshold
	}
	limit := params.Limit
	if limit <= 0 {
		limit = e.cfg.RetrieveLimit
	}

	// Overfetch so the category boost can reorder past the cut line.
	fetch := params
	fetch.Limit = limit * 3
	memories, err := e.store.QueryMemories(ctx, owner, fetch)
	if err != nil {
		return nil, fmt.Errorf("memory: retrieve: %w", err)
	}

	boosted := make(map[string]bool, len(params.Categories))
	for _, c := range params.Categories {
		boosted[c] = true
	}

	sort.SliceStable(memories, func(i, j int) bool {
		return e.rankScore(memories[i], boosted) > e.rankScore(memories[j], boosted)
	})

	if len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

// rankScore is the retrieval ordering: base strength·(1+0.5·w) plus a flat
// boost when the memory's category was asked for.
func (e *Engine) rankScore(m types.Memory, boosted map[string]bool) float64 {
	score := m.Strength * (1 + 0.5*m.EmotionalWeight)
	if boosted[string(m.Category)] {
		score += 0.25
	}
	return score
}

// Reinforce bumps the memory's strength by α·(1−s), increments its
// reference count, stamps lastReferencedAt, and persists. The passed
// memory is updated in place.
func (e *Engine) Reinforce(ctx context.Context, m *types.Memory) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("memory: reinforce: memory must have an id")
	}
	m.Strength = Reinforced(m.Strength, e.cfg.ReinforceAlpha)
	m.RefCount++
	m.LastReferencedAt = e.now()
	if err := e.store.UpdateMemory(ctx, *m); err != nil {
		return fmt.Errorf("memory: reinforce: %w", err)
	}
	return nil
}

// Share copies the teller's top-M strongest memories about subject to the
// listener as secondhand memories at strength src·trust·base. Secrets are
// held back, copies never re-share (secondhand stays secondhand as the
// original teller's account), and a memory already delivered to the
// listener is skipped. Returns the memories created for the listener.
func (e *Engine) Share(ctx context.Context, from, to, subject string, trust float64) ([]types.Memory, error) {
	if from == to {
		return nil, nil
	}

	candidates, err := e.store.QueryMemories(ctx, from, RetrieveParams{
		Subject:     subject,
		MinStrength: e.cfg.HideThreshold,
		Limit:       e.cfg.ShareTopM * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: share: query teller: %w", err)
	}

	var shared []types.Memory
	for _, src := range candidates {
		if len(shared) >= e.cfg.ShareTopM {
			break
		}
		if src.Category == types.MemorySecret || src.Source != "" {
			continue
		}

		known, err := e.store.HasSecondhand(ctx, to, src.ID)
		if err != nil {
			return shared, fmt.Errorf("memory: share: dedupe check: %w", err)
		}
		if known {
			continue
		}

		now := e.now()
		copyMem := types.Memory{
			ID:               uuid.NewString(),
			Owner:            to,
			Subject:          src.Subject,
			Category:         src.Category,
			Content:          src.Content,
			Strength:         SecondhandStrength(src.Strength, trust, e.cfg.ShareTrustBase),
			EmotionalWeight:  types.ClampUnit(src.EmotionalWeight * 0.8),
			Source:           from,
			SourceMemoryID:   src.ID,
			CreatedAt:        now,
			LastReferencedAt: now,
		}
		if err := e.store.InsertMemory(ctx, copyMem); err != nil {
			return shared, fmt.Errorf("memory: share: insert copy: %w", err)
		}
		shared = append(shared, copyMem)
	}

	if len(shared) > 0 {
		e.log.Debug("memories shared",
			"from", from, "to", to, "subject", subject, "count", len(shared))
	}
	return shared, nil
}

// ── sweeps ────────────────────────────────────────────────────────────────────

// SweepResult reports what one decay sweep touched.
type SweepResult struct {
	MemoriesDecayed int64
	MemoriesDeleted int64
	RumorsDecayed   int64
	RumorsDeleted   int64
}

// Sweep applies deltaHours of decay to every memory and rumor, then deletes
// rows that have fallen under the delete threshold. A non-positive
// deltaHours is a no-op.
func (e *Engine) Sweep(ctx context.Context, deltaHours float64) (SweepResult, error) {
	var res SweepResult
	if deltaHours <= 0 {
		return res, nil
	}

	var err error
	if res.MemoriesDecayed, err = e.store.DecayMemories(ctx, deltaHours, e.cfg.DecayRate); err != nil {
		return res, fmt.Errorf("memory: sweep: decay memories: %w", err)
	}
	if res.RumorsDecayed, err = e.store.DecayRumors(ctx, deltaHours, e.cfg.DecayRate); err != nil {
		return res, fmt.Errorf("memory: sweep: decay rumors: %w", err)
	}
	if res.MemoriesDeleted, err = e.store.DeleteMemoriesBelow(ctx, e.cfg.DeleteThreshold); err != nil {
		return res, fmt.Errorf("memory: sweep: delete memories: %w", err)
	}
	if res.RumorsDeleted, err = e.store.DeleteRumorsBelow(ctx, e.cfg.DeleteThreshold); err != nil {
		return res, fmt.Errorf("memory: sweep: delete rumors: %w", err)
	}

	e.log.Debug("decay sweep",
		"hours", deltaHours,
		"memories", res.MemoriesDecayed, "memories_deleted", res.MemoriesDeleted,
		"rumors", res.RumorsDecayed, "rumors_deleted", res.RumorsDeleted)
	return res, nil
}

// ── rumors ────────────────────────────────────────────────────────────────────

// CreateRumor starts a rumor about a subject. The creator counts as having
// heard it. A non-positive strength defaults to 0.8.
func (e *Engine) CreateRumor(ctx context.Context, about, content, createdBy string, strength float64) (*types.Rumor, error) {
	if about == "" || content == "" {
		return nil, fmt.Errorf("memory: create rumor: about and content must not be empty")
	}
	if strength <= 0 {
		strength = 0.8
	}

	r := types.Rumor{
		ID:        uuid.NewString(),
		About:     about,
		Content:   content,
		CreatedBy: createdBy,
		Strength:  types.ClampUnit(strength),
		Spread:    []string{createdBy},
		CreatedAt: e.now(),
	}
	if err := e.store.InsertRumor(ctx, r); err != nil {
		return nil, fmt.Errorf("memory: create rumor: %w", err)
	}
	return &r, nil
}

// SpreadRumor delivers the rumor to an agent. Returns false without error
// when the agent has already heard it. The passed rumor's spread set is
// updated in place.
func (e *Engine) SpreadRumor(ctx context.Context, r *types.Rumor, to string) (bool, error) {
	if r == nil || r.ID == "" {
		return false, fmt.Errorf("memory: spread rumor: rumor must have an id")
	}
	if r.Heard(to) {
		return false, nil
	}
	r.MarkHeard(to)
	if err := e.store.UpdateRumor(ctx, *r); err != nil {
		return false, fmt.Errorf("memory: spread rumor: %w", err)
	}
	return true, nil
}

// KnownRumors returns the rumors about a subject that the given agent has
// heard (or started), strongest first, capped at limit.
func (e *Engine) KnownRumors(ctx context.Context, agentID, about string, limit int) ([]types.Rumor, error) {
	if limit <= 0 {
		limit = e.cfg.RetrieveLimit
	}
	all, err := e.store.RumorsAbout(ctx, about, 0)
	if err != nil {
		return nil, fmt.Errorf("memory: known rumors: %w", err)
	}

	known := make([]types.Rumor, 0, len(all))
	for _, r := range all {
		if r.Strength < e.cfg.HideThreshold {
			continue
		}
		if r.CreatedBy == agentID || r.Heard(agentID) {
			known = append(known, r)
		}
		if len(known) >= limit {
			break
		}
	}
	return known, nil
}
