// Package quest generates and runs player tasks. Quests are offered by
// agents, personalised from what the giver remembers about the player, and
// expire on the simulated clock. Storyline chains string four staged quests
// together; completing a stage hands the player the next one.
package quest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/relation"
	"github.com/solmae/animus/internal/store"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

// ExpiryHours is how long a quest stays open on the simulated clock.
const ExpiryHours = 7 * 24

// Dice is the randomness source for template picks. The world clock's tick
// RNG satisfies it, keeping generation replayable.
type Dice interface {
	Float64() float64
	IntN(n int) int
}

// EventSink receives quest lifecycle events. The world clock satisfies it.
type EventSink interface {
	Record(kind types.EventKind, message string, actors ...string)
}

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	PutQuest(ctx context.Context, q types.Quest) error
	GetQuest(ctx context.Context, id string) (*types.Quest, error)
	ListQuests(ctx context.Context, filter store.QuestFilter) ([]types.Quest, error)
	ExpireQuests(ctx context.Context, nowHours float64) ([]types.Quest, error)
}

// Agents resolves giver snapshots. *agent.Runtime satisfies it.
type Agents interface {
	Snapshot(id string) (*types.Agent, error)
}

// Memories supplies what a giver remembers about a player. *memory.Engine
// satisfies it.
type Memories interface {
	Retrieve(ctx context.Context, owner string, opts ...memory.RetrieveOpt) ([]types.Memory, error)
}

// Reputations pays the standing part of quest rewards, ripple included.
// *relation.Engine satisfies it.
type Reputations interface {
	ApplyPlayerDelta(ctx context.Context, playerID, agentID, factionID string, trustDelta float64, enemies []string) (*relation.PlayerEffect, error)
}

// FactionInfo supplies the enemy set for the reputation ripple. The faction
// engine satisfies it.
type FactionInfo interface {
	Enemies(factionID string) []string
}

// Config carries the dependencies for an [Engine]. Store, Agents and Dice
// must not be nil; the rest degrade gracefully when absent.
type Config struct {
	Store       Store
	Agents      Agents
	Memories    Memories
	Reputations Reputations
	Factions    FactionInfo
	Dice        Dice
	Events      EventSink
	Logger      *slog.Logger
	Now         func() time.Time
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine owns quest generation and lifecycle.
type Engine struct {
	store       Store
	agents      Agents
	memories    Memories
	reputations Reputations
	factions    FactionInfo
	dice        Dice
	events      EventSink
	log         *slog.Logger
	now         func() time.Time
}

// New creates a quest engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Agents == nil || cfg.Dice == nil {
		return nil, fmt.Errorf("quest: Store, Agents and Dice must not be nil")
	}
	cfg.setDefaults()
	return &Engine{
		store:       cfg.Store,
		agents:      cfg.Agents,
		memories:    cfg.Memories,
		reputations: cfg.Reputations,
		factions:    cfg.Factions,
		dice:        cfg.Dice,
		events:      cfg.Events,
		log:         cfg.Logger.With("component", "quest"),
		now:         cfg.Now,
	}, nil
}

// Generate creates one quest from what giverID remembers about playerID.
// An empty playerID produces an ambient quest any player may accept.
// nowHours is the simulated clock, fixing the expiry deadline.
func (e *Engine) Generate(ctx context.Context, giverID, playerID string, nowHours float64) (*types.Quest, error) {
	giver, err := e.agents.Snapshot(giverID)
	if err != nil {
		return nil, err
	}

	var memories []types.Memory
	if playerID != "" && e.memories != nil {
		memories, err = e.memories.Retrieve(ctx, giverID,
			memory.AboutSubject(playerID), memory.WithLimit(5))
		if err != nil {
			// Personalisation is best-effort; a generic quest still works.
			e.log.Warn("quest memory lookup failed", "giver", giverID, "error", err)
			memories = nil
		}
	}

	qt := typeFor(e.dice, memories)
	tmpl := templates[qt]

	f := personalize(memories)
	f.item = items[e.dice.IntN(len(items))]
	f.location = locations[e.dice.IntN(len(locations))]
	f.threat = threats[e.dice.IntN(len(threats))]

	title := f.apply(tmpl.titles[e.dice.IntN(len(tmpl.titles))], true)
	description := f.apply(tmpl.descriptions[e.dice.IntN(len(tmpl.descriptions))], false)
	if playerID != "" {
		description += contextFor(memories)
	}

	difficulty := []types.QuestDifficulty{
		types.QuestEasy, types.QuestMedium, types.QuestHard,
	}[e.dice.IntN(3)]

	q := types.Quest{
		ID:             uuid.NewString(),
		GiverID:        giverID,
		PlayerID:       playerID,
		Type:           qt,
		Difficulty:     difficulty,
		Title:          title,
		Description:    description,
		Rewards:        difficulty.Rewards(),
		Status:         types.QuestAvailable,
		CreatedAt:      e.now(),
		ExpiresAtHours: nowHours + ExpiryHours,
	}
	if err := e.store.PutQuest(ctx, q); err != nil {
		return nil, fmt.Errorf("quest: generate: %w", err)
	}

	e.record(types.EventQuestOffered,
		giver.Name+" offers a task: "+title, actorsOf(giverID, playerID)...)
	e.log.Info("quest generated",
		"quest", q.ID, "giver", giverID, "type", qt, "difficulty", difficulty)
	return &q, nil
}

// StartChain begins the storyline suited to the giver's faction and returns
// its first quest, already accepted by the player.
func (e *Engine) StartChain(ctx context.Context, giverID, playerID string, nowHours float64) (*types.Quest, error) {
	if playerID == "" {
		return nil, fault.New(fault.InvalidArgument, "quest: chain needs a player")
	}
	giver, err := e.agents.Snapshot(giverID)
	if err != nil {
		return nil, err
	}

	suited := chainsFor(giver.Faction)
	tmpl := suited[e.dice.IntN(len(suited))]

	// The template key rides in the chain id so later stages know their
	// storyline without another table.
	chainID := tmpl.Key + "-" + uuid.NewString()
	q := e.stageQuest(tmpl, 0, chainID, giverID, playerID, nowHours)
	if err := e.store.PutQuest(ctx, *q); err != nil {
		return nil, fmt.Errorf("quest: start chain %s: %w", tmpl.Key, err)
	}

	e.record(types.EventQuestOffered,
		giver.Name+" begins the tale of "+tmpl.Name+": "+q.Title,
		giverID, playerID)
	e.log.Info("quest chain started",
		"chain", q.ChainID, "template", tmpl.Key, "giver", giverID, "player", playerID)
	return q, nil
}

// stageQuest builds the quest for one chain stage. Chain quests skip the
// available state: the player is already committed to the storyline.
func (e *Engine) stageQuest(tmpl chainTemplate, stage int, chainID, giverID, playerID string, nowHours float64) *types.Quest {
	st := tmpl.Stages[stage]
	return &types.Quest{
		ID:             uuid.NewString(),
		GiverID:        giverID,
		PlayerID:       playerID,
		Type:           st.Type,
		Difficulty:     st.Difficulty,
		Title:          fmt.Sprintf("%s (%d/%d): %s", tmpl.Name, stage+1, len(tmpl.Stages), st.Title),
		Description:    st.Description,
		Rewards:        st.Difficulty.Rewards(),
		Status:         types.QuestAccepted,
		ChainID:        chainID,
		ChainStage:     stage,
		CreatedAt:      e.now(),
		ExpiresAtHours: nowHours + ExpiryHours,
	}
}

// Accept claims an available quest for a player. Quests already assigned to
// another player cannot be taken over.
func (e *Engine) Accept(ctx context.Context, questID, playerID string) (*types.Quest, error) {
	if playerID == "" {
		return nil, fault.New(fault.InvalidArgument, "quest: accept needs a player")
	}
	q, err := e.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, fmt.Errorf("quest: accept %s: %w", questID, err)
	}
	if q == nil {
		return nil, fault.New(fault.InvalidArgument, "quest "+questID+" does not exist")
	}
	if q.Status != types.QuestAvailable {
		return nil, fault.Errorf(fault.InvalidArgument, "quest %s is %s", questID, q.Status)
	}
	if q.PlayerID != "" && q.PlayerID != playerID {
		return nil, fault.New(fault.InvalidArgument, "quest "+questID+" is meant for another")
	}

	q.PlayerID = playerID
	q.Status = types.QuestAccepted
	if err := e.store.PutQuest(ctx, *q); err != nil {
		return nil, fmt.Errorf("quest: accept %s: %w", questID, err)
	}
	e.log.Info("quest accepted", "quest", questID, "player", playerID)
	return q, nil
}

// CompleteResult reports a finished quest, the standings it paid out, and
// the next chain stage when one was unlocked.
type CompleteResult struct {
	Quest   types.Quest            `json:"quest"`
	Rewards types.QuestRewards     `json:"rewards"`
	Effect  *relation.PlayerEffect `json:"effect,omitempty"`
	Next    *types.Quest           `json:"next,omitempty"`
}

// Complete finishes an accepted quest for its player. Rewards pay out the
// reputation boost (with the faction ripple); for chain quests the next
// stage is created and handed straight to the player. nowHours stamps the
// next stage's expiry.
func (e *Engine) Complete(ctx context.Context, questID, playerID string, nowHours float64) (*CompleteResult, error) {
	q, err := e.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, fmt.Errorf("quest: complete %s: %w", questID, err)
	}
	if q == nil {
		return nil, fault.New(fault.InvalidArgument, "quest "+questID+" does not exist")
	}
	if q.Status != types.QuestAccepted {
		return nil, fault.Errorf(fault.InvalidArgument, "quest %s is %s", questID, q.Status)
	}
	if playerID == "" || q.PlayerID != playerID {
		return nil, fault.New(fault.InvalidArgument, "quest "+questID+" belongs to another player")
	}

	q.Status = types.QuestCompleted
	if err := e.store.PutQuest(ctx, *q); err != nil {
		return nil, fmt.Errorf("quest: complete %s: %w", questID, err)
	}

	res := &CompleteResult{Quest: *q, Rewards: q.Rewards}

	giver, err := e.agents.Snapshot(q.GiverID)
	giverName := q.GiverID
	var giverFaction string
	if err == nil {
		giverName = giver.Name
		giverFaction = giver.Faction
	}

	if e.reputations != nil {
		var enemies []string
		if e.factions != nil && giverFaction != "" {
			enemies = e.factions.Enemies(giverFaction)
		}
		effect, err := e.reputations.ApplyPlayerDelta(ctx, playerID, q.GiverID, giverFaction, q.Rewards.Reputation, enemies)
		if err != nil {
			e.log.Warn("quest reward standing update failed", "quest", questID, "error", err)
		} else {
			res.Effect = effect
		}
	}

	e.record(types.EventQuestCompleted,
		giverName+"'s task is done: "+q.Title, actorsOf(q.GiverID, playerID)...)

	if q.ChainID != "" {
		if next := e.nextStage(ctx, q, nowHours); next != nil {
			res.Next = next
		}
	}

	e.log.Info("quest completed",
		"quest", questID, "player", playerID, "gold", q.Rewards.Gold, "chain", q.ChainID)
	return res, nil
}

// nextStage creates the follow-up quest after a chain stage completes, or
// nil when the storyline is over. Failures are logged, not propagated: the
// completed quest already paid out.
func (e *Engine) nextStage(ctx context.Context, done *types.Quest, nowHours float64) *types.Quest {
	tmpl, ok := chainByID(done.ChainID)
	if !ok || done.ChainStage+1 >= len(tmpl.Stages) {
		return nil
	}
	next := e.stageQuest(tmpl, done.ChainStage+1, done.ChainID, done.GiverID, done.PlayerID, nowHours)
	if err := e.store.PutQuest(ctx, *next); err != nil {
		e.log.Warn("chain stage creation failed",
			"chain", done.ChainID, "stage", done.ChainStage+1, "error", err)
		return nil
	}
	e.record(types.EventQuestOffered,
		"The tale continues: "+next.Title, actorsOf(next.GiverID, next.PlayerID)...)
	return next
}

// chainByID recovers the storyline template from the key prefix of a chain
// id.
func chainByID(chainID string) (chainTemplate, bool) {
	for _, c := range chainTemplates {
		if strings.HasPrefix(chainID, c.Key+"-") {
			return c, true
		}
	}
	return chainTemplate{}, false
}

// ExpireDue marks every overdue quest expired and records one event each.
// The world clock calls this once per tick.
func (e *Engine) ExpireDue(ctx context.Context, nowHours float64) ([]types.Quest, error) {
	expired, err := e.store.ExpireQuests(ctx, nowHours)
	if err != nil {
		return nil, fmt.Errorf("quest: expire due: %w", err)
	}
	for _, q := range expired {
		e.record(types.EventQuestExpired,
			"A task goes unanswered: "+q.Title, actorsOf(q.GiverID, q.PlayerID)...)
	}
	if len(expired) > 0 {
		e.log.Info("quests expired", "count", len(expired), "sim_hours", nowHours)
	}
	return expired, nil
}

// Get returns one quest by id.
func (e *Engine) Get(ctx context.Context, questID string) (*types.Quest, error) {
	q, err := e.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, fmt.Errorf("quest: get %s: %w", questID, err)
	}
	if q == nil {
		return nil, fault.New(fault.InvalidArgument, "quest "+questID+" does not exist")
	}
	return q, nil
}

// For lists quests visible to a player: their own plus unclaimed offers.
func (e *Engine) For(ctx context.Context, playerID string) ([]types.Quest, error) {
	all, err := e.store.ListQuests(ctx, store.QuestFilter{})
	if err != nil {
		return nil, fmt.Errorf("quest: list for %s: %w", playerID, err)
	}
	out := make([]types.Quest, 0, len(all))
	for _, q := range all {
		if q.PlayerID == playerID || (q.PlayerID == "" && q.Status == types.QuestAvailable) {
			out = append(out, q)
		}
	}
	return out, nil
}

// OfferedBy lists the open quests a giver currently has on offer.
func (e *Engine) OfferedBy(ctx context.Context, giverID string) ([]types.Quest, error) {
	qs, err := e.store.ListQuests(ctx, store.QuestFilter{GiverID: giverID, Status: types.QuestAvailable})
	if err != nil {
		return nil, fmt.Errorf("quest: offered by %s: %w", giverID, err)
	}
	return qs, nil
}

func (e *Engine) record(kind types.EventKind, message string, actors ...string) {
	if e.events != nil {
		e.events.Record(kind, message, actors...)
	}
}

// actorsOf drops empty ids so ambient quests don't carry blank actors.
func actorsOf(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
