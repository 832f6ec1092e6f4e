// Package npcgen mints new agents from role archetypes. A mint rolls the
// personality inside role-biased trait ranges, picks a name, duty zone,
// backstory and speaking style, derives the starting mood, goal and voice
// fingerprint, spawns the agent and seeds its first memories. Callers can
// pin any field; everything left empty comes off the tables.
package npcgen

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/voice"
	"github.com/solmae/animus/pkg/types"
)

// Dice is the randomness source for rolls. Streams from the world clock
// satisfy it.
type Dice interface {
	Float64() float64
	IntN(n int) int
}

// Memories seeds the starting memories after a spawn. *memory.Engine
// satisfies it.
type Memories interface {
	RememberAt(ctx context.Context, owner, subject string, category types.MemoryCategory, content string, weight, strength float64) (*types.Memory, error)
}

// Config wires a [Generator]. Agents and Dice must not be nil; a nil
// Memories skips the seed memories.
type Config struct {
	Agents   *agent.Runtime
	Memories Memories
	Dice     Dice
	Logger   *slog.Logger
	Now      func() time.Time
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Generator mints agents into the runtime.
type Generator struct {
	agents *agent.Runtime
	mem    Memories
	dice   Dice
	log    *slog.Logger
	now    func() time.Time
}

// New creates a generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Agents == nil || cfg.Dice == nil {
		return nil, fmt.Errorf("npcgen: Agents and Dice must not be nil")
	}
	cfg.setDefaults()
	return &Generator{
		agents: cfg.Agents,
		mem:    cfg.Memories,
		dice:   cfg.Dice,
		log:    cfg.Logger.With("component", "npcgen"),
		now:    cfg.Now,
	}, nil
}

// Roles lists the archetype keys in a stable order.
func Roles() []string {
	out := make([]string, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// Request selects what [Generator.Mint] rolls. Every field is optional:
// empty ones come off the archetype tables.
type Request struct {
	// ID overrides the derived identifier.
	ID string

	// Name overrides the rolled name.
	Name string

	// Role is the archetype key. Empty rolls one; an unknown key falls
	// back to civilian.
	Role string

	// Zone overrides the rolled duty zone.
	Zone string

	// Faction overrides the archetype's faction.
	Faction string
}

// CustomRequest is a fully caller-defined agent for [Generator.MintCustom].
// Name is required; traits missing from the map fill at the 0.5 midpoint.
type CustomRequest struct {
	ID            string
	Name          string
	Role          string
	Zone          string
	Faction       string
	Backstory     string
	DialogueStyle string
	Traits        map[types.Trait]float64
}

// seedMemory is one starting memory, inserted through the memory engine
// after the spawn. Zero weight takes the category's base emotional weight.
type seedMemory struct {
	category types.MemoryCategory
	content  string
	strength float64
}

// sheet is a rolled agent definition before it hits the runtime.
type sheet struct {
	agent    types.Agent
	memories []seedMemory
}

// Mint rolls a new agent from the archetype tables, spawns it and seeds
// its starting memories. The returned snapshot is the post-spawn state.
func (g *Generator) Mint(ctx context.Context, req Request) (*types.Agent, error) {
	return g.spawn(ctx, g.roll(req))
}

// MintCustom spawns a caller-defined agent. Unset optional fields take the
// same defaults the original definition files used: midline traits, a
// citizens membership, a survival goal and mild vitals.
func (g *Generator) MintCustom(ctx context.Context, req CustomRequest) (*types.Agent, error) {
	if req.Name == "" {
		return nil, fault.New(fault.InvalidArgument, "npcgen: custom agent needs a name")
	}
	return g.spawn(ctx, custom(req))
}

func (g *Generator) spawn(ctx context.Context, s sheet) (*types.Agent, error) {
	actor, err := g.agents.Spawn(ctx, s.agent)
	if err != nil {
		return nil, err
	}
	seeded := 0
	if g.mem != nil {
		for _, m := range s.memories {
			if _, err := g.mem.RememberAt(ctx, s.agent.ID, "", m.category, m.content, 0, m.strength); err != nil {
				g.log.Warn("seed memory failed", "agent", s.agent.ID, "error", err)
				continue
			}
			seeded++
		}
	}
	snap := actor.Snapshot()
	g.log.Info("agent minted",
		"agent", snap.ID,
		"role", snap.Role,
		"faction", snap.Faction,
		"zone", snap.Location.Zone,
		"memories", seeded)
	return snap, nil
}

// roll fills a sheet from the archetype tables. Draw order is fixed: role
// key, name, display role, zone, style, the eight traits in [types.AllTraits]
// order, backstory, vitals, then the three memory strengths. Pinned request
// fields skip their draws.
func (g *Generator) roll(req Request) sheet {
	d := g.dice

	key := req.Role
	if key == "" {
		key = roleOrder[d.IntN(len(roleOrder))]
	}
	t, ok := roleTemplates[key]
	if !ok {
		key = RoleCivilian
		t = roleTemplates[key]
	}

	name := req.Name
	if name == "" {
		name = rollName(d)
	}

	role := t.roles[d.IntN(len(t.roles))]
	zone := req.Zone
	if zone == "" {
		zone = t.zones[d.IntN(len(t.zones))]
	}
	style := t.styles[d.IntN(len(t.styles))]

	// Raw rolls go into the sheet untouched; the spawn applies the single
	// soft-clamp pass. Mood thresholds below read the raw values.
	var p types.Personality
	for _, tr := range types.AllTraits {
		if rng, ok := t.traits[tr]; ok {
			setRaw(&p, tr, round2(uniform(d, rng[0], rng[1])))
		} else {
			setRaw(&p, tr, round2(triangular(d, 0.2, 0.8, 0.5)))
		}
	}

	prose := displayZone(zone)
	backstory := strings.NewReplacer(
		"{name}", name,
		"{role}", role,
		"{zone}", prose,
	).Replace(backstoryTemplates[d.IntN(len(backstoryTemplates))])

	vitals := types.Vitals{
		Hunger:  uniform(d, 0.1, 0.4),
		Fatigue: uniform(d, 0.1, 0.4),
	}

	memories := []seedMemory{
		{types.MemoryPreference, "Trust must be earned through consistent actions.", round2(uniform(d, 0.7, 0.9))},
		{types.MemoryEvent, "First day at " + prose + " - learned the importance of vigilance.", round2(uniform(d, 0.6, 0.8))},
		{types.MemoryProfession, "Working at " + prose + " means dealing with all kinds of people.", round2(uniform(d, 0.5, 0.7))},
	}

	faction := req.Faction
	if faction == "" {
		faction = t.faction
	}

	goal := roleGoals[key]
	goal.ID = uuid.NewString()
	goal.CreatedAt = g.now()
	if goal.Type == types.GoalProtect || goal.Type == types.GoalTerritory {
		goal.Target = prose
	}

	id := req.ID
	if id == "" {
		id = newAgentID(name)
	}

	// The fingerprint derives from the clamped traits so that recomputing
	// it from the persisted snapshot reproduces the stored voice.
	fp := voice.Fingerprint(p.Clamped(), faction)
	return sheet{
		agent: types.Agent{
			ID:            id,
			Name:          name,
			Role:          role,
			Location:      types.Location{Zone: zone},
			Personality:   p,
			Vitals:        vitals,
			Mood:          moodFor(p),
			Faction:       faction,
			Goals:         []types.Goal{goal},
			Voice:         &fp,
			Backstory:     backstory,
			DialogueStyle: style,
		},
		memories: memories,
	}
}

// custom fills a sheet from an explicit definition. No dice are consumed.
func custom(req CustomRequest) sheet {
	p := types.Personality{
		Curiosity: 0.5, Empathy: 0.5, RiskTolerance: 0.5, Aggression: 0.5,
		Discipline: 0.5, Romanticism: 0.5, Opportunism: 0.5, Paranoia: 0.5,
	}
	for tr, v := range req.Traits {
		if tr.Valid() {
			setRaw(&p, tr, types.ClampUnit(v))
		}
	}

	faction := req.Faction
	if faction == "" {
		faction = "citizens"
	}
	role := req.Role
	if role == "" {
		role = "Settler"
	}
	style := req.DialogueStyle
	if style == "" {
		style = "Natural and contextual"
	}

	goal := types.Goal{
		ID:          uuid.NewString(),
		Type:        types.GoalSurvive,
		Description: "Stay alive another day",
		Priority:    0.95,
	}

	var memories []seedMemory
	if req.Backstory != "" {
		content := req.Backstory
		if r := []rune(content); len(r) > 100 {
			content = string(r[:100])
		}
		memories = append(memories, seedMemory{
			category: types.MemoryPreference,
			content:  "Core belief: " + content,
			strength: 0.8,
		})
	}

	id := req.ID
	if id == "" {
		id = newAgentID(req.Name)
	}

	fp := voice.Fingerprint(p.Clamped(), faction)
	return sheet{
		agent: types.Agent{
			ID:            id,
			Name:          req.Name,
			Role:          role,
			Location:      types.Location{Zone: req.Zone},
			Personality:   p,
			Vitals:        types.Vitals{Hunger: 0.2, Fatigue: 0.3},
			Mood:          moodFor(p),
			Faction:       faction,
			Goals:         []types.Goal{goal},
			Voice:         &fp,
			Backstory:     req.Backstory,
			DialogueStyle: style,
		},
		memories: memories,
	}
}

// rollName draws from the name pools: a 60% chance of a full name, single
// first name otherwise.
func rollName(d Dice) string {
	if d.Float64() < fullNameChance {
		return firstNames[d.IntN(len(firstNames))] + " " + lastNames[d.IntN(len(lastNames))]
	}
	return firstNames[d.IntN(len(firstNames))]
}

// newAgentID derives an id from the display name plus a short random
// suffix, so repeated mints of a popular name stay distinct.
func newAgentID(name string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(name), "-"))
	return "npc-" + slug + "-" + uuid.NewString()[:8]
}

// setRaw writes a trait value without the soft-clamp that [types.Personality.Set]
// applies. Sheets carry raw rolls; the spawn clamps exactly once.
func setRaw(p *types.Personality, t types.Trait, v float64) {
	switch t {
	case types.TraitCuriosity:
		p.Curiosity = v
	case types.TraitEmpathy:
		p.Empathy = v
	case types.TraitRiskTolerance:
		p.RiskTolerance = v
	case types.TraitAggression:
		p.Aggression = v
	case types.TraitDiscipline:
		p.Discipline = v
	case types.TraitRomanticism:
		p.Romanticism = v
	case types.TraitOpportunism:
		p.Opportunism = v
	case types.TraitParanoia:
		p.Paranoia = v
	}
}

// moodFor derives the starting mood from the raw trait rolls, dominant
// trait first.
func moodFor(p types.Personality) types.Mood {
	switch {
	case p.Paranoia > 0.7:
		return types.Mood{Label: "paranoid", Arousal: 0.6, Valence: 0.35}
	case p.Aggression > 0.7:
		return types.Mood{Label: "alert", Arousal: 0.55, Valence: 0.45}
	case p.Empathy > 0.7:
		return types.Mood{Label: "calm", Arousal: 0.2, Valence: 0.65}
	case p.Curiosity > 0.7:
		return types.Mood{Label: "curious", Arousal: 0.45, Valence: 0.6}
	}
	return types.Mood{Label: "neutral", Arousal: 0.25, Valence: 0.5}
}

// uniform draws from [lo, hi).
func uniform(d Dice, lo, hi float64) float64 {
	return lo + d.Float64()*(hi-lo)
}

// triangular draws from the triangular distribution on [lo, hi] peaking at
// mode, by inverting the CDF of a single uniform draw.
func triangular(d Dice, lo, hi, mode float64) float64 {
	u := d.Float64()
	c := (mode - lo) / (hi - lo)
	if u < c {
		return lo + math.Sqrt(u*(hi-lo)*(mode-lo))
	}
	return hi - math.Sqrt((1-u)*(hi-lo)*(hi-mode))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
