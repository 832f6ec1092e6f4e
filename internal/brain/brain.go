// Package brain runs the double-pass interaction pipeline: assemble what
// the agent knows about the player, cognize once through the oracle, then
// commit every side effect before the response leaves the engine.
//
// The first pass is read-only fan-out (reputation, rumors, memories, faction
// stance) that degrades per source. The second pass is the effects commit:
// mood shift through the agent mailbox, memory reinforcement and insertion,
// reputation movement with the faction ripple, gossip, and witness
// perception. A fallback cognition outcome short-circuits all trust and
// reputation movement while still returning a playable reply.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/solmae/animus/internal/agent"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/oracle"
	"github.com/solmae/animus/internal/relation"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

const (
	// RumorChance is the per-exchange probability the agent starts a rumor
	// about the player.
	RumorChance = 0.3

	// RumorSpreadChance is the per-candidate probability a fresh rumor
	// reaches one nearby agent.
	RumorSpreadChance = 0.5

	// ShareChance is the probability the agent gossips newly learned topics
	// onward after an exchange.
	ShareChance = 0.4

	// ReinforceTop is how many recalled memories each exchange strengthens.
	ReinforceTop = 2

	// UrgentEventThreshold is the frame urgency at which an exchange is
	// promoted into the world event log.
	UrgentEventThreshold = 0.85
)

// Cognizer is the slice of the oracle the engine drives. Cognize never
// fails; degraded passes surface as fallback outcomes.
type Cognizer interface {
	Cognize(ctx context.Context, req oracle.CognizeRequest) oracle.CognizeOutcome
}

// SessionLog tracks player liveness and the exchange history. Both calls
// are best-effort from the engine's point of view.
type SessionLog interface {
	Touch(ctx context.Context, playerID, playerName string) error
	LogExchange(ctx context.Context, playerID, agentID, action, dialogue string, repChange float64) error
}

// FactionInfo names the factions hostile to a given one, for the
// reputation ripple.
type FactionInfo interface {
	Enemies(factionID string) []string
}

// EventSink receives world events raised outside the tick loop.
type EventSink interface {
	Record(kind types.EventKind, message string, actors ...string)
}

// Config wires an interaction [Engine]. Agents, Memory, Relations and
// Oracle are required; the rest default or stay optional.
type Config struct {
	// Agents is the live actor runtime.
	Agents *agent.Runtime

	// Memory drives recall, reinforcement, rumors and sharing.
	Memory *memory.Engine

	// Relations drives trust, standing and reputation.
	Relations *relation.Engine

	// Oracle produces cognitive frames.
	Oracle Cognizer

	// Sessions records player liveness; nil skips session bookkeeping.
	Sessions SessionLog

	// Factions resolves enemy factions for the ripple; nil means no ripple
	// beyond the agent's own faction.
	Factions FactionInfo

	// Events receives urgent world events; nil drops them.
	Events EventSink

	// Setting frames the world in persona prompts. Defaults to
	// [DefaultSetting].
	Setting string

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Rand draws the gossip probabilities for an agent. Defaults to the
	// process source; deterministic deployments wire per-agent streams.
	Rand func(agentID string) float64

	// Now overrides the wall-clock source, for tests.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Setting == "" {
		c.Setting = DefaultSetting
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Rand == nil {
		c.Rand = func(string) float64 { return rand.Float64() }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine is the interaction pipeline. Safe for concurrent use; per-agent
// ordering is guaranteed by the actor mailbox, not by the engine.
type Engine struct {
	agents    *agent.Runtime
	memory    *memory.Engine
	relations *relation.Engine
	oracle    Cognizer
	sessions  SessionLog
	factions  FactionInfo
	events    EventSink
	setting   string
	log       *slog.Logger
	rand      func(agentID string) float64
	now       func() time.Time
}

// New creates an [Engine] from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Agents == nil {
		return nil, fmt.Errorf("brain: agent runtime must not be nil")
	}
	if cfg.Memory == nil {
		return nil, fmt.Errorf("brain: memory engine must not be nil")
	}
	if cfg.Relations == nil {
		return nil, fmt.Errorf("brain: relation engine must not be nil")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("brain: oracle must not be nil")
	}
	cfg.setDefaults()
	return &Engine{
		agents:    cfg.Agents,
		memory:    cfg.Memory,
		relations: cfg.Relations,
		oracle:    cfg.Oracle,
		sessions:  cfg.Sessions,
		factions:  cfg.Factions,
		events:    cfg.Events,
		setting:   cfg.Setting,
		log:       cfg.Logger.With("component", "brain"),
		rand:      cfg.Rand,
		now:       cfg.Now,
	}, nil
}

// InteractRequest is one player action against one agent. Witnesses are
// the agents in earshot; the caller fills them from proximity.
type InteractRequest struct {
	AgentID    string
	PlayerID   string
	PlayerName string
	Action     string
	Witnesses  []string
}

func (r InteractRequest) displayName() string {
	if r.PlayerName != "" {
		return r.PlayerName
	}
	return r.PlayerID
}

// InteractResult is the full outcome of one exchange, effects included.
type InteractResult struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	PlayerID  string `json:"player_id"`

	// Frame is the validated cognition output the effects ran on.
	Frame types.CognitiveFrame `json:"frame"`

	// Mood and Vitals are the agent's state after the exchange.
	Mood   types.Mood   `json:"mood"`
	Vitals types.Vitals `json:"vitals"`

	// TrustDelta is the applied movement after personality modulation;
	// zero on fallback outcomes.
	TrustDelta float64 `json:"trust_delta"`

	// Reputation is the player's standing with this agent afterwards.
	Reputation float64 `json:"reputation"`

	// FactionImpact maps faction ids to their post-ripple scores.
	FactionImpact map[string]float64 `json:"faction_impact,omitempty"`

	// Fallback reports that the oracle degraded and no trust or
	// reputation moved.
	Fallback bool `json:"fallback,omitempty"`

	TopicsExtracted int  `json:"topics_extracted"`
	TopicsRecalled  int  `json:"topics_recalled"`
	HeardFromOthers int  `json:"heard_from_others"`
	MemoriesShared  int  `json:"memories_shared"`
	RumorStarted    bool `json:"rumor_started,omitempty"`
}

// Interact runs the full pipeline for one player action. The returned
// result is only produced after every effect has been committed; callers
// can treat it as the durable record of the exchange. Oracle degradation
// never surfaces as an error, only as a fallback result.
func (e *Engine) Interact(ctx context.Context, req InteractRequest) (*InteractResult, error) {
	if req.PlayerID == "" || req.Action == "" {
		return nil, fault.New(fault.InvalidArgument, "brain: player id and action must not be empty")
	}
	actor, err := e.agents.Actor(req.AgentID)
	if err != nil {
		return nil, err
	}
	snap := actor.Snapshot()

	if e.sessions != nil {
		if err := e.sessions.Touch(ctx, req.PlayerID, req.PlayerName); err != nil {
			e.log.Warn("session touch failed", "player", req.PlayerID, "error", err)
		}
	}

	ictx := e.assemble(ctx, snap, req)

	outcome := e.oracle.Cognize(ctx, oracle.CognizeRequest{
		AgentID: snap.ID,
		System:  PersonaPrompt(snap, e.setting),
		Prompt:  SituationPrompt(ictx, req.Action),
		Mood:    snap.Mood,
		Vitals:  snap.Vitals,
	})
	frame := outcome.Frame()

	delta := relation.ModulateTrustDelta(frame.TrustDelta, snap.Personality)
	if outcome.IsFallback() {
		delta = 0
		e.log.Info("cognition degraded",
			"agent", snap.ID, "player", req.PlayerID, "reason", outcome.Reason())
	}

	res := &InteractResult{
		AgentID:         snap.ID,
		AgentName:       snap.Name,
		PlayerID:        req.PlayerID,
		Frame:           frame,
		Mood:            snap.Mood,
		Vitals:          snap.Vitals,
		TrustDelta:      delta,
		Reputation:      ictx.Reputation,
		Fallback:        outcome.IsFallback(),
		TopicsExtracted: len(ictx.Topics),
		TopicsRecalled:  len(ictx.Remembered),
		HeardFromOthers: len(ictx.Heard),
	}
	if err := e.applyEffects(ctx, actor, ictx, req, frame, delta, res); err != nil {
		return nil, err
	}

	e.log.Debug("interaction complete",
		"agent", snap.ID,
		"player", req.PlayerID,
		"intent", frame.Intent,
		"trust_delta", delta,
		"fallback", res.Fallback,
		"assembly", ictx.AssemblyTime,
	)
	return res, nil
}

// applyEffects is the second pass. The mood shift and the reputation
// movement are load-bearing and fail the exchange; everything after them
// is enrichment that degrades with a warning.
func (e *Engine) applyEffects(ctx context.Context, actor *agent.Actor, ictx *InteractionContext, req InteractRequest, frame types.CognitiveFrame, delta float64, res *InteractResult) error {
	snap := ictx.Agent

	// ── mood and trait drift through the mailbox ──
	applied, err := actor.ApplyAction(ctx, req.Action, &frame)
	if err != nil {
		return err
	}
	res.Mood = applied.Mood
	if fresh := actor.Snapshot(); fresh != nil {
		res.Vitals = fresh.Vitals
	}
	if _, err := e.memory.Remember(ctx, snap.ID, req.PlayerID, types.MemoryEvent, applied.MemoryNote, frame.EmotionalWeight); err != nil {
		e.log.Warn("episodic note not stored", "agent", snap.ID, "error", err)
	}

	// ── reputation and the faction ripple ──
	var enemies []string
	if e.factions != nil && snap.Faction != "" {
		enemies = e.factions.Enemies(snap.Faction)
	}
	effect, err := e.relations.ApplyPlayerDelta(ctx, req.PlayerID, snap.ID, snap.Faction, delta, enemies)
	if err != nil {
		return err
	}
	res.Reputation = effect.AgentScore
	res.FactionImpact = effect.FactionScores

	// ── relation graph and the agent's own trust-shift note ──
	if delta != 0 {
		rel, err := e.relations.RecordInteraction(ctx, snap.ID, req.PlayerID, delta)
		switch {
		case err != nil:
			e.log.Warn("relation not recorded", "agent", snap.ID, "player", req.PlayerID, "error", err)
		case math.Abs(delta) > relation.WitnessThreshold:
			standing := relation.Standing(rel.TrustOf(snap.ID), rel.Familiarity)
			note := relation.TrustShiftNote(ictx.PlayerName, delta, standing)
			if _, err := e.memory.RememberAt(ctx, snap.ID, req.PlayerID, types.MemoryEvent, note, 0, relation.WitnessStrength); err != nil {
				e.log.Warn("trust shift note not stored", "agent", snap.ID, "error", err)
			}
		}
	}

	// ── exchange log ──
	if e.sessions != nil {
		if err := e.sessions.LogExchange(ctx, req.PlayerID, snap.ID, req.Action, frame.Dialogue, delta); err != nil {
			e.log.Warn("exchange not logged", "player", req.PlayerID, "error", err)
		}
	}

	// ── urgent world event ──
	if frame.Urgency >= UrgentEventThreshold && e.events != nil {
		msg := fmt.Sprintf("%s responds to %s with urgent intent: %s", snap.Name, ictx.PlayerName, frame.Intent)
		e.events.Record(types.EventUrgent, msg, snap.ID, req.PlayerID)
	}

	// ── rumor creation and spread ──
	if e.rand(snap.ID) < RumorChance {
		content := rumorContent(ictx.PlayerName, snap.Name, delta, e.rand(snap.ID))
		rumor, err := e.memory.CreateRumor(ctx, req.PlayerID, content, snap.ID, 0)
		if err != nil {
			e.log.Warn("rumor not created", "agent", snap.ID, "error", err)
		} else {
			res.RumorStarted = true
			for _, w := range req.Witnesses {
				if w == snap.ID || e.rand(snap.ID) >= RumorSpreadChance {
					continue
				}
				if _, err := e.memory.SpreadRumor(ctx, rumor, w); err != nil {
					e.log.Warn("rumor not spread", "to", w, "error", err)
				}
			}
		}
	}

	// ── reinforcement of what came up, insertion of what was learned ──
	for i := range ictx.Remembered {
		if i == ReinforceTop {
			break
		}
		if err := e.memory.Reinforce(ctx, &ictx.Remembered[i]); err != nil {
			e.log.Warn("memory not reinforced", "memory", ictx.Remembered[i].ID, "error", err)
		}
	}
	for _, t := range ictx.Topics {
		if _, err := e.memory.Remember(ctx, snap.ID, req.PlayerID, t.Category, req.Action, t.Weight); err != nil {
			e.log.Warn("topic not stored", "agent", snap.ID, "category", t.Category, "error", err)
		}
	}

	// ── auto-share fresh knowledge with friendly bystanders ──
	if len(ictx.Topics) > 0 && e.rand(snap.ID) < ShareChance {
		res.MemoriesShared = e.shareWith(ctx, snap.ID, req.PlayerID, req.Witnesses)
	}

	// ── what the bystanders make of it ──
	if math.Abs(delta) > relation.WitnessThreshold {
		e.witnessEffects(ctx, req.Witnesses, snap.ID, req.PlayerID, ictx.PlayerName, "", req.Action)
	}

	return nil
}

// shareWith passes the teller's strongest memories about the subject to
// each candidate the teller actually trusts. Candidates the teller is
// neutral or hostile toward hear nothing.
func (e *Engine) shareWith(ctx context.Context, teller, subject string, candidates []string) int {
	shared := 0
	for _, to := range candidates {
		if to == teller {
			continue
		}
		trust, _, err := e.relations.Trust(ctx, teller, to)
		if err != nil {
			e.log.Warn("share skipped, trust unavailable", "from", teller, "to", to, "error", err)
			continue
		}
		if trust <= 0 {
			continue
		}
		copies, err := e.memory.Share(ctx, teller, to, subject, trust)
		if err != nil {
			e.log.Warn("share failed", "from", teller, "to", to, "error", err)
			continue
		}
		shared += len(copies)
	}
	return shared
}

// witnessEffects stores a perception note for every bystander of a trust
// moving exchange. The note carries the witness's own standing toward the
// actor; fresh pairs read the faction default (0.6 same faction, 0.3
// otherwise). actorFaction is empty when the actor is a player.
func (e *Engine) witnessEffects(ctx context.Context, witnesses []string, agentID, actorID, actorName, actorFaction, action string) {
	for _, w := range witnesses {
		if w == agentID || w == actorID {
			continue
		}
		wsnap, err := e.agents.Snapshot(w)
		if err != nil {
			continue
		}
		sameFaction := actorFaction != "" && wsnap.Faction == actorFaction
		standing, err := e.relations.StandingOf(ctx, w, actorID, sameFaction)
		if err != nil {
			standing = relation.DefaultStanding(sameFaction)
		}
		note := relation.WitnessNote(actorName, standing, action)
		if _, err := e.memory.RememberAt(ctx, w, actorID, types.MemoryEvent, note, 0, relation.WitnessStrength); err != nil {
			e.log.Warn("witness note not stored", "witness", w, "error", err)
		}
	}
}

// rumorContent picks a rumor line for the exchange outcome. The sign of
// the applied trust delta decides the flavor; roll in [0, 1) picks within
// the flavor.
func rumorContent(playerName, agentName string, delta, roll float64) string {
	var lines []string
	switch {
	case delta > 0:
		lines = []string{
			playerName + " helped out near " + agentName + "'s post. Seems trustworthy.",
			"Heard " + playerName + " did something good. Maybe they're alright.",
			playerName + " showed respect. Not like the usual troublemakers.",
		}
	case delta < 0:
		lines = []string{
			playerName + " caused trouble near " + agentName + ". Keep an eye on them.",
			"Watch out for " + playerName + ". They're not to be trusted.",
			playerName + " acted suspiciously. Might be dangerous.",
		}
	default:
		lines = []string{
			playerName + " passed through. Nothing special.",
			"Saw " + playerName + " around. Seemed ordinary enough.",
		}
	}
	idx := int(roll * float64(len(lines)))
	if idx >= len(lines) {
		idx = len(lines) - 1
	}
	return lines[idx]
}
