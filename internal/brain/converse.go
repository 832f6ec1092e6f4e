package brain

import (
	"context"
	"strings"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/oracle"
	"github.com/solmae/animus/internal/relation"
	"github.com/solmae/animus/pkg/types"
)

// Base trust movement per response type, before personality modulation.
// Agreement warms, disagreement and interruption cool, redirect is neutral.
var turnTrust = map[types.ResponseType]float64{
	types.ResponseDirectReply:  0.02,
	types.ResponseAgreement:    0.05,
	types.ResponseDisagreement: -0.05,
	types.ResponseElaboration:  0.02,
	types.ResponseInterruption: -0.03,
	types.ResponseRedirect:     0,
}

// Mood shift per response type. Confrontational turns raise arousal.
var turnMood = map[types.ResponseType]types.MoodShift{
	types.ResponseAgreement:    {Valence: 0.05},
	types.ResponseDisagreement: {Arousal: 0.10, Valence: -0.05},
	types.ResponseInterruption: {Arousal: 0.12, Valence: -0.03},
	types.ResponseRedirect:     {Arousal: 0.02},
}

const (
	// turnWeight is the emotional weight of an ordinary group turn;
	// confrontational turns carry turnWeightTense.
	turnWeight      = 0.4
	turnWeightTense = 0.6
)

// ConverseRequest is one planned turn of a group conversation. The planner
// already chose the speaker, the stance and the line; Converse commits the
// standard per-agent effects for it.
type ConverseRequest struct {
	// AgentID is the speaker.
	AgentID string

	// PlayerID and PlayerName identify the player whose message opened the
	// round.
	PlayerID   string
	PlayerName string

	// Message is the player's text.
	Message string

	// Dialogue is the speaker's planned line.
	Dialogue string

	// Response is the speaker's stance for this turn. Must be a valid,
	// non-silent response type.
	Response types.ResponseType

	// AddressedTo is who the line is aimed at: a participant id, the player
	// id, or empty for the player.
	AddressedTo string

	// Witnesses are the other participants in earshot.
	Witnesses []string

	// Fallback marks a turn from a degraded planning pass. Fallback turns
	// speak a placeholder line and move no trust or reputation.
	Fallback bool
}

func (r ConverseRequest) displayName() string {
	if r.PlayerName != "" {
		return r.PlayerName
	}
	return r.PlayerID
}

// addressesPlayer reports whether the turn is aimed at the player. An empty
// address defaults to the player, who spoke last.
func (r ConverseRequest) addressesPlayer() bool {
	return r.AddressedTo == "" || r.AddressedTo == r.PlayerID
}

// Converse commits one group turn: the speaker's mood shift and episodic
// note through the mailbox, reputation movement when the turn addresses the
// player, pair trust when it addresses another agent, and the usual rumor,
// share and witness enrichment. Turns commit in plan order because the
// orchestrator calls Converse sequentially; the engine adds no ordering of
// its own.
func (e *Engine) Converse(ctx context.Context, req ConverseRequest) (*InteractResult, error) {
	if req.PlayerID == "" || req.Message == "" {
		return nil, fault.New(fault.InvalidArgument, "brain: player id and message must not be empty")
	}
	if !req.Response.Valid() || req.Response == types.ResponseSilent {
		return nil, fault.Errorf(fault.InvalidArgument, "brain: turn needs a spoken response type, got %q", req.Response)
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

	ictx := e.assemble(ctx, snap, InteractRequest{
		AgentID:    req.AgentID,
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
		Action:     req.Message,
		Witnesses:  req.Witnesses,
	})

	frame := turnFrame(req, snap.Mood)

	// Trust moves toward whoever the turn addresses. Player-addressed turns
	// run the full reputation path; agent-addressed turns move pair trust
	// only.
	var delta, pairDelta float64
	if !req.Fallback {
		modulated := relation.ModulateTrustDelta(frame.TrustDelta, snap.Personality)
		if req.addressesPlayer() {
			delta = modulated
		} else {
			pairDelta = modulated
		}
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
		Fallback:        req.Fallback,
		TopicsExtracted: len(ictx.Topics),
		TopicsRecalled:  len(ictx.Remembered),
		HeardFromOthers: len(ictx.Heard),
	}
	if err := e.applyEffects(ctx, actor, ictx, InteractRequest{
		AgentID:    req.AgentID,
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
		Action:     req.Message,
		Witnesses:  req.Witnesses,
	}, frame, delta, res); err != nil {
		return nil, err
	}

	if pairDelta != 0 && req.AddressedTo != snap.ID {
		if _, err := e.relations.RecordInteraction(ctx, snap.ID, req.AddressedTo, pairDelta); err != nil {
			e.log.Warn("pair trust not recorded",
				"from", snap.ID, "to", req.AddressedTo, "error", err)
		}
	}

	e.log.Debug("group turn committed",
		"agent", snap.ID,
		"player", req.PlayerID,
		"response", req.Response,
		"addressed_to", req.AddressedTo,
		"trust_delta", delta,
		"fallback", res.Fallback,
	)
	return res, nil
}

// turnFrame derives the cognitive frame for a planned turn. A fallback turn
// takes the mood-derived substitute frame so the speaker still answers with
// a placeholder line and no trust movement.
func turnFrame(req ConverseRequest, mood types.Mood) types.CognitiveFrame {
	if req.Fallback {
		return oracle.FallbackFrame(mood)
	}

	dialogue := strings.TrimSpace(req.Dialogue)
	if dialogue == "" {
		dialogue = "..."
	}
	weight := turnWeight
	urgency := 0.3
	if req.Response.RaisesTension() {
		weight = turnWeightTense
		urgency = 0.6
	}
	return types.CognitiveFrame{
		Reflection:      "Spoke up in a group conversation (" + string(req.Response) + ").",
		Dialogue:        dialogue,
		Intent:          types.IntentSocialize,
		MoodShift:       turnMood[req.Response],
		Urgency:         urgency,
		TrustDelta:      turnTrust[req.Response],
		EmotionalWeight: weight,
	}
}
