package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/solmae/animus/internal/brain"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/voice"
	"github.com/solmae/animus/pkg/audio"
	"github.com/solmae/animus/pkg/provider/stt"
	"github.com/solmae/animus/pkg/types"
)

const (
	// voiceChunkBytes caps one voice_chunk payload. Chunks arrive in
	// synthesis order because a single goroutine owns the outbound side.
	voiceChunkBytes = audio.DefaultChunkBytes

	// outboundBuffer absorbs event bursts between client reads.
	outboundBuffer = 64

	// eventBuffer is the per-connection slack on the world event ring.
	eventBuffer = 64
)

// subscriptionChannels is the set of valid subscribe_events channels.
var subscriptionChannels = map[string]bool{
	"world_events":      true,
	"faction_updates":   true,
	"territory_updates": true,
	"quest_updates":     true,
}

// conn is one player connection. The reader goroutine feeds inbound, the
// writer goroutine drains outbound, and run owns all connection state in
// between. Closing inbound is the only cancellation signal.
type conn struct {
	h          *Handler
	sock       *websocket.Conn
	playerID   string
	playerName string
	inbound    chan Envelope
	outbound   chan Envelope
	subs       map[string]bool
	log        *slog.Logger
}

func (c *conn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.readLoop(ctx)

	writerDone := make(chan struct{})
	go c.writeLoop(ctx, writerDone)

	events, unsubscribe := c.h.events.Subscribe(eventBuffer)
	defer unsubscribe()

	c.log.Info("player connected")
	for {
		select {
		case env, ok := <-c.inbound:
			if !ok {
				close(c.outbound)
				<-writerDone
				c.log.Info("player disconnected")
				return
			}
			c.dispatch(ctx, env)
		case ev := <-events:
			c.deliver(ev)
		}
	}
}

// readLoop moves frames from the socket onto inbound until the peer hangs
// up, then closes inbound to stop the owner.
func (c *conn) readLoop(ctx context.Context) {
	defer close(c.inbound)
	for {
		var env Envelope
		if err := wsjson.Read(ctx, c.sock, &env); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				c.log.Debug("read failed", "error", err)
			}
			return
		}
		select {
		case c.inbound <- env:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop drains outbound onto the socket. It owns the close handshake
// so frames queued before shutdown still go out.
func (c *conn) writeLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for env := range c.outbound {
		if err := wsjson.Write(ctx, c.sock, env); err != nil {
			c.log.Debug("write failed", "error", err)
			for range c.outbound {
			}
			return
		}
	}
	c.sock.Close(websocket.StatusNormalClosure, "")
}

// send queues a frame for the writer. Frames are dropped when the client
// cannot keep up; requests matter more than pushes, but a stalled socket
// will close through the read side soon anyway.
func (c *conn) send(env Envelope) {
	select {
	case c.outbound <- env:
	default:
		c.log.Warn("outbound queue full, dropping frame", "type", env.Type)
	}
}

func (c *conn) reply(reqID, typ string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode response", "type", typ, "error", err)
		c.sendError(reqID, fault.New(fault.InvalidArgument, "response could not be encoded"))
		return
	}
	c.send(Envelope{Type: typ, RequestID: reqID, Data: data})
}

type errorEnvelope struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (c *conn) sendError(reqID string, err error) {
	kind := fault.KindOf(err)
	if kind == "" {
		c.log.Error("unclassified error", "error", err)
		c.reply(reqID, "error", errorEnvelope{Error: errorInfo{
			Kind:    "internal",
			Message: "internal error",
		}})
		return
	}
	c.reply(reqID, "error", errorEnvelope{Error: errorInfo{
		Kind:      string(kind),
		Message:   err.Error(),
		Retryable: kind.Retryable(),
	}})
}

func (c *conn) decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fault.New(fault.InvalidArgument, env.Type+" requires a data payload")
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.InvalidArgument, "malformed "+env.Type+" payload", err)
	}
	return nil
}

func (c *conn) dispatch(ctx context.Context, env Envelope) {
	switch env.Type {
	case "ping":
		c.reply(env.RequestID, "pong", map[string]any{"time": time.Now().UnixMilli()})
	case "npc_action":
		c.handleNPCAction(ctx, env)
	case "npc_status":
		c.handleNPCStatus(ctx, env)
	case "voice_generate":
		c.handleVoiceGenerate(ctx, env)
	case "speech_transcribe":
		c.handleTranscribe(ctx, env)
	case "subscribe_events":
		c.handleSubscribe(env)
	case "get_factions":
		c.handleGetFactions(env)
	case "get_world_events":
		c.handleGetWorldEvents(env)
	case "conversation_start":
		c.handleConversationStart(env)
	case "conversation_message":
		c.handleConversationMessage(ctx, env)
	case "conversation_end":
		c.handleConversationEnd(env)
	case "conversation_add_npc":
		c.handleConversationMember(env, true)
	case "conversation_remove_npc":
		c.handleConversationMember(env, false)
	case "update_location":
		c.handleUpdateLocation(env)
	default:
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "unknown message type "+env.Type))
	}
}

type npcActionRequest struct {
	NPCID  string `json:"npc_id"`
	Action string `json:"action"`
}

func (c *conn) handleNPCAction(ctx context.Context, env Envelope) {
	var req npcActionRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if req.NPCID == "" || req.Action == "" {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "npc_id and action are required"))
		return
	}

	var witnesses []string
	if c.h.proximity != nil {
		witnesses = c.h.proximity.NearbyAgent(req.NPCID)
	}

	res, err := c.h.brain.Interact(ctx, brain.InteractRequest{
		AgentID:    req.NPCID,
		PlayerID:   c.playerID,
		PlayerName: c.playerName,
		Action:     req.Action,
		Witnesses:  witnesses,
	})
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if c.h.agentCache != nil {
		c.h.agentCache.Invalidate(req.NPCID)
	}
	c.reply(env.RequestID, "npc_response", res)
}

type npcStatusRequest struct {
	NPCID string `json:"npc_id"`
}

func (c *conn) handleNPCStatus(ctx context.Context, env Envelope) {
	var req npcStatusRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	snap, err := c.h.snapshotOf(ctx, req.NPCID)
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	c.reply(env.RequestID, "npc_status", snap)
}

type voiceGenerateRequest struct {
	NPCID string `json:"npc_id"`
	Text  string `json:"text"`
}

type voiceChunk struct {
	Seq   int    `json:"seq"`
	Audio []byte `json:"audio"`
}

func (c *conn) handleVoiceGenerate(ctx context.Context, env Envelope) {
	if c.h.speech == nil {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "speech synthesis is not enabled"))
		return
	}
	var req voiceGenerateRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if req.NPCID == "" || strings.TrimSpace(req.Text) == "" {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "npc_id and text are required"))
		return
	}

	snap, err := c.h.snapshotOf(ctx, req.NPCID)
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	fp := snap.Voice
	if fp == nil {
		derived := voice.Fingerprint(snap.Personality, snap.Faction)
		fp = &derived
	}
	var profile voice.Profile
	if c.h.voices != nil {
		profile = c.h.voices.Assign(snap.ID, snap.Role)
	}
	settings := voice.Settings(profile, *fp, snap.Mood)

	audio, err := c.h.speech.Synthesize(ctx, req.Text, settings)
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}

	seq := 0
	for chunk := range audio {
		for len(chunk) > 0 {
			n := min(len(chunk), voiceChunkBytes)
			c.reply(env.RequestID, "voice_chunk", voiceChunk{Seq: seq, Audio: chunk[:n]})
			chunk = chunk[n:]
			seq++
		}
	}
	c.reply(env.RequestID, "voice_complete", map[string]any{
		"agent_id": snap.ID,
		"chunks":   seq,
	})
}

type transcribeRequest struct {
	Audio    []byte `json:"audio"`
	MIMEType string `json:"mime_type,omitempty"`
	Language string `json:"language,omitempty"`
}

func (c *conn) handleTranscribe(ctx context.Context, env Envelope) {
	if c.h.speech == nil {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "speech transcription is not enabled"))
		return
	}
	var req transcribeRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if len(req.Audio) == 0 {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "audio is required"))
		return
	}

	transcript, err := c.h.speech.Transcribe(ctx, stt.Clip{
		Data:     req.Audio,
		MIMEType: req.MIMEType,
		Language: req.Language,
	})
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	c.reply(env.RequestID, "transcription", transcript)
}

type subscribeRequest struct {
	Channels []string `json:"channels"`
}

func (c *conn) handleSubscribe(env Envelope) {
	var req subscribeRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	for _, ch := range req.Channels {
		if !subscriptionChannels[ch] {
			c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "unknown channel "+ch))
			return
		}
	}
	c.subs = make(map[string]bool, len(req.Channels))
	for _, ch := range req.Channels {
		c.subs[ch] = true
	}
	c.reply(env.RequestID, "subscribe_events", map[string]any{"channels": req.Channels})
}

func (c *conn) handleGetFactions(env Envelope) {
	if c.h.factions == nil {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "the faction layer is not enabled"))
		return
	}
	factions := c.h.factions.Factions()
	c.reply(env.RequestID, "get_factions", map[string]any{
		"factions": factions,
		"count":    len(factions),
	})
}

type worldEventsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (c *conn) handleGetWorldEvents(env Envelope) {
	req := worldEventsRequest{Limit: 50}
	if len(env.Data) > 0 {
		if err := c.decode(env, &req); err != nil {
			c.sendError(env.RequestID, err)
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	events := c.h.events.Recent(req.Limit)
	c.reply(env.RequestID, "get_world_events", map[string]any{
		"events": events,
		"count":  len(events),
	})
}

type conversationStartRequest struct {
	NPCIDs   []string `json:"npc_ids,omitempty"`
	Location string   `json:"location,omitempty"`
}

func (c *conn) handleConversationStart(env Envelope) {
	if c.h.conversations == nil {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "group conversations are not enabled"))
		return
	}
	var req conversationStartRequest
	if len(env.Data) > 0 {
		if err := c.decode(env, &req); err != nil {
			c.sendError(env.RequestID, err)
			return
		}
	}
	state, err := c.h.conversations.Start(c.playerID, c.playerName, req.NPCIDs, req.Location)
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	c.reply(env.RequestID, "conversation_start", state)
}

type conversationMessageRequest struct {
	GroupID string `json:"group_id"`
	Text    string `json:"text"`
	Target  string `json:"target,omitempty"`
}

func (c *conn) handleConversationMessage(ctx context.Context, env Envelope) {
	if c.h.conversations == nil {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "group conversations are not enabled"))
		return
	}
	var req conversationMessageRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if req.GroupID == "" || req.Text == "" {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "group_id and text are required"))
		return
	}
	exchange, err := c.h.conversations.Message(ctx, req.GroupID, req.Text, req.Target)
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	c.reply(env.RequestID, "conversation_message", exchange)
}

type conversationGroupRequest struct {
	GroupID string `json:"group_id"`
	NPCID   string `json:"npc_id,omitempty"`
}

func (c *conn) handleConversationEnd(env Envelope) {
	if c.h.conversations == nil {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "group conversations are not enabled"))
		return
	}
	var req conversationGroupRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if req.GroupID == "" {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "group_id is required"))
		return
	}
	state, err := c.h.conversations.End(req.GroupID)
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	c.reply(env.RequestID, "conversation_end", state)
}

func (c *conn) handleConversationMember(env Envelope, add bool) {
	if c.h.conversations == nil {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "group conversations are not enabled"))
		return
	}
	var req conversationGroupRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if req.GroupID == "" || req.NPCID == "" {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "group_id and npc_id are required"))
		return
	}
	var (
		state any
		err   error
	)
	typ := "conversation_remove_npc"
	if add {
		typ = "conversation_add_npc"
		state, err = c.h.conversations.AddAgent(req.GroupID, req.NPCID)
	} else {
		state, err = c.h.conversations.RemoveAgent(req.GroupID, req.NPCID)
	}
	if err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	c.reply(env.RequestID, typ, state)
}

type updateLocationRequest struct {
	Zone string   `json:"zone"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
	Z    *float64 `json:"z,omitempty"`
}

func (c *conn) handleUpdateLocation(env Envelope) {
	var req updateLocationRequest
	if err := c.decode(env, &req); err != nil {
		c.sendError(env.RequestID, err)
		return
	}
	if req.Zone == "" {
		c.sendError(env.RequestID, fault.New(fault.InvalidArgument, "zone is required"))
		return
	}
	loc := types.Location{Zone: req.Zone}
	if req.X != nil && req.Y != nil {
		pos := types.Position{X: *req.X, Y: *req.Y}
		if req.Z != nil {
			pos.Z = *req.Z
		}
		loc.Position = &pos
	}
	if c.h.sessions != nil {
		c.h.sessions.SetLocation(c.playerID, loc)
	}
	c.reply(env.RequestID, "update_location", loc)
}

// channelFor maps an event kind onto its dedicated subscription channel.
// Empty means the event only travels on world_events.
func channelFor(kind types.EventKind) string {
	switch kind {
	case types.EventSkirmish, types.EventTradeDeal, types.EventBetrayal,
		types.EventAllianceFormed, types.EventBattleStarted, types.EventBattleResolved,
		types.EventRouteEstablished, types.EventRouteExecuted,
		types.EventRouteDisrupted, types.EventRouteRestored:
		return "faction_updates"
	case types.EventTerritoryTaken:
		return "territory_updates"
	case types.EventQuestOffered, types.EventQuestCompleted, types.EventQuestExpired:
		return "quest_updates"
	default:
		return ""
	}
}

// pushType names the server frame for each subscription channel.
var pushType = map[string]string{
	"world_events":      "world_event",
	"faction_updates":   "faction_update",
	"territory_updates": "territory_update",
	"quest_updates":     "quest_update",
}

// deliver forwards a world event to the client. world_events carries
// everything; the specific channels carry their typed subset, so a client
// subscribed to both sees an event twice under two frame types.
func (c *conn) deliver(ev types.WorldEvent) {
	if c.subs["world_events"] {
		c.reply("", "world_event", ev)
	}
	if ch := channelFor(ev.Kind); ch != "" && c.subs[ch] {
		c.reply("", pushType[ch], ev)
	}
}
