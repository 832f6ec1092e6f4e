package httpapi

import (
	"net/http"
	"strconv"

	"github.com/solmae/animus/internal/brain"
	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/npcgen"
	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

type npcInitRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Zone    string `json:"zone,omitempty"`
	Faction string `json:"faction,omitempty"`
}

func (s *Server) handleNPCInit(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "agent generation is not enabled"))
		return
	}
	var req npcInitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.generator.Mint(r.Context(), npcgen.Request{
		ID:      req.ID,
		Name:    req.Name,
		Role:    req.Role,
		Zone:    req.Zone,
		Faction: req.Faction,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.proximity != nil {
		s.proximity.Upsert(snap.ID, snap.Location)
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

type npcActionRequest struct {
	NPCID      string `json:"npc_id"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
	Action     string `json:"action"`
}

func (s *Server) handleNPCAction(w http.ResponseWriter, r *http.Request) {
	var req npcActionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.NPCID == "" || req.PlayerID == "" || req.Action == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "npc_id, player_id and action are required"))
		return
	}

	var witnesses []string
	if s.proximity != nil {
		witnesses = s.proximity.NearbyAgent(req.NPCID)
	}

	res, err := s.brain.Interact(r.Context(), brain.InteractRequest{
		AgentID:    req.NPCID,
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
		Action:     req.Action,
		Witnesses:  witnesses,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.agentCache != nil {
		s.agentCache.Invalidate(req.NPCID)
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNPCStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshotOf(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// npcSummary is the per-agent row of /npc/list.
type npcSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Zone    string `json:"zone,omitempty"`
	Faction string `json:"faction,omitempty"`
	Mood    string `json:"mood"`
	Goals   int    `json:"goals"`
}

func (s *Server) handleNPCList(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		// Store reads degrade to whatever is resident in the runtime.
		s.log.Warn("agent list degraded to runtime snapshots", "error", err)
		out := make([]npcSummary, 0, s.agents.Len())
		for _, snap := range s.agents.Snapshots() {
			out = append(out, summarize(snap))
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"npcs":     out,
			"count":    len(out),
			"degraded": true,
		})
		return
	}

	out := make([]npcSummary, 0, len(agents))
	for i := range agents {
		out = append(out, summarize(&agents[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"npcs":  out,
		"count": len(out),
	})
}

func summarize(a *types.Agent) npcSummary {
	return npcSummary{
		ID:      a.ID,
		Name:    a.Name,
		Role:    a.Role,
		Zone:    a.Location.Zone,
		Faction: a.Faction,
		Mood:    a.Mood.Label,
		Goals:   len(a.Goals),
	}
}

func (s *Server) handleNPCMemories(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "memory retrieval is not enabled"))
		return
	}
	agentID := r.PathValue("agent")
	playerID := r.PathValue("player")

	// Reject unknown agents up front so the response distinguishes "no such
	// agent" from "knows nothing about this player".
	if _, err := s.snapshotOf(r.Context(), agentID); err != nil {
		s.writeError(w, r, err)
		return
	}

	memories, err := s.memory.Retrieve(r.Context(), agentID,
		memory.AboutSubject(playerID),
		memory.WithLimit(50),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":  agentID,
		"player_id": playerID,
		"memories":  memories,
		"count":     len(memories),
	})
}

func (s *Server) handleMemoryDecay(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "memory decay is not enabled"))
		return
	}
	hours := 1.0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			s.writeError(w, r, fault.Errorf(fault.InvalidArgument, "hours %q must be a positive number", raw))
			return
		}
		hours = v
	}

	res, err := s.memory.Sweep(r.Context(), hours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"hours": hours,
		"sweep": res,
	})
}
