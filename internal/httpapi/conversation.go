package httpapi

import (
	"net/http"

	"github.com/solmae/animus/internal/fault"
)

func (s *Server) requireConversations(w http.ResponseWriter, r *http.Request) bool {
	if s.conversations == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "group conversations are not enabled"))
		return false
	}
	return true
}

type conversationStartRequest struct {
	PlayerID   string   `json:"player_id"`
	PlayerName string   `json:"player_name,omitempty"`
	NPCIDs     []string `json:"npc_ids,omitempty"`
	Location   string   `json:"location,omitempty"`
}

func (s *Server) handleConversationStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireConversations(w, r) {
		return
	}
	var req conversationStartRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PlayerID == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "player_id is required"))
		return
	}

	state, err := s.conversations.Start(req.PlayerID, req.PlayerName, req.NPCIDs, req.Location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, state)
}

type conversationMessageRequest struct {
	GroupID string `json:"group_id"`
	Text    string `json:"text"`
	Target  string `json:"target,omitempty"`
}

func (s *Server) handleConversationMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireConversations(w, r) {
		return
	}
	var req conversationMessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.GroupID == "" || req.Text == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "group_id and text are required"))
		return
	}

	exchange, err := s.conversations.Message(r.Context(), req.GroupID, req.Text, req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exchange)
}

type conversationGroupRequest struct {
	GroupID string `json:"group_id"`
	NPCID   string `json:"npc_id,omitempty"`
}

func (s *Server) groupRequest(w http.ResponseWriter, r *http.Request, needNPC bool) (conversationGroupRequest, bool) {
	var req conversationGroupRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return req, false
	}
	if req.GroupID == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "group_id is required"))
		return req, false
	}
	if needNPC && req.NPCID == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "npc_id is required"))
		return req, false
	}
	return req, true
}

func (s *Server) handleConversationEnd(w http.ResponseWriter, r *http.Request) {
	if !s.requireConversations(w, r) {
		return
	}
	req, ok := s.groupRequest(w, r, false)
	if !ok {
		return
	}
	state, err := s.conversations.End(req.GroupID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleConversationAddNPC(w http.ResponseWriter, r *http.Request) {
	if !s.requireConversations(w, r) {
		return
	}
	req, ok := s.groupRequest(w, r, true)
	if !ok {
		return
	}
	state, err := s.conversations.AddAgent(req.GroupID, req.NPCID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleConversationRemoveNPC(w http.ResponseWriter, r *http.Request) {
	if !s.requireConversations(w, r) {
		return
	}
	req, ok := s.groupRequest(w, r, true)
	if !ok {
		return
	}
	state, err := s.conversations.RemoveAgent(req.GroupID, req.NPCID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleConversationByNPC(w http.ResponseWriter, r *http.Request) {
	if !s.requireConversations(w, r) {
		return
	}
	groups := s.conversations.ByAgent(r.PathValue("id"))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

func (s *Server) handleConversationByPlayer(w http.ResponseWriter, r *http.Request) {
	if !s.requireConversations(w, r) {
		return
	}
	groups := s.conversations.ByPlayer(r.PathValue("id"))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}
