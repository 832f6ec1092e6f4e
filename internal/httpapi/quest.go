package httpapi

import (
	"net/http"

	"github.com/solmae/animus/internal/fault"
)

func (s *Server) handleQuestGenerate(w http.ResponseWriter, r *http.Request) {
	if s.quests == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "quests are not enabled"))
		return
	}
	giverID := r.PathValue("agent")
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "player_id is required"))
		return
	}
	if _, err := s.snapshotOf(r.Context(), giverID); err != nil {
		s.writeError(w, r, err)
		return
	}

	q, err := s.quests.Generate(r.Context(), giverID, playerID, s.clock.Now().TotalHours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleQuestAccept(w http.ResponseWriter, r *http.Request) {
	if s.quests == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "quests are not enabled"))
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "player_id is required"))
		return
	}

	q, err := s.quests.Accept(r.Context(), r.PathValue("id"), playerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleQuestComplete(w http.ResponseWriter, r *http.Request) {
	if s.quests == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "quests are not enabled"))
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "player_id is required"))
		return
	}

	res, err := s.quests.Complete(r.Context(), r.PathValue("id"), playerID, s.clock.Now().TotalHours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
