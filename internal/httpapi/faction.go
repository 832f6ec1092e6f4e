package httpapi

import (
	"net/http"

	"github.com/solmae/animus/internal/fault"
)

func (s *Server) requireFactions(w http.ResponseWriter, r *http.Request) bool {
	if s.factions == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "the faction layer is not enabled"))
		return false
	}
	return true
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	factions := s.factions.Factions()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"factions": factions,
		"count":    len(factions),
	})
}

// territoryControl is the per-territory row of /territory/control.
type territoryControl struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	ControllingFaction string  `json:"controlling_faction"`
	ControlStrength    float64 `json:"control_strength"`
	StrategicValue     float64 `json:"strategic_value"`
	Contested          bool    `json:"contested"`
}

func (s *Server) handleTerritoryControl(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	territories := s.factions.Territories()
	out := make([]territoryControl, 0, len(territories))
	byFaction := make(map[string]int)
	for _, t := range territories {
		out = append(out, territoryControl{
			ID:                 t.ID,
			Name:               t.Name,
			ControllingFaction: t.ControllingFaction,
			ControlStrength:    t.ControlStrength,
			StrategicValue:     t.StrategicValue,
			Contested:          t.Contested,
		})
		byFaction[t.ControllingFaction]++
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"territories": out,
		"by_faction":  byFaction,
	})
}

func (s *Server) handleTradeRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	routes, err := s.factions.Routes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}

func (s *Server) handleBattleStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	attacker := r.URL.Query().Get("attacker")
	if attacker == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "attacker is required"))
		return
	}

	b, err := s.factions.StartBattle(r.Context(), r.PathValue("territory"), attacker)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleBattleResolve(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	b, err := s.factions.ResolveBattle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

type routeEstablishRequest struct {
	FactionA string `json:"faction_a"`
	FactionB string `json:"faction_b"`
}

func (s *Server) handleRouteEstablish(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	var req routeEstablishRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.FactionA == "" || req.FactionB == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "faction_a and faction_b are required"))
		return
	}

	route, err := s.factions.EstablishRoute(r.Context(), req.FactionA, req.FactionB)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, route)
}

type routeIDRequest struct {
	RouteID string `json:"route_id"`
}

func (s *Server) routeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req routeIDRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	if req.RouteID == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "route_id is required"))
		return "", false
	}
	return req.RouteID, true
}

func (s *Server) handleRouteExecute(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	id, ok := s.routeID(w, r)
	if !ok {
		return
	}
	outcome, err := s.factions.ExecuteRoute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleRouteDisrupt(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	id, ok := s.routeID(w, r)
	if !ok {
		return
	}
	route, err := s.factions.DisruptRoute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleRouteRestore(w http.ResponseWriter, r *http.Request) {
	if !s.requireFactions(w, r) {
		return
	}
	id, ok := s.routeID(w, r)
	if !ok {
		return
	}
	route, err := s.factions.RestoreRoute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}
