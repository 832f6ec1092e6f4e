package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/solmae/animus/internal/fault"
)

func (s *Server) handleWorldStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var scale float64
	if raw := q.Get("time_scale"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			s.writeError(w, r, fault.Errorf(fault.InvalidArgument, "time_scale %q must be a positive number", raw))
			return
		}
		scale = v
	}
	var interval time.Duration
	if raw := q.Get("tick_interval"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			s.writeError(w, r, fault.Errorf(fault.InvalidArgument, "tick_interval %q must be a positive number of seconds", raw))
			return
		}
		interval = time.Duration(secs) * time.Second
	}

	s.clock.SetPace(scale, interval)
	started := s.clock.Start()
	st := s.clock.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"started": started,
		"status":  st,
	})
}

func (s *Server) handleWorldStop(w http.ResponseWriter, r *http.Request) {
	// Stop blocks until any in-flight tick finishes, so events observed
	// after this returns all predate the stop.
	stopped := s.clock.Stop()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"stopped": stopped,
		"status":  s.clock.Status(),
	})
}

func (s *Server) handleWorldTick(w http.ResponseWriter, r *http.Request) {
	report, err := s.clock.Tick(r.Context(), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleWorldAdvance(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("hours")
	hours, err := strconv.ParseFloat(raw, 64)
	if err != nil || hours <= 0 {
		s.writeError(w, r, fault.Errorf(fault.InvalidArgument, "hours %q must be a positive number", raw))
		return
	}

	report, err := s.clock.Tick(r.Context(), hours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleWorldEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeError(w, r, fault.Errorf(fault.InvalidArgument, "limit %q must be a positive integer", raw))
			return
		}
		limit = v
	}

	events := s.events.Recent(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
		"time":   s.clock.Now(),
	})
}

func (s *Server) handleWorldStats(w http.ResponseWriter, r *http.Request) {
	st := s.clock.Status()
	stats := map[string]any{
		"uptime_seconds":  s.now().Sub(s.startedAt).Seconds(),
		"time":            st.Time,
		"running":         st.Running,
		"ticks":           st.Ticks,
		"census":          st.Census,
		"agents_resident": s.agents.Len(),
		"events_dropped":  s.events.Dropped(),
	}
	if s.agentCache != nil {
		stats["agent_cache"] = s.agentCache.Stats()
	}
	if s.queue != nil {
		stats["write_queue"] = map[string]any{
			"pending": s.queue.Pending(),
			"dropped": s.queue.Dropped(),
			"healthy": s.queue.Healthy(),
		}
	}
	if s.sessions != nil {
		stats["active_players"] = s.sessions.Count()
	}
	if s.conversations != nil {
		stats["conversations"] = s.conversations.Stats()
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWorldSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshotDir != "" {
		path := s.snapshotDir + "/animus-" + s.now().UTC().Format("20060102T150405Z") + ".snap.zst"
		snap, err := s.store.WriteSnapshotFile(r.Context(), path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"path":   path,
			"counts": snap.Counts(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="animus.snap.zst"`)
	if _, err := s.store.WriteSnapshot(r.Context(), w); err != nil {
		// Too late for an envelope once compressed bytes started flowing.
		s.log.Error("snapshot export failed mid-stream", "error", err)
	}
}

func (s *Server) handleWorldRestore(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.RestoreSnapshot(r.Context(), r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.agentCache != nil {
		s.agentCache.Clear()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"restored": true,
		"counts":   snap.Counts(),
	})
}
