package httpapi

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/solmae/animus/internal/fault"
)

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeJSON encodes v with the given status. Encoding failures are logged
// and abandoned; the status line has already gone out.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

// writeError maps err onto the taxonomy envelope. Errors without a kind
// surface as 500 with a generic message so internals never leak.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	if kind == "" {
		s.log.Error("unclassified error",
			"method", r.Method, "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: errorInfo{
			Kind:    "internal",
			Message: "internal error",
		}})
		return
	}
	status := kind.HTTPStatus()
	if status >= 500 {
		s.log.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
	} else {
		s.log.Debug("request rejected",
			"method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
	}
	s.writeJSON(w, status, errorEnvelope{Error: errorInfo{
		Kind:      string(kind),
		Message:   err.Error(),
		Retryable: kind.Retryable(),
	}})
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.InvalidArgument, "malformed request body", err)
	}
	return nil
}

// clientKey identifies the caller for rate limiting: the player id when the
// request names one, otherwise the remote host.
func clientKey(r *http.Request) string {
	if pid := r.URL.Query().Get("player_id"); pid != "" {
		return pid
	}
	if pid := r.Header.Get("X-Player-ID"); pid != "" {
		return pid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
