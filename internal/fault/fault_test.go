package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{AgentUnknown, http.StatusNotFound},
		{AgentUninitialized, http.StatusConflict},
		{OracleTimeout, http.StatusOK},
		{OracleMalformed, http.StatusOK},
		{StoreUnavailable, http.StatusServiceUnavailable},
		{InvalidArgument, http.StatusBadRequest},
		{GroupClosed, http.StatusGone},
		{RateLimited, http.StatusTooManyRequests},
		{Kind("made_up"), http.StatusInternalServerError},
		{Kind(""), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.kind.HTTPStatus(); got != tc.want {
			t.Errorf("%q status = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestKind_Known(t *testing.T) {
	if !StoreUnavailable.Known() {
		t.Error("expected StoreUnavailable in the taxonomy")
	}
	if Kind("made_up").Known() {
		t.Error("expected unknown kind to be unknown")
	}
}

func TestKind_Retryable(t *testing.T) {
	if !RateLimited.Retryable() {
		t.Error("expected RateLimited retryable")
	}
	if InvalidArgument.Retryable() {
		t.Error("expected InvalidArgument not retryable")
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: StoreUnavailable, Msg: "flush agents", Err: cause}, "store_unavailable: flush agents: disk full"},
		{&Error{Kind: AgentUnknown, Msg: "no such agent"}, "agent_unknown: no such agent"},
		{&Error{Kind: StoreUnavailable, Err: cause}, "store_unavailable: disk full"},
		{&Error{Kind: GroupClosed}, "group_closed"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := New(AgentUnknown, "no such agent")
	if got := KindOf(err); got != AgentUnknown {
		t.Errorf("KindOf = %q, want %q", got, AgentUnknown)
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if got := KindOf(wrapped); got != AgentUnknown {
		t.Errorf("KindOf through wrap = %q, want %q", got, AgentUnknown)
	}

	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf plain error = %q, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf nil = %q, want empty", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(StoreUnavailable, "put agent", nil) != nil {
		t.Error("expected nil for nil cause")
	}

	cause := errors.New("locked")
	err := Wrap(StoreUnavailable, "put agent", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause preserved in chain")
	}
	if !Is(err, StoreUnavailable) {
		t.Error("expected kind preserved")
	}
}

func TestIs(t *testing.T) {
	err := Errorf(RateLimited, "client %s over budget", "p1")
	if !Is(err, RateLimited) {
		t.Error("expected Is to match the kind")
	}
	if Is(err, AgentUnknown) {
		t.Error("expected Is to reject a different kind")
	}
}
