// Package fault defines the error taxonomy shared by every component.
//
// Each error carries a [Kind] that fixes how the boundary surfaces it: the
// HTTP status, whether the client may retry, and whether the failure is
// swallowed into a fallback instead of surfacing at all. Components wrap
// causes with [Wrap] and callers branch with [KindOf] or [Is] rather than
// string matching.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names one failure class from the error taxonomy.
type Kind string

const (
	// AgentUnknown is any operation addressing an agent id that does not exist.
	AgentUnknown Kind = "agent_unknown"

	// AgentUninitialized is an interaction with an agent that exists but has
	// not completed initialisation.
	AgentUninitialized Kind = "agent_uninitialized"

	// OracleTimeout is a cognition call that exceeded its deadline. Never
	// surfaced to players; the brain substitutes a fallback frame.
	OracleTimeout Kind = "oracle_timeout"

	// OracleMalformed is a cognition reply that failed schema validation
	// after repair. Handled like OracleTimeout.
	OracleMalformed Kind = "oracle_malformed"

	// StoreUnavailable is a persistence failure that survived the retry
	// budget. Writes queue; reads degrade to cache.
	StoreUnavailable Kind = "store_unavailable"

	// TierBudgetExceeded reports a tick that overran its advisory work
	// budget. Internal metric only, never a caller-facing error.
	TierBudgetExceeded Kind = "tier_budget_exceeded"

	// InvalidArgument is a request that failed validation.
	InvalidArgument Kind = "invalid_argument"

	// GroupClosed is an operation on a conversation group that has ended.
	GroupClosed Kind = "group_closed"

	// RateLimited is a client exceeding its interactive request budget.
	RateLimited Kind = "rate_limited"
)

// kindInfo is the per-kind surfacing contract.
type kindInfo struct {
	status    int
	retryable bool
}

// knownKinds maps every kind to its HTTP status and retry hint. Kinds
// missing from this table surface as 500.
var knownKinds = map[Kind]kindInfo{
	AgentUnknown:       {status: http.StatusNotFound},
	AgentUninitialized: {status: http.StatusConflict, retryable: true},
	OracleTimeout:      {status: http.StatusOK, retryable: true},
	OracleMalformed:    {status: http.StatusOK},
	StoreUnavailable:   {status: http.StatusServiceUnavailable, retryable: true},
	TierBudgetExceeded: {status: http.StatusOK},
	InvalidArgument:    {status: http.StatusBadRequest},
	GroupClosed:        {status: http.StatusGone},
	RateLimited:        {status: http.StatusTooManyRequests, retryable: true},
}

// Known reports whether k appears in the taxonomy table.
func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// HTTPStatus returns the status code the boundary uses for this kind.
// Unknown kinds map to 500.
func (k Kind) HTTPStatus() int {
	if info, ok := knownKinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether a client may usefully retry this kind.
func (k Kind) Retryable() bool {
	return knownKinds[k].retryable
}

// Error is a kinded error. The zero Kind means "unclassified"; such errors
// surface as 500.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error renders "kind: msg: cause", omitting empty parts.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kinded error with a static message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates a kinded error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
