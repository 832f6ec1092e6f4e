// Package mock provides an in-memory test double for the memory.Store
// interface.
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what each method returns. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{}
//	store.QueryMemoriesResult = []types.Memory{{ID: "m1", Strength: 0.8}}
//
//	// inject store into the engine under test …
//
//	if got := store.CallCount("QueryMemories"); got != 1 {
//	    t.Errorf("expected 1 QueryMemories call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/solmae/animus/pkg/memory"
	"github.com/solmae/animus/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [memory.Store]. All *Err fields
// default to nil (success); all *Result fields default to their zero value.
type Store struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// Inserted accumulates every memory passed to InsertMemory.
	Inserted []types.Memory

	// Updated accumulates every memory passed to UpdateMemory.
	Updated []types.Memory

	// InsertedRumors accumulates every rumor passed to InsertRumor.
	InsertedRumors []types.Rumor

	// UpdatedRumors accumulates every rumor passed to UpdateRumor.
	UpdatedRumors []types.Rumor

	// InsertMemoryErr is returned by InsertMemory when non-nil.
	InsertMemoryErr error

	// UpdateMemoryErr is returned by UpdateMemory when non-nil.
	UpdateMemoryErr error

	// QueryMemoriesResult is returned by QueryMemories.
	QueryMemoriesResult []types.Memory

	// QueryMemoriesFunc, when non-nil, overrides QueryMemoriesResult.
	QueryMemoriesFunc func(owner string, params memory.RetrieveParams) ([]types.Memory, error)

	// QueryMemoriesErr is returned by QueryMemories when non-nil.
	QueryMemoriesErr error

	// HasSecondhandResult is returned by HasSecondhand.
	HasSecondhandResult bool

	// HasSecondhandFunc, when non-nil, overrides HasSecondhandResult.
	HasSecondhandFunc func(owner, sourceMemoryID string) (bool, error)

	// HasSecondhandErr is returned by HasSecondhand when non-nil.
	HasSecondhandErr error

	// DecayMemoriesResult is returned by DecayMemories.
	DecayMemoriesResult int64

	// DecayMemoriesErr is returned by DecayMemories when non-nil.
	DecayMemoriesErr error

	// DeleteMemoriesBelowResult is returned by DeleteMemoriesBelow.
	DeleteMemoriesBelowResult int64

	// DeleteMemoriesBelowErr is returned by DeleteMemoriesBelow when non-nil.
	DeleteMemoriesBelowErr error

	// InsertRumorErr is returned by InsertRumor when non-nil.
	InsertRumorErr error

	// UpdateRumorErr is returned by UpdateRumor when non-nil.
	UpdateRumorErr error

	// RumorsAboutResult is returned by RumorsAbout.
	RumorsAboutResult []types.Rumor

	// RumorsAboutErr is returned by RumorsAbout when non-nil.
	RumorsAboutErr error

	// DecayRumorsResult is returned by DecayRumors.
	DecayRumorsResult int64

	// DecayRumorsErr is returned by DecayRumors when non-nil.
	DecayRumorsErr error

	// DeleteRumorsBelowResult is returned by DeleteRumorsBelow.
	DeleteRumorsBelowResult int64

	// DeleteRumorsBelowErr is returned by DeleteRumorsBelow when non-nil.
	DeleteRumorsBelowErr error
}

// record appends a call entry under lock.
func (s *Store) record(method string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// InsertMemory records the call and the inserted memory.
func (s *Store) InsertMemory(_ context.Context, m types.Memory) error {
	s.record("InsertMemory", m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertMemoryErr != nil {
		return s.InsertMemoryErr
	}
	s.Inserted = append(s.Inserted, m)
	return nil
}

// UpdateMemory records the call and the updated memory.
func (s *Store) UpdateMemory(_ context.Context, m types.Memory) error {
	s.record("UpdateMemory", m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateMemoryErr != nil {
		return s.UpdateMemoryErr
	}
	s.Updated = append(s.Updated, m)
	return nil
}

// QueryMemories records the call and returns the configured result.
func (s *Store) QueryMemories(_ context.Context, owner string, params memory.RetrieveParams) ([]types.Memory, error) {
	s.record("QueryMemories", owner, params)
	s.mu.Lock()
	fn := s.QueryMemoriesFunc
	result := s.QueryMemoriesResult
	err := s.QueryMemoriesErr
	s.mu.Unlock()

	if fn != nil {
		return fn(owner, params)
	}
	if err != nil {
		return nil, err
	}
	out := make([]types.Memory, len(result))
	copy(out, result)
	return out, nil
}

// HasSecondhand records the call and returns the configured result.
func (s *Store) HasSecondhand(_ context.Context, owner, sourceMemoryID string) (bool, error) {
	s.record("HasSecondhand", owner, sourceMemoryID)
	s.mu.Lock()
	fn := s.HasSecondhandFunc
	result := s.HasSecondhandResult
	err := s.HasSecondhandErr
	s.mu.Unlock()

	if fn != nil {
		return fn(owner, sourceMemoryID)
	}
	return result, err
}

// DecayMemories records the call and returns the configured count.
func (s *Store) DecayMemories(_ context.Context, deltaHours, lambda float64) (int64, error) {
	s.record("DecayMemories", deltaHours, lambda)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DecayMemoriesResult, s.DecayMemoriesErr
}

// DeleteMemoriesBelow records the call and returns the configured count.
func (s *Store) DeleteMemoriesBelow(_ context.Context, threshold float64) (int64, error) {
	s.record("DeleteMemoriesBelow", threshold)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeleteMemoriesBelowResult, s.DeleteMemoriesBelowErr
}

// InsertRumor records the call and the inserted rumor.
func (s *Store) InsertRumor(_ context.Context, r types.Rumor) error {
	s.record("InsertRumor", r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertRumorErr != nil {
		return s.InsertRumorErr
	}
	s.InsertedRumors = append(s.InsertedRumors, r)
	return nil
}

// UpdateRumor records the call and the updated rumor.
func (s *Store) UpdateRumor(_ context.Context, r types.Rumor) error {
	s.record("UpdateRumor", r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateRumorErr != nil {
		return s.UpdateRumorErr
	}
	s.UpdatedRumors = append(s.UpdatedRumors, r)
	return nil
}

// RumorsAbout records the call and returns the configured result.
func (s *Store) RumorsAbout(_ context.Context, about string, limit int) ([]types.Rumor, error) {
	s.record("RumorsAbout", about, limit)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RumorsAboutErr != nil {
		return nil, s.RumorsAboutErr
	}
	out := make([]types.Rumor, len(s.RumorsAboutResult))
	copy(out, s.RumorsAboutResult)
	return out, nil
}

// DecayRumors records the call and returns the configured count.
func (s *Store) DecayRumors(_ context.Context, deltaHours, lambda float64) (int64, error) {
	s.record("DecayRumors", deltaHours, lambda)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DecayRumorsResult, s.DecayRumorsErr
}

// DeleteRumorsBelow records the call and returns the configured count.
func (s *Store) DeleteRumorsBelow(_ context.Context, threshold float64) (int64, error) {
	s.record("DeleteRumorsBelow", threshold)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeleteRumorsBelowResult, s.DeleteRumorsBelowErr
}

// CallCount returns how many times the named method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Calls returns a copy of all recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Reset clears all recorded calls and accumulated rows. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.Inserted = nil
	s.Updated = nil
	s.InsertedRumors = nil
	s.UpdatedRumors = nil
}

// Ensure Store implements memory.Store at compile time.
var _ memory.Store = (*Store)(nil)
