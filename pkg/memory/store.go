// Package memory implements the agent memory engine: categorized memories
// that decay over simulated time, reinforce on reference, and spread between
// agents as trust-discounted secondhand knowledge. Rumors ride the same decay
// mathematics with a spread set recording which agents have heard them.
//
// The mechanics, in brief:
//
//   - Decay: each sweep multiplies strength by exp(−λ·Δh·(1−w)), where w is
//     the memory's emotional weight. Heavy memories (secrets, crimes, family)
//     fade far slower than trivia.
//   - Visibility: strength below 0.05 hides a memory from retrieval; below
//     0.01 the next sweep deletes it.
//   - Reinforcement: referencing a memory bumps strength by α·(1−s) and
//     records the reference.
//   - Sharing: an agent passes its strongest memories about a subject to an
//     acquaintance; the copy arrives at strength src·trust·0.7, never
//     exceeding the source, and keeps provenance of who told whom.
//
// The engine is persistence-agnostic: it drives a [Store] implementation
// (the sqlite-backed store in production, a hand-written mock in tests).
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"

	"github.com/solmae/animus/pkg/types"
)

// Store is the persistence contract the memory engine requires.
//
// Bulk operations (DecayMemories, DeleteMemoriesBelow and their rumor
// counterparts) are expected to run as single indexed statements rather than
// row-at-a-time loops; sweeps touch every live memory in the world.
type Store interface {
	// InsertMemory persists a new memory row.
	InsertMemory(ctx context.Context, m types.Memory) error

	// UpdateMemory rewrites the mutable fields (strength, refCount,
	// lastReferencedAt) of an existing memory.
	UpdateMemory(ctx context.Context, m types.Memory) error

	// QueryMemories returns the owner's memories matching params, ordered by
	// descending strength·(1 + 0.5·emotionalWeight). Rows below
	// params.MinStrength are excluded.
	QueryMemories(ctx context.Context, owner string, params RetrieveParams) ([]types.Memory, error)

	// HasSecondhand reports whether owner already holds a memory shared from
	// the given source memory id.
	HasSecondhand(ctx context.Context, owner, sourceMemoryID string) (bool, error)

	// DecayMemories applies the decay factor exp(−λ·Δh·(1−w)) to every
	// memory in one statement and returns the number of rows touched.
	DecayMemories(ctx context.Context, deltaHours, lambda float64) (int64, error)

	// DeleteMemoriesBelow removes memories whose strength has fallen under
	// threshold and returns the number deleted.
	DeleteMemoriesBelow(ctx context.Context, threshold float64) (int64, error)

	// InsertRumor persists a new rumor.
	InsertRumor(ctx context.Context, r types.Rumor) error

	// UpdateRumor rewrites a rumor's strength and spread set.
	UpdateRumor(ctx context.Context, r types.Rumor) error

	// RumorsAbout returns rumors concerning the given subject, strongest
	// first, capped at limit.
	RumorsAbout(ctx context.Context, about string, limit int) ([]types.Rumor, error)

	// DecayRumors applies the memory decay factor to every rumor, using a
	// fixed emotional weight of zero (rumors carry no weight column).
	DecayRumors(ctx context.Context, deltaHours, lambda float64) (int64, error)

	// DeleteRumorsBelow removes rumors whose strength has fallen under
	// threshold and returns the number deleted.
	DeleteRumorsBelow(ctx context.Context, threshold float64) (int64, error)
}
