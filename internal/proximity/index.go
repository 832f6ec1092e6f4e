// Package proximity maintains a spatial index of agent positions for
// nearby-agent queries: gossip candidate selection, auto-filled group
// conversations, and the Nearby scheduling tier.
//
// Each zone is an independent coordinate namespace with its own uniform 3D
// grid. The cell edge equals the nearby radius, so a radius query inspects at
// most the 27 cells around the query point. Agents without positions are
// tracked by zone only; they never appear in spatial results but remain fully
// functional everywhere else in the simulation.
//
// All methods are safe for concurrent use.
package proximity

import (
	"math"
	"sort"
	"sync"

	"github.com/solmae/animus/pkg/types"
)

// DefaultRadius is the nearby threshold in world units. Agents within this
// distance of each other count as neighbours.
const DefaultRadius = 500.0

// cellKey addresses one grid cell inside a zone.
type cellKey struct {
	x, y, z int
}

// entry is the indexed location of one agent.
type entry struct {
	zone string
	pos  *types.Position
	cell cellKey
}

// zoneGrid is the uniform grid for a single zone. Placed agents live in
// cells; unplaced agents are tracked in the side set.
type zoneGrid struct {
	cells    map[cellKey]map[string]struct{}
	unplaced map[string]struct{}
}

func newZoneGrid() *zoneGrid {
	return &zoneGrid{
		cells:    make(map[cellKey]map[string]struct{}),
		unplaced: make(map[string]struct{}),
	}
}

func (g *zoneGrid) empty() bool {
	return len(g.cells) == 0 && len(g.unplaced) == 0
}

// Index is the process-wide spatial index. The zero value is not usable;
// construct with [New].
type Index struct {
	radius   float64
	cellEdge float64

	mu      sync.RWMutex
	zones   map[string]*zoneGrid
	entries map[string]entry
}

// Option configures an [Index].
type Option func(*Index)

// WithRadius overrides the nearby radius (and therefore the grid cell edge).
// Non-positive values keep [DefaultRadius].
func WithRadius(r float64) Option {
	return func(ix *Index) {
		if r > 0 {
			ix.radius = r
		}
	}
}

// New creates an empty [Index].
func New(opts ...Option) *Index {
	ix := &Index{
		radius:  DefaultRadius,
		zones:   make(map[string]*zoneGrid),
		entries: make(map[string]entry),
	}
	for _, o := range opts {
		o(ix)
	}
	ix.cellEdge = ix.radius
	return ix
}

// Radius returns the configured nearby radius.
func (ix *Index) Radius() float64 { return ix.radius }

// Upsert records or moves an agent. A nil position keeps the agent in the
// zone roster but outside all spatial queries.
func (ix *Index) Upsert(id string, loc types.Location) {
	if id == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(id)

	grid, ok := ix.zones[loc.Zone]
	if !ok {
		grid = newZoneGrid()
		ix.zones[loc.Zone] = grid
	}

	e := entry{zone: loc.Zone}
	if loc.Position == nil {
		grid.unplaced[id] = struct{}{}
	} else {
		p := *loc.Position
		e.pos = &p
		e.cell = ix.cellFor(p)
		cell, ok := grid.cells[e.cell]
		if !ok {
			cell = make(map[string]struct{})
			grid.cells[e.cell] = cell
		}
		cell[id] = struct{}{}
	}
	ix.entries[id] = e
}

// Remove drops an agent from the index. Unknown ids are a no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) removeLocked(id string) {
	e, ok := ix.entries[id]
	if !ok {
		return
	}
	delete(ix.entries, id)

	grid, ok := ix.zones[e.zone]
	if !ok {
		return
	}
	if e.pos == nil {
		delete(grid.unplaced, id)
	} else if cell, ok := grid.cells[e.cell]; ok {
		delete(cell, id)
		if len(cell) == 0 {
			delete(grid.cells, e.cell)
		}
	}
	if grid.empty() {
		delete(ix.zones, e.zone)
	}
}

// Location returns the indexed location for an agent and whether it is known.
func (ix *Index) Location(id string) (types.Location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.entries[id]
	if !ok {
		return types.Location{}, false
	}
	loc := types.Location{Zone: e.zone}
	if e.pos != nil {
		p := *e.pos
		loc.Position = &p
	}
	return loc, true
}

// Nearby returns the ids of all placed agents within the index radius of loc,
// sorted by ascending distance, excluding the agent named by exclude. A nil
// position yields no neighbours.
func (ix *Index) Nearby(loc types.Location, exclude string) []string {
	return ix.NearbyWithin(loc, ix.radius, exclude)
}

// NearbyWithin is [Index.Nearby] with an explicit radius. Radii above the
// cell edge fall back to scanning the whole zone; the grid is tuned for
// queries at or below the configured radius.
func (ix *Index) NearbyWithin(loc types.Location, radius float64, exclude string) []string {
	if loc.Position == nil || radius <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	grid, ok := ix.zones[loc.Zone]
	if !ok {
		return nil
	}

	type hit struct {
		id   string
		dist float64
	}
	var hits []hit

	origin := *loc.Position
	if radius <= ix.cellEdge {
		center := ix.cellFor(origin)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					key := cellKey{center.x + dx, center.y + dy, center.z + dz}
					for id := range grid.cells[key] {
						if id == exclude {
							continue
						}
						if e, ok := ix.entries[id]; ok && e.pos != nil {
							if d := origin.DistanceTo(*e.pos); d <= radius {
								hits = append(hits, hit{id: id, dist: d})
							}
						}
					}
				}
			}
		}
	} else {
		for _, cell := range grid.cells {
			for id := range cell {
				if id == exclude {
					continue
				}
				if e, ok := ix.entries[id]; ok && e.pos != nil {
					if d := origin.DistanceTo(*e.pos); d <= radius {
						hits = append(hits, hit{id: id, dist: d})
					}
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].id < hits[j].id
	})

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}

// NearbyAgent returns the neighbours of an indexed agent.
func (ix *Index) NearbyAgent(id string) []string {
	loc, ok := ix.Location(id)
	if !ok {
		return nil
	}
	return ix.Nearby(loc, id)
}

// InZone returns all agent ids registered in a zone, placed or not, sorted.
func (ix *Index) InZone(zone string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	grid, ok := ix.zones[zone]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(grid.unplaced))
	for id := range grid.unplaced {
		ids = append(ids, id)
	}
	for _, cell := range grid.cells {
		for id := range cell {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Zones returns the names of all zones with at least one agent, sorted.
func (ix *Index) Zones() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	zones := make([]string, 0, len(ix.zones))
	for z := range ix.zones {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	return zones
}

// Len returns the total number of indexed agents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *Index) cellFor(p types.Position) cellKey {
	return cellKey{
		x: int(math.Floor(p.X / ix.cellEdge)),
		y: int(math.Floor(p.Y / ix.cellEdge)),
		z: int(math.Floor(p.Z / ix.cellEdge)),
	}
}
