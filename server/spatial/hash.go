// Package spatial implements the uniform-grid spatial index entities are
// indexed by: a 2D grid on the XZ (ground) plane with a fixed cell size,
// used to drive collision resolution, area-of-interest classification, and
// zone-edge aura/migration decisions.
package spatial

import (
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// CellSize is the edge length, in fixed-point units, of a grid cell.
const CellSize = fixedpoint.Scale * 10 // 10 metres

// Cell identifies a grid cell by its integer (i, j) coordinates.
type Cell struct {
	I, J int32
}

// key packs a Cell into a single int64 so the hash's backing map uses a
// cheap primitive key on the hot insert/query path instead of hashing a
// two-field struct on every lookup.
func key(c Cell) int64 {
	return int64(uint32(c.I))<<32 | int64(uint32(c.J))
}

// CellOf returns the grid cell containing the fixed-point coordinates
// (x, z).
func CellOf(x, z fixedpoint.Scalar) Cell {
	return Cell{
		I: int32(floorDiv(int64(x), CellSize)),
		J: int32(floorDiv(int64(z), CellSize)),
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

type bucket struct {
	cell     Cell
	entities []ecs.Handle
}

// Hash is a uniform grid spatial index over entity handles. It is not safe
// for concurrent use: like every other component table, it is owned by the
// single tick goroutine.
type Hash struct {
	cells    map[int64]*bucket
	location map[ecs.Handle]Cell
}

// New creates an empty Hash.
func New() *Hash {
	return &Hash{
		cells:    make(map[int64]*bucket),
		location: make(map[ecs.Handle]Cell),
	}
}

// Insert adds e at the cell containing (x, z). Insert is idempotent: if e
// is already indexed at that cell, it is a no-op; if e is indexed elsewhere,
// it is moved.
func (h *Hash) Insert(e ecs.Handle, x, z fixedpoint.Scalar) {
	c := CellOf(x, z)
	if cur, ok := h.location[e]; ok {
		if cur == c {
			return
		}
		h.removeFrom(cur, e)
	}
	h.insertInto(c, e)
	h.location[e] = c
}

// Update moves e from its cell at (oldX, oldZ) to the cell containing
// (newX, newZ). It is a no-op if both positions fall in the same cell.
func (h *Hash) Update(e ecs.Handle, oldX, oldZ, newX, newZ fixedpoint.Scalar) {
	oldCell := CellOf(oldX, oldZ)
	newCell := CellOf(newX, newZ)
	if oldCell == newCell {
		return
	}
	h.removeFrom(oldCell, e)
	h.insertInto(newCell, e)
	h.location[e] = newCell
}

// Remove removes e from the index entirely.
func (h *Hash) Remove(e ecs.Handle) {
	c, ok := h.location[e]
	if !ok {
		return
	}
	h.removeFrom(c, e)
	delete(h.location, e)
}

// Clear empties every cell but retains the underlying map allocations.
func (h *Hash) Clear() {
	for k, b := range h.cells {
		b.entities = b.entities[:0]
		h.cells[k] = b
	}
	for e := range h.location {
		delete(h.location, e)
	}
}

// CellOfEntity returns the cell e is currently indexed at.
func (h *Hash) CellOfEntity(e ecs.Handle) (Cell, bool) {
	c, ok := h.location[e]
	return c, ok
}

func (h *Hash) insertInto(c Cell, e ecs.Handle) {
	k := key(c)
	b, ok := h.cells[k]
	if !ok {
		b = &bucket{cell: c}
		h.cells[k] = b
	}
	b.entities = append(b.entities, e)
}

func (h *Hash) removeFrom(c Cell, e ecs.Handle) {
	k := key(c)
	b, ok := h.cells[k]
	if !ok {
		return
	}
	for i, v := range b.entities {
		if v == e {
			b.entities[i] = b.entities[len(b.entities)-1]
			b.entities = b.entities[:len(b.entities)-1]
			break
		}
	}
}

// Query returns a copy-out slice of every entity handle in a cell
// overlapping the circle of radius r centred at (x, z). The result is a
// superset of the entities actually within the circle: callers must filter
// precisely against their own bounding volumes. Iterating or mutating the
// hash after Query returns never invalidates the returned slice.
func (h *Hash) Query(x, z, r fixedpoint.Scalar, out []ecs.Handle) []ecs.Handle {
	minCell := CellOf(x-r, z-r)
	maxCell := CellOf(x+r, z+r)
	for i := minCell.I; i <= maxCell.I; i++ {
		for j := minCell.J; j <= maxCell.J; j++ {
			b, ok := h.cells[key(Cell{I: i, J: j})]
			if !ok || len(b.entities) == 0 {
				continue
			}
			out = append(out, b.entities...)
		}
	}
	return out
}

// Len returns the number of entities currently indexed.
func (h *Hash) Len() int {
	return len(h.location)
}
