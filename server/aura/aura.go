// Package aura decides which entities near a zone's border should be
// projected as read-only shadows into the neighbouring zone that shares
// that border, and tracks which projections are currently active so the
// caller can emit begin/end events exactly once per crossing rather than
// resending the same projection every tick. An entity within the aura
// buffer of more than one edge (a corner) projects into every adjacent
// zone that touches it. Projected entities are ordinary AOI/snapshot
// participants on the neighbour side once entered — nothing here treats
// them specially past the point of producing the target zone list, the
// same "attach generic component state to an aura-specific entity" split
// the teacher keeps between a world's general entity handling and a
// handler for one viewer-specific concern like entity.go vs a session
// handler.
package aura

import (
	"github.com/riftzone/zoneserver/server/components"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// Edge identifies one of the four borders of a zone's rectangular bounds.
type Edge uint8

const (
	EdgeMinX Edge = iota
	EdgeMaxX
	EdgeMinZ
	EdgeMaxZ
)

// Bounds is the axis-aligned horizontal extent of a zone.
type Bounds struct {
	MinX, MaxX fixedpoint.Scalar
	MinZ, MaxZ fixedpoint.Scalar
}

// DefaultBufferMeters reproduces the specification's binding aura buffer
// distance.
func DefaultBufferMeters() fixedpoint.Scalar {
	return fixedpoint.FromFloat64(50)
}

// Projector computes, for a single position, which edges it falls within
// the aura buffer of.
type Projector struct {
	Bounds Bounds
	Buffer fixedpoint.Scalar
}

// New creates a Projector for a zone's bounds and buffer distance.
func New(bounds Bounds, buffer fixedpoint.Scalar) *Projector {
	return &Projector{Bounds: bounds, Buffer: buffer}
}

// Edges returns every edge pos is within the buffer distance of. An entity
// may be near zero, one, or two edges (a corner) at once.
func (p *Projector) Edges(pos fixedpoint.Vec3) []Edge {
	var edges []Edge
	if pos.X-p.Bounds.MinX <= p.Buffer {
		edges = append(edges, EdgeMinX)
	}
	if p.Bounds.MaxX-pos.X <= p.Buffer {
		edges = append(edges, EdgeMaxX)
	}
	if pos.Z-p.Bounds.MinZ <= p.Buffer {
		edges = append(edges, EdgeMinZ)
	}
	if p.Bounds.MaxZ-pos.Z <= p.Buffer {
		edges = append(edges, EdgeMaxZ)
	}
	return edges
}

// Targets returns the neighbour zones pos should be projected into, given a
// topology mapping edges to the zone across that border. Edges with no
// configured neighbour (a zone boundary on the map's outer edge) are
// skipped.
func (p *Projector) Targets(pos fixedpoint.Vec3, topology map[Edge]components.ZoneID) []components.ZoneID {
	var out []components.ZoneID
	for _, e := range p.Edges(pos) {
		if zid, ok := topology[e]; ok {
			out = append(out, zid)
		}
	}
	return out
}

type pairKey struct {
	Entity ecs.Handle
	Zone   components.ZoneID
}

// Tracker remembers which (entity, neighbour zone) projections are
// currently active, so Update can report only the transitions since the
// last call.
type Tracker struct {
	active map[pairKey]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[pairKey]struct{})}
}

// Update reconciles entity's current target zone set against what was
// active before, returning the zones a projection should begin in and the
// zones an existing projection should end in.
func (t *Tracker) Update(entity ecs.Handle, targets []components.ZoneID) (began, ended []components.ZoneID) {
	wanted := make(map[components.ZoneID]struct{}, len(targets))
	for _, z := range targets {
		wanted[z] = struct{}{}
		key := pairKey{entity, z}
		if _, ok := t.active[key]; !ok {
			t.active[key] = struct{}{}
			began = append(began, z)
		}
	}
	for key := range t.active {
		if key.Entity != entity {
			continue
		}
		if _, ok := wanted[key.Zone]; !ok {
			delete(t.active, key)
			ended = append(ended, key.Zone)
		}
	}
	return began, ended
}

// Forget ends every active projection for entity, called when it migrates
// away or is destroyed, returning the zones that must be told to drop their
// shadow copy.
func (t *Tracker) Forget(entity ecs.Handle) []components.ZoneID {
	var ended []components.ZoneID
	for key := range t.active {
		if key.Entity == entity {
			delete(t.active, key)
			ended = append(ended, key.Zone)
		}
	}
	return ended
}
