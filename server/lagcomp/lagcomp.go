// Package lagcomp implements the bounded per-entity position history used
// to validate hits under network delay: a ring of (tick, position, radius)
// snapshots, "rewound" to the tick an attack was actually aimed at. The
// ring-buffer-of-history idea is grounded on the teacher pack's
// other_examples/7c7aa721_opd-ai-violence__pkg-network-lagcomp.go
// LagCompensator, adapted from an interpolating snapshot list to an exact
// per-tick ring: this engine's tick rate is fixed (60 Hz), so a rewind
// returns the newest recorded snapshot at or before the requested tick,
// found by scanning the ring, with no interpolation between ticks.
package lagcomp

import (
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// Snapshot is one recorded position at a tick.
type Snapshot struct {
	Tick   int64
	Pos    fixedpoint.Vec3
	Radius fixedpoint.Scalar
}

// ring is a fixed-capacity circular buffer of Snapshots for one entity,
// ordered oldest-to-newest internally via a head index.
type ring struct {
	buf  []Snapshot
	head int // index of the oldest entry
	n    int // number of valid entries
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Snapshot, capacity)}
}

func (r *ring) push(s Snapshot) {
	cap := len(r.buf)
	if r.n < cap {
		r.buf[(r.head+r.n)%cap] = s
		r.n++
		return
	}
	// Full: overwrite the oldest slot and advance head, evicting it.
	r.buf[r.head] = s
	r.head = (r.head + 1) % cap
}

// at returns the snapshot with the largest Tick <= target, if any is held.
func (r *ring) at(target int64) (Snapshot, bool) {
	cap := len(r.buf)
	var best Snapshot
	found := false
	for i := 0; i < r.n; i++ {
		s := r.buf[(r.head+i)%cap]
		if s.Tick <= target && (!found || s.Tick > best.Tick) {
			best = s
			found = true
		}
	}
	return best, found
}

func (r *ring) newest() (Snapshot, bool) {
	if r.n == 0 {
		return Snapshot{}, false
	}
	return r.buf[(r.head+r.n-1)%len(r.buf)], true
}

// Compensator owns one ring per entity and enforces the MaxRewind window.
type Compensator struct {
	capacity  int
	maxRewind int64 // in ticks
	rings     map[ecs.Handle]*ring
}

// New creates a Compensator. capacity is the ring size in ticks (120 at
// 60 Hz covers the 2s LagCompensationHistory window); maxRewindTicks bounds
// how far back a rewind request may reach (30 ticks at 60 Hz = 500ms).
func New(capacity int, maxRewindTicks int64) *Compensator {
	return &Compensator{
		capacity:  capacity,
		maxRewind: maxRewindTicks,
		rings:     make(map[ecs.Handle]*ring),
	}
}

// Record appends a position snapshot for e at tick, evicting the oldest
// entry once the ring exceeds its capacity.
func (c *Compensator) Record(e ecs.Handle, tick int64, pos fixedpoint.Vec3, radius fixedpoint.Scalar) {
	r, ok := c.rings[e]
	if !ok {
		r = newRing(c.capacity)
		c.rings[e] = r
	}
	r.push(Snapshot{Tick: tick, Pos: pos, Radius: radius})
}

// Forget drops all history for e, called when an entity is destroyed or
// migrates away so the map doesn't grow unbounded across entity churn.
func (c *Compensator) Forget(e ecs.Handle) {
	delete(c.rings, e)
}

// Rewind returns the nearest older-or-equal snapshot of e at targetTick, as
// observed at currentTick. It refuses (returns false) if targetTick is
// further back than maxRewindTicks, or if e has no recorded history.
func (c *Compensator) Rewind(e ecs.Handle, targetTick, currentTick int64) (Snapshot, bool) {
	if currentTick-targetTick > c.maxRewind {
		return Snapshot{}, false
	}
	r, ok := c.rings[e]
	if !ok {
		return Snapshot{}, false
	}
	return r.at(targetTick)
}

// RewindAll returns a rewound snapshot for every entity in handles, omitting
// any whose history doesn't reach back to targetTick or is outside the
// rewind window.
func (c *Compensator) RewindAll(handles []ecs.Handle, targetTick, currentTick int64) map[ecs.Handle]Snapshot {
	out := make(map[ecs.Handle]Snapshot, len(handles))
	for _, e := range handles {
		if s, ok := c.Rewind(e, targetTick, currentTick); ok {
			out[e] = s
		}
	}
	return out
}

// Newest returns the most recently recorded snapshot for e.
func (c *Compensator) Newest(e ecs.Handle) (Snapshot, bool) {
	r, ok := c.rings[e]
	if !ok {
		return Snapshot{}, false
	}
	return r.newest()
}
