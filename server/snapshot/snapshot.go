// Package snapshot builds the delta-compressed per-connection state update
// sent to clients every snapshot tick. Each connection's last ACKed state is
// cached as a baseline; only entities that changed since that baseline are
// written, and only the fields that changed within them, using a per-field
// bitmask the way the teacher's chunk encoder only serializes sub-chunks
// that changed since a viewer's last request. Output buffers are drawn from
// a sync.Pool, the same scratch-buffer reuse pattern as the teacher's
// blockBBoxPool, since a snapshot is built fresh for every connection on
// every snapshot tick and garbage here would show up directly in GC pause
// time under load.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"

	"github.com/riftzone/zoneserver/server/components"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// Record kinds, written as a single leading byte per entity entry.
const (
	recNewEntity byte = 1
	recUpdate    byte = 2
	recRemoved   byte = 3
	recEnd       byte = 0
)

// Changed-field bits for recUpdate entries.
const (
	bitPosition byte = 1 << iota
	bitRotation
	bitVelocity
	bitHP
	bitFlags
)

// Position delta axis bits, written as a prefix byte ahead of the varint
// deltas for whichever axes actually changed.
const (
	axisX byte = 1 << iota
	axisY
	axisZ
)

// EntitySnapshot is one entity's current full state, as gathered by the
// caller from the component tables for a given connection's AOI set.
type EntitySnapshot struct {
	Handle     ecs.Handle
	Pos        fixedpoint.Vec3
	Rot        components.Rotation
	Vel        fixedpoint.Vec3
	HP         int32
	MaxHP      int32
	Flags      uint8
	EntityType components.EntityType
}

// entityBaseline is the subset of EntitySnapshot worth diffing against; it
// is what a Cache actually retains per entity per tick.
type entityBaseline struct {
	Pos   fixedpoint.Vec3
	Rot   components.Rotation
	Vel   fixedpoint.Vec3
	HP    int32
	Flags uint8
}

// Baseline is the full entity state a connection is known to hold, as of
// some tick.
type Baseline struct {
	Tick     int64
	Entities map[ecs.Handle]entityBaseline
}

func newBaselineFrom(tick int64, entities []EntitySnapshot) *Baseline {
	b := &Baseline{Tick: tick, Entities: make(map[ecs.Handle]entityBaseline, len(entities))}
	for _, e := range entities {
		b.Entities[e.Handle] = entityBaseline{Pos: e.Pos, Rot: e.Rot, Vel: e.Vel, HP: e.HP, Flags: e.Flags}
	}
	return b
}

// Cache retains a bounded history of baselines sent to one connection, so a
// delta can be built against whichever tick the client most recently
// acknowledged rather than only the single most recent send.
type Cache struct {
	capacity int
	history  map[int64]*Baseline
	order    []int64
	acked    int64 // -1 means nothing acknowledged yet; build a full snapshot
}

// NewCache creates a Cache retaining up to capacity historical baselines.
func NewCache(capacity int) *Cache {
	return &Cache{capacity: capacity, history: make(map[int64]*Baseline), acked: -1}
}

// Store records a newly built baseline for tick, evicting the oldest
// retained baseline once over capacity.
func (c *Cache) Store(tick int64, b *Baseline) {
	c.history[tick] = b
	c.order = append(c.order, tick)
	for len(c.order) > c.capacity {
		old := c.order[0]
		c.order = c.order[1:]
		delete(c.history, old)
	}
}

// Ack records that the client has confirmed receipt of the snapshot sent at
// tick; future deltas are built against that baseline until a later ack
// supersedes it, and every retained baseline older than tick is dropped.
// Acking a tick not present in history (evicted, or never sent) clears the
// acked baseline, forcing the next build to fall back to a full snapshot.
func (c *Cache) Ack(tick int64) {
	if _, ok := c.history[tick]; !ok {
		c.acked = -1
		return
	}
	c.acked = tick
	kept := c.order[:0]
	for _, t := range c.order {
		if t < tick {
			delete(c.history, t)
			continue
		}
		kept = append(kept, t)
	}
	c.order = kept
}

// Baseline returns the currently ACKed baseline, if any.
func (c *Cache) Baseline() (*Baseline, bool) {
	if c.acked < 0 {
		return nil, false
	}
	b, ok := c.history[c.acked]
	return b, ok
}

// Builder produces delta-compressed snapshot payloads, reusing output
// buffers across calls via a sync.Pool.
type Builder struct {
	pool sync.Pool
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{pool: sync.Pool{New: func() any { return new(bytes.Buffer) }}}
}

// Build serializes the delta between cache's currently ACKed baseline (or a
// full snapshot, if none is acked yet) and current, then stores current as
// this tick's baseline in cache. The returned byte slice is owned by the
// caller; it is copied out of the pooled scratch buffer before return.
func (b *Builder) Build(cache *Cache, tick int64, current []EntitySnapshot) []byte {
	buf := b.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer b.pool.Put(buf)

	base, hasBase := cache.Baseline()

	writeVarint(buf, tick)
	if hasBase {
		writeVarint(buf, base.Tick)
	} else {
		writeVarint(buf, -1)
	}

	seen := make(map[ecs.Handle]struct{}, len(current))
	for _, e := range current {
		seen[e.Handle] = struct{}{}
		if !hasBase {
			writeNewEntity(buf, e)
			continue
		}
		prev, existed := base.Entities[e.Handle]
		if !existed {
			writeNewEntity(buf, e)
			continue
		}
		writeUpdate(buf, e, prev)
	}

	if hasBase {
		for h := range base.Entities {
			if _, ok := seen[h]; !ok {
				buf.WriteByte(recRemoved)
				writeVarint(buf, int64(h))
			}
		}
	}
	buf.WriteByte(recEnd)

	cache.Store(tick, newBaselineFrom(tick, current))

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func writeNewEntity(buf *bytes.Buffer, e EntitySnapshot) {
	buf.WriteByte(recNewEntity)
	writeVarint(buf, int64(e.Handle))
	buf.WriteByte(byte(e.EntityType))
	writeVec3(buf, e.Pos)
	writeFloat32(buf, e.Rot.Yaw)
	writeFloat32(buf, e.Rot.Pitch)
	writeVec3(buf, e.Vel)
	writeVarint(buf, int64(e.HP))
	writeVarint(buf, int64(e.MaxHP))
	buf.WriteByte(e.Flags)
}

func writeUpdate(buf *bytes.Buffer, e EntitySnapshot, prev entityBaseline) {
	var mask byte
	if e.Pos != prev.Pos {
		mask |= bitPosition
	}
	if e.Rot != prev.Rot {
		mask |= bitRotation
	}
	if e.Vel != prev.Vel {
		mask |= bitVelocity
	}
	if e.HP != prev.HP {
		mask |= bitHP
	}
	if e.Flags != prev.Flags {
		mask |= bitFlags
	}
	if mask == 0 {
		return
	}

	buf.WriteByte(recUpdate)
	writeVarint(buf, int64(e.Handle))
	buf.WriteByte(mask)

	if mask&bitPosition != 0 {
		writePositionDelta(buf, prev.Pos, e.Pos)
	}
	if mask&bitRotation != 0 {
		writeFloat32(buf, e.Rot.Yaw)
		writeFloat32(buf, e.Rot.Pitch)
	}
	if mask&bitVelocity != 0 {
		writeVec3(buf, e.Vel)
	}
	if mask&bitHP != 0 {
		writeVarint(buf, int64(e.HP))
	}
	if mask&bitFlags != 0 {
		buf.WriteByte(e.Flags)
	}
}

// writePositionDelta writes a 1-byte axis-changed prefix followed by a
// zigzag varint delta for each axis that actually moved, so a player
// standing still on Y costs nothing beyond the prefix byte.
func writePositionDelta(buf *bytes.Buffer, prev, next fixedpoint.Vec3) {
	var axes byte
	if next.X != prev.X {
		axes |= axisX
	}
	if next.Y != prev.Y {
		axes |= axisY
	}
	if next.Z != prev.Z {
		axes |= axisZ
	}
	buf.WriteByte(axes)
	if axes&axisX != 0 {
		writeVarint(buf, int64(next.X-prev.X))
	}
	if axes&axisY != 0 {
		writeVarint(buf, int64(next.Y-prev.Y))
	}
	if axes&axisZ != 0 {
		writeVarint(buf, int64(next.Z-prev.Z))
	}
}

func writeVec3(buf *bytes.Buffer, v fixedpoint.Vec3) {
	writeVarint(buf, int64(v.X))
	writeVarint(buf, int64(v.Y))
	writeVarint(buf, int64(v.Z))
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeFloat32(buf *bytes.Buffer, f float32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(f))
	buf.Write(tmp[:])
}
