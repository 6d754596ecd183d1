package snapshot

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

func handle(i uint32) ecs.Handle { return ecs.NewHandle(i, 0) }

// decoded mirrors enough of the wire shape to assert on in tests without a
// separate decoder package.
type decoded struct {
	tick         int64
	baselineTick int64
	newEntities  []ecs.Handle
	updated      map[ecs.Handle]byte // handle -> changed-field mask
	removed      []ecs.Handle
}

func decode(t *testing.T, data []byte) decoded {
	t.Helper()
	r := bytes.NewReader(data)
	d := decoded{updated: make(map[ecs.Handle]byte)}
	d.tick = readVarint(t, r)
	d.baselineTick = readVarint(t, r)

	for {
		kind, err := r.ReadByte()
		if err != nil {
			t.Fatalf("unexpected EOF reading record kind: %v", err)
		}
		switch kind {
		case recEnd:
			return d
		case recNewEntity:
			h := ecs.Handle(readVarint(t, r))
			d.newEntities = append(d.newEntities, h)
			skipNewEntityBody(t, r)
		case recUpdate:
			h := ecs.Handle(readVarint(t, r))
			mask, _ := r.ReadByte()
			d.updated[h] = mask
			skipUpdateBody(t, r, mask)
		case recRemoved:
			h := ecs.Handle(readVarint(t, r))
			d.removed = append(d.removed, h)
		default:
			t.Fatalf("unknown record kind %d", kind)
		}
	}
}

func readVarint(t *testing.T, r *bytes.Reader) int64 {
	t.Helper()
	v, err := binary.ReadVarint(r)
	if err != nil {
		t.Fatalf("readVarint: %v", err)
	}
	return v
}

func skipFloat32(t *testing.T, r *bytes.Reader) {
	t.Helper()
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		t.Fatalf("skipFloat32: %v", err)
	}
}

func skipNewEntityBody(t *testing.T, r *bytes.Reader) {
	t.Helper()
	r.ReadByte() // entity type
	readVarint(t, r)
	readVarint(t, r)
	readVarint(t, r) // pos
	skipFloat32(t, r)
	skipFloat32(t, r) // rotation
	readVarint(t, r)
	readVarint(t, r)
	readVarint(t, r) // velocity
	readVarint(t, r) // hp
	readVarint(t, r) // maxhp
	r.ReadByte()      // flags
}

func skipUpdateBody(t *testing.T, r *bytes.Reader, mask byte) {
	t.Helper()
	if mask&bitPosition != 0 {
		axes, _ := r.ReadByte()
		if axes&axisX != 0 {
			readVarint(t, r)
		}
		if axes&axisY != 0 {
			readVarint(t, r)
		}
		if axes&axisZ != 0 {
			readVarint(t, r)
		}
	}
	if mask&bitRotation != 0 {
		skipFloat32(t, r)
		skipFloat32(t, r)
	}
	if mask&bitVelocity != 0 {
		readVarint(t, r)
		readVarint(t, r)
		readVarint(t, r)
	}
	if mask&bitHP != 0 {
		readVarint(t, r)
	}
	if mask&bitFlags != 0 {
		r.ReadByte()
	}
}

func TestBuildFirstSnapshotIsFull(t *testing.T) {
	b := NewBuilder()
	cache := NewCache(64)
	entities := []EntitySnapshot{
		{Handle: handle(1), Pos: fixedpoint.Vec3FromFloat64(1, 0, 0), HP: 100, MaxHP: 100},
	}
	out := b.Build(cache, 0, entities)
	d := decode(t, out)
	if d.baselineTick != -1 {
		t.Fatalf("expected no baseline on first build, got %d", d.baselineTick)
	}
	if len(d.newEntities) != 1 || d.newEntities[0] != handle(1) {
		t.Fatalf("expected entity 1 as a new entity, got %+v", d.newEntities)
	}
}

func TestBuildAfterAckOnlySendsChangedFields(t *testing.T) {
	b := NewBuilder()
	cache := NewCache(64)
	e := EntitySnapshot{Handle: handle(1), Pos: fixedpoint.Vec3FromFloat64(1, 0, 0), HP: 100, MaxHP: 100}
	b.Build(cache, 0, []EntitySnapshot{e})
	cache.Ack(0)

	e.HP = 90 // only HP changed
	out := b.Build(cache, 1, []EntitySnapshot{e})
	d := decode(t, out)
	if d.baselineTick != 0 {
		t.Fatalf("expected delta against tick 0, got %d", d.baselineTick)
	}
	mask, ok := d.updated[handle(1)]
	if !ok {
		t.Fatalf("expected an update record for entity 1")
	}
	if mask != bitHP {
		t.Fatalf("expected only bitHP set, got mask %08b", mask)
	}
}

func TestBuildWithNoChangesOmitsEntity(t *testing.T) {
	b := NewBuilder()
	cache := NewCache(64)
	e := EntitySnapshot{Handle: handle(1), Pos: fixedpoint.Vec3FromFloat64(1, 0, 0)}
	b.Build(cache, 0, []EntitySnapshot{e})
	cache.Ack(0)

	out := b.Build(cache, 1, []EntitySnapshot{e})
	d := decode(t, out)
	if len(d.updated) != 0 || len(d.newEntities) != 0 {
		t.Fatalf("expected no records for an unchanged entity, got updated=%v new=%v", d.updated, d.newEntities)
	}
}

func TestBuildEmitsRemovedForDroppedEntity(t *testing.T) {
	b := NewBuilder()
	cache := NewCache(64)
	e1 := EntitySnapshot{Handle: handle(1)}
	e2 := EntitySnapshot{Handle: handle(2)}
	b.Build(cache, 0, []EntitySnapshot{e1, e2})
	cache.Ack(0)

	out := b.Build(cache, 1, []EntitySnapshot{e1})
	d := decode(t, out)
	if len(d.removed) != 1 || d.removed[0] != handle(2) {
		t.Fatalf("expected entity 2 reported removed, got %+v", d.removed)
	}
}

func TestAckingEvictedTickFallsBackToFull(t *testing.T) {
	b := NewBuilder()
	cache := NewCache(2)
	e := EntitySnapshot{Handle: handle(1)}
	b.Build(cache, 0, []EntitySnapshot{e})
	cache.Ack(0)
	b.Build(cache, 1, []EntitySnapshot{e})
	b.Build(cache, 2, []EntitySnapshot{e}) // evicts tick 0

	// Client is still (incorrectly, or late) acking the now-evicted tick 0.
	cache.Ack(0)
	out := b.Build(cache, 3, []EntitySnapshot{e})
	d := decode(t, out)
	if d.baselineTick != -1 {
		t.Fatalf("expected fallback to full snapshot, got baseline tick %d", d.baselineTick)
	}
}

func TestPositionOnlyChangeSetsOnlyPositionBit(t *testing.T) {
	b := NewBuilder()
	cache := NewCache(64)
	e := EntitySnapshot{Handle: handle(1), Pos: fixedpoint.Vec3FromFloat64(0, 5, 0)}
	b.Build(cache, 0, []EntitySnapshot{e})
	cache.Ack(0)

	e.Pos.Z = fixedpoint.FromFloat64(3) // only Z moved
	out := b.Build(cache, 1, []EntitySnapshot{e})
	d := decode(t, out)
	mask := d.updated[handle(1)]
	if mask != bitPosition {
		t.Fatalf("expected only bitPosition set, got %08b", mask)
	}
}
