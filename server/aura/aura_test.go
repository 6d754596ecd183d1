package aura

import (
	"testing"

	"github.com/riftzone/zoneserver/server/components"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

func handle(i uint32) ecs.Handle { return ecs.NewHandle(i, 0) }

func testBounds() Bounds {
	return Bounds{MinX: 0, MaxX: fixedpoint.FromFloat64(1000), MinZ: 0, MaxZ: fixedpoint.FromFloat64(1000)}
}

func TestEdgesInteriorIsEmpty(t *testing.T) {
	p := New(testBounds(), fixedpoint.FromFloat64(50))
	edges := p.Edges(fixedpoint.Vec3FromFloat64(500, 0, 500))
	if len(edges) != 0 {
		t.Fatalf("expected no edges for an interior point, got %v", edges)
	}
}

func TestEdgesNearSingleBorder(t *testing.T) {
	p := New(testBounds(), fixedpoint.FromFloat64(50))
	edges := p.Edges(fixedpoint.Vec3FromFloat64(10, 0, 500))
	if len(edges) != 1 || edges[0] != EdgeMinX {
		t.Fatalf("expected only EdgeMinX, got %v", edges)
	}
}

func TestEdgesNearCorner(t *testing.T) {
	p := New(testBounds(), fixedpoint.FromFloat64(50))
	edges := p.Edges(fixedpoint.Vec3FromFloat64(5, 0, 5))
	if len(edges) != 2 {
		t.Fatalf("expected two edges near a corner, got %v", edges)
	}
}

func TestTargetsSkipsUnmappedEdges(t *testing.T) {
	p := New(testBounds(), fixedpoint.FromFloat64(50))
	topology := map[Edge]components.ZoneID{EdgeMaxX: components.ZoneID(9)}
	targets := p.Targets(fixedpoint.Vec3FromFloat64(10, 0, 500), topology)
	if len(targets) != 0 {
		t.Fatalf("expected no targets for an edge with no configured neighbour, got %v", targets)
	}
	targets = p.Targets(fixedpoint.Vec3FromFloat64(990, 0, 500), topology)
	if len(targets) != 1 || targets[0] != components.ZoneID(9) {
		t.Fatalf("expected a single target zone 9, got %v", targets)
	}
}

func TestTrackerReportsBeginAndEnd(t *testing.T) {
	tr := NewTracker()
	e := handle(1)

	began, ended := tr.Update(e, []components.ZoneID{1, 2})
	if len(began) != 2 || len(ended) != 0 {
		t.Fatalf("expected two begins on first update, got began=%v ended=%v", began, ended)
	}

	began, ended = tr.Update(e, []components.ZoneID{2})
	if len(began) != 0 || len(ended) != 1 || ended[0] != components.ZoneID(1) {
		t.Fatalf("expected zone 1 to end and nothing new to begin, got began=%v ended=%v", began, ended)
	}
}

func TestTrackerForgetEndsEverything(t *testing.T) {
	tr := NewTracker()
	e := handle(1)
	tr.Update(e, []components.ZoneID{1, 2, 3})
	ended := tr.Forget(e)
	if len(ended) != 3 {
		t.Fatalf("expected all three zones to end, got %v", ended)
	}
	began, _ := tr.Update(e, []components.ZoneID{1})
	if len(began) != 1 {
		t.Fatalf("expected a fresh begin after Forget, got %v", began)
	}
}
