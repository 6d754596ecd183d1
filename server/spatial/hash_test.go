package spatial

import (
	"testing"

	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

func h(e int) ecs.Handle { return ecs.Handle(e) }

func TestInsertIdempotent(t *testing.T) {
	s := New()
	e := h(1)
	s.Insert(e, fixedpoint.FromFloat64(1), fixedpoint.FromFloat64(1))
	s.Insert(e, fixedpoint.FromFloat64(1), fixedpoint.FromFloat64(1))
	c, ok := s.CellOfEntity(e)
	if !ok {
		t.Fatal("expected entity to be indexed")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entity, got %d", s.Len())
	}
	out := s.Query(fixedpoint.FromFloat64(1), fixedpoint.FromFloat64(1), fixedpoint.FromFloat64(1), nil)
	if len(out) != 1 || out[0] != e {
		t.Fatalf("expected [%v], got %v (cell %v)", e, out, c)
	}
}

func TestUpdateMovesCell(t *testing.T) {
	s := New()
	e := h(1)
	s.Insert(e, 0, 0)
	s.Update(e, 0, 0, fixedpoint.FromFloat64(100), fixedpoint.FromFloat64(100))
	c, _ := s.CellOfEntity(e)
	want := CellOf(fixedpoint.FromFloat64(100), fixedpoint.FromFloat64(100))
	if c != want {
		t.Fatalf("expected cell %v, got %v", want, c)
	}
	out := s.Query(0, 0, fixedpoint.FromFloat64(5), nil)
	if len(out) != 0 {
		t.Fatalf("expected no entities near origin after move, got %v", out)
	}
}

func TestUpdateSameCellNoop(t *testing.T) {
	s := New()
	e := h(1)
	s.Insert(e, 0, 0)
	s.Update(e, 0, 0, fixedpoint.FromFloat64(0.1), fixedpoint.FromFloat64(0.1))
	if s.Len() != 1 {
		t.Fatalf("expected 1 entity, got %d", s.Len())
	}
}

func TestQueryReturnsSuperset(t *testing.T) {
	s := New()
	a, b := h(1), h(2)
	s.Insert(a, 0, 0)
	s.Insert(b, fixedpoint.FromFloat64(15), 0)
	out := s.Query(0, 0, fixedpoint.FromFloat64(5), nil)
	found := map[ecs.Handle]bool{}
	for _, e := range out {
		found[e] = true
	}
	if !found[a] {
		t.Fatal("expected a in result")
	}
}

func TestClearRetainsAllocation(t *testing.T) {
	s := New()
	s.Insert(h(1), 0, 0)
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty hash after clear, got %d", s.Len())
	}
	out := s.Query(0, 0, fixedpoint.FromFloat64(5), nil)
	if len(out) != 0 {
		t.Fatalf("expected no results after clear, got %v", out)
	}
}

func TestRemove(t *testing.T) {
	s := New()
	e := h(1)
	s.Insert(e, 0, 0)
	s.Remove(e)
	if _, ok := s.CellOfEntity(e); ok {
		t.Fatal("expected entity to be removed")
	}
}
