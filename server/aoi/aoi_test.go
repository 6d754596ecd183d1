package aoi

import (
	"testing"

	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

func handle(i uint32) ecs.Handle { return ecs.NewHandle(i, 0) }

func distSqAt(metres float64) int64 {
	v := fixedpoint.FromFloat64(metres)
	return int64(v) * int64(v)
}

func TestTierOfBoundaries(t *testing.T) {
	tu := DefaultTunables()
	cases := []struct {
		metres float64
		want   Tier
	}{
		{10, Near},
		{50, Near},
		{75, Mid},
		{150, Far},
		{250, Unseen},
	}
	for _, c := range cases {
		if got := tu.TierOf(distSqAt(c.metres)); got != c.want {
			t.Fatalf("at %vm: expected %v, got %v", c.metres, c.want, got)
		}
	}
}

func TestDueFirstCallAlwaysSends(t *testing.T) {
	m := New(DefaultTunables())
	tier, due := m.Due(handle(1), handle(2), distSqAt(150), 0)
	if tier != Far || !due {
		t.Fatalf("expected first Far call to be due, got tier=%v due=%v", tier, due)
	}
}

func TestDueRespectsCadence(t *testing.T) {
	m := New(DefaultTunables())
	// Far refreshes at 6Hz on a 60Hz loop: every 10 ticks.
	m.Due(handle(1), handle(2), distSqAt(150), 0)
	if _, due := m.Due(handle(1), handle(2), distSqAt(150), 5); due {
		t.Fatalf("expected Far refresh to not be due yet at tick 5")
	}
	if _, due := m.Due(handle(1), handle(2), distSqAt(150), 10); !due {
		t.Fatalf("expected Far refresh to be due at tick 10")
	}
}

func TestDueEveryTickForNear(t *testing.T) {
	m := New(DefaultTunables())
	m.Due(handle(1), handle(2), distSqAt(10), 0)
	if _, due := m.Due(handle(1), handle(2), distSqAt(10), 1); !due {
		t.Fatalf("expected Near (60Hz on 60Hz loop) to be due every tick")
	}
}

func TestUnseenClearsState(t *testing.T) {
	m := New(DefaultTunables())
	m.Due(handle(1), handle(2), distSqAt(10), 0)
	if tier, due := m.Due(handle(1), handle(2), distSqAt(500), 1); tier != Unseen || due {
		t.Fatalf("expected Unseen/false once out of range, got tier=%v due=%v", tier, due)
	}
	if _, due := m.Due(handle(1), handle(2), distSqAt(10), 2); !due {
		t.Fatalf("expected re-entering range to be immediately due")
	}
}

func TestForgetViewerClearsAllPairs(t *testing.T) {
	m := New(DefaultTunables())
	m.Due(handle(1), handle(2), distSqAt(10), 0)
	m.Due(handle(1), handle(3), distSqAt(10), 0)
	m.ForgetViewer(handle(1))
	if len(m.lastSent) != 0 {
		t.Fatalf("expected all pairs for viewer to be forgotten, got %d remaining", len(m.lastSent))
	}
}
