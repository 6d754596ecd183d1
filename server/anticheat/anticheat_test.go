package anticheat

import (
	"testing"
	"time"

	"github.com/riftzone/zoneserver/server/fixedpoint"
)

// TestTeleportScenario reproduces literal scenario 2: an entity spawned at
// the origin jumping to (200,0,0) on the very next tick must be flagged for
// disconnect.
func TestTeleportScenario(t *testing.T) {
	v := New(DefaultThresholds(), nil)
	s := &State{LastValidPos: fixedpoint.Vec3{}, LastValidTick: 0}
	verdict := v.CheckMovement(s, "e1", "c1", fixedpoint.Vec3FromFloat64(200, 0, 0), 1, false)
	if verdict != Disconnect {
		t.Fatalf("expected Disconnect, got %v", verdict)
	}
}

func TestSequenceMonotonicity(t *testing.T) {
	v := New(DefaultThresholds(), nil)
	s := &State{LastSeq: 5}
	if got := v.CheckSequence(s, 5); got != DiscardStale {
		t.Fatalf("expected DiscardStale for equal seq, got %v", got)
	}
	if got := v.CheckSequence(s, 4); got != DiscardStale {
		t.Fatalf("expected DiscardStale for lower seq, got %v", got)
	}
	if got := v.CheckSequence(s, 6); got != Accept {
		t.Fatalf("expected Accept for higher seq, got %v", got)
	}
}

func TestRateLimit(t *testing.T) {
	v := New(DefaultThresholds(), nil)
	s := &State{}
	now := time.Now()
	for i := 0; i < v.Thresholds.MaxInputsPerSecond; i++ {
		if got := v.CheckRate(s, now); got != Accept {
			t.Fatalf("expected Accept within budget at i=%d, got %v", i, got)
		}
	}
	if got := v.CheckRate(s, now); got != Drop {
		t.Fatalf("expected Drop once budget exceeded, got %v", got)
	}
}

func TestStrikesAccumulateToDisconnect(t *testing.T) {
	v := New(DefaultThresholds(), nil)
	s := &State{LastValidPos: fixedpoint.Vec3{}, LastValidTick: 0}
	// Each violation is small enough to avoid the hard teleport threshold
	// but above the per-tick speed allowance.
	violation := fixedpoint.Vec3FromFloat64(10, 0, 0)
	var last Verdict
	for i := 1; i <= v.Thresholds.StrikeLimit; i++ {
		last = v.CheckMovement(s, "e1", "c1", violation, int64(i), false)
	}
	if last != Disconnect {
		t.Fatalf("expected Disconnect after %d strikes, got %v", v.Thresholds.StrikeLimit, last)
	}
}

func TestValidMovementAccepted(t *testing.T) {
	v := New(DefaultThresholds(), nil)
	s := &State{LastValidPos: fixedpoint.Vec3{}, LastValidTick: 0}
	small := fixedpoint.Vec3FromFloat64(0.05, 0, 0)
	if got := v.CheckMovement(s, "e1", "c1", small, 1, false); got != Accept {
		t.Fatalf("expected Accept, got %v", got)
	}
	if s.LastValidPos != small {
		t.Fatalf("expected LastValidPos updated to %v, got %v", small, s.LastValidPos)
	}
}
