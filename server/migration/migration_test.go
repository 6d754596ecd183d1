package migration

import (
	"testing"
	"time"

	"github.com/riftzone/zoneserver/server/components"
)

func TestFullLifecycle(t *testing.T) {
	s := &components.MigrationState{}
	now := time.Now()

	if err := StartNotify(s, components.ZoneID(7), 1, now, time.Second); err != nil {
		t.Fatalf("StartNotify: %v", err)
	}
	if s.Phase != components.PhaseNotifying || s.PeerZone != components.ZoneID(7) {
		t.Fatalf("unexpected state after StartNotify: %+v", s)
	}

	if err := BeginMigrating(s, now, time.Second); err != nil {
		t.Fatalf("BeginMigrating: %v", err)
	}
	if s.Phase != components.PhaseMigrating {
		t.Fatalf("expected PhaseMigrating, got %v", s.Phase)
	}

	applied, err := Apply(s, 1)
	if err != nil || !applied {
		t.Fatalf("expected first Apply to succeed and report applied, got applied=%v err=%v", applied, err)
	}
	if s.Phase != components.PhaseHandedOff {
		t.Fatalf("expected PhaseHandedOff, got %v", s.Phase)
	}

	if err := BeginCleanup(s, now, time.Second); err != nil {
		t.Fatalf("BeginCleanup: %v", err)
	}
	if err := Complete(s); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.Phase != components.PhaseNormal {
		t.Fatalf("expected reset to PhaseNormal, got %v", s.Phase)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	s := &components.MigrationState{}
	now := time.Now()
	StartNotify(s, 1, 42, now, time.Second)
	BeginMigrating(s, now, time.Second)
	Apply(s, 42)

	applied, err := Apply(s, 42)
	if err != nil {
		t.Fatalf("expected replayed Apply to be a harmless no-op, got err=%v", err)
	}
	if applied {
		t.Fatalf("expected replayed Apply to report applied=false")
	}
	if s.Phase != components.PhaseHandedOff {
		t.Fatalf("expected state to remain HandedOff, got %v", s.Phase)
	}
}

func TestApplyRejectsWrongEpoch(t *testing.T) {
	s := &components.MigrationState{}
	now := time.Now()
	StartNotify(s, 1, 1, now, time.Second)
	BeginMigrating(s, now, time.Second)

	if _, err := Apply(s, 2); err != ErrEpochMismatch {
		t.Fatalf("expected ErrEpochMismatch, got %v", err)
	}
}

func TestCannotStartSecondMigrationConcurrently(t *testing.T) {
	s := &components.MigrationState{}
	now := time.Now()
	if err := StartNotify(s, 1, 1, now, time.Second); err != nil {
		t.Fatalf("StartNotify: %v", err)
	}
	if err := StartNotify(s, 2, 2, now, time.Second); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for concurrent migration, got %v", err)
	}
}

func TestTimedOut(t *testing.T) {
	s := &components.MigrationState{}
	now := time.Now()
	StartNotify(s, 1, 1, now, 10*time.Millisecond)
	if TimedOut(s, now) {
		t.Fatalf("expected not timed out immediately")
	}
	later := now.Add(time.Second)
	if !TimedOut(s, later) {
		t.Fatalf("expected timed out after deadline elapsed")
	}
}

func TestAbortResetsToNormal(t *testing.T) {
	s := &components.MigrationState{}
	now := time.Now()
	StartNotify(s, 1, 1, now, time.Second)
	Abort(s)
	if s.Phase != components.PhaseNormal {
		t.Fatalf("expected PhaseNormal after Abort, got %v", s.Phase)
	}
	// A fresh migration may now start.
	if err := StartNotify(s, 3, 9, now, time.Second); err != nil {
		t.Fatalf("expected StartNotify to succeed after Abort, got %v", err)
	}
}
