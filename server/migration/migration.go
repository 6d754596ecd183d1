// Package migration drives the per-entity state machine that moves an
// entity from one zone's authority to a neighbour's: Normal, Notifying,
// Migrating, HandedOff, and Cleanup. Exactly one migration may be in
// flight for an entity at a time — the state machine enforces this simply
// by refusing to start a new one from any phase but Normal, the same
// "no second job starts until I say so" guard the teacher's World.Exec
// single-writer tick thread gives every other piece of zone state. Handoff
// confirmation (MIGRATE_APPLIED) is keyed by (entity, epoch) and is
// idempotent: a duplicate confirmation for the epoch already applied is a
// no-op rather than an error, since the message can legitimately arrive
// more than once over an at-least-once transport.
package migration

import (
	"errors"
	"time"

	"github.com/riftzone/zoneserver/server/components"
)

// Errors returned by invalid state transitions.
var (
	ErrInvalidTransition = errors.New("migration: invalid state transition")
	ErrEpochMismatch     = errors.New("migration: epoch does not match in-flight migration")
)

// StartNotify begins a migration: the entity's owning zone has decided to
// hand it to peer and is about to notify that neighbour. Only valid from
// PhaseNormal.
func StartNotify(s *components.MigrationState, peer components.ZoneID, epoch uint32, now time.Time, timeout time.Duration) error {
	if s.Phase != components.PhaseNormal {
		return ErrInvalidTransition
	}
	s.Phase = components.PhaseNotifying
	s.PeerZone = peer
	s.Epoch = epoch
	s.Deadline = now.Add(timeout)
	return nil
}

// BeginMigrating advances from Notifying to Migrating once the peer zone
// has acknowledged it is ready to receive the entity.
func BeginMigrating(s *components.MigrationState, now time.Time, timeout time.Duration) error {
	if s.Phase != components.PhaseNotifying {
		return ErrInvalidTransition
	}
	s.Phase = components.PhaseMigrating
	s.Deadline = now.Add(timeout)
	return nil
}

// Apply processes a MIGRATE_APPLIED confirmation from the peer zone for
// epoch. If the entity is still Migrating under that exact epoch, it
// transitions to HandedOff and applied is true. If the entity has already
// been handed off under that epoch, the confirmation is a harmless replay:
// applied is false and err is nil. Any other combination (wrong epoch,
// wrong phase) is an error.
func Apply(s *components.MigrationState, epoch uint32) (applied bool, err error) {
	switch s.Phase {
	case components.PhaseMigrating:
		if s.Epoch != epoch {
			return false, ErrEpochMismatch
		}
		s.Phase = components.PhaseHandedOff
		return true, nil
	case components.PhaseHandedOff:
		if s.Epoch != epoch {
			return false, ErrEpochMismatch
		}
		return false, nil
	default:
		return false, ErrInvalidTransition
	}
}

// BeginCleanup advances from HandedOff to Cleanup: the local zone has
// stopped simulating the entity and is releasing its local resources
// (spatial hash entry, aura shadow, component rows) before resetting to
// Normal to accept a future migration.
func BeginCleanup(s *components.MigrationState, now time.Time, timeout time.Duration) error {
	if s.Phase != components.PhaseHandedOff {
		return ErrInvalidTransition
	}
	s.Phase = components.PhaseCleanup
	s.Deadline = now.Add(timeout)
	return nil
}

// Complete finishes a migration, resetting the state machine to Normal so
// the entity (if it still exists locally as a projected shadow, or the slot
// is reused) can be migrated again.
func Complete(s *components.MigrationState) error {
	if s.Phase != components.PhaseCleanup {
		return ErrInvalidTransition
	}
	*s = components.MigrationState{Phase: components.PhaseNormal}
	return nil
}

// TimedOut reports whether s has an active deadline (any phase but Normal)
// that now has passed.
func TimedOut(s *components.MigrationState, now time.Time) bool {
	return s.Phase != components.PhaseNormal && !s.Deadline.IsZero() && now.After(s.Deadline)
}

// Abort forcibly resets s to Normal, used when TimedOut reports an
// overrun and the migration must be retried from scratch rather than left
// stuck mid-handoff.
func Abort(s *components.MigrationState) {
	*s = components.MigrationState{Phase: components.PhaseNormal}
}
