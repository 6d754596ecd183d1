package server

import (
	"errors"
	"fmt"

	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// ErrKind classifies a ZoneError for callers that need to branch on the
// failure without string matching. It mirrors the error-kind table from the
// design: handshake/decoding failures close the connection outright,
// anti-cheat and rate-limit failures accumulate, and only FatalInit stops
// the process.
type ErrKind uint8

const (
	KindProtocolMismatch ErrKind = iota
	KindMalformed
	KindUnauthenticated
	KindBanned
	KindAntiCheatViolation
	KindRateLimited
	KindBaselineMismatch
	KindMigrationTimeout
	KindCrossZoneOverflow
	KindTickOverrun
	KindFatalInit
)

func (k ErrKind) String() string {
	switch k {
	case KindProtocolMismatch:
		return "ProtocolMismatch"
	case KindMalformed:
		return "Malformed"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindBanned:
		return "Banned"
	case KindAntiCheatViolation:
		return "AntiCheatViolation"
	case KindRateLimited:
		return "RateLimited"
	case KindBaselineMismatch:
		return "BaselineMismatch"
	case KindMigrationTimeout:
		return "MigrationTimeout"
	case KindCrossZoneOverflow:
		return "CrossZoneOverflow"
	case KindTickOverrun:
		return "TickOverrun"
	case KindFatalInit:
		return "FatalInit"
	default:
		return "Unknown"
	}
}

// Sentinel errors, compared with errors.Is. These describe the nature of a
// failure; ZoneError wraps one of these together with the entity/connection
// it happened to.
var (
	ErrProtocolMismatch   = errors.New("protocol version mismatch")
	ErrMalformed          = errors.New("malformed packet")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrBanned             = errors.New("banned")
	ErrAntiCheatViolation = errors.New("anti-cheat violation")
	ErrRateLimited        = errors.New("rate limited")
	ErrBaselineMismatch   = errors.New("acked baseline no longer held")
	ErrMigrationTimeout   = errors.New("migration timed out")
	ErrCrossZoneOverflow  = errors.New("cross-zone channel overflow")
	ErrTickOverrun        = errors.New("tick overran budget")
	ErrServerFull         = errors.New("server full")
)

// ZoneError is the contained-error type propagated out of per-entity or
// per-connection processing. Only FatalInit-kind errors returned from
// initialization are meant to terminate the process; everything else is
// handled at the entity or connection boundary it occurred in.
type ZoneError struct {
	Kind   ErrKind
	Entity ecs.Handle
	Conn   ConnID
	Err    error
}

func (e *ZoneError) Error() string {
	return fmt.Sprintf("%s: %v (entity=%v conn=%v)", e.Kind, e.Err, e.Entity, e.Conn)
}

func (e *ZoneError) Unwrap() error {
	return e.Err
}

// NewZoneError wraps err with the given kind and originating entity/conn.
func NewZoneError(kind ErrKind, entity ecs.Handle, conn ConnID, err error) *ZoneError {
	return &ZoneError{Kind: kind, Entity: entity, Conn: conn, Err: err}
}
