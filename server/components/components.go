// Package components declares the plain-value component records that make
// up an entity, grouped for locality, and the Bundle of component tables a
// Zone owns. Components are deliberately inert (no methods beyond simple
// accessors): behaviour lives in the systems under server/ that read and
// write these tables, per the entity-index + component-table layout the
// teacher's re-architecture guidance calls for.
package components

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// ZoneID identifies a zone within the shard topology. Zones address each
// other by this id over the CrossZoneBus.
type ZoneID uint16

// ConnID identifies a client connection, independent of any entity it may
// currently drive (a connection exists briefly before its entity is
// spawned, and NetworkState.ConnID outlives entity destruction during a
// disconnect).
type ConnID uint64

// String implements fmt.Stringer for log output.
func (z ZoneID) String() string { return fmt.Sprintf("zone-%d", uint16(z)) }

// String implements fmt.Stringer for log output.
func (c ConnID) String() string { return fmt.Sprintf("conn-%d", uint64(c)) }

// Position is the fixed-point world position of an entity, stamped with the
// tick it was last written on. It is overwritten every tick by
// MovementSystem and must stay within the world bounds once that system has
// run.
type Position struct {
	Pos  fixedpoint.Vec3
	Tick int64
}

// Velocity is the fixed-point per-tick velocity of an entity. It is mutated
// only by MovementSystem; |v| must never exceed MaxSpeed * SprintMult *
// SpeedTolerance.
type Velocity struct {
	Vel fixedpoint.Vec3
}

// Rotation is the look direction of an entity. Unlike Position and
// Velocity, rotation is kept in floating point: it never feeds the movement
// integration directly across a tick boundary and so does not threaten
// determinism.
type Rotation struct {
	Yaw, Pitch float32
}

// InputFlag is a single bit of a packed client input.
type InputFlag uint8

const (
	InputForward InputFlag = 1 << iota
	InputBack
	InputLeft
	InputRight
	InputJump
	InputSprint
	InputCrouch
	InputAttack
)

// InputState is the most recently accepted input for a connection. It is
// replaced wholesale on each received input; sequence must strictly
// increase per connection or the input is discarded.
type InputState struct {
	Flags        InputFlag
	Yaw, Pitch   float32
	Seq          uint32
	ClientTickMs uint32
	TargetEntity ecs.Handle
	ReceivedTick int64
}

// Team identifies a side in combat for friendly-fire checks.
type Team uint8

// CombatState is an entity's health and combat bookkeeping.
type CombatState struct {
	HP, MaxHP      int32
	Team           Team
	LastAttacker   ecs.Handle
	LastAttackTick int64
	IsDead         bool
}

// SpatialCell is the grid cell an entity currently occupies, maintained
// exclusively by the SpatialHash.
type SpatialCell struct {
	CX, CZ int32
	ZoneID ZoneID
}

// BoundingVolume is the (immutable after spawn) cylindrical collision shape
// of an entity.
type BoundingVolume struct {
	Radius, Height fixedpoint.Scalar
}

// AntiCheatState is the per-entity bookkeeping the AntiCheatValidator uses
// to detect speed hacks, teleports, and input flooding.
type AntiCheatState struct {
	LastValidPos   fixedpoint.Vec3
	LastValidTick  int64
	Strikes        int
	SuspicionScore float64
	MaxObserved    fixedpoint.Scalar
	InputWindow    []time.Time
	LastSeq        uint32
}

// NetworkState is the per-entity view of its owning connection's transport
// health.
type NetworkState struct {
	ConnID               ConnID
	LastAckedBaselineTick int64
	RTT                  time.Duration
	Loss                 float64
}

// PlayerInfo identifies the player driving a live entity.
type PlayerInfo struct {
	PlayerID uuid.UUID
	ConnID   ConnID
	Username string
}

// MigrationPhase is a state of the MigrationStateMachine (see package
// migration for the authoritative state machine; this is the
// component-table mirror systems read to decide whether to simulate an
// entity at all).
type MigrationPhase uint8

const (
	PhaseNormal MigrationPhase = iota
	PhaseNotifying
	PhaseMigrating
	PhaseHandedOff
	PhaseCleanup
)

// MigrationState is the live migration status of an entity, mutated only by
// the MigrationStateMachine.
type MigrationState struct {
	Phase    MigrationPhase
	PeerZone ZoneID
	Epoch    uint32
	Deadline time.Time
}

// EntityType distinguishes locally-simulated entities from read-only
// replicas projected in from a neighbouring zone.
type EntityType uint8

const (
	EntityTypeNormal EntityType = iota
	EntityTypeProjected
)

// Bundle groups every component table the zone maintains, passed to systems
// by reference rather than letting systems hold entity pointers directly
// (the entity-index + component-table layout called for by the teacher's
// re-architecture guidance).
type Bundle struct {
	Registry    *ecs.Registry
	Positions   *ecs.Table[Position]
	Velocities  *ecs.Table[Velocity]
	Rotations   *ecs.Table[Rotation]
	Inputs      *ecs.Table[InputState]
	Combat      *ecs.Table[CombatState]
	Cells       *ecs.Table[SpatialCell]
	Bounds      *ecs.Table[BoundingVolume]
	AntiCheat   *ecs.Table[AntiCheatState]
	Network     *ecs.Table[NetworkState]
	Players     *ecs.Table[PlayerInfo]
	Migrations  *ecs.Table[MigrationState]
	EntityTypes *ecs.Table[EntityType]
}

// NewBundle allocates an empty component Bundle.
func NewBundle() *Bundle {
	return &Bundle{
		Registry:    ecs.NewRegistry(),
		Positions:   ecs.NewTable[Position](),
		Velocities:  ecs.NewTable[Velocity](),
		Rotations:   ecs.NewTable[Rotation](),
		Inputs:      ecs.NewTable[InputState](),
		Combat:      ecs.NewTable[CombatState](),
		Cells:       ecs.NewTable[SpatialCell](),
		Bounds:      ecs.NewTable[BoundingVolume](),
		AntiCheat:   ecs.NewTable[AntiCheatState](),
		Network:     ecs.NewTable[NetworkState](),
		Players:     ecs.NewTable[PlayerInfo](),
		Migrations:  ecs.NewTable[MigrationState](),
		EntityTypes: ecs.NewTable[EntityType](),
	}
}

// Destroy removes every component of h from every table and releases its
// handle back to the Registry.
func (b *Bundle) Destroy(h ecs.Handle) {
	b.Positions.Delete(h)
	b.Velocities.Delete(h)
	b.Rotations.Delete(h)
	b.Inputs.Delete(h)
	b.Combat.Delete(h)
	b.Cells.Delete(h)
	b.Bounds.Delete(h)
	b.AntiCheat.Delete(h)
	b.Network.Delete(h)
	b.Players.Delete(h)
	b.Migrations.Delete(h)
	b.EntityTypes.Delete(h)
	b.Registry.Destroy(h)
}
