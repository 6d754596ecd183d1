package server

import "time"

// Binding constants from the wire/engine specification. These are not
// tunables: clients, neighbour zones, and anti-cheat thresholds all assume
// these exact values.
const (
	TickRateHz        = 60
	TickInterval      = time.Second / TickRateHz
	TickBudgetMicros  = 16666
	SnapshotRateHz    = 20
	SpatialCellSize   = 10.0 // metres
	AuraBufferMeters  = 50.0 // metres

	MaxPlayersPerZone      = 400
	MaxEntitiesPerZone     = 4000
	LagCompensationHistory = 2000 * time.Millisecond
	MaxRewindMs            = 500 * time.Millisecond
	MaxTeleportDistance    = 100.0 // metres
	PositionTolerance      = 0.5   // metres
	SpeedTolerance         = 1.2
	MaxInputsPerSecond     = 60
	PlayerSaveInterval     = 30 * time.Second

	MaxRttMs                    = 300 * time.Millisecond
	SuspiciousMovementThreshold = 3
	MigrationTimeout            = 500 * time.Millisecond
	MigrationRetryCooldown      = 1 * time.Second

	// MigrationTriggerMeters is how close to a zone's own border (not the
	// wider AuraBufferMeters projection band) an entity must be before the
	// MigrationStateMachine starts a hand-off to the neighbour across that
	// border.
	MigrationTriggerMeters = 1.0 // metres

	LagCompensationRingSize = int(LagCompensationHistory / TickInterval) // 120 entries

	AOINearRange = 50.0  // metres
	AOIMidRange  = 100.0 // metres
	AOIFarRange  = 200.0 // metres

	AOINearRateHz = 60
	AOIMidRateHz  = 30
	AOIFarRateHz  = 6

	// SnapshotBaselineHistory bounds how many past ticks a connection's
	// BaselineCache retains before an un-ACKed one is evicted and the next
	// snapshot for that connection falls back to a full rebuild.
	SnapshotBaselineHistory = 64
)
