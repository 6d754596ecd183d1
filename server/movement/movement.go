// Package movement implements the kinematic integration step of the tick
// pipeline: turning packed input flags into acceleration, applying gravity
// and drag, integrating position, clamping to world bounds, and resolving
// soft overlaps between nearby entities. Positions and velocities are
// fixed-point between ticks; within a step, the yaw rotation (via
// go-gl/mathgl), the acceleration towards the target velocity, gravity and
// the overlap push are computed in floating point, and each result is
// converted back to fixed-point before it is returned, much as the
// teacher's own MovementComputer keeps collision math in mgl64 for the
// duration of a single tick and never carries a float value across tick
// boundaries.
package movement

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// Flag is a single bit of packed client input. The bit layout matches
// components.InputFlag; it is redeclared here (rather than imported) so
// this package has no dependency on the component bundle and can be unit
// tested in isolation.
type Flag uint8

const (
	Forward Flag = 1 << iota
	Back
	Left
	Right
	Jump
	Sprint
	Crouch
	Attack
)

// Bounds is the axis-aligned world volume entities are clamped to.
type Bounds struct {
	MinX, MinY, MinZ fixedpoint.Scalar
	MaxX, MaxY, MaxZ fixedpoint.Scalar
}

// Tunables groups the speed/acceleration constants a MovementSystem
// computes against. Values are expressed in metres/second (converted to
// fixed-point internally) so callers can configure a zone without reasoning
// about the Scale factor directly.
type Tunables struct {
	MaxSpeed        float64 // m/s
	SprintMult      float64
	Acceleration    float64 // m/s^2
	Deceleration    float64 // m/s^2
	Gravity         float64 // m/s^2
	JumpImpulse     float64 // m/s
	OverlapPushRate float64 // fraction of overlap resolved per tick
}

// DefaultTunables returns reasonable humanoid movement constants.
func DefaultTunables() Tunables {
	return Tunables{
		MaxSpeed:        4.3,
		SprintMult:      1.3,
		Acceleration:    20,
		Deceleration:    24,
		Gravity:         9.81,
		JumpImpulse:     4.2,
		OverlapPushRate: 0.5,
	}
}

// Neighbour is a candidate for soft-overlap resolution, as returned by the
// caller's SpatialHash query (2x the larger of the two radii).
type Neighbour struct {
	Handle ecs.Handle
	Pos    fixedpoint.Vec3
	Radius fixedpoint.Scalar
}

// System integrates motion for a single entity per call. It holds no
// per-entity state itself (all state lives in the component tables the
// caller owns); Tunables may differ per entity class (player vs NPC) by
// constructing more than one System.
type System struct {
	Tunables Tunables
	Bounds   Bounds
}

// New creates a System with the given tunables and world bounds.
func New(t Tunables, b Bounds) *System {
	return &System{Tunables: t, Bounds: b}
}

// dt is the fixed simulation timestep, 1/60s, expressed as a rational
// fraction so fixed-point scaling stays exact integer math.
const dtNum, dtDen = 1, 60

// Step advances one entity by one tick. pos/vel are the entity's current
// fixed-point state; flags/yaw describe the accepted input for this tick;
// radius is the entity's bounding cylinder radius, used for the 2*maxRadius
// neighbour query the caller performed to build neighbours. Step returns the
// new position, velocity, and whether the entity ended the tick on the
// ground.
func (s *System) Step(pos, vel fixedpoint.Vec3, flags Flag, yaw float32, radius fixedpoint.Scalar, neighbours []Neighbour) (newPos, newVel fixedpoint.Vec3, onGround bool) {
	vel = s.applyHorizontal(vel, flags, yaw)
	vel, onGround = s.applyVertical(vel, flags)

	pos = pos.Add(vel.Scale(dtNum, dtDen))
	pos = s.clampBounds(pos)
	pos, vel = s.resolveOverlaps(pos, vel, radius, neighbours)
	return pos, vel, onGround
}

// applyHorizontal turns the forward/back/left/right bits plus yaw into a
// desired horizontal velocity and accelerates or decelerates vel towards it.
func (s *System) applyHorizontal(vel fixedpoint.Vec3, flags Flag, yaw float32) fixedpoint.Vec3 {
	var dir mgl32.Vec2
	if flags&Forward != 0 {
		dir[1] += 1
	}
	if flags&Back != 0 {
		dir[1] -= 1
	}
	if flags&Right != 0 {
		dir[0] += 1
	}
	if flags&Left != 0 {
		dir[0] -= 1
	}
	maxSpeed := s.Tunables.MaxSpeed
	if flags&Sprint != 0 {
		maxSpeed *= s.Tunables.SprintMult
	}

	vx, vz := vel.X.Float64(), vel.Z.Float64()
	if dir.LenSqr() > 0 {
		dir = dir.Normalize()
		// Rotate the input direction by yaw so "forward" means "the way the
		// entity is currently looking", not the world +Z axis. Like the rest
		// of this function's velocity math it runs in floating point; the
		// result is converted back to fixed-point velocity before it is
		// stored anywhere.
		s64, c64 := math.Sincos(float64(yaw))
		sinY, cosY := float32(s64), float32(c64)
		worldX := dir[0]*cosY - dir[1]*sinY
		worldZ := dir[0]*sinY + dir[1]*cosY

		targetX, targetZ := float64(worldX)*maxSpeed, float64(worldZ)*maxSpeed
		vx = approach(vx, targetX, s.Tunables.Acceleration/TickRate())
		vz = approach(vz, targetZ, s.Tunables.Acceleration/TickRate())
	} else {
		vx = approach(vx, 0, s.Tunables.Deceleration/TickRate())
		vz = approach(vz, 0, s.Tunables.Deceleration/TickRate())
	}
	return fixedpoint.Vec3{X: fixedpoint.FromFloat64(vx), Y: vel.Y, Z: fixedpoint.FromFloat64(vz)}
}

// applyVertical applies gravity each tick and a jump impulse on the rising
// edge of the jump bit (a full jump-edge debounce belongs to the caller,
// which only passes Jump through for the tick the edge actually occurred).
func (s *System) applyVertical(vel fixedpoint.Vec3, flags Flag) (fixedpoint.Vec3, bool) {
	vy := vel.Y.Float64()
	onGround := vy == 0
	if flags&Jump != 0 && onGround {
		vy = s.Tunables.JumpImpulse
		onGround = false
	} else {
		vy -= s.Tunables.Gravity / TickRate()
	}
	return fixedpoint.Vec3{X: vel.X, Y: fixedpoint.FromFloat64(vy), Z: vel.Z}, onGround
}

func (s *System) clampBounds(pos fixedpoint.Vec3) fixedpoint.Vec3 {
	return fixedpoint.Vec3{
		X: fixedpoint.Clamp(pos.X, s.Bounds.MinX, s.Bounds.MaxX),
		Y: fixedpoint.Clamp(pos.Y, s.Bounds.MinY, s.Bounds.MaxY),
		Z: fixedpoint.Clamp(pos.Z, s.Bounds.MinZ, s.Bounds.MaxZ),
	}
}

// resolveOverlaps pushes the entity apart from any neighbour whose
// cylinders overlap on the XZ plane, preserving vertical motion exactly as
// the teacher's checkCollision keeps the Y axis independent of X/Z
// resolution.
func (s *System) resolveOverlaps(pos, vel fixedpoint.Vec3, radius fixedpoint.Scalar, neighbours []Neighbour) (fixedpoint.Vec3, fixedpoint.Vec3) {
	for _, n := range neighbours {
		dx := pos.X - n.Pos.X
		dz := pos.Z - n.Pos.Z
		distSq := int64(dx)*int64(dx) + int64(dz)*int64(dz)
		minDist := radius + n.Radius
		minDistSq := int64(minDist) * int64(minDist)
		if distSq >= minDistSq || distSq == 0 {
			continue
		}
		dist := fixedpoint.IntSqrt(distSq)
		overlap := int64(minDist) - dist
		if overlap <= 0 || dist == 0 {
			continue
		}
		push := float64(overlap) * s.Tunables.OverlapPushRate / float64(dist)
		pos.X += fixedpoint.Scalar(float64(dx) * push)
		pos.Z += fixedpoint.Scalar(float64(dz) * push)
	}
	return pos, vel
}

func approach(current, target, maxDelta float64) float64 {
	if maxDelta < 0 {
		maxDelta = -maxDelta
	}
	if current < target {
		current += maxDelta
		if current > target {
			current = target
		}
	} else if current > target {
		current -= maxDelta
		if current < target {
			current = target
		}
	}
	return current
}

// TickRate returns the fixed simulation rate in Hz as a float64, used to
// scale per-second accelerations down to a per-tick delta.
func TickRate() float64 { return 60.0 }
