// Package combat resolves melee and projectile attacks against the
// lag-compensated positions the lagcomp package rewinds to. The
// ray-sphere intersection test is grounded on the same teacher pack
// reference used by lagcomp,
// other_examples/7c7aa721_opd-ai-violence__pkg-network-lagcomp.go, whose
// raySphereIntersect is adapted here with a real quadratic-discriminant
// solve (via math.Sqrt) rather than the reference's simplified
// distance-to-line stand-in, since a production hit test needs the exact
// entry point along the ray, not just a yes/no overlap.
package combat

import (
	"math"

	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// Kind distinguishes the two attack shapes the resolver understands.
type Kind uint8

const (
	Melee Kind = iota
	Projectile
)

// Candidate is one potential target, already rewound to the tick the
// attack was aimed at by the caller's lagcomp.Compensator.
type Candidate struct {
	Handle ecs.Handle
	Pos    fixedpoint.Vec3
	Radius fixedpoint.Scalar
	Team   uint8
	HP     int32
	IsDead bool
}

// Request describes one attack to resolve.
type Request struct {
	Attacker     ecs.Handle
	AttackerTeam uint8
	Kind         Kind
	Origin       fixedpoint.Vec3
	Direction    fixedpoint.Vec3 // normalized, XZ or full 3D depending on Kind
	Range        fixedpoint.Scalar
	ConeCos      float64 // cosine of the melee half-angle; ignored for Projectile
	Damage       int32
}

// Result is the outcome of resolving a Request against a candidate set.
type Result struct {
	Hit      bool
	Target   ecs.Handle
	Distance fixedpoint.Scalar
	Damage   int32
	Killed   bool
}

// Tunables groups the defaults a zone applies when a Request omits them.
type Tunables struct {
	DefaultMeleeRange   fixedpoint.Scalar
	DefaultMeleeConeDeg float64
	DefaultMeleeDamage  int32
	DefaultProjectileDamage int32
}

// DefaultTunables returns reasonable humanoid melee/projectile constants.
func DefaultTunables() Tunables {
	return Tunables{
		DefaultMeleeRange:       fixedpoint.FromFloat64(3),
		DefaultMeleeConeDeg:     60,
		DefaultMeleeDamage:      10,
		DefaultProjectileDamage: 20,
	}
}

// Resolver picks targets and applies damage. It holds no per-entity state;
// callers pass the already-rewound Candidate set for the tick in question.
type Resolver struct {
	Tunables Tunables
}

// New creates a Resolver.
func New(t Tunables) *Resolver {
	return &Resolver{Tunables: t}
}

// Resolve dispatches to ResolveMelee or ResolveProjectile by req.Kind.
func (r *Resolver) Resolve(req Request, candidates []Candidate) Result {
	switch req.Kind {
	case Projectile:
		return r.ResolveProjectile(req, candidates)
	default:
		return r.ResolveMelee(req, candidates)
	}
}

// ResolveMelee picks the nearest living, non-self, non-same-team candidate
// within req.Range and inside the req.ConeCos half-angle of req.Direction,
// and applies req.Damage to it.
func (r *Resolver) ResolveMelee(req Request, candidates []Candidate) Result {
	rng := req.Range
	if rng == 0 {
		rng = r.Tunables.DefaultMeleeRange
	}
	coneCos := req.ConeCos
	if coneCos == 0 {
		coneCos = math.Cos(r.Tunables.DefaultMeleeConeDeg / 2 * math.Pi / 180)
	}
	dmg := req.Damage
	if dmg == 0 {
		dmg = r.Tunables.DefaultMeleeDamage
	}

	var best *Candidate
	var bestDistSq int64
	for i := range candidates {
		c := &candidates[i]
		if c.Handle == req.Attacker || c.IsDead || c.Team == req.AttackerTeam {
			continue
		}
		to := c.Pos.Sub(req.Origin)
		distSq := to.LenSq()
		maxDist := rng + c.Radius
		if distSq > int64(maxDist)*int64(maxDist) {
			continue
		}
		if distSq > 0 {
			dist := fixedpoint.Scalar(fixedpoint.IntSqrt(distSq))
			cos := dotNormalized(req.Direction, to, dist)
			if cos < coneCos {
				continue
			}
		}
		if best == nil || distSq < bestDistSq {
			best = c
			bestDistSq = distSq
		}
	}
	if best == nil {
		return Result{}
	}
	return applyDamage(*best, fixedpoint.Scalar(fixedpoint.IntSqrt(bestDistSq)), dmg)
}

// ResolveProjectile casts a ray from req.Origin along req.Direction out to
// req.Range and returns the nearest candidate sphere it intersects.
func (r *Resolver) ResolveProjectile(req Request, candidates []Candidate) Result {
	dmg := req.Damage
	if dmg == 0 {
		dmg = r.Tunables.DefaultProjectileDamage
	}
	maxRange := req.Range.Float64()

	var best *Candidate
	bestT := math.Inf(1)
	for i := range candidates {
		c := &candidates[i]
		if c.Handle == req.Attacker || c.IsDead || c.Team == req.AttackerTeam {
			continue
		}
		t, hit := raySphereIntersect(req.Origin, req.Direction, c.Pos, c.Radius)
		if !hit || t < 0 || t > maxRange {
			continue
		}
		if t < bestT {
			best = c
			bestT = t
		}
	}
	if best == nil {
		return Result{}
	}
	return applyDamage(*best, fixedpoint.FromFloat64(bestT), dmg)
}

// raySphereIntersect solves the quadratic for a ray/sphere hit and returns
// the distance along the ray to the nearest entry point. dir is assumed
// normalized; origin/center/radius are converted to float64 for the solve
// since ray casting isn't part of the deterministic replay surface (only
// the resulting damage and kill state are).
func raySphereIntersect(origin, dir, center fixedpoint.Vec3, radius fixedpoint.Scalar) (float64, bool) {
	ox, oy, oz := origin.X.Float64(), origin.Y.Float64(), origin.Z.Float64()
	dx, dy, dz := dir.X.Float64(), dir.Y.Float64(), dir.Z.Float64()
	cx, cy, cz := center.X.Float64(), center.Y.Float64(), center.Z.Float64()
	r := radius.Float64()

	lx, ly, lz := ox-cx, oy-cy, oz-cz
	a := dx*dx + dy*dy + dz*dz
	if a == 0 {
		return 0, false
	}
	b := 2 * (dx*lx + dy*ly + dz*lz)
	c := (lx*lx + ly*ly + lz*lz) - r*r

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return 0, false
	}
	sqrtDisc := math.Sqrt(discriminant)
	t0 := (-b - sqrtDisc) / (2 * a)
	t1 := (-b + sqrtDisc) / (2 * a)
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	if t0 < 0 {
		if t1 < 0 {
			return 0, false
		}
		return t1, true
	}
	return t0, true
}

// dotNormalized returns cos(angle) between dir and to, given |to| == dist.
func dotNormalized(dir, to fixedpoint.Vec3, dist fixedpoint.Scalar) float64 {
	dl := dir.Len().Float64()
	if dl == 0 || dist == 0 {
		return 1
	}
	dot := float64(dir.Dot(to))
	return dot / (dl * float64(fixedpoint.Scale) * dist.Float64() * float64(fixedpoint.Scale))
}

func applyDamage(target Candidate, dist fixedpoint.Scalar, dmg int32) Result {
	remaining := target.HP - dmg
	killed := remaining <= 0
	return Result{
		Hit:      true,
		Target:   target.Handle,
		Distance: dist,
		Damage:   dmg,
		Killed:   killed,
	}
}
