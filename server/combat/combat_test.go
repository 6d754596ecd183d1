package combat

import (
	"testing"

	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

func handle(i uint32) ecs.Handle { return ecs.NewHandle(i, 0) }

func TestResolveMeleeHitsInFrontTarget(t *testing.T) {
	r := New(DefaultTunables())
	attacker := handle(1)
	target := handle(2)
	req := Request{
		Attacker:  attacker,
		Kind:      Melee,
		Origin:    fixedpoint.Vec3{},
		Direction: fixedpoint.Vec3FromFloat64(0, 0, 1),
		Range:     fixedpoint.FromFloat64(3),
		ConeCos:   0.5,
		Damage:    10,
	}
	candidates := []Candidate{
		{Handle: target, Pos: fixedpoint.Vec3FromFloat64(0, 0, 2), Radius: fixedpoint.FromFloat64(0.5), Team: 1, HP: 100},
	}
	res := r.ResolveMelee(req, candidates)
	if !res.Hit || res.Target != target || res.Damage != 10 {
		t.Fatalf("expected a hit on target for 10 damage, got %+v", res)
	}
}

func TestResolveMeleeMissesOutsideCone(t *testing.T) {
	r := New(DefaultTunables())
	attacker := handle(1)
	target := handle(2)
	req := Request{
		Attacker:  attacker,
		Kind:      Melee,
		Origin:    fixedpoint.Vec3{},
		Direction: fixedpoint.Vec3FromFloat64(0, 0, 1),
		Range:     fixedpoint.FromFloat64(3),
		ConeCos:   0.9,
	}
	candidates := []Candidate{
		// Target is directly to the side, well outside a narrow forward cone.
		{Handle: target, Pos: fixedpoint.Vec3FromFloat64(2, 0, 0), Radius: fixedpoint.FromFloat64(0.5), HP: 100},
	}
	res := r.ResolveMelee(req, candidates)
	if res.Hit {
		t.Fatalf("expected no hit outside the cone, got %+v", res)
	}
}

func TestResolveMeleeSkipsSameTeamAndSelf(t *testing.T) {
	r := New(DefaultTunables())
	attacker := handle(1)
	req := Request{
		Attacker:     attacker,
		AttackerTeam: 1,
		Kind:         Melee,
		Origin:       fixedpoint.Vec3{},
		Direction:    fixedpoint.Vec3FromFloat64(0, 0, 1),
		Range:        fixedpoint.FromFloat64(3),
		ConeCos:      0.5,
	}
	candidates := []Candidate{
		{Handle: attacker, Pos: fixedpoint.Vec3FromFloat64(0, 0, 1), Team: 1, HP: 100},
		{Handle: handle(2), Pos: fixedpoint.Vec3FromFloat64(0, 0, 1), Team: 1, HP: 100},
	}
	res := r.ResolveMelee(req, candidates)
	if res.Hit {
		t.Fatalf("expected no hit (self and same-team excluded), got %+v", res)
	}
}

func TestResolveProjectileHitsAlongRay(t *testing.T) {
	r := New(DefaultTunables())
	target := handle(2)
	req := Request{
		Attacker:  handle(1),
		Kind:      Projectile,
		Origin:    fixedpoint.Vec3{},
		Direction: fixedpoint.Vec3FromFloat64(0, 0, 1),
		Range:     fixedpoint.FromFloat64(50),
		Damage:    20,
	}
	candidates := []Candidate{
		{Handle: target, Pos: fixedpoint.Vec3FromFloat64(0, 0, 10), Radius: fixedpoint.FromFloat64(0.5), Team: 1, HP: 100},
	}
	res := r.ResolveProjectile(req, candidates)
	if !res.Hit || res.Target != target || res.Damage != 20 {
		t.Fatalf("expected a hit on target along the ray, got %+v", res)
	}
}

func TestResolveProjectileMissesOffAxis(t *testing.T) {
	r := New(DefaultTunables())
	req := Request{
		Attacker:  handle(1),
		Kind:      Projectile,
		Origin:    fixedpoint.Vec3{},
		Direction: fixedpoint.Vec3FromFloat64(0, 0, 1),
		Range:     fixedpoint.FromFloat64(50),
	}
	candidates := []Candidate{
		{Handle: handle(2), Pos: fixedpoint.Vec3FromFloat64(10, 0, 10), Radius: fixedpoint.FromFloat64(0.5), HP: 100},
	}
	res := r.ResolveProjectile(req, candidates)
	if res.Hit {
		t.Fatalf("expected a miss for an off-axis sphere, got %+v", res)
	}
}

func TestResolveProjectileBeyondRangeMisses(t *testing.T) {
	r := New(DefaultTunables())
	req := Request{
		Attacker:  handle(1),
		Kind:      Projectile,
		Origin:    fixedpoint.Vec3{},
		Direction: fixedpoint.Vec3FromFloat64(0, 0, 1),
		Range:     fixedpoint.FromFloat64(5),
	}
	candidates := []Candidate{
		{Handle: handle(2), Pos: fixedpoint.Vec3FromFloat64(0, 0, 20), Radius: fixedpoint.FromFloat64(0.5), HP: 100},
	}
	res := r.ResolveProjectile(req, candidates)
	if res.Hit {
		t.Fatalf("expected a miss beyond range, got %+v", res)
	}
}

func TestApplyDamageReportsKill(t *testing.T) {
	r := New(DefaultTunables())
	target := handle(2)
	req := Request{
		Attacker:  handle(1),
		Kind:      Melee,
		Origin:    fixedpoint.Vec3{},
		Direction: fixedpoint.Vec3FromFloat64(0, 0, 1),
		Range:     fixedpoint.FromFloat64(3),
		ConeCos:   0.5,
		Damage:    50,
	}
	candidates := []Candidate{
		{Handle: target, Pos: fixedpoint.Vec3FromFloat64(0, 0, 1), Team: 1, HP: 30},
	}
	res := r.ResolveMelee(req, candidates)
	if !res.Hit || !res.Killed {
		t.Fatalf("expected a killing blow, got %+v", res)
	}
}
