package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/riftzone/zoneserver/server/anticheat"
	"github.com/riftzone/zoneserver/server/components"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
	"github.com/riftzone/zoneserver/server/migration"
	"github.com/riftzone/zoneserver/server/movement"
	"github.com/riftzone/zoneserver/server/snapshot"
	"github.com/riftzone/zoneserver/server/wire"
)

// ticker drives a Zone's fixed-rate simulation loop. It samples tick
// duration the same way the teacher's own World ticker does (a rolling
// average over a small sample window, compared against a warning
// threshold) but generalises the response from "log a warning" to
// "degrade snapshot QoS, and recover once the overrun clears with
// hysteresis", per the wider tick-scheduling contract a zone server needs
// that a single-player world tick loop does not.
type ticker struct {
	interval     time.Duration
	budget       time.Duration
	degradeAfter int
	recoverAfter int
	log          *slog.Logger
}

const severeOverrun = 20 * time.Millisecond

// tickLoop runs until z.closing is closed, calling Exec(z.tick) once per
// interval and tracking consecutive over/under-budget ticks for QoS
// hysteresis.
func (t ticker) tickLoop(z *Zone) {
	tc := time.NewTicker(t.interval)
	defer tc.Stop()

	var overrunStreak, inBudgetStreak int
	degraded := false
	normalAOI := z.conf.AOI
	degradedAOI := normalAOI
	degradedAOI.MidRateHz = max(1, normalAOI.MidRateHz/2)
	degradedAOI.FarRateHz = max(1, normalAOI.FarRateHz/2)

	for {
		select {
		case <-tc.C:
			start := time.Now()
			<-z.Exec(func(z *Zone) { z.tick() })
			duration := time.Since(start)
			tickDuration.Observe(duration.Seconds())

			if duration > t.budget {
				overrunStreak++
				inBudgetStreak = 0
			} else {
				inBudgetStreak++
				overrunStreak = 0
			}
			if duration > severeOverrun {
				t.log.Warn("tick severely overran budget", "duration", duration, "budget", t.budget)
				z.Exec(func(z *Zone) { z.skipOneFarSlot() })
			}
			if !degraded && overrunStreak >= t.degradeAfter {
				degraded = true
				qosDegradeEvents.Inc()
				z.Exec(func(z *Zone) { z.aoi.Tunables = degradedAOI })
				t.log.Warn("degrading snapshot QoS", "consecutive_overruns", overrunStreak)
			} else if degraded && inBudgetStreak >= t.recoverAfter {
				degraded = false
				z.Exec(func(z *Zone) { z.aoi.Tunables = normalAOI })
				t.log.Info("snapshot QoS recovered")
			}
		case <-z.closing:
			return
		}
	}
}

// skipOneFarSlot is called for every tick that runs longer than
// severeOverrun. It changes nothing: no Far-tier refresh is skipped, and
// send rates drop only once degradeAfter consecutive overruns switch the
// zone to the degraded AOI tunables.
func (z *Zone) skipOneFarSlot() {
	_ = z
}

// tick advances the whole simulation by one fixed timestep: movement and
// anti-cheat validation, border-crossing migration triggers, migration
// timeout sweeps, aura projection, and finally AOI-gated snapshot delivery
// to every connection. Must run on the tick thread (only ever called via
// Exec).
func (z *Zone) tick() {
	z.currentTick++
	tick := z.currentTick

	z.stepMovement(tick)
	z.stepMigrationTriggers(tick)
	z.sweepMigrations(tick)
	z.stepAura()
	z.sendSnapshots(tick)
}

func (z *Zone) stepMovement(tick int64) {
	z.bundle.Inputs.All(func(h ecs.Handle, in components.InputState) bool {
		if m, ok := z.bundle.Migrations.Get(h); ok && m.Phase != components.PhaseNormal {
			return true
		}
		pos, ok := z.bundle.Positions.Get(h)
		if !ok {
			return true
		}
		vel, _ := z.bundle.Velocities.Get(h)
		bounds, _ := z.bundle.Bounds.Get(h)

		neighbourHandles := z.hash.Query(pos.Pos.X, pos.Pos.Z, bounds.Radius*2, nil)
		neighbours := make([]movement.Neighbour, 0, len(neighbourHandles))
		for _, nh := range neighbourHandles {
			if nh == h {
				continue
			}
			npos, ok := z.bundle.Positions.Get(nh)
			if !ok {
				continue
			}
			nb, _ := z.bundle.Bounds.Get(nh)
			neighbours = append(neighbours, movement.Neighbour{Handle: nh, Pos: npos.Pos, Radius: nb.Radius})
		}

		newPos, newVel, _ := z.move.Step(pos.Pos, vel.Vel, movement.Flag(in.Flags), in.Yaw, bounds.Radius, neighbours)

		cheat, _ := z.bundle.AntiCheat.Get(h)
		st := toAnticheatState(cheat)
		sprint := in.Flags&components.InputSprint != 0
		switch z.cheat.CheckMovement(&st, fmt.Sprintf("%d", uint32(h)), "", newPos, tick, sprint) {
		case anticheat.SnapBack:
			anticheatVerdicts.WithLabelValues("snap_back").Inc()
			newPos = st.LastValidPos
			newVel = fixedpoint.Vec3{}
			if conn := z.connectionFor(h); conn != nil {
				sc := wire.ServerCorrection{
					Entity: uint32(h), Tick: tick,
					X: int64(newPos.X), Y: int64(newPos.Y), Z: int64(newPos.Z),
				}
				_ = conn.session.SendReliable(wire.Envelope(wire.MsgServerCorrection, wire.EncodeServerCorrection(sc)))
			}
		case anticheat.Disconnect:
			anticheatVerdicts.WithLabelValues("disconnect").Inc()
			z.markForDisconnect(h)
		}
		z.cheat.Decay(&st)
		z.bundle.AntiCheat.Set(h, fromAnticheatState(st))

		z.bundle.Positions.Set(h, components.Position{Pos: newPos, Tick: tick})
		z.bundle.Velocities.Set(h, components.Velocity{Vel: newVel})
		z.hash.Update(h, pos.Pos.X, pos.Pos.Z, newPos.X, newPos.Z)
		z.lagcomp.Record(h, tick, newPos, bounds.Radius)
		return true
	})
}

// reliableEventDisconnect carries the human-readable reason a connection is
// being forcibly closed, so the client can show it rather than treating the
// close as an unexplained drop.
const reliableEventDisconnect uint8 = 3

// markForDisconnect sends a reliable disconnect-reason frame for a
// disconnect-worthy anti-cheat verdict, then closes the connection.
func (z *Zone) markForDisconnect(h ecs.Handle) {
	conn := z.connectionFor(h)
	if conn == nil {
		return
	}
	ev := wire.ReliableEvent{
		Kind: reliableEventDisconnect, Entity: uint32(h), Tick: z.currentTick,
		Data: []byte("anti-cheat: movement violation"),
	}
	_ = conn.session.SendReliable(wire.Envelope(wire.MsgReliableEvent, wire.EncodeReliableEvent(ev)))
	_ = conn.session.Close()
}

func (z *Zone) sweepMigrations(tick int64) {
	now := time.Now()
	z.bundle.Migrations.All(func(h ecs.Handle, m components.MigrationState) bool {
		if m.Phase == components.PhaseNormal {
			return true
		}
		if migration.TimedOut(&m, now) {
			migration.Abort(&m)
			migrationsAborted.Inc()
			z.bundle.Migrations.Set(h, m)
		}
		return true
	})
}

// stepAura batches one AURA_UPDATE per neighbour zone, carrying every
// locally-simulated entity currently within that neighbour's projection
// buffer plus a single Active:false record for each entity that just left
// it, so the neighbour can materialize, refresh, or drop its
// EntityTypeProjected shadow without a separate message per entity.
// Projected shadows never themselves re-project (no shadow-of-a-shadow).
func (z *Zone) stepAura() {
	if len(z.conf.Neighbours) == 0 {
		return
	}
	batches := make(map[components.ZoneID][]wire.ProjectedState)
	z.bundle.Positions.All(func(h ecs.Handle, pos components.Position) bool {
		if et, ok := z.bundle.EntityTypes.Get(h); ok && et == components.EntityTypeProjected {
			return true
		}
		if m, _ := z.bundle.Migrations.Get(h); m.Phase != components.PhaseNormal {
			return true
		}
		targets := z.aura.Targets(pos.Pos, z.conf.Neighbours)
		_, ended := z.auraTrack.Update(h, targets)
		if len(targets) == 0 && len(ended) == 0 {
			return true
		}
		active := z.projectedStateOf(h, pos)
		for _, zoneID := range targets {
			batches[zoneID] = append(batches[zoneID], active)
		}
		gone := active
		gone.Active = false
		for _, zoneID := range ended {
			batches[zoneID] = append(batches[zoneID], gone)
		}
		return true
	})
	for zoneID, states := range batches {
		upd := wire.AuraUpdate{SourceTick: z.currentTick, States: states}
		if _, err := z.bus.Enqueue(zoneID, uint8(wire.MsgAuraUpdate), wire.EncodeAuraUpdate(upd)); err != nil {
			z.log.Warn("aura update dropped", "dest", zoneID, "error", err)
		}
	}
}

// projectedStateOf builds the compact read-only record a neighbour needs to
// materialize or refresh h as a shadow entity.
func (z *Zone) projectedStateOf(h ecs.Handle, pos components.Position) wire.ProjectedState {
	rot, _ := z.bundle.Rotations.Get(h)
	cs, _ := z.bundle.Combat.Get(h)
	return wire.ProjectedState{
		Entity: uint32(h), Active: true,
		X: int64(pos.Pos.X), Y: int64(pos.Pos.Y), Z: int64(pos.Pos.Z),
		Yaw: rot.Yaw, Pitch: rot.Pitch,
		HP: cs.HP, MaxHP: cs.MaxHP,
	}
}

// applyAuraUpdate materializes, refreshes, or drops the EntityTypeProjected
// shadows a neighbour zone reports for one AURA_UPDATE batch. A shadow
// never receives Inputs, Migrations, or AntiCheat components: it is a pure
// replication target, never simulated and never itself eligible to trigger
// a migration. Must run on the tick thread.
func (z *Zone) applyAuraUpdate(source components.ZoneID, upd wire.AuraUpdate) {
	for _, s := range upd.States {
		key := remoteKey{Zone: source, Entity: s.Entity}
		if !s.Active {
			if h, ok := z.auraShadows[key]; ok {
				z.hash.Remove(h)
				z.bundle.Destroy(h)
				delete(z.auraShadows, key)
			}
			continue
		}
		h, ok := z.auraShadows[key]
		pos := vec3FromRaw(s.X, s.Y, s.Z)
		if !ok {
			h = z.bundle.Registry.Create()
			z.auraShadows[key] = h
			z.bundle.EntityTypes.Set(h, components.EntityTypeProjected)
			z.bundle.Bounds.Set(h, components.BoundingVolume{Radius: fixedpoint.FromFloat64(0.3), Height: fixedpoint.FromFloat64(1.8)})
			z.hash.Insert(h, pos.X, pos.Z)
		} else if old, ok := z.bundle.Positions.Get(h); ok {
			z.hash.Update(h, old.Pos.X, old.Pos.Z, pos.X, pos.Z)
		}
		z.bundle.Positions.Set(h, components.Position{Pos: pos, Tick: z.currentTick})
		z.bundle.Rotations.Set(h, components.Rotation{Yaw: s.Yaw, Pitch: s.Pitch})
		z.bundle.Combat.Set(h, components.CombatState{HP: s.HP, MaxHP: s.MaxHP})
	}
}

func (z *Zone) sendSnapshots(tick int64) {
	z.mu.Lock()
	conns := make([]*connection, 0, len(z.connections))
	for _, c := range z.connections {
		conns = append(conns, c)
	}
	z.mu.Unlock()

	for _, conn := range conns {
		viewerPos, ok := z.bundle.Positions.Get(conn.entity)
		if !ok {
			continue
		}
		var due []snapshot.EntitySnapshot
		z.bundle.Positions.All(func(h ecs.Handle, pos components.Position) bool {
			distSq := pos.Pos.Sub(viewerPos.Pos).LenSqXZ()
			if _, ok := z.aoi.Due(conn.entity, h, distSq, tick); !ok {
				return true
			}
			due = append(due, z.entitySnapshotOf(h, pos))
			return true
		})
		data := z.snapshots.Build(conn.cache, tick, due)
		snapshotBytes.Observe(float64(len(data)))
		_ = conn.session.SendUnreliable(wire.Envelope(wire.MsgSnapshot, data))
	}
}

func (z *Zone) entitySnapshotOf(h ecs.Handle, pos components.Position) snapshot.EntitySnapshot {
	vel, _ := z.bundle.Velocities.Get(h)
	rot, _ := z.bundle.Rotations.Get(h)
	combat, _ := z.bundle.Combat.Get(h)
	etype, _ := z.bundle.EntityTypes.Get(h)
	return snapshot.EntitySnapshot{
		Handle:     h,
		Pos:        pos.Pos,
		Rot:        rot,
		Vel:        vel.Vel,
		HP:         combat.HP,
		MaxHP:      combat.MaxHP,
		EntityType: etype,
	}
}

