package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/riftzone/zoneserver/server/components"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
	"github.com/riftzone/zoneserver/server/migration"
	"github.com/riftzone/zoneserver/server/wire"
)

// vec3FromRaw rebuilds a fixedpoint.Vec3 from the raw Scalar components a
// wire message carries as plain int64s.
func vec3FromRaw(x, y, z int64) fixedpoint.Vec3 {
	return fixedpoint.Vec3{X: fixedpoint.Scalar(x), Y: fixedpoint.Scalar(y), Z: fixedpoint.Scalar(z)}
}

// reliableEventMigrated tells a still-connected client its entity has been
// handed off to a neighbour zone; reconnecting it to that zone's listener
// is a transport-level concern outside this package (see DESIGN.md).
const reliableEventMigrated uint8 = 2

// stepMigrationTriggers is the Normal -> Notifying half of the
// MigrationStateMachine: any entity within MigrationTriggerMeters of a
// bordered edge, not itself a projected shadow, and not already
// mid-migration starts one. Candidates are collected before any state
// mutation since component tables forbid mutating while ranging over All.
func (z *Zone) stepMigrationTriggers(tick int64) {
	if len(z.conf.Neighbours) == 0 {
		return
	}
	type trigger struct {
		h    ecs.Handle
		peer components.ZoneID
	}
	var triggers []trigger
	z.bundle.Positions.All(func(h ecs.Handle, pos components.Position) bool {
		if et, ok := z.bundle.EntityTypes.Get(h); ok && et == components.EntityTypeProjected {
			return true
		}
		m, _ := z.bundle.Migrations.Get(h)
		if m.Phase != components.PhaseNormal {
			return true
		}
		for _, edge := range z.border.Edges(pos.Pos) {
			if peer, ok := z.conf.Neighbours[edge]; ok {
				triggers = append(triggers, trigger{h, peer})
				break
			}
		}
		return true
	})
	for _, t := range triggers {
		z.startMigration(t.h, t.peer)
	}
}

// startMigration begins a hand-off of h to peer: StartNotify locally, then
// a MIGRATE_REQ carrying the entity's full current state over the bus.
// Must run on the tick thread.
func (z *Zone) startMigration(h ecs.Handle, peer components.ZoneID) {
	m, _ := z.bundle.Migrations.Get(h)
	z.migrationEpoch++
	epoch := z.migrationEpoch
	if err := migration.StartNotify(&m, peer, epoch, time.Now(), MigrationTimeout); err != nil {
		z.log.Debug("migration start rejected", "entity", h, "peer", peer, "error", err)
		return
	}
	z.bundle.Migrations.Set(h, m)

	req := z.migrateStateOf(h, epoch)
	if _, err := z.bus.Enqueue(peer, uint8(wire.MsgMigrateReq), wire.EncodeMigrateEntityState(req)); err != nil {
		z.log.Warn("migrate req dropped, aborting migration", "entity", h, "peer", peer, "error", err)
		migration.Abort(&m)
		z.bundle.Migrations.Set(h, m)
		return
	}
	migrationsStarted.Inc()
	z.log.Info("migration notify sent", "entity", h, "peer", peer, "epoch", epoch)
}

// migrateStateOf gathers every component a peer zone needs to stand up its
// own copy of h.
func (z *Zone) migrateStateOf(h ecs.Handle, epoch uint32) wire.MigrateEntityState {
	pos, _ := z.bundle.Positions.Get(h)
	vel, _ := z.bundle.Velocities.Get(h)
	rot, _ := z.bundle.Rotations.Get(h)
	cs, _ := z.bundle.Combat.Get(h)
	player, _ := z.bundle.Players.Get(h)
	return wire.MigrateEntityState{
		Entity: uint32(h),
		Epoch:  epoch,
		X:      int64(pos.Pos.X), Y: int64(pos.Pos.Y), Z: int64(pos.Pos.Z),
		VX: int64(vel.Vel.X), VY: int64(vel.Vel.Y), VZ: int64(vel.Vel.Z),
		Yaw: rot.Yaw, Pitch: rot.Pitch,
		HP: cs.HP, MaxHP: cs.MaxHP,
		Team:     uint8(cs.Team),
		PlayerID: player.PlayerID,
		Username: player.Username,
	}
}

// applyMigrateState writes s's fields onto local handle h, without yet
// making it a live, simulated, AOI-visible entity.
func (z *Zone) applyMigrateState(h ecs.Handle, s wire.MigrateEntityState) {
	z.bundle.Positions.Set(h, components.Position{Pos: vec3FromRaw(s.X, s.Y, s.Z), Tick: z.currentTick})
	z.bundle.Velocities.Set(h, components.Velocity{Vel: vec3FromRaw(s.VX, s.VY, s.VZ)})
	z.bundle.Rotations.Set(h, components.Rotation{Yaw: s.Yaw, Pitch: s.Pitch})
	z.bundle.Combat.Set(h, components.CombatState{HP: s.HP, MaxHP: s.MaxHP, Team: components.Team(s.Team)})
	z.bundle.Bounds.Set(h, components.BoundingVolume{Radius: fixedpoint.FromFloat64(0.3), Height: fixedpoint.FromFloat64(1.8)})
	if s.PlayerID != (uuid.UUID{}) {
		z.bundle.Players.Set(h, components.PlayerInfo{PlayerID: s.PlayerID, Username: s.Username})
	}
}

// handleMigrateReq is the destination zone's side of Notifying: it stages
// an un-ticked placeholder carrying the offered state and acknowledges so
// the source can advance to Migrating. The placeholder gets no Inputs
// component, so stepMovement never iterates it: it stays un-simulated
// until MIGRATE_STATE confirms the hand-off. Must run on the tick thread.
func (z *Zone) handleMigrateReq(source components.ZoneID, req wire.MigrateEntityState) {
	key := remoteKey{Zone: source, Entity: req.Entity}
	h, ok := z.incoming[key]
	if !ok {
		h = z.bundle.Registry.Create()
		z.incoming[key] = h
	}
	z.applyMigrateState(h, req)
	z.bundle.Migrations.Set(h, components.MigrationState{
		Phase: components.PhaseMigrating, PeerZone: source, Epoch: req.Epoch,
	})

	ack := wire.MigrateAck{Entity: req.Entity, Epoch: req.Epoch}
	if _, err := z.bus.Enqueue(source, uint8(wire.MsgMigrateAck), wire.EncodeMigrateAck(ack)); err != nil {
		z.log.Warn("migrate ack dropped", "source", source, "entity", req.Entity, "error", err)
	}
}

// handleMigrateAck advances the source side from Notifying to Migrating
// once the destination has staged its placeholder, then sends the final
// authoritative state: the only thing still undecided before handoff is
// whatever drift accumulates between the offer and this confirmation.
// Must run on the tick thread.
func (z *Zone) handleMigrateAck(source components.ZoneID, ack wire.MigrateAck) {
	h := ecs.Handle(ack.Entity)
	m, ok := z.bundle.Migrations.Get(h)
	if !ok || m.Phase != components.PhaseNotifying || m.Epoch != ack.Epoch || m.PeerZone != source {
		return
	}
	if err := migration.BeginMigrating(&m, time.Now(), MigrationTimeout); err != nil {
		z.log.Warn("begin migrating rejected", "entity", h, "error", err)
		return
	}
	z.bundle.Migrations.Set(h, m)

	st := z.migrateStateOf(h, m.Epoch)
	if _, err := z.bus.Enqueue(source, uint8(wire.MsgMigrateState), wire.EncodeMigrateEntityState(st)); err != nil {
		z.log.Warn("migrate state dropped", "entity", h, "peer", source, "error", err)
	}
}

// handleMigrateState is the destination zone's finalization step: it takes
// the offered placeholder live (simulated, AOI-visible, spatially hashed)
// and confirms with MIGRATE_APPLIED. Must run on the tick thread.
func (z *Zone) handleMigrateState(source components.ZoneID, st wire.MigrateEntityState) {
	key := remoteKey{Zone: source, Entity: st.Entity}
	h, ok := z.incoming[key]
	if !ok {
		h = z.bundle.Registry.Create()
	}
	z.applyMigrateState(h, st)
	z.bundle.EntityTypes.Set(h, components.EntityTypeNormal)
	z.bundle.Migrations.Set(h, components.MigrationState{})
	z.hash.Insert(h, fixedpoint.Scalar(st.X), fixedpoint.Scalar(st.Z))
	bounds, _ := z.bundle.Bounds.Get(h)
	z.lagcomp.Record(h, z.currentTick, vec3FromRaw(st.X, st.Y, st.Z), bounds.Radius)
	delete(z.incoming, key)

	applied := wire.MigrateApplied{Entity: st.Entity, Epoch: st.Epoch}
	if _, err := z.bus.Enqueue(source, uint8(wire.MsgMigrateApplied), wire.EncodeMigrateApplied(applied)); err != nil {
		z.log.Warn("migrate applied dropped", "source", source, "entity", st.Entity, "error", err)
	}
	migrationsCompleted.Inc()
	z.log.Info("migration received", "source", source, "entity", h)
}

// handleMigrateApplied is the source side's Migrating -> HandedOff ->
// Cleanup -> Normal closeout: once the destination confirms it has taken
// over, the source destroys its own copy. A replayed confirmation for an
// already-applied epoch is a harmless no-op, matching Apply's idempotent
// contract. Must run on the tick thread.
func (z *Zone) handleMigrateApplied(ap wire.MigrateApplied) {
	h := ecs.Handle(ap.Entity)
	m, ok := z.bundle.Migrations.Get(h)
	if !ok {
		return
	}
	applied, err := migration.Apply(&m, ap.Epoch)
	if err != nil {
		z.log.Warn("migrate apply rejected", "entity", h, "error", err)
		return
	}
	z.bundle.Migrations.Set(h, m)
	if !applied {
		return
	}
	if err := migration.BeginCleanup(&m, time.Now(), MigrationTimeout); err != nil {
		z.log.Warn("begin cleanup rejected", "entity", h, "error", err)
		return
	}
	_ = migration.Complete(&m)

	if conn := z.connectionFor(h); conn != nil {
		ev := wire.ReliableEvent{Kind: reliableEventMigrated, Entity: ap.Entity, Tick: z.currentTick}
		_ = conn.session.SendReliable(wire.Envelope(wire.MsgReliableEvent, wire.EncodeReliableEvent(ev)))
	}
	z.hash.Remove(h)
	z.lagcomp.Forget(h)
	z.auraTrack.Forget(h)
	z.bundle.Destroy(h)
	z.log.Info("migration complete", "entity", h)
}
