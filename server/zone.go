package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riftzone/zoneserver/server/anticheat"
	"github.com/riftzone/zoneserver/server/aoi"
	"github.com/riftzone/zoneserver/server/aura"
	"github.com/riftzone/zoneserver/server/combat"
	"github.com/riftzone/zoneserver/server/components"
	"github.com/riftzone/zoneserver/server/crosszone"
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
	"github.com/riftzone/zoneserver/server/lagcomp"
	"github.com/riftzone/zoneserver/server/migration"
	"github.com/riftzone/zoneserver/server/movement"
	"github.com/riftzone/zoneserver/server/network"
	"github.com/riftzone/zoneserver/server/snapshot"
	"github.com/riftzone/zoneserver/server/spatial"
	"github.com/riftzone/zoneserver/server/store"
	"github.com/riftzone/zoneserver/server/wire"
)

// connection is the per-player transport/session bookkeeping a Zone keeps
// alongside its simulation entity. Unlike component tables, connections are
// not tick-thread exclusive: Session.Recv blocks on the network, so reads
// happen on a dedicated goroutine per connection that hands decoded
// messages back to the tick thread via Exec.
type connection struct {
	id      ConnID
	session network.Session
	entity  ecs.Handle
	cache   *snapshot.Cache
}

// remoteKey identifies an entity that belongs to another zone: either an
// aura projection or an in-flight migration placeholder. The Entity field
// is the originating zone's own handle, meaningful only as an opaque
// correlation id here — never reinterpreted as one of this zone's handles.
type remoteKey struct {
	Zone   components.ZoneID
	Entity uint32
}

// ExecFunc is a closure run with exclusive access to a Zone's component
// tables and subsystems, modeled on the teacher's World.Exec pattern: one
// goroutine drains transactions off a channel and everything else — network
// threads, the accept loop, the tick scheduler — talks to the zone only by
// enqueuing one of these and waiting on the returned channel.
type ExecFunc func(z *Zone)

type transaction struct {
	f    ExecFunc
	done chan struct{}
}

// Zone owns one shard of the simulated world: its component tables, every
// per-tick system, the set of live connections, and the bus to neighbouring
// zones. All mutation happens on the single goroutine started by Run; Exec
// is the only safe way in.
type Zone struct {
	conf Config
	log  *slog.Logger

	bundle    *components.Bundle
	hash      *spatial.Hash
	move      *movement.System
	cheat     *anticheat.Validator
	lagcomp   *lagcomp.Compensator
	combat    *combat.Resolver
	aoi       *aoi.Manager
	aura      *aura.Projector
	auraTrack *aura.Tracker
	border    *aura.Projector
	snapshots *snapshot.Builder
	bus       *crosszone.Bus
	admission *network.Admission
	whitelist *store.Whitelist
	ledger    *store.Ledger
	listener  network.Listener

	queue    chan transaction
	closing  chan struct{}
	running  sync.WaitGroup

	mu          sync.Mutex
	connections map[ConnID]*connection
	nextConnID  ConnID

	currentTick    int64
	migrationEpoch uint32

	// auraShadows and incoming both map a remote entity to the local
	// handle standing in for it; auraShadows are read-only AOI
	// participants (components.EntityTypeProjected), incoming are
	// un-ticked migration placeholders not yet handed off. Tick-thread
	// owned like every other component-adjacent state.
	auraShadows map[remoteKey]ecs.Handle
	incoming    map[remoteKey]ecs.Handle
}

// New constructs a Zone from conf. It opens the whitelist and ban ledger if
// paths are configured and, if conf.ListenAddress is non-empty, binds the
// configured (or default RakNet) Adapter; it does not start ticking or
// accepting connections, see Run.
func New(conf Config) (*Zone, error) {
	log := conf.Log
	if log == nil {
		log = slog.Default()
	}

	var wl *store.Whitelist
	if conf.WhitelistPath != "" {
		var err error
		wl, err = store.LoadWhitelist(conf.WhitelistPath)
		if err != nil {
			return nil, fmt.Errorf("server: load whitelist: %w", err)
		}
	}

	var ledger *store.Ledger
	var bans network.BanChecker
	if conf.LedgerPath != "" {
		var err error
		ledger, err = store.OpenLedger(conf.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("server: open ledger: %w", err)
		}
		bans = ledger
	}

	z := &Zone{
		conf:        conf,
		log:         log,
		bundle:      components.NewBundle(),
		hash:        spatial.New(),
		move:        movement.New(conf.MovementTunables, conf.Bounds),
		cheat:       anticheat.New(conf.AntiCheat, log),
		lagcomp:     lagcomp.New(LagCompensationRingSize, int64(MaxRewindMs/TickInterval)),
		combat:      combat.New(conf.Combat),
		aoi:         aoi.New(conf.AOI),
		aura:        aura.New(auraBoundsFrom(conf.Bounds), fixedpoint.FromFloat64(conf.AuraBuffer)),
		auraTrack:   aura.NewTracker(),
		border:      aura.New(auraBoundsFrom(conf.Bounds), fixedpoint.FromFloat64(MigrationTriggerMeters)),
		snapshots:   snapshot.NewBuilder(),
		bus:         crosszone.New(conf.ZoneID, 1024),
		admission:   network.NewAdmission(conf.AdmissionTunables, bans),
		whitelist:   wl,
		ledger:      ledger,
		queue:       make(chan transaction, 256),
		closing:     make(chan struct{}),
		connections: make(map[ConnID]*connection),
		auraShadows: make(map[remoteKey]ecs.Handle),
		incoming:    make(map[remoteKey]ecs.Handle),
	}

	for _, neighbour := range conf.Neighbours {
		z.bus.Register(neighbour)
	}

	if conf.ListenAddress != "" {
		adapter := conf.Adapter
		if adapter == nil {
			adapter = network.NewRakNetAdapter(log)
		}
		listener, err := adapter.Listen(conf.ListenAddress)
		if err != nil {
			return nil, fmt.Errorf("server: listen: %w", err)
		}
		z.listener = listener
	}

	return z, nil
}

// auraBoundsFrom narrows a movement.Bounds (which also carries a vertical
// extent, irrelevant to edge-of-zone projection) down to the horizontal
// rectangle aura.Projector checks proximity against.
func auraBoundsFrom(b movement.Bounds) aura.Bounds {
	return aura.Bounds{MinX: b.MinX, MaxX: b.MaxX, MinZ: b.MinZ, MaxZ: b.MaxZ}
}

// Run starts the transaction-handling goroutine, the tick scheduler, the
// accept loop (if a listener is configured) and the cross-zone bus's
// delivery loop. It blocks until ctx is cancelled, then drains in-flight
// work and returns.
func (z *Zone) Run(ctx context.Context, deliver crosszone.DeliverFunc) error {
	z.running.Add(1)
	go z.handleTransactions()

	busErr := make(chan error, 1)
	go func() { busErr <- z.bus.Run(ctx, deliver) }()

	if z.listener != nil {
		go z.acceptLoop(ctx)
	}

	sched := ticker{
		interval:     TickInterval,
		budget:       z.conf.TickBudget,
		degradeAfter: z.conf.DegradeAfterTicks,
		recoverAfter: z.conf.RecoverAfterTicks,
		log:          z.log,
	}
	go sched.tickLoop(z)

	<-ctx.Done()
	close(z.closing)
	z.running.Wait()
	return <-busErr
}

// Exec enqueues f to run with exclusive access to the zone's state and
// returns a channel closed once it has run.
func (z *Zone) Exec(f ExecFunc) <-chan struct{} {
	done := make(chan struct{})
	select {
	case z.queue <- transaction{f: f, done: done}:
	case <-z.closing:
		close(done)
	}
	return done
}

func (z *Zone) handleTransactions() {
	defer z.running.Done()
	for {
		select {
		case tx := <-z.queue:
			tx.f(z)
			close(tx.done)
		case <-z.closing:
			return
		}
	}
}

// acceptLoop accepts inbound sessions and spawns a per-connection handler.
// It never touches component tables directly: every effect it has on
// simulation state is routed through Exec.
func (z *Zone) acceptLoop(ctx context.Context) {
	for {
		session, err := z.listener.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				z.log.Warn("accept failed", "error", err)
				continue
			}
		}
		if z.admission.Check(session.RemoteAddr()) != network.Admit {
			_ = session.Close()
			continue
		}
		go z.handleConnection(ctx, session)
	}
}

// handleConnection performs the handshake, then loops decoding inbound
// frames and forwarding each as an Exec closure, until the session closes
// or ctx is cancelled.
func (z *Zone) handleConnection(ctx context.Context, session network.Session) {
	data, _, err := session.Recv(ctx)
	if err != nil {
		_ = session.Close()
		return
	}
	kind, body, err := wire.DecodeEnvelope(data)
	if err != nil || kind != wire.MsgHandshake {
		_ = session.Close()
		return
	}
	hs, err := wire.DecodeHandshake(body)
	if err != nil {
		_ = session.Close()
		return
	}
	if z.whitelist != nil && !z.whitelist.Allowed(hs.Username) {
		_ = session.Close()
		return
	}

	var conn *connection
	<-z.Exec(func(z *Zone) {
		conn = z.spawnPlayer(session, hs)
	})
	if z.ledger != nil {
		_ = z.ledger.Append(store.AuditEvent{Address: session.RemoteAddr(), Kind: "connect", Detail: hs.Username})
	}
	defer func() {
		if z.ledger != nil {
			_ = z.ledger.Append(store.AuditEvent{Address: session.RemoteAddr(), Kind: "disconnect", Detail: hs.Username})
		}
		<-z.Exec(func(z *Zone) { z.disconnect(conn.id) })
	}()

	for {
		data, _, err := session.Recv(ctx)
		if err != nil {
			return
		}
		kind, body, err := wire.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		switch kind {
		case wire.MsgClientInput:
			ci, err := wire.DecodeClientInput(body)
			if err != nil {
				continue
			}
			z.Exec(func(z *Zone) { z.applyInput(conn.id, ci) })
		case wire.MsgReliableEvent:
			ev, err := wire.DecodeReliableEvent(body)
			if err != nil || ev.Kind != reliableEventAttack {
				continue
			}
			z.Exec(func(z *Zone) { z.handleAttackEvent(conn.id, ev) })
		}
	}
}

// spawnPlayer creates an entity and registers a connection for session.
// Must run on the tick thread.
func (z *Zone) spawnPlayer(session network.Session, hs wire.Handshake) *connection {
	h := z.bundle.Registry.Create()
	z.bundle.Positions.Set(h, components.Position{Tick: z.currentTick})
	z.bundle.Velocities.Set(h, components.Velocity{})
	z.bundle.Rotations.Set(h, components.Rotation{})
	z.bundle.Combat.Set(h, components.CombatState{HP: 100, MaxHP: 100})
	z.bundle.Bounds.Set(h, components.BoundingVolume{Radius: fixedpoint.FromFloat64(0.3), Height: fixedpoint.FromFloat64(1.8)})
	z.bundle.AntiCheat.Set(h, components.AntiCheatState{})
	z.bundle.EntityTypes.Set(h, components.EntityTypeNormal)

	z.mu.Lock()
	z.nextConnID++
	id := z.nextConnID
	z.mu.Unlock()

	z.bundle.Players.Set(h, components.PlayerInfo{PlayerID: playerUUID(hs), ConnID: id, Username: hs.Username})
	z.bundle.Network.Set(h, components.NetworkState{ConnID: id})

	conn := &connection{id: id, session: session, entity: h, cache: snapshot.NewCache(SnapshotBaselineHistory)}
	z.mu.Lock()
	z.connections[id] = conn
	z.mu.Unlock()
	z.hash.Insert(h, 0, 0)
	connectedPlayers.Inc()
	return conn
}

func playerUUID(hs wire.Handshake) uuid.UUID {
	if hs.PlayerID != (uuid.UUID{}) {
		return hs.PlayerID
	}
	return uuid.New()
}

// disconnect tears down a connection's entity and bookkeeping. Must run on
// the tick thread.
func (z *Zone) disconnect(id ConnID) {
	z.mu.Lock()
	conn, ok := z.connections[id]
	if ok {
		delete(z.connections, id)
	}
	z.mu.Unlock()
	if !ok {
		return
	}
	z.hash.Remove(conn.entity)
	z.lagcomp.Forget(conn.entity)
	z.auraTrack.Forget(conn.entity)
	z.bundle.Destroy(conn.entity)
	connectedPlayers.Dec()
	_ = conn.session.Close()
}

// connectionFor finds the connection driving h, if any. Used by migration
// and anti-cheat handlers that need to reach a specific entity's session
// rather than iterating every connection. Safe to call off the tick thread.
func (z *Zone) connectionFor(h ecs.Handle) *connection {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, conn := range z.connections {
		if conn.entity == h {
			return conn
		}
	}
	return nil
}

// applyInput merges one decoded ClientInput into the owning entity's input
// component, discarding stale/rate-limited/out-of-order packets per the
// anti-cheat sequence and rate checks. Must run on the tick thread.
func (z *Zone) applyInput(id ConnID, ci wire.ClientInput) {
	z.mu.Lock()
	conn, ok := z.connections[id]
	z.mu.Unlock()
	if !ok {
		return
	}
	cheatState, _ := z.bundle.AntiCheat.Get(conn.entity)
	st := toAnticheatState(cheatState)
	if v := z.cheat.CheckSequence(&st, ci.Seq); v == anticheat.DiscardStale {
		return
	}
	if v := z.cheat.CheckRate(&st, time.Now()); v == anticheat.Drop {
		z.bundle.AntiCheat.Set(conn.entity, fromAnticheatState(st))
		return
	}
	st.LastSeq = ci.Seq
	z.bundle.AntiCheat.Set(conn.entity, fromAnticheatState(st))

	z.bundle.Inputs.Set(conn.entity, components.InputState{
		Flags:        components.InputFlag(ci.Flags),
		Yaw:          ci.Yaw,
		Pitch:        ci.Pitch,
		Seq:          ci.Seq,
		ClientTickMs: ci.ClientTickMs,
		TargetEntity: ecs.Handle(ci.TargetEntity),
		ReceivedTick: z.currentTick,
	})

	if net, ok := z.bundle.Network.Get(conn.entity); ok {
		net.LastAckedBaselineTick = ci.AckBaselineTick
		z.bundle.Network.Set(conn.entity, net)
		conn.cache.Ack(ci.AckBaselineTick)
	}
}

// toAnticheatState and fromAnticheatState bridge anticheat.State (a
// standalone copy so the anticheat package stays free of a dependency on
// components) and components.AntiCheatState (the table row a Zone actually
// stores), which differ only in the name of the input-history field.
func toAnticheatState(c components.AntiCheatState) anticheat.State {
	return anticheat.State{
		LastValidPos:   c.LastValidPos,
		LastValidTick:  c.LastValidTick,
		Strikes:        c.Strikes,
		SuspicionScore: c.SuspicionScore,
		MaxObserved:    c.MaxObserved,
		InputTimes:     c.InputWindow,
		LastSeq:        c.LastSeq,
	}
}

func fromAnticheatState(s anticheat.State) components.AntiCheatState {
	return components.AntiCheatState{
		LastValidPos:   s.LastValidPos,
		LastValidTick:  s.LastValidTick,
		Strikes:        s.Strikes,
		SuspicionScore: s.SuspicionScore,
		MaxObserved:    s.MaxObserved,
		InputWindow:    s.InputTimes,
		LastSeq:        s.LastSeq,
	}
}

// reliableEventAttack tags a ReliableEvent carrying an attack request: its
// single Data byte is 0 for melee, 1 for projectile; range and damage come
// from the configured combat Tunables rather than the wire, and direction
// is derived from the attacker's own last accepted input rotation, so an
// attack message never needs to carry more than the attack kind.
const reliableEventAttack uint8 = 1

// handleAttackEvent turns a received attack ReliableEvent into a combat
// Request using the attacker's current position and input rotation, then
// resolves it. Must run on the tick thread.
func (z *Zone) handleAttackEvent(id ConnID, ev wire.ReliableEvent) {
	z.mu.Lock()
	conn, ok := z.connections[id]
	z.mu.Unlock()
	if !ok {
		return
	}
	pos, ok := z.bundle.Positions.Get(conn.entity)
	if !ok {
		return
	}
	in, _ := z.bundle.Inputs.Get(conn.entity)
	combatState, _ := z.bundle.Combat.Get(conn.entity)

	kind := combat.Melee
	if len(ev.Data) > 0 && ev.Data[0] == 1 {
		kind = combat.Projectile
	}
	req := combat.Request{
		Attacker:     conn.entity,
		AttackerTeam: uint8(combatState.Team),
		Kind:         kind,
		Origin:       pos.Pos,
		Direction:    directionFromYaw(in.Yaw),
		Range:        z.combat.Tunables.DefaultMeleeRange,
		ConeCos:      math.Cos(z.combat.Tunables.DefaultMeleeConeDeg / 2 * math.Pi / 180),
		Damage:       z.combat.Tunables.DefaultMeleeDamage,
	}
	if kind == combat.Projectile {
		req.Damage = z.combat.Tunables.DefaultProjectileDamage
	}
	z.Attack(ev.Tick, req)
}

// directionFromYaw converts a horizontal look rotation (radians, 0 facing
// +Z) into a unit direction vector, the same convention movement.System
// uses to turn input flags into a world-space heading.
func directionFromYaw(yaw float32) fixedpoint.Vec3 {
	sin, cos := math.Sincos(float64(yaw))
	return fixedpoint.Vec3FromFloat64(-sin, 0, cos)
}

// Attack resolves a melee or projectile request issued by attacker against
// every combat-tracked entity in range, rewound to clientTick (the server
// tick the attacker's client last rendered, carried in the reliable event
// that triggered this call) so a fast-moving target is judged against
// where the attacker actually saw it rather than its current position.
// Exported so network message handling (wired the same way applyInput is)
// can call it via Exec; kept here rather than in package combat because
// gathering candidates requires the component tables and the lag
// compensator a Resolver does not own.
func (z *Zone) Attack(clientTick int64, req combat.Request) combat.Result {
	var candidates []combat.Candidate
	z.bundle.Combat.All(func(h ecs.Handle, c components.CombatState) bool {
		if c.IsDead || h == req.Attacker {
			return true
		}
		snap, ok := z.lagcomp.Rewind(h, clientTick, z.currentTick)
		if !ok {
			return true
		}
		candidates = append(candidates, combat.Candidate{
			Handle: h, Pos: snap.Pos, Radius: snap.Radius, Team: uint8(c.Team), HP: c.HP, IsDead: c.IsDead,
		})
		return true
	})
	result := z.combat.Resolve(req, candidates)
	if result.Hit {
		if c, ok := z.bundle.Combat.Get(result.Target); ok {
			c.HP -= result.Damage
			c.IsDead = result.Killed
			c.LastAttacker = req.Attacker
			c.LastAttackTick = z.currentTick
			z.bundle.Combat.Set(result.Target, c)
		}
	}
	return result
}
