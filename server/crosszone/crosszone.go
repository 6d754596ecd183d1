// Package crosszone implements the ordered, at-least-once inter-zone
// message channel entity migration, aura projection, and combat
// confirmations ride on. Each destination zone gets its own bounded,
// non-blocking outbound queue — a full queue signals backpressure to the
// caller immediately rather than stalling the tick thread, the same
// "never block the simulation thread on network" discipline as the
// teacher's World.Exec channel handoff — and a pool of errgroup-managed
// workers drains every queue concurrently. Receivers dedup by
// (source zone, sequence) using a fixed-size window, since at-least-once
// delivery means any message may legitimately arrive more than once.
// Both the dedup window key and the per-message payload checksum (catching
// truncated or corrupted deliveries before they reach a handler) use
// cespare/xxhash, already part of the dependency graph the pack's
// prometheus client pulls in.
package crosszone

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/riftzone/zoneserver/server/components"
)

// ErrQueueFull is returned by Enqueue when the destination zone's outbound
// queue is at capacity; the caller decides whether to retry, drop, or
// escalate, the bus never blocks to make room.
var ErrQueueFull = errors.New("crosszone: outbound queue full")

// ErrChecksumMismatch is returned by Receive when a message's payload
// doesn't match its carried checksum.
var ErrChecksumMismatch = errors.New("crosszone: payload checksum mismatch")

// Message is one inter-zone delivery.
type Message struct {
	SourceZone components.ZoneID
	DestZone   components.ZoneID
	Seq        uint64
	Kind       uint8
	Payload    []byte
	Checksum   uint64
}

func checksum(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

// dedupWindow is a fixed-size, slot-indexed record of the most recent
// sequence numbers seen per sender, keyed by seq % size. It trades perfect
// dedup (a sequence number can recur after wrapping past the window) for
// O(1) bounded memory, acceptable because the window is sized well beyond
// any realistic reordering depth for a reliable transport.
type dedupWindow struct {
	size int
	slotSeq  []uint64
	slotHash []uint64
	filled   []bool
}

func newDedupWindow(size int) *dedupWindow {
	return &dedupWindow{
		size:     size,
		slotSeq:  make([]uint64, size),
		slotHash: make([]uint64, size),
		filled:   make([]bool, size),
	}
}

// seenOrMark returns true if (source, seq) was already recorded, and
// records it (evicting whatever previously occupied that slot) when it was
// not.
func (d *dedupWindow) seenOrMark(source components.ZoneID, seq uint64) bool {
	slot := int(seq % uint64(d.size))
	h := dedupHash(source, seq)
	if d.filled[slot] && d.slotSeq[slot] == seq && d.slotHash[slot] == h {
		return true
	}
	d.slotSeq[slot] = seq
	d.slotHash[slot] = h
	d.filled[slot] = true
	return false
}

func dedupHash(zone components.ZoneID, seq uint64) uint64 {
	var buf [10]byte
	buf[0] = byte(zone)
	buf[1] = byte(zone >> 8)
	for i := 0; i < 8; i++ {
		buf[2+i] = byte(seq >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

// DeliverFunc performs the actual network send for one message, e.g. over
// a network.Adapter's reliable channel.
type DeliverFunc func(ctx context.Context, msg Message) error

// Bus is the outbound hub for one zone: it assigns per-destination
// sequence numbers, queues messages per destination, and dedups inbound
// confirmations on the receiving side.
type Bus struct {
	self     components.ZoneID
	capacity int

	mu      sync.Mutex
	queues  map[components.ZoneID]chan Message
	seqOut  map[components.ZoneID]uint64
	dedupIn map[components.ZoneID]*dedupWindow
}

// New creates a Bus for zone self with the given per-destination queue
// capacity.
func New(self components.ZoneID, capacity int) *Bus {
	return &Bus{
		self:     self,
		capacity: capacity,
		queues:   make(map[components.ZoneID]chan Message),
		seqOut:   make(map[components.ZoneID]uint64),
		dedupIn:  make(map[components.ZoneID]*dedupWindow),
	}
}

// Register pre-creates the outbound queue for dest, so Run picks it up even
// if the first Enqueue to dest happens after Run has already started.
// Callers that know the zone topology upfront (every neighbour from the
// aura border map, say) should Register each neighbour before calling Run.
func (b *Bus) Register(dest components.ZoneID) {
	b.queueFor(dest)
}

func (b *Bus) queueFor(dest components.ZoneID) chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[dest]
	if !ok {
		q = make(chan Message, b.capacity)
		b.queues[dest] = q
	}
	return q
}

// Enqueue assigns the next sequence number for dest and places the message
// on its outbound queue without blocking. It returns ErrQueueFull if the
// queue is already at capacity.
func (b *Bus) Enqueue(dest components.ZoneID, kind uint8, payload []byte) (Message, error) {
	b.mu.Lock()
	seq := b.seqOut[dest] + 1
	b.seqOut[dest] = seq
	b.mu.Unlock()

	msg := Message{
		SourceZone: b.self,
		DestZone:   dest,
		Seq:        seq,
		Kind:       kind,
		Payload:    payload,
		Checksum:   checksum(payload),
	}

	select {
	case b.queueFor(dest) <- msg:
		return msg, nil
	default:
		return Message{}, ErrQueueFull
	}
}

// Run drains every currently registered destination queue concurrently
// until ctx is cancelled or deliver returns an error, at which point every
// worker is stopped and the first error is returned. New destinations that
// appear after Run starts (via Enqueue) are not picked up until the next
// Run call; callers that add neighbours dynamically should call Run again
// after zone topology changes.
func (b *Bus) Run(ctx context.Context, deliver DeliverFunc) error {
	b.mu.Lock()
	queues := make([]chan Message, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		q := q
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case msg := <-q:
					if err := deliver(gctx, msg); err != nil {
						return err
					}
				}
			}
		})
	}
	return g.Wait()
}

// windowSize is the dedup window's per-sender slot count; comfortably
// larger than any plausible reorder/replay depth on a reliable channel.
const windowSize = 4096

// Receive validates and dedups an inbound message. accept is false (with a
// nil error) when the message is a harmless replay of one already
// processed; the caller must not re-apply its effect.
func (b *Bus) Receive(msg Message) (accept bool, err error) {
	if checksum(msg.Payload) != msg.Checksum {
		return false, ErrChecksumMismatch
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.dedupIn[msg.SourceZone]
	if !ok {
		w = newDedupWindow(windowSize)
		b.dedupIn[msg.SourceZone] = w
	}
	if w.seenOrMark(msg.SourceZone, msg.Seq) {
		return false, nil
	}
	return true, nil
}

// LocalRouter wires more than one zone's buses together within a single
// process: every zone registers the handler that applies an inbound
// message for it, and Deliver (used as the DeliverFunc passed to each
// zone's Run) looks the destination up and calls straight into it, with no
// real transport in between. A real multi-process deployment instead gives
// each Zone.Run a DeliverFunc backed by a concrete transport client; this
// is the in-process stand-in used for local development and deterministic
// tests, the same role the in-memory Session pair plays for the
// client-facing Adapter.
type LocalRouter struct {
	mu       sync.Mutex
	handlers map[components.ZoneID]DeliverFunc
}

// NewLocalRouter creates an empty LocalRouter.
func NewLocalRouter() *LocalRouter {
	return &LocalRouter{handlers: make(map[components.ZoneID]DeliverFunc)}
}

// Register associates zone with the function that applies an inbound
// message destined for it, typically a Zone's DeliverInbound method.
func (r *LocalRouter) Register(zone components.ZoneID, handle DeliverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[zone] = handle
}

// Deliver implements DeliverFunc by dispatching msg to whichever zone's
// handler was registered for msg.DestZone.
func (r *LocalRouter) Deliver(ctx context.Context, msg Message) error {
	r.mu.Lock()
	handle, ok := r.handlers[msg.DestZone]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("crosszone: no local handler registered for zone %v", msg.DestZone)
	}
	return handle(ctx, msg)
}
