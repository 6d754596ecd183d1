package server

import (
	"context"

	"github.com/riftzone/zoneserver/server/crosszone"
	"github.com/riftzone/zoneserver/server/wire"
)

// DeliverInbound is the DeliverFunc a Zone hands to whatever transport (or,
// for local development and tests, a crosszone.LocalRouter) carries
// messages between zones. It dedups/validates msg off the tick thread, then
// hops onto it via Exec to apply the effect: every handler below assumes
// exclusive access to the component tables.
func (z *Zone) DeliverInbound(ctx context.Context, msg crosszone.Message) error {
	accept, err := z.bus.Receive(msg)
	if err != nil {
		return err
	}
	if !accept {
		return nil
	}
	<-z.Exec(func(z *Zone) { z.applyCrossZoneMessage(msg) })
	return nil
}

// applyCrossZoneMessage decodes and applies one accepted inter-zone
// message. A decode failure is logged and dropped rather than propagated,
// the same "never let one bad message wedge the bus worker" discipline
// z.handleConnection already uses for malformed client frames. Must run on
// the tick thread.
func (z *Zone) applyCrossZoneMessage(msg crosszone.Message) {
	switch wire.MsgType(msg.Kind) {
	case wire.MsgMigrateReq:
		req, err := wire.DecodeMigrateEntityState(msg.Payload)
		if err != nil {
			z.log.Warn("malformed migrate req", "source", msg.SourceZone, "error", err)
			return
		}
		z.handleMigrateReq(msg.SourceZone, req)
	case wire.MsgMigrateAck:
		ack, err := wire.DecodeMigrateAck(msg.Payload)
		if err != nil {
			z.log.Warn("malformed migrate ack", "source", msg.SourceZone, "error", err)
			return
		}
		z.handleMigrateAck(msg.SourceZone, ack)
	case wire.MsgMigrateState:
		st, err := wire.DecodeMigrateEntityState(msg.Payload)
		if err != nil {
			z.log.Warn("malformed migrate state", "source", msg.SourceZone, "error", err)
			return
		}
		z.handleMigrateState(msg.SourceZone, st)
	case wire.MsgMigrateApplied:
		ap, err := wire.DecodeMigrateApplied(msg.Payload)
		if err != nil {
			z.log.Warn("malformed migrate applied", "source", msg.SourceZone, "error", err)
			return
		}
		z.handleMigrateApplied(ap)
	case wire.MsgAuraUpdate:
		upd, err := wire.DecodeAuraUpdate(msg.Payload)
		if err != nil {
			z.log.Warn("malformed aura update", "source", msg.SourceZone, "error", err)
			return
		}
		z.applyAuraUpdate(msg.SourceZone, upd)
	default:
		z.log.Warn("unknown cross-zone message kind", "kind", msg.Kind, "source", msg.SourceZone)
	}
}
