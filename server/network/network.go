// Package network abstracts the zone's transport so the tick thread never
// talks to a socket directly: an Adapter accepts Sessions, each exposing a
// reliable (ordered, retransmitted) and an unreliable (fire-and-forget)
// send path, mirroring the two RakNet channels every client connection
// actually uses — reliable for handshakes, corrections, and reliable
// events; unreliable for the high-frequency input/snapshot traffic that
// would rather lose a packet than stall waiting for a retransmit. The
// concrete implementation (raknet.go) is grounded on the teacher's own
// go-raknet wiring in server/query/network.go, which dials and listens via
// raknet.Dialer / raknet.ListenConfig directly rather than through
// gophertunnel's higher-level minecraft.Conn.
package network

import (
	"context"
	"time"
)

// Session is one connected client or peer-zone link.
type Session interface {
	// SendReliable queues data for ordered, retransmitted delivery.
	SendReliable(data []byte) error
	// SendUnreliable best-effort sends data; it may be dropped or
	// reordered and never retransmitted.
	SendUnreliable(data []byte) error
	// Recv blocks until a message arrives, ctx is cancelled, or the session
	// closes. reliable reports which channel the message arrived on.
	Recv(ctx context.Context) (data []byte, reliable bool, err error)
	RemoteAddr() string
	Close() error
}

// Listener accepts inbound Sessions.
type Listener interface {
	Accept(ctx context.Context) (Session, error)
	Close() error
}

// Adapter is the transport-level entry point: dial out to a peer zone, or
// listen for inbound client/peer connections.
type Adapter interface {
	Dial(ctx context.Context, address string) (Session, error)
	Listen(address string) (Listener, error)
}

// AdmissionResult is the outcome of checking a new connection attempt
// against the DDoS guard.
type AdmissionResult uint8

const (
	Admit AdmissionResult = iota
	RejectRateLimited
	RejectBanned
)

// Clock abstracts time.Now for deterministic admission tests.
type Clock func() time.Time
