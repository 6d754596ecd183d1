package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/sandertv/go-raknet"
)

// RakNetAdapter dials and listens using go-raknet directly, the same
// pattern the teacher's query package substitutes in for gophertunnel's
// default network. Each Session rides on the single reliable ordered
// RakNet connection; there is no separate unreliable socket, so both
// channels share that stream (see rakNetSession).
type RakNetAdapter struct {
	Log *slog.Logger
}

// NewRakNetAdapter creates a RakNetAdapter. If log is nil, slog.Default()
// is used.
func NewRakNetAdapter(log *slog.Logger) *RakNetAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &RakNetAdapter{Log: log}
}

func (a *RakNetAdapter) Dial(ctx context.Context, address string) (Session, error) {
	conn, err := (raknet.Dialer{ErrorLog: a.Log.With("net_origin", "raknet")}).DialContext(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("raknet dial: %w", err)
	}
	return newRakNetSession(conn, nil), nil
}

func (a *RakNetAdapter) Listen(address string) (Listener, error) {
	l, err := (raknet.ListenConfig{ErrorLog: a.Log.With("net_origin", "raknet")}).Listen(address)
	if err != nil {
		return nil, fmt.Errorf("raknet listen: %w", err)
	}
	return &rakNetListener{listener: l}, nil
}

type rakNetListener struct {
	listener interface {
		Accept() (net.Conn, error)
		Close() error
	}
}

func (l *rakNetListener) Accept(ctx context.Context) (Session, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.listener.Accept()
		ch <- result{c, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return newRakNetSession(r.conn, nil), nil
	}
}

func (l *rakNetListener) Close() error {
	return l.listener.Close()
}

// rakNetSession frames the reliable RakNet byte stream with a 4-byte
// length prefix (net.Conn has no message boundaries of its own).
// SendUnreliable writes to the same stream as SendReliable, so "unreliable"
// messages are delivered reliably and in order, and Recv reports every
// message as reliable; go-raknet's public surface exposes only a single
// reliable-ordered net.Conn per connection.
type rakNetSession struct {
	conn net.Conn
	mu   sync.Mutex
}

func newRakNetSession(conn net.Conn, _ net.PacketConn) *rakNetSession {
	return &rakNetSession{conn: conn}
}

func (s *rakNetSession) SendReliable(data []byte) error {
	return s.writeFramed(data)
}

func (s *rakNetSession) SendUnreliable(data []byte) error {
	return s.writeFramed(data)
}

func (s *rakNetSession) writeFramed(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := s.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := s.conn.Write(data)
	return err
}

func (s *rakNetSession) Recv(ctx context.Context) ([]byte, bool, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var hdr [4]byte
		if _, err := io.ReadFull(s.conn, hdr[:]); err != nil {
			ch <- result{nil, err}
			return
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > 16*1024*1024 {
			ch <- result{nil, errors.New("network: frame too large")}
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(s.conn, buf); err != nil {
			ch <- result{nil, err}
			return
		}
		ch <- result{buf, nil}
	}()
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		return r.data, true, r.err
	}
}

func (s *rakNetSession) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *rakNetSession) Close() error {
	return s.conn.Close()
}
