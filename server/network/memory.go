package network

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a memory Session once it has been closed.
var ErrClosed = errors.New("network: session closed")

// memoryFrame tags a payload with the channel it was sent on.
type memoryFrame struct {
	data     []byte
	reliable bool
}

// MemorySession is an in-process Session, backed by channels instead of a
// socket, for deterministic tests of anything built on top of Adapter
// without a real UDP transport.
type MemorySession struct {
	addr string
	out  chan memoryFrame
	in   chan memoryFrame

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemoryPair creates two linked MemorySessions: writes to one arrive as
// reads on the other.
func NewMemoryPair(addrA, addrB string, buffer int) (a, b *MemorySession) {
	ab := make(chan memoryFrame, buffer)
	ba := make(chan memoryFrame, buffer)
	a = &MemorySession{addr: addrA, out: ab, in: ba, closed: make(chan struct{})}
	b = &MemorySession{addr: addrB, out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (s *MemorySession) send(data []byte, reliable bool) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	select {
	case s.out <- memoryFrame{data: data, reliable: reliable}:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

func (s *MemorySession) SendReliable(data []byte) error   { return s.send(data, true) }
func (s *MemorySession) SendUnreliable(data []byte) error { return s.send(data, false) }

func (s *MemorySession) Recv(ctx context.Context) ([]byte, bool, error) {
	select {
	case f := <-s.in:
		return f.data, f.reliable, nil
	case <-s.closed:
		return nil, false, ErrClosed
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (s *MemorySession) RemoteAddr() string { return s.addr }

func (s *MemorySession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// MemoryAdapter is an Adapter that connects Dial calls to a matching
// Listener in the same process, for tests that want to exercise the
// Adapter interface end to end without a socket.
type MemoryAdapter struct {
	mu      sync.Mutex
	pending map[string]chan *MemorySession
}

// NewMemoryAdapter creates a MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{pending: make(map[string]chan *MemorySession)}
}

func (a *MemoryAdapter) listenerFor(address string) chan *MemorySession {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.pending[address]
	if !ok {
		ch = make(chan *MemorySession, 16)
		a.pending[address] = ch
	}
	return ch
}

func (a *MemoryAdapter) Dial(ctx context.Context, address string) (Session, error) {
	client, server := NewMemoryPair("client", address, 64)
	select {
	case a.listenerFor(address) <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *MemoryAdapter) Listen(address string) (Listener, error) {
	return &memoryListener{incoming: a.listenerFor(address)}, nil
}

type memoryListener struct {
	incoming chan *MemorySession
}

func (l *memoryListener) Accept(ctx context.Context) (Session, error) {
	select {
	case s := <-l.incoming:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memoryListener) Close() error { return nil }
