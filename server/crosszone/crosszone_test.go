package crosszone

import (
	"context"
	"errors"
	"testing"

	"github.com/riftzone/zoneserver/server/components"
)

func TestEnqueueAssignsIncrementingSeq(t *testing.T) {
	b := New(components.ZoneID(1), 4)
	m1, err := b.Enqueue(components.ZoneID(2), 0, []byte("a"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	m2, _ := b.Enqueue(components.ZoneID(2), 0, []byte("b"))
	if m1.Seq != 1 || m2.Seq != 2 {
		t.Fatalf("expected seq 1 then 2, got %d then %d", m1.Seq, m2.Seq)
	}
}

func TestEnqueueReturnsErrQueueFullWhenSaturated(t *testing.T) {
	b := New(components.ZoneID(1), 2)
	for i := 0; i < 2; i++ {
		if _, err := b.Enqueue(components.ZoneID(2), 0, []byte("x")); err != nil {
			t.Fatalf("unexpected error filling queue: %v", err)
		}
	}
	if _, err := b.Enqueue(components.ZoneID(2), 0, []byte("x")); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull once saturated, got %v", err)
	}
}

func TestReceiveDedupsReplay(t *testing.T) {
	b := New(components.ZoneID(1), 4)
	msg := Message{SourceZone: 2, DestZone: 1, Seq: 5, Payload: []byte("hi")}
	msg.Checksum = checksum(msg.Payload)

	accept, err := b.Receive(msg)
	if err != nil || !accept {
		t.Fatalf("expected first receive accepted, got accept=%v err=%v", accept, err)
	}
	accept, err = b.Receive(msg)
	if err != nil || accept {
		t.Fatalf("expected replay to be silently ignored, got accept=%v err=%v", accept, err)
	}
}

func TestReceiveRejectsBadChecksum(t *testing.T) {
	b := New(components.ZoneID(1), 4)
	msg := Message{SourceZone: 2, DestZone: 1, Seq: 1, Payload: []byte("hi"), Checksum: 0}
	if _, err := b.Receive(msg); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestRegisterLetsRunSeeQueueBeforeFirstEnqueue(t *testing.T) {
	b := New(components.ZoneID(1), 4)
	b.Register(components.ZoneID(2))

	delivered := make(chan Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx, func(_ context.Context, msg Message) error {
			delivered <- msg
			return nil
		})
	}()

	if _, err := b.Enqueue(components.ZoneID(2), 9, []byte("late")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case msg := <-delivered:
		if msg.Kind != 9 {
			t.Fatalf("unexpected delivered message: %+v", msg)
		}
	}
	cancel()
	<-done
}

func TestRunDeliversEnqueuedMessages(t *testing.T) {
	b := New(components.ZoneID(1), 4)
	b.Enqueue(components.ZoneID(2), 7, []byte("payload"))

	delivered := make(chan Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx, func(_ context.Context, msg Message) error {
			delivered <- msg
			return nil
		})
	}()

	select {
	case msg := <-delivered:
		if msg.Kind != 7 || string(msg.Payload) != "payload" {
			t.Fatalf("unexpected delivered message: %+v", msg)
		}
	}
	cancel()
	<-done
}
