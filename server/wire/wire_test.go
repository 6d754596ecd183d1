package wire

import (
	"testing"

	"github.com/google/uuid"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data := Envelope(MsgClientInput, []byte{1, 2, 3})
	kind, body, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if kind != MsgClientInput || string(body) != "\x01\x02\x03" {
		t.Fatalf("unexpected kind=%v body=%v", kind, body)
	}
}

func TestDecodeEnvelopeTooShort(t *testing.T) {
	if _, _, err := DecodeEnvelope(nil); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	h := Handshake{ProtocolVersion: 7, PlayerID: uuid.New(), Username: "raylan"}
	got, err := DecodeHandshake(EncodeHandshake(h))
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if got != h {
		t.Fatalf("expected %+v, got %+v", h, got)
	}
}

func TestClientInputRoundTrip(t *testing.T) {
	ci := ClientInput{Seq: 42, ClientTickMs: 1000, Flags: 0b0101, Yaw: 1.5, Pitch: -0.25, TargetEntity: 99, AckBaselineTick: 123456}
	got, err := DecodeClientInput(EncodeClientInput(ci))
	if err != nil {
		t.Fatalf("DecodeClientInput: %v", err)
	}
	if got != ci {
		t.Fatalf("expected %+v, got %+v", ci, got)
	}
}

func TestClientInputShortBuffer(t *testing.T) {
	if _, err := DecodeClientInput(make([]byte, 10)); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestServerCorrectionRoundTrip(t *testing.T) {
	sc := ServerCorrection{Entity: 5, Tick: 1000, X: -12345, Y: 0, Z: 99999}
	got, err := DecodeServerCorrection(EncodeServerCorrection(sc))
	if err != nil {
		t.Fatalf("DecodeServerCorrection: %v", err)
	}
	if got != sc {
		t.Fatalf("expected %+v, got %+v", sc, got)
	}
}

func TestReliableEventRoundTrip(t *testing.T) {
	e := ReliableEvent{Kind: 3, Entity: 8, Tick: 555, Data: []byte("death")}
	got, err := DecodeReliableEvent(EncodeReliableEvent(e))
	if err != nil {
		t.Fatalf("DecodeReliableEvent: %v", err)
	}
	if got.Kind != e.Kind || got.Entity != e.Entity || got.Tick != e.Tick || string(got.Data) != string(e.Data) {
		t.Fatalf("expected %+v, got %+v", e, got)
	}
}

func TestReliableEventShortBuffer(t *testing.T) {
	if _, err := DecodeReliableEvent(make([]byte, 3)); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}
