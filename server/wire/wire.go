// Package wire defines the on-the-wire encoding for every message type
// that crosses a Session: a one-byte message type tag followed by a
// fixed-layout little-endian body, in the same direct
// bytes.Buffer/encoding/binary style as the teacher's own query protocol
// encoder (server/query_protocol.go), rather than a reflection-based or
// generated codec — these messages are small, fixed-shape, and sent at
// high frequency, so a hand-rolled layout avoids both an external
// schema dependency and per-message allocation from a general-purpose
// serializer.
package wire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
)

// MsgType tags the body that follows it in an Envelope.
type MsgType uint8

const (
	MsgHandshake MsgType = 1 + iota
	MsgClientInput
	MsgSnapshot
	MsgServerCorrection
	MsgReliableEvent

	// Inter-zone message types. These never reach a client connection;
	// they are the Kind carried on a crosszone.Message and cross the
	// CrossZoneBus instead of a Session.
	MsgMigrateReq
	MsgMigrateAck
	MsgMigrateState
	MsgMigrateApplied
	MsgAuraUpdate
)

// ErrShortBuffer is returned when a Decode call is given fewer bytes than
// the message type requires.
var ErrShortBuffer = errors.New("wire: buffer too short")

// Envelope wraps an encoded body with its MsgType tag. Encode/Decode here
// operate below the transport's own length-prefix framing (network.Session
// already delivers one complete message per Recv), so Envelope only needs
// the single leading type byte.
func Envelope(kind MsgType, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(kind)
	copy(out[1:], body)
	return out
}

// DecodeEnvelope splits a received message into its MsgType and body.
func DecodeEnvelope(data []byte) (MsgType, []byte, error) {
	if len(data) < 1 {
		return 0, nil, ErrShortBuffer
	}
	return MsgType(data[0]), data[1:], nil
}

// Handshake is the first reliable message a new connection sends.
type Handshake struct {
	ProtocolVersion uint32
	PlayerID        uuid.UUID
	Username        string
}

// EncodeHandshake serializes h as: version(4) | playerID(16) |
// usernameLen(2) | username bytes.
func EncodeHandshake(h Handshake) []byte {
	buf := make([]byte, 4+16+2+len(h.Username))
	binary.LittleEndian.PutUint32(buf[0:4], h.ProtocolVersion)
	copy(buf[4:20], h.PlayerID[:])
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(h.Username)))
	copy(buf[22:], h.Username)
	return buf
}

// DecodeHandshake is the inverse of EncodeHandshake.
func DecodeHandshake(b []byte) (Handshake, error) {
	if len(b) < 22 {
		return Handshake{}, ErrShortBuffer
	}
	var h Handshake
	h.ProtocolVersion = binary.LittleEndian.Uint32(b[0:4])
	copy(h.PlayerID[:], b[4:20])
	n := int(binary.LittleEndian.Uint16(b[20:22]))
	if len(b) < 22+n {
		return Handshake{}, ErrShortBuffer
	}
	h.Username = string(b[22 : 22+n])
	return h, nil
}

// ClientInput is one tick's worth of input, sent on the unreliable channel
// except when it carries a baseline acknowledgement piggybacked for
// delivery assurance.
type ClientInput struct {
	Seq             uint32
	ClientTickMs    uint32
	Flags           uint8
	Yaw             float32
	Pitch           float32
	TargetEntity    uint32
	AckBaselineTick int64
}

// EncodeClientInput serializes ci as: seq(4) | clientTickMs(4) | flags(1) |
// yaw(4) | pitch(4) | targetEntity(4) | ackBaselineTick(8) = 29 bytes.
func EncodeClientInput(ci ClientInput) []byte {
	buf := make([]byte, 29)
	binary.LittleEndian.PutUint32(buf[0:4], ci.Seq)
	binary.LittleEndian.PutUint32(buf[4:8], ci.ClientTickMs)
	buf[8] = ci.Flags
	binary.LittleEndian.PutUint32(buf[9:13], math.Float32bits(ci.Yaw))
	binary.LittleEndian.PutUint32(buf[13:17], math.Float32bits(ci.Pitch))
	binary.LittleEndian.PutUint32(buf[17:21], ci.TargetEntity)
	binary.LittleEndian.PutUint64(buf[21:29], uint64(ci.AckBaselineTick))
	return buf
}

// DecodeClientInput is the inverse of EncodeClientInput.
func DecodeClientInput(b []byte) (ClientInput, error) {
	if len(b) < 29 {
		return ClientInput{}, ErrShortBuffer
	}
	var ci ClientInput
	ci.Seq = binary.LittleEndian.Uint32(b[0:4])
	ci.ClientTickMs = binary.LittleEndian.Uint32(b[4:8])
	ci.Flags = b[8]
	ci.Yaw = math.Float32frombits(binary.LittleEndian.Uint32(b[9:13]))
	ci.Pitch = math.Float32frombits(binary.LittleEndian.Uint32(b[13:17]))
	ci.TargetEntity = binary.LittleEndian.Uint32(b[17:21])
	ci.AckBaselineTick = int64(binary.LittleEndian.Uint64(b[21:29]))
	return ci, nil
}

// ServerCorrection forces a client's local position back to the
// authoritative one, sent reliably after an anti-cheat SnapBack verdict.
type ServerCorrection struct {
	Entity uint32
	Tick   int64
	X, Y, Z int64 // fixedpoint.Scalar raw values
}

// EncodeServerCorrection serializes sc as: entity(4) | tick(8) | x,y,z(8
// each) = 36 bytes.
func EncodeServerCorrection(sc ServerCorrection) []byte {
	buf := make([]byte, 36)
	binary.LittleEndian.PutUint32(buf[0:4], sc.Entity)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(sc.Tick))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(sc.X))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(sc.Y))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(sc.Z))
	return buf
}

// DecodeServerCorrection is the inverse of EncodeServerCorrection.
func DecodeServerCorrection(b []byte) (ServerCorrection, error) {
	if len(b) < 36 {
		return ServerCorrection{}, ErrShortBuffer
	}
	var sc ServerCorrection
	sc.Entity = binary.LittleEndian.Uint32(b[0:4])
	sc.Tick = int64(binary.LittleEndian.Uint64(b[4:12]))
	sc.X = int64(binary.LittleEndian.Uint64(b[12:20]))
	sc.Y = int64(binary.LittleEndian.Uint64(b[20:28]))
	sc.Z = int64(binary.LittleEndian.Uint64(b[28:36]))
	return sc, nil
}

// ReliableEvent carries a one-off occurrence (death, migration handoff,
// spawn) that must survive packet loss: kind(1) | entity(4) | tick(8) |
// dataLen(2) | data.
type ReliableEvent struct {
	Kind   uint8
	Entity uint32
	Tick   int64
	Data   []byte
}

func EncodeReliableEvent(e ReliableEvent) []byte {
	buf := make([]byte, 15+len(e.Data))
	buf[0] = e.Kind
	binary.LittleEndian.PutUint32(buf[1:5], e.Entity)
	binary.LittleEndian.PutUint64(buf[5:13], uint64(e.Tick))
	binary.LittleEndian.PutUint16(buf[13:15], uint16(len(e.Data)))
	copy(buf[15:], e.Data)
	return buf
}

func DecodeReliableEvent(b []byte) (ReliableEvent, error) {
	if len(b) < 15 {
		return ReliableEvent{}, ErrShortBuffer
	}
	var e ReliableEvent
	e.Kind = b[0]
	e.Entity = binary.LittleEndian.Uint32(b[1:5])
	e.Tick = int64(binary.LittleEndian.Uint64(b[5:13]))
	n := int(binary.LittleEndian.Uint16(b[13:15]))
	if len(b) < 15+n {
		return ReliableEvent{}, ErrShortBuffer
	}
	e.Data = append([]byte(nil), b[15:15+n]...)
	return e, nil
}

// MigrateEntityState is the full state of an entity in flight across a zone
// boundary, carried by both MIGRATE_REQ (the initial hand-off offer) and
// MIGRATE_STATE (the final authoritative snapshot sent once the
// destination has acknowledged it is ready). Entity is the handle on the
// zone that allocated it; a receiving zone must treat it as an opaque
// correlation id, never as one of its own local handles.
type MigrateEntityState struct {
	Entity     uint32
	Epoch      uint32
	X, Y, Z    int64 // fixedpoint.Scalar raw values
	VX, VY, VZ int64 // fixedpoint.Scalar raw values
	Yaw, Pitch float32
	HP, MaxHP  int32
	Team       uint8
	PlayerID   uuid.UUID
	Username   string
}

// EncodeMigrateEntityState serializes s as: entity(4) | epoch(4) | x,y,z(8
// each) | vx,vy,vz(8 each) | yaw,pitch(4 each) | hp,maxHP(4 each) | team(1) |
// playerID(16) | usernameLen(2) | username bytes.
func EncodeMigrateEntityState(s MigrateEntityState) []byte {
	const fixed = 4 + 4 + 24 + 24 + 4 + 4 + 4 + 4 + 1 + 16 + 2
	buf := make([]byte, fixed+len(s.Username))
	binary.LittleEndian.PutUint32(buf[0:4], s.Entity)
	binary.LittleEndian.PutUint32(buf[4:8], s.Epoch)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(s.X))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(s.Y))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(s.Z))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(s.VX))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(s.VY))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(s.VZ))
	binary.LittleEndian.PutUint32(buf[56:60], math.Float32bits(s.Yaw))
	binary.LittleEndian.PutUint32(buf[60:64], math.Float32bits(s.Pitch))
	binary.LittleEndian.PutUint32(buf[64:68], uint32(s.HP))
	binary.LittleEndian.PutUint32(buf[68:72], uint32(s.MaxHP))
	buf[72] = s.Team
	copy(buf[73:89], s.PlayerID[:])
	binary.LittleEndian.PutUint16(buf[89:91], uint16(len(s.Username)))
	copy(buf[91:], s.Username)
	return buf
}

// DecodeMigrateEntityState is the inverse of EncodeMigrateEntityState.
func DecodeMigrateEntityState(b []byte) (MigrateEntityState, error) {
	const fixed = 91
	if len(b) < fixed {
		return MigrateEntityState{}, ErrShortBuffer
	}
	var s MigrateEntityState
	s.Entity = binary.LittleEndian.Uint32(b[0:4])
	s.Epoch = binary.LittleEndian.Uint32(b[4:8])
	s.X = int64(binary.LittleEndian.Uint64(b[8:16]))
	s.Y = int64(binary.LittleEndian.Uint64(b[16:24]))
	s.Z = int64(binary.LittleEndian.Uint64(b[24:32]))
	s.VX = int64(binary.LittleEndian.Uint64(b[32:40]))
	s.VY = int64(binary.LittleEndian.Uint64(b[40:48]))
	s.VZ = int64(binary.LittleEndian.Uint64(b[48:56]))
	s.Yaw = math.Float32frombits(binary.LittleEndian.Uint32(b[56:60]))
	s.Pitch = math.Float32frombits(binary.LittleEndian.Uint32(b[60:64]))
	s.HP = int32(binary.LittleEndian.Uint32(b[64:68]))
	s.MaxHP = int32(binary.LittleEndian.Uint32(b[68:72]))
	s.Team = b[72]
	copy(s.PlayerID[:], b[73:89])
	n := int(binary.LittleEndian.Uint16(b[89:91]))
	if len(b) < fixed+n {
		return MigrateEntityState{}, ErrShortBuffer
	}
	s.Username = string(b[91 : 91+n])
	return s, nil
}

// MigrateAck is the destination zone's reply to MIGRATE_REQ, confirming it
// has staged an un-ticked placeholder and is ready to receive the final
// state.
type MigrateAck struct {
	Entity uint32
	Epoch  uint32
}

// EncodeMigrateAck serializes a as: entity(4) | epoch(4) = 8 bytes.
func EncodeMigrateAck(a MigrateAck) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], a.Entity)
	binary.LittleEndian.PutUint32(buf[4:8], a.Epoch)
	return buf
}

// DecodeMigrateAck is the inverse of EncodeMigrateAck.
func DecodeMigrateAck(b []byte) (MigrateAck, error) {
	if len(b) < 8 {
		return MigrateAck{}, ErrShortBuffer
	}
	return MigrateAck{
		Entity: binary.LittleEndian.Uint32(b[0:4]),
		Epoch:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// MigrateApplied is the destination zone's confirmation that it has taken
// over simulation of the entity under epoch; the source zone's
// MigrationStateMachine advances HandedOff -> Cleanup -> Normal on receipt.
type MigrateApplied struct {
	Entity uint32
	Epoch  uint32
}

// EncodeMigrateApplied serializes a as: entity(4) | epoch(4) = 8 bytes.
func EncodeMigrateApplied(a MigrateApplied) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], a.Entity)
	binary.LittleEndian.PutUint32(buf[4:8], a.Epoch)
	return buf
}

// DecodeMigrateApplied is the inverse of EncodeMigrateApplied.
func DecodeMigrateApplied(b []byte) (MigrateApplied, error) {
	if len(b) < 8 {
		return MigrateApplied{}, ErrShortBuffer
	}
	return MigrateApplied{
		Entity: binary.LittleEndian.Uint32(b[0:4]),
		Epoch:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// ProjectedState is one entity's compact read-only record within an
// AURA_UPDATE batch: enough for a neighbour to materialize or refresh a
// shadow entity, never enough to simulate it. Active false means the
// projection has ended and the neighbour should drop its shadow.
type ProjectedState struct {
	Entity    uint32
	Active    bool
	X, Y, Z   int64 // fixedpoint.Scalar raw values
	Yaw       float32
	Pitch     float32
	HP, MaxHP int32
}

const projectedStateSize = 4 + 1 + 24 + 4 + 4 + 4 + 4

func writeProjectedState(buf []byte, s ProjectedState) {
	binary.LittleEndian.PutUint32(buf[0:4], s.Entity)
	if s.Active {
		buf[4] = 1
	} else {
		buf[4] = 0
	}
	binary.LittleEndian.PutUint64(buf[5:13], uint64(s.X))
	binary.LittleEndian.PutUint64(buf[13:21], uint64(s.Y))
	binary.LittleEndian.PutUint64(buf[21:29], uint64(s.Z))
	binary.LittleEndian.PutUint32(buf[29:33], math.Float32bits(s.Yaw))
	binary.LittleEndian.PutUint32(buf[33:37], math.Float32bits(s.Pitch))
	binary.LittleEndian.PutUint32(buf[37:41], uint32(s.HP))
	binary.LittleEndian.PutUint32(buf[41:45], uint32(s.MaxHP))
}

func readProjectedState(buf []byte) ProjectedState {
	var s ProjectedState
	s.Entity = binary.LittleEndian.Uint32(buf[0:4])
	s.Active = buf[4] != 0
	s.X = int64(binary.LittleEndian.Uint64(buf[5:13]))
	s.Y = int64(binary.LittleEndian.Uint64(buf[13:21]))
	s.Z = int64(binary.LittleEndian.Uint64(buf[21:29]))
	s.Yaw = math.Float32frombits(binary.LittleEndian.Uint32(buf[29:33]))
	s.Pitch = math.Float32frombits(binary.LittleEndian.Uint32(buf[33:37]))
	s.HP = int32(binary.LittleEndian.Uint32(buf[37:41]))
	s.MaxHP = int32(binary.LittleEndian.Uint32(buf[41:45]))
	return s
}

// AuraUpdate is a batch of ProjectedState records a zone sends a neighbour
// once per tick for every entity currently within that neighbour's aura
// buffer, stamped with the tick the source zone observed them at.
type AuraUpdate struct {
	SourceTick int64
	States     []ProjectedState
}

// EncodeAuraUpdate serializes u as: sourceTick(8) | count(2) | states.
func EncodeAuraUpdate(u AuraUpdate) []byte {
	buf := make([]byte, 10+projectedStateSize*len(u.States))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(u.SourceTick))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(u.States)))
	off := 10
	for _, s := range u.States {
		writeProjectedState(buf[off:off+projectedStateSize], s)
		off += projectedStateSize
	}
	return buf
}

// DecodeAuraUpdate is the inverse of EncodeAuraUpdate.
func DecodeAuraUpdate(b []byte) (AuraUpdate, error) {
	if len(b) < 10 {
		return AuraUpdate{}, ErrShortBuffer
	}
	var u AuraUpdate
	u.SourceTick = int64(binary.LittleEndian.Uint64(b[0:8]))
	n := int(binary.LittleEndian.Uint16(b[8:10]))
	if len(b) < 10+projectedStateSize*n {
		return AuraUpdate{}, ErrShortBuffer
	}
	off := 10
	u.States = make([]ProjectedState, n)
	for i := 0; i < n; i++ {
		u.States[i] = readProjectedState(b[off : off+projectedStateSize])
		off += projectedStateSize
	}
	return u, nil
}
