// Package anticheat implements the per-entity movement and input-rate
// validation described by the engine spec: positional-delta checks against
// the theoretical maximum speed, a hard teleport threshold, input-rate
// limiting, and sequence monotonicity. It also accumulates a soft
// suspicion score — a weighted-threshold accumulator in the same style as
// the teacher pack's poker collusion detector config
// (other_examples/29c5923f_..._collusion_detector.go) — so operators can
// review borderline accounts that never cross the hard strike threshold.
package anticheat

import (
	"log/slog"
	"time"

	"github.com/riftzone/zoneserver/server/fixedpoint"
)

// Thresholds groups every tunable the Validator checks against. The
// defaults reproduce the binding constants from the wire specification.
type Thresholds struct {
	MaxSpeedMPS          float64
	SprintMultiplier     float64
	SpeedTolerance       float64
	MaxTeleportDistance  fixedpoint.Scalar
	MaxInputsPerSecond   int
	StrikeLimit          int
	ReviewScoreThreshold float64

	// Suspicion score weights. WeightSpeedOvershoot is added alongside each
	// speed strike and WeightRateLimitHit with each rate-limited input;
	// WeightTeleportNear is not added by any check.
	WeightSpeedOvershoot float64
	WeightTeleportNear   float64
	WeightRateLimitHit   float64
	ScoreDecayPerTick    float64
}

// DefaultThresholds returns the constants bound by the specification.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxSpeedMPS:          4.3,
		SprintMultiplier:     1.3,
		SpeedTolerance:       1.2,
		MaxTeleportDistance:  fixedpoint.FromFloat64(100),
		MaxInputsPerSecond:   60,
		StrikeLimit:          3,
		ReviewScoreThreshold: 5,
		WeightSpeedOvershoot: 1,
		WeightTeleportNear:   2,
		WeightRateLimitHit:   0.5,
		ScoreDecayPerTick:    0.01,
	}
}

// State is the per-entity bookkeeping the Validator reads and writes. It
// mirrors components.AntiCheatState field-for-field except that the input
// history is named InputTimes here and InputWindow there; the root package
// copies between the two with toAnticheatState and fromAnticheatState.
type State struct {
	LastValidPos   fixedpoint.Vec3
	LastValidTick  int64
	Strikes        int
	SuspicionScore float64
	MaxObserved    fixedpoint.Scalar
	InputTimes     []time.Time
	LastSeq        uint32
}

// Verdict is the outcome of validating one input.
type Verdict int

const (
	// Accept: the input is valid and its position may be applied.
	Accept Verdict = iota
	// SnapBack: a strike was recorded; the caller must reset the entity to
	// State.LastValidPos instead of applying the submitted position.
	SnapBack
	// Drop: the input was silently rate-limited; no position change, no
	// strike beyond the counter already folded into State.
	Drop
	// DiscardStale: the input's sequence number was not greater than the
	// last accepted one and was discarded outright.
	DiscardStale
	// Disconnect: the strike count (or a single-frame teleport) crossed the
	// kick threshold; the caller must disconnect the owning connection with
	// reason AntiCheat.
	Disconnect
)

// Validator checks inputs against Thresholds and mutates a per-entity
// State. It holds no entity-keyed state itself — callers own the State
// table — so a single Validator can be shared across every entity in a
// zone.
type Validator struct {
	Thresholds Thresholds
	Log        *slog.Logger
}

// New creates a Validator. If log is nil, slog.Default() is used.
func New(t Thresholds, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{Thresholds: t, Log: log}
}

// maxDeltaFor returns the maximum permitted positional delta over tickDelta
// ticks, honouring sprint and the configured tolerance.
func (v *Validator) maxDeltaFor(tickDelta int64, sprint bool) fixedpoint.Scalar {
	speed := v.Thresholds.MaxSpeedMPS
	if sprint {
		speed *= v.Thresholds.SprintMultiplier
	}
	seconds := float64(tickDelta) / 60.0
	return fixedpoint.FromFloat64(speed * seconds * v.Thresholds.SpeedTolerance)
}

// CheckSequence enforces strict per-connection monotonicity ahead of any
// other validation; per the spec, inputs with seq <= lastSeq are discarded
// before they ever reach movement.
func (v *Validator) CheckSequence(s *State, seq uint32) Verdict {
	if s.LastSeq != 0 && seq <= s.LastSeq {
		return DiscardStale
	}
	return Accept
}

// CheckRate enforces MaxInputsPerSecond using a rolling window of input
// receive times. now is the wall-clock time of the current input. An input
// over the limit is dropped and recorded as a strike.
func (v *Validator) CheckRate(s *State, now time.Time) Verdict {
	cutoff := now.Add(-time.Second)
	kept := s.InputTimes[:0]
	for _, t := range s.InputTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.InputTimes = kept
	if len(s.InputTimes) >= v.Thresholds.MaxInputsPerSecond {
		s.Strikes++
		s.SuspicionScore += v.Thresholds.WeightRateLimitHit
		return Drop
	}
	s.InputTimes = append(s.InputTimes, now)
	return Accept
}

// CheckMovement validates a proposed new position against the entity's last
// valid one. tick is the current simulation tick; s.LastValidTick is the
// tick LastValidPos was recorded at.
func (v *Validator) CheckMovement(s *State, entity, connLabel string, proposed fixedpoint.Vec3, tick int64, sprint bool) Verdict {
	tickDelta := tick - s.LastValidTick
	if tickDelta <= 0 {
		tickDelta = 1
	}
	delta := proposed.Sub(s.LastValidPos)
	dist := delta.Len()

	if dist > v.Thresholds.MaxTeleportDistance {
		v.Log.Warn("anti-cheat: teleport distance exceeded, disconnecting",
			"entity", entity, "conn", connLabel, "distance_m", dist.Float64())
		return Disconnect
	}

	maxAllowed := v.maxDeltaFor(tickDelta, sprint)
	if dist > s.MaxObserved {
		s.MaxObserved = dist
	}
	if dist > maxAllowed {
		s.Strikes++
		nearMiss := dist <= v.Thresholds.MaxTeleportDistance
		if nearMiss {
			s.SuspicionScore += v.Thresholds.WeightSpeedOvershoot
		}
		v.Log.Warn("anti-cheat: speed violation, snapping back",
			"entity", entity, "conn", connLabel, "distance_m", dist.Float64(),
			"max_allowed_m", maxAllowed.Float64(), "strikes", s.Strikes)
		if s.Strikes >= v.Thresholds.StrikeLimit {
			v.Log.Warn("anti-cheat: strike threshold reached, disconnecting",
				"entity", entity, "conn", connLabel, "strikes", s.Strikes)
			return Disconnect
		}
		return SnapBack
	}

	s.LastValidPos = proposed
	s.LastValidTick = tick
	if v.Thresholds.ReviewScoreThreshold > 0 && s.SuspicionScore >= v.Thresholds.ReviewScoreThreshold {
		v.Log.Info("anti-cheat: suspicion score crossed review threshold",
			"entity", entity, "conn", connLabel, "score", s.SuspicionScore)
	}
	return Accept
}

// Decay reduces the rolling suspicion score towards zero; called once per
// tick for every tracked entity so transient near-misses don't accumulate
// into a permanent flag.
func (v *Validator) Decay(s *State) {
	if s.SuspicionScore <= 0 {
		return
	}
	s.SuspicionScore -= v.Thresholds.ScoreDecayPerTick
	if s.SuspicionScore < 0 {
		s.SuspicionScore = 0
	}
}
