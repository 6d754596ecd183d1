// Package aoi decides, for every (viewer, target) pair in a zone, whether
// the target is visible to the viewer at all and how often its state
// should be refreshed in that viewer's outbound snapshot. Visibility is
// tiered by distance — Near/Mid/Far — each with its own refresh cadence, so
// a snapshot budget is spent on nearby, fast-changing entities and not
// wasted re-sending distant ones every tick. The tiering itself follows the
// same "query the spatial hash, bucket by squared distance" shape as the
// teacher's chunk-radius viewer loop, generalized from a fixed chunk radius
// to three distance bands with independent rates.
package aoi

import (
	"github.com/riftzone/zoneserver/server/fixedpoint"
	"github.com/riftzone/zoneserver/server/internal/ecs"
)

// Tier classifies a target's distance from a viewer.
type Tier uint8

const (
	// Far is still within visibility range but refreshed least often.
	Far Tier = iota
	Mid
	Near
	// Unseen means the target is beyond every range and should not be sent
	// at all.
	Unseen
)

// Tunables groups the distance bands and their refresh rates.
type Tunables struct {
	NearRange fixedpoint.Scalar
	MidRange  fixedpoint.Scalar
	FarRange  fixedpoint.Scalar

	NearRateHz int
	MidRateHz  int
	FarRateHz  int

	// TickRateHz is the simulation rate the refresh cadences are expressed
	// against; a target whose tier refreshes at 30Hz on a 60Hz tick loop is
	// due every 2 ticks.
	TickRateHz int
}

// DefaultTunables reproduces the specification's binding AOI constants.
func DefaultTunables() Tunables {
	return Tunables{
		NearRange:  fixedpoint.FromFloat64(50),
		MidRange:   fixedpoint.FromFloat64(100),
		FarRange:   fixedpoint.FromFloat64(200),
		NearRateHz: 60,
		MidRateHz:  30,
		FarRateHz:  6,
		TickRateHz: 60,
	}
}

// TierOf classifies a squared distance (in Scalar^2 units, as returned by
// fixedpoint.Vec3.LenSq) into a Tier.
func (t Tunables) TierOf(distSq int64) Tier {
	switch {
	case distSq <= sq(t.NearRange):
		return Near
	case distSq <= sq(t.MidRange):
		return Mid
	case distSq <= sq(t.FarRange):
		return Far
	default:
		return Unseen
	}
}

func sq(s fixedpoint.Scalar) int64 {
	return int64(s) * int64(s)
}

func (t Tunables) rateFor(tier Tier) int {
	switch tier {
	case Near:
		return t.NearRateHz
	case Mid:
		return t.MidRateHz
	case Far:
		return t.FarRateHz
	default:
		return 0
	}
}

// intervalFor returns how many ticks apart refreshes for tier should land.
// A rate that doesn't evenly divide TickRateHz rounds down, so the cadence
// is never slower than requested.
func (t Tunables) intervalFor(tier Tier) int64 {
	rate := t.rateFor(tier)
	if rate <= 0 || t.TickRateHz <= 0 {
		return 0
	}
	interval := int64(t.TickRateHz / rate)
	if interval < 1 {
		interval = 1
	}
	return interval
}

type pairKey struct {
	Viewer ecs.Handle
	Target ecs.Handle
}

// Manager tracks, per (viewer, target) pair, the last tick a refresh was
// sent, so Due can answer "is it time again" without the caller tracking
// per-pair state itself.
type Manager struct {
	Tunables Tunables
	lastSent map[pairKey]int64
}

// New creates a Manager.
func New(t Tunables) *Manager {
	return &Manager{Tunables: t, lastSent: make(map[pairKey]int64)}
}

// Due reports whether a refresh of target is owed to viewer at tick, given
// distSq (squared distance in Scalar^2 units) between them. It returns
// Unseen, false when the target is out of every range. A true result
// records tick as the last-sent tick for this pair.
func (m *Manager) Due(viewer, target ecs.Handle, distSq int64, tick int64) (Tier, bool) {
	tier := m.Tunables.TierOf(distSq)
	if tier == Unseen {
		delete(m.lastSent, pairKey{viewer, target})
		return Unseen, false
	}
	interval := m.Tunables.intervalFor(tier)
	key := pairKey{viewer, target}
	last, ok := m.lastSent[key]
	if ok && tick-last < interval {
		return tier, false
	}
	m.lastSent[key] = tick
	return tier, true
}

// Forget drops any tracked cadence state between viewer and target, called
// when either leaves the zone or the pair is otherwise torn down.
func (m *Manager) Forget(viewer, target ecs.Handle) {
	delete(m.lastSent, pairKey{viewer, target})
}

// ForgetViewer drops every pair involving viewer, called when a connection
// disconnects or migrates away.
func (m *Manager) ForgetViewer(viewer ecs.Handle) {
	for k := range m.lastSent {
		if k.Viewer == viewer {
			delete(m.lastSent, k)
		}
	}
}
