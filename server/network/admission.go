// Admission guards new-connection attempts with a per-source-address token
// bucket, the same token-bucket shape golang.org/x/time/rate is built
// around, before a RakNet handshake is ever allowed to consume CPU on a
// full session setup.
package network

import (
	"sync"

	"golang.org/x/time/rate"
)

// AdmissionTunables configures the per-address connection-attempt budget.
type AdmissionTunables struct {
	// AttemptsPerSecond is the steady-state rate of accepted connection
	// attempts per source address.
	AttemptsPerSecond float64
	// Burst is the maximum number of attempts admitted in a single instant.
	Burst int
	// MaxTrackedAddresses bounds the limiter map; once exceeded, the
	// limiter of the address that was first tracked longest ago is evicted
	// (lookups do not refresh an address's place) to bound memory under a
	// wide address-spoofing attack.
	MaxTrackedAddresses int
}

// DefaultAdmissionTunables allows a modest handshake rate per address.
func DefaultAdmissionTunables() AdmissionTunables {
	return AdmissionTunables{AttemptsPerSecond: 5, Burst: 10, MaxTrackedAddresses: 10000}
}

// BanChecker reports whether an address is currently banned. The store
// package's ledger implements this.
type BanChecker interface {
	Banned(address string) bool
}

// Admission decides whether an inbound connection attempt should proceed
// past the transport handshake.
type Admission struct {
	tunables AdmissionTunables
	bans     BanChecker

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	order    []string
}

// NewAdmission creates an Admission guard. bans may be nil if no ban
// ledger is wired up (every address is treated as not banned).
func NewAdmission(t AdmissionTunables, bans BanChecker) *Admission {
	return &Admission{tunables: t, bans: bans, limiters: make(map[string]*rate.Limiter)}
}

// Check evaluates one connection attempt from address.
func (a *Admission) Check(address string) AdmissionResult {
	if a.bans != nil && a.bans.Banned(address) {
		return RejectBanned
	}
	if !a.limiterFor(address).Allow() {
		return RejectRateLimited
	}
	return Admit
}

func (a *Admission) limiterFor(address string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[address]
	if ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(a.tunables.AttemptsPerSecond), a.tunables.Burst)
	a.limiters[address] = l
	a.order = append(a.order, address)
	if len(a.order) > a.tunables.MaxTrackedAddresses {
		evict := a.order[0]
		a.order = a.order[1:]
		delete(a.limiters, evict)
	}
	return l
}
