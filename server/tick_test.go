package server

import (
	"log/slog"
	"testing"
	"time"
)

// TestTickerDegradesUnderSustainedOverrun exercises the QoS hysteresis
// directly: a budget of zero makes every tick count as an overrun, so
// degradation must kick in within degradeAfter ticks.
func TestTickerDegradesUnderSustainedOverrun(t *testing.T) {
	z := testZone(t)
	normal := z.conf.AOI

	tk := ticker{
		interval:     time.Millisecond,
		budget:       0, // every tick overruns its budget
		degradeAfter: 3,
		recoverAfter: 3,
		log:          slog.New(slog.NewTextHandler(slogDiscard{}, nil)),
	}
	go tk.tickLoop(z)

	deadline := time.Now().Add(time.Second)
	for {
		var degraded bool
		<-z.Exec(func(z *Zone) {
			degraded = z.aoi.Tunables.MidRateHz < normal.MidRateHz
		})
		if degraded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected QoS to degrade within %s of sustained overruns", time.Second)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestTickerNeverOverrunsUnderBudget pins a budget so generous that no
// tick can possibly overrun it, and asserts QoS never degrades.
func TestTickerNeverOverrunsUnderBudget(t *testing.T) {
	z := testZone(t)
	normal := z.conf.AOI

	tk := ticker{
		interval:     time.Millisecond,
		budget:       time.Second,
		degradeAfter: 1,
		recoverAfter: 1,
		log:          slog.New(slog.NewTextHandler(slogDiscard{}, nil)),
	}
	go tk.tickLoop(z)

	time.Sleep(50 * time.Millisecond)
	<-z.Exec(func(z *Zone) {
		if z.aoi.Tunables.MidRateHz != normal.MidRateHz || z.aoi.Tunables.FarRateHz != normal.FarRateHz {
			t.Errorf("expected AOI tunables to remain at normal rates, got %+v", z.aoi.Tunables)
		}
	})
}

// slogDiscard is an io.Writer that throws everything away, so these tests
// don't spam the run with warn/info lines about degrade/recover transitions.
type slogDiscard struct{}

func (slogDiscard) Write(p []byte) (int, error) { return len(p), nil }
