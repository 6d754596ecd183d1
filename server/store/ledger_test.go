package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBanAndBanned(t *testing.T) {
	l := openTestLedger(t)
	if l.Banned("1.2.3.4") {
		t.Fatalf("expected address not banned before Ban")
	}
	if err := l.Ban("1.2.3.4", "cheating", time.Time{}); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if !l.Banned("1.2.3.4") {
		t.Fatalf("expected address banned after Ban")
	}
	reason, ok := l.BanReason("1.2.3.4")
	if !ok || reason != "cheating" {
		t.Fatalf("expected reason 'cheating', got %q ok=%v", reason, ok)
	}
}

func TestUnban(t *testing.T) {
	l := openTestLedger(t)
	l.Ban("5.6.7.8", "test", time.Time{})
	if err := l.Unban("5.6.7.8"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if l.Banned("5.6.7.8") {
		t.Fatalf("expected address not banned after Unban")
	}
}

func TestExpiredBanIsCleared(t *testing.T) {
	l := openTestLedger(t)
	l.Ban("9.9.9.9", "temp", time.Now().Add(-time.Hour))
	if l.Banned("9.9.9.9") {
		t.Fatalf("expected expired ban to no longer apply")
	}
}

func TestAuditRecentOrdersNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	base := time.Now()
	l.Append(AuditEvent{Time: base, Address: "a", Kind: "connect"})
	l.Append(AuditEvent{Time: base.Add(time.Millisecond), Address: "b", Kind: "connect"})
	l.Append(AuditEvent{Time: base.Add(2 * time.Millisecond), Address: "c", Kind: "disconnect"})

	events, err := l.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Address != "c" || events[1].Address != "b" {
		t.Fatalf("expected newest-first order c,b, got %s,%s", events[0].Address, events[1].Address)
	}
}
