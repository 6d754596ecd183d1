package network

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAdapterDialAndAccept(t *testing.T) {
	a := NewMemoryAdapter()
	l, err := a.Listen("zone-1")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	serverSide := make(chan Session, 1)
	go func() {
		s, err := l.Accept(ctx)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		serverSide <- s
	}()

	client, err := a.Dial(ctx, "zone-1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	server := <-serverSide
	if err := client.SendReliable([]byte("hello")); err != nil {
		t.Fatalf("SendReliable: %v", err)
	}
	data, reliable, err := server.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(data) != "hello" || !reliable {
		t.Fatalf("expected reliable 'hello', got %q reliable=%v", data, reliable)
	}
}

func TestMemorySessionCloseUnblocksRecv(t *testing.T) {
	a, _ := NewMemoryPair("a", "b", 4)
	done := make(chan error, 1)
	go func() {
		_, _, err := a.Recv(context.Background())
		done <- err
	}()
	a.Close()
	if err := <-done; err != ErrClosed {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestAdmissionRateLimitsPerAddress(t *testing.T) {
	adm := NewAdmission(AdmissionTunables{AttemptsPerSecond: 1, Burst: 2, MaxTrackedAddresses: 10}, nil)
	if got := adm.Check("1.2.3.4"); got != Admit {
		t.Fatalf("expected first attempt admitted, got %v", got)
	}
	if got := adm.Check("1.2.3.4"); got != Admit {
		t.Fatalf("expected second attempt (within burst) admitted, got %v", got)
	}
	if got := adm.Check("1.2.3.4"); got != RejectRateLimited {
		t.Fatalf("expected third attempt rate-limited, got %v", got)
	}
}

type alwaysBanned struct{}

func (alwaysBanned) Banned(string) bool { return true }

func TestAdmissionRejectsBannedBeforeRateCheck(t *testing.T) {
	adm := NewAdmission(DefaultAdmissionTunables(), alwaysBanned{})
	if got := adm.Check("5.6.7.8"); got != RejectBanned {
		t.Fatalf("expected RejectBanned, got %v", got)
	}
}

func TestAdmissionTracksAddressesIndependently(t *testing.T) {
	adm := NewAdmission(AdmissionTunables{AttemptsPerSecond: 1, Burst: 1, MaxTrackedAddresses: 10}, nil)
	adm.Check("a")
	if got := adm.Check("b"); got != Admit {
		t.Fatalf("expected a fresh address to have its own budget, got %v", got)
	}
}
