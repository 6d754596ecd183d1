package fixedpoint

import "testing"

func TestFromFloat64RoundTrip(t *testing.T) {
	s := FromFloat64(1.234)
	if s != 1234 {
		t.Fatalf("expected 1234, got %d", s)
	}
	if got := s.Float64(); got != 1.234 {
		t.Fatalf("expected 1.234, got %v", got)
	}
}

func TestVec3Len(t *testing.T) {
	v := Vec3FromFloat64(3, 4, 0)
	if got := v.Len(); got != 5000 {
		t.Fatalf("expected length 5000 (5m), got %d", got)
	}
}

func TestIntSqrt(t *testing.T) {
	cases := map[int64]int64{0: 0, 1: 1, 4: 2, 15: 3, 16: 4, 1000000: 1000}
	for in, want := range cases {
		if got := IntSqrt(in); got != want {
			t.Fatalf("IntSqrt(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(Scalar(50), 0, 100); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := Clamp(Scalar(-10), 0, 100); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := Clamp(Scalar(200), 0, 100); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}
