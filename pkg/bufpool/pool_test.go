package bufpool

import "testing"

func TestRentSizesAndReturn(t *testing.T) {
	m := New(12)
	l := m.Rent(100)
	if len(l.Buf) != 100 {
		t.Fatalf("expected len 100, got %d", len(l.Buf))
	}
	if cap(l.Buf) < 128 {
		t.Fatalf("expected at least the 128-byte class, got cap %d", cap(l.Buf))
	}
	m.Return(l)
	m.Return(l) // second return is a no-op
}

func TestOversizeRentIsNotPooled(t *testing.T) {
	m := New(8) // largest class 256 bytes
	l := m.Rent(10_000)
	if len(l.Buf) != 10_000 {
		t.Fatalf("oversize rent wrong length %d", len(l.Buf))
	}
	m.Return(l)
}

func TestTrackingCountsOutstanding(t *testing.T) {
	tm := NewTracking(12)
	a := tm.Rent(64)
	b := tm.Rent(64)
	if got := tm.Outstanding(); got != 2 {
		t.Fatalf("outstanding = %d, want 2", got)
	}
	tm.Return(a)
	tm.Return(b)
	if got := tm.Outstanding(); got != 0 {
		t.Fatalf("outstanding after returns = %d, want 0", got)
	}
}
