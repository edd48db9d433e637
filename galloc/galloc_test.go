package galloc

import "testing"

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	p := Allocate(32, 0)
	if len(p) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(p))
	}
	if !Deallocate(p) {
		t.Fatal("expected Deallocate to succeed")
	}
	if Deallocate(nil) {
		t.Fatal("expected Deallocate(nil) to return false")
	}
}

func TestStatisticsNonEmpty(t *testing.T) {
	stats := Statistics()
	if len(stats) == 0 {
		t.Fatal("expected at least one size-class statistics record")
	}
}

func TestIsHazardNilAddress(t *testing.T) {
	if IsHazard(nil) {
		t.Fatal("nil address should never be hazard")
	}
}
