package diagnosticsapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"unsafe"

	"alconcurrent/slab"
)

type fakeAllocator struct {
	pruned bool
}

func (f *fakeAllocator) Statistics() []slab.Statistics {
	return []slab.Statistics{{SlotBytes: 16, ChunkNum: 1}}
}

func (f *fakeAllocator) Prune() { f.pruned = true }

type fakeHazard struct{ hazardous bool }

func (f *fakeHazard) IsHazard(addr unsafe.Pointer) bool { return f.hazardous }

func TestStatsRoute(t *testing.T) {
	s := NewServer(&fakeAllocator{}, &fakeHazard{})
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHazardRouteMissingAddr(t *testing.T) {
	s := NewServer(&fakeAllocator{}, &fakeHazard{})
	req := httptest.NewRequest(http.MethodGet, "/hazard", nil)
	w := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing addr, got %d", w.Code)
	}
}

func TestHazardRouteReportsProbe(t *testing.T) {
	s := NewServer(&fakeAllocator{}, &fakeHazard{hazardous: true})
	req := httptest.NewRequest(http.MethodGet, "/hazard?addr=0x1234", nil)
	w := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestPruneRoute(t *testing.T) {
	fa := &fakeAllocator{}
	s := NewServer(fa, &fakeHazard{})
	req := httptest.NewRequest(http.MethodPost, "/prune", nil)
	w := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if !fa.pruned {
		t.Fatal("expected Prune to have been called")
	}
}

func TestHealthzRoute(t *testing.T) {
	s := NewServer(&fakeAllocator{}, &fakeHazard{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
