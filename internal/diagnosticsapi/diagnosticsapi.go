// Package diagnosticsapi exposes the concurrency primitives' runtime
// state over HTTP: per-size-class allocator statistics, a hazard-pointer
// probe, an on-demand prune trigger, and a liveness check. It is the
// introspection surface layered on top of spec.md §6's programmatic
// gmem_get_statistics/hazard API, using gorilla/mux routing and swaggo
// annotations the way a small operational HTTP API typically does.
package diagnosticsapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"unsafe"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"alconcurrent/logger"
	"alconcurrent/slab"
)

// Allocator is the subset of *slab.Allocator the diagnostics server
// depends on, so tests can supply a fake without wiring up a real
// hazard registry and size-class ladder.
type Allocator interface {
	Statistics() []slab.Statistics
	Prune()
}

// HazardProbe is the subset of *hazard.Registry the /hazard route
// depends on.
type HazardProbe interface {
	IsHazard(addr unsafe.Pointer) bool
}

// Server wires an Allocator and a HazardProbe to a gorilla/mux router.
type Server struct {
	alloc  Allocator
	hazard HazardProbe
}

// NewServer constructs a diagnostics Server.
func NewServer(alloc Allocator, hazard HazardProbe) *Server {
	return &Server{alloc: alloc, hazard: hazard}
}

// correlate assigns a fresh google/uuid correlation id to every inbound
// request, the same per-request id role google/uuid plays for entity
// identity elsewhere, and routes the accept/start/end lines through
// logger.LogHTTPAccept/LogHTTPHandler — the trace-line helpers
// logger/trace.go exposes for exactly this connection/handler framing —
// tagging the handler lines with the correlation id in place of
// LogHTTPHandler's usual traceID argument. Both are no-ops unless
// logger.EnableTracing has been turned on (main enables it when
// ALCONCURRENT_LOG_LEVEL is "trace").
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New()
		w.Header().Set("X-Request-Id", id.String())
		logger.LogHTTPAccept(r.Host, r.RemoteAddr)
		logger.LogHTTPHandler(id.String(), r.Method, r.URL.Path, "start")
		next.ServeHTTP(w, r)
		logger.LogHTTPHandler(id.String(), r.Method, r.URL.Path, "end")
	})
}

// NewRouter builds the mux.Router this server answers on:
//
//	GET  /stats     one record per configured size class
//	GET  /hazard    ?addr=0x... reports whether addr is hazard-protected
//	POST /prune     triggers an out-of-band Allocator.Prune pass
//	GET  /healthz   unconditional liveness probe
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(correlate)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/hazard", s.handleHazard).Methods(http.MethodGet)
	r.HandleFunc("/prune", s.handlePrune).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// handleStats godoc
// @Summary Per-size-class allocator statistics
// @Description Returns one chunk_statistics record per configured size class
// @Tags diagnostics
// @Produce json
// @Success 200 {array} slab.Statistics
// @Router /stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.alloc.Statistics())
}

// hazardResponse is the /hazard route's JSON payload.
type hazardResponse struct {
	Addr   string `json:"addr"`
	Hazard bool   `json:"hazard"`
}

// handleHazard godoc
// @Summary Hazard-pointer probe
// @Description Reports whether addr (hex, e.g. 0xc0001... ) is currently protected by any goroutine's hazard context
// @Tags diagnostics
// @Produce json
// @Param addr query string true "address in hex"
// @Success 200 {object} hazardResponse
// @Failure 400 {object} map[string]string
// @Router /hazard [get]
func (s *Server) handleHazard(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("addr")
	if raw == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "missing addr query parameter"})
		return
	}
	v, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "addr must be a hex or decimal integer"})
		return
	}
	addr := unsafe.Pointer(uintptr(v))
	respondJSON(w, http.StatusOK, hazardResponse{Addr: raw, Hazard: s.hazard.IsHazard(addr)})
}

// handlePrune godoc
// @Summary Trigger an out-of-band prune pass
// @Description Runs Allocator.Prune once; concurrent calls collapse into a single pass
// @Tags diagnostics
// @Produce json
// @Success 202 {object} map[string]string
// @Router /prune [post]
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	s.alloc.Prune()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "pruned"})
}

// handleHealthz godoc
// @Summary Liveness probe
// @Tags diagnostics
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
