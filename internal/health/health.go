// Package health provides HTTP liveness and readiness handlers for the
// call server.
//
//   - /healthz reports liveness; a process able to serve HTTP is alive.
//   - /readyz reports readiness; 200 only when every registered probe
//     passes (e.g. the transcript storage backend is reachable).
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Probe is a named readiness check. Fn returns nil when the dependency is
// usable and an error describing the failure otherwise.
type Probe struct {
	// Name labels the probe in the JSON response (e.g. "storage").
	Name string

	// Fn checks the dependency. It must respect context cancellation.
	Fn func(ctx context.Context) error
}

// status is the JSON response body for both endpoints.
type status struct {
	Status string            `json:"status"`
	Probes map[string]string `json:"probes,omitempty"`
}

// Handler serves the health endpoints. The probe list is fixed at
// construction time, so the handler is safe for concurrent use.
type Handler struct {
	probes []Probe
}

// New creates a Handler evaluating the given probes, in order, on each
// /readyz request.
func New(probes ...Probe) *Handler {
	p := make([]Probe, len(probes))
	copy(p, probes)
	return &Handler{probes: p}
}

// Healthz always returns 200 ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{Status: "ok"})
}

// Readyz returns 200 only when every probe passes. Each probe runs with a
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	probes := make(map[string]string, len(h.probes))
	code := http.StatusOK
	res := status{Status: "ok", Probes: probes}

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Fn(ctx)
		cancel()

		if err != nil {
			probes[p.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			probes[p.Name] = "ok"
		}
	}

	writeJSON(w, code, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
