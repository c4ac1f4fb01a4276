package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-detailing/internal/common"
)

// Probe checks a single dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. The API clears it when shutdown begins so
// load balancers drain traffic before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe and reports 503 when any of them fails.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	status := make(map[string]string, len(h.Probes))
	code := http.StatusOK
	for _, p := range h.Probes {
		if err := p.run(r.Context()); err != nil {
			status[p.Name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[p.Name] = "ok"
	}
	common.JSON(w, code, status)
}

func (p Probe) run(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}
