package routehandlers

import (
	"context"
	"net/http"
	"time"

	"github.com/weathermail/weathermail/webutil"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health. It always responds 200; degradation
// is reflected in the body so probes and dashboards can both use it.
type HealthHandler struct {
	Store     Pinger
	Version   string
	startedAt time.Time
}

func NewHealthHandler(store Pinger, version string) *HealthHandler {
	if version == "" {
		version = "dev"
	}
	return &HealthHandler{
		Store:     store,
		Version:   version,
		startedAt: time.Now(),
	}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	status := "ok"
	database := "connected"
	if err := h.Store.Ping(ctx); err != nil {
		status = "degraded"
		database = "disconnected"
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"database":      database,
		"uptimeSeconds": time.Since(h.startedAt).Seconds(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"version":       h.Version,
	})
	return nil
}
