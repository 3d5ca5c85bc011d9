package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/realmkit/internal/resource/store"
	"github.com/aussiebroadwan/realmkit/pkg/httpx"
	"github.com/aussiebroadwan/realmkit/pkg/realmx"
)

// ReadyzHandler answers the readiness probe, checking the database and
// the realm's key material.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	resolver *realmx.Resolver,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{
			Database: "ok",
			Realm:    "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if keys, err := resolver.Keys(r.Context()); err != nil || !keys.IsReady() {
			checks.Realm = "error: key set unavailable"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
