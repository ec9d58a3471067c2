package handlers

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout bounds the health probe round-trip.
const healthTimeout = 2 * time.Second

// HealthProbe reports the catalog store clock.
type HealthProbe interface {
	Now(ctx context.Context) (time.Time, error)
}

type healthResponse struct {
	Status    string     `json:"status"`
	Database  string     `json:"database,omitempty"`
	Catalog   string     `json:"catalog,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// HealthHandler pings the catalog store. catalog names the backing store in the response.
func HealthHandler(probe HealthProbe, catalog string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		now, err := probe.Now(ctx)
		if err != nil {
			writeJSON(w, r, http.StatusInternalServerError, healthResponse{
				Status:  "unhealthy",
				Catalog: catalog,
				Error:   err.Error(),
			})
			return
		}

		writeJSON(w, r, http.StatusOK, healthResponse{
			Status:    "healthy",
			Database:  "connected",
			Catalog:   catalog,
			Timestamp: &now,
		})
	}
}
