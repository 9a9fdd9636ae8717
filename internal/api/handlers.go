// Package api provides HTTP handlers for CartRescue endpoints.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/CartRescue/internal/models"
)

// runHandler triggers one recovery sweep (POST /recovery/run).
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.runHandler: processing trigger request", "method", r.Method, "path", r.URL.Path)

	report, err := s.pipe.Run(r.Context())
	if err != nil {
		slog.Error("Server.runHandler: sweep failed", "runID", report.RunID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Recovery sweep failed: "+err.Error()))
		return
	}

	slog.Info("Server.runHandler: sweep completed", "runID", report.RunID, "processed", report.Processed, "sent", report.Sent)
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

// runsHandler returns recent persisted run summaries (GET /recovery/runs).
func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.runsHandler: processing runs request", "method", r.Method, "path", r.URL.Path)

	limit := DefaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			slog.Warn("Server.runsHandler: invalid limit", "limit", raw)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}

	reports, err := s.st.ListRunReports(limit)
	if err != nil {
		slog.Error("Server.runsHandler: failed to fetch run reports", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch run reports"))
		return
	}
	slog.Debug("Server.runsHandler: run reports fetched", "count", len(reports))
	writeJSONResponse(w, http.StatusOK, models.Success(reports))
}

// healthHandler provides a health check endpoint for monitoring (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := http.StatusOK
	if err := s.st.Ping(); err != nil {
		slog.Warn("Server.healthHandler: store unreachable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "cart store unreachable"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
