// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net/http"

	"github.com/jeremyhahn/go-passkey/pkg/health"
)

// HealthCheckResponse represents the response for health check endpoints.
type HealthCheckResponse struct {
	// Status is the overall health status
	Status health.Status `json:"status"`
	// Message provides additional context
	Message string `json:"message,omitempty"`
	// Checks contains individual check results (for readiness)
	Checks []health.CheckResult `json:"checks,omitempty"`
}

// LivenessHandler handles GET /health/live requests.
//
// Liveness probes determine if the service is alive and should be restarted.
// This endpoint only fails if the service is in an unrecoverable state.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "Service is alive",
		}, http.StatusOK)
		return
	}

	result := s.checker.Live(r.Context())

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}, statusCode)
}

// ReadinessHandler handles GET /health/ready requests.
//
// Readiness fails when the service cannot complete ceremonies, typically
// because the credential store is unreachable. The service may be alive but
// not ready.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "Service is ready",
		}, http.StatusOK)
		return
	}

	results := s.checker.Ready(r.Context())
	overall := health.AggregateStatus(results)

	resp := HealthCheckResponse{
		Status: overall,
		Checks: results,
	}

	switch overall {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Service is degraded"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}

	statusCode := http.StatusOK
	if overall == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, statusCode)
}

// StartupHandler handles GET /health/startup requests.
//
// Startup probes gate liveness and readiness until initialization completes.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "Service has started",
		}, http.StatusOK)
		return
	}

	result := s.checker.Startup(r.Context())

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}, statusCode)
}
