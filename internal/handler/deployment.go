package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saasplatform/backend/internal/domain"
)

// DeploymentTracker answers status and cancellation requests for deployments.
type DeploymentTracker interface {
	GetStatus(ctx context.Context, deploymentID string) domain.DeploymentStatus
	Cancel(ctx context.Context, deploymentID string) bool
}

// DeploymentHandler handles deployment HTTP endpoints.
type DeploymentHandler struct {
	tracker DeploymentTracker
}

// NewDeploymentHandler creates a new DeploymentHandler.
func NewDeploymentHandler(tracker DeploymentTracker) *DeploymentHandler {
	return &DeploymentHandler{tracker: tracker}
}

// Status handles GET /api/deployments/{deploymentId}/status.
func (h *DeploymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentId")
	if id == "" {
		Error(w, domain.ErrBadRequest("deployment id is required"))
		return
	}
	JSON(w, http.StatusOK, h.tracker.GetStatus(r.Context(), id))
}

// Cancel handles POST /api/deployments/{deploymentId}/cancel.
func (h *DeploymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentId")
	if id == "" {
		Error(w, domain.ErrBadRequest("deployment id is required"))
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"deploymentId": id,
		"cancelled":    h.tracker.Cancel(r.Context(), id),
	})
}
