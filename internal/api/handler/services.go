package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/servicemap/internal/api/middleware"
	"github.com/kiranshivaraju/servicemap/internal/api/response"
	"github.com/kiranshivaraju/servicemap/internal/topology"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// ServiceWriter manages user-authored services.
type ServiceWriter interface {
	CreateManualService(ctx context.Context, tenantID uuid.UUID, in topology.ServiceInput, createdBy string) (*models.ServiceView, error)
	UpdateManualService(ctx context.Context, tenantID uuid.UUID, serviceID int64, in topology.ServiceInput) (*models.ServiceView, error)
	DeleteManualService(ctx context.Context, tenantID uuid.UUID, serviceID int64) error
}

// DependencyWriter manages single dependency edges.
type DependencyWriter interface {
	CreateDependency(ctx context.Context, tenantID uuid.UUID, serviceID, targetID int64, protocol string) (*models.ServiceView, error)
	DeleteDependency(ctx context.Context, tenantID uuid.UUID, serviceID, targetID int64) error
}

// NewCreateServiceHandler returns an http.HandlerFunc for POST /api/v1/services.
// The caller's key email is recorded as created_by.
func NewCreateServiceHandler(svc ServiceWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		in, ok := decodeServiceInput(w, r)
		if !ok {
			return
		}

		view, err := svc.CreateManualService(r.Context(), tenantID, in, mw.GetActor(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, view)
	}
}

// NewUpdateServiceHandler returns an http.HandlerFunc for PUT /api/v1/services/{id}.
func NewUpdateServiceHandler(svc ServiceWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathServiceID(w, r, "id")
		if !ok {
			return
		}
		in, ok := decodeServiceInput(w, r)
		if !ok {
			return
		}

		view, err := svc.UpdateManualService(r.Context(), tenantID, id, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, view)
	}
}

// NewDeleteServiceHandler returns an http.HandlerFunc for DELETE /api/v1/services/{id}.
func NewDeleteServiceHandler(svc ServiceWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathServiceID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteManualService(r.Context(), tenantID, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewCreateDependencyHandler returns an http.HandlerFunc for
// POST /api/v1/services/{id}/dependencies/{targetID}?protocol=.
func NewCreateDependencyHandler(svc DependencyWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathServiceID(w, r, "id")
		if !ok {
			return
		}
		targetID, ok := pathServiceID(w, r, "targetID")
		if !ok {
			return
		}

		protocol := strings.TrimSpace(r.URL.Query().Get("protocol"))
		view, err := svc.CreateDependency(r.Context(), tenantID, id, targetID, protocol)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, view)
	}
}

// NewDeleteDependencyHandler returns an http.HandlerFunc for
// DELETE /api/v1/services/{id}/dependencies/{targetID}.
func NewDeleteDependencyHandler(svc DependencyWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathServiceID(w, r, "id")
		if !ok {
			return
		}
		targetID, ok := pathServiceID(w, r, "targetID")
		if !ok {
			return
		}

		if err := svc.DeleteDependency(r.Context(), tenantID, id, targetID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

func decodeServiceInput(w http.ResponseWriter, r *http.Request) (topology.ServiceInput, bool) {
	var in topology.ServiceInput
	if !decodeBody(w, r, &in) {
		return in, false
	}
	in.Service = strings.TrimSpace(in.Service)
	if in.Service == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "service is required", nil)
		return in, false
	}
	return in, true
}
