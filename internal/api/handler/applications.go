package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/api/response"
	"github.com/kiranshivaraju/servicemap/internal/topology"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// ApplicationManager groups services into applications.
type ApplicationManager interface {
	ListApplications(ctx context.Context, tenantID uuid.UUID) ([]models.ApplicationView, error)
	GetApplication(ctx context.Context, tenantID, applicationID uuid.UUID) (*models.ApplicationView, error)
	CreateApplication(ctx context.Context, tenantID uuid.UUID, in topology.ApplicationInput) (*models.ApplicationView, error)
	UpdateApplication(ctx context.Context, tenantID, applicationID uuid.UUID, in topology.ApplicationInput) (*models.ApplicationView, error)
	DeleteApplication(ctx context.Context, tenantID, applicationID uuid.UUID) error
}

// NewListApplicationsHandler returns an http.HandlerFunc for GET /api/v1/applications.
func NewListApplicationsHandler(svc ApplicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}

		apps, err := svc.ListApplications(r.Context(), tenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Collection(w, apps, len(apps))
	}
}

// NewGetApplicationHandler returns an http.HandlerFunc for GET /api/v1/applications/{id}.
func NewGetApplicationHandler(svc ApplicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "INVALID_APPLICATION_ID")
		if !ok {
			return
		}

		app, err := svc.GetApplication(r.Context(), tenantID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, app)
	}
}

// NewCreateApplicationHandler returns an http.HandlerFunc for POST /api/v1/applications.
// An id in the body is kept as the application's id.
func NewCreateApplicationHandler(svc ApplicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		var in topology.ApplicationInput
		if !decodeBody(w, r, &in) {
			return
		}

		app, err := svc.CreateApplication(r.Context(), tenantID, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, app)
	}
}

// NewUpdateApplicationHandler returns an http.HandlerFunc for PUT /api/v1/applications/{id}.
func NewUpdateApplicationHandler(svc ApplicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "INVALID_APPLICATION_ID")
		if !ok {
			return
		}
		var in topology.ApplicationInput
		if !decodeBody(w, r, &in) {
			return
		}
		in.ID = id

		app, err := svc.UpdateApplication(r.Context(), tenantID, id, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, app)
	}
}

// NewDeleteApplicationHandler returns an http.HandlerFunc for DELETE /api/v1/applications/{id}.
func NewDeleteApplicationHandler(svc ApplicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "INVALID_APPLICATION_ID")
		if !ok {
			return
		}

		if err := svc.DeleteApplication(r.Context(), tenantID, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
