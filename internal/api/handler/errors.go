package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/servicemap/internal/api/middleware"
	"github.com/kiranshivaraju/servicemap/internal/api/response"
	"github.com/kiranshivaraju/servicemap/internal/discovery"
	"github.com/kiranshivaraju/servicemap/internal/topology"
)

const maxBodyBytes = 1 << 20

// writeError maps a topology or provider error onto the response envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var te *topology.Error
	var details any
	msg := ""
	if errors.As(err, &te) {
		if msg = te.Error(); msg == "" {
			msg = te.Kind.String()
		}
		if te.Ref != "" {
			details = map[string]string{"ref": te.Ref}
		}
	}

	switch topology.KindOf(err) {
	case topology.KindServiceNotFound:
		response.Error(w, http.StatusNotFound, "SERVICE_NOT_FOUND", msg, details)
		return
	case topology.KindApplicationNotFound:
		response.Error(w, http.StatusNotFound, "APPLICATION_NOT_FOUND", msg, nil)
		return
	case topology.KindServiceNotEditable:
		response.Error(w, http.StatusBadRequest, "SERVICE_NOT_EDITABLE", msg, nil)
		return
	case topology.KindInvalidApplicationData:
		response.Error(w, http.StatusBadRequest, "INVALID_APPLICATION_DATA", msg, nil)
		return
	case topology.KindServiceConflict:
		response.Error(w, http.StatusConflict, "SERVICE_CONFLICT", msg, details)
		return
	case topology.KindApplicationConflict:
		response.Error(w, http.StatusConflict, "APPLICATION_CONFLICT", msg, nil)
		return
	case topology.KindApplicationParse:
		slog.Error("stored application is malformed", "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "APPLICATION_PARSE_ERROR",
			"A stored application could not be read", nil)
		return
	}

	switch {
	case errors.Is(err, topology.ErrInvalidProvider):
		response.Error(w, http.StatusBadRequest, "INVALID_PROVIDER", err.Error(), nil)
	case errors.Is(err, discovery.ErrProviderTimeout):
		response.Error(w, http.StatusGatewayTimeout, "PROVIDER_TIMEOUT",
			"The topology provider did not respond in time", nil)
	case errors.Is(err, discovery.ErrProviderUnreachable):
		response.Error(w, http.StatusBadGateway, "PROVIDER_UNREACHABLE",
			"The topology provider is not reachable", nil)
	case errors.Is(err, discovery.ErrProviderResponse):
		response.Error(w, http.StatusBadGateway, "PROVIDER_ERROR",
			"The topology provider returned an invalid response", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// requireTenant returns the authenticated tenant or writes a 401.
func requireTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
	}
	return tenantID, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

func pathServiceID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_SERVICE_ID", "Service id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, "Invalid id format", nil)
		return uuid.Nil, false
	}
	return id, true
}
