package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	catalogsvc "github.com/contentgate/backend/internal/services/catalog"
	"github.com/contentgate/backend/internal/transport/http/dto"
	httperrors "github.com/contentgate/backend/internal/transport/http/errors"

	"github.com/contentgate/backend/internal/domain/model"
)

type CatalogHandler struct {
	service *catalogsvc.Service
}

func NewCatalogHandler(service *catalogsvc.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	var req dto.CatalogUpsertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	item, err := h.service.Upsert(r.Context(), catalogsvc.UpsertInput{
		Name:       req.Name,
		Aliases:    req.Aliases,
		StorageRef: req.StorageRef,
		Kind:       req.Kind,
	})
	if err != nil {
		if errors.Is(err, catalogsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "name and storage_ref are required")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to upsert content item")
		return
	}

	httperrors.Write(w, http.StatusOK, catalogItemToDTO(item))
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	item, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalogsvc.ErrContentNotFound) {
			httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
				Code:    "NOT_FOUND",
				Message: "content item not found",
			})
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load content item")
		return
	}

	httperrors.Write(w, http.StatusOK, catalogItemToDTO(item))
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	items, err := h.service.List(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list catalog")
		return
	}

	resp := dto.CatalogListResponse{Items: make([]dto.CatalogItemResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, catalogItemToDTO(item))
	}

	httperrors.Write(w, http.StatusOK, resp)
}

// Import ingests a CSV body with columns name,ref,type,aliases.
func (h *CatalogHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	report, err := h.service.ImportCSV(r.Context(), r.Body)
	if err != nil {
		if errors.Is(err, catalogsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "csv body is required")
			return
		}
		writeBadRequest(w, "INVALID_CSV", err.Error())
		return
	}

	resp := dto.CatalogImportResponse{
		Imported: report.Imported,
		Failed:   report.Failed,
		Rows:     make([]dto.CatalogImportRowResponse, 0, len(report.Rows)),
	}
	for _, row := range report.Rows {
		resp.Rows = append(resp.Rows, dto.CatalogImportRowResponse{
			Line:  row.Line,
			Name:  row.Name,
			ID:    row.ID,
			Error: row.Error,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func catalogItemToDTO(item model.ContentItem) dto.CatalogItemResponse {
	return dto.CatalogItemResponse{
		ID:         item.ID,
		Name:       item.Name,
		Aliases:    item.Aliases,
		StorageRef: item.StorageRef,
		Kind:       string(item.Kind),
		CreatedAt:  item.CreatedAt,
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
