package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// AssetHandler serves persisted verification results
type AssetHandler struct {
	assetStorage interfaces.AssetStorage
	logger       arbor.ILogger
}

// NewAssetHandler creates a new AssetHandler
func NewAssetHandler(assetStorage interfaces.AssetStorage, logger arbor.ILogger) *AssetHandler {
	return &AssetHandler{
		assetStorage: assetStorage,
		logger:       logger,
	}
}

// GetAssetHandler handles GET /api/assets/{requestId}
func (h *AssetHandler) GetAssetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractAssetRequestID(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Request ID is required")
		return
	}

	record, err := h.assetStorage.GetByRequestID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAssetNotFound) {
			h.logger.Warn().Str("request_id", id).Msg("Asset not found")
			WriteError(w, http.StatusNotFound, "Asset not found")
			return
		}
		h.logger.Error().Err(err).Str("request_id", id).Msg("Failed to get asset")
		WriteError(w, http.StatusInternalServerError, "Failed to get asset")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// ListAssetsHandler handles GET /api/assets?status=&page=&pageSize=.
// Listing is always status-scoped; this is the export surface for error
// reporting, not a table scan.
func (h *AssetHandler) ListAssetsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	statusParam := r.URL.Query().Get("status")
	if statusParam == "" {
		WriteError(w, http.StatusBadRequest, "status query parameter is required")
		return
	}

	status := models.LinkStatus(statusParam)
	if !status.Valid() {
		WriteError(w, http.StatusBadRequest, "Unknown link status: "+statusParam)
		return
	}

	page, pageSize := GetPaginationParams(r)
	ctx := r.Context()

	records, err := h.assetStorage.ListByStatus(ctx, status, pageSize, page*pageSize)
	if err != nil {
		h.logger.Error().Err(err).Str("status", statusParam).Msg("Failed to list assets")
		WriteError(w, http.StatusInternalServerError, "Failed to list assets")
		return
	}

	total, err := h.assetStorage.CountByStatus(ctx, status)
	if err != nil {
		h.logger.Error().Err(err).Str("status", statusParam).Msg("Failed to count assets")
		WriteError(w, http.StatusInternalServerError, "Failed to count assets")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"assets":     records,
		"pagination": NewPaginationResponse(page, pageSize, total),
	})
}

// extractAssetRequestID extracts the request ID from the URL path
func extractAssetRequestID(path string) string {
	path = strings.TrimSuffix(path, "/")

	// Extract ID from path like "/api/assets/{requestId}"
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "api" && parts[2] == "assets" {
		return parts[3]
	}

	return ""
}
