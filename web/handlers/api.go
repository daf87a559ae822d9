// Package handlers provides HTTP handlers and middleware for the
// Stratum REST API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/storage"
)

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	controller *engine.TierController
	config     *config.Config
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(controller *engine.TierController, cfg *config.Config) *APIHandlers {
	return &APIHandlers{
		controller: controller,
		config:     cfg,
	}
}

// RecordTurn handles POST /api/turns - score and store one
// conversational turn in the hot tier.
func (h *APIHandlers) RecordTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	item, err := h.controller.RecordTurn(r.Context(), engine.TurnInput{
		OwnerID:   req.OwnerID,
		SessionID: req.SessionID,
		Content:   req.Content,
		Entities:  req.Entities,
		Signals:   req.Signals,
	})
	if err != nil {
		respondDomainError(w, "failed to record turn", err)
		return
	}

	respondJSON(w, http.StatusCreated, TurnResponse{
		ItemID:     item.ID,
		Importance: item.Importance,
		Tier:       item.Tier.String(),
	})
}

// RecallContext handles GET /api/context - assemble a ranked context
// window. Query parameters: owner (required), hint, depth
// (shallow|deep).
func (h *APIHandlers) RecallContext(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "owner query parameter is required", nil)
		return
	}
	hint := r.URL.Query().Get("hint")
	depth := engine.ParseDepth(r.URL.Query().Get("depth"))

	result, err := h.controller.RecallContext(r.Context(), ownerID, hint, depth)
	if err != nil {
		respondDomainError(w, "failed to recall context", err)
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 0)
	if limit > 0 && limit < len(result.Entries) {
		result.Entries = result.Entries[:limit]
	}
	respondJSON(w, http.StatusOK, result)
}

// VerifyIntegrity handles GET /api/integrity - verify the owner's hash
// chain. A broken chain is reported in the body with status 200; the
// verification itself succeeded.
func (h *APIHandlers) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "owner query parameter is required", nil)
		return
	}

	report, err := h.controller.VerifyIntegrity(r.Context(), ownerID)
	if err != nil {
		respondDomainError(w, "failed to verify chain", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ExportAudit handles GET /api/audit - export the owner's full
// reconstructed archive with chain metadata.
func (h *APIHandlers) ExportAudit(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "owner query parameter is required", nil)
		return
	}

	export, err := h.controller.ExportForAudit(r.Context(), ownerID)
	if err != nil {
		respondDomainError(w, "failed to export audit", err)
		return
	}
	respondJSON(w, http.StatusOK, export)
}

// RedactChunk handles POST /api/redact - scrub personal identifiers
// from an archived chunk.
func (h *APIHandlers) RedactChunk(w http.ResponseWriter, r *http.Request) {
	var req RedactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if req.OwnerID == "" || req.ChunkID == "" {
		respondError(w, http.StatusBadRequest, "owner_id and chunk_id are required", nil)
		return
	}

	chunk, err := h.controller.RedactChunk(r.Context(), req.OwnerID, req.ChunkID, req.Identifiers...)
	if err != nil {
		respondDomainError(w, "failed to redact chunk", err)
		return
	}

	respondJSON(w, http.StatusOK, RedactResponse{
		ChunkID:  chunk.ChunkID,
		Redacted: chunk.Redacted,
		Payload:  chunk.DeltaPayload,
	})
}

// GetStats handles GET /api/stats - the owner's footprint across all
// tiers.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "owner query parameter is required", nil)
		return
	}

	stats, err := h.controller.Stats(r.Context(), ownerID)
	if err != nil {
		respondDomainError(w, "failed to load stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// PurgeItem handles DELETE /api/items/{id} - remove a hot or warm item
// outright. Query parameter: owner (required).
func (h *APIHandlers) PurgeItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	ownerID := r.URL.Query().Get("owner")
	if itemID == "" || ownerID == "" {
		respondError(w, http.StatusBadRequest, "item ID and owner are required", nil)
		return
	}

	if err := h.controller.PurgeItem(r.Context(), ownerID, itemID); err != nil {
		respondDomainError(w, "failed to purge item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondDomainError maps engine sentinel errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, storage.ErrOwnerBusy):
		respondError(w, http.StatusConflict, message, err)
	case errors.Is(err, storage.ErrChainIntegrity):
		// Surfacing a tamper signal is the whole point; never mask it.
		respondError(w, http.StatusConflict, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}
