// Package handlers implements the REST endpoints over the card service.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cardvault/application/services"
	"cardvault/domain/card"
	"cardvault/infrastructure/config"
	"cardvault/pkg/common"
	apperrors "cardvault/pkg/errors"
	"cardvault/pkg/utils"
)

// CardHandler translates HTTP requests into card service calls.
type CardHandler struct {
	service *services.CardService
	cfg     *config.Config
	logger  *zap.Logger
}

// NewCardHandler creates the card HTTP handler.
func NewCardHandler(service *services.CardService, cfg *config.Config, logger *zap.Logger) *CardHandler {
	return &CardHandler{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
}

type createCardRequest struct {
	Payload map[string]interface{} `json:"payload" validate:"required"`
}

type patchCardRequest struct {
	Version     int64                  `json:"version" validate:"required,min=1"`
	Category    *string                `json:"category,omitempty"`
	ValueMedian *int64                 `json:"valueMedian,omitempty"`
	Status      *string                `json:"status,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	ExpireAt    *time.Time             `json:"expireAt,omitempty"`
}

type versionedRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

type uploadRequest struct {
	ContentType string `json:"contentType" validate:"required"`
}

type uploadResponse struct {
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
	ExpiresIn int64  `json:"expiresIn"`
}

// CreateCard handles POST /api/v1/cards.
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError(err.Error()))
		return
	}

	created, err := h.service.CreateCard(r.Context(), req.Payload)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, created)
}

// GetCard handles GET /api/v1/cards/{cardID}.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCard(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, c)
}

// PatchCard handles PATCH /api/v1/cards/{cardID}. The body carries the
// version the caller read; a stale version yields 409.
func (h *CardHandler) PatchCard(w http.ResponseWriter, r *http.Request) {
	var req patchCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError(err.Error()))
		return
	}

	patch := card.Patch{
		Category:    req.Category,
		ValueMedian: req.ValueMedian,
		Payload:     req.Payload,
		ExpireAt:    req.ExpireAt,
	}
	if req.Status != nil {
		status := card.Status(*req.Status)
		patch.Status = &status
	}

	updated, err := h.service.PatchCard(r.Context(), chi.URLParam(r, "cardID"), req.Version, patch)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, updated)
}

// ReprocessCard handles POST /api/v1/cards/{cardID}/reprocess.
func (h *CardHandler) ReprocessCard(w http.ResponseWriter, r *http.Request) {
	var req versionedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError(err.Error()))
		return
	}

	updated, err := h.service.RequestReprocess(r.Context(), chi.URLParam(r, "cardID"), req.Version)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, updated)
}

// DeleteCard handles DELETE /api/v1/cards/{cardID}?version=N.
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version < 1 {
		common.RespondAppError(w, apperrors.NewValidationError("version query parameter is required"))
		return
	}

	if err := h.service.DeleteCard(r.Context(), chi.URLParam(r, "cardID"), version); err != nil {
		common.RespondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCards handles GET /api/v1/cards.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	params := common.ExtractListParams(r, h.cfg.DefaultPageSize, h.cfg.MaxPageSize)

	page, err := h.service.ListCards(r.Context(), params.Cursor, params.Limit)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, common.Page{
		Items:      page.Cards,
		NextCursor: page.NextCursor,
	})
}

// SearchCards handles GET /api/v1/cards/search?category=...&minValue=...&maxValue=...
// Values are cents.
func (h *CardHandler) SearchCards(w http.ResponseWriter, r *http.Request) {
	params := common.ExtractListParams(r, h.cfg.DefaultPageSize, h.cfg.MaxPageSize)

	valueRange, err := parseValueRange(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	page, err := h.service.SearchByCategory(r.Context(), r.URL.Query().Get("category"), valueRange, params.Cursor, params.Limit)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, common.Page{
		Items:      page.Cards,
		NextCursor: page.NextCursor,
	})
}

// RequestUpload handles POST /api/v1/uploads.
func (h *CardHandler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, apperrors.NewValidationError(err.Error()))
		return
	}

	url, objectKey, err := h.service.IssueUploadURL(r.Context(), req.ContentType)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, uploadResponse{
		UploadURL: url,
		ObjectKey: objectKey,
		ExpiresIn: int64(h.cfg.UploadURLTTL.Seconds()),
	})
}

func parseValueRange(r *http.Request) (*card.ValueRange, error) {
	var vr card.ValueRange
	if raw := r.URL.Query().Get("minValue"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperrors.NewValidationError("minValue must be an integer number of cents")
		}
		vr.Min = &n
	}
	if raw := r.URL.Query().Get("maxValue"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperrors.NewValidationError("maxValue must be an integer number of cents")
		}
		vr.Max = &n
	}
	if vr.Min == nil && vr.Max == nil {
		return nil, nil
	}
	return &vr, nil
}
