package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/carrierdesk/backend/internal/carrier"
	"github.com/carrierdesk/backend/internal/db"
	"github.com/carrierdesk/backend/internal/models"
	"github.com/carrierdesk/backend/internal/negotiation"
	"github.com/carrierdesk/backend/internal/service"
	"github.com/carrierdesk/backend/internal/session"
)

// Store is the persistence surface the handlers use directly. Satisfied by
// both db.Store and db.MemStore.
type Store interface {
	Ping(ctx context.Context) error
	SearchLoads(ctx context.Context, c models.SearchCriteria) ([]models.Load, error)
	GetLoad(ctx context.Context, loadID string) (models.Load, error)
	TryBook(ctx context.Context, loadID, mcNumber string, rate float64) (models.Booking, error)
	LoadStats(ctx context.Context) (models.LoadStats, error)
	InsertCallEvent(ctx context.Context, eventType string, payload json.RawMessage) (string, error)
}

type Handler struct {
	Store      Store
	Gateway    carrier.Gateway
	Dispatcher *service.Dispatcher
	Sessions   *session.Store
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Voice agent webhook
// @Description Dispatches a voice-agent action event and returns a conversational envelope
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} service.Envelope
// @Router /api/webhooks/voice [post]
func (h *Handler) VoiceWebhook(c *gin.Context) {
	var ev service.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		// Conversational branch, not a protocol failure: the agent gets a
		// speakable envelope, never an error status.
		h.Logger.Warn().Err(err).Msg("malformed voice webhook payload")
		c.JSON(http.StatusOK, service.Envelope{Success: false, Message: "invalid payload"})
		return
	}
	env := h.Dispatcher.Dispatch(c.Request.Context(), ev)
	c.JSON(http.StatusOK, env)
}

// StatusWebhook persists call status updates verbatim for audit. Always
// acknowledges; the payload has no contract beyond being JSON.
func (h *Handler) StatusWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 || !json.Valid(payload) {
		c.JSON(http.StatusOK, gin.H{"received": false})
		return
	}
	if _, err := h.Store.InsertCallEvent(c.Request.Context(), "status_update", payload); err != nil {
		h.Logger.Error().Err(err).Msg("call event persistence failed")
		c.JSON(http.StatusOK, gin.H{"received": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type SearchLoadsRequest struct {
	Origin        string   `json:"origin"`
	Destination   string   `json:"destination"`
	EquipmentType string   `json:"equipment_type"`
	MinRate       *float64 `json:"min_rate" validate:"omitempty,gt=0"`
	MaxRate       *float64 `json:"max_rate" validate:"omitempty,gt=0"`
	Limit         int      `json:"limit" validate:"omitempty,min=1,max=10"`
}

// @Summary Search available loads
// @Tags loads
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/loads/search [post]
func (h *Handler) LoadsSearch(c *gin.Context) {
	var req SearchLoadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	loads, err := h.Store.SearchLoads(c.Request.Context(), models.SearchCriteria{
		Origin:        req.Origin,
		Destination:   req.Destination,
		EquipmentType: req.EquipmentType,
		MinRate:       req.MinRate,
		MaxRate:       req.MaxRate,
		Limit:         req.Limit,
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to search loads", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": loads, "count": len(loads)})
}

func (h *Handler) LoadGet(c *gin.Context) {
	load, err := h.Store.GetLoad(c.Request.Context(), c.Param("load_id"))
	if err != nil {
		if errors.Is(err, db.ErrLoadNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Load not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get load", err.Error())
		return
	}
	c.JSON(http.StatusOK, load)
}

type BookLoadRequest struct {
	MCNumber   string  `json:"mc_number" validate:"required"`
	AgreedRate float64 `json:"agreed_rate" validate:"required,gt=0"`
}

// @Summary Book a load
// @Tags loads
// @Accept json
// @Produce json
// @Success 200 {object} models.Booking
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/loads/{load_id}/book [post]
func (h *Handler) LoadBook(c *gin.Context) {
	loadID := c.Param("load_id")
	var req BookLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	load, err := h.Store.GetLoad(c.Request.Context(), loadID)
	if err != nil {
		if errors.Is(err, db.ErrLoadNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Load not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get load", err.Error())
		return
	}
	if req.AgreedRate < negotiation.MinAcceptable(load.LoadboardRate) {
		writeError(c, http.StatusBadRequest, "RATE_BELOW_MINIMUM", "Agreed rate is below the minimum acceptable rate", nil)
		return
	}

	booking, err := h.Store.TryBook(c.Request.Context(), loadID, req.MCNumber, req.AgreedRate)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrLoadNotFound):
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Load not found", nil)
		case errors.Is(err, db.ErrLoadNotAvailable):
			writeError(c, http.StatusConflict, "NOT_AVAILABLE", "Load is not available", nil)
		default:
			writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to book load", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, booking)
}

type NegotiateRequest struct {
	OfferedRate      float64 `json:"offered_rate" validate:"required,gt=0"`
	NegotiationRound int     `json:"negotiation_round" validate:"required,min=1"`
	MCNumber         string  `json:"mc_number"`
}

// @Summary Evaluate a rate offer for a load
// @Tags loads
// @Accept json
// @Produce json
// @Success 200 {object} negotiation.Decision
// @Failure 404 {object} map[string]any
// @Router /api/loads/{load_id}/negotiate [post]
func (h *Handler) LoadNegotiate(c *gin.Context) {
	loadID := c.Param("load_id")
	var req NegotiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	load, err := h.Store.GetLoad(c.Request.Context(), loadID)
	if err != nil {
		if errors.Is(err, db.ErrLoadNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Load not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get load", err.Error())
		return
	}

	decision := negotiation.Evaluate(load.LoadboardRate, req.OfferedRate, req.NegotiationRound)

	// Audit trail only; failures here never block the decision.
	audit, _ := json.Marshal(gin.H{
		"load_id":           loadID,
		"mc_number":         req.MCNumber,
		"offered_rate":      req.OfferedRate,
		"negotiation_round": req.NegotiationRound,
		"decision":          decision,
	})
	if _, err := h.Store.InsertCallEvent(c.Request.Context(), "negotiation", audit); err != nil {
		h.Logger.Warn().Err(err).Str("load_id", loadID).Msg("negotiation audit write failed")
	}

	c.JSON(http.StatusOK, decision)
}

// @Summary Load board statistics
// @Tags loads
// @Produce json
// @Success 200 {object} models.LoadStats
// @Router /api/loads/stats/summary [get]
func (h *Handler) LoadStatsSummary(c *gin.Context) {
	stats, err := h.Store.LoadStats(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to compute stats", err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}

type VerifyCarrierRequest struct {
	MCNumber string `json:"mc_number" validate:"required"`
}

// @Summary Verify a carrier MC number
// @Tags carriers
// @Accept json
// @Produce json
// @Success 200 {object} carrier.Verification
// @Failure 502 {object} map[string]any
// @Router /api/carriers/verify [post]
func (h *Handler) CarrierVerify(c *gin.Context) {
	var req VerifyCarrierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	v, err := h.Gateway.Check(c.Request.Context(), req.MCNumber)
	if err != nil {
		h.Logger.Error().Err(err).Str("mc_number", req.MCNumber).Msg("carrier registry lookup failed")
		writeError(c, http.StatusBadGateway, "REGISTRY_UNAVAILABLE", "Unable to verify carrier at this time", nil)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) SessionGet(c *gin.Context) {
	snap, ok := h.Sessions.Snapshot(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
		return
	}
	c.JSON(http.StatusOK, snap)
}
