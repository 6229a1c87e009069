package coresync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coopfin/backoffice/internal/platform/httpx"
)

// Trigger enqueues a mirror run on the job queue and returns the task id.
type Trigger interface {
	EnqueueCoreMirror(ctx context.Context, lookbackDays int) (string, error)
}

// StatusReader reports the sync status.
type StatusReader interface {
	Status(ctx context.Context) (Status, error)
}

// TriggerRequest is the optional body of POST /api/sync.
type TriggerRequest struct {
	LookbackDays int `json:"lookback_days" validate:"gte=0,lte=3660"`
}

// Handler exposes sync control endpoints.
type Handler struct {
	trigger         Trigger
	status          StatusReader
	defaultLookback int
	validate        *validator.Validate
	logger          *slog.Logger
}

// NewHandler builds the sync handler.
func NewHandler(trigger Trigger, status StatusReader, defaultLookback int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		trigger:         trigger,
		status:          status,
		defaultLookback: defaultLookback,
		validate:        validator.New(),
		logger:          logger,
	}
}

// MountRoutes registers sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/api/sync", h.triggerSync)
	r.Get("/api/sync/status", h.syncStatus)
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = h.defaultLookback
	}
	id, err := h.trigger.EnqueueCoreMirror(r.Context(), req.LookbackDays)
	if errors.Is(err, httpx.ErrConflict) {
		h.logger.Info("core mirror already queued", slog.Int("lookback_days", req.LookbackDays))
		httpx.RespondError(w, err)
		return
	}
	if err != nil {
		h.logger.Error("enqueue core mirror", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": id, "lookback_days": req.LookbackDays})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Status(r.Context())
	if err != nil {
		h.logger.Error("sync status", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}
