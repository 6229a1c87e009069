package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/platform/httpx"
)

// Handler exposes catalog CRUD over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/indicators", func(r chi.Router) {
		r.Get("/", h.listIndicators)
		r.Post("/", h.createIndicator)
		r.Get("/{id}", h.getIndicator)
		r.Put("/{id}", h.updateIndicator)
		r.Delete("/{id}", h.deleteIndicator)
	})
	r.Route("/api/report-configurations", func(r chi.Router) {
		r.Get("/", h.listConfigurations)
		r.Post("/", h.saveConfiguration)
		r.Get("/{name}", h.getConfiguration)
		r.Delete("/{name}", h.deleteConfiguration)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrDuplicate) {
		h.logger.Error("catalog request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) listIndicators(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListIndicators(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []IndicatorRecord{}
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h *Handler) getIndicator(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetIndicator(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) createIndicator(w http.ResponseWriter, r *http.Request) {
	var in IndicatorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.CreateIndicator(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) updateIndicator(w http.ResponseWriter, r *http.Request) {
	var in IndicatorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.UpdateIndicator(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteIndicator(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteIndicator(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listConfigurations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListConfigurations(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []ConfigurationRecord{}
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h *Handler) getConfiguration(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetConfiguration(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) saveConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg analytics.ReportConfiguration
	if err := httpx.DecodeJSON(r, &cfg); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.SaveConfiguration(r.Context(), cfg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteConfiguration(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
