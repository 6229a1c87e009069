package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/analytics/export"
	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/platform/httpx"
)

const defaultRequestTimeout = 10 * time.Second

// AnalyticsService defines the engine contract used by the handler.
type AnalyticsService interface {
	GetKPISeries(ctx context.Context, filter analytics.KPIFilter) (analytics.Aggregation, error)
	GetTrendReport(ctx context.Context, filter analytics.ReportFilter) (analytics.ReportResult, error)
}

// Handler serves KPI, report and raw balance queries as JSON.
type Handler struct {
	logger   *slog.Logger
	service  AnalyticsService
	balances analytics.BalanceFetcher
	csvPool  sync.Pool
	timeout  time.Duration
	limit    int
}

// NewHandler constructs the analytics HTTP handler. exportsPerMinute <= 0 disables the
// export rate limit.
func NewHandler(logger *slog.Logger, service AnalyticsService, balances analytics.BalanceFetcher, timeout time.Duration, exportsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	h := &Handler{
		logger:   logger,
		service:  service,
		balances: balances,
		timeout:  timeout,
		limit:    exportsPerMinute,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

type rangeFilter struct {
	office string
	from   time.Time
	to     time.Time
}

func parseRange(r *http.Request) (rangeFilter, error) {
	office := strings.TrimSpace(r.URL.Query().Get("office"))
	if office == "" {
		return rangeFilter{}, fmt.Errorf("%w: office is required", httpx.ErrValidation)
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		return rangeFilter{}, err
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		return rangeFilter{}, err
	}
	return rangeFilter{office: office, from: from, to: to}, nil
}

func (h *Handler) handleKPIs(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if rng.from.After(rng.to) {
		httpx.RespondError(w, fmt.Errorf("%w: from must not be after to", httpx.ErrValidation))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	agg, err := h.service.GetKPISeries(ctx, analytics.KPIFilter{
		Office:       rng.office,
		From:         rng.from,
		To:           rng.to,
		IndicatorIDs: httpx.QueryList(r, "indicator"),
	})
	if err != nil {
		h.respondError(w, "load kpis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) loadReport(r *http.Request) (analytics.ReportResult, error) {
	rng, err := parseRange(r)
	if err != nil {
		return analytics.ReportResult{}, err
	}
	period := r.URL.Query().Get("period")
	if strings.TrimSpace(period) == "" {
		period = string(analytics.GranularityMonthly)
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	return h.service.GetTrendReport(ctx, analytics.ReportFilter{
		Name:   chi.URLParam(r, "name"),
		Office: rng.office,
		From:   rng.from,
		To:     rng.to,
		Period: period,
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.loadReport(r)
	if err != nil {
		h.respondError(w, "load report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	report, err := h.loadReport(r)
	if err != nil {
		h.respondError(w, "load report", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteReportCSV(buf, report); err != nil {
		h.respondError(w, "write report csv", err)
		return
	}

	filename := fmt.Sprintf("%s-%s-%s.csv", report.Name, report.OfficeCode, r.URL.Query().Get("to"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rows, err := h.balances.FetchBalances(ctx, rng.office, rng.from, rng.to, httpx.QueryList(r, "account"))
	if err != nil {
		h.respondError(w, "load balances", err)
		return
	}
	if rows == nil {
		rows = []ledger.BalanceRow{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrValidation):
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "request timed out")
		return
	default:
		h.logger.Error(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
