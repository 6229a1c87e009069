package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/coopfin/backoffice/internal/platform/httpx"
)

// MountRoutes registers the analytics endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/api/kpis", h.handleKPIs)
	r.Get("/api/balances", h.handleBalances)
	r.Get("/api/reports/{name}", h.handleReport)
	r.Group(func(gr chi.Router) {
		if h.limit > 0 {
			gr.Use(httprate.Limit(h.limit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
				}),
			))
		}
		gr.Get("/api/reports/{name}/export.csv", h.handleReportCSV)
	})
}
