package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/platform/httpx"
)

const (
	rateLimit  = 30
	rateWindow = time.Minute
)

// Handler serves the decision-log timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers the timeline endpoint. Viewing the decision log
// is a system-scoped permission held by support auditors.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.With(h.guard.RequireSystem("audit:view")).Get("/audit/decisions", h.timeline)
	})
}

type recordResponse struct {
	ID             int64     `json:"id"`
	PrincipalID    int64     `json:"principal_id"`
	OrganizationID int64     `json:"organization_id"`
	Action         string    `json:"action"`
	Resource       string    `json:"resource"`
	Allowed        bool      `json:"allowed"`
	Effect         string    `json:"effect"`
	Reason         string    `json:"reason"`
	CacheHit       bool      `json:"cache_hit"`
	DecidedAt      time.Time `json:"decided_at"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters := TimelineFilters{
		PrincipalID:    queryInt(r, "principal_id"),
		OrganizationID: queryInt(r, "organization_id"),
		Page:           int(queryInt(r, "page")),
		PageSize:       int(queryInt(r, "page_size")),
	}
	records, pagination, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("decision timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			ID:             rec.ID,
			PrincipalID:    rec.PrincipalID,
			OrganizationID: rec.OrganizationID,
			Action:         rec.Action,
			Resource:       rec.Resource,
			Allowed:        rec.Allowed,
			Effect:         string(rec.Effect),
			Reason:         rec.Reason,
			CacheHit:       rec.CacheHit,
			DecidedAt:      rec.DecidedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"decisions": out,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func queryInt(r *http.Request, name string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
