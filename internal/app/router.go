package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/arenahub/arenahub/internal/audit"
	"github.com/arenahub/arenahub/internal/auth"
	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/observability"
	"github.com/arenahub/arenahub/internal/orgs"
	"github.com/arenahub/arenahub/internal/platform/httpx"
	"github.com/arenahub/arenahub/internal/roles"
	"github.com/arenahub/arenahub/internal/shared"
	"github.com/arenahub/arenahub/internal/users"
	"github.com/arenahub/arenahub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	AuthService    *auth.Service

	Authorizer *authz.Authorizer

	AuthHandler  *auth.Handler
	OrgsHandler  *orgs.Handler
	RolesHandler *roles.Handler
	UsersHandler *users.Handler
	AuditHandler *audit.Handler
	JobsHandler  *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with ArenaHub defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		AuthService:    params.AuthService,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	if params.Authorizer != nil {
		r.Post("/authz/check", checkHandler(params.Logger, params.Authorizer))
	}

	if params.OrgsHandler != nil {
		params.OrgsHandler.MountRoutes(r)
	}
	if params.RolesHandler != nil {
		params.RolesHandler.MountRoutes(r)
	}
	if params.UsersHandler != nil {
		r.Route("/system", params.UsersHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

type checkRequest struct {
	Action             string            `json:"action"`
	Resource           string            `json:"resource"`
	OrganizationID     int64             `json:"organization_id"`
	ResourceAttributes map[string]string `json:"resource_attributes,omitempty"`
}

// checkHandler exposes the evaluation engine directly so callers can
// probe a permission without performing the guarded operation.
func checkHandler(logger *slog.Logger, authorizer *authz.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := authz.PrincipalFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		var req checkRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
			return
		}
		if req.Action == "" || req.Resource == "" || req.OrganizationID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "action, resource and organization_id are required")
			return
		}
		decision, err := authorizer.Authorize(r.Context(), authz.Request{
			Principal:          principal,
			Action:             req.Action,
			Resource:           req.Resource,
			OrganizationID:     req.OrganizationID,
			ResourceAttributes: req.ResourceAttributes,
		})
		if err != nil {
			logger.Error("authz check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"allowed":               decision.Allowed,
			"effect":                string(decision.Effect),
			"reason":                decision.Reason,
			"matched_statement_ids": decision.MatchedStatementIDs,
		})
	}
}
