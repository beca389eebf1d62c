package orgs

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/platform/httpx"
)

// Handler exposes organization endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers organization routes. Creation is a platform-wide
// action delegated through the system organization.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireSystem("system:create_organization")).Post("/orgs", h.create)
	r.With(h.guard.RequireSystem("system:view_organizations")).Get("/orgs", h.list)
	r.With(h.guard.Require("organization:view", func(r *http.Request) (string, int64) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
		return "organization:" + chi.URLParam(r, "orgID"), id
	})).Get("/orgs/{orgID}", h.get)
	r.With(h.guard.Require("member:add", func(r *http.Request) (string, int64) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
		return "organization:" + chi.URLParam(r, "orgID"), id
	})).Post("/orgs/{orgID}/members", h.addMember)
}

type orgResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(&in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := authz.PrincipalFromContext(r.Context())
	in.CreatorID = principal.ID
	org, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create organization", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orgResponse{ID: org.ID, Name: org.Name, Kind: string(org.Kind)})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list organizations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]orgResponse, 0, len(list))
	for _, org := range list {
		out = append(out, orgResponse{ID: org.ID, Name: org.Name, Kind: string(org.Kind)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"organizations": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid orgID")
		return
	}
	org, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orgResponse{ID: org.ID, Name: org.Name, Kind: string(org.Kind)})
}

type addMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid orgID")
		return
	}
	var in addMemberRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(&in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	member, err := h.service.AddMember(r.Context(), orgID, in.UserID)
	if err != nil {
		h.logger.Error("add member", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"member_id": member.ID})
}
