package roles

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/platform/httpx"
)

// Handler exposes the administrative API over roles, statements,
// assignments, and direct user policies.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler builds the administrative handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		guard:    guard,
		validate: validator.New(),
	}
}

// MountRoutes registers the administrative routes under an organization
// scope. Every mutating route is guarded by this same engine, bootstrapped
// through the built-in Admin role assigned at organization creation.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orgs/{orgID}", func(r chi.Router) {
		r.With(h.guard.Require("role:view", orgResource)).Get("/roles", h.listRoles)
		r.With(h.guard.Require("role:create", orgResource)).Post("/roles", h.createRole)
		r.With(h.guard.Require("role:delete", orgResource)).Delete("/roles/{roleID}", h.deleteRole)

		r.With(h.guard.Require("policy:create", orgResource)).Post("/statements", h.createStatement)
		r.With(h.guard.Require("policy:delete", orgResource)).Delete("/statements/{statementID}", h.deleteStatement)
		r.With(h.guard.Require("policy:attach", orgResource)).Post("/roles/{roleID}/statements", h.attachStatement)
		r.With(h.guard.Require("policy:detach", orgResource)).Delete("/roles/{roleID}/statements/{statementID}", h.detachStatement)

		r.With(h.guard.Require("role:assign", orgResource)).Post("/members/{memberID}/roles", h.assignRole)
		r.With(h.guard.Require("role:revoke", orgResource)).Delete("/members/{memberID}/roles/{roleID}", h.revokeRole)

		r.With(h.guard.Require("policy:grant", orgResource)).Post("/users/{userID}/policies", h.grantUserPolicy)
		r.With(h.guard.Require("policy:revoke", orgResource)).Delete("/users/{userID}/policies/{statementID}", h.revokeUserPolicy)
	})
}

// orgResource scopes a guard check to the organization in the URL.
func orgResource(r *http.Request) (string, int64) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil {
		return "", 0
	}
	return fmt.Sprintf("organization:%d", id), id
}

type roleResponse struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	IsBuiltin      bool   `json:"is_builtin"`
	IsLocked       bool   `json:"is_locked"`
}

func toRoleResponse(role authz.Role) roleResponse {
	return roleResponse{
		ID:             role.ID,
		OrganizationID: role.OrganizationID,
		Name:           role.Name,
		Description:    role.Description,
		IsBuiltin:      role.BuiltIn,
		IsLocked:       role.Locked,
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	list, err := h.service.ListRoles(r.Context(), orgID)
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	var in CreateRoleInput
	if !h.decode(w, r, &in) {
		return
	}
	in.OrganizationID = orgID
	role, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), roleID); err != nil {
		h.fail(w, r, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createStatement(w http.ResponseWriter, r *http.Request) {
	var in StatementInput
	if !h.decode(w, r, &in) {
		return
	}
	id, err := h.service.CreateStatement(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create statement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) deleteStatement(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.pathID(w, r, "statementID")
	if !ok {
		return
	}
	if err := h.service.DeleteStatement(r.Context(), statementID); err != nil {
		h.fail(w, r, "delete statement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) attachStatement(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var in AttachInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.service.AttachStatement(r.Context(), roleID, in.StatementID); err != nil {
		h.fail(w, r, "attach statement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachStatement(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	statementID, ok := h.pathID(w, r, "statementID")
	if !ok {
		return
	}
	if err := h.service.DetachStatement(r.Context(), roleID, statementID); err != nil {
		h.fail(w, r, "detach statement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.pathID(w, r, "memberID")
	if !ok {
		return
	}
	var in AssignInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.service.AssignRole(r.Context(), memberID, in.RoleID, h.actorID(r)); err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.pathID(w, r, "memberID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), memberID, roleID); err != nil {
		h.fail(w, r, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantUserPolicy(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var in GrantInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.service.GrantUserPolicy(r.Context(), userID, orgID, in.StatementID, h.actorID(r)); err != nil {
		h.fail(w, r, "grant user policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeUserPolicy(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	statementID, ok := h.pathID(w, r, "statementID")
	if !ok {
		return
	}
	if err := h.service.RevokeUserPolicy(r.Context(), userID, orgID, statementID); err != nil {
		h.fail(w, r, "revoke user policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) actorID(r *http.Request) int64 {
	principal, _ := authz.PrincipalFromContext(r.Context())
	return principal.ID
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err)
}
