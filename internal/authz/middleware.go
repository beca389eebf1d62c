package authz

import (
	"errors"
	"log/slog"
	"net/http"
)

// ResourceFunc derives the resource string and organization scope for a
// request, typically from chi URL parameters.
type ResourceFunc func(r *http.Request) (resource string, organizationID int64)

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Authorizer *Authorizer
	Logger     *slog.Logger
}

// Require guards a route with one action. The resource function scopes
// the check; requests without a resolved principal are rejected outright.
func (m Middleware) Require(action string, resource ResourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			res, organizationID := resource(r)
			err := m.Authorizer.Require(r.Context(), Request{
				Principal:      principal,
				Action:         action,
				Resource:       res,
				OrganizationID: organizationID,
			})
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrForbidden):
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			default:
				if m.Logger != nil {
					m.Logger.Error("authorization guard", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			}
		})
	}
}

// RequireSystem guards a platform-wide route: the check runs against the
// system organization with a fixed resource.
func (m Middleware) RequireSystem(action string) func(http.Handler) http.Handler {
	return m.Require(action, func(*http.Request) (string, int64) {
		return "system", SystemOrgID
	})
}
