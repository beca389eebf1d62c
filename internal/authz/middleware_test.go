package authz_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/arenahub/arenahub/internal/authz"
)

func guardedRouter(t *testing.T, store *stubReader) chi.Router {
	t.Helper()
	engine := authz.NewEngine(store, nil)
	authorizer := authz.NewAuthorizer(engine, nil, nil, nil, nil)
	guard := authz.Middleware{Authorizer: authorizer}

	r := chi.NewRouter()
	r.With(guard.Require("tournament:create", func(r *http.Request) (string, int64) {
		return "organization:5", 5
	})).Post("/tournaments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return r
}

func TestMiddlewareRejectsWithoutPrincipal(t *testing.T) {
	r := guardedRouter(t, &stubReader{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tournaments", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareAllowsGrantedPrincipal(t *testing.T) {
	store := &stubReader{builtin: map[grantKey][]string{
		{10, 5}: {authz.RoleTournamentManager},
	}}
	r := guardedRouter(t, store)

	req := httptest.NewRequest(http.MethodPost, "/tournaments", nil)
	ctx := authz.ContextWithPrincipal(req.Context(), authz.Principal{ID: 10, GlobalRole: authz.GlobalRoleUser})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestMiddlewareForbidsUngrantedPrincipal(t *testing.T) {
	r := guardedRouter(t, &stubReader{})

	req := httptest.NewRequest(http.MethodPost, "/tournaments", nil)
	ctx := authz.ContextWithPrincipal(req.Context(), authz.Principal{ID: 77, GlobalRole: authz.GlobalRoleUser})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareReportsStoreFailureAsUnavailable(t *testing.T) {
	r := guardedRouter(t, &stubReader{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodPost, "/tournaments", nil)
	ctx := authz.ContextWithPrincipal(req.Context(), authz.Principal{ID: 10, GlobalRole: authz.GlobalRoleUser})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
