package permissions

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/opsboard/opsboard/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != uuid.Nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), userID))
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAny(t *testing.T) {
	fx := newManagerFixture(t,
		Grant{UserID: technicianID, Permission: Orders, Granted: true},
	)
	mw := Middleware{Manager: fx.manager, Metrics: fx.metrics}
	h := mw.RequireAny(Financial, Orders)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, requestAs(technicianID)).Code)

	rec := serve(h, requestAs(attendantID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.denials.WithLabelValues("financial")))

	assert.Equal(t, http.StatusUnauthorized, serve(h, requestAs(uuid.Nil)).Code)
}

func TestRequireAll(t *testing.T) {
	fx := newManagerFixture(t,
		Grant{UserID: attendantID, Permission: Reports, Granted: true},
		Grant{UserID: attendantID, Permission: Financial, Granted: true},
		Grant{UserID: technicianID, Permission: Reports, Granted: true},
	)
	mw := Middleware{Manager: fx.manager, Metrics: fx.metrics}
	h := mw.RequireAll(Reports, Financial)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, requestAs(attendantID)).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, requestAs(technicianID)).Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.denials.WithLabelValues("financial")))
}

func TestRequireAdmin(t *testing.T) {
	fx := newManagerFixture(t)
	h := Middleware{Manager: fx.manager}.RequireAdmin()(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, requestAs(adminID)).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, requestAs(attendantID)).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, requestAs(uuid.New())).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, requestAs(uuid.Nil)).Code)
}

func TestRequireAdminBeforeFirstLoad(t *testing.T) {
	manager := NewManager(newMockStore(testProfiles()...), nil, ManagerConfig{})
	h := Middleware{Manager: manager}.RequireAdmin()(okHandler())

	rec := serve(h, requestAs(adminID))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusUnauthorized, serve(h, requestAs(uuid.Nil)).Code)
}
