package permissions

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsboard/opsboard/internal/platform/httpx"
	"github.com/opsboard/opsboard/internal/shared"
)

// Middleware gates HTTP handlers on the current principal's resolved set.
type Middleware struct {
	Manager *Manager
	Metrics *Metrics
	Logger  *slog.Logger
}

// RequireAny ensures the current user holds at least one of the capabilities.
func (m Middleware) RequireAny(types ...Type) func(http.Handler) http.Handler {
	return m.require(func(userID uuid.UUID) (Type, bool) {
		if len(types) == 0 {
			return 0, true
		}
		for _, t := range types {
			if m.Manager.HasCapability(userID, t) {
				return t, true
			}
		}
		return types[0], false
	})
}

// RequireAll ensures the current user holds every capability.
func (m Middleware) RequireAll(types ...Type) func(http.Handler) http.Handler {
	return m.require(func(userID uuid.UUID) (Type, bool) {
		for _, t := range types {
			if !m.Manager.HasCapability(userID, t) {
				return t, false
			}
		}
		return 0, true
	})
}

// RequireAdmin ensures the current user passes the permission management
// authority check. Manager repeats the check on every mutation.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !m.Manager.Directory().Loaded() {
				httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", ErrStoreUnavailable.Error())
				return
			}
			if !m.Manager.CanManage(userID) {
				m.logger().Warn("permissions admin gate", slog.String("user_id", userID.String()), slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "administrator role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) require(check func(uuid.UUID) (Type, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if missing, granted := check(userID); !granted {
				m.Metrics.ObserveDenial(missing)
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+missing.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
