package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/opsboard/opsboard/internal/shared"
)

const (
	opSet           = "set"
	opSetAll        = "set_all"
	opApplyTemplate = "apply_template"
)

const defaultRefreshTimeout = 15 * time.Second

// AuditRecorder persists the audit stamp of a mutation.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ManagerConfig carries the optional collaborators of Manager.
type ManagerConfig struct {
	Authorizer Authorizer
	Audit      AuditRecorder
	Publisher  Publisher
	Metrics    *Metrics
	Logger     *slog.Logger

	// RefreshTimeout bounds one store round trip of Refresh. Defaults to 15s.
	RefreshTimeout time.Duration
}

// Manager is the mutation surface for grants. Every operation checks the
// actor's authority against the directory before the store is touched, writes
// through the store and only then updates the directory from the returned rows.
type Manager struct {
	store     GrantStore
	dir       *Directory
	authz     Authorizer
	audit     AuditRecorder
	publisher Publisher
	metrics   *Metrics
	logger    *slog.Logger
	refreshes singleflight.Group
	timeout   time.Duration
}

// NewManager wires a Manager around store and the caller-owned directory.
func NewManager(store GrantStore, dir *Directory, cfg ManagerConfig) *Manager {
	if dir == nil {
		dir = NewDirectory()
	}
	authz := cfg.Authorizer
	if authz == nil {
		authz = RoleAuthorizer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &Manager{
		store:     store,
		dir:       dir,
		authz:     authz,
		audit:     cfg.Audit,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
		timeout:   timeout,
	}
}

// Directory returns the directory the manager maintains.
func (m *Manager) Directory() *Directory {
	return m.dir
}

// Refresh re-fetches profiles and grants and replaces the directory. When the
// store cannot be read every known user is denied until the next success.
//
// Concurrent callers share one round trip. It runs detached from the caller's
// cancellation under its own timeout; a caller whose ctx ends stops waiting
// and gets ctx.Err() while the shared refresh completes.
func (m *Manager) Refresh(ctx context.Context) error {
	result := m.refreshes.DoChan("refresh", func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return nil, m.refresh(refreshCtx)
	})
	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	profiles, err := m.store.ListProfiles(ctx)
	if err != nil {
		return m.refreshFailed("list profiles", err)
	}
	grants, err := m.store.ListGrants(ctx)
	if err != nil {
		return m.refreshFailed("list grants", err)
	}
	m.dir.Replace(profiles, grants)
	m.metrics.ObserveRefresh(nil)
	m.logger.Debug("permissions refreshed", slog.Int("profiles", len(profiles)), slog.Int("grants", len(grants)))
	return nil
}

func (m *Manager) refreshFailed(step string, err error) error {
	m.dir.DenyAll()
	m.metrics.ObserveRefresh(err)
	m.logger.Warn("permissions store unavailable, denying all users", slog.String("step", step), slog.Any("error", err))
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, step, err)
}

// ListUsersWithPermissions returns every profile with its resolved set as of
// the last refresh.
func (m *Manager) ListUsersWithPermissions(ctx context.Context, actorID uuid.UUID) ([]UserPermissions, error) {
	if _, err := m.authorize(actorID); err != nil {
		return nil, err
	}
	return m.dir.Users(), nil
}

// SetPermission grants or revokes one capability of target.
func (m *Manager) SetPermission(ctx context.Context, actorID, targetID uuid.UUID, permission Type, granted bool) (Set, error) {
	set, err := m.setPermission(ctx, actorID, targetID, permission, granted)
	m.metrics.ObserveMutation(opSet, err)
	return set, err
}

func (m *Manager) setPermission(ctx context.Context, actorID, targetID uuid.UUID, permission Type, granted bool) (Set, error) {
	if _, err := m.authorize(actorID); err != nil {
		return Set{}, err
	}
	if !permission.Valid() {
		return Set{}, fmt.Errorf("%w: %s", ErrUnknownPermission, permission)
	}
	if err := m.requireUser(targetID); err != nil {
		return Set{}, err
	}
	grant, err := m.store.UpsertGrant(ctx, targetID, permission, granted, actorID)
	if err != nil {
		return Set{}, m.writeFailed(targetID, err)
	}
	set, _ := m.dir.Apply(targetID, []Grant{grant})
	m.stamp(ctx, actorID, targetID, "permissions.set", map[string]any{
		"permission": permission.String(),
		"granted":    grant.Granted,
	})
	return set, nil
}

// SetAllPermissions replaces every capability of target with full, writing one
// explicit row per catalog type so revocations keep their audit trail.
func (m *Manager) SetAllPermissions(ctx context.Context, actorID, targetID uuid.UUID, full Set) (Set, error) {
	set, err := m.setAll(ctx, actorID, targetID, full, "permissions.set_all", nil)
	m.metrics.ObserveMutation(opSetAll, err)
	return set, err
}

// ApplyTemplate replaces every capability of target with the role template.
// Prior grants are not merged.
func (m *Manager) ApplyTemplate(ctx context.Context, actorID, targetID uuid.UUID, role Role) (Set, error) {
	set, err := m.applyTemplate(ctx, actorID, targetID, role)
	m.metrics.ObserveMutation(opApplyTemplate, err)
	return set, err
}

func (m *Manager) applyTemplate(ctx context.Context, actorID, targetID uuid.UUID, role Role) (Set, error) {
	if _, err := m.authorize(actorID); err != nil {
		return Set{}, err
	}
	if _, err := ParseRole(role.String()); err != nil {
		return Set{}, err
	}
	return m.setAll(ctx, actorID, targetID, TemplateSet(role), "permissions.apply_template", map[string]any{
		"role": role.String(),
	})
}

func (m *Manager) setAll(ctx context.Context, actorID, targetID uuid.UUID, full Set, action string, meta map[string]any) (Set, error) {
	if _, err := m.authorize(actorID); err != nil {
		return Set{}, err
	}
	if err := m.requireUser(targetID); err != nil {
		return Set{}, err
	}
	grants, err := m.store.UpsertGrants(ctx, targetID, full.Changes(), actorID)
	if err != nil {
		return Set{}, m.writeFailed(targetID, err)
	}
	set, _ := m.dir.Apply(targetID, grants)
	if meta == nil {
		meta = make(map[string]any, 2)
	}
	meta["granted"] = typeNames(set.Granted())
	meta["rows"] = len(grants)
	m.stamp(ctx, actorID, targetID, action, meta)
	return set, nil
}

// PermissionsFor returns the capability gate of userID from the directory.
func (m *Manager) PermissionsFor(userID uuid.UUID) Gate {
	return NewGate(m.dir.Permissions(userID))
}

// HasCapability reports whether userID may use t according to the directory.
func (m *Manager) HasCapability(userID uuid.UUID, t Type) bool {
	user, ok := m.dir.User(userID)
	if !ok {
		return false
	}
	return m.authz.HasCapability(user, t)
}

// CanManage reports whether userID passes the authority check.
func (m *Manager) CanManage(userID uuid.UUID) bool {
	_, err := m.authorize(userID)
	return err == nil
}

// authorize checks the actor against the directory only. Until the first
// successful refresh nobody is known, so every actor is turned away.
func (m *Manager) authorize(actorID uuid.UUID) (Profile, error) {
	if !m.dir.Loaded() {
		return Profile{}, fmt.Errorf("%w: directory not loaded", ErrStoreUnavailable)
	}
	actor, ok := m.dir.Profile(actorID)
	if !ok || !m.authz.CanMutatePermissions(actor) {
		return Profile{}, fmt.Errorf("%w: actor %s", ErrForbidden, actorID)
	}
	return actor, nil
}

func (m *Manager) requireUser(id uuid.UUID) error {
	if _, ok := m.dir.Profile(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	return nil
}

func (m *Manager) writeFailed(targetID uuid.UUID, err error) error {
	m.logger.Error("permissions write failed", slog.String("user_id", targetID.String()), slog.Any("error", err))
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

// stamp records the audit entry and announces the change. Both are best
// effort once the write has landed.
func (m *Manager) stamp(ctx context.Context, actorID, targetID uuid.UUID, action string, meta map[string]any) {
	if m.audit != nil {
		meta["batch_id"] = uuid.NewString()
		err := m.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "user_permissions",
			EntityID: targetID.String(),
			Meta:     meta,
		})
		if err != nil {
			m.logger.Warn("permissions audit", slog.String("action", action), slog.Any("error", err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, targetID); err != nil {
			m.logger.Warn("permissions publish", slog.String("user_id", targetID.String()), slog.Any("error", err))
		}
	}
}

func typeNames(types []Type) []string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return names
}
