package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/opsboard/opsboard/internal/jobs"
	"github.com/opsboard/opsboard/internal/permissions"
)

const (
	findingNoGrants      = "no_grants"
	findingAdminPartial  = "admin_partial"
	findingTemplateDrift = "template_drift"
)

// GrantReader is the read side of the grant store used by the reconcile job.
type GrantReader interface {
	ListProfiles(ctx context.Context) ([]permissions.Profile, error)
	ListGrants(ctx context.Context) ([]permissions.Grant, error)
}

// ReconcileReport summarises one reconcile run.
type ReconcileReport struct {
	Users         int
	NoGrants      []permissions.Profile
	AdminPartial  []permissions.Profile
	TemplateDrift []permissions.Profile
}

// PermissionsReconcileJob re-resolves every user from the store and reports
// users whose capabilities look inconsistent with their role. It never writes
// grants.
type PermissionsReconcileJob struct {
	Store     GrantReader
	Publisher permissions.Publisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewPermissionsReconcileJob initialises the reconcile handler.
func NewPermissionsReconcileJob(store GrantReader, publisher permissions.Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionsReconcileJob {
	return &PermissionsReconcileJob{
		Store:     store,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reconcile task.
func (j *PermissionsReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("permissions reconcile: handler not configured")
	}
	var payload PermissionsReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskPermissionsReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("broadcast", payload.Broadcast))
	logger.Info("starting permissions reconcile")

	report, err := j.Run(ctx)
	if err != nil {
		resultErr = err
		logger.Error("reconcile failed", slog.Any("error", err))
		return resultErr
	}

	for _, p := range report.NoGrants {
		logger.Info("user has no grants", slog.String("user_id", p.ID.String()), slog.String("role", p.Role.String()))
	}
	for _, p := range report.AdminPartial {
		logger.Warn("admin lacks capabilities", slog.String("user_id", p.ID.String()), slog.String("email", p.Email))
	}
	for _, p := range report.TemplateDrift {
		logger.Debug("user differs from role template", slog.String("user_id", p.ID.String()), slog.String("role", p.Role.String()))
	}
	j.Metrics.SetFindings(findingNoGrants, len(report.NoGrants))
	j.Metrics.SetFindings(findingAdminPartial, len(report.AdminPartial))
	j.Metrics.SetFindings(findingTemplateDrift, len(report.TemplateDrift))

	if payload.Broadcast && j.Publisher != nil {
		if err := j.Publisher.PublishAll(ctx); err != nil {
			logger.Warn("broadcast refresh", slog.Any("error", err))
		}
	}

	logger.Info("completed permissions reconcile",
		slog.Int("users", report.Users),
		slog.Int("no_grants", len(report.NoGrants)),
		slog.Int("admin_partial", len(report.AdminPartial)),
		slog.Int("template_drift", len(report.TemplateDrift)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// Run loads every profile and grant and classifies the resolved sets.
func (j *PermissionsReconcileJob) Run(ctx context.Context) (ReconcileReport, error) {
	if j.Store == nil {
		return ReconcileReport{}, errors.New("permissions reconcile: store not configured")
	}
	profiles, err := j.Store.ListProfiles(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	grants, err := j.Store.ListGrants(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	byUser := permissions.GroupGrants(grants)

	report := ReconcileReport{Users: len(profiles)}
	for _, u := range permissions.ResolveAll(profiles, grants) {
		p := u.Profile
		if len(byUser[p.ID]) == 0 {
			report.NoGrants = append(report.NoGrants, p)
			continue
		}
		if p.Role == permissions.RoleAdmin && len(u.Permissions.Granted()) != len(permissions.All()) {
			report.AdminPartial = append(report.AdminPartial, p)
			continue
		}
		if p.Role != 0 && u.Permissions != permissions.TemplateSet(p.Role) {
			report.TemplateDrift = append(report.TemplateDrift, p)
		}
	}
	return report, nil
}

func (j *PermissionsReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
