package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/opsboard/opsboard/internal/jobs"
	"github.com/opsboard/opsboard/internal/permissions"
)

type stubGrantReader struct {
	profiles []permissions.Profile
	grants   []permissions.Grant
	err      error
}

func (s stubGrantReader) ListProfiles(ctx context.Context) ([]permissions.Profile, error) {
	return s.profiles, s.err
}

func (s stubGrantReader) ListGrants(ctx context.Context) ([]permissions.Grant, error) {
	return s.grants, s.err
}

type stubPublisher struct {
	all int
}

func (p *stubPublisher) Publish(ctx context.Context, userID uuid.UUID) error { return nil }

func (p *stubPublisher) PublishAll(ctx context.Context) error {
	p.all++
	return nil
}

func templateGrants(userID uuid.UUID, role permissions.Role) []permissions.Grant {
	var grants []permissions.Grant
	for _, c := range permissions.TemplateSet(role).Changes() {
		grants = append(grants, permissions.Grant{UserID: userID, Permission: c.Permission, Granted: c.Granted})
	}
	return grants
}

func reconcileFixture() stubGrantReader {
	admin := permissions.Profile{ID: uuid.New(), FullName: "Admin", Role: permissions.RoleAdmin}
	partialAdmin := permissions.Profile{ID: uuid.New(), FullName: "Partial", Role: permissions.RoleAdmin}
	tech := permissions.Profile{ID: uuid.New(), FullName: "Tech", Role: permissions.RoleTechnician}
	drifted := permissions.Profile{ID: uuid.New(), FullName: "Drifted", Role: permissions.RoleAttendant}
	fresh := permissions.Profile{ID: uuid.New(), FullName: "Fresh", Role: permissions.RoleAttendant}

	var grants []permissions.Grant
	grants = append(grants, templateGrants(admin.ID, permissions.RoleAdmin)...)
	grants = append(grants, permissions.Grant{UserID: partialAdmin.ID, Permission: permissions.Dashboard, Granted: true})
	grants = append(grants, templateGrants(tech.ID, permissions.RoleTechnician)...)
	grants = append(grants, templateGrants(drifted.ID, permissions.RoleAttendant)...)
	grants = append(grants, permissions.Grant{UserID: drifted.ID, Permission: permissions.Settings, Granted: true})

	return stubGrantReader{
		profiles: []permissions.Profile{admin, partialAdmin, tech, drifted, fresh},
		grants:   grants,
	}
}

func TestPermissionsReconcileRun(t *testing.T) {
	reader := reconcileFixture()
	job := NewPermissionsReconcileJob(reader, nil, nil, nil)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Users)
	require.Len(t, report.NoGrants, 1)
	assert.Equal(t, "Fresh", report.NoGrants[0].FullName)
	require.Len(t, report.AdminPartial, 1)
	assert.Equal(t, "Partial", report.AdminPartial[0].FullName)
	require.Len(t, report.TemplateDrift, 1)
	assert.Equal(t, "Drifted", report.TemplateDrift[0].FullName)
}

func TestPermissionsReconcileHandle(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	publisher := &stubPublisher{}
	job := NewPermissionsReconcileJob(reconcileFixture(), publisher, nil, metrics)

	task, err := NewPermissionsReconcileTask(true)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, 1, publisher.all)
	count, err := testutil.GatherAndCount(registry, "opsboard_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	findings, err := testutil.GatherAndCount(registry, "opsboard_permission_findings")
	require.NoError(t, err)
	assert.Equal(t, 3, findings)
}

func TestPermissionsReconcileStoreFailure(t *testing.T) {
	publisher := &stubPublisher{}
	job := NewPermissionsReconcileJob(stubGrantReader{err: errors.New("db down")}, publisher, nil, nil)

	task, err := NewPermissionsReconcileTask(true)
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
	assert.Zero(t, publisher.all)
}

func TestPermissionsReconcileBadPayload(t *testing.T) {
	job := NewPermissionsReconcileJob(reconcileFixture(), nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskPermissionsReconcile, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
