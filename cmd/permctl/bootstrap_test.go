package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/internal/permissions"
	"github.com/opsboard/opsboard/internal/shared"
)

type fakeStore struct {
	profiles []permissions.Profile
	grants   []permissions.Grant
	writes   map[uuid.UUID][]permissions.Change
}

func (s *fakeStore) ListProfiles(ctx context.Context) ([]permissions.Profile, error) {
	return s.profiles, nil
}

func (s *fakeStore) ListGrants(ctx context.Context) ([]permissions.Grant, error) {
	return s.grants, nil
}

func (s *fakeStore) UpsertGrant(ctx context.Context, userID uuid.UUID, permission permissions.Type, granted bool, grantedBy uuid.UUID) (permissions.Grant, error) {
	grants, err := s.UpsertGrants(ctx, userID, []permissions.Change{{Permission: permission, Granted: granted}}, grantedBy)
	if err != nil {
		return permissions.Grant{}, err
	}
	return grants[0], nil
}

func (s *fakeStore) UpsertGrants(ctx context.Context, userID uuid.UUID, changes []permissions.Change, grantedBy uuid.UUID) ([]permissions.Grant, error) {
	if s.writes == nil {
		s.writes = make(map[uuid.UUID][]permissions.Change)
	}
	s.writes[userID] = append(s.writes[userID], changes...)
	now := time.Now()
	out := make([]permissions.Grant, 0, len(changes))
	for _, c := range changes {
		out = append(out, permissions.Grant{
			UserID:     userID,
			Permission: c.Permission,
			Granted:    c.Granted,
			GrantedBy:  grantedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return out, nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (a *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type fakePublisher struct {
	all int
}

func (p *fakePublisher) Publish(ctx context.Context, userID uuid.UUID) error { return nil }

func (p *fakePublisher) PublishAll(ctx context.Context) error {
	p.all++
	return nil
}

var (
	freshAdminID   = uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001")
	revokedAdminID = uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000002")
	technicianID   = uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000003")
)

func bootstrapFixture() *fakeStore {
	store := &fakeStore{
		profiles: []permissions.Profile{
			{ID: freshAdminID, FullName: "Fresh Admin", Email: "fresh@example.com", Role: permissions.RoleAdmin},
			{ID: revokedAdminID, FullName: "Revoked Admin", Email: "revoked@example.com", Role: permissions.RoleAdmin},
			{ID: technicianID, FullName: "Tech", Email: "tech@example.com", Role: permissions.RoleTechnician},
		},
	}
	for _, c := range permissions.TemplateSet(permissions.RoleAdmin).With(permissions.Settings, false).Changes() {
		store.grants = append(store.grants, permissions.Grant{
			UserID:     revokedAdminID,
			Permission: c.Permission,
			Granted:    c.Granted,
			GrantedBy:  freshAdminID,
		})
	}
	return store
}

func TestBootstrapOnlyTouchesAdminsWithoutRows(t *testing.T) {
	store := bootstrapFixture()
	audit := &fakeAudit{}
	publisher := &fakePublisher{}
	var out bytes.Buffer

	require.NoError(t, bootstrap(context.Background(), store, audit, publisher, &out))

	require.Len(t, store.writes, 1)
	assert.Equal(t, permissions.TemplateSet(permissions.RoleAdmin).Changes(), store.writes[freshAdminID])
	assert.NotContains(t, store.writes, revokedAdminID)
	assert.NotContains(t, store.writes, technicianID)
	assert.Equal(t, 1, publisher.all)
	assert.Contains(t, out.String(), "skipped Revoked Admin <revoked@example.com>")
	assert.Contains(t, out.String(), "1 admin(s) bootstrapped")
}

func TestBootstrapRecordsAudit(t *testing.T) {
	store := bootstrapFixture()
	audit := &fakeAudit{}
	var out bytes.Buffer

	require.NoError(t, bootstrap(context.Background(), store, audit, &fakePublisher{}, &out))

	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	assert.Equal(t, bootstrapAction, log.Action)
	assert.Equal(t, "user_permissions", log.Entity)
	assert.Equal(t, freshAdminID.String(), log.EntityID)
	assert.Equal(t, uuid.Nil, log.ActorID)
	assert.Equal(t, len(permissions.All()), log.Meta["rows"])
	assert.NotEmpty(t, log.Meta["batch_id"])
}

func TestBootstrapIsNoopOnceRowsExist(t *testing.T) {
	store := bootstrapFixture()
	store.profiles = store.profiles[1:]
	audit := &fakeAudit{}
	publisher := &fakePublisher{}
	var out bytes.Buffer

	require.NoError(t, bootstrap(context.Background(), store, audit, publisher, &out))

	assert.Empty(t, store.writes)
	assert.Empty(t, audit.logs)
	assert.Equal(t, 0, publisher.all)
	assert.Contains(t, out.String(), "0 admin(s) bootstrapped")
}
