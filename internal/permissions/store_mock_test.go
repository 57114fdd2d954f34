package permissions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/opsboard/internal/shared"
)

type grantKey struct {
	user       uuid.UUID
	permission Type
}

// mockStore is a map backed GrantStore that counts reads and writes.
type mockStore struct {
	mu       sync.Mutex
	profiles []Profile
	rows     map[grantKey]Grant
	listErr  error
	writeErr error
	reads    int
	writes   int
	coerce   func(Change) Change
	clock    func() time.Time
}

func newMockStore(profiles ...Profile) *mockStore {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	return &mockStore{
		profiles: profiles,
		rows:     make(map[grantKey]Grant),
		clock: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	}
}

func (m *mockStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]Profile(nil), m.profiles...), nil
}

func (m *mockStore) ListGrants(ctx context.Context) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Grant, 0, len(m.rows))
	for _, g := range m.rows {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockStore) UpsertGrant(ctx context.Context, userID uuid.UUID, permission Type, granted bool, grantedBy uuid.UUID) (Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return Grant{}, m.writeErr
	}
	return m.upsert(userID, Change{Permission: permission, Granted: granted}, grantedBy, m.clock())
}

func (m *mockStore) UpsertGrants(ctx context.Context, userID uuid.UUID, changes []Change, grantedBy uuid.UUID) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	now := m.clock()
	out := make([]Grant, 0, len(changes))
	for _, c := range changes {
		g, err := m.upsert(userID, c, grantedBy, now)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *mockStore) upsert(userID uuid.UUID, c Change, grantedBy uuid.UUID, now time.Time) (Grant, error) {
	if !m.known(userID) {
		return Grant{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if m.coerce != nil {
		c = m.coerce(c)
	}
	key := grantKey{user: userID, permission: c.Permission}
	g, ok := m.rows[key]
	if !ok {
		g = Grant{UserID: userID, Permission: c.Permission, CreatedAt: now}
	}
	g.Granted = c.Granted
	g.GrantedBy = grantedBy
	g.UpdatedAt = now
	m.rows[key] = g
	return g, nil
}

func (m *mockStore) known(id uuid.UUID) bool {
	for _, p := range m.profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (m *mockStore) row(userID uuid.UUID, t Type) (Grant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.rows[grantKey{user: userID, permission: t}]
	return g, ok
}

func (m *mockStore) rowCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.rows {
		if k.user == userID {
			n++
		}
	}
	return n
}

func (m *mockStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type mockAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

type mockPublisher struct {
	mu        sync.Mutex
	published []uuid.UUID
	all       int
	err       error
}

func (p *mockPublisher) Publish(ctx context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, userID)
	return p.err
}

func (p *mockPublisher) PublishAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.all++
	return p.err
}

var (
	adminID      = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	technicianID = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	attendantID  = uuid.MustParse("33333333-3333-4333-8333-333333333333")
)

func testProfiles() []Profile {
	return []Profile{
		{ID: adminID, FullName: "Ada Admin", Email: "ada@example.com", Role: RoleAdmin},
		{ID: technicianID, FullName: "Tomas Tech", Email: "tomas@example.com", Role: RoleTechnician},
		{ID: attendantID, FullName: "Alma Attendant", Email: "alma@example.com", Role: RoleAttendant},
	}
}
