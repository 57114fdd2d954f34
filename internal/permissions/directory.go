package permissions

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Directory holds the profiles and resolved sets the dashboard serves from. It
// is created and owned by the caller of Manager and is only modified after the
// store acknowledged a read or write.
type Directory struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]UserPermissions
	loaded      bool
	refreshedAt time.Time
	now         func() time.Time
}

// NewDirectory constructs an empty directory. Every lookup denies until the
// first Replace.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[uuid.UUID]UserPermissions),
		now:   time.Now,
	}
}

// Replace swaps the directory content for a freshly fetched snapshot.
func (d *Directory) Replace(profiles []Profile, grants []Grant) {
	resolved := ResolveAll(profiles, grants)
	users := make(map[uuid.UUID]UserPermissions, len(resolved))
	for _, u := range resolved {
		users[u.Profile.ID] = u
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = users
	d.loaded = true
	d.refreshedAt = d.now()
}

// DenyAll keeps the known profiles but clears every resolved set.
func (d *Directory) DenyAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, u := range d.users {
		u.Permissions = Set{}
		d.users[id] = u
	}
}

// Apply re-resolves a user from rows the store returned for a write. Entries
// not covered by the rows keep their previous value. It reports false when the
// user is unknown.
func (d *Directory) Apply(userID uuid.UUID, grants []Grant) (Set, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return Set{}, false
	}
	for _, g := range grants {
		if g.UserID != userID {
			continue
		}
		u.Permissions = u.Permissions.With(g.Permission, g.Granted)
	}
	d.users[userID] = u
	return u.Permissions, true
}

// Profile looks up a known profile.
func (d *Directory) Profile(id uuid.UUID) (Profile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u.Profile, ok
}

// User returns the profile and set of a known user.
func (d *Directory) User(id uuid.UUID) (UserPermissions, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u, ok
}

// Permissions returns the resolved set of id, all false when unknown.
func (d *Directory) Permissions(id uuid.UUID) Set {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[id].Permissions
}

// Users lists every user ordered by name, then email.
func (d *Directory) Users() []UserPermissions {
	d.mu.RLock()
	out := make([]UserPermissions, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Profile, out[j].Profile
		if !strings.EqualFold(a.FullName, b.FullName) {
			return strings.ToLower(a.FullName) < strings.ToLower(b.FullName)
		}
		if a.Email != b.Email {
			return a.Email < b.Email
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

// Loaded reports whether a snapshot has been installed.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// RefreshedAt returns when the current snapshot was installed.
func (d *Directory) RefreshedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.refreshedAt
}
