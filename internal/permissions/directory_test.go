package permissions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryStartsEmpty(t *testing.T) {
	dir := NewDirectory()
	assert.False(t, dir.Loaded())
	assert.Equal(t, Set{}, dir.Permissions(adminID))
	_, ok := dir.Profile(adminID)
	assert.False(t, ok)
	assert.Empty(t, dir.Users())
}

func TestDirectoryReplace(t *testing.T) {
	dir := NewDirectory()
	stamp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	dir.now = func() time.Time { return stamp }

	dir.Replace(testProfiles(), []Grant{
		{UserID: technicianID, Permission: Orders, Granted: true},
	})

	assert.True(t, dir.Loaded())
	assert.Equal(t, stamp, dir.RefreshedAt())
	assert.True(t, dir.Permissions(technicianID).Get(Orders))
	assert.Equal(t, Set{}, dir.Permissions(attendantID))

	users := dir.Users()
	require.Len(t, users, 3)
	assert.Equal(t, "Ada Admin", users[0].Profile.FullName)
	assert.Equal(t, "Alma Attendant", users[1].Profile.FullName)
	assert.Equal(t, "Tomas Tech", users[2].Profile.FullName)
}

func TestDirectoryDenyAllKeepsProfiles(t *testing.T) {
	dir := NewDirectory()
	dir.Replace(testProfiles(), []Grant{
		{UserID: adminID, Permission: Settings, Granted: true},
	})

	dir.DenyAll()

	profile, ok := dir.Profile(adminID)
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, profile.Role)
	assert.Equal(t, Set{}, dir.Permissions(adminID))
	assert.True(t, dir.Loaded())
}

func TestDirectoryApply(t *testing.T) {
	dir := NewDirectory()
	dir.Replace(testProfiles(), []Grant{
		{UserID: attendantID, Permission: Reports, Granted: true},
	})

	set, ok := dir.Apply(attendantID, []Grant{
		{UserID: attendantID, Permission: Orders, Granted: true},
		{UserID: technicianID, Permission: Settings, Granted: true},
	})
	require.True(t, ok)
	assert.Equal(t, []Type{Orders, Reports}, set.Granted())
	assert.False(t, dir.Permissions(technicianID).Get(Settings))

	_, ok = dir.Apply(uuid.New(), []Grant{{Permission: Orders, Granted: true}})
	assert.False(t, ok)
}
