package permissions

import "github.com/google/uuid"

// Resolve computes the effective set of one profile. Only rows belonging to the
// profile are considered; a user without rows is denied everything.
func Resolve(profile Profile, grants []Grant) Set {
	var set Set
	for _, g := range grants {
		if g.UserID != profile.ID || !g.Permission.Valid() {
			continue
		}
		set[g.Permission] = g.Granted
	}
	return set
}

// GroupGrants buckets grant rows by user in a single pass.
func GroupGrants(grants []Grant) map[uuid.UUID][]Grant {
	grouped := make(map[uuid.UUID][]Grant)
	for _, g := range grants {
		grouped[g.UserID] = append(grouped[g.UserID], g)
	}
	return grouped
}

// ResolveAll resolves every profile against the full grant table, preserving
// profile order.
func ResolveAll(profiles []Profile, grants []Grant) []UserPermissions {
	grouped := GroupGrants(grants)
	out := make([]UserPermissions, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, UserPermissions{Profile: p, Permissions: Resolve(p, grouped[p.ID])})
	}
	return out
}
