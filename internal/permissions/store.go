package permissions

import (
	"context"

	"github.com/google/uuid"
)

// GrantStore is the persisted grant table as seen by the manager. Upserts key on
// (user, permission) and overwrite in place; there is no version token.
type GrantStore interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	ListGrants(ctx context.Context) ([]Grant, error)
	UpsertGrant(ctx context.Context, userID uuid.UUID, permission Type, granted bool, grantedBy uuid.UUID) (Grant, error)
	// UpsertGrants writes the whole batch with one audit stamp.
	UpsertGrants(ctx context.Context, userID uuid.UUID, changes []Change, grantedBy uuid.UUID) ([]Grant, error)
}
