package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/opsboard/opsboard/internal/permissions"
	"github.com/opsboard/opsboard/internal/shared"
)

const bootstrapAction = "permissions.bootstrap"

// bootstrap writes the admin template for admin profiles without a single
// grant row. Any stored row, a revocation included, means an administrator
// already decided and the profile is left alone. Rows are written with no
// grantor.
func bootstrap(ctx context.Context, store permissions.GrantStore, audit permissions.AuditRecorder, publisher permissions.Publisher, out io.Writer) error {
	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	grants, err := store.ListGrants(ctx)
	if err != nil {
		return fmt.Errorf("list grants: %w", err)
	}
	byUser := permissions.GroupGrants(grants)
	changes := permissions.TemplateSet(permissions.RoleAdmin).Changes()

	count := 0
	for _, p := range profiles {
		if p.Role != permissions.RoleAdmin {
			continue
		}
		if len(byUser[p.ID]) > 0 {
			fmt.Fprintf(out, "skipped %s: %d grant row(s) already stored\n", p, len(byUser[p.ID]))
			continue
		}
		rows, err := store.UpsertGrants(ctx, p.ID, changes, uuid.Nil)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", p, err)
		}
		count++
		fmt.Fprintf(out, "granted admin template to %s\n", p)
		err = audit.Record(ctx, shared.AuditLog{
			ActorID:  uuid.Nil,
			Action:   bootstrapAction,
			Entity:   "user_permissions",
			EntityID: p.ID.String(),
			Meta: map[string]any{
				"role":     permissions.RoleAdmin.String(),
				"rows":     len(rows),
				"source":   "permctl",
				"batch_id": uuid.NewString(),
			},
		})
		if err != nil {
			fmt.Fprintf(out, "warning: audit %s: %v\n", p, err)
		}
	}
	if count > 0 {
		if err := publisher.PublishAll(ctx); err != nil {
			fmt.Fprintf(out, "warning: publish refresh: %v\n", err)
		}
	}
	fmt.Fprintf(out, "%d admin(s) bootstrapped\n", count)
	return nil
}
