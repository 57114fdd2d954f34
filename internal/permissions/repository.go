package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsboard/opsboard/internal/platform/db"
)

const foreignKeyViolation = "23503"

const grantColumns = `user_id, permission, granted, granted_by, created_at, updated_at`

const upsertGrantSQL = `
INSERT INTO user_permissions (user_id, permission, granted, granted_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (user_id, permission) DO UPDATE
SET granted = EXCLUDED.granted,
    granted_by = EXCLUDED.granted_by,
    updated_at = EXCLUDED.updated_at
RETURNING ` + grantColumns

// PGStore implements GrantStore on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ListProfiles returns every profile.
func (s *PGStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, full_name, email, role FROM profiles ORDER BY full_name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []Profile
	for rows.Next() {
		var (
			p    Profile
			role string
		)
		if err := rows.Scan(&p.ID, &p.FullName, &p.Email, &role); err != nil {
			return nil, err
		}
		// A profile with an unrecognised role keeps the zero Role and can
		// never pass the authority check.
		p.Role, _ = ParseRole(role)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ListGrants returns every grant row of every user.
func (s *PGStore) ListGrants(ctx context.Context) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+grantColumns+` FROM user_permissions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if errors.Is(err, ErrUnknownPermission) {
			continue
		}
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// UpsertGrant creates or overwrites the row of (userID, permission).
func (s *PGStore) UpsertGrant(ctx context.Context, userID uuid.UUID, permission Type, granted bool, grantedBy uuid.UUID) (Grant, error) {
	g, err := upsertGrant(ctx, s.pool, userID, Change{Permission: permission, Granted: granted}, grantedBy)
	if err != nil {
		return Grant{}, mapWriteError(err)
	}
	return g, nil
}

// UpsertGrants writes every change in one transaction. NOW() is fixed for the
// transaction, so every row of the batch carries the same stamp.
func (s *PGStore) UpsertGrants(ctx context.Context, userID uuid.UUID, changes []Change, grantedBy uuid.UUID) ([]Grant, error) {
	grants := make([]Grant, 0, len(changes))
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, c := range changes {
			g, err := upsertGrant(ctx, tx, userID, c, grantedBy)
			if err != nil {
				return err
			}
			grants = append(grants, g)
		}
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return grants, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertGrant(ctx context.Context, q queryRower, userID uuid.UUID, c Change, grantedBy uuid.UUID) (Grant, error) {
	if !c.Permission.Valid() {
		return Grant{}, fmt.Errorf("%w: %s", ErrUnknownPermission, c.Permission)
	}
	return scanGrant(q.QueryRow(ctx, upsertGrantSQL, userID, c.Permission.String(), c.Granted, nullUUID(grantedBy)))
}

func scanGrant(row pgx.Row) (Grant, error) {
	var (
		g          Grant
		permission string
		grantedBy  uuid.NullUUID
	)
	if err := row.Scan(&g.UserID, &permission, &g.Granted, &grantedBy, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return Grant{}, err
	}
	t, err := ParseType(permission)
	if err != nil {
		return Grant{}, err
	}
	g.Permission = t
	if grantedBy.Valid {
		g.GrantedBy = grantedBy.UUID
	}
	return g, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", ErrUnknownUser, pgErr.Detail)
	}
	return err
}

var _ GrantStore = (*PGStore)(nil)
