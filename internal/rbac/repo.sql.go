package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound indicates the user id has no directory record.
var ErrUserNotFound = errors.New("rbac: user not found")

// Repository resolves principals from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type userRow struct {
	ID       int64
	TenantID int64
	RoleID   int64
}

func (r *Repository) findUser(ctx context.Context, userID int64) (userRow, error) {
	var row userRow
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, role_id FROM users WHERE id = $1 AND is_active`, userID,
	).Scan(&row.ID, &row.TenantID, &row.RoleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userRow{}, ErrUserNotFound
		}
		return userRow{}, err
	}
	return row, nil
}

func (r *Repository) rolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.resource, p.action
		   FROM permissions p
		   JOIN role_permissions rp ON rp.permission_id = p.id
		  WHERE rp.role_id = $1
		  ORDER BY p.resource, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
