package tenants

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/meridian/internal/platform/db"
)

var (
	ErrTenantNotFound = errors.New("tenants: tenant not found")
	ErrSlugTaken      = errors.New("tenants: slug already taken")
)

// Repository persists tenants and their plugin subscriptions.
type Repository interface {
	CreateTenant(ctx context.Context, name, slug string) (Tenant, error)
	GetTenant(ctx context.Context, id int64) (Tenant, error)
	Subscriptions(ctx context.Context, tenantID int64) ([]Subscription, error)
	SubscriptionTier(ctx context.Context, tenantID int64, pluginID string) (string, error)
	UpsertSubscription(ctx context.Context, tenantID int64, pluginID, tierID string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) CreateTenant(ctx context.Context, name, slug string) (Tenant, error) {
	var t Tenant
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, slug, is_active)
		 VALUES ($1, $2, TRUE)
		 RETURNING id, name, slug, is_active`, name, slug,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Tenant{}, ErrSlugTaken
		}
		return Tenant{}, err
	}
	return t, nil
}

func (r *repository) GetTenant(ctx context.Context, id int64) (Tenant, error) {
	var t Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, slug, is_active FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	return t, nil
}

func (r *repository) Subscriptions(ctx context.Context, tenantID int64) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id, plugin_id, tier_id, updated_at
		   FROM tenant_plugin_tiers
		  WHERE tenant_id = $1
		  ORDER BY plugin_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.TenantID, &s.PluginID, &s.TierID, &s.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

// SubscriptionTier returns the assigned tier id, or "" when the tenant never
// subscribed to the plugin.
func (r *repository) SubscriptionTier(ctx context.Context, tenantID int64, pluginID string) (string, error) {
	var tierID string
	err := r.pool.QueryRow(ctx,
		`SELECT tier_id FROM tenant_plugin_tiers WHERE tenant_id = $1 AND plugin_id = $2`,
		tenantID, pluginID,
	).Scan(&tierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return tierID, nil
}

// UpsertSubscription writes the assignment inside a transaction so the
// tenant check and the write see the same snapshot.
func (r *repository) UpsertSubscription(ctx context.Context, tenantID int64, pluginID, tierID string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1 AND is_active)`, tenantID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrTenantNotFound
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO tenant_plugin_tiers (tenant_id, plugin_id, tier_id, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (tenant_id, plugin_id)
			 DO UPDATE SET tier_id = EXCLUDED.tier_id, updated_at = NOW()`,
			tenantID, pluginID, tierID)
		return err
	})
}
