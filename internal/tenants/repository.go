package tenants

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("tenant not found")

// Repository reads tenant records from Postgres. The pipeline only reads;
// writes happen through Seed (development bootstrap) or tooling outside this
// repo.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a tenant by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, name, slug, domain, is_active, config, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id))
}

// GetBySlug fetches a tenant by its URL slug, used by the public ingestion
// endpoints.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, name, slug, domain, is_active, config, created_at, updated_at
		FROM tenants
		WHERE slug = $1
	`, slug))
}

// Upsert inserts or updates a tenant by slug. Used by the seed loader only.
func (r *Repository) Upsert(ctx context.Context, t Tenant) (uuid.UUID, error) {
	configJSON, err := json.Marshal(t.Config)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `
		INSERT INTO tenants (id, name, slug, domain, is_active, config)
		VALUES (COALESCE(NULLIF($1, '00000000-0000-0000-0000-000000000000'::uuid), gen_random_uuid()), $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			domain = EXCLUDED.domain,
			is_active = EXCLUDED.is_active,
			config = EXCLUDED.config,
			updated_at = now()
		RETURNING id
	`, t.ID, t.Name, t.Slug, t.Domain, t.IsActive, configJSON).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *Repository) scanOne(row pgx.Row) (Tenant, error) {
	var (
		t          Tenant
		configJSON []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Domain, &t.IsActive, &configJSON, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, err
	}

	t.Config = DefaultConfig()
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &t.Config); err != nil {
			return Tenant{}, err
		}
	}
	if t.Config.ScoreThreshold == 0 {
		t.Config.ScoreThreshold = DefaultConfig().ScoreThreshold
	}

	return t, nil
}
