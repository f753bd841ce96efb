package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fulfillment/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository { return &providerRepoPG{pool: pool} }

func (r *providerRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const providerCols = `id, name, license_number, license_state, license_status,
	dea_number, created_at, updated_at`

func (r *providerRepoPG) scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.LicenseNumber, &p.LicenseState, &p.LicenseStatus,
		&p.DEANumber, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO provider (id, name, license_number, license_state, license_status, dea_number)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.Name, p.LicenseNumber, p.LicenseState, p.LicenseStatus, p.DEANumber)
	return err
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM provider WHERE id = $1`, id))
}

func (r *providerRepoPG) Update(ctx context.Context, p *Provider) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE provider SET name=$2, license_number=$3, license_state=$4,
			license_status=$5, dea_number=$6, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.LicenseNumber, p.LicenseState, p.LicenseStatus, p.DEANumber)
	return err
}

func (r *providerRepoPG) List(ctx context.Context, limit, offset int) ([]*Provider, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM provider`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+providerCols+` FROM provider ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := r.scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
