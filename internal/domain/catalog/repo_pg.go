package catalog

import (
	"context"
	"fmt"

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

type productRepoPG struct{ pool *pgxpool.Pool }

func NewProductRepoPG(pool *pgxpool.Pool) ProductRepository { return &productRepoPG{pool: pool} }

func (r *productRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const productCols = `id, name, classification, controlled_schedule, requires_dea,
	default_dosage, active, created_at, updated_at`

func (r *productRepoPG) scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Classification, &p.ControlledSchedule, &p.RequiresDEA,
		&p.DefaultDosage, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *productRepoPG) Create(ctx context.Context, p *Product) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO product (id, name, classification, controlled_schedule, requires_dea,
			default_dosage, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.Name, p.Classification, p.ControlledSchedule, p.RequiresDEA,
		p.DefaultDosage, p.Active)
	return err
}

func (r *productRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return r.scanProduct(r.conn(ctx).QueryRow(ctx, `SELECT `+productCols+` FROM product WHERE id = $1`, id))
}

func (r *productRepoPG) Update(ctx context.Context, p *Product) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE product SET name=$2, classification=$3, controlled_schedule=$4,
			requires_dea=$5, default_dosage=$6, active=$7, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Classification, p.ControlledSchedule,
		p.RequiresDEA, p.DefaultDosage, p.Active)
	return err
}

func (r *productRepoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Product, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if v, ok := params["classification"]; ok {
		args = append(args, v)
		where += fmt.Sprintf(" AND classification = $%d", len(args))
	}
	if v, ok := params["active"]; ok {
		args = append(args, v == "true")
		where += fmt.Sprintf(" AND active = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM product`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+productCols+` FROM product`+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Product
	for rows.Next() {
		p, err := r.scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
