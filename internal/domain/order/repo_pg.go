package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fulfillment/internal/domain/workflow"
	"github.com/ehr/fulfillment/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderCols = `id, patient_id, product_id, classification, status, workflow_path, current_step_index,
	status_history, prescription_id, prescription_sent_at, completed_at, version, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.ProductID, &o.Classification, &o.Status, &o.WorkflowPath, &o.CurrentStepIndex,
		&o.StatusHistory, &o.PrescriptionID, &o.PrescriptionSentAt, &o.CompletedAt, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO fulfillment_order (id, patient_id, product_id, classification, status, workflow_path,
			current_step_index, status_history, prescription_id, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.PatientID, o.ProductID, o.Classification, o.Status, o.WorkflowPath,
		o.CurrentStepIndex, o.StatusHistory, o.PrescriptionID, o.Version)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM fulfillment_order WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// Update applies the whole mutable record under an optimistic lock. The row
// must still carry the version the caller read.
func (r *repoPG) Update(ctx context.Context, o *Order) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE fulfillment_order
		SET status=$3, current_step_index=$4, status_history=$5, prescription_id=$6,
			prescription_sent_at=$7, completed_at=$8, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $2`,
		o.ID, o.Version, o.Status, o.CurrentStepIndex, o.StatusHistory, o.PrescriptionID,
		o.PrescriptionSentAt, o.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	o.Version++
	return nil
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Order, int, error) {
	var where []string
	var args []any
	i := 1
	for _, key := range []string{"patient_id", "product_id", "status", "classification"} {
		if v, ok := params[key]; ok && v != "" {
			where = append(where, fmt.Sprintf("%s = $%d", key, i))
			args = append(args, v)
			i++
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM fulfillment_order`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+orderCols+` FROM fulfillment_order%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		clause, i, i+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListInStatus(ctx context.Context, statuses []workflow.Status) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM fulfillment_order WHERE status = ANY($1) ORDER BY created_at`, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
