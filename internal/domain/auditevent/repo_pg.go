package auditevent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fulfillment/internal/domain/compliance"
	"github.com/ehr/fulfillment/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type AuditEventRepoPG struct {
	pool *pgxpool.Pool
}

func NewAuditEventRepoPG(pool *pgxpool.Pool) *AuditEventRepoPG {
	return &AuditEventRepoPG{pool: pool}
}

func (r *AuditEventRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const auditCols = `id, kind, order_id, prescription_id, actor, action, outcome, detail,
	from_status, to_status, flags, override, request_id, ip_address, user_agent, recorded`

func scanAudit(row pgx.Row) (*AuditEvent, error) {
	var a AuditEvent
	err := row.Scan(
		&a.ID, &a.Kind, &a.OrderID, &a.PrescriptionID, &a.Actor, &a.Action, &a.Outcome, &a.Detail,
		&a.FromStatus, &a.ToStatus, &a.Flags, &a.Override, &a.RequestID, &a.IPAddress, &a.UserAgent, &a.Recorded)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuditEventRepoPG) Append(ctx context.Context, e *AuditEvent) error {
	e.ID = uuid.New()
	if e.Flags == nil {
		e.Flags = []compliance.Flag{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_event (id, kind, order_id, prescription_id, actor, action, outcome, detail,
			from_status, to_status, flags, override, request_id, ip_address, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.Kind, e.OrderID, e.PrescriptionID, e.Actor, e.Action, e.Outcome, e.Detail,
		e.FromStatus, e.ToStatus, e.Flags, e.Override, e.RequestID, e.IPAddress, e.UserAgent)
	return err
}

func (r *AuditEventRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	return scanAudit(r.conn(ctx).QueryRow(ctx, `SELECT `+auditCols+` FROM audit_event WHERE id = $1`, id))
}

func (r *AuditEventRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	var where []string
	var args []interface{}
	i := 1
	for _, key := range []string{"order_id", "prescription_id", "kind", "actor"} {
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
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_event`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+auditCols+` FROM audit_event%s ORDER BY recorded DESC LIMIT $%d OFFSET $%d`,
		clause, i, i+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AuditEvent
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
