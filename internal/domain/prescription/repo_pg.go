package prescription

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const prescriptionCols = `id, order_id, provider_id, patient_id, medication_name, dosage, quantity,
	refills, days_supply, pharmacy_id, status, compliance_flags, signature_token, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.OrderID, &p.ProviderID, &p.PatientID, &p.MedicationName, &p.Dosage, &p.Quantity,
		&p.Refills, &p.DaysSupply, &p.PharmacyID, &p.Status, &p.ComplianceFlags, &p.SignatureToken, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, order_id, provider_id, patient_id, medication_name, dosage,
			quantity, refills, days_supply, pharmacy_id, status, compliance_flags, signature_token)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.OrderID, p.ProviderID, p.PatientID, p.MedicationName, p.Dosage,
		p.Quantity, p.Refills, p.DaysSupply, p.PharmacyID, p.Status, p.ComplianceFlags, p.SignatureToken)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
}

func (r *repoPG) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Prescription, error) {
	return scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pharmacyID *string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescription SET status=$2, pharmacy_id=COALESCE($3, pharmacy_id), updated_at=NOW() WHERE id = $1`,
		id, status, pharmacyID)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriptionCols+` FROM prescription ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

type routingRepoPG struct {
	pool *pgxpool.Pool
}

func NewRoutingRepoPG(pool *pgxpool.Pool) RoutingRepository {
	return &routingRepoPG{pool: pool}
}

func (r *routingRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *routingRepoPG) Create(ctx context.Context, rec *Routing) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pharmacy_routing (id, prescription_id, pharmacy_id, routed_by)
		VALUES ($1,$2,$3,$4)`,
		rec.ID, rec.PrescriptionID, rec.PharmacyID, rec.RoutedBy)
	return err
}

func (r *routingRepoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Routing, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, pharmacy_id, routed_by, created_at
		FROM pharmacy_routing WHERE prescription_id = $1 ORDER BY created_at`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Routing
	for rows.Next() {
		var rec Routing
		if err := rows.Scan(&rec.ID, &rec.PrescriptionID, &rec.PharmacyID, &rec.RoutedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &rec)
	}
	return items, rows.Err()
}
