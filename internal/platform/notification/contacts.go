package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fulfillment/internal/platform/db"
)

// Contact is a patient's notification address book entry. The workflow
// engine never sees it; the gateway resolves contacts itself when an event
// arrives without one.
type Contact struct {
	PatientID uuid.UUID `json:"patient_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactSource resolves a patient's contact details for delivery.
type ContactSource interface {
	Contact(ctx context.Context, patientID string) (*Contact, error)
}

// ContactRepository stores contact entries.
type ContactRepository interface {
	ContactSource
	Upsert(ctx context.Context, c *Contact) error
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type contactRepoPG struct{ pool *pgxpool.Pool }

func NewContactRepoPG(pool *pgxpool.Pool) ContactRepository { return &contactRepoPG{pool: pool} }

func (r *contactRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *contactRepoPG) Upsert(ctx context.Context, c *Contact) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_contact (patient_id, name, email, phone)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (patient_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			updated_at = NOW()`,
		c.PatientID, c.Name, c.Email, c.Phone)
	return err
}

func (r *contactRepoPG) Contact(ctx context.Context, patientID string) (*Contact, error) {
	id, err := uuid.Parse(patientID)
	if err != nil {
		return nil, err
	}
	var c Contact
	err = r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id, name, email, phone, created_at, updated_at
		FROM patient_contact WHERE patient_id = $1`, id).
		Scan(&c.PatientID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
