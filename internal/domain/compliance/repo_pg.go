package compliance

import (
	"context"
	"strings"

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

type profileRepoPG struct {
	pool *pgxpool.Pool
}

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const profileCols = `patient_id, allergies, current_medications, medical_history, age, gender,
	pregnant, creatinine_clearance, alt_level, created_at, updated_at`

func scanProfile(row pgx.Row) (*SafetyProfile, error) {
	var p SafetyProfile
	err := row.Scan(&p.PatientID, &p.Allergies, &p.CurrentMedications, &p.MedicalHistory, &p.Age, &p.Gender,
		&p.Pregnant, &p.CreatinineClearance, &p.ALTLevel, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) Upsert(ctx context.Context, p *SafetyProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_safety_profile (patient_id, allergies, current_medications, medical_history,
			age, gender, pregnant, creatinine_clearance, alt_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (patient_id) DO UPDATE SET
			allergies=$2, current_medications=$3, medical_history=$4, age=$5, gender=$6,
			pregnant=$7, creatinine_clearance=$8, alt_level=$9, updated_at=NOW()`,
		p.PatientID, p.Allergies, p.CurrentMedications, p.MedicalHistory,
		p.Age, p.Gender, p.Pregnant, p.CreatinineClearance, p.ALTLevel)
	return err
}

func (r *profileRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*SafetyProfile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+profileCols+` FROM patient_safety_profile WHERE patient_id = $1`, patientID))
}

type interactionRepoPG struct {
	pool *pgxpool.Pool
}

func NewInteractionRepoPG(pool *pgxpool.Pool) InteractionRepository {
	return &interactionRepoPG{pool: pool}
}

func (r *interactionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const interactionCols = `id, medication_a, medication_b, severity, description, clinical_effect,
	management, source, active, created_at, updated_at`

func scanInteraction(row pgx.Row) (*Interaction, error) {
	var i Interaction
	err := row.Scan(&i.ID, &i.MedicationA, &i.MedicationB, &i.Severity, &i.Description, &i.ClinicalEffect,
		&i.Management, &i.Source, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *interactionRepoPG) Create(ctx context.Context, i *Interaction) error {
	i.ID = uuid.New()
	i.MedicationA = strings.ToLower(i.MedicationA)
	i.MedicationB = strings.ToLower(i.MedicationB)
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug_interaction (id, medication_a, medication_b, severity, description,
			clinical_effect, management, source, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		i.ID, i.MedicationA, i.MedicationB, i.Severity, i.Description,
		i.ClinicalEffect, i.Management, i.Source, i.Active)
	return err
}

func (r *interactionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Interaction, error) {
	return scanInteraction(r.conn(ctx).QueryRow(ctx,
		`SELECT `+interactionCols+` FROM drug_interaction WHERE id = $1`, id))
}

func (r *interactionRepoPG) FindForMedication(ctx context.Context, medicationName string) ([]*Interaction, error) {
	name := strings.ToLower(strings.TrimSpace(medicationName))
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+interactionCols+` FROM drug_interaction
		WHERE active AND (medication_a = $1 OR medication_b = $1)
		ORDER BY severity, created_at`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *interactionRepoPG) List(ctx context.Context, limit, offset int) ([]*Interaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drug_interaction`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+interactionCols+` FROM drug_interaction ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}
