package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking-engine/internal/events"
)

const (
	pgUniqueViolation = "23505"
	pgInvalidText     = "22P02"

	// slotConstraint is the partial unique index on non-cancelled
	// appointments(clinic_id, date, time).
	slotConstraint = "appointments_slot_uniq"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists schedules with pgx. Slot uniqueness is enforced by
// the appointments_slot_uniq partial index.
type PostgresStore struct {
	db pgxDB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WorkingHoursFor(ctx context.Context, clinicID string, weekday time.Weekday) (*WorkingHours, error) {
	query := `
		SELECT weekday, open_time, close_time, active
		FROM working_hours
		WHERE clinic_id = $1 AND weekday = $2
	`
	wh, err := scanWorkingHours(s.db.QueryRow(ctx, query, clinicID, int(weekday)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: working hours: %w", err)
	}
	wh.ClinicID = clinicID
	return wh, nil
}

func (s *PostgresStore) ListWorkingHours(ctx context.Context, clinicID string) ([]WorkingHours, error) {
	query := `
		SELECT weekday, open_time, close_time, active
		FROM working_hours
		WHERE clinic_id = $1
		ORDER BY weekday
	`
	rows, err := s.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list working hours: %w", err)
	}
	defer rows.Close()

	var out []WorkingHours
	for rows.Next() {
		wh, err := scanWorkingHours(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan working hours: %w", err)
		}
		wh.ClinicID = clinicID
		out = append(out, *wh)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertWorkingHours(ctx context.Context, clinicID string, hours []WorkingHours) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		INSERT INTO working_hours (clinic_id, weekday, open_time, close_time, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (clinic_id, weekday)
		DO UPDATE SET open_time = EXCLUDED.open_time, close_time = EXCLUDED.close_time, active = EXCLUDED.active
	`
	for _, wh := range hours {
		if _, err = tx.Exec(ctx, query, clinicID, int(wh.Weekday), toPGTime(wh.Open), toPGTime(wh.Close), wh.Active); err != nil {
			return fmt.Errorf("scheduling: upsert working hours: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit: %w", err)
	}
	return nil
}

const blockColumns = `id, clinic_id, title, kind, day_of_week, specific_date, start_time, end_time, created_at`

func (s *PostgresStore) BlocksOn(ctx context.Context, clinicID string, date Date) ([]Block, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM schedule_blocks
		WHERE clinic_id = $1
		  AND ((kind = 'recurring' AND day_of_week = $2) OR (kind = 'specific' AND specific_date = $3))
		ORDER BY start_time, id
	`
	return s.queryBlocks(ctx, query, clinicID, int(date.Weekday()), date.Time())
}

func (s *PostgresStore) ListBlocks(ctx context.Context, clinicID string) ([]Block, error) {
	query := `SELECT ` + blockColumns + ` FROM schedule_blocks WHERE clinic_id = $1 ORDER BY start_time, id`
	return s.queryBlocks(ctx, query, clinicID)
}

func (s *PostgresStore) queryBlocks(ctx context.Context, query string, args ...any) ([]Block, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query blocks: %w", err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var (
			b            Block
			kind         string
			dayOfWeek    *int
			specificDate *time.Time
			start, end   pgtype.Time
		)
		if err := rows.Scan(&b.ID, &b.ClinicID, &b.Title, &kind, &dayOfWeek, &specificDate, &start, &end, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scheduling: scan block: %w", err)
		}
		b.Kind = BlockKind(kind)
		b.DayOfWeek = dayOfWeek
		if specificDate != nil {
			d := DateOf(*specificDate)
			b.SpecificDate = &d
		}
		b.Start, b.End = fromPGTime(start), fromPGTime(end)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertBlocks(ctx context.Context, blocks []Block) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		INSERT INTO schedule_blocks (id, clinic_id, title, kind, day_of_week, specific_date, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, b := range blocks {
		var specificDate *time.Time
		if b.SpecificDate != nil {
			t := b.SpecificDate.Time()
			specificDate = &t
		}
		if _, err = tx.Exec(ctx, query, b.ID, b.ClinicID, b.Title, string(b.Kind), b.DayOfWeek, specificDate,
			toPGTime(b.Start), toPGTime(b.End), b.CreatedAt); err != nil {
			return fmt.Errorf("scheduling: insert block: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, clinicID, id string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM schedule_blocks WHERE id = $1 AND clinic_id = $2`, id, clinicID)
	if err != nil {
		if isPgCode(err, pgInvalidText) {
			return ErrNotFound
		}
		return fmt.Errorf("scheduling: delete block: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const appointmentColumns = `id, clinic_id, patient_id, date, time, duration, procedure_id, status, notes, origin, created_at, updated_at`

func (s *PostgresStore) ActiveAppointmentsOn(ctx context.Context, clinicID string, date Date) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE clinic_id = $1 AND date = $2 AND status <> 'cancelled'
		ORDER BY time
	`
	return s.queryAppointments(ctx, query, clinicID, date.Time())
}

func (s *PostgresStore) ListAppointments(ctx context.Context, clinicID string, date Date) ([]Appointment, error) {
	if date.IsZero() {
		query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE clinic_id = $1 ORDER BY date, time`
		return s.queryAppointments(ctx, query, clinicID)
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE clinic_id = $1 AND date = $2 ORDER BY time`
	return s.queryAppointments(ctx, query, clinicID, date.Time())
}

func (s *PostgresStore) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAppointment(ctx context.Context, clinicID, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND clinic_id = $2`
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id, clinicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgCode(err, pgInvalidText) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return appt, nil
}

// CreateAppointment inserts the appointment, its payment snapshot and an
// outbox event in one transaction.
func (s *PostgresStore) CreateAppointment(ctx context.Context, appt *Appointment, payment *PaymentRecord) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	insertAppointment := `
		INSERT INTO appointments (id, clinic_id, patient_id, date, time, duration, procedure_id, status, notes, origin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err = tx.Exec(ctx, insertAppointment,
		appt.ID, appt.ClinicID, appt.PatientID, appt.Date.Time(), toPGTime(appt.Time), appt.Duration,
		appt.ProcedureID, string(appt.Status), appt.Notes, string(appt.Origin), appt.CreatedAt, appt.UpdatedAt,
	); err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}

	event := events.AppointmentCreatedV1{
		AppointmentID: appt.ID,
		ClinicID:      appt.ClinicID,
		PatientID:     appt.PatientID,
		Date:          appt.Date.String(),
		Time:          appt.Time.String(),
		Duration:      appt.Duration,
		Origin:        string(appt.Origin),
		ProcedureID:   appt.ProcedureID,
		CreatedAt:     appt.CreatedAt,
	}

	if payment != nil {
		insertPayment := `
			INSERT INTO payment_records (id, clinic_id, appointment_id, procedure_id, procedure_name, amount_cents, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err = tx.Exec(ctx, insertPayment,
			payment.ID, payment.ClinicID, payment.AppointmentID, payment.ProcedureID,
			payment.ProcedureName, payment.AmountCents, payment.Status, payment.CreatedAt,
		); err != nil {
			return fmt.Errorf("scheduling: insert payment record: %w", err)
		}
		amount := payment.AmountCents
		event.ProcedureName = payment.ProcedureName
		event.AmountCents = &amount
	}

	if _, err = events.InsertTx(ctx, tx, appt.ClinicID, events.TypeAppointmentCreated, event); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments
		SET date = $3, time = $4, duration = $5, status = $6, notes = $7, updated_at = $8
		WHERE id = $1 AND clinic_id = $2
	`
	ct, err := s.db.Exec(ctx, query, appt.ID, appt.ClinicID, appt.Date.Time(), toPGTime(appt.Time),
		appt.Duration, string(appt.Status), appt.Notes, appt.UpdatedAt)
	if err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: update appointment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAppointment(ctx context.Context, clinicID, id string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND clinic_id = $2`, id, clinicID)
	if err != nil {
		if isPgCode(err, pgInvalidText) {
			return ErrNotFound
		}
		return fmt.Errorf("scheduling: delete appointment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PaymentForAppointment(ctx context.Context, clinicID, appointmentID string) (*PaymentRecord, error) {
	query := `
		SELECT id, clinic_id, appointment_id, procedure_id, procedure_name, amount_cents, status, created_at
		FROM payment_records
		WHERE appointment_id = $1 AND clinic_id = $2
	`
	var p PaymentRecord
	err := s.db.QueryRow(ctx, query, appointmentID, clinicID).Scan(
		&p.ID, &p.ClinicID, &p.AppointmentID, &p.ProcedureID, &p.ProcedureName, &p.AmountCents, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgCode(err, pgInvalidText) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduling: get payment record: %w", err)
	}
	return &p, nil
}

func scanWorkingHours(row pgx.Row) (*WorkingHours, error) {
	var (
		wh              WorkingHours
		weekday         int
		openAt, closeAt pgtype.Time
	)
	if err := row.Scan(&weekday, &openAt, &closeAt, &wh.Active); err != nil {
		return nil, err
	}
	wh.Weekday = time.Weekday(weekday)
	wh.Open, wh.Close = fromPGTime(openAt), fromPGTime(closeAt)
	return &wh, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		date   time.Time
		at     pgtype.Time
		status string
		origin string
		procID *int64
	)
	if err := row.Scan(&a.ID, &a.ClinicID, &a.PatientID, &date, &at, &a.Duration, &procID,
		&status, &a.Notes, &origin, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Date = DateOf(date)
	a.Time = fromPGTime(at)
	a.ProcedureID = procID
	a.Status = AppointmentStatus(status)
	a.Origin = Origin(origin)
	return &a, nil
}

const microsPerMinute = int64(time.Minute / time.Microsecond)

func toPGTime(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * microsPerMinute, Valid: true}
}

func fromPGTime(t pgtype.Time) Clock {
	if !t.Valid {
		return 0
	}
	return Clock(t.Microseconds / microsPerMinute)
}

func isSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == slotConstraint
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
