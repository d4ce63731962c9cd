package db

import (
	"context"
	"database/sql"
	"errors"

	"telecare/pkg"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Repository wraps database operations for exchanges, memory, doctors and
// doctor-patient connections. A single postgres database backs all of them.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// SaveExchange stores one completed assistant turn.
func (r *Repository) SaveExchange(ctx context.Context, userID, message, response string) (*pkg.Exchange, error) {
	var e pkg.Exchange
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO ai_chats (id, user_id, message, response)
         VALUES ($1, $2, $3, $4)
         RETURNING id, user_id, message, response, created_at`,
		uuid.New(), userID, message, response,
	).Scan(&e.ID, &e.UserID, &e.Message, &e.Response, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExchanges returns a user's assistant history in creation order.
func (r *Repository) ListExchanges(ctx context.Context, userID string) ([]pkg.Exchange, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, message, response, created_at
         FROM ai_chats
         WHERE user_id = $1
         ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Exchange
	for rows.Next() {
		var e pkg.Exchange
		if err := rows.Scan(&e.ID, &e.UserID, &e.Message, &e.Response, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountExchanges returns how many assistant turns a user has completed.
// The referral engine gates on this count.
func (r *Repository) CountExchanges(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ai_chats WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, err
}

// AppendMemory stores one summary entry. Entries are never updated or
// deleted afterwards.
func (r *Repository) AppendMemory(ctx context.Context, userID, summary string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_memory (id, user_id, summary) VALUES ($1, $2, $3)`,
		uuid.New(), userID, summary)
	return err
}

// ListMemories returns up to limit of the user's most recent summaries,
// in ascending creation order. limit <= 0 means no bound.
func (r *Repository) ListMemories(ctx context.Context, userID string, limit int) ([]pkg.MemoryEntry, error) {
	query := `SELECT id, user_id, summary, created_at
              FROM user_memory
              WHERE user_id = $1
              ORDER BY created_at ASC`
	args := []any{userID}
	if limit > 0 {
		// Take the newest N, then restore chronological order.
		query = `SELECT id, user_id, summary, created_at FROM (
                   SELECT id, user_id, summary, created_at
                   FROM user_memory
                   WHERE user_id = $1
                   ORDER BY created_at DESC
                   LIMIT $2
                 ) recent
                 ORDER BY created_at ASC`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.MemoryEntry
	for rows.Next() {
		var m pkg.MemoryEntry
		if err := rows.Scan(&m.ID, &m.UserID, &m.Summary, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListDoctors returns the doctor directory ordered by name.
func (r *Repository) ListDoctors(ctx context.Context) ([]pkg.Doctor, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, profession, COALESCE(phone, '')
         FROM doctors ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDoctors(rows)
}

// GetDoctorsByIDs fetches the given doctors, name-ordered. Unknown IDs are
// silently absent from the result.
func (r *Repository) GetDoctorsByIDs(ctx context.Context, ids []string) ([]pkg.Doctor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, profession, COALESCE(phone, '')
         FROM doctors WHERE id = ANY($1) ORDER BY name ASC`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDoctors(rows)
}

// SearchDoctorsByProfession matches doctors whose profession contains term,
// case-insensitively.
func (r *Repository) SearchDoctorsByProfession(ctx context.Context, term string, limit int) ([]pkg.Doctor, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, profession, COALESCE(phone, '')
         FROM doctors
         WHERE profession ILIKE '%' || $1 || '%'
         ORDER BY name ASC
         LIMIT $2`, term, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDoctors(rows)
}

// CreateConnection records a patient's request to connect with a doctor.
// The row starts as pending; only the doctor moves it forward.
func (r *Repository) CreateConnection(ctx context.Context, patientID, doctorID string) (*pkg.Connection, error) {
	var c pkg.Connection
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO doctor_patient_connections (id, patient_id, doctor_id, status)
         VALUES ($1, $2, $3, 'pending')
         RETURNING id, patient_id, doctor_id, status, created_at`,
		uuid.New(), patientID, doctorID,
	).Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ErrNotPending is returned when accepting a connection that does not exist
// or has already been accepted.
var ErrNotPending = errors.New("connection is not pending")

// AcceptConnection transitions a pending connection to connected and returns
// the updated row.
func (r *Repository) AcceptConnection(ctx context.Context, connectionID string) (*pkg.Connection, error) {
	var c pkg.Connection
	err := r.DB.QueryRowContext(ctx,
		`UPDATE doctor_patient_connections
         SET status = 'connected'
         WHERE id = $1 AND status = 'pending'
         RETURNING id, patient_id, doctor_id, status, created_at`, connectionID,
	).Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConnectionsByPatient returns all of a patient's connection rows.
func (r *Repository) ListConnectionsByPatient(ctx context.Context, patientID string) ([]pkg.Connection, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, patient_id, doctor_id, status, created_at
         FROM doctor_patient_connections
         WHERE patient_id = $1
         ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Connection
	for rows.Next() {
		var c pkg.Connection
		if err := rows.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListConnectionsByDoctor returns all connection rows addressed to a doctor,
// newest first.
func (r *Repository) ListConnectionsByDoctor(ctx context.Context, doctorID string) ([]pkg.Connection, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, patient_id, doctor_id, status, created_at
         FROM doctor_patient_connections
         WHERE doctor_id = $1
         ORDER BY created_at DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Connection
	for rows.Next() {
		var c pkg.Connection
		if err := rows.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConnectedDoctorIDs returns the doctor IDs a patient is connected to.
func (r *Repository) ConnectedDoctorIDs(ctx context.Context, patientID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT doctor_id FROM doctor_patient_connections
         WHERE patient_id = $1 AND status = 'connected'`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UsersConnected reports whether a connected relationship exists between two
// user identities, in either patient/doctor orientation. The relay uses this
// to refuse call offers between strangers.
func (r *Repository) UsersConnected(ctx context.Context, userA, userB string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (
           SELECT 1
           FROM doctor_patient_connections c
           JOIN doctors d ON d.id = c.doctor_id
           WHERE c.status = 'connected'
             AND ((c.patient_id = $1 AND d.user_id = $2)
               OR (c.patient_id = $2 AND d.user_id = $1))
         )`, userA, userB,
	).Scan(&exists)
	return exists, err
}

func scanDoctors(rows *sql.Rows) ([]pkg.Doctor, error) {
	var out []pkg.Doctor
	for rows.Next() {
		var d pkg.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Profession, &d.Phone); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
