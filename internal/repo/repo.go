package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventdesk/internal/model"
	"eventdesk/internal/schedule"
)

var (
	ErrEventNotFound           = errors.New("event not found")
	ErrSessionNotFound         = errors.New("session not found")
	ErrRegistrationNotFound    = errors.New("registration not found")
	ErrDuplicateRegistration   = errors.New("duplicate registration")
	ErrParticipantTypeNotFound = errors.New("participant type not found")
	ErrTypeInUse               = errors.New("participant type is referenced by registrations")
	ErrEventNotReady           = errors.New("event is not ready to be published")
)

// AttachOutcome reports what EnsureParticipantTypeTx actually did.
type AttachOutcome int

const (
	// AttachCreated means no (name, price) row existed and one was created.
	AttachCreated AttachOutcome = iota
	// AttachShared means an existing row from another event was attached.
	AttachShared
	// AttachNoop means the pair was already attached to this event.
	AttachNoop
)

type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) (int64, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetPublishedEvents(ctx context.Context) ([]model.Event, error)
	PublishEventTx(ctx context.Context, id int64) (*model.Event, error)
	CancelEvent(ctx context.Context, id int64) error

	CreateSessionTx(ctx context.Context, s *model.Session, locationIDs []int64) (int64, error)
	UpdateSessionTx(ctx context.Context, s *model.Session, locationIDs []int64) error
	DeleteSessionTx(ctx context.Context, id int64) error
	GetSessionByID(ctx context.Context, id int64) (*model.Session, error)
	GetSessionsByEventID(ctx context.Context, eventID int64) ([]model.Session, error)

	CreateLocation(ctx context.Context, l *model.Location) (int64, error)
	GetLocations(ctx context.Context) ([]model.Location, error)
	GetEventLocationNames(ctx context.Context, eventID int64) ([]string, error)

	EnsureParticipantTypeTx(ctx context.Context, eventID int64, name string, priceCents int64) (*model.ParticipantType, AttachOutcome, error)
	UpdateParticipantTypeTx(ctx context.Context, eventID, oldTypeID int64, name string, priceCents int64) (*model.ParticipantType, AttachOutcome, error)
	DetachParticipantTypeTx(ctx context.Context, eventID, typeID int64) (deleted bool, err error)
	GetParticipantTypesByEventID(ctx context.Context, eventID int64) ([]model.ParticipantType, error)
	GetParticipantTypeByID(ctx context.Context, id int64) (*model.ParticipantType, error)

	SubmitRegistrationTx(ctx context.Context, reg *model.Registration) (created bool, err error)
	GetRegistrationByRef(ctx context.Context, ref string) (*model.Registration, error)
	GetRegistrationByEmail(ctx context.Context, eventID int64, email string) (*model.Registration, error)
	GetRegistrationsByEventID(ctx context.Context, eventID int64) ([]model.Registration, error)
	SetRegistrationStatusTx(ctx context.Context, ref string, status model.RegistrationStatus, paid *bool) (*model.Registration, error)
	WithdrawRegistrationTx(ctx context.Context, eventID int64, email string, reason model.WithdrawalReason, otherReason string) (*model.Registration, error)
	CountActiveRegistrations(ctx context.Context, eventID int64) (int, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const eventColumns = `id, name, description, mode, external_url, published, cancelled, online,
	       capacity, start_time, end_time, registration_opens, registration_closes,
	       series, contact_email, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e        model.Event
		capacity sql.NullInt64
		start    sql.NullTime
		end      sql.NullTime
		opens    sql.NullTime
		closes   sql.NullTime
		series   sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Mode, &e.ExternalURL, &e.Published,
		&e.Cancelled, &e.Online, &capacity, &start, &end, &opens, &closes,
		&series, &e.ContactEmail, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		e.Capacity = &c
	}
	if start.Valid {
		e.StartTime = &start.Time
	}
	if end.Valid {
		e.EndTime = &end.Time
	}
	if opens.Valid {
		e.RegistrationOpens = &opens.Time
	}
	if closes.Valid {
		e.RegistrationCloses = &closes.Time
	}
	e.Series = series.String
	return &e, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) (int64, error) {
	query := `
		INSERT INTO events (name, description, mode, external_url, online, capacity,
		                    registration_opens, registration_closes, series, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		RETURNING id
	`
	row := r.db.QueryRowContext(ctx, query,
		e.Name, e.Description, e.Mode, e.ExternalURL, e.Online, nullableInt(e.Capacity),
		e.RegistrationOpens, e.RegistrationCloses, e.Series, e.ContactEmail,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateEvent(ctx context.Context, e *model.Event) error {
	query := `
		UPDATE events
		SET name = $1, description = $2, mode = $3, external_url = $4, online = $5,
		    capacity = $6, registration_opens = $7, registration_closes = $8,
		    series = NULLIF($9, ''), contact_email = $10, updated_at = NOW()
		WHERE id = $11
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		e.Name, e.Description, e.Mode, e.ExternalURL, e.Online, nullableInt(e.Capacity),
		e.RegistrationOpens, e.RegistrationCloses, e.Series, e.ContactEmail, e.ID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) GetPublishedEvents(ctx context.Context) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE published = TRUE AND cancelled = FALSE
		ORDER BY start_time ASC NULLS LAST, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// PublishEventTx flips the published flag, but only when the event's derived
// window and registration window are both set. The check and the flip share
// one transaction so a concurrent session delete cannot unset the window
// between them.
func (r *repository) PublishEventTx(ctx context.Context, id int64) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, ErrEventNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}

	if e.StartTime == nil || e.EndTime == nil ||
		e.RegistrationOpens == nil || e.RegistrationCloses == nil {
		_ = tx.Rollback()
		return e, ErrEventNotReady
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET published = TRUE, updated_at = NOW() WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	e.Published = true
	return e, nil
}

func (r *repository) CancelEvent(ctx context.Context, id int64) error {
	var got int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE events SET cancelled = TRUE, updated_at = NOW() WHERE id = $1 RETURNING id`, id,
	).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to cancel event: %w", err)
	}
	return nil
}

// lockEventTx takes the event row lock that serializes all window
// recomputation for one event.
func lockEventTx(ctx context.Context, tx *sql.Tx, eventID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock event: %w", err)
	}
	return nil
}

// refreshWindowTx rereads the full session collection inside the caller's
// transaction and writes the derived window back. Zero sessions leave the
// stored window untouched.
func refreshWindowTx(ctx context.Context, tx *sql.Tx, eventID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT start_time, end_time FROM sessions WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to read sessions for window: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.StartTime, &s.EndTime); err != nil {
			return fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	start, end, ok := schedule.Window(sessions)
	if !ok {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET start_time = $1, end_time = $2, updated_at = NOW() WHERE id = $3`,
		start, end, eventID); err != nil {
		return fmt.Errorf("failed to update event window: %w", err)
	}
	return nil
}

func replaceSessionLocationsTx(ctx context.Context, tx *sql.Tx, sessionID int64, locationIDs []int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_locations WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear session locations: %w", err)
	}
	for _, locID := range locationIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_locations (session_id, location_id) VALUES ($1, $2)`,
			sessionID, locID); err != nil {
			return fmt.Errorf("failed to attach location %d: %w", locID, err)
		}
	}
	return nil
}

func (r *repository) CreateSessionTx(ctx context.Context, s *model.Session, locationIDs []int64) (int64, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := lockEventTx(ctx, tx, s.EventID); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sessions (event_id, name, description, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.EventID, s.Name, s.Description, s.StartTime, s.EndTime).Scan(&id)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := replaceSessionLocationsTx(ctx, tx, id, locationIDs); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := refreshWindowTx(ctx, tx, s.EventID); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateSessionTx(ctx context.Context, s *model.Session, locationIDs []int64) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var eventID int64
	err = tx.QueryRowContext(ctx, `SELECT event_id FROM sessions WHERE id = $1`, s.ID).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return ErrSessionNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to find session: %w", err)
	}
	s.EventID = eventID

	if err := lockEventTx(ctx, tx, eventID); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET name = $1, description = $2, start_time = $3, end_time = $4
		WHERE id = $5
	`, s.Name, s.Description, s.StartTime, s.EndTime, s.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := replaceSessionLocationsTx(ctx, tx, s.ID, locationIDs); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := refreshWindowTx(ctx, tx, eventID); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) DeleteSessionTx(ctx context.Context, id int64) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var eventID int64
	err = tx.QueryRowContext(ctx, `SELECT event_id FROM sessions WHERE id = $1`, id).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return ErrSessionNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := lockEventTx(ctx, tx, eventID); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_locations WHERE session_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete session locations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := refreshWindowTx(ctx, tx, eventID); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) GetSessionByID(ctx context.Context, id int64) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, event_id, name, description, start_time, end_time
		FROM sessions WHERE id = $1
	`, id)

	var s model.Session
	err := row.Scan(&s.ID, &s.EventID, &s.Name, &s.Description, &s.StartTime, &s.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	locs, err := r.sessionLocations(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Locations = locs
	return &s, nil
}

func (r *repository) GetSessionsByEventID(ctx context.Context, eventID int64) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, name, description, start_time, end_time
		FROM sessions
		WHERE event_id = $1
		ORDER BY start_time ASC, end_time ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.EventID, &s.Name, &s.Description, &s.StartTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		locs, err := r.sessionLocations(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Locations = locs
	}
	return sessions, nil
}

func (r *repository) sessionLocations(ctx context.Context, sessionID int64) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.name, l.address
		FROM locations l
		JOIN session_locations sl ON sl.location_id = l.id
		WHERE sl.session_id = $1
		ORDER BY l.name ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session locations: %w", err)
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Address); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

func (r *repository) CreateLocation(ctx context.Context, l *model.Location) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO locations (name, address) VALUES ($1, $2) RETURNING id`,
		l.Name, l.Address).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert location: %w", err)
	}
	return id, nil
}

func (r *repository) GetLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, address FROM locations ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get locations: %w", err)
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Address); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

func (r *repository) GetEventLocationNames(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT l.name
		FROM locations l
		JOIN session_locations sl ON sl.location_id = l.id
		JOIN sessions s ON s.id = sl.session_id
		WHERE s.event_id = $1
		ORDER BY l.name ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event locations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan location name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// attachOutcome classifies what ensuring a ticket class actually did: a fresh
// row, a row shared from another event, or a pair this event already offered.
func attachOutcome(created, alreadyAttached bool) AttachOutcome {
	switch {
	case created:
		return AttachCreated
	case alreadyAttached:
		return AttachNoop
	default:
		return AttachShared
	}
}

// lockTypeByPairTx locks the (name, price) row when it exists.
func lockTypeByPairTx(ctx context.Context, tx *sql.Tx, name string, priceCents int64) (*model.ParticipantType, error) {
	var t model.ParticipantType
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, price_cents, created_at
		FROM participant_types
		WHERE name = $1 AND price_cents = $2
		FOR UPDATE
	`, name, priceCents).Scan(&t.ID, &t.Name, &t.PriceCents, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ensureTypeTx implements the shared-ticket-class rule inside an open
// transaction: reuse an identical (name, price) row when one exists, create
// one otherwise, and never attach the same pair to an event twice.
func ensureTypeTx(ctx context.Context, tx *sql.Tx, eventID int64, name string, priceCents int64) (*model.ParticipantType, AttachOutcome, error) {
	created := false
	t, err := lockTypeByPairTx(ctx, tx, name, priceCents)

	if errors.Is(err, sql.ErrNoRows) {
		t = &model.ParticipantType{}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO participant_types (name, price_cents)
			VALUES ($1, $2)
			RETURNING id, name, price_cents, created_at
		`, name, priceCents).Scan(&t.ID, &t.Name, &t.PriceCents, &t.CreatedAt)
		switch {
		case isUniqueViolation(err):
			// A concurrent transaction created the pair between our lookup
			// and insert. Re-run the lookup; it blocks on the winner's lock
			// and then proceeds down the sharing path.
			t, err = lockTypeByPairTx(ctx, tx, name, priceCents)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to re-lock participant type: %w", err)
			}
		case err != nil:
			return nil, 0, fmt.Errorf("failed to insert participant type: %w", err)
		default:
			created = true
		}
	} else if err != nil {
		return nil, 0, fmt.Errorf("failed to look up participant type: %w", err)
	}

	attached := false
	if !created {
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM event_participant_types
				WHERE event_id = $1 AND participant_type_id = $2
			)
		`, eventID, t.ID).Scan(&attached); err != nil {
			return nil, 0, fmt.Errorf("failed to check attachment: %w", err)
		}
	}

	outcome := attachOutcome(created, attached)
	if outcome != AttachNoop {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_participant_types (event_id, participant_type_id)
			VALUES ($1, $2)
		`, eventID, t.ID); err != nil {
			return nil, 0, fmt.Errorf("failed to attach participant type: %w", err)
		}
	}
	return t, outcome, nil
}

// detachTypeTx removes the event's association inside an open transaction and
// deletes the row outright when this event was its last referent. The
// reference count and the deletion share the row lock, so a concurrent ensure
// on the same (name, price) pair cannot lose its attachment.
func detachTypeTx(ctx context.Context, tx *sql.Tx, eventID, typeID int64) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM participant_types WHERE id = $1 FOR UPDATE`, typeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrParticipantTypeNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock participant type: %w", err)
	}

	var refCount int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_participant_types WHERE participant_type_id = $1
	`, typeID).Scan(&refCount); err != nil {
		return false, fmt.Errorf("failed to count references: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM event_participant_types
		WHERE event_id = $1 AND participant_type_id = $2
	`, eventID, typeID)
	if err != nil {
		return false, fmt.Errorf("failed to detach participant type: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("failed to check detach: %w", err)
	} else if n == 0 {
		return false, ErrParticipantTypeNotFound
	}

	var inUse bool
	if refCount <= 1 {
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM registrations WHERE participant_type_id = $1)
		`, typeID).Scan(&inUse); err != nil {
			return false, fmt.Errorf("failed to check registrations: %w", err)
		}
	}
	deleteRow, err := shouldDeleteType(refCount, inUse)
	if err != nil {
		return false, err
	}
	if !deleteRow {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM participant_types WHERE id = $1`, typeID); err != nil {
		return false, fmt.Errorf("failed to delete participant type: %w", err)
	}
	return true, nil
}

// shouldDeleteType decides the fate of a ticket-class row once this event's
// association is gone. refCount is the number of events referencing the row
// before the detach; a row other events still share is never deleted, and the
// last referent may only take the row with it when no registration points at
// it.
func shouldDeleteType(refCount int, inUse bool) (bool, error) {
	if refCount > 1 {
		return false, nil
	}
	if inUse {
		return false, ErrTypeInUse
	}
	return true, nil
}

func (r *repository) EnsureParticipantTypeTx(ctx context.Context, eventID int64, name string, priceCents int64) (*model.ParticipantType, AttachOutcome, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := lockEventTx(ctx, tx, eventID); err != nil {
		_ = tx.Rollback()
		return nil, 0, err
	}

	t, outcome, err := ensureTypeTx(ctx, tx, eventID, name, priceCents)
	if err != nil {
		_ = tx.Rollback()
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, outcome, nil
}

// UpdateParticipantTypeTx swaps an event's ticket class for a new (name,
// price) pair. The old row is detached, or deleted when this event was its
// only referent; the row itself is never mutated in place, because other
// events may still offer it at the old price.
func (r *repository) UpdateParticipantTypeTx(ctx context.Context, eventID, oldTypeID int64, name string, priceCents int64) (*model.ParticipantType, AttachOutcome, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := lockEventTx(ctx, tx, eventID); err != nil {
		_ = tx.Rollback()
		return nil, 0, err
	}

	if _, err := detachTypeTx(ctx, tx, eventID, oldTypeID); err != nil {
		_ = tx.Rollback()
		return nil, 0, err
	}

	t, outcome, err := ensureTypeTx(ctx, tx, eventID, name, priceCents)
	if err != nil {
		_ = tx.Rollback()
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, outcome, nil
}

func (r *repository) DetachParticipantTypeTx(ctx context.Context, eventID, typeID int64) (bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	deleted, err := detachTypeTx(ctx, tx, eventID, typeID)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

func (r *repository) GetParticipantTypesByEventID(ctx context.Context, eventID int64) ([]model.ParticipantType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.price_cents, t.created_at
		FROM participant_types t
		JOIN event_participant_types et ON et.participant_type_id = t.id
		WHERE et.event_id = $1
		ORDER BY t.price_cents ASC, t.name ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant types: %w", err)
	}
	defer rows.Close()

	var types []model.ParticipantType
	for rows.Next() {
		var t model.ParticipantType
		if err := rows.Scan(&t.ID, &t.Name, &t.PriceCents, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *repository) GetParticipantTypeByID(ctx context.Context, id int64) (*model.ParticipantType, error) {
	var t model.ParticipantType
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price_cents, created_at FROM participant_types WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.PriceCents, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParticipantTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant type: %w", err)
	}
	return &t, nil
}

const registrationColumns = `id, public_ref, event_id, email, full_name, participant_type_id,
	       status, representing, billing_name, billing_address,
	       emergency_contact_name, emergency_contact_phone, paid, created_at, updated_at`

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var reg model.Registration
	if err := row.Scan(
		&reg.ID, &reg.PublicRef, &reg.EventID, &reg.Email, &reg.FullName,
		&reg.ParticipantTypeID, &reg.Status, &reg.Representing,
		&reg.BillingName, &reg.BillingAddress,
		&reg.EmergencyContactName, &reg.EmergencyContactPhone,
		&reg.Paid, &reg.CreatedAt, &reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

// SubmitRegistrationTx creates a registration, or updates the participant's
// existing one in place. Resubmission never resets the stored status or the
// paid flag. A racing first submission for the same (event, email) pair hits
// the uniqueness constraint and surfaces as ErrDuplicateRegistration, telling
// the caller to resubmit as an update.
func (r *repository) SubmitRegistrationTx(ctx context.Context, reg *model.Registration) (bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	existing, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND email = $2 FOR UPDATE`,
		reg.EventID, reg.Email))

	switch {
	case errors.Is(err, sql.ErrNoRows):
		reg.PublicRef = uuid.NewString()
		err = tx.QueryRowContext(ctx, `
			INSERT INTO registrations (public_ref, event_id, email, full_name,
				participant_type_id, status, representing, billing_name, billing_address,
				emergency_contact_name, emergency_contact_phone)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, created_at, updated_at
		`, reg.PublicRef, reg.EventID, reg.Email, reg.FullName,
			reg.ParticipantTypeID, reg.Status, reg.Representing,
			reg.BillingName, reg.BillingAddress,
			reg.EmergencyContactName, reg.EmergencyContactPhone,
		).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
		if err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return false, ErrDuplicateRegistration
			}
			return false, fmt.Errorf("failed to create registration: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return true, nil

	case err != nil:
		_ = tx.Rollback()
		return false, fmt.Errorf("failed to look up registration: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE registrations
		SET full_name = $1, participant_type_id = $2, representing = $3,
		    billing_name = $4, billing_address = $5,
		    emergency_contact_name = $6, emergency_contact_phone = $7,
		    updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at
	`, reg.FullName, reg.ParticipantTypeID, reg.Representing,
		reg.BillingName, reg.BillingAddress,
		reg.EmergencyContactName, reg.EmergencyContactPhone,
		existing.ID,
	).Scan(&reg.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("failed to update registration: %w", err)
	}

	reg.ID = existing.ID
	reg.PublicRef = existing.PublicRef
	reg.Status = existing.Status
	reg.Paid = existing.Paid
	reg.CreatedAt = existing.CreatedAt

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return false, nil
}

func (r *repository) GetRegistrationByRef(ctx context.Context, ref string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE public_ref = $1`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistrationByEmail(ctx context.Context, eventID int64, email string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND email = $2`, eventID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistrationsByEventID(ctx context.Context, eventID int64) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func (r *repository) SetRegistrationStatusTx(ctx context.Context, ref string, status model.RegistrationStatus, paid *bool) (*model.Registration, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE public_ref = $1 FOR UPDATE`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to lock registration: %w", err)
	}

	newPaid := reg.Paid
	if paid != nil {
		newPaid = *paid
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE registrations SET status = $1, paid = $2, updated_at = NOW() WHERE id = $3
	`, status, newPaid, reg.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to update registration status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	reg.Status = status
	reg.Paid = newPaid
	return reg, nil
}

// withdrawalRecord maps a registration to the audit row its withdrawal leaves
// behind. The record keeps the public reference and event so support can trace
// a withdrawal after the originating row is gone.
func withdrawalRecord(reg *model.Registration, reason model.WithdrawalReason, otherReason string) model.DeletedRegistration {
	return model.DeletedRegistration{
		PublicRef:   reg.PublicRef,
		EventID:     reg.EventID,
		Reason:      reason,
		OtherReason: otherReason,
	}
}

// WithdrawRegistrationTx deletes the registration and writes the audit row in
// one transaction, so no withdrawal can lose its reason record.
func (r *repository) WithdrawRegistrationTx(ctx context.Context, eventID int64, email string, reason model.WithdrawalReason, otherReason string) (*model.Registration, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND email = $2 FOR UPDATE`, eventID, email))
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to lock registration: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM registrations WHERE id = $1`, reg.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to delete registration: %w", err)
	}

	rec := withdrawalRecord(reg, reason, otherReason)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO deleted_registrations (public_ref, event_id, reason, other_reason)
		VALUES ($1, $2, $3, $4)
	`, rec.PublicRef, rec.EventID, rec.Reason, rec.OtherReason); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to write withdrawal record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return reg, nil
}

func (r *repository) CountActiveRegistrations(ctx context.Context, eventID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations
		WHERE event_id = $1 AND status IN ('pending', 'approved')
	`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}
