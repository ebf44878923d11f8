// internal/db/queries.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/timeslot"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries is the statement set used by the reservation engine and its collaborators.
// Bind it to a transaction with WithTx when reads and writes must be atomic.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// Courts

const courtColumns = `id, name, kind, match_minutes, allows_singles`

func scanCourt(row scanner) (models.Court, error) {
	var court models.Court
	var kind string
	if err := row.Scan(&court.ID, &court.Name, &kind, &court.MatchMinutes, &court.AllowsSingles); err != nil {
		return models.Court{}, err
	}
	court.Kind = models.CourtKind(kind)
	return court, nil
}

func (q *Queries) GetCourt(ctx context.Context, id int64) (models.Court, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+courtColumns+` FROM courts WHERE id = ?`, id)
	return scanCourt(row)
}

func (q *Queries) ListCourts(ctx context.Context) ([]models.Court, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+courtColumns+` FROM courts ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courts := []models.Court{}
	for rows.Next() {
		court, err := scanCourt(rows)
		if err != nil {
			return nil, err
		}
		courts = append(courts, court)
	}
	return courts, rows.Err()
}

type CreateCourtParams struct {
	Name          string
	Kind          models.CourtKind
	MatchMinutes  int
	AllowsSingles bool
}

func (q *Queries) CreateCourt(ctx context.Context, arg CreateCourtParams) (models.Court, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO courts (name, kind, match_minutes, allows_singles) VALUES (?, ?, ?, ?)
		 RETURNING `+courtColumns,
		arg.Name, string(arg.Kind), arg.MatchMinutes, arg.AllowsSingles,
	)
	return scanCourt(row)
}

// Members

const memberColumns = `id, first_name, last_name, email, phone, kind`

func scanMember(row scanner) (models.Member, error) {
	var member models.Member
	var email, phone sql.NullString
	var kind string
	if err := row.Scan(&member.ID, &member.FirstName, &member.LastName, &email, &phone, &kind); err != nil {
		return models.Member{}, err
	}
	member.Email = email.String
	member.Phone = phone.String
	member.Kind = models.MembershipKind(kind)
	return member, nil
}

func (q *Queries) GetMember(ctx context.Context, id int64) (models.Member, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	return scanMember(row)
}

// FindMemberByName returns the oldest member whose normalized name matches key.
func (q *Queries) FindMemberByName(ctx context.Context, key models.NameKey) (models.Member, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE name_key = ? ORDER BY id LIMIT 1`,
		string(key),
	)
	return scanMember(row)
}

type ListMembersParams struct {
	Limit  int
	Offset int
}

func (q *Queries) ListMembers(ctx context.Context, arg ListMembersParams) ([]models.Member, error) {
	if arg.Limit <= 0 {
		arg.Limit = 50
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY last_name, first_name, id LIMIT ? OFFSET ?`,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

type CreateMemberParams struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Kind      models.MembershipKind
}

func (q *Queries) CreateMember(ctx context.Context, arg CreateMemberParams) (models.Member, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO members (first_name, last_name, name_key, email, phone, kind) VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+memberColumns,
		strings.TrimSpace(arg.FirstName),
		strings.TrimSpace(arg.LastName),
		string(models.NewNameKey(arg.FirstName, arg.LastName)),
		nullString(arg.Email),
		nullString(arg.Phone),
		string(arg.Kind),
	)
	return scanMember(row)
}

// Reservations

const reservationColumns = `r.id, r.court_id, r.day, r.start_minute, r.end_minute, r.singles, r.created_at, r.updated_at`

func scanReservation(row scanner) (models.Reservation, error) {
	var reservation models.Reservation
	var day string
	var start, end int
	if err := row.Scan(
		&reservation.ID,
		&reservation.CourtID,
		&day,
		&start,
		&end,
		&reservation.Singles,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	); err != nil {
		return models.Reservation{}, err
	}
	parsedDay, err := timeslot.ParseDay(day)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("reservation %d: %w", reservation.ID, err)
	}
	reservation.Day = parsedDay
	reservation.Start = timeslot.TimeOfDay(start)
	reservation.End = timeslot.TimeOfDay(end)
	return reservation, nil
}

// GetReservation loads a reservation and its participants.
func (q *Queries) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`, id)
	reservation, err := scanReservation(row)
	if err != nil {
		return models.Reservation{}, err
	}
	reservation.Participants, err = q.ListParticipants(ctx, id)
	if err != nil {
		return models.Reservation{}, err
	}
	return reservation, nil
}

// ListReservationsForCourtDay returns every reservation on the court for the day, ordered by
// start time.
func (q *Queries) ListReservationsForCourtDay(ctx context.Context, courtID int64, day time.Time) ([]models.Reservation, error) {
	return q.listReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations r
		 WHERE r.court_id = ? AND r.day = ?
		 ORDER BY r.start_minute, r.id`,
		courtID, timeslot.FormatDay(day),
	)
}

// ListReservationsForPlayerDay returns every reservation on the day that lists a participant
// with the given normalized name, across all courts.
func (q *Queries) ListReservationsForPlayerDay(ctx context.Context, key models.NameKey, day time.Time) ([]models.Reservation, error) {
	return q.listReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations r
		 WHERE r.day = ? AND EXISTS (
		     SELECT 1 FROM reservation_participants p
		     WHERE p.reservation_id = r.id AND p.name_key = ?
		 )
		 ORDER BY r.start_minute, r.court_id, r.id`,
		timeslot.FormatDay(day), string(key),
	)
}

type ListReservationsParams struct {
	CourtID int64
	Day     time.Time
	Limit   int
	Offset  int
}

// ListReservations supports the read-only listing endpoint. Zero-valued filters are ignored.
func (q *Queries) ListReservations(ctx context.Context, arg ListReservationsParams) ([]models.Reservation, error) {
	var (
		clauses []string
		args    []any
	)
	if arg.CourtID > 0 {
		clauses = append(clauses, "r.court_id = ?")
		args = append(args, arg.CourtID)
	}
	if !arg.Day.IsZero() {
		clauses = append(clauses, "r.day = ?")
		args = append(args, timeslot.FormatDay(arg.Day))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations r`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY r.day, r.start_minute, r.court_id, r.id LIMIT ? OFFSET ?"

	limit := arg.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, arg.Offset)
	return q.listReservations(ctx, query, args...)
}

func (q *Queries) listReservations(ctx context.Context, query string, args ...any) ([]models.Reservation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	reservations := []models.Reservation{}
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Participants are loaded after the cursor is closed; a transaction holds a single
	// connection.
	for i := range reservations {
		participants, err := q.ListParticipants(ctx, reservations[i].ID)
		if err != nil {
			return nil, err
		}
		reservations[i].Participants = participants
	}
	return reservations, nil
}

type ReservationParams struct {
	CourtID int64
	Day     time.Time
	Start   timeslot.TimeOfDay
	End     timeslot.TimeOfDay
	Singles bool
}

func (q *Queries) CreateReservation(ctx context.Context, arg ReservationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO reservations (court_id, day, start_minute, end_minute, singles) VALUES (?, ?, ?, ?, ?)`,
		arg.CourtID, timeslot.FormatDay(arg.Day), int(arg.Start), int(arg.End), arg.Singles,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateReservation replaces every mutable column of the reservation row and returns the
// number of rows affected.
func (q *Queries) UpdateReservation(ctx context.Context, id int64, arg ReservationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE reservations
		 SET court_id = ?, day = ?, start_minute = ?, end_minute = ?, singles = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		arg.CourtID, timeslot.FormatDay(arg.Day), int(arg.Start), int(arg.End), arg.Singles, id,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *Queries) DeleteReservation(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteReservationsBefore removes reservations whose day is strictly before day.
func (q *Queries) DeleteReservationsBefore(ctx context.Context, day time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, `DELETE FROM reservations WHERE day < ?`, timeslot.FormatDay(day))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Participants

func (q *Queries) ListParticipants(ctx context.Context, reservationID int64) ([]models.Participant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT first_name, last_name, kind FROM reservation_participants
		 WHERE reservation_id = ? ORDER BY position`,
		reservationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var participant models.Participant
		var kind string
		if err := rows.Scan(&participant.FirstName, &participant.LastName, &kind); err != nil {
			return nil, err
		}
		participant.Kind = models.MembershipKind(kind)
		participants = append(participants, participant)
	}
	return participants, rows.Err()
}

func (q *Queries) AddParticipant(ctx context.Context, reservationID int64, position int, participant models.Participant) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO reservation_participants (reservation_id, position, first_name, last_name, name_key, kind)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reservationID,
		position,
		participant.FirstName,
		participant.LastName,
		string(participant.NameKey()),
		string(participant.Kind),
	)
	return err
}

func (q *Queries) RemoveParticipants(ctx context.Context, reservationID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM reservation_participants WHERE reservation_id = ?`, reservationID)
	return err
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
