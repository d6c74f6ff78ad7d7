package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/model"
)

// ErrDuplicateReference is returned by CreateTx when the generated reference
// code collides with an existing reservation.  Callers regenerate and retry.
var ErrDuplicateReference = errors.New("duplicate reservation reference")

// ErrPaymentReferenceUsed is returned by CreateTx when another reservation
// already holds the payment reference.  A payment funds one booking only.
var ErrPaymentReferenceUsed = errors.New("payment reference already used")

const paymentRefKey = "uq_reservations_payment_ref"

// ReservationRepo persists reservations and their unit selections.  Unit
// selections live in the reservation_units table.  All timestamps are UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, reference, consumer_id, operator_id, property_id, property_type,
	check_in_day, check_in_time, check_out_day, check_out_time, adults, children, price,
	payment_ref, payment_auth, status, requests, proxy_payment, is_agent, guest_full_name, guest_email,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res                   model.Reservation
		paymentRef            sql.NullString
		guestName, guestEmail sql.NullString
		authJSON, reqJSON     []byte
	)
	err := s.Scan(
		&res.ID, &res.Reference, &res.ConsumerID, &res.OperatorID, &res.PropertyID, &res.PropertyType,
		&res.CheckInDay, &res.CheckInTime, &res.CheckOutDay, &res.CheckOutTime,
		&res.Guests.Adults, &res.Guests.Children, &res.Price,
		&paymentRef, &authJSON, &res.Status, &reqJSON, &res.ProxyPayment, &res.IsAgent,
		&guestName, &guestEmail, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paymentRef.Valid {
		ref := paymentRef.String
		res.PaymentRef = &ref
	}
	if len(authJSON) > 0 {
		var auth model.PaymentAuthorization
		if err := json.Unmarshal(authJSON, &auth); err != nil {
			return nil, fmt.Errorf("decode payment_auth: %w", err)
		}
		res.PaymentAuth = &auth
	}
	if len(reqJSON) > 0 {
		if err := json.Unmarshal(reqJSON, &res.Requests); err != nil {
			return nil, fmt.Errorf("decode requests: %w", err)
		}
	}
	res.GuestName = guestName.String
	res.GuestEmail = guestEmail.String
	return &res, nil
}

// CreateTx inserts a reservation and its unit selections within the scope of
// an existing unit of work.  It populates the generated ID and timestamps on
// res.  A reference collision is reported as ErrDuplicateReference and a
// reused payment reference as ErrPaymentReferenceUsed.
func (r *ReservationRepo) CreateTx(ctx context.Context, q database.Querier, res *model.Reservation) error {
	authJSON, err := nullableJSON(res.PaymentAuth)
	if err != nil {
		return err
	}
	var reqJSON []byte
	if len(res.Requests) > 0 {
		if reqJSON, err = json.Marshal(res.Requests); err != nil {
			return fmt.Errorf("encode requests: %w", err)
		}
	}
	now := time.Now().UTC().Truncate(time.Second)
	const ins = `INSERT INTO reservations (reference, consumer_id, operator_id, property_id, property_type,
		check_in_day, check_in_time, check_out_day, check_out_time, adults, children, price,
		payment_ref, payment_auth, status, requests, proxy_payment, is_agent, guest_full_name, guest_email,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := q.ExecContext(ctx, ins,
		res.Reference, res.ConsumerID, res.OperatorID, res.PropertyID, res.PropertyType,
		res.CheckInDay, res.CheckInTime, res.CheckOutDay, res.CheckOutTime,
		res.Guests.Adults, res.Guests.Children, res.Price,
		res.PaymentRef, authJSON, res.Status, reqJSON, res.ProxyPayment, res.IsAgent,
		nullString(res.GuestName), nullString(res.GuestEmail), now, now,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 {
			if strings.Contains(myErr.Message, paymentRefKey) {
				return ErrPaymentReferenceUsed
			}
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reservation id: %w", err)
	}
	res.ID = uint64(id)
	res.CreatedAt, res.UpdatedAt = now, now

	if len(res.Units) == 0 {
		return nil
	}
	// Insert all unit rows in a single statement.
	query := `INSERT INTO reservation_units (reservation_id, unit_id, quantity, adults, children) VALUES `
	args := make([]any, 0, len(res.Units)*5)
	for i, u := range res.Units {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, res.ID, u.UnitID, u.Quantity, u.Guests.Adults, u.Guests.Children)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert reservation units: %w", err)
	}
	return nil
}

// GetByID returns a reservation with its units or ErrReservationNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.getOne(ctx, r.db, `WHERE id = ?`, id)
}

// GetByReference looks a reservation up by its public reference code.
func (r *ReservationRepo) GetByReference(ctx context.Context, reference string) (*model.Reservation, error) {
	return r.getOne(ctx, r.db, `WHERE reference = ?`, strings.ToUpper(strings.TrimSpace(reference)))
}

// GetByPaymentRef returns the reservation funded by a payment reference, or
// ErrReservationNotFound.
func (r *ReservationRepo) GetByPaymentRef(ctx context.Context, paymentRef string) (*model.Reservation, error) {
	return r.getOne(ctx, r.db, `WHERE payment_ref = ?`, strings.TrimSpace(paymentRef))
}

// GetForUpdateTx loads a reservation and locks its row until the unit of work
// ends, so concurrent transitions on the same reservation serialize.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, q database.Querier, id uint64) (*model.Reservation, error) {
	return r.getOne(ctx, q, `WHERE id = ? FOR UPDATE`, id)
}

func (r *ReservationRepo) getOne(ctx context.Context, q database.Querier, where string, arg any) (*model.Reservation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations `+where, arg)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if err := r.attachUnits(ctx, q, []*model.Reservation{res}); err != nil {
		return nil, err
	}
	return res, nil
}

// ListByConsumer returns the consumer's reservations, newest first.
func (r *ReservationRepo) ListByConsumer(ctx context.Context, consumerID uint64) ([]*model.Reservation, error) {
	return r.list(ctx, "consumer_id", consumerID)
}

// ListByOperator returns reservations on the operator's properties, newest first.
func (r *ReservationRepo) ListByOperator(ctx context.Context, operatorID uint64) ([]*model.Reservation, error) {
	return r.list(ctx, "operator_id", operatorID)
}

func (r *ReservationRepo) list(ctx context.Context, column string, id uint64) ([]*model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+column+` = ? ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachUnits(ctx, r.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachUnits populates unit selections for all reservations in one query.
func (r *ReservationRepo) attachUnits(ctx context.Context, q database.Querier, list []*model.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[uint64]*model.Reservation, len(list))
	ids := make([]any, 0, len(list))
	placeholders := make([]string, 0, len(list))
	for _, res := range list {
		if !res.PropertyType.CapacityConstrained() {
			continue
		}
		index[res.ID] = res
		ids = append(ids, res.ID)
		placeholders = append(placeholders, "?")
	}
	if len(ids) == 0 {
		return nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT reservation_id, unit_id, quantity, adults, children
		 FROM reservation_units
		 WHERE reservation_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY reservation_id, unit_id`, ids...)
	if err != nil {
		return fmt.Errorf("load reservation units: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rid uint64
		var u model.UnitSelection
		if err := rows.Scan(&rid, &u.UnitID, &u.Quantity, &u.Guests.Adults, &u.Guests.Children); err != nil {
			return fmt.Errorf("scan reservation unit: %w", err)
		}
		if res, ok := index[rid]; ok {
			res.Units = append(res.Units, u)
		}
	}
	return rows.Err()
}

// TransitionTx moves a reservation owned by actorID (as consumer or operator,
// per party) to status `to`, but only while it is not terminal.  It returns
// the number of rows changed; zero means the reservation is already terminal
// or not owned by the actor.
func (r *ReservationRepo) TransitionTx(ctx context.Context, q database.Querier, id uint64, party model.Role, actorID uint64, to model.Status) (int64, error) {
	column := "consumer_id"
	if party == model.RoleOperator {
		column = "operator_id"
	}
	result, err := q.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ?
		 WHERE id = ? AND `+column+` = ? AND status NOT IN ('CANCELLED', 'COMPLETED')`,
		to, time.Now().UTC(), id, actorID,
	)
	if err != nil {
		return 0, fmt.Errorf("update reservation status: %w", err)
	}
	return result.RowsAffected()
}

var periodFormats = map[model.Interval]string{
	model.IntervalDaily:   "%Y-%m-%d",
	model.IntervalWeekly:  "%x-W%v",
	model.IntervalMonthly: "%Y-%m",
}

// Analytics aggregates the actor's reservations created in [From, To] into
// one bucket per interval.  Revenue excludes cancelled reservations.
func (r *ReservationRepo) Analytics(ctx context.Context, aq model.AnalyticsQuery) ([]model.AnalyticsBucket, error) {
	format, ok := periodFormats[aq.Interval]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", aq.Interval)
	}
	column := "consumer_id"
	if aq.Actor.Role == model.RoleOperator {
		column = "operator_id"
	}
	where := []string{column + " = ?", "created_at BETWEEN ? AND ?"}
	args := []any{aq.Actor.ID, aq.From.UTC(), aq.To.UTC()}
	if aq.PropertyID != nil {
		where = append(where, "property_id = ?")
		args = append(args, *aq.PropertyID)
	}
	if aq.PropertyType != nil {
		where = append(where, "property_type = ?")
		args = append(args, *aq.PropertyType)
	}
	// format comes from periodFormats, never from the caller
	query := `SELECT DATE_FORMAT(created_at, '` + format + `') AS period,
					 COUNT(*),
					 COALESCE(SUM(status = 'CANCELLED'), 0),
					 COALESCE(SUM(status = 'COMPLETED'), 0),
					 COALESCE(SUM(CASE WHEN status <> 'CANCELLED' THEN price ELSE 0 END), 0)
			  FROM reservations
			  WHERE ` + strings.Join(where, " AND ") + `
			  GROUP BY period
			  ORDER BY period`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reservation analytics: %w", err)
	}
	defer rows.Close()
	buckets := make([]model.AnalyticsBucket, 0)
	for rows.Next() {
		var b model.AnalyticsBucket
		if err := rows.Scan(&b.Period, &b.Reservations, &b.Cancelled, &b.Completed, &b.Revenue); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func nullableJSON(v *model.PaymentAuthorization) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payment_auth: %w", err)
	}
	return bs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
