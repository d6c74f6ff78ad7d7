package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/reservation-engine/internal/database"
)

// UnitRepo tracks remaining capacity of bookable property units.
type UnitRepo struct{ db *sql.DB }

func NewUnitRepo(db *sql.DB) *UnitRepo { return &UnitRepo{db: db} }

// AvailableTx returns the remaining capacity of a unit as seen by q.
func (r *UnitRepo) AvailableTx(ctx context.Context, q database.Querier, propertyID, unitID uint64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT available FROM property_units WHERE id=? AND property_id=?",
		unitID, propertyID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnitNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("unit availability: %w", err)
	}
	return n, nil
}

// DecrementTx takes qty units from the available count in one conditional
// statement.  It reports false when the unit lacks capacity (or does not
// exist); the row is left untouched in that case.
func (r *UnitRepo) DecrementTx(ctx context.Context, q database.Querier, propertyID, unitID uint64, qty int) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE property_units SET available = available - ?
		 WHERE id = ? AND property_id = ? AND available >= ?`,
		qty, unitID, propertyID, qty)
	if err != nil {
		return false, fmt.Errorf("decrement unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementTx returns qty units to the available count.
func (r *UnitRepo) IncrementTx(ctx context.Context, q database.Querier, propertyID, unitID uint64, qty int) error {
	res, err := q.ExecContext(ctx,
		"UPDATE property_units SET available = available + ? WHERE id = ? AND property_id = ?",
		qty, unitID, propertyID)
	if err != nil {
		return fmt.Errorf("increment unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnitNotFound
	}
	return nil
}
