package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/reservation-engine/internal/model"
)

// PropertyRepo reads the catalog fields the booking core depends on.
type PropertyRepo struct{ db *sql.DB }

func NewPropertyRepo(db *sql.DB) *PropertyRepo { return &PropertyRepo{db: db} }

// GetByID fetches a property or ErrPropertyNotFound.
func (r *PropertyRepo) GetByID(ctx context.Context, id uint64) (*model.Property, error) {
	var (
		p        model.Property
		days     sql.NullInt64
		fraction sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, operator_id, type, name, cancel_days, cancel_fraction FROM properties WHERE id=? LIMIT 1", id).
		Scan(&p.ID, &p.OperatorID, &p.Type, &p.Name, &days, &fraction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	p.CancellationPolicy = policyFrom(days, fraction)
	return &p, nil
}

// ListUnits returns the units of a property ordered by id.
func (r *PropertyRepo) ListUnits(ctx context.Context, propertyID uint64) ([]model.Unit, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, property_id, name, available FROM property_units WHERE property_id=? ORDER BY id", propertyID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()
	out := make([]model.Unit, 0)
	for rows.Next() {
		var u model.Unit
		if err := rows.Scan(&u.ID, &u.PropertyID, &u.Name, &u.Available); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
