package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/reservation-engine/internal/logging"
)

// Compensation undoes an external side effect (a captured payment, for
// example) that the database rollback cannot reach.
type Compensation func(ctx context.Context) error

// Tx is one unit of work.  Statements run through the embedded Querier;
// compensations registered with OnRollback run in reverse order when the
// unit does not commit.
type Tx struct {
	Querier
	compensations []Compensation
}

// NewTx wraps q.  Transactor implementations use it; tests can too.
func NewTx(q Querier) *Tx { return &Tx{Querier: q} }

// OnRollback registers fn to run if the unit of work fails.
func (t *Tx) OnRollback(fn Compensation) { t.compensations = append(t.compensations, fn) }

// Compensate runs registered compensations last-in first-out and joins their
// errors.  The context is detached from cancellation so a cancelled request
// still gets its refunds issued.
func (t *Tx) Compensate(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(t.compensations) - 1; i >= 0; i-- {
		if err := t.compensations[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.compensations = nil
	return errors.Join(errs...)
}

// Transactor runs fn as a single all-or-nothing unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error
}

// SQLTransactor backs units of work with MySQL transactions.
type SQLTransactor struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLTransactor returns a Transactor bound to db.
func NewSQLTransactor(db *sql.DB, logger logging.Logger) *SQLTransactor {
	return &SQLTransactor{db: db, logger: logger}
}

// WithinTx begins a transaction, runs fn and commits.  Any error from fn or
// from the commit rolls the transaction back and triggers compensations;
// fn's error is returned unchanged so callers keep its classification.
func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := NewTx(sqlTx)
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = sqlTx.Rollback()
		if cerr := tx.Compensate(ctx); cerr != nil {
			t.logger.Errorf("compensation failed: %v", cerr)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
