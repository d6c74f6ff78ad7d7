package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/model"
)

// AccountRepo reads and updates the payment-related columns of accounts.
// Account creation and credentials are owned by the identity service.
type AccountRepo struct{ db *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

// GetByID fetches an account or ErrAccountNotFound.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	var (
		a            model.Account
		authJSON     []byte
		recipient    sql.NullString
		cancelDays   sql.NullInt64
		cancelFactor sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, role, payment_auth, recipient_code, cancel_days, cancel_fraction, created_at, updated_at
		 FROM accounts WHERE id=? LIMIT 1`, id).
		Scan(&a.ID, &a.Email, &a.Role, &authJSON, &recipient, &cancelDays, &cancelFactor, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if len(authJSON) > 0 {
		var auth model.PaymentAuthorization
		if err := json.Unmarshal(authJSON, &auth); err != nil {
			return nil, fmt.Errorf("decode payment_auth: %w", err)
		}
		a.PaymentAuth = &auth
	}
	if recipient.Valid {
		code := recipient.String
		a.RecipientCode = &code
	}
	a.CancellationPolicy = policyFrom(cancelDays, cancelFactor)
	return &a, nil
}

// SavePaymentAuthTx stores the reusable authorization on the account as part
// of the surrounding unit of work.
func (r *AccountRepo) SavePaymentAuthTx(ctx context.Context, q database.Querier, accountID uint64, auth model.PaymentAuthorization) error {
	bs, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("encode payment_auth: %w", err)
	}
	return expectOne(q.ExecContext(ctx, "UPDATE accounts SET payment_auth=? WHERE id=?", bs, accountID))
}

// SetRecipientCode records the payout recipient registered for an operator.
func (r *AccountRepo) SetRecipientCode(ctx context.Context, accountID uint64, code string) error {
	return expectOne(r.db.ExecContext(ctx, "UPDATE accounts SET recipient_code=? WHERE id=?", code, accountID))
}

// SetCancellationPolicy stores the operator-wide default policy.
func (r *AccountRepo) SetCancellationPolicy(ctx context.Context, accountID uint64, p model.CancellationPolicy) error {
	return expectOne(r.db.ExecContext(ctx,
		"UPDATE accounts SET cancel_days=?, cancel_fraction=? WHERE id=?",
		p.DaysBeforeCheckIn, p.RefundableFraction, accountID))
}

// expectOne wraps an update error.  Zero affected rows is not an error:
// MySQL reports zero for an unchanged value as well, so callers load the
// account first when they need existence.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	_, err = res.RowsAffected()
	return err
}

func policyFrom(days sql.NullInt64, fraction sql.NullFloat64) *model.CancellationPolicy {
	if !days.Valid || !fraction.Valid {
		return nil
	}
	return &model.CancellationPolicy{DaysBeforeCheckIn: int(days.Int64), RefundableFraction: fraction.Float64}
}
