package service

import (
	"context"

	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/queue"
)

// ReservationStore persists reservations.  The *Tx methods run on the
// querier of the current unit of work.
type ReservationStore interface {
	CreateTx(ctx context.Context, q database.Querier, res *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	GetByReference(ctx context.Context, reference string) (*model.Reservation, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*model.Reservation, error)
	GetForUpdateTx(ctx context.Context, q database.Querier, id uint64) (*model.Reservation, error)
	ListByConsumer(ctx context.Context, consumerID uint64) ([]*model.Reservation, error)
	ListByOperator(ctx context.Context, operatorID uint64) ([]*model.Reservation, error)
	TransitionTx(ctx context.Context, q database.Querier, id uint64, party model.Role, actorID uint64, to model.Status) (int64, error)
	Analytics(ctx context.Context, aq model.AnalyticsQuery) ([]model.AnalyticsBucket, error)
}

// AccountStore reads accounts and stores saved authorizations.
type AccountStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
	SavePaymentAuthTx(ctx context.Context, q database.Querier, accountID uint64, auth model.PaymentAuthorization) error
}

// PropertyStore reads properties and their units.
type PropertyStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Property, error)
	ListUnits(ctx context.Context, propertyID uint64) ([]model.Unit, error)
}

// Inventory is the unit ledger.
type Inventory interface {
	Check(ctx context.Context, q database.Querier, propertyID uint64, sel []model.UnitSelection) error
	Reserve(ctx context.Context, q database.Querier, propertyID uint64, sel []model.UnitSelection) error
	Release(ctx context.Context, q database.Querier, propertyID uint64, sel []model.UnitSelection) error
}

// Gateway is the subset of the payment adapter the state machine calls.
type Gateway interface {
	VerifyReference(ctx context.Context, reference string, expect *payment.ProxyExpectation) (*payment.Verification, error)
	ChargeSavedAuthorization(ctx context.Context, req payment.ChargeRequest) (payment.ChargeOutcome, error)
	Refund(ctx context.Context, reference string, amount int64) error
	PayRecipient(ctx context.Context, p payment.Payout) (*payment.Transfer, error)
}

// Notifier is the notification fan-out.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
	PushTo(ctx context.Context, actorID uint64, event string, payload any) error
	Broadcast(ctx context.Context, event string, payload any) error
}

// SettlementQueue takes refunds and payouts that failed after commit.
type SettlementQueue interface {
	Enqueue(ctx context.Context, task queue.SettlementTask) error
}
