package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/inventory"
	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/queue"
	"github.com/iliyamo/reservation-engine/internal/repository"
)

// world is an in-memory store.  fakeTx snapshots it at the start of a unit
// and restores the snapshot when the unit fails.
type world struct {
	mu           sync.Mutex
	txMu         sync.Mutex
	reservations map[uint64]*model.Reservation
	accounts     map[uint64]*model.Account
	properties   map[uint64]*model.Property
	units        map[uint64]int
	nextID       uint64
	failCreate   error
	// committed by another worker; survives a rollback of this one
	elsewhere    map[string]*model.Reservation
}

func newWorld() *world {
	return &world{
		reservations: map[uint64]*model.Reservation{},
		accounts:     map[uint64]*model.Account{},
		properties:   map[uint64]*model.Property{},
		units:        map[uint64]int{},
		elsewhere:    map[string]*model.Reservation{},
	}
}

type snapshot struct {
	reservations map[uint64]model.Reservation
	accounts     map[uint64]model.Account
	units        map[uint64]int
	nextID       uint64
}

func (w *world) snapshot() snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := snapshot{
		reservations: map[uint64]model.Reservation{},
		accounts:     map[uint64]model.Account{},
		units:        map[uint64]int{},
		nextID:       w.nextID,
	}
	for id, r := range w.reservations {
		s.reservations[id] = *r
	}
	for id, a := range w.accounts {
		s.accounts[id] = *a
	}
	for id, n := range w.units {
		s.units[id] = n
	}
	return s
}

func (w *world) restore(s snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reservations = map[uint64]*model.Reservation{}
	for id, r := range s.reservations {
		r := r
		w.reservations[id] = &r
	}
	w.accounts = map[uint64]*model.Account{}
	for id, a := range s.accounts {
		a := a
		w.accounts[id] = &a
	}
	w.units = s.units
	w.nextID = s.nextID
}

func (w *world) available(unitID uint64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.units[unitID]
}

func (w *world) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.reservations)
}

// fakeTx serializes units of work, like row locks on a single reservation.
type fakeTx struct{ w *world }

func (f fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *database.Tx) error) error {
	f.w.txMu.Lock()
	defer f.w.txMu.Unlock()
	snap := f.w.snapshot()
	tx := database.NewTx(nil)
	if err := fn(ctx, tx); err != nil {
		f.w.restore(snap)
		_ = tx.Compensate(ctx)
		return err
	}
	return nil
}

type reservationStore struct{ w *world }

func clone(r *model.Reservation) *model.Reservation {
	c := *r
	c.Units = append([]model.UnitSelection(nil), r.Units...)
	return &c
}

func (s reservationStore) CreateTx(_ context.Context, _ database.Querier, res *model.Reservation) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.failCreate != nil {
		return s.w.failCreate
	}
	for _, r := range s.w.reservations {
		if r.Reference == res.Reference {
			return repository.ErrDuplicateReference
		}
	}
	if res.PaymentRef != nil {
		if s.w.paymentOwner(*res.PaymentRef) != nil {
			return repository.ErrPaymentReferenceUsed
		}
	}
	s.w.nextID++
	res.ID = s.w.nextID
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	s.w.reservations[res.ID] = clone(res)
	return nil
}

func (s reservationStore) get(pred func(*model.Reservation) bool) (*model.Reservation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, r := range s.w.reservations {
		if pred(r) {
			return clone(r), nil
		}
	}
	return nil, repository.ErrReservationNotFound
}

func (s reservationStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	return s.get(func(r *model.Reservation) bool { return r.ID == id })
}

func (s reservationStore) GetByReference(_ context.Context, ref string) (*model.Reservation, error) {
	return s.get(func(r *model.Reservation) bool { return r.Reference == ref })
}

func (s reservationStore) GetByPaymentRef(_ context.Context, ref string) (*model.Reservation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if r := s.w.paymentOwner(ref); r != nil {
		return clone(r), nil
	}
	return nil, repository.ErrReservationNotFound
}

// paymentOwner expects w.mu to be held.
func (w *world) paymentOwner(ref string) *model.Reservation {
	for _, r := range w.reservations {
		if r.PaymentRef != nil && *r.PaymentRef == ref {
			return r
		}
	}
	return w.elsewhere[ref]
}

func (s reservationStore) GetForUpdateTx(ctx context.Context, _ database.Querier, id uint64) (*model.Reservation, error) {
	return s.GetByID(ctx, id)
}

func (s reservationStore) list(pred func(*model.Reservation) bool) []*model.Reservation {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	out := []*model.Reservation{}
	for _, r := range s.w.reservations {
		if pred(r) {
			out = append(out, clone(r))
		}
	}
	return out
}

func (s reservationStore) ListByConsumer(_ context.Context, id uint64) ([]*model.Reservation, error) {
	return s.list(func(r *model.Reservation) bool { return r.ConsumerID == id }), nil
}

func (s reservationStore) ListByOperator(_ context.Context, id uint64) ([]*model.Reservation, error) {
	return s.list(func(r *model.Reservation) bool { return r.OperatorID == id }), nil
}

func (s reservationStore) TransitionTx(_ context.Context, _ database.Querier, id uint64, party model.Role, actorID uint64, to model.Status) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.reservations[id]
	if !ok || r.Status.Terminal() {
		return 0, nil
	}
	owner := r.ConsumerID
	if party == model.RoleOperator {
		owner = r.OperatorID
	}
	if owner != actorID {
		return 0, nil
	}
	r.Status = to
	return 1, nil
}

func (s reservationStore) Analytics(context.Context, model.AnalyticsQuery) ([]model.AnalyticsBucket, error) {
	return []model.AnalyticsBucket{}, nil
}

type accountStore struct{ w *world }

func (s accountStore) GetByID(_ context.Context, id uint64) (*model.Account, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s accountStore) SavePaymentAuthTx(_ context.Context, _ database.Querier, id uint64, auth model.PaymentAuthorization) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.PaymentAuth = &auth
	return nil
}

type propertyStore struct{ w *world }

func (s propertyStore) GetByID(_ context.Context, id uint64) (*model.Property, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	p, ok := s.w.properties[id]
	if !ok {
		return nil, repository.ErrPropertyNotFound
	}
	c := *p
	return &c, nil
}

// ListUnits reports every unit in the world as belonging to propertyID.
func (s propertyStore) ListUnits(_ context.Context, propertyID uint64) ([]model.Unit, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	out := make([]model.Unit, 0, len(s.w.units))
	for id, n := range s.w.units {
		out = append(out, model.Unit{ID: id, PropertyID: propertyID, Name: fmt.Sprintf("unit-%d", id), Available: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// unitStore backs the real inventory.Ledger.
type unitStore struct{ w *world }

func (s unitStore) AvailableTx(_ context.Context, _ database.Querier, _ uint64, unitID uint64) (int, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	n, ok := s.w.units[unitID]
	if !ok {
		return 0, repository.ErrUnitNotFound
	}
	return n, nil
}

func (s unitStore) DecrementTx(_ context.Context, _ database.Querier, _ uint64, unitID uint64, qty int) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	n, ok := s.w.units[unitID]
	if !ok || n < qty {
		return false, nil
	}
	s.w.units[unitID] = n - qty
	return true, nil
}

func (s unitStore) IncrementTx(_ context.Context, _ database.Querier, _ uint64, unitID uint64, qty int) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.units[unitID]; !ok {
		return repository.ErrUnitNotFound
	}
	s.w.units[unitID] += qty
	return nil
}

type refundCall struct {
	Reference string
	Amount    int64
}

type fakeGateway struct {
	mu            sync.Mutex
	verified      map[string]*payment.Verification
	chargeOutcome payment.ChargeOutcome
	chargeErr     error
	refundErr     error
	payoutErr     error
	onVerify      func(ref string)

	verifyCalls int
	charges     []payment.ChargeRequest
	refunds     []refundCall
	payouts     []payment.Payout
}

func (g *fakeGateway) VerifyReference(_ context.Context, ref string, expect *payment.ProxyExpectation) (*payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.onVerify != nil {
		g.onVerify(ref)
	}
	v, ok := g.verified[ref]
	if !ok {
		return nil, apperror.Authorization("payment was not successful")
	}
	if expect != nil && v.Amount != expect.Amount {
		return nil, apperror.Wrap(apperror.KindBadRequest, "amount paid does not match",
			&payment.AmountMismatchError{Reference: ref, Expected: expect.Amount, Got: v.Amount})
	}
	return v, nil
}

func (g *fakeGateway) ChargeSavedAuthorization(_ context.Context, req payment.ChargeRequest) (payment.ChargeOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	return g.chargeOutcome, g.chargeErr
}

func (g *fakeGateway) Refund(_ context.Context, ref string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, refundCall{Reference: ref, Amount: amount})
	return nil
}

func (g *fakeGateway) PayRecipient(_ context.Context, p payment.Payout) (*payment.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	g.payouts = append(g.payouts, p)
	return &payment.Transfer{Reference: p.Reference, Status: "success", Amount: p.Amount}, nil
}

type pushed struct {
	ActorID uint64
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []*model.Notification
	pushes        []pushed
	broadcasts    []pushed
	failNotify    bool
}

func (n *fakeNotifier) Notify(_ context.Context, note *model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNotify {
		return errors.New("notification store down")
	}
	n.notifications = append(n.notifications, note)
	return nil
}

func (n *fakeNotifier) PushTo(_ context.Context, actorID uint64, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, pushed{ActorID: actorID, Event: event, Payload: payload})
	return nil
}

func (n *fakeNotifier) Broadcast(_ context.Context, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, pushed{Event: event, Payload: payload})
	return nil
}

func (n *fakeNotifier) forRecipient(id uint64) []*model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*model.Notification
	for _, note := range n.notifications {
		if note.RecipientID == id {
			out = append(out, note)
		}
	}
	return out
}

type fakeSettlements struct {
	mu    sync.Mutex
	tasks []queue.SettlementTask
}

func (f *fakeSettlements) Enqueue(_ context.Context, t queue.SettlementTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	return nil
}

const (
	consumerID  = 7
	operatorID  = 9
	propertyID  = 3
	unitID      = 1
	initialUnit = 5
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	w           *world
	gw          *fakeGateway
	notifier    *fakeNotifier
	settlements *fakeSettlements
	svc         *ReservationService
}

func newHarness() *harness {
	w := newWorld()
	recipient := "RCP_9"
	w.accounts[consumerID] = &model.Account{ID: consumerID, Email: "guest@example.com", Role: model.RoleConsumer}
	w.accounts[operatorID] = &model.Account{ID: operatorID, Email: "host@example.com", Role: model.RoleOperator, RecipientCode: &recipient}
	w.properties[propertyID] = &model.Property{
		ID: propertyID, OperatorID: operatorID, Type: model.PropertyStay, Name: "Lagoon Suites",
		CancellationPolicy: &model.CancellationPolicy{DaysBeforeCheckIn: 3, RefundableFraction: 0.5},
	}
	w.properties[4] = &model.Property{ID: 4, OperatorID: operatorID, Type: model.PropertyRestaurant, Name: "Bistro"}
	w.units[unitID] = initialUnit

	gw := &fakeGateway{verified: map[string]*payment.Verification{}}
	notifier := &fakeNotifier{}
	settlements := &fakeSettlements{}
	svc := NewReservationService(Deps{
		Reservations: reservationStore{w},
		Accounts:     accountStore{w},
		Properties:   propertyStore{w},
		Inventory:    inventory.NewLedger(unitStore{w}, logging.Discard()),
		Gateway:      gw,
		Notifier:     notifier,
		Settlements:  settlements,
		Tx:           fakeTx{w},
	}, logging.Discard())
	svc.now = func() time.Time { return testNow }
	return &harness{w: w, gw: gw, notifier: notifier, settlements: settlements, svc: svc}
}

func (h *harness) verifies(ref string, amount int64) {
	h.gw.verified[ref] = &payment.Verification{
		Reference: ref,
		Amount:    amount,
		Authorization: model.PaymentAuthorization{
			AuthorizationCode: "AUTH_" + ref, ExpMonth: 12, ExpYear: 2030, Reusable: true,
			Email: "guest@example.com", Amount: amount,
		},
	}
}

func scheduleIn(days int) model.Schedule {
	in := testNow.AddDate(0, 0, days).Truncate(24 * time.Hour)
	return model.Schedule{
		CheckInDay: in, CheckInTime: "14:00",
		CheckOutDay: in.AddDate(0, 0, 2), CheckOutTime: "11:00",
	}
}

func stayRequest(qty int, price int64, days int) CreateRequest {
	return CreateRequest{
		ConsumerID:       consumerID,
		PropertyID:       propertyID,
		PropertyType:     model.PropertyStay,
		Schedule:         scheduleIn(days),
		Units:            []model.UnitSelection{{UnitID: unitID, Quantity: qty, Guests: model.GuestCount{Adults: 2}}},
		Guests:           model.GuestCount{Adults: 2},
		Price:            price,
		PaymentMode:      PaymentReference,
		PaymentReference: "ref_ok",
	}
}
