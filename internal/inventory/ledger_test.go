package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/repository"
)

// memUnits is a mutex-guarded counter store with the same conditional
// decrement semantics as the SQL store.
type memUnits struct {
	mu    sync.Mutex
	avail map[uint64]int
}

func newMemUnits(avail map[uint64]int) *memUnits { return &memUnits{avail: avail} }

func (m *memUnits) AvailableTx(_ context.Context, _ database.Querier, _ uint64, unitID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.avail[unitID]
	if !ok {
		return 0, repository.ErrUnitNotFound
	}
	return n, nil
}

func (m *memUnits) DecrementTx(_ context.Context, _ database.Querier, _ uint64, unitID uint64, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.avail[unitID]
	if !ok || n < qty {
		return false, nil
	}
	m.avail[unitID] = n - qty
	return true, nil
}

func (m *memUnits) IncrementTx(_ context.Context, _ database.Querier, _ uint64, unitID uint64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.avail[unitID]; !ok {
		return repository.ErrUnitNotFound
	}
	m.avail[unitID] += qty
	return nil
}

func (m *memUnits) get(id uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avail[id]
}

func TestLedger_ReserveIsAllOrNothing(t *testing.T) {
	units := newMemUnits(map[uint64]int{1: 5, 2: 1})
	l := NewLedger(units, logging.Discard())

	err := l.Reserve(context.Background(), nil, 3, []model.UnitSelection{
		{UnitID: 1, Quantity: 2},
		{UnitID: 2, Quantity: 2},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
	assert.Equal(t, 5, units.get(1))
	assert.Equal(t, 1, units.get(2))
}

func TestLedger_ReserveReleaseInverse(t *testing.T) {
	units := newMemUnits(map[uint64]int{1: 4, 2: 3})
	l := NewLedger(units, logging.Discard())
	sel := []model.UnitSelection{{UnitID: 1, Quantity: 2}, {UnitID: 2, Quantity: 3}}

	require.NoError(t, l.Reserve(context.Background(), nil, 3, sel))
	assert.Equal(t, 2, units.get(1))
	assert.Equal(t, 0, units.get(2))

	require.NoError(t, l.Release(context.Background(), nil, 3, sel))
	assert.Equal(t, 4, units.get(1))
	assert.Equal(t, 3, units.get(2))
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	units := newMemUnits(map[uint64]int{1: 10})
	l := NewLedger(units, logging.Discard())

	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve(context.Background(), nil, 3, []model.UnitSelection{{UnitID: 1, Quantity: 1}}) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, wins)
	assert.Equal(t, 0, units.get(1))
}

func TestLedger_Check(t *testing.T) {
	units := newMemUnits(map[uint64]int{1: 1})
	l := NewLedger(units, logging.Discard())

	assert.NoError(t, l.Check(context.Background(), nil, 3, []model.UnitSelection{{UnitID: 1, Quantity: 1}}))
	assert.ErrorIs(t, l.Check(context.Background(), nil, 3, []model.UnitSelection{{UnitID: 1, Quantity: 2}}), ErrInsufficientCapacity)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(l.Check(context.Background(), nil, 3, []model.UnitSelection{{UnitID: 9, Quantity: 1}})))
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(l.Check(context.Background(), nil, 3, nil)))
	assert.Equal(t, 1, units.get(1))
}

func TestLedger_ReleaseSkipsMissingUnits(t *testing.T) {
	units := newMemUnits(map[uint64]int{1: 0})
	l := NewLedger(units, logging.Discard())

	err := l.Release(context.Background(), nil, 3, []model.UnitSelection{{UnitID: 1, Quantity: 2}, {UnitID: 7, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, units.get(1))
}
