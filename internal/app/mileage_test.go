package app_test

import (
	"sync"
	"testing"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpendDebitsMinimalBase(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 250, 1.5)

	res, err := h.mileage.Spend(h.ctx, "u1", 100, "snack bar")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.EqualValues(t, 67, res.Debited)
	assert.EqualValues(t, 183, res.NewBase)
	assert.EqualValues(t, 274, res.NewDisplay)
	assert.EqualValues(t, 183, h.user(t, "u1").BaseMileage)

	logs, err := h.store.List(h.ctx, "users/u1/logs")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	entry := logs[0].Data
	assert.Equal(t, "redeem", entry.String("type"))
	assert.Equal(t, "snack bar", entry.String("memo"))
	before, _ := entry.Int64("beforeDisplay")
	after, _ := entry.Int64("afterDisplay")
	assert.EqualValues(t, 375, before)
	assert.EqualValues(t, 274, after)
}

func TestSpendInsufficientBalanceLeavesBase(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 50, 1.2)

	_, err := h.mileage.Spend(h.ctx, "u1", 61, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.EqualValues(t, 50, h.user(t, "u1").BaseMileage)
	assert.Equal(t, 0, h.count(t, "users/u1/logs"))

	res, err := h.mileage.Spend(h.ctx, "u1", 60, "")
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.NewDisplay)
}

func TestSpendNonPositiveAmountIsNoop(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 80, 1)

	res, err := h.mileage.Spend(h.ctx, "u1", 0, "")
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Debited)
	assert.EqualValues(t, 80, res.NewBase)
	assert.Equal(t, 0, h.count(t, "users/u1/logs"))
}

func TestSpendRejectsCorruptBalances(t *testing.T) {
	cases := map[string]docstore.Data{
		"negative base":   {"baseMileage": -5, "multiplier": 1.0},
		"fractional base": {"baseMileage": 10.5, "multiplier": 1.0},
		"missing base":    {"multiplier": 1.0},
		"zero multiplier": {"baseMileage": 10, "multiplier": 0.0},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.store.Set(h.ctx, "users/u1", data))
			_, err := h.mileage.Spend(h.ctx, "u1", 1, "")
			assert.ErrorIs(t, err, domain.ErrInvalidState)
		})
	}
}

func TestConcurrentSpendsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 100, 1)

	const spenders = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, insufficient := 0, 0
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.mileage.Spend(h.ctx, "u1", 40, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, domain.ErrInsufficientBalance):
				insufficient++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, 2, insufficient)
	assert.EqualValues(t, 20, h.user(t, "u1").BaseMileage)
}

func TestSpendByStudent(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "10203 Lee", 30, 1)

	res, err := h.mileage.SpendByStudent(h.ctx, "10203", 10, "")
	require.NoError(t, err)
	assert.EqualValues(t, 20, res.NewBase)

	_, err = h.mileage.SpendByStudent(h.ctx, "10299", 10, "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
