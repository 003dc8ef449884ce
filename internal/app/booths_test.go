package app_test

import (
	"testing"

	"festival-mileage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoothImportEnforcesUniqueIndex(t *testing.T) {
	h := newHarness(t)

	_, err := h.booths.Import(h.ctx, []domain.Booth{
		{DocID: "a", Index: 1, Name: "Arcade"},
		{DocID: "b", Index: 1, Name: "Bakery"},
	})
	assert.ErrorIs(t, err, domain.ErrAmbiguousBooth)
	assert.Equal(t, 0, h.count(t, "booths"))

	n, err := h.booths.Import(h.ctx, []domain.Booth{
		{DocID: "a", Index: 1, Name: "Arcade"},
		{DocID: "b", Index: 2, Name: "Bakery", Quiz: &domain.Quiz{Question: "?", Options: []string{"x", "y"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = h.booths.Import(h.ctx, []domain.Booth{{DocID: "c", Index: 2, Name: "Clash"}})
	assert.ErrorIs(t, err, domain.ErrAmbiguousBooth)

	booth, err := h.booths.ResolveBooth(h.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Bakery", booth.Name)
	require.NotNil(t, booth.Quiz)
	assert.Equal(t, []string{"x", "y"}, booth.Quiz.Options)
}

func TestBoothImportKeepsVisitCounts(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 0, 1)
	h.seedBooth(t, "a", 1, nil)
	h.enableRedemption(t)
	_, err := h.visits.RedeemVisit(h.ctx, "u1", 1)
	require.NoError(t, err)

	_, err = h.booths.Import(h.ctx, []domain.Booth{{DocID: "a", Index: 1, Name: "Renamed"}})
	require.NoError(t, err)

	booth, err := h.booths.ResolveBooth(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", booth.Name)
	assert.EqualValues(t, 1, booth.VisitCount)
}

func TestListBoothsByVisits(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 0, 1)
	h.seedBooth(t, "a", 1, nil)
	h.seedBooth(t, "b", 2, nil)
	h.seedBooth(t, "c", 3, nil)
	h.enableRedemption(t)
	_, err := h.visits.RedeemVisit(h.ctx, "u1", 3)
	require.NoError(t, err)

	booths, err := h.booths.List(h.ctx)
	require.NoError(t, err)
	require.Len(t, booths, 3)
	assert.Equal(t, []int{3, 1, 2}, []int{booths[0].Index, booths[1].Index, booths[2].Index})
}
