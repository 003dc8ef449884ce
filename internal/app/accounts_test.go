package app_test

import (
	"testing"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureProfileCreatesOnce(t *testing.T) {
	h := newHarness(t)

	account, err := h.accounts.EnsureProfile(h.ctx, "u1", "20305 Kim Minji", "k@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.Student{Grade: 2, Class: 3, Number: 5, Name: "Kim Minji"}, account.Student)
	assert.Equal(t, 1.0, account.Multiplier)

	require.NoError(t, h.store.Merge(h.ctx, "users/u1", docstore.Data{"baseMileage": docstore.Inc(100)}))

	again, err := h.accounts.EnsureProfile(h.ctx, "u1", "10101 Someone Else", "k@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Kim Minji", again.Name)
	assert.EqualValues(t, 100, again.BaseMileage)

	_, err = h.accounts.EnsureProfile(h.ctx, "u2", "guest", "")
	assert.ErrorIs(t, err, domain.ErrInvalidStudent)
	assert.Equal(t, 1, h.count(t, "users"))
}

func TestSetMultiplierOnlyOnce(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 100, 1)

	_, err := h.accounts.SetMultiplier(h.ctx, "20305", 2.5)
	assert.ErrorIs(t, err, domain.ErrInvalidMultiplier)
	_, err = h.accounts.SetMultiplier(h.ctx, "20305", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidMultiplier)

	account, err := h.accounts.SetMultiplier(h.ctx, "20305", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, account.Multiplier)
	assert.EqualValues(t, 150, h.user(t, "u1").Display())

	_, err = h.accounts.SetMultiplier(h.ctx, "20305", 2)
	assert.ErrorIs(t, err, domain.ErrMultiplierAlreadySet)
	assert.Equal(t, 1.5, h.user(t, "u1").Multiplier)
}

func TestFindByStudentIDFlagsDuplicates(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 0, 1)
	h.seedUser(t, "u2", "20305 Kim", 0, 1)

	_, err := h.accounts.FindByStudentID(h.ctx, "20305")
	assert.ErrorIs(t, err, domain.ErrAmbiguousStudent)

	_, err = h.accounts.FindByStudentID(h.ctx, "2030")
	assert.ErrorIs(t, err, domain.ErrInvalidStudentID)
}

func TestAdminMarkers(t *testing.T) {
	h := newHarness(t)

	ok, err := h.accounts.IsAdmin(h.ctx, "root")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.accounts.GrantAdmin(h.ctx, "root"))
	ok, err = h.accounts.IsAdmin(h.ctx, "root")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWhitelistListing(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 0, 1)
	h.seedUser(t, "u2", "10101 Park", 0, 1)

	for _, id := range []string{"20305", "10101"} {
		_, err := h.accounts.RegisterWhitelist(h.ctx, id)
		require.NoError(t, err)
	}
	entries, err := h.accounts.Whitelist(h.ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "10101", entries[0].StudentID)
	assert.Equal(t, "u2", entries[0].UID)
}
