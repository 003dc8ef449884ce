package app_test

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"

	"festival-mileage/internal/app"
	"festival-mileage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRedeemer struct {
	calls  atomic.Int32
	result domain.RedeemResult
	err    error
}

func (c *countingRedeemer) RedeemVisit(context.Context, string, int) (domain.RedeemResult, error) {
	c.calls.Add(1)
	return c.result, c.err
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestVisitLatchUsedLinkTouchesNothing(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "20305 Kim", 0, 1)
	h.seedBooth(t, "b7", 7, nil)
	h.enableRedemption(t)

	latch := app.NewVisitLatch(h.visits, mustURL(t, "https://fest.example/req?boothIdx=7&used=True"))
	status, _, err := latch.Run(h.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUsed, status)
	assert.Equal(t, 0, h.count(t, "users/u1/boothVisits"))
	assert.EqualValues(t, 0, h.user(t, "u1").BaseMileage)
}

func TestVisitLatchRunsOnce(t *testing.T) {
	r := &countingRedeemer{result: domain.RedeemResult{Granted: true}}
	latch := app.NewVisitLatch(r, mustURL(t, "/req?boothIdx=3&used=False"))
	assert.Equal(t, domain.StatusLoading, latch.Status())

	for i := 0; i < 3; i++ {
		status, _, err := latch.Run(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, status)
	}
	assert.EqualValues(t, 1, r.calls.Load())

	consumed, err := url.Parse(latch.ConsumedURL())
	require.NoError(t, err)
	assert.Equal(t, "True", consumed.Query().Get("used"))
	assert.Equal(t, "3", consumed.Query().Get("boothIdx"))
}

func TestVisitLatchStatuses(t *testing.T) {
	cases := []struct {
		name   string
		link   string
		result domain.RedeemResult
		err    error
		want   domain.RedeemStatus
		calls  int32
	}{
		{name: "missing index", link: "/req", want: domain.StatusInvalid},
		{name: "bad index", link: "/req?boothIdx=x", want: domain.StatusInvalid},
		{name: "missing index with used flag", link: "/req?used=True", want: domain.StatusInvalid},
		{name: "success", link: "/req?boothIdx=1", result: domain.RedeemResult{Granted: true}, want: domain.StatusSuccess, calls: 1},
		{name: "duplicate", link: "/req?boothIdx=1", result: domain.RedeemResult{Reason: domain.ReasonDuplicate}, want: domain.StatusDuplicate, calls: 1},
		{name: "disabled", link: "/req?boothIdx=1", result: domain.RedeemResult{Reason: domain.ReasonDisabled}, want: domain.StatusDisabled, calls: 1},
		{name: "unknown booth", link: "/req?boothIdx=1", err: domain.ErrInvalidReference, want: domain.StatusInvalid, calls: 1},
		{name: "ambiguous booth", link: "/req?boothIdx=1", err: domain.ErrAmbiguousBooth, want: domain.StatusInvalid, calls: 1},
		{name: "store failure", link: "/req?boothIdx=1", err: domain.Transient(errors.New("timeout")), want: domain.StatusError, calls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &countingRedeemer{result: tc.result, err: tc.err}
			latch := app.NewVisitLatch(r, mustURL(t, tc.link))
			status, _, _ := latch.Run(context.Background(), "u1")
			assert.Equal(t, tc.want, status)
			assert.Equal(t, tc.calls, r.calls.Load())
		})
	}
}

func TestVisitLatchPinsFlagFromCreation(t *testing.T) {
	r := &countingRedeemer{result: domain.RedeemResult{Granted: true}}
	link := mustURL(t, "/req?boothIdx=5")
	latch := app.NewVisitLatch(r, link)

	// Rewriting the caller's URL afterwards must not re-arm or disarm the latch.
	link.RawQuery = "boothIdx=5&used=True"
	status, _, err := latch.Run(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, status)
}
