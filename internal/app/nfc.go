package app

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"

	"festival-mileage/internal/domain"
)

// UsedFlagValue marks an NFC link that has already been consumed.
const UsedFlagValue = "True"

// VisitRedeemer is the redemption entry point an NFC link triggers.
type VisitRedeemer interface {
	RedeemVisit(ctx context.Context, uid string, boothIdx int) (domain.RedeemResult, error)
}

// VisitLatch is the session state of one NFC link visit. The used flag is
// pinned from the URL the latch was created with and is never re-read, and the
// redemption runs at most once no matter how often Run is called.
type VisitLatch struct {
	redeemer VisitRedeemer
	link     *url.URL
	boothIdx int
	idxOK    bool
	used     bool

	once   sync.Once
	mu     sync.Mutex
	status domain.RedeemStatus
	result domain.RedeemResult
	err    error
}

// NewVisitLatch pins the boothIdx and used query parameters of link.
func NewVisitLatch(redeemer VisitRedeemer, link *url.URL) *VisitLatch {
	l := &VisitLatch{redeemer: redeemer, status: domain.StatusLoading}
	copied := *link
	l.link = &copied
	q := copied.Query()
	l.used = q.Get("used") == UsedFlagValue
	if raw := q.Get("boothIdx"); raw != "" {
		if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 {
			l.boothIdx, l.idxOK = idx, true
		}
	}
	return l
}

// ConsumedURL is the link rewritten with used=True, meant to replace the
// current history entry so a manual reload is rejected.
func (l *VisitLatch) ConsumedURL() string {
	u := *l.link
	q := u.Query()
	q.Set("used", UsedFlagValue)
	u.RawQuery = q.Encode()
	return u.String()
}

// Status returns the current externally visible status.
func (l *VisitLatch) Status() domain.RedeemStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Run performs the redemption for uid once and returns the final status.
func (l *VisitLatch) Run(ctx context.Context, uid string) (domain.RedeemStatus, domain.RedeemResult, error) {
	l.once.Do(func() {
		status, result, err := l.run(ctx, uid)
		l.mu.Lock()
		l.status, l.result, l.err = status, result, err
		l.mu.Unlock()
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status, l.result, l.err
}

func (l *VisitLatch) run(ctx context.Context, uid string) (domain.RedeemStatus, domain.RedeemResult, error) {
	if l.used && l.idxOK {
		return domain.StatusUsed, domain.RedeemResult{}, nil
	}
	if !l.idxOK {
		return domain.StatusInvalid, domain.RedeemResult{}, nil
	}
	// The link counts as consumed from here on, whatever the outcome.
	l.used = true

	result, err := l.redeemer.RedeemVisit(ctx, uid, l.boothIdx)
	switch {
	case errors.Is(err, domain.ErrInvalidReference):
		return domain.StatusInvalid, result, err
	case err != nil:
		return domain.StatusError, result, err
	case result.Granted:
		return domain.StatusSuccess, result, nil
	case result.Reason == domain.ReasonDisabled:
		return domain.StatusDisabled, result, nil
	default:
		return domain.StatusDuplicate, result, nil
	}
}
