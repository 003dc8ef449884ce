package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/infra/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 17, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	ctx      context.Context
	clock    *fakeClock
	store    *memory.DocStore
	accounts *app.AccountService
	booths   *app.BoothService
	visits   *app.VisitService
	quizzes  *app.QuizService
	mileage  *app.MileageService
	vote     *app.LiveVote
	presence *app.PresenceService
	classes  *app.ClassService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewDocStoreWithClock(clock.Now)
	logger := zap.NewNop()

	accounts := app.NewAccountService(store, logger)
	booths := app.NewBoothService(store, logger)
	return &harness{
		ctx:      context.Background(),
		clock:    clock,
		store:    store,
		accounts: accounts,
		booths:   booths,
		visits:   app.NewVisitService(store, booths, accounts, logger),
		quizzes:  app.NewQuizService(store, booths, logger),
		mileage:  app.NewMileageService(store, accounts, logger),
		vote:     app.NewLiveVoteWithClock(store, app.DefaultRoundScope, logger, 30*time.Second, 2*time.Second, clock.Now),
		presence: app.NewPresenceService(store, logger),
		classes:  app.NewClassService(store, nil, logger),
	}
}

func (h *harness) seedUser(t *testing.T, uid, displayName string, base int64, multiplier float64) {
	t.Helper()
	student, err := domain.ParseDisplayName(displayName)
	require.NoError(t, err)
	require.NoError(t, h.store.Set(h.ctx, "users/"+uid, docstore.Data{
		"uid":         uid,
		"grade":       student.Grade,
		"class":       student.Class,
		"number":      student.Number,
		"name":        student.Name,
		"baseMileage": base,
		"multiplier":  multiplier,
		"stampCount":  0,
	}))
}

func (h *harness) seedBooth(t *testing.T, docID string, idx int, quiz *domain.Quiz) {
	t.Helper()
	data := docstore.Data{"boothIdx": idx, "name": "Booth " + docID, "visitCount": 0}
	if quiz != nil {
		data["quiz"] = map[string]any{
			"question":      quiz.Question,
			"options":       quiz.Options,
			"correctAnswer": quiz.CorrectAnswer,
		}
	}
	require.NoError(t, h.store.Set(h.ctx, "booths/"+docID, data))
}

func (h *harness) enableRedemption(t *testing.T) {
	t.Helper()
	require.NoError(t, h.visits.SetRedemptionEnabled(h.ctx, true))
}

func (h *harness) user(t *testing.T, uid string) domain.UserAccount {
	t.Helper()
	account, err := h.accounts.Profile(h.ctx, uid)
	require.NoError(t, err)
	return account
}

func (h *harness) count(t *testing.T, collection string) int {
	t.Helper()
	docs, err := h.store.List(h.ctx, collection)
	require.NoError(t, err)
	return len(docs)
}
