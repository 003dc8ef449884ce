package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/auth"
	"festival-mileage/internal/docstore"
	"festival-mileage/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	store    *memory.DocStore
	svc      Services
	verifier *auth.JWTVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewDocStore()
	logger := zap.NewNop()
	accounts := app.NewAccountService(store, logger)
	booths := app.NewBoothService(store, logger)
	svc := Services{
		Store:    store,
		Accounts: accounts,
		Booths:   booths,
		Visits:   app.NewVisitService(store, booths, accounts, logger),
		Quizzes:  app.NewQuizService(store, booths, logger),
		Mileage:  app.NewMileageService(store, accounts, logger),
		Votes:    app.NewLiveVote(store, app.DefaultRoundScope, logger, 30*time.Second, 2*time.Second),
		Presence: app.NewPresenceService(store, logger),
		Classes:  app.NewClassService(store, nil, logger),
	}
	verifier, err := auth.NewJWTVerifier("test-secret", "festival")
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(svc, verifier, Options{Poll: 20 * time.Millisecond, Debounce: 10 * time.Millisecond}, logger))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, svc: svc, verifier: verifier}
}

func (s *testServer) token(t *testing.T, uid, displayName string) string {
	t.Helper()
	token, err := s.verifier.Issue(auth.Identity{UID: uid, DisplayName: displayName, Email: uid + "@school.test"}, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (s *testServer) admin(t *testing.T) string {
	t.Helper()
	require.NoError(t, s.svc.Accounts.GrantAdmin(context.Background(), "admin-1"))
	return s.token(t, "admin-1", "10101 Admin")
}

func (s *testServer) seedBooth(t *testing.T, docID string, idx int) {
	t.Helper()
	require.NoError(t, s.store.Set(context.Background(), "booths/"+docID, docstore.Data{
		"boothIdx": idx,
		"name":     "Booth " + docID,
		"quiz": map[string]any{
			"question":      "2 + 2?",
			"options":       []any{"3", "4"},
			"correctAnswer": 1,
		},
	}))
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := srv.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodGet, "/api/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMeCreatesProfile(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "u1", "20315 Kim")

	resp, body := srv.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var me struct {
		UID            string  `json:"uid"`
		Grade          int     `json:"grade"`
		Class          int     `json:"class"`
		Number         int     `json:"number"`
		Multiplier     float64 `json:"multiplier"`
		DisplayMileage int64   `json:"displayMileage"`
		Admin          bool    `json:"admin"`
	}
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, "u1", me.UID)
	assert.Equal(t, 2, me.Grade)
	assert.Equal(t, 3, me.Class)
	assert.Equal(t, 15, me.Number)
	assert.Equal(t, 1.0, me.Multiplier)
	assert.False(t, me.Admin)

	resp, _ = srv.do(t, http.MethodGet, "/api/me", srv.token(t, "u2", "guest"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRedeemLinkGrantsOnceAndReportsUsed(t *testing.T) {
	srv := newTestServer(t)
	srv.seedBooth(t, "b7", 7)
	admin := srv.admin(t)
	token := srv.token(t, "u1", "20315 Kim")
	_, _ = srv.do(t, http.MethodGet, "/api/me", token, nil)

	resp, _ := srv.do(t, http.MethodPost, "/api/admin/redemption", admin, map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out redeemResponse
	resp, body := srv.do(t, http.MethodGet, "/req?boothIdx=7", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "success", string(out.Status))
	assert.Equal(t, "/req?boothIdx=7&used=True", out.ConsumedURL)

	_, body = srv.do(t, http.MethodGet, "/req?boothIdx=7", token, nil)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "duplicate", string(out.Status))

	_, body = srv.do(t, http.MethodGet, "/req?boothIdx=7&used=True", token, nil)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "used", string(out.Status))

	_, body = srv.do(t, http.MethodGet, "/req?boothIdx=99", token, nil)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "invalid", string(out.Status))

	account, err := srv.svc.Accounts.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 100, account.BaseMileage)
}

func TestBoothsHideQuizAnswer(t *testing.T) {
	srv := newTestServer(t)
	srv.seedBooth(t, "b1", 1)

	resp, body := srv.do(t, http.MethodGet, "/api/booths", srv.token(t, "u1", "20315 Kim"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var booths []struct {
		Quiz struct {
			CorrectAnswer int `json:"correctAnswer"`
		} `json:"quiz"`
	}
	require.NoError(t, json.Unmarshal(body, &booths))
	require.Len(t, booths, 1)
	assert.Equal(t, -1, booths[0].Quiz.CorrectAnswer)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "u1", "20315 Kim")

	resp, _ := srv.do(t, http.MethodPost, "/api/admin/vote/finalize", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminSpendAndMultiplier(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.admin(t)
	token := srv.token(t, "u1", "20315 Kim")
	_, _ = srv.do(t, http.MethodGet, "/api/me", token, nil)
	require.NoError(t, srv.store.Merge(context.Background(), "users/u1", docstore.Data{"baseMileage": 250}))

	resp, body := srv.do(t, http.MethodPost, "/api/admin/multiplier", admin, multiplierRequest{StudentID: "20315", Multiplier: 1.5})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = srv.do(t, http.MethodPost, "/api/admin/multiplier", admin, multiplierRequest{StudentID: "20315", Multiplier: 1.2})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = srv.do(t, http.MethodPost, "/api/admin/spend", admin, spendRequest{StudentID: "20315", Amount: 100, Memo: "snack"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var spent struct {
		Debited    int64 `json:"debited"`
		NewBase    int64 `json:"newBase"`
		NewDisplay int64 `json:"newDisplay"`
	}
	require.NoError(t, json.Unmarshal(body, &spent))
	assert.EqualValues(t, 67, spent.Debited)
	assert.EqualValues(t, 183, spent.NewBase)
	assert.EqualValues(t, 274, spent.NewDisplay)

	resp, _ = srv.do(t, http.MethodPost, "/api/admin/spend", admin, spendRequest{StudentID: "20315", Amount: 1000})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodPost, "/api/admin/spend", admin, map[string]any{"studentId": "20315", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminVoteLifecycle(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.admin(t)

	resp, _ := srv.do(t, http.MethodPost, "/api/admin/vote/start", admin, startRequest{Round: 4, Candidates: [2]string{"A", "B"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := srv.do(t, http.MethodPost, "/api/admin/vote/start", admin, startRequest{Round: 1, Candidates: [2]string{"A", "B"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	_, err := srv.svc.Votes.Vote(context.Background(), "u1", 1, 1)
	require.NoError(t, err)

	resp, body = srv.do(t, http.MethodPost, "/api/admin/vote/finalize", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var result struct {
		WinnerName string `json:"winnerName"`
		TotalVotes int    `json:"totalVotes"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "B", result.WinnerName)
	assert.Equal(t, 1, result.TotalVotes)

	resp, _ = srv.do(t, http.MethodGet, "/api/admin/vote/rounds/1", admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = srv.do(t, http.MethodGet, "/api/admin/vote/rounds/2", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodPost, "/api/admin/vote/final", admin, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdminClassWorkbook(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.admin(t)

	resp, body := srv.do(t, http.MethodGet, "/api/admin/classes.xlsx", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.True(t, bytes.HasPrefix(body, []byte("PK")))
}
