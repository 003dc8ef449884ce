package http

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/auth"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/export"
	"go.uber.org/zap"
)

// API serves the JSON endpoints.
type API struct {
	svc      Services
	verifier auth.Verifier
	logger   *zap.Logger
}

func NewAPI(svc Services, verifier auth.Verifier, logger *zap.Logger) *API {
	return &API{svc: svc, verifier: verifier, logger: logger}
}

func (a *API) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := auth.Authenticate(r, a.verifier)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	}
}

func (a *API) admin(next http.HandlerFunc) http.HandlerFunc {
	return a.authed(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		ok, err := a.svc.Accounts.IsAdmin(r.Context(), id.UID)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if !ok {
			a.writeError(w, r, domain.ErrForbidden)
			return
		}
		next(w, r)
	})
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

type redeemResponse struct {
	Status      domain.RedeemStatus `json:"status"`
	Booth       *domain.Booth       `json:"booth,omitempty"`
	ConsumedURL string              `json:"consumedUrl"`
}

// redeemLink handles a tapped NFC link. The client replaces its history entry
// with consumedUrl so a reload reports "used" instead of redeeming again.
func (a *API) redeemLink(w http.ResponseWriter, r *http.Request) {
	link := *r.URL
	q := link.Query()
	q.Del("token")
	link.RawQuery = q.Encode()

	latch := app.NewVisitLatch(a.svc.Visits, &link)
	status, result, err := latch.Run(r.Context(), identity(r).UID)
	if err != nil && status == domain.StatusError {
		a.logger.Warn("visit redemption failed", zap.String("uid", identity(r).UID), zap.Error(err))
	}
	resp := redeemResponse{Status: status, ConsumedURL: latch.ConsumedURL()}
	if status == domain.StatusSuccess || status == domain.StatusDuplicate {
		resp.Booth = &result.Booth
	}
	writeJSON(w, http.StatusOK, resp)
}

type meResponse struct {
	domain.UserAccount
	DisplayMileage int64 `json:"displayMileage"`
	Admin          bool  `json:"admin"`
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	account, err := a.svc.Accounts.EnsureProfile(r.Context(), id.UID, id.DisplayName, id.Email)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	isAdmin, err := a.svc.Accounts.IsAdmin(r.Context(), id.UID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserAccount: account, DisplayMileage: account.Display(), Admin: isAdmin})
}

func (a *API) booths(w http.ResponseWriter, r *http.Request) {
	booths, err := a.svc.Booths.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	// The correct answer never leaves the server.
	for i := range booths {
		if booths[i].Quiz != nil {
			quiz := *booths[i].Quiz
			quiz.CorrectAnswer = -1
			booths[i].Quiz = &quiz
		}
	}
	writeJSON(w, http.StatusOK, booths)
}

type quizRequest struct {
	BoothIdx int `json:"boothIdx"`
	Answer   int `json:"answer"`
}

func (a *API) answerQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.svc.Quizzes.AnswerQuiz(r.Context(), identity(r).UID, req.BoothIdx, req.Answer)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) ranking(w http.ResponseWriter, r *http.Request) {
	rows, err := a.svc.Classes.Ranking(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) voteView(w http.ResponseWriter, r *http.Request) {
	state, err := a.svc.Votes.State(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.ViewAt(state, time.Now()))
}

type spendRequest struct {
	StudentID string `json:"studentId"`
	Amount    int64  `json:"amount"`
	Memo      string `json:"memo"`
}

func (a *API) spend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.svc.Mileage.SpendByStudent(r.Context(), req.StudentID, req.Amount, req.Memo)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type multiplierRequest struct {
	StudentID  string  `json:"studentId"`
	Multiplier float64 `json:"multiplier"`
}

func (a *API) setMultiplier(w http.ResponseWriter, r *http.Request) {
	var req multiplierRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	account, err := a.svc.Accounts.SetMultiplier(r.Context(), req.StudentID, req.Multiplier)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserAccount: account, DisplayMileage: account.Display()})
}

type studentRequest struct {
	StudentID string `json:"studentId"`
	BoothIdx  int    `json:"boothIdx,omitempty"`
}

func (a *API) listWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.Accounts.Whitelist(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) registerWhitelist(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	entry, err := a.svc.Accounts.RegisterWhitelist(r.Context(), req.StudentID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) manualVisit(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.svc.Visits.ManualVisit(r.Context(), req.StudentID, req.BoothIdx)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type redemptionRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *API) setRedemption(w http.ResponseWriter, r *http.Request) {
	var req redemptionRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.svc.Visits.SetRedemptionEnabled(r.Context(), req.Enabled); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logger.Info("redemption toggled", zap.Bool("enabled", req.Enabled), zap.String("by", identity(r).UID))
	writeJSON(w, http.StatusOK, req)
}

func (a *API) importBooths(w http.ResponseWriter, r *http.Request) {
	var booths []domain.Booth
	if err := decodeBody(r, &booths); err != nil {
		a.writeError(w, r, err)
		return
	}
	n, err := a.svc.Booths.Import(r.Context(), booths)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

type startRequest struct {
	Round      int       `json:"round"`
	Candidates [2]string `json:"candidates"`
}

func (a *API) startRound(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	state, err := a.svc.Votes.Start(r.Context(), req.Round, req.Candidates[0], req.Candidates[1])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) finalizeRound(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.Votes.Finalize(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) startFinal(w http.ResponseWriter, r *http.Request) {
	state, err := a.svc.Votes.StartFinalAuto(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) roundResult(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(r.PathValue("round"))
	if err != nil || round < 1 || round > app.FinalRound {
		a.writeError(w, r, domain.ErrInvalidRound)
		return
	}
	result, ok, err := a.svc.Votes.Round(r.Context(), round)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: fmt.Sprintf("round %d has no record", round)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) presence(w http.ResponseWriter, r *http.Request) {
	records, err := a.svc.Presence.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) classSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.svc.Classes.Snapshot(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) classWorkbook(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := a.svc.Classes.Export(r.Context(), &buf); err != nil {
		a.writeError(w, r, err)
		return
	}
	name := export.ClassRankingFilename(time.Now())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	_, _ = buf.WriteTo(w)
}
