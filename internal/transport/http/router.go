package http

import (
	"net/http"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/auth"
	"festival-mileage/internal/docstore"
	"festival-mileage/internal/metrics"
	"go.uber.org/zap"
)

// Services bundles the use cases the transport exposes.
type Services struct {
	Store    docstore.Store
	Accounts *app.AccountService
	Booths   *app.BoothService
	Visits   *app.VisitService
	Quizzes  *app.QuizService
	Mileage  *app.MileageService
	Votes    *app.LiveVote
	Presence *app.PresenceService
	Classes  *app.ClassService
}

// Options tunes the live connection behaviour.
type Options struct {
	Poll     time.Duration
	Debounce time.Duration
}

// NewRouter wires every route onto a ServeMux.
func NewRouter(svc Services, verifier auth.Verifier, opts Options, logger *zap.Logger) http.Handler {
	api := NewAPI(svc, verifier, logger)
	ws := NewWSHandler(svc, verifier, opts, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /ws", ws.ServeWS)

	mux.HandleFunc("GET /req", api.authed(api.redeemLink))
	mux.HandleFunc("GET /api/me", api.authed(api.me))
	mux.HandleFunc("GET /api/booths", api.authed(api.booths))
	mux.HandleFunc("POST /api/quiz", api.authed(api.answerQuiz))
	mux.HandleFunc("GET /api/ranking", api.authed(api.ranking))
	mux.HandleFunc("GET /api/vote", api.authed(api.voteView))

	mux.HandleFunc("POST /api/admin/spend", api.admin(api.spend))
	mux.HandleFunc("POST /api/admin/multiplier", api.admin(api.setMultiplier))
	mux.HandleFunc("GET /api/admin/whitelist", api.admin(api.listWhitelist))
	mux.HandleFunc("POST /api/admin/whitelist", api.admin(api.registerWhitelist))
	mux.HandleFunc("POST /api/admin/manual-visit", api.admin(api.manualVisit))
	mux.HandleFunc("POST /api/admin/redemption", api.admin(api.setRedemption))
	mux.HandleFunc("POST /api/admin/booths", api.admin(api.importBooths))
	mux.HandleFunc("POST /api/admin/vote/start", api.admin(api.startRound))
	mux.HandleFunc("POST /api/admin/vote/finalize", api.admin(api.finalizeRound))
	mux.HandleFunc("POST /api/admin/vote/final", api.admin(api.startFinal))
	mux.HandleFunc("GET /api/admin/vote/rounds/{round}", api.admin(api.roundResult))
	mux.HandleFunc("GET /api/admin/presence", api.admin(api.presence))
	mux.HandleFunc("POST /api/admin/classes/snapshot", api.admin(api.classSnapshot))
	mux.HandleFunc("GET /api/admin/classes.xlsx", api.admin(api.classWorkbook))
	return mux
}
