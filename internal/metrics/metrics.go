package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "festival", Name: "visit_redemptions_total", Help: "Visit redemption outcomes",
	}, []string{"result"})
	QuizAnswers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "festival", Name: "quiz_answers_total", Help: "Quiz answer outcomes",
	}, []string{"result"})
	Spends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "festival", Name: "spends_total", Help: "Spend transaction outcomes",
	}, []string{"result"})
	Ballots = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "festival", Name: "ballots_total", Help: "Ballot writes",
	}, []string{"result"})
	RoundTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "festival", Name: "vote_round_transitions_total", Help: "Live vote state transitions",
	}, []string{"transition"})
	IntegrityAnomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "festival", Name: "integrity_anomalies_total", Help: "Data-integrity anomalies flagged for operators",
	}, []string{"kind"})
	PresenceConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "festival", Name: "presence_connections", Help: "Open live connections",
	})
	StoreTx = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "festival", Name: "store_transaction_seconds", Help: "Document store transaction latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(Redemptions, QuizAnswers, Spends, Ballots, RoundTransitions,
		IntegrityAnomalies, PresenceConnections, StoreTx)
}

func Handler() http.Handler { return promhttp.Handler() }

// ObserveTx records how long a transactional operation took.
func ObserveTx(op string, started time.Time) {
	StoreTx.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
