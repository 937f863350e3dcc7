package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "browserbird", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "browserbird", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	TokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "browserbird", Name: "token_exchanges_total", Help: "OAuth code exchanges by outcome."},
		[]string{"outcome"},
	)
	ScoreSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "browserbird", Name: "score_submissions_total", Help: "Score submissions by outcome."},
		[]string{"outcome"},
	)
	CommitConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "browserbird", Name: "leaderboard_commit_conflicts_total", Help: "Conditional highscore batches rejected because the partition changed."},
	)
	RowsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "browserbird", Name: "leaderboard_rows_skipped_total", Help: "Stored highscore rows skipped because they could not be decoded."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(TokenExchanges)
	reg.MustRegister(ScoreSubmissions)
	reg.MustRegister(CommitConflicts)
	reg.MustRegister(RowsSkipped)
}
