package monitoring

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

var (
	buyOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_buy_outcomes_total",
			Help: "Buy attempts by ticket type, waiting-list flag and outcome",
		},
		[]string{"type", "waiting_list", "outcome"},
	)

	quotaLatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_quota_latches_total",
			Help: "Quota-met latch transitions by scope and kind",
		},
		[]string{"scope", "kind"},
	)

	statementLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_statement_lines_total",
			Help: "Bank statement lines by reconciliation outcome",
		},
		[]string{"outcome"},
	)
)

// BuyOutcome maps a Buy error to a coarse outcome label.
func BuyOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrBuyFailed):
		return "refused"
	default:
		return "error"
	}
}

func RecordBuy(tt domain.TicketType, waitingList bool, outcome string) {
	wl := "false"
	if waitingList {
		wl = "true"
	}
	buyOutcomes.WithLabelValues(string(tt), wl, outcome).Inc()
}

func RecordQuotaLatch(scope domain.ScopeKey, kind string) {
	quotaLatches.WithLabelValues(scope.String(), kind).Inc()
}

func RecordStatementLine(outcome string) {
	statementLines.WithLabelValues(outcome).Inc()
}
