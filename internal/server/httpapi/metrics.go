package httpapi

import (
	"errors"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	authFailures *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventhub",
			Name:      "auth_failures_total",
			Help:      "Rejected bearer tokens by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventhub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}

	for _, c := range []prometheus.Collector{m.authFailures, m.requests} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			// a second server in the same process shares the collectors
			switch c {
			case m.authFailures:
				m.authFailures = are.ExistingCollector.(*prometheus.CounterVec)
			case m.requests:
				m.requests = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
	}
	return m, nil
}

// failureReason maps a verification error to a low-cardinality label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, common.ErrMissingToken):
		return "missing"
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrTokenSignature):
		return "signature"
	case errors.Is(err, common.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
