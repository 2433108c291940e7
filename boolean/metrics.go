package boolean

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subtractRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boolean_subtract_retries",
		Help: "The number of subtractions retried with a jittered tool.",
	})

	subtractFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boolean_subtract_failures",
		Help: "The number of subtractions that failed after every attempt.",
	}, []string{
		"error_type",
	})
)

func instrumentRetry() {
	subtractRetries.Inc()
}

func instrumentFailure(err error) {
	subtractFailures.
		With(prometheus.Labels{
			"error_type": errors.Type(err),
		}).
		Inc()
}
