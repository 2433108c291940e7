package journal

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindLabel    = "kind"
	errTypeLabel = "error_type"
)

var (
	journalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_events",
		Help: "The number of events written to the journal.",
	}, []string{
		kindLabel,
	})

	journalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_errors",
		Help: "The errors that occurred while writing journal events.",
	}, []string{
		kindLabel,
		errTypeLabel,
	})

	journalDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_drops",
		Help: "The number of events dropped because the journal buffer was full.",
	})
)

func instrumentWrite(kind Kind, err error) {
	if err != nil {
		journalErrors.
			With(prometheus.Labels{
				kindLabel:    string(kind),
				errTypeLabel: errors.Type(err),
			}).
			Inc()
		return
	}

	journalEvents.
		With(prometheus.Labels{kindLabel: string(kind)}).
		Inc()
}

func instrumentDrop() {
	journalDrops.Inc()
}
