package services

import (
	"errors"
	"fmt"

	"dinnerparty-backend/internal/apperr"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// validateIDs checks that every id is a well-formed UUID
func validateIDs(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return apperr.ErrMalformedID.With(fmt.Errorf("%q: %w", id, err))
		}
	}
	return nil
}

// storeErr passes classified errors through and wraps everything else as a
// store failure for action
func storeErr(action string, err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Store(action, err)
}

// Metrics counts service outcomes
type Metrics struct {
	operations *prometheus.CounterVec
	swept      prometheus.Counter
}

// NewMetrics registers the service collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dinnerparty",
			Subsystem: "core",
			Name:      "operations_total",
			Help:      "Group and matching operations by outcome.",
		}, []string{"op", "result"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dinnerparty",
			Subsystem: "core",
			Name:      "stale_pairings_cancelled_total",
			Help:      "Pairings cancelled because their dinner party is over.",
		}),
	}
	reg.MustRegister(m.operations, m.swept)
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).String()
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) sweptPairing() {
	if m == nil {
		return
	}
	m.swept.Inc()
}
