package infra

import (
	"context"

	"admission-gateway/middleware/admission/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe as decisões como contadores Prometheus.
// Só o outcome vira label: Key/Path teriam cardinalidade ilimitada.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) *PrometheusStatsStore {
	s := &PrometheusStatsStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Admission decisions grouped by outcome",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(s.decisions)
	}
	return s
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Outcome).Inc()
	return nil
}

// RegisterStateGauges publica o tamanho do tracker e o número de banimentos ativos.
func RegisterStateGauges(reg prometheus.Registerer, tracker *WindowTracker, bans *BanStore) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "admission_tracked_identifiers",
			Help: "Identifiers currently held by the sliding-window tracker",
		}, func() float64 { return float64(tracker.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "admission_active_bans",
			Help: "Identifiers currently banned",
		}, func() float64 { return float64(bans.Len()) }),
	)
}
