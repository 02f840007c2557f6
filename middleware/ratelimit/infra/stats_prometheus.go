package infra

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"copilot-gateway/middleware/ratelimit/domain"
)

// PrometheusStatsStore expõe as decisões do gate como contadores Prometheus,
// rotulados por categoria e desfecho. As duas dimensões são pequenas e fixas,
// então não há risco de explosão de séries.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	s := &PrometheusStatsStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Decisões do gate de requisições, por categoria e desfecho.",
		}, []string{"category", "outcome"}),
	}
	if reg != nil {
		if err := reg.Register(s.decisions); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(string(ev.Category), ev.Outcome()).Inc()
	return nil
}
