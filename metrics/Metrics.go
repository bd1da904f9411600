// Package metrics exports the progress of learning sessions as
// Prometheus metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/experiment"
)

const namespace = "rlroute"

// Recorder records learning metrics, rewards and store sizes in its
// own Prometheus registry
type Recorder struct {
	registry *prometheus.Registry

	learner   *prometheus.GaugeVec
	episodes  *prometheus.CounterVec
	reward    prometheus.Gauge
	storeSize prometheus.Gauge
}

var _ experiment.Recorder = (*Recorder)(nil)

// New returns a new Recorder
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		learner: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "learner_metric",
				Help:      "Mean value of a learner metric over the last training episode",
			},
			[]string{"algorithm", "metric"},
		),
		episodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "training_episodes_total",
				Help:      "Total number of training episodes",
			},
			[]string{"algorithm"},
		),
		reward: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reward_total",
			Help:      "Cumulative reward received in the simulation",
		}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "experience_store_size",
			Help:      "Number of transitions in the experience store",
		}),
	}

	r.registry.MustRegister(r.learner, r.episodes, r.reward, r.storeSize)
	return r
}

// ObserveMetrics records the metrics of a training episode
func (r *Recorder) ObserveMetrics(t agent.Type, m agent.Metrics) {
	for name, v := range m {
		r.learner.WithLabelValues(string(t), name).Set(v)
	}
	r.episodes.WithLabelValues(string(t)).Inc()
}

// ObserveReward records the cumulative reward
func (r *Recorder) ObserveReward(total float64) {
	r.reward.Set(total)
}

// ObserveStoreSize records the size of the experience store
func (r *Recorder) ObserveStoreSize(size int) {
	r.storeSize.Set(float64(size))
}

// Registry returns the registry holding the metrics of the Recorder
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler serving the metrics of the Recorder
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
