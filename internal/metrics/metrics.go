// Package metrics registers the Prometheus collectors exposed at /metrics
// (SPEC_FULL.md ambient stack), grounded on certenIO-certen-validator's use
// of github.com/prometheus/client_golang for a long-running validator
// daemon's outcall and queue instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the bridge registers.
type Metrics struct {
	TasksEnqueued   *prometheus.CounterVec
	TasksSucceeded  *prometheus.CounterVec
	TasksFailed     *prometheus.CounterVec
	TasksRetried    *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	ProxyOutcalls   *prometheus.CounterVec
	MintedAmount    prometheus.Counter
	BurnedAmount    prometheus.Counter
	SettledHashes   prometheus.Gauge
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckbridge_tasks_enqueued_total",
			Help: "Pending tasks enqueued, by kind.",
		}, []string{"kind"}),
		TasksSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckbridge_tasks_succeeded_total",
			Help: "Pending tasks that completed successfully, by kind.",
		}, []string{"kind"}),
		TasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckbridge_tasks_failed_total",
			Help: "Pending tasks dropped after exhausting retries or after the ledger rejected a mint, by kind.",
		}, []string{"kind"}),
		TasksRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckbridge_tasks_retried_total",
			Help: "Pending tasks re-enqueued after a transient failure, by kind.",
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ckbridge_queue_depth",
			Help: "Current number of tasks waiting in the pending queue.",
		}),
		ProxyOutcalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ckbridge_proxy_outcalls_total",
			Help: "Idempotent proxy calls made to the TON RPC, by outcome.",
		}, []string{"outcome"}),
		MintedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ckbridge_minted_ckton_total",
			Help: "Cumulative ckTON minted, in ledger base units.",
		}),
		BurnedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ckbridge_burned_ckton_total",
			Help: "Cumulative ckTON burned, in ledger base units.",
		}),
		SettledHashes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ckbridge_settled_hashes",
			Help: "Number of TON transaction hashes recorded as already minted.",
		}),
	}

	reg.MustRegister(
		m.TasksEnqueued, m.TasksSucceeded, m.TasksFailed, m.TasksRetried,
		m.QueueDepth, m.ProxyOutcalls, m.MintedAmount, m.BurnedAmount, m.SettledHashes,
	)
	return m
}
