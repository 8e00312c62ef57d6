package counter

import (
	"time"

	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Metrics struct {
	registry    *prometheus.Registry
	records     *prometheus.CounterVec
	skips       *prometheus.CounterVec
	distributed *prometheus.CounterVec
	lastRun     prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chai_records_total",
			Help: "Input records seen per accrual rule, by outcome",
		}, []string{"rule", "outcome"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chai_skips_total",
			Help: "Recipients or records dropped from a run, by reason",
		}, []string{"rule", "reason"}),
		distributed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chai_distributed_amount_total",
			Help: "CHAI written to distribution files",
		}, []string{"rule"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chai_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
	}
	m.registry.MustRegister(m.records, m.skips, m.distributed, m.lastRun)
	return m
}

func (m *Metrics) RecordCounted(rule model.Rule) {
	m.records.WithLabelValues(string(rule), "counted").Inc()
}

func (m *Metrics) RecordIgnored(rule model.Rule) {
	m.records.WithLabelValues(string(rule), "ignored").Inc()
}

func (m *Metrics) RecordSkip(rule model.Rule, err error) {
	m.skips.WithLabelValues(string(rule), ErrorCode(err)).Inc()
}

func (m *Metrics) RecordDistributed(rule model.Rule, amount uint64) {
	m.distributed.WithLabelValues(string(rule)).Add(float64(amount))
}

func (m *Metrics) RecordRunFinished(at time.Time) {
	m.lastRun.Set(float64(at.Unix()))
}

func (m *Metrics) Push(url string) error {
	err := push.New(url, "chai_counter").Gatherer(m.registry).Push()
	return errors.Wrapf(err, "failed pushing metrics to %s", url)
}
