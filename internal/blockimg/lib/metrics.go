package lib

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what an update run did. Each run owns its registry so the
// result can be dumped to a node-exporter textfile.
type Metrics struct {
	Registry *prometheus.Registry

	commands      *prometheus.CounterVec
	duration      *prometheus.SummaryVec
	blocksWritten *prometheus.CounterVec
	stashBytes    *prometheus.CounterVec
	lastIndex     *prometheus.GaugeVec
}

// NewMetrics registers the update metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockimg",
			Name:      "commands_total",
			Help:      "transfer list commands by type and outcome",
		}, []string{"partition", "type", "outcome"}),
		duration: factory.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: "blockimg",
			Name:      "command_duration_seconds",
			Help:      "time spent executing a command",
		}, []string{"partition", "type"}),
		blocksWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockimg",
			Name:      "blocks_written_total",
			Help:      "blocks written to the target",
		}, []string{"partition"}),
		stashBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockimg",
			Name:      "stash_bytes_total",
			Help:      "bytes written to stash files",
		}, []string{"partition"}),
		lastIndex: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "blockimg",
			Name:      "last_command_index",
			Help:      "index of the last completed command",
		}, []string{"partition"}),
	}
}

// ObserveCommand records one executed or skipped command.
func (m *Metrics) ObserveCommand(partition, typ, outcome string, index int, elapsed time.Duration) {
	m.commands.WithLabelValues(partition, typ, outcome).Inc()
	if outcome != "skipped" {
		m.duration.WithLabelValues(partition, typ).Observe(elapsed.Seconds())
	}
	if outcome != "failed" {
		m.lastIndex.WithLabelValues(partition).Set(float64(index))
	}
}

// AddBlocksWritten counts blocks written to the target.
func (m *Metrics) AddBlocksWritten(partition string, blocks uint64) {
	m.blocksWritten.WithLabelValues(partition).Add(float64(blocks))
}

// AddStashBytes counts bytes written to stash files.
func (m *Metrics) AddStashBytes(partition string, n uint64) {
	m.stashBytes.WithLabelValues(partition).Add(float64(n))
}

// WriteTextfile dumps the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
