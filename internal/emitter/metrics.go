package emitter

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/tally/pkg/report"
)

// MetricsEmitter writes per-category gauges in the Prometheus text format,
// for node_exporter's textfile collector.
type MetricsEmitter struct {
	path     string
	registry *prometheus.Registry
	extra    []prometheus.Gatherer

	resources   *prometheus.GaugeVec
	status      *prometheus.GaugeVec
	duration    *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

// NewMetricsEmitter creates an emitter writing to path. Metrics from extra
// gatherers are written alongside.
func NewMetricsEmitter(path string, extra ...prometheus.Gatherer) (*MetricsEmitter, error) {
	if path == "" {
		return nil, fmt.Errorf("metrics textfile path is empty")
	}

	e := &MetricsEmitter{
		path:     path,
		registry: prometheus.NewRegistry(),
		extra:    extra,
		resources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tally_category_resources",
			Help: "Resources found per category in the last report",
		}, []string{"category"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tally_category_status",
			Help: "Collection status per category in the last report (1 for the current status)",
		}, []string{"category", "status"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tally_category_duration_seconds",
			Help: "Time spent collecting each category in the last report",
		}, []string{"category"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tally_last_report_timestamp_seconds",
			Help: "Unix time the last report was generated",
		}),
	}

	for _, c := range []prometheus.Collector{e.resources, e.status, e.duration, e.lastSuccess} {
		if err := e.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return e, nil
}

// Emit records the report and rewrites the text file.
func (e *MetricsEmitter) Emit(_ context.Context, rep report.Report) error {
	e.resources.Reset()
	e.status.Reset()
	e.duration.Reset()

	for _, c := range summarizeCategories(rep.Tables) {
		e.resources.WithLabelValues(c.name).Set(float64(c.resources))
		e.status.WithLabelValues(c.name, string(c.status)).Set(1)
		e.duration.WithLabelValues(c.name).Set(c.duration.Seconds())
	}
	e.lastSuccess.Set(float64(rep.GeneratedAt.Unix()))

	gatherers := append(prometheus.Gatherers{e.registry}, e.extra...)
	if err := prometheus.WriteToTextfile(e.path, gatherers); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	log.Debug().Str("path", e.path).Msg("metrics textfile written")
	return nil
}

type categorySummary struct {
	name      string
	status    report.Status
	resources int
	duration  time.Duration
}

// summarizeCategories folds the tables of a multi-sheet category into one
// entry, in report order. Any table with resources makes the category ok.
func summarizeCategories(tables []report.Table) []categorySummary {
	var out []categorySummary
	index := make(map[string]int)
	for _, tbl := range tables {
		name := tbl.Source()
		i, ok := index[name]
		if !ok {
			index[name] = len(out)
			out = append(out, categorySummary{name: name, status: tbl.Status, duration: tbl.Duration})
			i = len(out) - 1
		}
		c := &out[i]
		c.resources += tbl.Resources()
		if tbl.Status == report.StatusOK {
			c.status = report.StatusOK
		}
	}
	return out
}

// Close is a no-op for the metrics emitter.
func (e *MetricsEmitter) Close() error {
	return nil
}

// Registry exposes the emitter's registry for tests and extra collectors.
func (e *MetricsEmitter) Registry() *prometheus.Registry {
	return e.registry
}
