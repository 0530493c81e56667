package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redirect outcomes used as the "outcome" label.
const (
	OutcomeRedirected = "redirected"
	OutcomeNotFound   = "not_found"
	OutcomeExpired    = "expired"
	OutcomeError      = "error"
)

// Metrics holds the application's collectors.
type Metrics struct {
	LinksCreated      prom.Counter
	LinksDeleted      prom.Counter
	LinksRegistered   prom.Gauge
	Redirects         *prom.CounterVec
	ClickLogFailures  prom.Counter
	SkippedLines      prom.Counter
	ClickMirrorErrors prom.Counter
}

// NewMetrics registers the collectors on reg. Use prom.DefaultRegisterer in
// production and a fresh registry in tests.
func NewMetrics(reg prom.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LinksCreated: f.NewCounter(prom.CounterOpts{
			Name: "tinylink_links_created_total",
			Help: "Total number of short links created",
		}),
		LinksDeleted: f.NewCounter(prom.CounterOpts{
			Name: "tinylink_links_deleted_total",
			Help: "Total number of short links deleted",
		}),
		LinksRegistered: f.NewGauge(prom.GaugeOpts{
			Name: "tinylink_links_registered",
			Help: "Number of links currently in the registry",
		}),
		Redirects: f.NewCounterVec(prom.CounterOpts{
			Name: "tinylink_redirects_total",
			Help: "Redirect attempts by outcome",
		}, []string{"outcome"}),
		ClickLogFailures: f.NewCounter(prom.CounterOpts{
			Name: "tinylink_click_log_failures_total",
			Help: "Click events that could not be appended to the day log",
		}),
		SkippedLines: f.NewCounter(prom.CounterOpts{
			Name: "tinylink_click_log_lines_skipped_total",
			Help: "Malformed click log lines skipped during aggregation",
		}),
		ClickMirrorErrors: f.NewCounter(prom.CounterOpts{
			Name: "tinylink_click_mirror_errors_total",
			Help: "Click events that could not be published to the message stream",
		}),
	}
}

func (m *Metrics) LinkCreated(total int) {
	m.LinksCreated.Inc()
	m.LinksRegistered.Set(float64(total))
}

func (m *Metrics) LinkDeleted(total int) {
	m.LinksDeleted.Inc()
	m.LinksRegistered.Set(float64(total))
}

func (m *Metrics) Redirect(outcome string) {
	m.Redirects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClickLogFailed() {
	m.ClickLogFailures.Inc()
}

func (m *Metrics) ClickLinesSkipped(n int) {
	m.SkippedLines.Add(float64(n))
}

func (m *Metrics) ClickMirrorFailed() {
	m.ClickMirrorErrors.Inc()
}
