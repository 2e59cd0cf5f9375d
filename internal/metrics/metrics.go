// Package metrics exposes the Prometheus instruments of the analyzer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds every instrument, registered on a private registry so tests
// can build as many instances as they need.
type Metrics struct {
	Registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	ingestRows       *prometheus.CounterVec
	flaggedUsers     *prometheus.GaugeVec
	excessWon        *prometheus.CounterVec
	cacheEvictions   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	amqpMessages     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		analyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikdae_analyses_total",
				Help: "Analyses run, by statement source and outcome.",
			},
			[]string{"source", "status"},
		),
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sikdae_analysis_duration_seconds",
				Help:    "Time to ingest and analyze one statement.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		ingestRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikdae_ingest_rows_total",
				Help: "Statement rows read, by whether they were accepted.",
			},
			[]string{"result"},
		),
		flaggedUsers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sikdae_flagged_users",
				Help: "Users over the daily cap in the most recent analysis.",
			},
			[]string{"class"},
		),
		excessWon: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikdae_excess_won_total",
				Help: "Rounded excess over the daily cap, in won.",
			},
			[]string{"class"},
		),
		cacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikdae_report_cache_evictions_total",
				Help: "Reports dropped from the cache.",
			},
			[]string{"reason"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikdae_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sikdae_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		amqpMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikdae_amqp_messages_total",
				Help: "Broker messages by direction and outcome.",
			},
			[]string{"direction", "result"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveAnalysis records one analysis attempt.
func (m *Metrics) ObserveAnalysis(source string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.analyses.WithLabelValues(source, status).Inc()
	m.analysisDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveIngest records row counts of one statement.
func (m *Metrics) ObserveIngest(accepted, skipped int) {
	m.ingestRows.WithLabelValues("accepted").Add(float64(accepted))
	m.ingestRows.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveClass records the outcome of one meal class.
func (m *Metrics) ObserveClass(class string, flagged int, excess int64) {
	m.flaggedUsers.WithLabelValues(class).Set(float64(flagged))
	m.excessWon.WithLabelValues(class).Add(float64(excess))
}

func (m *Metrics) IncrCacheEviction(reason string) {
	m.cacheEvictions.WithLabelValues(reason).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern,
// never the raw path.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncrAMQP counts a published or consumed message.
func (m *Metrics) IncrAMQP(direction, result string) {
	m.amqpMessages.WithLabelValues(direction, result).Inc()
}

// AnalysesCompleted returns the number of successful analyses for source.
func (m *Metrics) AnalysesCompleted(source string) float64 {
	return counterValue(m.analyses, source, "success")
}

// counterValue extracts the current value of one labelled counter.
func counterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var out dto.Metric
	if err := counter.Write(&out); err != nil {
		return 0
	}
	if out.Counter != nil && out.Counter.Value != nil {
		return *out.Counter.Value
	}
	return 0
}
