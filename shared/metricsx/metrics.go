package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total events published by topic and kind.",
		},
		[]string{"topic", "kind"},
	)
	eventsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_applied_total",
			Help: "Total events applied by topic and kind.",
		},
		[]string{"topic", "kind"},
	)
	eventApplyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_apply_failures_total",
			Help: "Total event apply failures by topic and kind.",
		},
		[]string{"topic", "kind"},
	)
	eventApplyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_apply_latency_seconds",
			Help:    "Event apply latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits by key family.",
		},
		[]string{"family"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses by key family.",
		},
		[]string{"family"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
	deadLetteredEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_lettered_events_total",
			Help: "Total events routed to the dead-letter topic.",
		},
		[]string{"topic", "kind"},
	)
)

func Register() {
	prometheus.MustRegister(httpRequests, httpLatency, kafkaConsumerLag, eventsPublished, eventsApplied, eventApplyFailures, eventApplyLatency, cacheHits, cacheMisses, influxWriteFailures, asynqQueueDepth, deadLetteredEvents)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncEventPublished(topic string, kind string) {
	eventsPublished.WithLabelValues(topic, kind).Inc()
}

func IncEventApplied(topic string, kind string) {
	eventsApplied.WithLabelValues(topic, kind).Inc()
}

func IncEventApplyFailure(topic string, kind string) {
	eventApplyFailures.WithLabelValues(topic, kind).Inc()
}

func ObserveEventApplyLatency(topic string, d time.Duration) {
	eventApplyLatency.WithLabelValues(topic).Observe(d.Seconds())
}

func IncCacheHit(family string) {
	cacheHits.WithLabelValues(family).Inc()
}

func IncCacheMiss(family string) {
	cacheMisses.WithLabelValues(family).Inc()
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func IncDeadLetteredEvent(topic string, kind string) {
	deadLetteredEvents.WithLabelValues(topic, kind).Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
