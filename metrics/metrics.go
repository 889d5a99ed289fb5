// Package metrics provides Prometheus metrics for the collaboration client
// and the room relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

var (
	// REST client
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdcollab_api_requests_total",
			Help: "Total number of project API requests",
		},
		[]string{"method", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vdcollab_api_request_duration_seconds",
			Help:    "Project API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Session
	savesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdcollab_saves_total",
			Help: "Total number of file saves",
		},
		[]string{"status"},
	)

	openTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vdcollab_open_tabs",
			Help: "Number of open editor tabs",
		},
	)

	symbolExtractDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vdcollab_symbol_extract_duration_seconds",
			Help:    "Time to scan a buffer for symbols",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// Realtime client
	realtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdcollab_realtime_events_total",
			Help: "Realtime events by direction and name",
		},
		[]string{"direction", "event"},
	)

	realtimeDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdcollab_realtime_dropped_total",
			Help: "Outbound realtime events that were not sent",
		},
		[]string{"event", "reason"},
	)

	realtimeReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vdcollab_realtime_reconnects_total",
			Help: "Realtime connection attempts after a disconnect",
		},
	)

	// Relay
	relayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vdcollab_relay_connections",
			Help: "Open relay websocket connections",
		},
	)

	relayRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vdcollab_relay_rooms",
			Help: "Project rooms with at least one member",
		},
	)

	relayAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vdcollab_relay_auth_failures_total",
			Help: "Relay connections rejected for a bad token",
		},
	)
)

// RecordAPIRequest records a completed REST call. status is 0 when the
// request failed before a response arrived.
func RecordAPIRequest(method string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequestsTotal.WithLabelValues(method, label).Inc()
	apiRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordSave records a save outcome.
func RecordSave(success bool) {
	if success {
		savesTotal.WithLabelValues("success").Inc()
	} else {
		savesTotal.WithLabelValues("error").Inc()
	}
}

// AddOpenTabs moves the open tab gauge by delta.
func AddOpenTabs(delta int) {
	openTabs.Add(float64(delta))
}

// OpenTabs returns the current value of the open tab gauge.
func OpenTabs() int {
	var m dto.Metric
	if err := openTabs.Write(&m); err != nil {
		return 0
	}
	return int(m.GetGauge().GetValue())
}

// ObserveSymbolExtract records one symbol scan.
func ObserveSymbolExtract(d time.Duration) {
	symbolExtractDuration.Observe(d.Seconds())
}

// RecordRealtimeEvent counts one event; direction is "in" or "out".
func RecordRealtimeEvent(direction, event string) {
	realtimeEventsTotal.WithLabelValues(direction, event).Inc()
}

// RecordRealtimeDropped counts an outbound event that was not sent.
func RecordRealtimeDropped(event, reason string) {
	realtimeDroppedTotal.WithLabelValues(event, reason).Inc()
}

// RecordReconnect counts one reconnect attempt.
func RecordReconnect() {
	realtimeReconnectsTotal.Inc()
}

// RelayConnectionOpened and RelayConnectionClosed track the relay's
// websocket connections.
func RelayConnectionOpened() { relayConnections.Inc() }

func RelayConnectionClosed() { relayConnections.Dec() }

// SetRelayRooms sets the active room gauge.
func SetRelayRooms(n int) {
	relayRooms.Set(float64(n))
}

// RecordRelayAuthFailure counts a rejected relay connection.
func RecordRelayAuthFailure() {
	relayAuthFailures.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
