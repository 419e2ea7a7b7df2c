package ledgersync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "ledgersync"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// State version of the local ledger.
	CurrentStateVersion metrics.Gauge
	// State version the node is syncing to.
	TargetStateVersion metrics.Gauge
	// Versions left until the target is reached.
	TargetCurrentDiff metrics.Gauge

	SyncChecks              metrics.Counter
	SyncRequestsSent        metrics.Counter
	EmptyResponses          metrics.Counter
	InvalidResponses        metrics.Counter
	TimedOutRequests        metrics.Counter
	VerifiedResponses       metrics.Counter
	StatusRequestsServed    metrics.Counter
	SyncRequestsServed      metrics.Counter
	SyncRequestsDropped     metrics.Counter
	LedgerStatusUpdatesSent metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return NewPrometheusMetricsProvider(namespace, labels...)(labelsAndValues...)
}

// NewPrometheusMetricsProvider registers the metrics once and returns a
// function binding them to label values ("foo", "fooValue"). It lets several
// nodes in one process share the registry.
func NewPrometheusMetricsProvider(namespace string, labels ...string) func(labelsAndValues ...string) *Metrics {
	gauge := func(name, help string) *prometheus.Gauge {
		return prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	counter := func(name, help string) *prometheus.Counter {
		return prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	var (
		currentStateVersion = gauge("current_state_version", "State version of the local ledger.")
		targetStateVersion  = gauge("target_state_version", "State version the node is syncing to.")
		targetCurrentDiff   = gauge("target_current_diff", "Versions left until the sync target is reached.")

		syncChecks           = counter("sync_checks", "Number of sync checks started.")
		syncRequestsSent     = counter("sync_requests_sent", "Number of sync requests sent to peers.")
		emptyResponses       = counter("empty_responses", "Number of sync responses without transactions.")
		invalidResponses     = counter("invalid_responses", "Number of sync responses that failed verification.")
		timedOutRequests     = counter("timed_out_requests", "Number of sync requests that timed out.")
		verifiedResponses    = counter("verified_responses", "Number of verified batches handed to the ledger.")
		statusRequestsServed = counter("status_requests_served", "Number of status requests answered.")
		syncRequestsServed   = counter("sync_requests_served", "Number of sync requests answered.")
		syncRequestsDropped  = counter("sync_requests_dropped", "Number of sync requests that could not be served.")
		statusUpdatesSent    = counter("ledger_status_updates_sent", "Number of ledger status updates pushed to peers.")
	)

	return func(labelsAndValues ...string) *Metrics {
		return &Metrics{
			CurrentStateVersion:     currentStateVersion.With(labelsAndValues...),
			TargetStateVersion:      targetStateVersion.With(labelsAndValues...),
			TargetCurrentDiff:       targetCurrentDiff.With(labelsAndValues...),
			SyncChecks:              syncChecks.With(labelsAndValues...),
			SyncRequestsSent:        syncRequestsSent.With(labelsAndValues...),
			EmptyResponses:          emptyResponses.With(labelsAndValues...),
			InvalidResponses:        invalidResponses.With(labelsAndValues...),
			TimedOutRequests:        timedOutRequests.With(labelsAndValues...),
			VerifiedResponses:       verifiedResponses.With(labelsAndValues...),
			StatusRequestsServed:    statusRequestsServed.With(labelsAndValues...),
			SyncRequestsServed:      syncRequestsServed.With(labelsAndValues...),
			SyncRequestsDropped:     syncRequestsDropped.With(labelsAndValues...),
			LedgerStatusUpdatesSent: statusUpdatesSent.With(labelsAndValues...),
		}
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		CurrentStateVersion:     discard.NewGauge(),
		TargetStateVersion:      discard.NewGauge(),
		TargetCurrentDiff:       discard.NewGauge(),
		SyncChecks:              discard.NewCounter(),
		SyncRequestsSent:        discard.NewCounter(),
		EmptyResponses:          discard.NewCounter(),
		InvalidResponses:        discard.NewCounter(),
		TimedOutRequests:        discard.NewCounter(),
		VerifiedResponses:       discard.NewCounter(),
		StatusRequestsServed:    discard.NewCounter(),
		SyncRequestsServed:      discard.NewCounter(),
		SyncRequestsDropped:     discard.NewCounter(),
		LedgerStatusUpdatesSent: discard.NewCounter(),
	}
}
