package ledger

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roasbeef/convostore/internal/db"
	"github.com/roasbeef/convostore/internal/store"
)

const metricsNamespace = "convostore"

// Metrics tracks the ledger's write path. A nil *Metrics records nothing.
type Metrics struct {
	committed  *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	expired    prometheus.Counter
	txDuration *prometheus.HistogramVec
}

// NewMetrics creates the ledger metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "interactions_committed_total",
			Help:      "Interactions committed, by type.",
		}, []string{"type"}),

		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "interactions_rejected_total",
			Help:      "Interactions refused before commit, by reason.",
		}, []string{"reason"}),

		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Delivered interactions, by placeholder outcome.",
		}, []string{"outcome"}),

		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "placeholders_expired_total",
			Help:      "Placeholders expired and moved back in time.",
		}),

		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "ledger_tx_duration_seconds",
			Help:      "Duration of ledger write transactions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.committed, m.rejected, m.deliveries, m.expired, m.txDuration,
	)

	return m
}

func (m *Metrics) observeCommit(typ string) {
	if m == nil {
		return
	}
	m.committed.WithLabelValues(typ).Inc()
}

func (m *Metrics) observeReject(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeDelivery(outcome DeliveryOutcome) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) observeExpired(n int) {
	if m == nil {
		return
	}
	m.expired.Add(float64(n))
}

// timeTx starts timing a write transaction; call the result when it ends.
func (m *Metrics) timeTx(op string) func() {
	if m == nil {
		return func() {}
	}

	timer := prometheus.NewTimer(m.txDuration.WithLabelValues(op))

	return func() {
		timer.ObserveDuration()
	}
}

// StoreCollector exports gauges read from the store on every scrape.
type StoreCollector struct {
	store store.InteractionStore

	stored    *prometheus.Desc
	maxSortID *prometheus.Desc
}

// NewStoreCollector creates a collector over s.
func NewStoreCollector(s store.InteractionStore) *StoreCollector {
	return &StoreCollector{
		store: s,
		stored: prometheus.NewDesc(
			prometheus.BuildFQName(
				metricsNamespace, "", "interactions_stored",
			),
			"Interactions currently stored, by type.",
			[]string{"type"}, nil,
		),
		maxSortID: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "max_sort_id"),
			"Highest committed sort id.",
			nil, nil,
		),
	}
}

// Describe sends the metric descriptors.
//
// NOTE: This is part of the prometheus.Collector interface.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stored
	ch <- c.maxSortID
}

// Collect queries the store and sends the current values.
//
// NOTE: This is part of the prometheus.Collector interface.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(
		context.Background(), db.DefaultStoreTimeout,
	)
	defer cancel()

	counts, err := c.store.CountInteractionsByType(ctx)
	if err != nil {
		log.WarnS(ctx, "Unable to count interactions", err)
		ch <- prometheus.NewInvalidMetric(c.stored, err)
	} else {
		for typ, n := range counts {
			ch <- prometheus.MustNewConstMetric(
				c.stored, prometheus.GaugeValue, float64(n),
				typ.String(),
			)
		}
	}

	maxID, err := c.store.MaxSortID(ctx)
	if err != nil {
		log.WarnS(ctx, "Unable to read max sort id", err)
		ch <- prometheus.NewInvalidMetric(c.maxSortID, err)

		return
	}
	ch <- prometheus.MustNewConstMetric(
		c.maxSortID, prometheus.GaugeValue, float64(maxID),
	)
}

// Ensure StoreCollector implements prometheus.Collector.
var _ prometheus.Collector = (*StoreCollector)(nil)
