package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// stats holds relay metrics. Every Server has its own registry so tests can
// run several servers in one process.
type stats struct {
	reg *prometheus.Registry

	bundlesPublished prometheus.Counter
	bundlesFetched   prometheus.Counter
	fetchesNoOPK     prometheus.Counter
	opksConsumed     prometheus.Counter
	consumeRejected  prometheus.Counter
	deliveriesIn     prometheus.Counter
	deliveriesAcked  prometheus.Counter
	requests         *prometheus.CounterVec
}

func newStats(depth func() float64) *stats {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	s := &stats{
		reg: reg,

		bundlesPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_bundles_published_total",
			Help: "Pre-key uploads accepted",
		}),
		bundlesFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_bundles_fetched_total",
			Help: "Pre-key bundles handed out",
		}),
		fetchesNoOPK: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_bundles_fetched_without_opk_total",
			Help: "Bundles handed out with an empty one-time pre-key pool",
		}),
		opksConsumed: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_opks_consumed_total",
			Help: "One-time pre-keys consumed",
		}),
		consumeRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_opk_consume_rejected_total",
			Help: "Consume requests for an already consumed one-time pre-key",
		}),
		deliveriesIn: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Envelopes queued for delivery",
		}),
		deliveriesAcked: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_acked_total",
			Help: "Envelopes acknowledged and dropped",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
	if depth != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_mailbox_depth",
			Help: "Deliveries queued across all recipients",
		}, depth)
	}
	return s
}
