// Package metrics exposes per-world-manager Prometheus counters/gauges,
// grounded on core/system_health_logging.go's HealthLogger: its own
// prometheus.Registry, a fixed set of named gauges/counters registered
// once at construction, and a promhttp handler exposed on a
// caller-chosen address.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"replicon/pkg/synclog"
)

// Collector holds the counters/gauges one running replicon process
// exposes, spanning every peer it drives.
type Collector struct {
	log      *logrus.Logger
	registry *prometheus.Registry

	PacketsSent     prometheus.Counter
	PacketsReceived prometheus.Counter
	ResendTotal     prometheus.Counter
	FragmentsInFlight prometheus.Gauge
	WaitlistParked  prometheus.Gauge
	InFlightPackets prometheus.Gauge
	PeerCount       prometheus.Gauge
}

// New builds a Collector with its own registry, so multiple Collectors
// (e.g. one per test) never collide on process-global metric names.
func New(log *logrus.Logger) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{log: synclog.Or(log), registry: reg}

	c.PacketsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replicon_packets_sent_total",
		Help: "Total number of Data frames sent across all peers.",
	})
	c.PacketsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replicon_packets_received_total",
		Help: "Total number of datagrams received across all peers.",
	})
	c.ResendTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replicon_resend_total",
		Help: "Total number of packets whose mutation masks were restored after a timeout.",
	})
	c.FragmentsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replicon_fragments_in_flight",
		Help: "Number of partially reassembled messages currently buffered.",
	})
	c.WaitlistParked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replicon_waitlist_parked",
		Help: "Number of remote-world applies parked waiting on a cross-entity reference.",
	})
	c.InFlightPackets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replicon_inflight_packets",
		Help: "Number of sent packets awaiting acknowledgement.",
	})
	c.PeerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replicon_peer_count",
		Help: "Number of peers this process is currently driving.",
	})

	reg.MustRegister(
		c.PacketsSent,
		c.PacketsReceived,
		c.ResendTotal,
		c.FragmentsInFlight,
		c.WaitlistParked,
		c.InFlightPackets,
		c.PeerCount,
	)
	return c
}

// Serve exposes /metrics on addr and returns the underlying
// http.Server so the caller manages its lifecycle.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.WithError(err).Error("replicon: metrics server stopped")
		}
	}()
	return srv
}

// Shutdown gracefully stops a server returned by Serve.
func (c *Collector) Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
