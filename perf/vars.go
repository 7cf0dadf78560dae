package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DispatchLatency    = metric.NewHistogram("1m1s")
	CycleLatency       = metric.NewHistogram("10m10s")
	StoreLatency       = metric.NewHistogram("1m1s")
	PublishesPerSecond = metric.NewCounter("10s1s")
	RetractsPerSecond  = metric.NewCounter("10s1s")
	FactsPerSecond     = metric.NewCounter("10s1s")
)

// Registry holds the prometheus collectors served on /metrics
var Registry = prometheus.NewRegistry()

var (
	StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spfsync",
		Name:      "store_operations_total",
		Help:      "Store writes by operation and result",
	}, []string{"op", "result"}) // op: publish_node, publish_link, retract_node, retract_link

	PublishedRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spfsync",
		Name:      "published_records",
		Help:      "Records currently present in the store, including ones pending retraction",
	}, []string{"kind"}) // kind: node, link

	CatalogRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spfsync",
		Name:      "catalog_records",
		Help:      "Records known to the catalog",
	}, []string{"kind"})

	Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "spfsync",
		Name:      "cycles_total",
		Help:      "Completed reconciliation cycles",
	})
)

func init() {
	Registry.MustRegister(StoreOperations, PublishedRecords, CatalogRecords, Cycles)

	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	http.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	expvar.Publish("spfsync:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("spfsync:CycleLatency (µs)", CycleLatency)
	expvar.Publish("spfsync:StoreLatency (µs)", StoreLatency)
	expvar.Publish("spfsync:Publishes/s", PublishesPerSecond)
	expvar.Publish("spfsync:Retracts/s", RetractsPerSecond)
	expvar.Publish("spfsync:Facts/s", FactsPerSecond)
}
