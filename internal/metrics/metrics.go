// Package metrics exposes the coordinator and worker state as Prometheus
// gauges/counters, grounded on
// ahmedosamasayed-otlpxy/internal/metrics/metrics.go's promauto
// registration style.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vipserver/internal/coordinator"
	"vipserver/internal/workerstats"
)

var (
	vipQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vipserver",
		Name:      "vip_queue_depth",
		Help:      "Current number of VIP requests admitted but not yet taken by the VIP worker",
	})
	waitingQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vipserver",
		Name:      "waiting_queue_depth",
		Help:      "Current number of ordinary requests admitted but not yet taken by a worker",
	})
	runningQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vipserver",
		Name:      "running_queue_depth",
		Help:      "Current number of requests being served by any worker",
	})
	vipBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vipserver",
		Name:      "vip_busy",
		Help:      "1 if the VIP worker currently holds a request, 0 otherwise",
	})
	dispatchLatencySeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vipserver",
		Name:      "dispatch_latency_seconds",
		Help:      "Welford mean and standard deviation of dispatch latency by request class",
	}, []string{"class", "stat"})
	workerTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vipserver",
		Name:      "worker_requests_total",
		Help:      "Requests served by a worker, by kind",
	}, []string{"worker_id", "kind"})
)

// Collect refreshes every gauge from a coordinator snapshot and the
// per-worker stats slice. Intended to be called just before /metrics is
// rendered, since this server has no background scrape loop of its own.
func Collect(snap coordinator.Snapshot, vipLatency, ordLatency coordinator.LatencySnapshot, workers []*workerstats.Stats) {
	vipQueueDepth.Set(float64(snap.VIP))
	waitingQueueDepth.Set(float64(snap.Waiting))
	runningQueueDepth.Set(float64(snap.Running))
	if snap.VIPBusy {
		vipBusy.Set(1)
	} else {
		vipBusy.Set(0)
	}

	dispatchLatencySeconds.WithLabelValues("vip", "mean").Set(vipLatency.Mean)
	dispatchLatencySeconds.WithLabelValues("vip", "stddev").Set(vipLatency.Std)
	dispatchLatencySeconds.WithLabelValues("ordinary", "mean").Set(ordLatency.Mean)
	dispatchLatencySeconds.WithLabelValues("ordinary", "stddev").Set(ordLatency.Std)

	for _, w := range workers {
		s := w.Snapshot()
		id := strconv.Itoa(s.ID)
		workerTotal.WithLabelValues(id, "total").Set(float64(s.Total))
		workerTotal.WithLabelValues(id, "static").Set(float64(s.Static))
		workerTotal.WithLabelValues(id, "dynamic").Set(float64(s.Dynamic))
	}
}
