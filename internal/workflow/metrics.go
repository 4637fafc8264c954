package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workflow_store_commits_total",
		Help: "Total number of workflow commits recorded on the undo stack",
	})

	historyMovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_store_history_moves_total",
		Help: "Total number of applied undo and redo operations",
	}, []string{"direction"})

	persistenceSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_store_persistence_syncs_total",
		Help: "Persistence syncs by outcome (written, skipped, failed)",
	}, []string{"outcome"})

	historyDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workflow_store_history_depth",
		Help: "Current number of snapshots on the undo and redo stacks",
	}, []string{"stack"})
)

func observeHistory(h *History) {
	past, future := h.Depth()
	historyDepthGauge.WithLabelValues("past").Set(float64(past))
	historyDepthGauge.WithLabelValues("future").Set(float64(future))
}
