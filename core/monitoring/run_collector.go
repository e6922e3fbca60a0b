package monitoring

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/repository"
)

// RunLister lists stored pipeline runs
type RunLister interface {
	ListRuns(ctx context.Context, filter repository.RunFilter) ([]*models.PipelineRun, error)
}

type runStatsCollector struct {
	runs      RunLister
	runsTotal *prometheus.Desc
}

func newRunStatsCollector(runs RunLister) prometheus.Collector {
	return &runStatsCollector{
		runs: runs,
		runsTotal: prometheus.NewDesc(
			fmt.Sprintf("%s_runs", orchestrator),
			"Number of stored pipeline runs by pipeline and state.",
			[]string{pipelineLabel, stateLabel},
			prometheus.Labels{},
		),
	}
}

// RegisterRunCollector exports stored run counts on the default registry
func RegisterRunCollector(runs RunLister) error {
	return prometheus.Register(newRunStatsCollector(runs))
}

func (c *runStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsTotal
}

// Collect implements Collector.
func (c *runStatsCollector) Collect(ch chan<- prometheus.Metric) {
	runs, err := c.runs.ListRuns(context.Background(), repository.RunFilter{})
	if err != nil {
		zap.S().Named("run_collector").Errorf("failed to collect run statistics: %s", err)
		return
	}

	type key struct {
		kind  models.PipelineKind
		state models.PipelineState
	}
	counts := make(map[key]int)
	for _, run := range runs {
		counts[key{run.Kind, run.State}]++
	}
	for k, total := range counts {
		ch <- prometheus.MustNewConstMetric(c.runsTotal, prometheus.GaugeValue, float64(total), string(k.kind), string(k.state))
	}
}
