package monitoring

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"sagemaker-orchestrator/core/models"
)

// RunAdvancer is the part of the orchestrator the monitor drives
type RunAdvancer interface {
	PendingRuns(ctx context.Context) ([]*models.PipelineRun, error)
	Advance(ctx context.Context, runID string) (*models.PipelineRun, error)
}

// RunMonitor advances every unfinished training run on a jittered interval,
// so runs started through the API make progress without a client polling them
type RunMonitor struct {
	advancer RunAdvancer
	interval time.Duration
}

// NewRunMonitor creates a monitor ticking every interval
func NewRunMonitor(advancer RunAdvancer, interval time.Duration) *RunMonitor {
	return &RunMonitor{
		advancer: advancer,
		interval: interval,
	}
}

// Start runs the monitor loop until ctx is done
func (m *RunMonitor) Start(ctx context.Context) {
	ticker := jitterbug.New(m.interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	zap.S().Named("run_monitor").Infof("Advancing pending runs every %s", m.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.AdvancePending(ctx)
		}
	}
}

// AdvancePending advances each pending run once and returns how many reached a final state
func (m *RunMonitor) AdvancePending(ctx context.Context) int {
	logger := zap.S().Named("run_monitor")

	runs, err := m.advancer.PendingRuns(ctx)
	if err != nil {
		logger.Errorf("failed to list pending runs: %v", err)
		return 0
	}

	finished := 0
	for _, run := range runs {
		if ctx.Err() != nil {
			return finished
		}
		advanced, err := m.advancer.Advance(ctx, run.ID)
		if advanced != nil && advanced.State.IsFinal() {
			finished++
			logger.Infof("Run %s finished in state %s", run.ID, advanced.State)
			continue
		}
		if err != nil {
			logger.Warnf("failed to advance run %s: %v", run.ID, err)
		}
	}
	return finished
}
