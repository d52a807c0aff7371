// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"entitlement-workers/internal/common/config"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// Workers tracks the job workers opened by the manager so they can be closed together.
type Workers struct {
	log     *zap.Logger
	workers map[string]worker.JobWorker
}

func NewWorkers(log *zap.Logger) *Workers {
	return &Workers{log: log, workers: map[string]worker.JobWorker{}}
}

// Start opens a job worker for taskType unless it is disabled in config.
func (w *Workers) Start(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler worker.JobHandler) {
	if !wcfg.Enabled {
		w.log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	w.workers[taskType] = client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	w.log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}

// Count returns the number of open workers.
func (w *Workers) Count() int {
	return len(w.workers)
}

// Close stops polling and waits for in-flight jobs.
func (w *Workers) Close() {
	for taskType, jw := range w.workers {
		w.log.Info("stopping worker", zap.String("taskType", taskType))
		jw.Close()
		jw.AwaitClose()
	}
}
