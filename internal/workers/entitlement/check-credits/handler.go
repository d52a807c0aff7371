// Package checkcredits gates free-tier usage on the user's credit record.
package checkcredits

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entitlement-workers/internal/common/config"
	"entitlement-workers/internal/common/errors"
	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/common/metrics"
	"entitlement-workers/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "check-credits"

type Executor interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	service      Executor
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Checker       CreditChecker
	Logger        logger.Logger
	// Observability is optional; a no-op provider is used when nil.
	Observability *observability.Observability
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Checker == nil {
		return nil, fmt.Errorf("checker is required for %s", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	obs := opts.Observability
	if obs == nil {
		obs = observability.NewNop()
	}

	return &Handler{
		config:       workerConfig,
		logger:       log,
		service:      NewService(opts.Checker, log),
		obs:          obs,
		errorHandler: errors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.process(ctx, job)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
		h.obs.RecordJobProcessed(ctx, "failed")
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}
	sendCtx, cancel := errors.CommandContext(ctx)
	defer cancel()
	if _, err := cmd.Send(sendCtx); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.obs.RecordJobProcessed(ctx, "completed")
	h.obs.RecordJobDuration(ctx, time.Since(startTime), "completed")
}

func (h *Handler) process(ctx context.Context, job entities.Job) (*Output, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("failed to parse job variables: %v", err))
	}
	if result := GetInputSchema().Validate(variables); !result.Valid {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	return h.service.Execute(ctx, &input)
}
