// Package gojob runs install completion as go-job queue work: verified
// callbacks are enqueued and a worker performs the exchange and commit.
package gojob

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-appinstall/adapters/gocommand"
	"github.com/goliatone/go-appinstall/adapters/gologger"
	installcommand "github.com/goliatone/go-appinstall/command"
	"github.com/goliatone/go-appinstall/core"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// JobIDCompleteInstall is the queue id of the install completion command.
const JobIDCompleteInstall = installcommand.TypeCompleteInstall

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = time.Second
)

// CompletionQueue enqueues verified callbacks for the completion worker.
// The registry must already hold the complete install command.
type CompletionQueue struct {
	enqueuer queue.Enqueuer
	registry *jobqueuecommand.Registry
}

func NewCompletionQueue(enqueuer queue.Enqueuer, registry *jobqueuecommand.Registry) (*CompletionQueue, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("gojob: queue registry is required")
	}
	return &CompletionQueue{enqueuer: enqueuer, registry: registry}, nil
}

// EnqueueCompleteInstall queues params. The callback state travels as the
// correlation id.
func (q *CompletionQueue) EnqueueCompleteInstall(ctx context.Context, params core.CallbackParams) error {
	if q == nil || q.enqueuer == nil {
		return fmt.Errorf("gojob: completion queue is not configured")
	}
	msg := installcommand.CompleteInstallMessage{Params: core.CallbackParams{Values: params.Clone()}}
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return err
	}
	_, err := jobqueuecommand.EnqueuePayloadWithOptions(ctx, q.enqueuer, q.registry, JobIDCompleteInstall, msg,
		jobqueuecommand.EnqueueOptions{CorrelationID: params.State()},
	)
	if err != nil {
		return fmt.Errorf("gojob: enqueue complete install: %w", err)
	}
	return nil
}

// RetryPolicy retries install completion only for server side failures.
// Client errors such as a bad signature or a missing code dead-letter on
// the first attempt.
type RetryPolicy struct {
	worker.DefaultRetryPolicy
}

func (p RetryPolicy) Decide(attempt int, err error) queue.NackOptions {
	if mapped := core.MapError(err); mapped != nil && mapped.Code >= http.StatusBadRequest && mapped.Code < http.StatusInternalServerError {
		return queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      strings.TrimSpace(mapped.TextCode),
		}
	}
	return p.DefaultRetryPolicy.Decide(attempt, err)
}

type WorkerConfig struct {
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
	IdleDelay    time.Duration
}

// StartCompletionWorker starts a go-job worker that runs queued complete
// install commands. Worker events go to the appinstall.jobs logger and to
// recorder.
func StartCompletionWorker(
	ctx context.Context,
	dequeuer queue.Dequeuer,
	registry *jobqueuecommand.Registry,
	provider glog.LoggerProvider,
	recorder core.MetricsRecorder,
	cfg WorkerConfig,
) (*worker.Worker, error) {
	_, logger, _, jobLogger := gologger.ResolveForJob(gologger.JobsLoggerName, provider, nil)
	logger = glog.Ensure(logger)
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	opts := []worker.Option{
		worker.WithRetryPolicy(RetryPolicy{DefaultRetryPolicy: worker.DefaultRetryPolicy{
			MaxAttempts: maxAttempts,
			Backoff: worker.BackoffConfig{
				Strategy: worker.BackoffExponential,
				Interval: backoff,
			},
		}}),
		worker.WithHooks(completionHooks(logger, recorder)),
	}
	if jobLogger != nil {
		opts = append(opts, worker.WithLogger(jobLogger))
	}
	if cfg.Concurrency > 0 {
		opts = append(opts, worker.WithConcurrency(cfg.Concurrency))
	}
	if cfg.IdleDelay > 0 {
		opts = append(opts, worker.WithIdleDelay(cfg.IdleDelay))
	}

	return jobqueuecommand.StartLocalWorker(ctx, dequeuer, registry, jobqueuecommand.LocalWorkerConfig{
		IDs:           []string{JobIDCompleteInstall},
		WorkerOptions: opts,
	})
}

func completionHooks(logger glog.Logger, recorder core.MetricsRecorder) worker.Hook {
	record := func(ctx context.Context, event worker.Event, status string) {
		tags := map[string]string{"operation": jobOperation, "status": status}
		recorder.IncCounter(ctx, core.OperationCounterName(jobOperation), 1, tags)
		if event.Duration > 0 {
			recorder.ObserveHistogram(ctx, core.OperationDurationName(jobOperation), float64(event.Duration.Milliseconds()), tags)
		}
	}
	return worker.HookFuncs{
		OnSuccessFunc: func(ctx context.Context, event worker.Event) {
			record(ctx, event, "success")
			logger.Info("install completion processed", "attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds())
		},
		OnRetryFunc: func(ctx context.Context, event worker.Event) {
			record(ctx, event, "retry")
			logger.Warn("install completion retrying", "attempt", event.Attempt, "delay", event.Delay, "error", event.Err)
		},
		OnFailureFunc: func(ctx context.Context, event worker.Event) {
			record(ctx, event, "failure")
			logger.Error("install completion failed", "attempt", event.Attempt, "error", event.Err)
		},
	}
}

const jobOperation = "complete_install_job"
