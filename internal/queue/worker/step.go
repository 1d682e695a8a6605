package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/observability"
)

// ProcessOne claims and runs at most one job. It reports whether a job
// was claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	return w.step(ctx, ctx)
}

func (w *Worker) step(ctx, execCtx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) || errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, err
	}

	w.deps.Metrics.Claimed(j.Type)
	if w.deps.Prom != nil {
		w.deps.Prom.JobsInFlight.Inc()
		defer w.deps.Prom.JobsInFlight.Dec()
	}

	jobCtx, cancelJob := context.WithTimeout(execCtx, w.cfg.JobTimeout)
	defer cancelJob()

	start := w.now()
	err = w.execute(jobCtx, j)
	elapsed := w.now().Sub(start)

	if err != nil {
		result := w.handleFailure(execCtx, j, err)
		w.observe(j, result, elapsed)
		return true, nil
	}

	if err := w.repo.MarkDone(execCtx, j.ID); err != nil {
		_ = w.repo.MarkFailed(execCtx, j.ID, "mark_done_failed: "+err.Error())
		w.observe(j, observability.JobFailed, elapsed)
		return true, fmt.Errorf("mark done %s: %w", j.ID, err)
	}

	w.observe(j, observability.JobDone, elapsed)
	w.log.Info("job.done", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts, "duration_ms", elapsed.Milliseconds())

	return true, nil
}

// handleFailure reschedules with backoff while attempts remain, otherwise
// parks the job as failed. It returns the outcome label.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()

	if isPermanent(cause) || j.Attempts >= j.MaxAttempts {
		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			w.log.Error("job.mark_failed_error", "job_id", j.ID, "err", err)
		}

		result := observability.JobExhausted
		if isPermanent(cause) {
			result = observability.JobFailed
		}
		w.log.Error("job.failed", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts, "outcome", result, "err", cause)
		return result
	}

	runAt := w.now().Add(ExponentialBackoff(j.Attempts - 1))
	if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
		w.log.Error("job.reschedule_error", "job_id", j.ID, "err", err)
	}

	w.log.Warn("job.retry", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts, "run_at", runAt, "err", cause)
	return observability.JobRetry
}

func (w *Worker) observe(j job.Job, result string, d time.Duration) {
	w.deps.Metrics.Finished(j.Type, result, d)
	if w.deps.Prom == nil {
		return
	}
	w.deps.Prom.JobResults.WithLabelValues(j.Type, result).Inc()
	w.deps.Prom.JobDuration.WithLabelValues(j.Type, result).Observe(d.Seconds())
}
