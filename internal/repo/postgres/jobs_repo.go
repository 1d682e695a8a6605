package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, run_at, locked_at, locked_by, last_error, idempotency_key, created_at, updated_at`

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func (r *JobsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *JobsRepo) insert(ctx context.Context, db execer, op string, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	var tag pgconn.CommandTag

	err := r.observe(op, func() error {
		var err error
		tag, err = db.Exec(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (idempotency_key) DO NOTHING`,
			j.ID, j.Type, j.Payload, string(j.Status), j.Attempts, j.MaxAttempts, j.RunAt,
			j.LockedAt, j.LockedBy, j.LastError, j.IdempotencyKey, j.CreatedAt, j.UpdatedAt,
		)
		return err
	})

	if err != nil {
		return job.Job{}, err
	}

	if tag.RowsAffected() == 0 {
		return job.Job{}, job.ErrDuplicate
	}

	return j, nil
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	return r.insert(ctx, r.pool, "jobs.create", req)
}

func (r *JobsRepo) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	return r.insert(ctx, tx, "jobs.create_tx", req)
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	return r.execOne(ctx, "jobs.mark_done", `
		UPDATE jobs
		SET status = 'done',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1`, id)
}

func (r *JobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.execOne(ctx, "jobs.mark_failed", `
		UPDATE jobs
		SET status = 'failed',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1`, id, errMsg)
}

// Reschedule puts a job back to pending for a later retry.
func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return r.execOne(ctx, "jobs.reschedule", `
		UPDATE jobs
		SET status = 'pending',
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1`, id, runAt, errMsg)
}

func (r *JobsRepo) execOne(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag

	err := r.observe(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, sql, args...)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// ClaimNext locks one runnable job with SKIP LOCKED and counts the attempt.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job

	err := r.observe("jobs.claim_next", func() error {
		return scanJob(r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM jobs
			WHERE status = 'pending'
			  AND run_at <= NOW()
			  AND attempts < max_attempts
			ORDER BY run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs
		SET status = 'processing',
		    attempts = attempts + 1,
		    locked_at = NOW(),
		    locked_by = $1,
		    updated_at = NOW()
		WHERE id = (SELECT id FROM next)
		RETURNING `+jobColumns, workerID), &j)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound // treat as "no job available"
		}
		return job.Job{}, err
	}

	return j, nil
}

// RequeueStaleProcessing releases jobs whose worker died mid-flight. A job
// that died on its last attempt is parked as failed so an admin can retry it.
func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	var rows int64

	err := r.observe("jobs.requeue_stale", func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
		    last_error = 'lock expired: worker ' || COALESCE(locked_by, 'unknown') || ' did not finish',
		    locked_at = NULL,
		    locked_by = NULL,
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND locked_at < NOW() - make_interval(secs => $1)`, float64(secs))
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}

func scanJob(row pgx.Row, j *job.Job) error {
	var status string

	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &status,
		&j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.LockedBy,
		&j.LastError, &j.IdempotencyKey,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return err
	}

	j.Status = job.Status(status)
	return nil
}

// List returns the most recently touched jobs, optionally by status.
func (r *JobsRepo) List(ctx context.Context, status *string, limit int) ([]job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}

	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	args = append(args, limit)
	query += ` ORDER BY updated_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	items := make([]job.Job, 0, limit)

	err := r.observe("jobs.list", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var j job.Job
			if err := scanJob(rows, &j); err != nil {
				return err
			}
			items = append(items, j)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *JobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	var j job.Job

	err := r.observe("jobs.get_by_id", func() error {
		return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id), &j)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidInput(err) {
			return job.Job{}, job.ErrJobNotFound
		}
		return job.Job{}, err
	}
	return j, nil
}

// Retry gives a failed job a fresh set of attempts.
func (r *JobsRepo) Retry(ctx context.Context, id string) error {
	err := r.execOne(ctx, "jobs.retry", `
		UPDATE jobs
		SET status = 'pending',
		    attempts = 0,
		    run_at = NOW(),
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'failed'`, id)
	if isInvalidInput(err) {
		return job.ErrJobNotFound
	}
	return err
}
