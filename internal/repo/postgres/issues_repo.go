package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/civichub/internal/domain/issue"
	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/jobs"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// columns of the issues table as returned by INSERT/UPDATE ... RETURNING
const issueReturning = `id, title, description, location, image, category, status, points, created_by, created_at, updated_at`

// the same columns read through the creator join; alias "i" is the issue row
const issueJoined = `i.id, i.title, i.description, i.location, i.image, i.category, i.status, i.points,
	i.created_by, u.username, i.created_at, i.updated_at`

// maps the status column onto its lifecycle rank for forward-only updates
const statusRankSQL = `CASE status WHEN 'pending' THEN 0 WHEN 'in_progress' THEN 1 WHEN 'resolved' THEN 2 ELSE -1 END`

type IssuesRepo struct {
	pool *pgxpool.Pool
	jobs *JobsRepo
	prom *observability.Prom
}

func NewIssuesRepo(pool *pgxpool.Pool, jobsRepo *JobsRepo, prom *observability.Prom) *IssuesRepo {
	return &IssuesRepo{pool: pool, jobs: jobsRepo, prom: prom}
}

func (r *IssuesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *IssuesRepo) Create(ctx context.Context, n issue.NewIssue) (issue.Issue, error) {
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		return issue.Issue{}, err
	}

	is := issue.New(n)

	var createdBy *string
	if is.CreatedBy != nil {
		createdBy = &is.CreatedBy.ID
	}

	var out issue.Issue

	err := r.observe("issues.create", func() error {
		return scanIssue(r.pool.QueryRow(ctx, `
		WITH i AS (
			INSERT INTO issues (`+issueReturning+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING `+issueReturning+`
		)
		SELECT `+issueJoined+`
		FROM i
		LEFT JOIN users u ON u.id = i.created_by`,
			is.ID, is.Title, is.Description, is.Location, is.Image, is.Category,
			string(is.Status), is.Points, createdBy, is.CreatedAt, is.UpdatedAt,
		), &out)
	})

	if err != nil {
		if isForeignKeyViolation(err) || isInvalidInput(err) {
			return issue.Issue{}, issue.ErrUnknownCreator
		}
		return issue.Issue{}, err
	}

	return out, nil
}

func (r *IssuesRepo) List(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error) {
	query := `SELECT ` + issueJoined + `
	FROM issues i
	LEFT JOIN users u ON u.id = i.created_by`

	var args []interface{}

	if filter.Status != nil {
		query += ` WHERE i.status = $1`
		args = append(args, string(*filter.Status))
	}

	// newest first, stable
	query += ` ORDER BY i.created_at DESC, i.id DESC`

	output := make([]issue.Issue, 0)

	err := r.observe("issues.list", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var is issue.Issue
			if err := scanIssue(rows, &is); err != nil {
				return err
			}
			output = append(output, is)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return output, nil
}

func (r *IssuesRepo) GetByID(ctx context.Context, id string) (issue.Issue, error) {
	var is issue.Issue

	err := r.observe("issues.get_by_id", func() error {
		return scanIssue(r.pool.QueryRow(ctx, `
		SELECT `+issueJoined+`
		FROM issues i
		LEFT JOIN users u ON u.id = i.created_by
		WHERE i.id = $1`, id), &is)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidInput(err) {
			return issue.Issue{}, issue.ErrNotFound
		}
		return issue.Issue{}, err
	}
	return is, nil
}

// UpdateStatus moves an issue forward with one conditional UPDATE, so
// concurrent callers cannot both apply the same transition. Reaching
// resolved queues the point award in the same transaction.
func (r *IssuesRepo) UpdateStatus(ctx context.Context, id string, next issue.Status) (issue.Issue, error) {
	if !next.IsValid() {
		return issue.Issue{}, issue.TransitionError("", next)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return issue.Issue{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var out issue.Issue

	err = r.observe("issues.update_status", func() error {
		return scanIssue(tx.QueryRow(ctx, `
		WITH i AS (
			UPDATE issues
			SET status = $2,
			    updated_at = NOW()
			WHERE id = $1
			  AND `+statusRankSQL+` < $3
			RETURNING `+issueReturning+`
		)
		SELECT `+issueJoined+`
		FROM i
		LEFT JOIN users u ON u.id = i.created_by`,
			id, string(next), next.Rank(),
		), &out)
	})

	if err != nil {
		if isInvalidInput(err) {
			return issue.Issue{}, issue.ErrNotFound
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return issue.Issue{}, err
		}
		return issue.Issue{}, r.explainRejectedTransition(ctx, tx, id, next)
	}

	if next == issue.StatusResolved && out.CreatedBy != nil && r.jobs != nil {
		req, err := jobs.NewCreateRequest(jobs.JobAwardPoints, out.ID, jobs.AwardPointsPayload{IssueID: out.ID})
		if err != nil {
			return issue.Issue{}, err
		}

		if _, err := r.jobs.CreateTx(ctx, tx, req); err != nil && !errors.Is(err, job.ErrDuplicate) {
			return issue.Issue{}, fmt.Errorf("queue point award: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return issue.Issue{}, err
	}

	return out, nil
}

func (r *IssuesRepo) explainRejectedTransition(ctx context.Context, tx pgx.Tx, id string, next issue.Status) error {
	var current string

	err := r.observe("issues.current_status", func() error {
		return tx.QueryRow(ctx, `SELECT status FROM issues WHERE id = $1`, id).Scan(&current)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return issue.ErrNotFound
		}
		return err
	}

	return issue.TransitionError(issue.Status(current), next)
}

// SetCategory fills category only while it is still NULL.
func (r *IssuesRepo) SetCategory(ctx context.Context, id, category string) (issue.Issue, error) {
	err := r.observe("issues.set_category", func() error {
		_, err := r.pool.Exec(ctx, `
		UPDATE issues
		SET category = $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND category IS NULL`, id, category)
		return err
	})

	if err != nil {
		if isInvalidInput(err) {
			return issue.Issue{}, issue.ErrNotFound
		}
		return issue.Issue{}, err
	}

	return r.GetByID(ctx, id)
}

// AwardPoints marks a resolved issue as credited and adds its points to the
// reporter in one statement. Running it twice credits once.
func (r *IssuesRepo) AwardPoints(ctx context.Context, issueID string) (issue.Award, error) {
	award := issue.Award{IssueID: issueID}

	err := r.observe("issues.award_points", func() error {
		return r.pool.QueryRow(ctx, `
		WITH claimed AS (
			UPDATE issues
			SET points_awarded_at = NOW()
			WHERE id = $1
			  AND status = 'resolved'
			  AND points_awarded_at IS NULL
			  AND created_by IS NOT NULL
			RETURNING created_by, points
		), credited AS (
			UPDATE users u
			SET points = u.points + c.points,
			    updated_at = NOW()
			FROM claimed c
			WHERE u.id = c.created_by
			RETURNING u.id, c.points
		)
		SELECT id, points FROM credited`, issueID).Scan(&award.UserID, &award.Points)
	})

	if err == nil {
		award.Awarded = true
		return award, nil
	}

	if isInvalidInput(err) {
		return issue.Award{}, issue.ErrNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return issue.Award{}, err
	}

	// nothing credited: either already awarded, not resolved, anonymous, or missing
	if _, err := r.GetByID(ctx, issueID); err != nil {
		return issue.Award{}, err
	}
	return award, nil
}

func scanIssue(row pgx.Row, is *issue.Issue) error {
	var status string
	var createdBy, username *string

	err := row.Scan(
		&is.ID,
		&is.Title,
		&is.Description,
		&is.Location,
		&is.Image,
		&is.Category,
		&status,
		&is.Points,
		&createdBy,
		&username,
		&is.CreatedAt,
		&is.UpdatedAt,
	)
	if err != nil {
		return err
	}

	is.Status = issue.Status(status)
	is.CreatedBy = nil
	if createdBy != nil {
		c := &issue.Creator{ID: *createdBy}
		if username != nil {
			c.Username = *username
		}
		is.CreatedBy = c
	}
	return nil
}
