package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/civichub/internal/classify"
	"github.com/geocoder89/civichub/internal/domain/issue"
	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/jobs"
	"github.com/geocoder89/civichub/internal/realtime"
)

// permanentError marks a failure that no retry can fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return permanent(err)
	}

	switch p := payload.(type) {
	case jobs.ClassifyIssuePayload:
		return w.classifyIssue(ctx, p)
	case jobs.AwardPointsPayload:
		return w.awardPoints(ctx, p)
	default:
		return permanent(fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type))
	}
}

func (w *Worker) classifyIssue(ctx context.Context, p jobs.ClassifyIssuePayload) error {
	if w.deps.Issues == nil || w.deps.Classifier == nil {
		return permanent(errors.New("classification is not configured"))
	}

	is, err := w.deps.Issues.GetByID(ctx, p.IssueID)
	if err != nil {
		if errors.Is(err, issue.ErrNotFound) {
			return permanent(err)
		}
		return err
	}

	if is.Category != nil {
		return nil
	}

	label, err := w.deps.Classifier.Classify(ctx, is.Description)
	if err != nil {
		if !classify.Retryable(err) {
			w.log.InfoContext(ctx, "job.classify_no_label", "issue_id", is.ID, "err", err)
			return nil
		}
		return fmt.Errorf("classify: %w", err)
	}

	updated, err := w.deps.Issues.SetCategory(ctx, is.ID, label)
	if err != nil {
		return fmt.Errorf("set category: %w", err)
	}

	w.log.InfoContext(ctx, "job.issue_classified", "issue_id", is.ID, "category", label)
	w.publish(ctx, realtime.EventIssueUpdated, updated)
	return nil
}

func (w *Worker) awardPoints(ctx context.Context, p jobs.AwardPointsPayload) error {
	if w.deps.Issues == nil {
		return permanent(errors.New("issue store is not configured"))
	}

	award, err := w.deps.Issues.AwardPoints(ctx, p.IssueID)
	if err != nil {
		if errors.Is(err, issue.ErrNotFound) {
			return permanent(err)
		}
		return err
	}

	if award.Awarded {
		w.log.InfoContext(ctx, "job.points_awarded", "issue_id", award.IssueID, "user_id", award.UserID, "points", award.Points)
	}
	return nil
}

func (w *Worker) publish(ctx context.Context, name string, payload any) {
	if w.deps.Publisher == nil {
		return
	}
	if err := w.deps.Publisher.Publish(ctx, name, payload); err != nil {
		w.log.WarnContext(ctx, "job.publish_failed", "event", name, "err", err)
	}
}
