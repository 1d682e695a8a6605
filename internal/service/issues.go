// Package service orchestrates issue reporting and accounts on top of the
// stores and the external collaborators.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/civichub/internal/apperr"
	"github.com/geocoder89/civichub/internal/cache"
	"github.com/geocoder89/civichub/internal/classify"
	"github.com/geocoder89/civichub/internal/domain/issue"
	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/domain/user"
	"github.com/geocoder89/civichub/internal/jobs"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/geocoder89/civichub/internal/realtime"
	"github.com/geocoder89/civichub/internal/storage"
	"github.com/geocoder89/civichub/internal/utils"
)

type IssueStore interface {
	Create(ctx context.Context, n issue.NewIssue) (issue.Issue, error)
	List(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error)
	UpdateStatus(ctx context.Context, id string, next issue.Status) (issue.Issue, error)
}

type Publisher interface {
	Publish(ctx context.Context, name string, payload any) error
}

type JobEnqueuer interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

// IssueDeps holds the optional collaborators. Any of them may be nil.
type IssueDeps struct {
	Uploader   storage.Uploader
	Classifier classify.Classifier
	Publisher  Publisher
	Jobs       JobEnqueuer
	Prom       *observability.Prom
	Log        *slog.Logger

	UploadTimeout   time.Duration
	ClassifyTimeout time.Duration
	ListCacheTTL    time.Duration
}

type IssueService struct {
	store      IssueStore
	uploader   storage.Uploader
	classifier classify.Classifier
	publisher  Publisher
	jobs       JobEnqueuer
	prom       *observability.Prom
	log        *slog.Logger
	lists      *cache.Cache[[]issue.Issue]

	uploadTimeout   time.Duration
	classifyTimeout time.Duration
}

func NewIssueService(store IssueStore, deps IssueDeps) *IssueService {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.UploadTimeout <= 0 {
		deps.UploadTimeout = 10 * time.Second
	}
	if deps.ClassifyTimeout <= 0 {
		deps.ClassifyTimeout = 3 * time.Second
	}
	if deps.ListCacheTTL <= 0 {
		deps.ListCacheTTL = 2 * time.Second
	}

	return &IssueService{
		store:           store,
		uploader:        deps.Uploader,
		classifier:      deps.Classifier,
		publisher:       deps.Publisher,
		jobs:            deps.Jobs,
		prom:            deps.Prom,
		log:             deps.Log,
		lists:           cache.New[[]issue.Issue](deps.ListCacheTTL),
		uploadTimeout:   deps.UploadTimeout,
		classifyTimeout: deps.ClassifyTimeout,
	}
}

type SubmitIssueInput struct {
	Title       string
	Description string
	Location    string
	Category    *string
}

// Submit validates, uploads the optional image, classifies best-effort,
// persists and announces a new issue. An upload failure aborts the whole
// submission; a classifier failure only leaves the category unset.
func (s *IssueService) Submit(ctx context.Context, in SubmitIssueInput, image []byte, submitterID string) (issue.Issue, error) {
	n := issue.NewIssue{
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Category:    in.Category,
		CreatedBy:   submitterID,
	}.Normalize()

	if err := n.Validate(); err != nil {
		return issue.Issue{}, err
	}

	if image != nil {
		url, err := s.uploadImage(ctx, image)
		if err != nil {
			return issue.Issue{}, err
		}
		n.Image = url
	}

	retryClassify := false
	if n.Category == nil && s.classifier != nil {
		label, err := s.classify(ctx, n.Description)
		if err == nil {
			n.Category = &label
		} else {
			retryClassify = classify.Retryable(err)
		}
	}

	created, err := s.store.Create(ctx, n)
	if err != nil {
		return issue.Issue{}, err
	}

	s.lists.Clear()
	if s.prom != nil {
		s.prom.IssuesSubmitted.Inc()
	}

	if retryClassify {
		s.enqueueClassify(ctx, created.ID)
	}

	s.publish(ctx, realtime.EventNewIssue, created)

	return created, nil
}

func (s *IssueService) uploadImage(ctx context.Context, data []byte) (string, error) {
	img, err := storage.DetectImage(data)
	if err != nil {
		return "", err
	}

	if s.uploader == nil {
		return "", apperr.Upload(errors.New("no image store configured"))
	}

	upCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	start := time.Now()
	url, err := s.uploader.Upload(upCtx, img)
	if s.prom != nil {
		s.prom.ObserveUpload(time.Since(start), err)
	}

	if err != nil {
		s.log.WarnContext(ctx, "issue.upload_failed", "err", err, "bytes", len(data))
		return "", apperr.Upload(err)
	}
	return url, nil
}

func (s *IssueService) classify(ctx context.Context, text string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()

	label, err := s.classifier.Classify(cctx, text)

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, classify.ErrCircuitOpen):
		result = "circuit_open"
	case errors.Is(err, classify.ErrNoMatch):
		result = "no_match"
	default:
		result = "error"
	}
	if s.prom != nil {
		s.prom.ClassifierResults.WithLabelValues(result).Inc()
	}

	if err != nil {
		s.log.InfoContext(ctx, "issue.classify_skipped", "result", result, "err", err)
		return "", apperr.Classifier(err)
	}
	return label, nil
}

func (s *IssueService) enqueueClassify(ctx context.Context, issueID string) {
	if s.jobs == nil {
		return
	}

	req, err := jobs.NewCreateRequest(jobs.JobClassifyIssue, issueID, jobs.ClassifyIssuePayload{IssueID: issueID})
	if err == nil {
		_, err = s.jobs.Create(ctx, req)
	}

	if err != nil && !errors.Is(err, job.ErrDuplicate) {
		s.log.WarnContext(ctx, "issue.classify_enqueue_failed", "issue_id", issueID, "err", err)
	}
}

// ChangeStatus moves an issue forward. Only admins may do it.
func (s *IssueService) ChangeStatus(ctx context.Context, issueID, newStatus, actorRole string) (issue.Issue, error) {
	if actorRole != user.RoleAdmin {
		return issue.Issue{}, apperr.Authorization("forbidden", "Admin role required")
	}

	next := issue.Status(newStatus)
	if !next.IsValid() {
		return issue.Issue{}, apperr.Validation("invalid_status", "Unknown status", map[string]string{
			"status": "must be one of pending, in_progress, resolved",
		})
	}

	updated, err := s.store.UpdateStatus(ctx, issueID, next)
	if err != nil {
		return issue.Issue{}, err
	}

	s.lists.Clear()
	if s.prom != nil {
		s.prom.StatusChanges.WithLabelValues(string(next)).Inc()
	}

	// actor_id is stamped by the log handler
	s.log.InfoContext(ctx, "issue.status_changed", "issue_id", updated.ID, "status", updated.Status)

	s.publish(ctx, realtime.EventIssueUpdated, updated)

	return updated, nil
}

// ListAll returns every issue, newest first, optionally by status.
func (s *IssueService) ListAll(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error) {
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}
	key := utils.BuildIssuesListCacheKey(status)

	if items, ok := s.lists.Get(key); ok {
		return items, nil
	}

	gen := s.lists.Generation()

	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	s.lists.SetIfGeneration(key, items, gen)
	return items, nil
}

// publish never fails the caller; the record is already stored.
func (s *IssueService) publish(ctx context.Context, name string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, name, payload); err != nil {
		s.log.WarnContext(ctx, "issue.publish_failed", "event", name, "err", err)
	}
}
