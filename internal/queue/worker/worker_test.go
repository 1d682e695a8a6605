package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/civichub/internal/classify"
	"github.com/geocoder89/civichub/internal/domain/issue"
	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/jobs"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu        sync.Mutex
	queue     []job.Job
	done      []string
	failed    map[string]string
	scheduled map[string]time.Time
}

func newFakeRepo(js ...job.Job) *fakeRepo {
	return &fakeRepo{queue: js, failed: map[string]string{}, scheduled: map[string]time.Time{}}
}

func (r *fakeRepo) ClaimNext(_ context.Context, _ string) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}
	j := r.queue[0]
	r.queue = r.queue[1:]
	j.Status = job.StatusProcessing
	j.Attempts++
	return j, nil
}

func (r *fakeRepo) MarkDone(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, id)
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = msg
	return nil
}

func (r *fakeRepo) Reschedule(_ context.Context, id string, runAt time.Time, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[id] = runAt
	return nil
}

func (r *fakeRepo) RequeueStaleProcessing(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type fakeIssues struct {
	mu       sync.Mutex
	issues   map[string]issue.Issue
	awarded  []string
	getErr   error
	awardErr error
}

func (f *fakeIssues) GetByID(_ context.Context, id string) (issue.Issue, error) {
	if f.getErr != nil {
		return issue.Issue{}, f.getErr
	}
	is, ok := f.issues[id]
	if !ok {
		return issue.Issue{}, issue.ErrNotFound
	}
	return is, nil
}

func (f *fakeIssues) SetCategory(_ context.Context, id, category string) (issue.Issue, error) {
	is := f.issues[id]
	if is.Category == nil {
		is.Category = &category
	}
	f.issues[id] = is
	return is, nil
}

func (f *fakeIssues) AwardPoints(_ context.Context, id string) (issue.Award, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.awardErr != nil {
		return issue.Award{}, f.awardErr
	}
	f.awarded = append(f.awarded, id)
	return issue.Award{IssueID: id, UserID: "u1", Points: 10, Awarded: true}, nil
}

type classifierFunc func(ctx context.Context, text string) (string, error)

func (f classifierFunc) Classify(ctx context.Context, text string) (string, error) { return f(ctx, text) }

type recordingPublisher struct{ names []string }

func (p *recordingPublisher) Publish(_ context.Context, name string, _ any) error {
	p.names = append(p.names, name)
	return nil
}

func newJob(t *testing.T, typ jobs.JobType, issueID string, payload any) job.Job {
	t.Helper()
	req, err := jobs.NewCreateRequest(typ, issueID, payload)
	require.NoError(t, err)
	req.MaxAttempts = 3
	return job.New(req)
}

func TestProcessOne_NoJob(t *testing.T) {
	w := New(Config{WorkerID: "w1"}, newFakeRepo(), Deps{})

	worked, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.False(t, worked)
}

func TestProcessOne_ClassifySetsCategory(t *testing.T) {
	j := newJob(t, jobs.JobClassifyIssue, "i1", jobs.ClassifyIssuePayload{IssueID: "i1"})
	repo := newFakeRepo(j)
	store := &fakeIssues{issues: map[string]issue.Issue{"i1": {ID: "i1", Description: "burst water pipe"}}}
	pub := &recordingPublisher{}

	w := New(Config{WorkerID: "w1"}, repo, Deps{
		Issues:     store,
		Classifier: classifierFunc(func(context.Context, string) (string, error) { return "water", nil }),
		Publisher:  pub,
	})

	worked, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, worked)

	require.Equal(t, []string{j.ID}, repo.done)
	require.NotNil(t, store.issues["i1"].Category)
	require.Equal(t, "water", *store.issues["i1"].Category)
	require.Equal(t, []string{"issue_updated"}, pub.names)
	require.Equal(t, uint64(1), w.deps.Metrics.Snapshot().ByType[string(jobs.JobClassifyIssue)].Done)
}

func TestProcessOne_ClassifyAlreadyCategorized(t *testing.T) {
	road := "road"
	j := newJob(t, jobs.JobClassifyIssue, "i1", jobs.ClassifyIssuePayload{IssueID: "i1"})
	repo := newFakeRepo(j)
	store := &fakeIssues{issues: map[string]issue.Issue{"i1": {ID: "i1", Category: &road}}}

	called := false
	w := New(Config{WorkerID: "w1"}, repo, Deps{
		Issues: store,
		Classifier: classifierFunc(func(context.Context, string) (string, error) {
			called = true
			return "water", nil
		}),
	})

	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.False(t, called)
	require.Equal(t, "road", *store.issues["i1"].Category)
	require.Len(t, repo.done, 1)
}

func TestProcessOne_RetryableErrorReschedules(t *testing.T) {
	j := newJob(t, jobs.JobClassifyIssue, "i1", jobs.ClassifyIssuePayload{IssueID: "i1"})
	repo := newFakeRepo(j)
	store := &fakeIssues{issues: map[string]issue.Issue{"i1": {ID: "i1", Description: "x"}}}

	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := New(Config{WorkerID: "w1"}, repo, Deps{
		Issues:     store,
		Classifier: classifierFunc(func(context.Context, string) (string, error) { return "", classify.ErrCircuitOpen }),
	})
	w.now = func() time.Time { return fixed }

	worked, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, worked)

	runAt, ok := repo.scheduled[j.ID]
	require.True(t, ok)
	require.GreaterOrEqual(t, runAt.Sub(fixed), 2*time.Second)
	require.Less(t, runAt.Sub(fixed), 3*time.Second)
	require.Empty(t, repo.failed)
	require.Equal(t, uint64(1), w.deps.Metrics.Snapshot().Totals.Retried)
}

func TestProcessOne_ExhaustedAttemptsFail(t *testing.T) {
	j := newJob(t, jobs.JobAwardPoints, "i1", jobs.AwardPointsPayload{IssueID: "i1"})
	j.Attempts = j.MaxAttempts - 1
	repo := newFakeRepo(j)

	w := New(Config{WorkerID: "w1"}, repo, Deps{
		Issues: &fakeIssues{awardErr: errors.New("connection reset")},
	})

	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)

	require.Contains(t, repo.failed[j.ID], "connection reset")
	require.Empty(t, repo.scheduled)

	s := w.deps.Metrics.Snapshot().ByType[string(jobs.JobAwardPoints)]
	require.Equal(t, uint64(0), s.Failed)
	require.Equal(t, uint64(1), s.Exhausted)
}

func TestProcessOne_NoMatchIsNotRetried(t *testing.T) {
	j := newJob(t, jobs.JobClassifyIssue, "i1", jobs.ClassifyIssuePayload{IssueID: "i1"})
	repo := newFakeRepo(j)
	store := &fakeIssues{issues: map[string]issue.Issue{"i1": {ID: "i1", Description: "hmm"}}}

	w := New(Config{WorkerID: "w1"}, repo, Deps{
		Issues:     store,
		Classifier: classifierFunc(func(context.Context, string) (string, error) { return "", classify.ErrNoMatch }),
	})

	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{j.ID}, repo.done)
	require.Nil(t, store.issues["i1"].Category)
}

func TestProcessOne_PermanentFailures(t *testing.T) {
	tests := []struct {
		name  string
		job   job.Job
		store *fakeIssues
	}{
		{
			name:  "unknown type",
			job:   job.New(job.CreateRequest{Type: "export_csv", Payload: json.RawMessage(`{}`)}),
			store: &fakeIssues{},
		},
		{
			name:  "missing issue",
			job:   newJob(t, jobs.JobAwardPoints, "gone", jobs.AwardPointsPayload{IssueID: "gone"}),
			store: &fakeIssues{awardErr: issue.ErrNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(tt.job)
			w := New(Config{WorkerID: "w1"}, repo, Deps{Issues: tt.store})

			_, err := w.ProcessOne(context.Background())
			require.NoError(t, err)
			require.Contains(t, repo.failed, tt.job.ID)
			require.Empty(t, repo.scheduled)
			s := w.deps.Metrics.Snapshot().Totals
			require.Equal(t, uint64(1), s.Failed)
			require.Equal(t, uint64(0), s.Exhausted)
		})
	}
}

func TestProcessOne_AwardPoints(t *testing.T) {
	j := newJob(t, jobs.JobAwardPoints, "i7", jobs.AwardPointsPayload{IssueID: "i7"})
	repo := newFakeRepo(j)
	store := &fakeIssues{}

	w := New(Config{WorkerID: "w1"}, repo, Deps{Issues: store})

	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"i7"}, store.awarded)
	require.Equal(t, []string{j.ID}, repo.done)
}

func TestRun_DrainsQueueAndStops(t *testing.T) {
	repo := newFakeRepo(
		newJob(t, jobs.JobAwardPoints, "a", jobs.AwardPointsPayload{IssueID: "a"}),
		newJob(t, jobs.JobAwardPoints, "b", jobs.AwardPointsPayload{IssueID: "b"}),
	)
	w := New(Config{WorkerID: "w1", PollInterval: 10 * time.Millisecond, Concurrency: 2}, repo, Deps{Issues: &fakeIssues{}})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.done) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, w.Ready())

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.False(t, w.Ready())
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		min     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{30, 5 * time.Minute},
		{-1, 2 * time.Second},
	}
	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt)
		if got < tt.min || got >= tt.min+250*time.Millisecond {
			t.Fatalf("attempt %d: got %v, want [%v, %v)", tt.attempt, got, tt.min, tt.min+250*time.Millisecond)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	dbUp := true
	w := New(Config{WorkerID: "w1"}, newFakeRepo(), Deps{
		Metrics: observability.NewJobMetrics(),
		Checks: map[string]func(context.Context) error{
			"db": func(context.Context) error {
				if dbUp {
					return nil
				}
				return errors.New("down")
			},
		},
	})
	h := w.HealthHandler()

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, get("/healthz"))
	require.Equal(t, http.StatusServiceUnavailable, get("/readyz"))

	w.setReady(true)
	require.Equal(t, http.StatusOK, get("/readyz"))

	dbUp = false
	require.Equal(t, http.StatusServiceUnavailable, get("/readyz"))

	require.Equal(t, http.StatusOK, get("/stats"))
}
