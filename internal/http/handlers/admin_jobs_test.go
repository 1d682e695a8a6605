package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/http/handlers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	jobs       map[string]job.Job
	lastStatus *string
	lastLimit  int
}

func (f *fakeJobs) List(_ context.Context, status *string, limit int) ([]job.Job, error) {
	f.lastStatus, f.lastLimit = status, limit

	out := []job.Job{}
	for _, j := range f.jobs {
		if status == nil || string(j.Status) == *status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (job.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobs) Retry(_ context.Context, id string) error {
	j, ok := f.jobs[id]
	if !ok || j.Status != job.StatusFailed {
		return job.ErrJobNotFound
	}
	j.Status, j.Attempts = job.StatusPending, 0
	f.jobs[id] = j
	return nil
}

func adminJobsRouter(repo handlers.AdminJobsRepo) *gin.Engine {
	h := handlers.NewAdminJobsHandler(repo)
	r := gin.New()
	r.GET("/jobs", h.List)
	r.GET("/jobs/:id", h.GetByID)
	r.POST("/jobs/:id/retry", h.Retry)
	return r
}

func TestAdminJobs(t *testing.T) {
	failed := job.New(job.CreateRequest{Type: "classify_issue"})
	failed.Status = job.StatusFailed
	failed.Attempts = failed.MaxAttempts

	done := job.New(job.CreateRequest{Type: "award_points"})
	done.Status = job.StatusDone

	repo := &fakeJobs{jobs: map[string]job.Job{failed.ID: failed, done.ID: done}}
	r := adminJobsRouter(repo)

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	t.Run("list filters by status", func(t *testing.T) {
		w := do(http.MethodGet, "/jobs?status=failed&limit=5")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "failed", *repo.lastStatus)
		require.Equal(t, 5, repo.lastLimit)

		var body struct {
			Count int       `json:"count"`
			Items []job.Job `json:"items"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, 1, body.Count)
		require.Equal(t, failed.ID, body.Items[0].ID)
	})

	t.Run("list rejects bad query", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/jobs?limit=500").Code)
		require.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/jobs?status=stuck").Code)
	})

	t.Run("get", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do(http.MethodGet, "/jobs/"+done.ID).Code)
		require.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/jobs/not-a-uuid").Code)
		require.Equal(t, http.StatusNotFound, do(http.MethodGet, "/jobs/6f1c2b1e-7d0a-4c55-9a43-0d4b8a3e5f10").Code)
	})

	t.Run("retry only failed jobs", func(t *testing.T) {
		require.Equal(t, http.StatusConflict, do(http.MethodPost, "/jobs/"+done.ID+"/retry").Code)

		w := do(http.MethodPost, "/jobs/"+failed.ID+"/retry")
		require.Equal(t, http.StatusAccepted, w.Code)
		require.Equal(t, job.StatusPending, repo.jobs[failed.ID].Status)
	})
}
