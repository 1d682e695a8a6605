package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/civichub/internal/domain/issue"
)

type storedIssue struct {
	issue     issue.Issue
	awardedAt *time.Time
}

// IssuesRepo keeps issues in process. Resolution credits the reporter
// directly since there is no job queue behind this store.
type IssuesRepo struct {
	mu    sync.RWMutex
	items map[string]*storedIssue
	users *UsersRepo
}

func NewIssuesRepo(users *UsersRepo) *IssuesRepo {
	return &IssuesRepo{
		items: make(map[string]*storedIssue),
		users: users,
	}
}

func (r *IssuesRepo) Create(_ context.Context, n issue.NewIssue) (issue.Issue, error) {
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		return issue.Issue{}, err
	}

	is := issue.New(n)

	if is.CreatedBy != nil {
		name, ok := r.users.username(is.CreatedBy.ID)
		if !ok {
			return issue.Issue{}, issue.ErrUnknownCreator
		}
		is.CreatedBy.Username = name
	}

	r.mu.Lock()
	r.items[is.ID] = &storedIssue{issue: is}
	r.mu.Unlock()

	return cloneIssue(is), nil
}

func (r *IssuesRepo) List(_ context.Context, filter issue.ListFilter) ([]issue.Issue, error) {
	r.mu.RLock()
	out := make([]issue.Issue, 0, len(r.items))
	for _, s := range r.items {
		if filter.Status != nil && s.issue.Status != *filter.Status {
			continue
		}
		out = append(out, cloneIssue(s.issue))
	}
	r.mu.RUnlock()

	// usernames are read at list time, like the SQL join
	for i := range out {
		if out[i].CreatedBy == nil {
			continue
		}
		if name, ok := r.users.username(out[i].CreatedBy.ID); ok {
			out[i].CreatedBy.Username = name
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *IssuesRepo) GetByID(_ context.Context, id string) (issue.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok {
		return issue.Issue{}, issue.ErrNotFound
	}
	return cloneIssue(s.issue), nil
}

// UpdateStatus is a compare-and-set under the write lock, so concurrent
// callers racing on the same transition see exactly one winner.
func (r *IssuesRepo) UpdateStatus(_ context.Context, id string, next issue.Status) (issue.Issue, error) {
	r.mu.Lock()

	s, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return issue.Issue{}, issue.ErrNotFound
	}

	current := s.issue.Status
	if !current.CanTransitionTo(next) {
		r.mu.Unlock()
		return issue.Issue{}, issue.TransitionError(current, next)
	}

	s.issue.Status = next
	s.issue.UpdatedAt = time.Now().UTC()
	out := cloneIssue(s.issue)
	r.mu.Unlock()

	if next == issue.StatusResolved {
		_, _ = r.AwardPoints(context.Background(), id)
	}

	return out, nil
}

// SetCategory fills the category only while it is still unset.
func (r *IssuesRepo) SetCategory(_ context.Context, id, category string) (issue.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.items[id]
	if !ok {
		return issue.Issue{}, issue.ErrNotFound
	}

	if s.issue.Category == nil && category != "" {
		c := category
		s.issue.Category = &c
		s.issue.UpdatedAt = time.Now().UTC()
	}

	return cloneIssue(s.issue), nil
}

func (r *IssuesRepo) AwardPoints(_ context.Context, issueID string) (issue.Award, error) {
	r.mu.Lock()

	s, ok := r.items[issueID]
	if !ok {
		r.mu.Unlock()
		return issue.Award{}, issue.ErrNotFound
	}

	award := issue.Award{IssueID: issueID, Points: s.issue.Points}

	if s.issue.Status != issue.StatusResolved || s.awardedAt != nil || s.issue.CreatedBy == nil {
		r.mu.Unlock()
		return award, nil
	}

	now := time.Now().UTC()
	s.awardedAt = &now
	award.UserID = s.issue.CreatedBy.ID
	r.mu.Unlock()

	award.Awarded = r.users.addPoints(award.UserID, award.Points)
	return award, nil
}

func cloneIssue(in issue.Issue) issue.Issue {
	out := in
	if in.Category != nil {
		c := *in.Category
		out.Category = &c
	}
	if in.CreatedBy != nil {
		cb := *in.CreatedBy
		out.CreatedBy = &cb
	}
	return out
}
