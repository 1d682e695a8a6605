package issue

import (
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/civichub/internal/apperr"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

var (
	ErrNotFound       = apperr.NotFound("issue_not_found", "Issue not found")
	ErrUnknownCreator = apperr.Validation("unknown_creator", "createdBy does not reference an existing user", map[string]string{"createdBy": "must reference an existing user"})
)

// TransitionError describes a rejected status change.
func TransitionError(from, to Status) error {
	return apperr.InvalidTransition(fmt.Sprintf("cannot move issue from %s to %s", from, to))
}

// DefaultPoints is what a reporter earns once their issue is resolved.
const DefaultPoints = 10

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

// Rank orders statuses along the lifecycle. Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusResolved:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether next is strictly forward of s.
// Skipping a step (pending -> resolved) is allowed; staying put is not.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.Rank() > s.Rank()
}

// Creator is the attribution joined from the users table.
type Creator struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Image       string    `json:"image"`
	Category    *string   `json:"category,omitempty"`
	Status      Status    `json:"status"`
	Points      int       `json:"points"`
	CreatedBy   *Creator  `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewIssue is the validated input a store persists.
type NewIssue struct {
	Title       string
	Description string
	Location    string
	Image       string
	Category    *string
	CreatedBy   string
}

type ListFilter struct {
	Status *Status
}

// Normalize trims free text and drops a blank category.
func (n NewIssue) Normalize() NewIssue {
	n.Title = strings.TrimSpace(n.Title)
	n.Description = strings.TrimSpace(n.Description)
	n.Location = strings.TrimSpace(n.Location)
	n.Image = strings.TrimSpace(n.Image)
	n.CreatedBy = strings.TrimSpace(n.CreatedBy)

	if n.Category != nil {
		c := strings.TrimSpace(*n.Category)
		if c == "" {
			n.Category = nil
		} else {
			n.Category = &c
		}
	}
	return n
}

// MissingFields returns the JSON names of blank required fields.
func (n NewIssue) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(n.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(n.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(n.Location) == "" {
		missing = append(missing, "location")
	}
	return missing
}

// Validate reports blank required fields as a validation error.
func (n NewIssue) Validate() error {
	missing := n.MissingFields()
	if len(missing) == 0 {
		return nil
	}

	fields := make(map[string]string, len(missing))
	for _, f := range missing {
		fields[f] = "is required"
	}
	return apperr.Validation("invalid_request", "Missing required fields", fields)
}

// New builds a pending issue from normalized input. The creator username is
// filled in by the store.
func New(n NewIssue) Issue {
	now := time.Now().UTC()

	is := Issue{
		ID:          uuid.NewString(),
		Title:       n.Title,
		Description: n.Description,
		Location:    n.Location,
		Image:       n.Image,
		Category:    n.Category,
		Status:      StatusPending,
		Points:      DefaultPoints,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if n.CreatedBy != "" {
		is.CreatedBy = &Creator{ID: n.CreatedBy}
	}
	return is
}

// Award is the outcome of crediting a resolved issue's reporter.
// Awarded is false when the issue was already credited or has no reporter.
type Award struct {
	IssueID string
	UserID  string
	Points  int
	Awarded bool
}
