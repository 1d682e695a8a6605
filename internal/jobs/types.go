package jobs

type JobType string

const (
	// JobClassifyIssue retries classification for an issue stored without a category.
	JobClassifyIssue JobType = "classify_issue"
	// JobAwardPoints credits the reporter once their issue is resolved.
	JobAwardPoints JobType = "award_points"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobClassifyIssue, JobAwardPoints:
		return true
	default:
		return false
	}
}

// IdempotencyKey gives at most one queued job per (type, issue).
func IdempotencyKey(t JobType, issueID string) string {
	return string(t) + ":" + issueID
}
