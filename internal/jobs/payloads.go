package jobs

// Keep payloads minimal and ID-based; the worker loads details from the DB.

type ClassifyIssuePayload struct {
	IssueID   string `json:"issueId"`
	RequestID string `json:"requestId,omitempty"`
}

type AwardPointsPayload struct {
	IssueID string `json:"issueId"`
	ActorID string `json:"actorId,omitempty"` // admin who resolved it
}
