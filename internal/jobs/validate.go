package jobs

import "strings"

// ValidatePayload checks the payload matches the job type and carries its ids.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobClassifyIssue:
		var p ClassifyIssuePayload
		switch v := payload.(type) {
		case ClassifyIssuePayload:
			p = v
		case *ClassifyIssuePayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.IssueID) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobAwardPoints:
		var p AwardPointsPayload
		switch v := payload.(type) {
		case AwardPointsPayload:
			p = v
		case *AwardPointsPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.IssueID) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
