package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/geocoder89/civichub/internal/domain/job"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// NewCreateRequest encodes payload and keys the job on the issue it targets.
func NewCreateRequest(t JobType, issueID string, payload any) (job.CreateRequest, error) {
	b, err := EncodePayload(t, payload)
	if err != nil {
		return job.CreateRequest{}, err
	}

	key := IdempotencyKey(t, issueID)

	return job.CreateRequest{
		Type:           string(t),
		Payload:        b,
		IdempotencyKey: &key,
	}, nil
}

// DecodePayload unmarshals job.Payload into the correct typed payload struct.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	var out any

	switch t {
	case JobClassifyIssue:
		var p ClassifyIssuePayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		out = p

	case JobAwardPoints:
		var p AwardPointsPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		out = p

	default:
		return nil, ErrInvalidJobType
	}

	if err := ValidatePayload(t, out); err != nil {
		return nil, err
	}
	return out, nil
}
