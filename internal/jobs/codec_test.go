package jobs

import (
	"errors"
	"testing"

	"github.com/geocoder89/civichub/internal/domain/job"
)

func TestEncodeDecode_ClassifyIssue(t *testing.T) {
	payload := ClassifyIssuePayload{IssueID: "issue-123", RequestID: "req-1"}

	req, err := NewCreateRequest(JobClassifyIssue, payload.IssueID, payload)
	if err != nil {
		t.Fatalf("NewCreateRequest error: %v", err)
	}

	if req.IdempotencyKey == nil || *req.IdempotencyKey != "classify_issue:issue-123" {
		t.Fatalf("unexpected idempotency key %v", req.IdempotencyKey)
	}

	j := job.New(req)

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(ClassifyIssuePayload)
	if !ok {
		t.Fatalf("expected ClassifyIssuePayload, got %T", decoded)
	}

	if p.IssueID != payload.IssueID {
		t.Fatalf("expected issueId %s, got %s", payload.IssueID, p.IssueID)
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobClassifyIssue, AwardPointsPayload{IssueID: "i1"})
	if !errors.Is(err, ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload_RequiredIDs(t *testing.T) {
	if err := ValidatePayload(JobAwardPoints, &AwardPointsPayload{IssueID: " "}); !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	j := job.New(job.CreateRequest{Type: "export_csv", Payload: []byte(`{}`)})

	if _, err := DecodePayload(j); !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestDecodePayload_MissingIssueID(t *testing.T) {
	j := job.New(job.CreateRequest{Type: string(JobAwardPoints), Payload: []byte(`{"actorId":"a1"}`)})

	if _, err := DecodePayload(j); !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}
