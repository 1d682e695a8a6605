package handlers

import (
	"testing"
	"time"

	"github.com/geocoder89/civichub/internal/domain/issue"
)

func TestIssuesETag_ChangesWithIssueState(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	items := []issue.Issue{{ID: "a", Status: issue.StatusPending, UpdatedAt: at}}

	base := issuesETag(issue.ListFilter{}, items)
	if base != issuesETag(issue.ListFilter{}, items) {
		t.Fatal("etag must be stable for the same listing")
	}

	moved := []issue.Issue{{ID: "a", Status: issue.StatusInProgress, UpdatedAt: at.Add(time.Second)}}
	if base == issuesETag(issue.ListFilter{}, moved) {
		t.Fatal("status change must change the etag")
	}

	pending := issue.StatusPending
	if base == issuesETag(issue.ListFilter{Status: &pending}, items) {
		t.Fatal("filter must be part of the etag")
	}
}

func TestIfNoneMatchMatches(t *testing.T) {
	tests := []struct {
		header string
		etag   string
		want   bool
	}{
		{header: "", etag: `W/"abc"`, want: false},
		{header: "*", etag: `W/"abc"`, want: true},
		{header: `"abc"`, etag: `W/"abc"`, want: true},
		{header: `"x", W/"abc"`, etag: `W/"abc"`, want: true},
		{header: `"x"`, etag: `W/"abc"`, want: false},
	}

	for _, tt := range tests {
		if got := ifNoneMatchMatches(tt.header, tt.etag); got != tt.want {
			t.Fatalf("ifNoneMatchMatches(%q, %q) = %v, want %v", tt.header, tt.etag, got, tt.want)
		}
	}
}
