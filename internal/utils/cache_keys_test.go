package utils

import "testing"

func TestBuildIssuesListCacheKey(t *testing.T) {
	resolved := " Resolved "

	tests := []struct {
		name   string
		status *string
		want   string
	}{
		{name: "no filter", status: nil, want: "issues:list:v1:status=all"},
		{name: "normalized", status: &resolved, want: "issues:list:v1:status=resolved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildIssuesListCacheKey(tt.status); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsUUID(t *testing.T) {
	if !IsUUID("6f1c1c9e-2a4b-4c53-9d58-8a3f1f5f3c11") {
		t.Fatal("expected valid uuid")
	}
	if IsUUID("not-a-uuid") || IsUUID("") {
		t.Fatal("expected invalid uuid")
	}
}
