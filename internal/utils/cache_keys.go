package utils

import "strings"

// BuildIssuesListCacheKey keys the issue list cache on its only filter.
func BuildIssuesListCacheKey(status *string) string {
	s := "all"
	if status != nil {
		s = strings.ToLower(strings.TrimSpace(*status))
	}
	return "issues:list:v1:status=" + s
}
