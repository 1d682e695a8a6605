// Package classify suggests a category for an issue from its description.
package classify

import (
	"context"
	"errors"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

var (
	// ErrNoMatch means the classifier ran but had nothing to suggest.
	// Retrying will not change the answer.
	ErrNoMatch = errors.New("no category matched")

	ErrEmptyText = errors.New("nothing to classify")
)

// Retryable reports whether a later attempt could succeed.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNoMatch) && !errors.Is(err, ErrEmptyText)
}
