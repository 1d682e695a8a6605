package classify

import (
	"net/http"

	"github.com/geocoder89/civichub/internal/config"
)

// FromConfig returns the remote zero-shot classifier behind a breaker when
// CLASSIFIER_URL is set, and the keyword classifier otherwise.
func FromConfig(cfg config.Config) Classifier {
	if cfg.ClassifierURL == "" {
		return NewKeywordClassifier(cfg.ClassifierLabels, nil)
	}

	remote := NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierToken, cfg.ClassifierLabels, &http.Client{
		Timeout: cfg.ClassifierTimeout,
	})
	if cfg.ClassifierMinScore > 0 {
		remote.MinScore = cfg.ClassifierMinScore
	}

	return NewProtected(remote, BreakerConfig{
		Timeout:          cfg.ClassifierTimeout,
		FailureThreshold: 3,
		Cooldown:         30 * cfg.ClassifierTimeout,
		HalfOpenMaxCalls: 1,
	})
}
