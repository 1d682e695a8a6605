package classify

import (
	"context"
	"strings"
)

// DefaultKeywords maps each default label onto words that suggest it.
var DefaultKeywords = map[string][]string{
	"road":        {"pothole", "road", "street", "asphalt", "traffic", "sidewalk", "pavement", "crack"},
	"water":       {"water", "leak", "pipe", "flood", "drain", "sewer", "burst"},
	"sanitation":  {"garbage", "trash", "waste", "litter", "dump", "rubbish", "bin"},
	"electricity": {"streetlight", "light", "power", "outage", "electric", "wire", "pole"},
	"safety":      {"danger", "unsafe", "crime", "fire", "broken glass", "hazard"},
}

// KeywordClassifier is the offline classifier used when no inference
// endpoint is configured. The label with the most keyword hits wins; ties
// go to the label listed first.
type KeywordClassifier struct {
	labels   []string
	keywords map[string][]string
}

func NewKeywordClassifier(labels []string, keywords map[string][]string) *KeywordClassifier {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	return &KeywordClassifier{labels: labels, keywords: keywords}
}

func (k *KeywordClassifier) Classify(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", ErrEmptyText
	}

	best, bestHits := "", 0
	for _, label := range k.labels {
		hits := 0
		for _, kw := range k.keywords[label] {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = label, hits
		}
	}

	if best == "" {
		return "", ErrNoMatch
	}
	return best, nil
}
