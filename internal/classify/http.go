package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPClassifier calls a zero-shot text classification endpoint in the
// Hugging Face inference format:
//
//	POST {"inputs": "...", "parameters": {"candidate_labels": [...]}}
//	200  {"labels": [...], "scores": [...]}
type HTTPClassifier struct {
	url    string
	token  string
	labels []string
	client *http.Client

	// MinScore is the lowest confidence accepted; below it the result is
	// ErrNoMatch.
	MinScore float64
}

const DefaultMinScore = 0.3

func NewHTTPClassifier(url, token string, labels []string, client *http.Client) *HTTPClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClassifier{url: url, token: token, labels: labels, client: client, MinScore: DefaultMinScore}
}

type zeroShotRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters zeroShotParams `json:"parameters"`
}

type zeroShotParams struct {
	CandidateLabels []string `json:"candidate_labels"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	body, err := json.Marshal(zeroShotRequest{
		Inputs:     text,
		Parameters: zeroShotParams{CandidateLabels: c.labels},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classifier status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out zeroShotResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode classifier response: %w", err)
	}

	return out.best(c.MinScore)
}

// best picks the highest scoring label. A response without scores is taken
// in label order.
func (r zeroShotResponse) best(minScore float64) (string, error) {
	if len(r.Labels) == 0 {
		return "", ErrNoMatch
	}

	top := 0
	if len(r.Scores) > 0 {
		if len(r.Scores) != len(r.Labels) {
			return "", fmt.Errorf("classifier returned %d labels and %d scores", len(r.Labels), len(r.Scores))
		}
		for i, s := range r.Scores {
			if s > r.Scores[top] {
				top = i
			}
		}
		if r.Scores[top] < minScore {
			return "", ErrNoMatch
		}
	}

	label := strings.ToLower(strings.TrimSpace(r.Labels[top]))
	if label == "" {
		return "", ErrNoMatch
	}
	return label, nil
}
