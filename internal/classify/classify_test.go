package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/civichub/internal/config"
	"github.com/stretchr/testify/require"
)

var labels = []string{"road", "water", "sanitation", "electricity", "safety", "other"}

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier(labels, nil)

	tests := []struct {
		text    string
		want    string
		wantErr error
	}{
		{text: "Large pothole on the main road", want: "road"},
		{text: "Burst pipe, water everywhere", want: "water"},
		{text: "Overflowing trash bin near the park", want: "sanitation"},
		{text: "   ", wantErr: ErrEmptyText},
		{text: "Something strange happened", wantErr: ErrNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := k.Classify(context.Background(), tt.text)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPClassifier_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req zeroShotRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Large pothole on Main St", req.Inputs)
		require.Equal(t, labels, req.Parameters.CandidateLabels)

		_ = json.NewEncoder(w).Encode(zeroShotResponse{
			Labels: []string{"Road", "water"},
			Scores: []float64{0.91, 0.03},
		})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "tok", labels, srv.Client())

	got, err := c.Classify(context.Background(), "Large pothole on Main St")
	require.NoError(t, err)
	require.Equal(t, "road", got)
}

func TestHTTPClassifier_TopScoreOverThreshold(t *testing.T) {
	tests := []struct {
		name    string
		resp    zeroShotResponse
		want    string
		wantErr error
	}{
		{"unsorted scores", zeroShotResponse{Labels: []string{"water", "road"}, Scores: []float64{0.2, 0.7}}, "road", nil},
		{"below threshold", zeroShotResponse{Labels: []string{"road", "water"}, Scores: []float64{0.25, 0.2}}, "", ErrNoMatch},
		{"no scores", zeroShotResponse{Labels: []string{"Safety"}}, "safety", nil},
		{"no labels", zeroShotResponse{}, "", ErrNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.resp)
			}))
			defer srv.Close()

			got, err := NewHTTPClassifier(srv.URL, "", labels, srv.Client()).Classify(context.Background(), "text")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := zeroShotResponse{Labels: []string{"road"}, Scores: []float64{0.9, 0.1}}.best(0.3)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoMatch)
}

func TestHTTPClassifier_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", labels, srv.Client())

	_, err := c.Classify(context.Background(), "pothole")
	require.Error(t, err)
	require.True(t, Retryable(err))
}

type stubClassifier struct {
	calls int
	err   error
	label string
	block bool
}

func (s *stubClassifier) Classify(ctx context.Context, _ string) (string, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.label, s.err
}

func TestProtected_OpensAfterThreshold(t *testing.T) {
	inner := &stubClassifier{err: errors.New("boom")}
	p := NewProtected(inner, BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	now := time.Now()
	p.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := p.Classify(context.Background(), "x")
		require.EqualError(t, err, "boom")
	}
	require.Equal(t, "open", p.State())

	_, err := p.Classify(context.Background(), "x")
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, 2, inner.calls)

	// after cooldown one trial call goes through and closes the circuit
	now = now.Add(time.Minute)
	inner.err = nil
	inner.label = "road"

	got, err := p.Classify(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "road", got)
	require.Equal(t, "closed", p.State())
}

func TestProtected_HalfOpenFailureReopens(t *testing.T) {
	inner := &stubClassifier{err: errors.New("boom")}
	p := NewProtected(inner, BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})

	now := time.Now()
	p.now = func() time.Time { return now }

	_, _ = p.Classify(context.Background(), "x")
	require.Equal(t, "open", p.State())

	now = now.Add(time.Second)
	_, err := p.Classify(context.Background(), "x")
	require.EqualError(t, err, "boom")
	require.Equal(t, "open", p.State())
}

func TestProtected_NoMatchKeepsCircuitClosed(t *testing.T) {
	inner := &stubClassifier{err: ErrNoMatch}
	p := NewProtected(inner, BreakerConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		_, err := p.Classify(context.Background(), "x")
		require.ErrorIs(t, err, ErrNoMatch)
	}
	require.Equal(t, "closed", p.State())
	require.Equal(t, 3, inner.calls)
}

func TestProtected_Timeout(t *testing.T) {
	inner := &stubClassifier{block: true}
	p := NewProtected(inner, BreakerConfig{Timeout: 20 * time.Millisecond})

	_, err := p.Classify(context.Background(), "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(config.Config{ClassifierLabels: labels}).(*KeywordClassifier); !ok {
		t.Fatal("expected keyword classifier without CLASSIFIER_URL")
	}

	c := FromConfig(config.Config{ClassifierURL: "http://127.0.0.1:1/classify", ClassifierLabels: labels, ClassifierTimeout: time.Second})
	p, ok := c.(*Protected)
	if !ok {
		t.Fatalf("expected breaker-wrapped remote classifier, got %T", c)
	}
	if p.State() != "closed" {
		t.Fatalf("new breaker should be closed, got %s", p.State())
	}
}
