package inference

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"lcsec_server/core/domain"

	"github.com/goccy/go-json"
)

func newTestAdapter(serverURL string) *BertAdapter {
	return NewBertAdapter(&BertConfig{Endpoint: serverURL, TimeoutSec: 5})
}

func servingStub(t *testing.T, logits []float64, capture *classifyRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/classify" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		json.NewEncoder(w).Encode(classifyResponse{Logits: logits})
	}))
}

func TestClassifyLogitsToLabel(t *testing.T) {
	tests := []struct {
		name           string
		logits         []float64
		wantLabel      domain.Label
		wantConfidence float64
	}{
		{
			// softmax([1, 3]) = [0.1192, 0.8808]
			name:           "spam logit dominates",
			logits:         []float64{1.0, 3.0},
			wantLabel:      domain.LabelSpam,
			wantConfidence: 0.8808,
		},
		{
			name:           "ham logit dominates",
			logits:         []float64{4.0, 1.0},
			wantLabel:      domain.LabelHam,
			wantConfidence: 0.9526,
		},
		{
			name:           "tie goes to ham",
			logits:         []float64{2.0, 2.0},
			wantLabel:      domain.LabelHam,
			wantConfidence: 0.5,
		},
		{
			// Large magnitudes must not overflow the softmax
			name:           "extreme logits stay stable",
			logits:         []float64{-1000, 1000},
			wantLabel:      domain.LabelSpam,
			wantConfidence: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := servingStub(t, tt.logits, nil)
			defer server.Close()

			adapter := newTestAdapter(server.URL)
			result, err := adapter.Classify(context.Background(), "some message")
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if result.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", result.Label, tt.wantLabel)
			}
			if result.Confidence == nil {
				t.Fatal("Confidence = nil, want softmax probability")
			}
			if math.Abs(*result.Confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", *result.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestClassifyTruncatesLongInput(t *testing.T) {
	var captured classifyRequest
	server := servingStub(t, []float64{1.0, 0.0}, &captured)
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	text := strings.TrimSpace(strings.Repeat("word ", maxSequenceTokens+100))

	if _, err := adapter.Classify(context.Background(), text); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	sent := strings.Fields(captured.Text)
	if len(sent) != maxSequenceTokens {
		t.Errorf("sent %d tokens, want %d", len(sent), maxSequenceTokens)
	}
}

func TestClassifyShortInputSentVerbatim(t *testing.T) {
	var captured classifyRequest
	server := servingStub(t, []float64{0.0, 1.0}, &captured)
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	const text = "Win a free prize now!"

	if _, err := adapter.Classify(context.Background(), text); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if captured.Text != text {
		t.Errorf("sent %q, want the original text %q", captured.Text, text)
	}
}

func TestClassifyServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
		{
			name: "wrong logit count",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(classifyResponse{Logits: []float64{0.1, 0.2, 0.7}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			adapter := newTestAdapter(server.URL)
			if _, err := adapter.Classify(context.Background(), "anything"); err == nil {
				t.Error("Classify() error = nil, want transport error")
			}
		})
	}
}

func TestClassifyBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)

	// The breaker trips after more than 5 consecutive failures; later
	// calls fail fast without reaching the endpoint.
	for i := 0; i < 10; i++ {
		if _, err := adapter.Classify(context.Background(), "anything"); err == nil {
			t.Fatalf("call %d: Classify() error = nil, want failure", i+1)
		}
	}

	if n := hits.Load(); n > 6 {
		t.Errorf("endpoint hit %d times, want at most 6 before the breaker opens", n)
	}
}

func TestTruncateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{name: "under limit unchanged", text: "a b c", n: 5, want: "a b c"},
		{name: "exactly at limit unchanged", text: "a b c", n: 3, want: "a b c"},
		{name: "over limit cut", text: "a b c d e", n: 3, want: "a b c"},
		{name: "collapses whitespace only when cut", text: "a  b   c d", n: 2, want: "a b"},
		{name: "empty", text: "", n: 3, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateTokens(tt.text, tt.n); got != tt.want {
				t.Errorf("truncateTokens(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
			}
		})
	}
}
