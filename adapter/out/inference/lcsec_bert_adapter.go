// Package inference implements the transformer classifier adapter.
//
// The BERT sequence-classification model runs behind a serving endpoint;
// this adapter sends the (truncated) text, receives the two raw logits and
// turns them into a label plus softmax confidence. The endpoint is guarded
// by a circuit breaker so a dead model server fails fast instead of tying
// up request handlers.
package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"lcsec_server/core/domain"
	"lcsec_server/core/port/out"
	"lcsec_server/pkg/httputil"
	"lcsec_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
)

// maxSequenceTokens caps the input at the model's maximum sequence length.
// The tokenizer on the serving side truncates wordpieces as well; cutting
// whitespace tokens here keeps arbitrarily long messages off the wire.
const maxSequenceTokens = 512

// Logit index order of the fine-tuned model: [ham, spam].
var logitLabels = [2]domain.Label{domain.LabelHam, domain.LabelSpam}

// BertAdapter implements out.Classifier against a BERT serving endpoint.
type BertAdapter struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// BertConfig holds transformer backend configuration.
type BertConfig struct {
	Endpoint   string
	TimeoutSec int
}

// NewBertAdapter creates a new transformer classifier adapter.
func NewBertAdapter(cfg *BertConfig) *BertAdapter {
	client := httputil.InferenceClient()
	if cfg.TimeoutSec > 0 {
		clientCfg := httputil.InferenceClientConfig()
		clientCfg.ResponseTimeout = time.Duration(cfg.TimeoutSec) * time.Second
		client = httputil.NewOptimizedClient(clientCfg)
	}

	cbSettings := gobreaker.Settings{
		Name:        "bert-serving",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &BertAdapter{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   client,
		cb:       gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// Kind returns the backend identity.
func (a *BertAdapter) Kind() domain.ModelKind {
	return domain.ModelBert
}

// classifyRequest is the serving endpoint's wire format.
type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Logits []float64 `json:"logits"`
}

// Classify sends the text to the serving endpoint and converts the two
// logits into a label with softmax confidence rounded to 4 decimals.
func (a *BertAdapter) Classify(ctx context.Context, text string) (*out.Classification, error) {
	payload, err := json.Marshal(classifyRequest{Text: truncateTokens(text, maxSequenceTokens)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classify request: %w", err)
	}

	var logits []float64
	_, err = a.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/v1/classify", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("serving endpoint unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("serving endpoint returned status %d", resp.StatusCode)
		}

		var body classifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to decode serving response: %w", err)
		}
		if len(body.Logits) != 2 {
			return nil, fmt.Errorf("expected 2 logits, got %d", len(body.Logits))
		}

		logits = body.Logits
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	probs := softmax(logits)
	best := 0
	if probs[1] > probs[0] {
		best = 1
	}
	confidence := roundConfidence(probs[best])

	return &out.Classification{
		Label:      logitLabels[best],
		Confidence: &confidence,
	}, nil
}

// truncateTokens cuts the text to at most n whitespace tokens.
func truncateTokens(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) <= n {
		return text
	}
	return strings.Join(fields[:n], " ")
}

// softmax computes softmax with numerical stability.
func softmax(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}

	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	result := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		result[i] = math.Exp(v - maxVal)
		sum += result[i]
	}

	if sum > 0 {
		for i := range result {
			result[i] /= sum
		}
	}

	return result
}

// roundConfidence rounds to 4 decimal digits before the value leaves the adapter.
func roundConfidence(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Interface compliance
var _ out.Classifier = (*BertAdapter)(nil)
