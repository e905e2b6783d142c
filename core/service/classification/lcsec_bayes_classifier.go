// Package classification implements the in-process lexical spam classifier.
//
// The model is a JSON export of a fitted scikit-learn style text classifier:
// a fixed vocabulary mapping tokens to feature indices, plus either
// multinomial naive bayes parameters (class log priors + per-class feature
// log probabilities, which yield a calibrated posterior) or plain linear
// weights (sign of the margin decides the class, no calibrated probability).
package classification

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"

	"lcsec_server/core/domain"
	"lcsec_server/core/port/out"

	"github.com/goccy/go-json"
)

const (
	// Model export kinds
	exportMultinomialNB = "multinomial_nb"
	exportLinear        = "linear"

	// Long input is truncated, never rejected
	maxTokens = 4096
)

// Model is the on-disk classifier export.
type Model struct {
	Kind       string         `json:"kind"`
	Classes    []string       `json:"classes"` // exactly two labels, index order fixed by the export
	Vocabulary map[string]int `json:"vocabulary"`

	// Multinomial naive bayes parameters
	ClassLogPrior  []float64   `json:"class_log_prior,omitempty"`
	FeatureLogProb [][]float64 `json:"feature_log_prob,omitempty"` // [class][feature]

	// Linear model parameters (decision function on the second class)
	Coef      []float64 `json:"coef,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`
}

// Classifier is the lexical (naive bayes) variant of the prediction backend.
type Classifier struct {
	model  *Model
	labels [2]domain.Label
}

// NewClassifier loads a model export from disk.
func NewClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}

	return newFromModel(&model)
}

func newFromModel(m *Model) (*Classifier, error) {
	if len(m.Classes) != 2 {
		return nil, fmt.Errorf("model must have exactly 2 classes, got %d", len(m.Classes))
	}

	var labels [2]domain.Label
	for i, class := range m.Classes {
		label := domain.Label(class)
		if !label.Valid() {
			return nil, fmt.Errorf("unknown class label: %q", class)
		}
		labels[i] = label
	}

	if len(m.Vocabulary) == 0 {
		return nil, fmt.Errorf("model vocabulary is empty")
	}

	switch m.Kind {
	case exportMultinomialNB:
		if len(m.ClassLogPrior) != 2 || len(m.FeatureLogProb) != 2 {
			return nil, fmt.Errorf("naive bayes model requires priors and log probabilities for both classes")
		}
		for c, probs := range m.FeatureLogProb {
			if len(probs) != len(m.Vocabulary) {
				return nil, fmt.Errorf("class %d has %d feature log probs, vocabulary has %d", c, len(probs), len(m.Vocabulary))
			}
		}
	case exportLinear:
		if len(m.Coef) != len(m.Vocabulary) {
			return nil, fmt.Errorf("linear model has %d coefficients, vocabulary has %d", len(m.Coef), len(m.Vocabulary))
		}
	default:
		return nil, fmt.Errorf("unknown model kind: %q", m.Kind)
	}

	return &Classifier{model: m, labels: labels}, nil
}

// Kind returns the backend identity.
func (c *Classifier) Kind() domain.ModelKind {
	return domain.ModelNaiveBayes
}

// Classify assigns a label to the text. For the naive bayes export the
// confidence is the posterior probability of the predicted class; the
// linear export carries no calibrated probability and returns nil.
func (c *Classifier) Classify(ctx context.Context, text string) (*out.Classification, error) {
	counts := c.featureCounts(text)

	switch c.model.Kind {
	case exportMultinomialNB:
		return c.classifyBayes(counts), nil
	case exportLinear:
		return c.classifyLinear(counts), nil
	default:
		// Unreachable: kind is validated at load time
		return nil, fmt.Errorf("unknown model kind: %q", c.model.Kind)
	}
}

// featureCounts tokenizes the text and maps it onto the model vocabulary.
// Tokens outside the vocabulary are ignored; input beyond maxTokens is cut.
func (c *Classifier) featureCounts(text string) map[int]int {
	tokens := tokenize(text)
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	counts := make(map[int]int)
	for _, token := range tokens {
		if idx, ok := c.model.Vocabulary[token]; ok {
			counts[idx]++
		}
	}
	return counts
}

func (c *Classifier) classifyBayes(counts map[int]int) *out.Classification {
	scores := [2]float64{c.model.ClassLogPrior[0], c.model.ClassLogPrior[1]}
	for idx, count := range counts {
		scores[0] += float64(count) * c.model.FeatureLogProb[0][idx]
		scores[1] += float64(count) * c.model.FeatureLogProb[1][idx]
	}

	best := 0
	if scores[1] > scores[0] {
		best = 1
	}

	posterior := softmax2(scores[0], scores[1])
	confidence := roundConfidence(posterior[best])

	return &out.Classification{
		Label:      c.labels[best],
		Confidence: &confidence,
	}
}

func (c *Classifier) classifyLinear(counts map[int]int) *out.Classification {
	margin := c.model.Intercept
	for idx, count := range counts {
		margin += float64(count) * c.model.Coef[idx]
	}

	// Positive margin selects the second class, matching the export's
	// decision function convention
	best := 0
	if margin > 0 {
		best = 1
	}

	return &out.Classification{Label: c.labels[best]}
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// softmax2 computes a numerically stable softmax over two log scores.
func softmax2(a, b float64) [2]float64 {
	maxVal := a
	if b > maxVal {
		maxVal = b
	}

	ea := math.Exp(a - maxVal)
	eb := math.Exp(b - maxVal)
	sum := ea + eb

	return [2]float64{ea / sum, eb / sum}
}

// roundConfidence rounds to 4 decimal digits before the value leaves the adapter.
func roundConfidence(v float64) float64 {
	return math.Round(v*10000) / 10000
}
