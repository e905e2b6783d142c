// Package domain contains the core domain model for the prediction service.
package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Label
// =============================================================================

// Label is the two-valued classification outcome.
type Label string

const (
	LabelSpam Label = "spam"
	LabelHam  Label = "ham"
)

// Valid reports whether the label is one of the two known values.
func (l Label) Valid() bool {
	return l == LabelSpam || l == LabelHam
}

// =============================================================================
// Model Kind
// =============================================================================

// ModelKind identifies which classifier backend produced a prediction.
// Each kind owns a disjoint storage namespace; adding a backend is a
// variant addition here, not a new conditional in the orchestrator.
type ModelKind string

const (
	ModelBert       ModelKind = "bert"
	ModelNaiveBayes ModelKind = "naive_bayes"
)

// Valid reports whether the kind is a known backend.
func (m ModelKind) Valid() bool {
	return m == ModelBert || m == ModelNaiveBayes
}

// ParseModelKind parses a stored model name into a ModelKind.
func ParseModelKind(s string) (ModelKind, error) {
	kind := ModelKind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown model kind: %q", s)
	}
	return kind, nil
}

// =============================================================================
// Prediction Record
// =============================================================================

// Prediction is a single classification outcome for a message.
// Records are created once by the orchestrator and never mutated;
// Message is the natural dedup key within one model's namespace.
type Prediction struct {
	Message    string
	Label      Label
	Confidence float64 // [0, 1], rounded to 4 decimals
	Model      ModelKind
	Timestamp  time.Time
}

// NewPrediction builds a prediction record stamped with the current time.
func NewPrediction(message string, label Label, confidence float64, model ModelKind) *Prediction {
	return &Prediction{
		Message:    message,
		Label:      label,
		Confidence: confidence,
		Model:      model,
		Timestamp:  time.Now().UTC(),
	}
}

// ConfidencePercent returns the confidence rendered as a percentage in [0, 100].
func (p *Prediction) ConfidencePercent() float64 {
	return p.Confidence * 100
}
