// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"lcsec_server/core/domain"
)

// =============================================================================
// Classifier (spam/ham backends)
// =============================================================================

// Classification is the raw result from a classifier backend.
type Classification struct {
	Label domain.Label

	// Confidence is the backend's probability for the predicted label,
	// in [0, 1] rounded to 4 decimals. Nil when the backend exposes no
	// calibrated probability; the orchestrator substitutes a neutral
	// default in that case.
	Confidence *float64
}

// Classifier is the outbound port implemented by every model backend.
// Implementations must tolerate arbitrarily long input by truncating,
// never by failing. Empty input is rejected upstream by the orchestrator.
type Classifier interface {
	// Kind returns the backend identity (also its storage namespace).
	Kind() domain.ModelKind

	// Classify assigns a label and optional confidence to the text.
	Classify(ctx context.Context, text string) (*Classification, error)
}
