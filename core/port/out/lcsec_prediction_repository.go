package out

import (
	"context"

	"lcsec_server/core/domain"
)

// =============================================================================
// PredictionRepository (MongoDB - dedup store, source of truth)
// =============================================================================

// PredictionRepository is the outbound port for persisted predictions.
// Each model kind maps to a disjoint namespace; the store itself enforces
// no uniqueness — duplicate suppression is the orchestrator's
// check-then-insert protocol.
type PredictionRepository interface {
	// Exists reports whether a record with exactly this message text is
	// already persisted in the model's namespace. Case-sensitive, no
	// normalization.
	Exists(ctx context.Context, model domain.ModelKind, message string) (bool, error)

	// Insert persists a new record. Records are immutable once written.
	Insert(ctx context.Context, prediction *domain.Prediction) error

	// Query operations (review surface)
	List(ctx context.Context, model domain.ModelKind, limit, offset int) ([]*domain.Prediction, error)
	Count(ctx context.Context, model domain.ModelKind) (int64, error)
}
