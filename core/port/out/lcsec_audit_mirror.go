package out

import (
	"context"
	"fmt"

	"lcsec_server/core/domain"
)

// =============================================================================
// AuditMirror (Google Sheets - best-effort review log)
// =============================================================================

// AuditMirror is the outbound port for the secondary review log.
// It is best-effort only: the dedup store remains the source of truth,
// and callers must never let a mirror failure affect the response.
type AuditMirror interface {
	// Append writes one row [message, label, confidence, model, timestamp]
	// to the external sink. A failed append is lost permanently.
	Append(ctx context.Context, prediction *domain.Prediction) error
}

// MirrorError wraps a mirror sink failure so the orchestrator can log and
// discard it as an enumerable failure kind instead of an untyped catch-all.
type MirrorError struct {
	Sink string
	Err  error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("audit mirror %s: %v", e.Sink, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}
