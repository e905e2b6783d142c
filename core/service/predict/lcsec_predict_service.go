// Package predict implements the prediction orchestrator.
//
// One request flows through a fixed sequence: validate, dispatch to the
// selected classifier backend, normalize confidence, dedup-check the model's
// namespace, and only for a novel message persist then best-effort mirror.
// The response shape is identical whether or not the message was novel;
// only the side effects differ.
package predict

import (
	"context"
	"errors"
	"strings"
	"time"

	"lcsec_server/core/domain"
	"lcsec_server/core/port/out"
	"lcsec_server/pkg/apperr"
	"lcsec_server/pkg/logger"
	"lcsec_server/pkg/metrics"
)

// neutralConfidence is substituted when a backend exposes no calibrated
// probability, so the response always carries a confidence value.
const neutralConfidence = 0.5

// Result is the orchestrator's response contract.
type Result struct {
	Label      domain.Label
	Confidence float64 // percentage in [0, 100]
}

// Service orchestrates classification, dedup and mirroring. All
// dependencies are explicit so tests can substitute in-memory fakes.
type Service struct {
	classifiers map[domain.ModelKind]out.Classifier
	repo        out.PredictionRepository
	mirror      out.AuditMirror // nil disables mirroring
	latency     *metrics.LatencyRegistry
}

// NewService creates a new prediction orchestrator.
func NewService(repo out.PredictionRepository, mirror out.AuditMirror, latency *metrics.LatencyRegistry, classifiers ...out.Classifier) *Service {
	byKind := make(map[domain.ModelKind]out.Classifier, len(classifiers))
	for _, c := range classifiers {
		byKind[c.Kind()] = c
	}

	return &Service{
		classifiers: byKind,
		repo:        repo,
		mirror:      mirror,
		latency:     latency,
	}
}

// Predict classifies the message with the selected backend and persists the
// outcome if the message is novel in that backend's namespace.
//
// Dedup is scoped per model namespace: the same message classified by both
// backends yields two independent records. Two concurrent requests with the
// identical message can both pass the dedup check and both insert; that
// race window is accepted, not eliminated.
func (s *Service) Predict(ctx context.Context, message string, model domain.ModelKind) (*Result, error) {
	// 1. Validate. Rejected input causes no side effects.
	if strings.TrimSpace(message) == "" {
		return nil, apperr.InvalidInput("message must not be empty")
	}

	classifier, ok := s.classifiers[model]
	if !ok {
		return nil, apperr.BadRequest("unknown model: " + string(model))
	}

	start := time.Now()

	// 2. Dispatch to the selected backend.
	classification, err := classifier.Classify(ctx, message)
	if err != nil {
		logger.WithModel(string(model)).WithError(err).Error("Classification failed")
		return nil, apperr.ClassifierError(string(model), err)
	}

	if s.latency != nil {
		s.latency.Record(string(model), time.Since(start))
	}

	// 3. Normalize confidence.
	confidence := neutralConfidence
	if classification.Confidence != nil {
		confidence = *classification.Confidence
	}

	// 4. Dedup check, scoped to the model's namespace. Exact string match
	// on the original message text, no normalization.
	exists, err := s.repo.Exists(ctx, model, message)
	if err != nil {
		logger.WithModel(string(model)).WithError(err).Error("Dedup check failed")
		return nil, apperr.DedupStoreError("exists", err)
	}

	// 5. Persist then mirror, only for a novel message. The mirror is not
	// attempted unless the insert was attempted, and a mirror failure
	// never undoes or blocks the persistence outcome.
	if !exists {
		record := domain.NewPrediction(message, classification.Label, confidence, model)

		if err := s.repo.Insert(ctx, record); err != nil {
			logger.WithModel(string(model)).WithError(err).Error("Prediction insert failed")
			return nil, apperr.DedupStoreError("insert", err)
		}

		s.mirrorRecord(ctx, record)
	}

	// 6. Respond, identically for novel and known messages.
	return &Result{
		Label:      classification.Label,
		Confidence: confidence * 100,
	}, nil
}

// mirrorRecord appends the record to the audit mirror, logging and
// discarding any failure.
func (s *Service) mirrorRecord(ctx context.Context, record *domain.Prediction) {
	if s.mirror == nil {
		return
	}

	if err := s.mirror.Append(ctx, record); err != nil {
		var mirrorErr *out.MirrorError
		if errors.As(err, &mirrorErr) {
			logger.WithModel(string(record.Model)).WithError(mirrorErr).Warn("Audit mirror append failed, row lost")
		} else {
			logger.WithModel(string(record.Model)).WithError(err).Warn("Audit mirror append failed with untyped error, row lost")
		}
	}
}

// LatencyStats returns per-model classification latency statistics.
func (s *Service) LatencyStats() map[string]metrics.LatencyStats {
	if s.latency == nil {
		return nil
	}
	return s.latency.AllStats()
}
