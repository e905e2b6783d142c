package predict

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"lcsec_server/core/domain"
	"lcsec_server/core/port/out"
	"lcsec_server/pkg/apperr"
	"lcsec_server/pkg/metrics"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeClassifier struct {
	kind       domain.ModelKind
	label      domain.Label
	confidence *float64
	err        error
	calls      atomic.Int64
}

func (f *fakeClassifier) Kind() domain.ModelKind { return f.kind }

func (f *fakeClassifier) Classify(_ context.Context, _ string) (*out.Classification, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &out.Classification{Label: f.label, Confidence: f.confidence}, nil
}

type memoryRepo struct {
	mu        sync.Mutex
	records   map[domain.ModelKind]map[string]*domain.Prediction
	inserts   int
	existsErr error
	insertErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[domain.ModelKind]map[string]*domain.Prediction{}}
}

func (r *memoryRepo) Exists(_ context.Context, model domain.ModelKind, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	_, ok := r.records[model][message]
	return ok, nil
}

func (r *memoryRepo) Insert(_ context.Context, p *domain.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if r.records[p.Model] == nil {
		r.records[p.Model] = map[string]*domain.Prediction{}
	}
	r.records[p.Model][p.Message] = p
	r.inserts++
	return nil
}

func (r *memoryRepo) List(_ context.Context, model domain.ModelKind, limit, offset int) ([]*domain.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Prediction
	for _, p := range r.records[model] {
		result = append(result, p)
	}
	return result, nil
}

func (r *memoryRepo) Count(_ context.Context, model domain.ModelKind) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.records[model])), nil
}

func (r *memoryRepo) insertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

func (r *memoryRepo) stored(model domain.ModelKind, message string) *domain.Prediction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[model][message]
}

type fakeMirror struct {
	mu    sync.Mutex
	rows  []*domain.Prediction
	err   error
	calls int
}

func (m *fakeMirror) Append(_ context.Context, p *domain.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, p)
	return nil
}

func (m *fakeMirror) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func floatPtr(v float64) *float64 { return &v }

func newTestService(repo *memoryRepo, mirror out.AuditMirror, classifiers ...out.Classifier) *Service {
	return NewService(repo, mirror, metrics.NewLatencyRegistry(64), classifiers...)
}

// ============================================================================
// Tests
// ============================================================================

func TestPredictReturnsLabelAndPercentConfidence(t *testing.T) {
	tests := []struct {
		name           string
		label          domain.Label
		confidence     *float64
		wantLabel      domain.Label
		wantConfidence float64
	}{
		{
			name:           "spam with calibrated probability",
			label:          domain.LabelSpam,
			confidence:     floatPtr(0.9876),
			wantLabel:      domain.LabelSpam,
			wantConfidence: 98.76,
		},
		{
			name:           "ham with calibrated probability",
			label:          domain.LabelHam,
			confidence:     floatPtr(0.61),
			wantLabel:      domain.LabelHam,
			wantConfidence: 61.0,
		},
		{
			name:           "no calibrated probability falls back to neutral",
			label:          domain.LabelSpam,
			confidence:     nil,
			wantLabel:      domain.LabelSpam,
			wantConfidence: 50.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clf := &fakeClassifier{kind: domain.ModelBert, label: tt.label, confidence: tt.confidence}
			svc := newTestService(newMemoryRepo(), nil, clf)

			result, err := svc.Predict(context.Background(), "Win a free prize now!", domain.ModelBert)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if result.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", result.Label, tt.wantLabel)
			}
			if result.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", result.Confidence, tt.wantConfidence)
			}
			if result.Confidence < 0 || result.Confidence > 100 {
				t.Errorf("Confidence %v outside [0, 100]", result.Confidence)
			}
		})
	}
}

func TestPredictEmptyMessageHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "empty string", message: ""},
		{name: "whitespace only", message: "   \t\n  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clf := &fakeClassifier{kind: domain.ModelBert, label: domain.LabelHam, confidence: floatPtr(0.7)}
			repo := newMemoryRepo()
			mirror := &fakeMirror{}
			svc := newTestService(repo, mirror, clf)

			_, err := svc.Predict(context.Background(), tt.message, domain.ModelBert)

			if !apperr.IsAppError(err) {
				t.Fatalf("Predict() error = %v, want AppError", err)
			}
			appErr := apperr.AsAppError(err)
			if appErr.Status != 422 {
				t.Errorf("Status = %d, want 422", appErr.Status)
			}
			if n := clf.calls.Load(); n != 0 {
				t.Errorf("classifier called %d times, want 0", n)
			}
			if repo.insertCount() != 0 {
				t.Errorf("inserts = %d, want 0", repo.insertCount())
			}
			if mirror.callCount() != 0 {
				t.Errorf("mirror appends = %d, want 0", mirror.callCount())
			}
		})
	}
}

func TestPredictIsDeterministicForSameInput(t *testing.T) {
	clf := &fakeClassifier{kind: domain.ModelNaiveBayes, label: domain.LabelSpam, confidence: floatPtr(0.88)}
	svc := newTestService(newMemoryRepo(), nil, clf)

	first, err := svc.Predict(context.Background(), "limited offer, act today", domain.ModelNaiveBayes)
	if err != nil {
		t.Fatalf("first Predict() error = %v", err)
	}
	second, err := svc.Predict(context.Background(), "limited offer, act today", domain.ModelNaiveBayes)
	if err != nil {
		t.Fatalf("second Predict() error = %v", err)
	}

	if first.Label != second.Label || first.Confidence != second.Confidence {
		t.Errorf("repeated calls diverged: (%q, %v) vs (%q, %v)",
			first.Label, first.Confidence, second.Label, second.Confidence)
	}
}

func TestPredictSuppressesDuplicateInsert(t *testing.T) {
	clf := &fakeClassifier{kind: domain.ModelBert, label: domain.LabelSpam, confidence: floatPtr(0.95)}
	repo := newMemoryRepo()
	mirror := &fakeMirror{}
	svc := newTestService(repo, mirror, clf)

	for i := 0; i < 2; i++ {
		result, err := svc.Predict(context.Background(), "Win a free prize now!", domain.ModelBert)
		if err != nil {
			t.Fatalf("call %d: Predict() error = %v", i+1, err)
		}
		if result.Label != domain.LabelSpam || result.Confidence != 95.0 {
			t.Errorf("call %d: got (%q, %v), want (spam, 95)", i+1, result.Label, result.Confidence)
		}
	}

	if repo.insertCount() != 1 {
		t.Errorf("inserts = %d, want exactly 1 for a repeated message", repo.insertCount())
	}
	if mirror.callCount() != 1 {
		t.Errorf("mirror appends = %d, want exactly 1 for a repeated message", mirror.callCount())
	}
}

func TestPredictDedupIsScopedPerModel(t *testing.T) {
	bert := &fakeClassifier{kind: domain.ModelBert, label: domain.LabelSpam, confidence: floatPtr(0.9)}
	bayes := &fakeClassifier{kind: domain.ModelNaiveBayes, label: domain.LabelSpam, confidence: floatPtr(0.8)}
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, bert, bayes)

	if _, err := svc.Predict(context.Background(), "same message", domain.ModelBert); err != nil {
		t.Fatalf("bert Predict() error = %v", err)
	}
	if _, err := svc.Predict(context.Background(), "same message", domain.ModelNaiveBayes); err != nil {
		t.Fatalf("bayes Predict() error = %v", err)
	}

	if repo.insertCount() != 2 {
		t.Errorf("inserts = %d, want 2: each model namespace stores the message once", repo.insertCount())
	}
	if repo.stored(domain.ModelBert, "same message") == nil {
		t.Error("bert namespace missing the record")
	}
	if repo.stored(domain.ModelNaiveBayes, "same message") == nil {
		t.Error("naive bayes namespace missing the record")
	}
}

func TestPredictStoresFractionalConfidence(t *testing.T) {
	clf := &fakeClassifier{kind: domain.ModelBert, label: domain.LabelHam, confidence: floatPtr(0.7321)}
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, clf)

	if _, err := svc.Predict(context.Background(), "see you at lunch", domain.ModelBert); err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	record := repo.stored(domain.ModelBert, "see you at lunch")
	if record == nil {
		t.Fatal("record not stored")
	}
	if record.Confidence != 0.7321 {
		t.Errorf("stored confidence = %v, want the 0-1 value 0.7321", record.Confidence)
	}
	if record.Label != domain.LabelHam {
		t.Errorf("stored label = %q, want ham", record.Label)
	}
	if record.Timestamp.IsZero() {
		t.Error("stored timestamp is zero")
	}
}

func TestPredictMirrorFailureDoesNotAffectOutcome(t *testing.T) {
	clf := &fakeClassifier{kind: domain.ModelBert, label: domain.LabelSpam, confidence: floatPtr(0.99)}
	repo := newMemoryRepo()
	mirror := &fakeMirror{err: &out.MirrorError{Sink: "google-sheets", Err: errors.New("quota exceeded")}}
	svc := newTestService(repo, mirror, clf)

	result, err := svc.Predict(context.Background(), "claim your reward", domain.ModelBert)
	if err != nil {
		t.Fatalf("Predict() error = %v, mirror failure must not surface", err)
	}
	if result.Label != domain.LabelSpam || result.Confidence != 99.0 {
		t.Errorf("got (%q, %v), want (spam, 99)", result.Label, result.Confidence)
	}
	if repo.insertCount() != 1 {
		t.Errorf("inserts = %d, want 1: mirror failure must not undo persistence", repo.insertCount())
	}
}

func TestPredictNilMirrorIsSkipped(t *testing.T) {
	clf := &fakeClassifier{kind: domain.ModelNaiveBayes, label: domain.LabelHam, confidence: floatPtr(0.6)}
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, clf)

	if _, err := svc.Predict(context.Background(), "meeting moved to 3pm", domain.ModelNaiveBayes); err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if repo.insertCount() != 1 {
		t.Errorf("inserts = %d, want 1", repo.insertCount())
	}
}

func TestPredictClassifierFailure(t *testing.T) {
	clf := &fakeClassifier{kind: domain.ModelBert, err: errors.New("backend unreachable")}
	repo := newMemoryRepo()
	mirror := &fakeMirror{}
	svc := newTestService(repo, mirror, clf)

	_, err := svc.Predict(context.Background(), "anything", domain.ModelBert)

	if !apperr.IsAppError(err) {
		t.Fatalf("Predict() error = %v, want AppError", err)
	}
	appErr := apperr.AsAppError(err)
	if appErr.Code != apperr.CodeClassifierError {
		t.Errorf("Code = %q, want %q", appErr.Code, apperr.CodeClassifierError)
	}
	if appErr.Status != 500 {
		t.Errorf("Status = %d, want 500", appErr.Status)
	}
	if repo.insertCount() != 0 {
		t.Errorf("inserts = %d, want 0 after classifier failure", repo.insertCount())
	}
	if mirror.callCount() != 0 {
		t.Errorf("mirror appends = %d, want 0 after classifier failure", mirror.callCount())
	}
}

func TestPredictDedupStoreFailure(t *testing.T) {
	tests := []struct {
		name      string
		existsErr error
		insertErr error
	}{
		{name: "exists check fails", existsErr: errors.New("connection reset")},
		{name: "insert fails", insertErr: errors.New("write concern error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clf := &fakeClassifier{kind: domain.ModelBert, label: domain.LabelSpam, confidence: floatPtr(0.9)}
			repo := newMemoryRepo()
			repo.existsErr = tt.existsErr
			repo.insertErr = tt.insertErr
			mirror := &fakeMirror{}
			svc := newTestService(repo, mirror, clf)

			_, err := svc.Predict(context.Background(), "anything", domain.ModelBert)

			if !apperr.IsAppError(err) {
				t.Fatalf("Predict() error = %v, want AppError", err)
			}
			appErr := apperr.AsAppError(err)
			if appErr.Code != apperr.CodeDedupStoreError {
				t.Errorf("Code = %q, want %q", appErr.Code, apperr.CodeDedupStoreError)
			}
			if mirror.callCount() != 0 {
				t.Errorf("mirror appends = %d, want 0 when persistence path failed", mirror.callCount())
			}
		})
	}
}

func TestPredictUnknownModel(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.Predict(context.Background(), "anything", domain.ModelKind("llm"))

	if !apperr.IsAppError(err) {
		t.Fatalf("Predict() error = %v, want AppError", err)
	}
	appErr := apperr.AsAppError(err)
	if appErr.Code != apperr.CodeBadRequest {
		t.Errorf("Code = %q, want %q", appErr.Code, apperr.CodeBadRequest)
	}
}

func TestPredictConcurrentDuplicatesBoundedInserts(t *testing.T) {
	const workers = 16

	clf := &fakeClassifier{kind: domain.ModelBert, label: domain.LabelSpam, confidence: floatPtr(0.9)}
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, clf)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Predict(context.Background(), "concurrent duplicate", domain.ModelBert); err != nil {
				t.Errorf("Predict() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// The check-then-insert window allows duplicates under concurrency,
	// but inserts stay between 1 and the number of callers.
	inserts := repo.insertCount()
	if inserts < 1 || inserts > workers {
		t.Errorf("inserts = %d, want between 1 and %d", inserts, workers)
	}
}
