package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"lcsec_server/core/domain"
	"lcsec_server/core/service/predict"
	"lcsec_server/infra/middleware"
	"lcsec_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type stubPredictor struct {
	lastMessage string
	lastModel   domain.ModelKind
	result      *predict.Result
	err         error
}

func (s *stubPredictor) Predict(_ context.Context, message string, model domain.ModelKind) (*predict.Result, error) {
	s.lastMessage = message
	s.lastModel = model
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestApp(predictor Predictor) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestID())
	NewPredictHandler(predictor).Register(app)
	return app
}

func postPredict(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest("POST", "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("parse body %q: %v", raw, err)
	}
	return resp.StatusCode, parsed
}

func TestPredictEndpointResponseShape(t *testing.T) {
	stub := &stubPredictor{result: &predict.Result{Label: domain.LabelSpam, Confidence: 87.65}}
	app := newTestApp(stub)

	status, body := postPredict(t, app, `{"message":"Win a free prize now!"}`)

	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["prediction"] != "spam" {
		t.Errorf("prediction = %v, want spam", body["prediction"])
	}
	if body["confidence"] != 87.65 {
		t.Errorf("confidence = %v, want 87.65", body["confidence"])
	}
	if len(body) != 2 {
		t.Errorf("response has %d fields %v, want exactly prediction and confidence", len(body), body)
	}
	if stub.lastMessage != "Win a free prize now!" {
		t.Errorf("message passed through = %q", stub.lastMessage)
	}
}

func TestPredictEndpointModelSelection(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.ModelKind
	}{
		{name: "default is transformer", body: `{"message":"hello"}`, want: domain.ModelBert},
		{name: "explicit true is transformer", body: `{"message":"hello","use_bert":true}`, want: domain.ModelBert},
		{name: "explicit false is lexical", body: `{"message":"hello","use_bert":false}`, want: domain.ModelNaiveBayes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubPredictor{result: &predict.Result{Label: domain.LabelHam, Confidence: 50}}
			app := newTestApp(stub)

			if status, _ := postPredict(t, app, tt.body); status != 200 {
				t.Fatalf("status = %d, want 200", status)
			}
			if stub.lastModel != tt.want {
				t.Errorf("model = %q, want %q", stub.lastModel, tt.want)
			}
		})
	}
}

func TestPredictEndpointValidationError(t *testing.T) {
	// The real service errors flow through the handler untouched; use it
	// with a repo that must never be reached.
	stub := &stubPredictor{err: errors.New("should not matter")}
	app := newTestApp(predictorRejectingEmpty{stub})

	status, body := postPredict(t, app, `{"message":"  "}`)

	if status != 422 {
		t.Fatalf("status = %d, want 422", status)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("error field missing: %v", body)
	}
	if errObj["code"] != "INVALID_INPUT" {
		t.Errorf("error code = %v, want INVALID_INPUT", errObj["code"])
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Error("request_id missing from error envelope")
	}
}

// predictorRejectingEmpty applies the service's validation rule so the
// handler test exercises the full error envelope without a real backend.
type predictorRejectingEmpty struct{ next Predictor }

func (p predictorRejectingEmpty) Predict(ctx context.Context, message string, model domain.ModelKind) (*predict.Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperr.InvalidInput("message must not be empty")
	}
	return p.next.Predict(ctx, message, model)
}

func TestPredictEndpointMalformedBody(t *testing.T) {
	stub := &stubPredictor{result: &predict.Result{Label: domain.LabelHam, Confidence: 50}}
	app := newTestApp(stub)

	status, body := postPredict(t, app, `{not json`)

	if status != 400 {
		t.Fatalf("status = %d, want 400", status)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestPredictEndpointBackendFailureStaysGeneric(t *testing.T) {
	cause := errors.New("mongodb: socket was unexpectedly closed at 10.0.0.3:27017")
	stub := &stubPredictor{err: apperr.DedupStoreError("insert", cause)}
	app := newTestApp(stub)

	status, body := postPredict(t, app, `{"message":"hello"}`)

	if status != 500 {
		t.Fatalf("status = %d, want 500", status)
	}
	raw, _ := json.Marshal(body)
	if strings.Contains(string(raw), "10.0.0.3") || strings.Contains(string(raw), "mongodb") {
		t.Errorf("backend details leaked to the client: %s", raw)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("error field missing: %v", body)
	}
	if errObj["message"] != "prediction failed" {
		t.Errorf("error message = %v, want the generic text", errObj["message"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(nil, nil).Register(app)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["timestamp"] == nil {
		t.Error("timestamp missing")
	}
}

func TestWelcomeEndpoint(t *testing.T) {
	app := fiber.New()
	NewStaticHandler("./does-not-exist").Register(app)

	req := httptest.NewRequest("GET", "/api", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "Welcome to the Scam/Ham Prediction API" {
		t.Errorf("message = %v", body["message"])
	}
}
