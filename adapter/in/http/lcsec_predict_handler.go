// Package http contains the inbound HTTP handlers.
package http

import (
	"context"

	"lcsec_server/core/domain"
	"lcsec_server/core/service/predict"
	"lcsec_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// Predictor is the slice of the prediction service the handler needs.
type Predictor interface {
	Predict(ctx context.Context, message string, model domain.ModelKind) (*predict.Result, error)
}

// PredictHandler handles classification requests.
type PredictHandler struct {
	predictor Predictor
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(predictor Predictor) *PredictHandler {
	return &PredictHandler{
		predictor: predictor,
	}
}

// Register registers the predict route.
func (h *PredictHandler) Register(app *fiber.App, extra ...fiber.Handler) {
	handlers := append(extra, h.Predict)
	app.Post("/predict", handlers...)
}

// predictRequest is the classification request body. The model flag is a
// pointer so an absent field defaults to the transformer backend while an
// explicit false selects the lexical one.
type predictRequest struct {
	Message string `json:"message"`
	UseBert *bool  `json:"use_bert"`
}

type predictResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Predict classifies a message and returns the label with a confidence
// percentage. Novel and repeated messages get an identical response shape.
func (h *PredictHandler) Predict(c *fiber.Ctx) error {
	var req predictRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	model := domain.ModelBert
	if req.UseBert != nil && !*req.UseBert {
		model = domain.ModelNaiveBayes
	}

	result, err := h.predictor.Predict(c.UserContext(), req.Message, model)
	if err != nil {
		return err
	}

	return c.JSON(predictResponse{
		Prediction: string(result.Label),
		Confidence: result.Confidence,
	})
}
