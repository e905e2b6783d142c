package http

import (
	"time"

	"lcsec_server/core/domain"
	"lcsec_server/core/port/out"
	"lcsec_server/core/service/predict"
	"lcsec_server/pkg/apperr"
	"lcsec_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ReviewHandler exposes the stored prediction log for operators. All
// routes are JWT protected and read only.
type ReviewHandler struct {
	repo    out.PredictionRepository
	service *predict.Service
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(repo out.PredictionRepository, service *predict.Service) *ReviewHandler {
	return &ReviewHandler{
		repo:    repo,
		service: service,
	}
}

// Register registers review routes on a protected router group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("/predictions", h.ListPredictions)
	router.Get("/stats", h.Stats)
}

type predictionItem struct {
	Message    string  `json:"message"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
	Timestamp  string  `json:"timestamp"`
}

// ListPredictions returns a page of stored predictions for one model
// namespace, newest first.
func (h *ReviewHandler) ListPredictions(c *fiber.Ctx) error {
	model, err := domain.ParseModelKind(c.Query("model", string(domain.ModelBert)))
	if err != nil {
		return apperr.BadRequest(err.Error())
	}

	page := response.GetPagination(c, 20, 100)

	predictions, err := h.repo.List(c.UserContext(), model, page.Limit, page.Offset)
	if err != nil {
		return apperr.DedupStoreError("list", err)
	}

	total, err := h.repo.Count(c.UserContext(), model)
	if err != nil {
		return apperr.DedupStoreError("count", err)
	}

	items := make([]predictionItem, 0, len(predictions))
	for _, p := range predictions {
		items = append(items, predictionItem{
			Message:    p.Message,
			Prediction: string(p.Label),
			Confidence: p.Confidence,
			Model:      string(p.Model),
			Timestamp:  p.Timestamp.Format(time.RFC3339),
		})
	}

	return response.OKWithMeta(c, items, &response.Meta{
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: int64(page.Offset+len(items)) < total,
	})
}

// Stats returns per-model record counts and classification latency.
func (h *ReviewHandler) Stats(c *fiber.Ctx) error {
	counts := make(map[string]int64)
	for _, model := range []domain.ModelKind{domain.ModelBert, domain.ModelNaiveBayes} {
		n, err := h.repo.Count(c.UserContext(), model)
		if err != nil {
			return apperr.DedupStoreError("count", err)
		}
		counts[string(model)] = n
	}

	latency := make(map[string]map[string]any)
	for model, stats := range h.service.LatencyStats() {
		latency[model] = stats.ToMap()
	}

	return response.OK(c, fiber.Map{
		"predictions": counts,
		"latency":     latency,
	})
}
