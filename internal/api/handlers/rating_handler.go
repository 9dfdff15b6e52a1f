package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	rediscache "github.com/JinxX404/BookNest-fullstack/internal/cache/redis"
	"github.com/JinxX404/BookNest-fullstack/internal/events"
	"github.com/JinxX404/BookNest-fullstack/internal/metrics"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/models"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/sqlite"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

type RatingHandler struct {
	db        *sqlite.Client
	publisher events.Publisher
	cache     *rediscache.Client
	scaleMin  float64
	scaleMax  float64
}

func NewRatingHandler(db *sqlite.Client, publisher events.Publisher, cache *rediscache.Client, scaleMin, scaleMax float64) *RatingHandler {
	return &RatingHandler{
		db:        db,
		publisher: publisher,
		cache:     cache,
		scaleMin:  scaleMin,
		scaleMax:  scaleMax,
	}
}

// UpsertRating writes a rating and fires the rating-created event that the
// retraining trigger listens on.
func (h *RatingHandler) UpsertRating(c *fiber.Ctx) error {
	var req struct {
		UserID int64   `json:"user_id"`
		ISBN13 string  `json:"isbn13"`
		Score  float64 `json:"score"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID <= 0 || req.ISBN13 == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and isbn13 are required",
		})
	}
	if req.Score < h.scaleMin || req.Score > h.scaleMax {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "score is out of range",
		})
	}

	count, created, err := h.db.UpsertRating(c.Context(), &models.Rating{
		UserID: req.UserID,
		ISBN13: req.ISBN13,
		Score:  req.Score,
	})
	if err != nil {
		logger.Error("Failed to store rating", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store rating",
		})
	}
	metrics.RatingsIngested.Inc()

	// A new rating changes what must be excluded from the user's lists.
	if h.cache != nil {
		if err := h.cache.InvalidateUser(c.Context(), req.UserID); err != nil {
			logger.Warn("Failed to invalidate recommendation cache", zap.Error(err))
		}
	}

	if err := h.publisher.PublishRatingEvent(c.Context(), events.RatingEvent{
		UserID:      req.UserID,
		RatingCount: count,
		Created:     created,
	}); err != nil {
		logger.Error("Failed to publish rating event",
			zap.Int64("user_id", req.UserID),
			zap.Error(err),
		)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user_id":      req.UserID,
		"isbn13":       req.ISBN13,
		"score":        req.Score,
		"rating_count": count,
		"created":      created,
	})
}
