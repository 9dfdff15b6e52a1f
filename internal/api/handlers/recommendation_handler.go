package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/jobs"
	"github.com/JinxX404/BookNest-fullstack/internal/recsys"
	"github.com/JinxX404/BookNest-fullstack/internal/registry"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/sqlite"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

type RecommendationHandler struct {
	svc        *recsys.Service
	db         *sqlite.Client
	pool       *jobs.Pool
	minRatings int
}

func NewRecommendationHandler(svc *recsys.Service, db *sqlite.Client, pool *jobs.Pool, minRatings int) *RecommendationHandler {
	return &RecommendationHandler{svc: svc, db: db, pool: pool, minRatings: minRatings}
}

// GetRecommendations serves top-n for ?user_id=. Unknown users still get a
// list (popularity fallback); only a missing trained model is a 404.
func (h *RecommendationHandler) GetRecommendations(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id must be a positive integer",
		})
	}

	n := c.QueryInt("n", 0)
	modelID := c.Query("model_id")

	recs, err := h.svc.GetRecommendations(c.Context(), userID, n, modelID)
	if err != nil {
		if errors.Is(err, registry.ErrModelNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No trained model available",
			})
		}
		logger.Error("Failed to serve recommendations",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate recommendations",
		})
	}

	items := make([]fiber.Map, 0, len(recs))
	for _, r := range recs {
		items = append(items, fiber.Map{
			"isbn13": r.ISBN13,
			"score":  r.Score,
		})
	}

	modelUsed := modelID
	if len(recs) > 0 {
		modelUsed = recs[0].ModelID
	}
	return c.JSON(fiber.Map{
		"user_id":         userID,
		"model_id":        modelUsed,
		"recommendations": items,
	})
}

// GetStoredRecommendations returns the last persisted batch for a user
// without recomputing anything.
func (h *RecommendationHandler) GetStoredRecommendations(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
	if err != nil || userID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id must be a positive integer",
		})
	}

	recs, err := h.db.GetUserRecommendations(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to read stored recommendations",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read stored recommendations",
		})
	}

	items := make([]fiber.Map, 0, len(recs))
	for _, r := range recs {
		items = append(items, fiber.Map{
			"isbn13":       r.ISBN13,
			"score":        r.Score,
			"model_id":     r.ModelID,
			"generated_at": r.GeneratedAt.Unix(),
		})
	}
	return c.JSON(fiber.Map{
		"user_id":         userID,
		"recommendations": items,
	})
}

// GenerateRecommendations schedules a bulk regeneration job covering every
// user in the trained population.
func (h *RecommendationHandler) GenerateRecommendations(c *fiber.Ctx) error {
	var req struct {
		N       int    `json:"n"`
		ModelID string `json:"model_id"`
	}
	// Body is optional; defaults cover the common case.
	_ = c.BodyParser(&req)

	n := req.N
	modelID := req.ModelID
	jobID, err := h.pool.Submit("generate_all", func(ctx context.Context) error {
		_, err := h.svc.GenerateForAllUsers(ctx, n, modelID, h.minRatings)
		return err
	})
	if err != nil {
		logger.Error("Failed to schedule generation job", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Job queue is full, try again later",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID})
}
