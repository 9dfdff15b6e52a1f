package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/jobs"
	"github.com/JinxX404/BookNest-fullstack/internal/recommender"
	"github.com/JinxX404/BookNest-fullstack/internal/recsys"
	"github.com/JinxX404/BookNest-fullstack/internal/registry"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

type ModelHandler struct {
	svc  *recsys.Service
	reg  *registry.Registry
	pool *jobs.Pool
}

func NewModelHandler(svc *recsys.Service, reg *registry.Registry, pool *jobs.Pool) *ModelHandler {
	return &ModelHandler{svc: svc, reg: reg, pool: pool}
}

// TrainModel validates the requested hyperparameters and schedules training
// as a background job; training never runs on the request path.
func (h *ModelHandler) TrainModel(c *fiber.Ctx) error {
	var req struct {
		ModelType         string   `json:"model_type"`
		MinRatingsPerUser *int     `json:"min_ratings_per_user"`
		NFactors          *int     `json:"n_factors"`
		K                 *int     `json:"k"`
		TestFraction      *float64 `json:"test_fraction"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	spec := h.svc.DefaultSpec()
	if req.ModelType != "" {
		modelType, err := recommender.ParseModelType(req.ModelType)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		spec.ModelType = modelType
	}
	if req.MinRatingsPerUser != nil {
		spec.MinRatingsPerUser = *req.MinRatingsPerUser
	}
	if req.NFactors != nil {
		spec.NFactors = *req.NFactors
	}
	if req.K != nil {
		spec.K = *req.K
	}
	if req.TestFraction != nil {
		spec.TestFraction = *req.TestFraction
	}

	if err := spec.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	jobID, err := h.pool.Submit("train_"+string(spec.ModelType), func(ctx context.Context) error {
		_, err := h.svc.TrainModel(ctx, spec)
		return err
	})
	if err != nil {
		logger.Error("Failed to schedule training job", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Training queue is full, try again later",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":     jobID,
		"model_type": spec.ModelType,
	})
}

func (h *ModelHandler) ListModels(c *fiber.Ctx) error {
	modelList, err := h.reg.List(c.Context())
	if err != nil {
		logger.Error("Failed to list models", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list models",
		})
	}

	out := make([]fiber.Map, 0, len(modelList))
	for _, m := range modelList {
		out = append(out, fiber.Map{
			"id":                   m.ID,
			"model_type":           m.ModelType,
			"min_ratings_per_user": m.MinRatingsPerUser,
			"n_factors":            m.NFactors,
			"knn_k":                m.KnnK,
			"rmse":                 m.RMSE,
			"mae":                  m.MAE,
			"is_active":            m.IsActive,
			"created_at":           m.CreatedAt.Unix(),
		})
	}
	return c.JSON(fiber.Map{"models": out})
}

func (h *ModelHandler) ActivateModel(c *fiber.Ctx) error {
	modelID := c.Params("id")
	if modelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "model id is required",
		})
	}

	if err := h.svc.ActivateModel(c.Context(), modelID); err != nil {
		if errors.Is(err, registry.ErrModelNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Model not found",
			})
		}
		logger.Error("Failed to activate model", zap.String("model_id", modelID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate model",
		})
	}

	return c.JSON(fiber.Map{
		"id":        modelID,
		"is_active": true,
	})
}
