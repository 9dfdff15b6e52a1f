package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/recommender"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/models"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/sqlite"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

// ErrModelNotFound mirrors the storage sentinel so callers only import the
// registry.
var ErrModelNotFound = sqlite.ErrModelNotFound

type cachedModel struct {
	engine recommender.Engine
	meta   *models.RecommendationModel
}

// Registry owns trained model artifacts: persistence, the per-type active
// flag, and an in-memory decode cache for the engines currently serving.
// Artifacts are immutable once saved; a retrain produces a new record.
type Registry struct {
	db *sqlite.Client

	mu     sync.RWMutex
	active map[recommender.ModelType]*cachedModel
}

func New(db *sqlite.Client) *Registry {
	return &Registry{
		db:     db,
		active: make(map[recommender.ModelType]*cachedModel),
	}
}

// Save serializes a fitted engine and records its metadata. The storage
// layer deactivates sibling models of the same type and activates the new
// row in one transaction.
func (r *Registry) Save(ctx context.Context, engine recommender.Engine, spec recommender.Spec, metrics *recommender.Metrics) (*models.RecommendationModel, error) {
	artifact, err := recommender.EncodeModel(engine)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize model: %w", err)
	}

	meta := &models.RecommendationModel{
		ID:                uuid.New().String(),
		ModelType:         string(spec.ModelType),
		MinRatingsPerUser: spec.MinRatingsPerUser,
		NFactors:          spec.NFactors,
		KnnK:              spec.K,
		IsActive:          true,
		CreatedAt:         time.Now(),
	}
	if metrics != nil {
		rmse, mae := metrics.RMSE, metrics.MAE
		meta.RMSE = &rmse
		meta.MAE = &mae
	}

	if err := r.db.InsertModel(ctx, meta, artifact); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.active[spec.ModelType] = &cachedModel{engine: engine, meta: meta}
	r.mu.Unlock()

	return meta, nil
}

// Load returns the engine for a specific model id, bypassing the active
// cache (loading an inactive model is a legitimate operator action).
func (r *Registry) Load(ctx context.Context, modelID string) (recommender.Engine, *models.RecommendationModel, error) {
	meta, artifact, err := r.db.GetModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	engine, err := recommender.DecodeModel(artifact)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode model %s: %w", modelID, err)
	}
	return engine, meta, nil
}

// LoadActive returns the currently active engine of the given type, decoding
// and caching it on first use. The cached engine is immutable, so readers
// share it without copying.
func (r *Registry) LoadActive(ctx context.Context, modelType recommender.ModelType) (recommender.Engine, *models.RecommendationModel, error) {
	r.mu.RLock()
	cached := r.active[modelType]
	r.mu.RUnlock()
	if cached != nil {
		return cached.engine, cached.meta, nil
	}

	meta, artifact, err := r.db.GetActiveModel(ctx, string(modelType))
	if err != nil {
		return nil, nil, err
	}
	engine, err := recommender.DecodeModel(artifact)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode active %s model: %w", modelType, err)
	}

	r.mu.Lock()
	r.active[modelType] = &cachedModel{engine: engine, meta: meta}
	r.mu.Unlock()

	logger.Info("Active model loaded",
		zap.String("model_type", string(modelType)),
		zap.String("model_id", meta.ID),
	)
	return engine, meta, nil
}

// Activate flips the active flag to the given model and refreshes the cache,
// so subsequent serving calls see the swap immediately.
func (r *Registry) Activate(ctx context.Context, modelID string) error {
	if err := r.db.ActivateModel(ctx, modelID); err != nil {
		return err
	}

	engine, meta, err := r.Load(ctx, modelID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.active[recommender.ModelType(meta.ModelType)] = &cachedModel{engine: engine, meta: meta}
	r.mu.Unlock()
	return nil
}

func (r *Registry) List(ctx context.Context) ([]models.RecommendationModel, error) {
	return r.db.ListModels(ctx)
}
