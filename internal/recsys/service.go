package recsys

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/JinxX404/BookNest-fullstack/internal/cache/redis"
	"github.com/JinxX404/BookNest-fullstack/internal/metrics"
	"github.com/JinxX404/BookNest-fullstack/internal/recommender"
	"github.com/JinxX404/BookNest-fullstack/internal/registry"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/models"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/sqlite"
	"github.com/JinxX404/BookNest-fullstack/pkg/circuitbreaker"
	"github.com/JinxX404/BookNest-fullstack/pkg/config"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

var (
	// ErrDataUnavailable means the rating store holds no ratings at all.
	// Recoverable: try again once ratings exist.
	ErrDataUnavailable = errors.New("no ratings available for training")

	// ErrTrainingFailed wraps unexpected failures during fit or persist.
	// A failed run never leaves a partially written model activated.
	ErrTrainingFailed = errors.New("model training failed")
)

// Service orchestrates the pipeline: extract ratings, train, evaluate,
// register, and serve top-N recommendations.
type Service struct {
	db    *sqlite.Client
	reg   *registry.Registry
	cache *rediscache.Client
	cfg   config.RecommenderConfig

	breaker *circuitbreaker.CircuitBreaker

	// One training run at a time per model type; concurrent runs of
	// different types are fine.
	trainMu sync.Mutex
	locks   map[recommender.ModelType]*sync.Mutex
}

// NewService builds a Service. cache may be nil; serving then skips the
// cache entirely.
func NewService(db *sqlite.Client, reg *registry.Registry, cache *rediscache.Client, cfg config.RecommenderConfig) *Service {
	return &Service{
		db:    db,
		reg:   reg,
		cache: cache,
		cfg:   cfg,
		breaker: circuitbreaker.New("recommendation-cache", circuitbreaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			Logger:           logger.Log,
		}),
		locks: make(map[recommender.ModelType]*sync.Mutex),
	}
}

// DefaultSpec is the training configuration from config defaults.
func (s *Service) DefaultSpec() recommender.Spec {
	modelType, err := recommender.ParseModelType(s.cfg.ModelType)
	if err != nil {
		modelType = recommender.ModelTypeSVD
	}
	return recommender.Spec{
		ModelType:         modelType,
		MinRatingsPerUser: s.cfg.MinRatingsPerUser,
		NFactors:          s.cfg.NFactors,
		K:                 s.cfg.KnnK,
		MinOverlap:        s.cfg.KnnMinOverlap,
		TestFraction:      s.cfg.TestFraction,
		Epochs:            s.cfg.Epochs,
		LearningRate:      s.cfg.LearningRate,
		Regularization:    s.cfg.Regularization,
		Seed:              s.cfg.Seed,
		ScaleMin:          s.cfg.ScaleMin,
		ScaleMax:          s.cfg.ScaleMax,
	}
}

// TrainModel runs the full pipeline for one spec and returns the persisted,
// activated model metadata.
func (s *Service) TrainModel(ctx context.Context, spec recommender.Spec) (*models.RecommendationModel, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	lock := s.typeLock(spec.ModelType)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	logger.Info("Starting model training",
		zap.String("model_type", string(spec.ModelType)),
		zap.Int("min_ratings_per_user", spec.MinRatingsPerUser),
	)

	snap, err := s.Extract(ctx)
	if err != nil {
		metrics.TrainingsTotal.WithLabelValues(string(spec.ModelType), "failed").Inc()
		return nil, err
	}

	engine, evalMetrics, err := recommender.Train(snap, spec)
	if err != nil {
		metrics.TrainingsTotal.WithLabelValues(string(spec.ModelType), "failed").Inc()
		if errors.Is(err, recommender.ErrInsufficientData) ||
			errors.Is(err, recommender.ErrInvalidHyperparameters) ||
			errors.Is(err, recommender.ErrUnsupportedModelType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTrainingFailed, err)
	}

	meta, err := s.reg.Save(ctx, engine, spec, evalMetrics)
	if err != nil {
		metrics.TrainingsTotal.WithLabelValues(string(spec.ModelType), "failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTrainingFailed, err)
	}
	s.invalidateActiveCache(ctx)

	took := time.Since(start)
	metrics.TrainingsTotal.WithLabelValues(string(spec.ModelType), "succeeded").Inc()
	metrics.TrainingDuration.WithLabelValues(string(spec.ModelType)).Observe(took.Seconds())
	if evalMetrics != nil {
		metrics.ActiveModelRMSE.WithLabelValues(string(spec.ModelType)).Set(evalMetrics.RMSE)
		metrics.ActiveModelMAE.WithLabelValues(string(spec.ModelType)).Set(evalMetrics.MAE)
	}

	logger.Info("Model trained and activated",
		zap.String("model_id", meta.ID),
		zap.String("model_type", meta.ModelType),
		zap.Duration("took", took),
	)
	return meta, nil
}

// ActivateModel flips serving to the given model and drops cached lists the
// previously active model produced.
func (s *Service) ActivateModel(ctx context.Context, modelID string) error {
	if err := s.reg.Activate(ctx, modelID); err != nil {
		return err
	}
	s.invalidateActiveCache(ctx)
	return nil
}

// Extract pulls the full rating feed into an immutable snapshot.
func (s *Service) Extract(ctx context.Context) (*recommender.Snapshot, error) {
	rows, err := s.db.GetAllRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read rating feed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrDataUnavailable
	}

	ratings := make([]recommender.Rating, len(rows))
	for i, r := range rows {
		ratings[i] = recommender.Rating{UserID: r.UserID, ItemID: r.ISBN13, Score: r.Score}
	}
	return recommender.NewSnapshot(ratings), nil
}

// GetRecommendations serves top-n for a user, model-based when the user is
// in the trained population, popularity otherwise. modelID == "" means the
// active model of the configured default type.
func (s *Service) GetRecommendations(ctx context.Context, userID int64, n int, modelID string) ([]models.UserRecommendation, error) {
	if n < 1 {
		n = s.cfg.TopN
	}

	if cached, ok := s.cacheGet(ctx, userID, n, modelID); ok {
		metrics.RecommendationRequests.WithLabelValues("cached").Inc()
		return cached, nil
	}

	recs, meta, err := s.generate(ctx, userID, n, modelID)
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.RecommendationRequests.WithLabelValues("ok").Inc()

	out := toStoredRecs(userID, recs, meta.ID)
	s.cacheSet(ctx, userID, n, modelID, out)
	return out, nil
}

// GenerateForUser computes and persists a fresh recommendation batch,
// replacing the user's previous one.
func (s *Service) GenerateForUser(ctx context.Context, userID int64, n int, modelID string) ([]models.UserRecommendation, error) {
	if n < 1 {
		n = s.cfg.TopN
	}

	recs, meta, err := s.generate(ctx, userID, n, modelID)
	if err != nil {
		return nil, err
	}

	out := toStoredRecs(userID, recs, meta.ID)
	if err := s.db.ReplaceUserRecommendations(ctx, userID, out); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, userID, n, modelID, out)

	logger.Info("Recommendation batch persisted",
		zap.Int64("user_id", userID),
		zap.Int("count", len(out)),
		zap.String("model_id", meta.ID),
	)
	return out, nil
}

// GenerateForAllUsers regenerates batches for every user with at least
// minRatings ratings. Per-user failures are logged and skipped so one bad
// user cannot sink the whole run.
func (s *Service) GenerateForAllUsers(ctx context.Context, n int, modelID string, minRatings int) (int, error) {
	users, err := s.db.GetUsersWithRatingCount(ctx, minRatings)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, userID := range users {
		recs, err := s.GenerateForUser(ctx, userID, n, modelID)
		if err != nil {
			logger.Error("Failed to generate recommendations for user",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		total += len(recs)
	}

	logger.Info("Bulk generation finished",
		zap.Int("users", len(users)),
		zap.Int("recommendations", total),
	)
	return total, nil
}

func (s *Service) generate(ctx context.Context, userID int64, n int, modelID string) ([]recommender.Recommendation, *models.RecommendationModel, error) {
	start := time.Now()

	var engine recommender.Engine
	var meta *models.RecommendationModel
	var err error
	if modelID != "" {
		engine, meta, err = s.reg.Load(ctx, modelID)
	} else {
		engine, meta, err = s.reg.LoadActive(ctx, s.DefaultSpec().ModelType)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.GetAllRatings(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rating feed: %w", err)
	}
	ratings := make([]recommender.Rating, len(rows))
	for i, r := range rows {
		ratings[i] = recommender.Rating{UserID: r.UserID, ItemID: r.ISBN13, Score: r.Score}
	}
	snap := recommender.NewSnapshot(ratings)

	if !engine.KnowsUser(userID) {
		metrics.ColdStartFallbacks.Inc()
	}
	recs := recommender.Recommend(engine, snap, userID, n, s.cfg.PopularityWeight)

	metrics.RecommendationLatency.Observe(time.Since(start).Seconds())
	return recs, meta, nil
}

// Cache access goes through the circuit breaker: a Redis outage degrades to
// uncached serving instead of failing requests.
func (s *Service) cacheGet(ctx context.Context, userID int64, n int, modelID string) ([]models.UserRecommendation, bool) {
	if s.cache == nil {
		return nil, false
	}

	var recs []models.UserRecommendation
	var hit bool
	err := s.breaker.Execute(ctx, func() error {
		var err error
		recs, hit, err = s.cache.GetRecommendations(ctx, userID, n, modelID)
		return err
	})
	if err != nil {
		metrics.CacheMisses.WithLabelValues("recommendations").Inc()
		return nil, false
	}
	if hit {
		metrics.CacheHits.WithLabelValues("recommendations").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("recommendations").Inc()
	}
	return recs, hit
}

func (s *Service) cacheSet(ctx context.Context, userID int64, n int, modelID string, recs []models.UserRecommendation) {
	if s.cache == nil {
		return
	}
	err := s.breaker.Execute(ctx, func() error {
		return s.cache.SetRecommendations(ctx, userID, n, modelID, recs)
	})
	if err != nil {
		logger.Debug("Skipping recommendation cache write", zap.Error(err))
	}
}

func (s *Service) invalidateActiveCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	err := s.breaker.Execute(ctx, func() error {
		return s.cache.InvalidateActive(ctx)
	})
	if err != nil {
		logger.Warn("Failed to invalidate active-model recommendation cache", zap.Error(err))
	}
}

func (s *Service) typeLock(t recommender.ModelType) *sync.Mutex {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()
	lock, ok := s.locks[t]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[t] = lock
	}
	return lock
}

func toStoredRecs(userID int64, recs []recommender.Recommendation, modelID string) []models.UserRecommendation {
	now := time.Now()
	out := make([]models.UserRecommendation, len(recs))
	for i, rec := range recs {
		out[i] = models.UserRecommendation{
			UserID:      userID,
			ISBN13:      rec.ItemID,
			Score:       rec.Score,
			ModelID:     modelID,
			GeneratedAt: now,
		}
	}
	return out
}
