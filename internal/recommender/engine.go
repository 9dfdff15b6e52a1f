package recommender

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

var (
	ErrInsufficientData       = errors.New("no users meet the minimum rating threshold")
	ErrInvalidHyperparameters = errors.New("invalid hyperparameters")
	ErrUnsupportedModelType   = errors.New("unsupported model type")
)

type ModelType string

const (
	ModelTypeSVD ModelType = "svd"
	ModelTypeKNN ModelType = "knn"
)

func ParseModelType(s string) (ModelType, error) {
	switch ModelType(s) {
	case ModelTypeSVD, ModelTypeKNN:
		return ModelType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModelType, s)
	}
}

// Spec holds everything needed to fit a model deterministically.
type Spec struct {
	ModelType         ModelType
	MinRatingsPerUser int
	NFactors          int
	K                 int
	MinOverlap        int
	TestFraction      float64
	Epochs            int
	LearningRate      float64
	Regularization    float64
	Seed              int64
	ScaleMin          float64
	ScaleMax          float64
}

func DefaultSpec(modelType ModelType) Spec {
	return Spec{
		ModelType:         modelType,
		MinRatingsPerUser: 5,
		NFactors:          100,
		K:                 40,
		MinOverlap:        2,
		TestFraction:      0.2,
		Epochs:            20,
		LearningRate:      0.005,
		Regularization:    0.02,
		Seed:              42,
		ScaleMin:          1,
		ScaleMax:          5,
	}
}

func (s Spec) Validate() error {
	if s.ModelType != ModelTypeSVD && s.ModelType != ModelTypeKNN {
		return fmt.Errorf("%w: %q", ErrUnsupportedModelType, s.ModelType)
	}
	if s.MinRatingsPerUser < 1 {
		return fmt.Errorf("%w: min_ratings_per_user must be >= 1", ErrInvalidHyperparameters)
	}
	if s.ModelType == ModelTypeSVD && s.NFactors <= 0 {
		return fmt.Errorf("%w: n_factors must be > 0", ErrInvalidHyperparameters)
	}
	if s.ModelType == ModelTypeKNN && s.K <= 0 {
		return fmt.Errorf("%w: k must be > 0", ErrInvalidHyperparameters)
	}
	if s.TestFraction < 0 || s.TestFraction >= 1 {
		return fmt.Errorf("%w: test_fraction must be in [0, 1)", ErrInvalidHyperparameters)
	}
	if s.ScaleMin >= s.ScaleMax {
		return fmt.Errorf("%w: rating scale is empty", ErrInvalidHyperparameters)
	}
	return nil
}

// Engine is a fitted collaborative-filtering model. Implementations are
// immutable after Fit and safe for concurrent Predict calls.
type Engine interface {
	Type() ModelType
	Fit(train []Rating) error
	Predict(userID int64, itemID string) float64
	KnowsUser(userID int64) bool
	// Items returns the item vocabulary seen at fit time, ascending.
	Items() []string
}

// New builds an unfitted engine for the spec. The model type is dispatched
// here once; callers only ever see the Engine interface.
func New(spec Spec) (Engine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.ModelType {
	case ModelTypeSVD:
		return newSVDEngine(spec), nil
	case ModelTypeKNN:
		return newKNNEngine(spec), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModelType, spec.ModelType)
	}
}

// Train filters the snapshot to active users, splits off a hold-out set,
// fits a fresh engine and evaluates it. Metrics are nil when the filtered
// set was too small to split.
func Train(snap *Snapshot, spec Spec) (Engine, *Metrics, error) {
	engine, err := New(spec)
	if err != nil {
		return nil, nil, err
	}

	filtered := snap.FilterActiveUsers(spec.MinRatingsPerUser)
	if len(filtered) == 0 {
		return nil, nil, ErrInsufficientData
	}
	logger.Info("Training set prepared",
		zap.String("model_type", string(spec.ModelType)),
		zap.Int("ratings_total", snap.Len()),
		zap.Int("ratings_filtered", len(filtered)),
		zap.Int("min_ratings_per_user", spec.MinRatingsPerUser),
	)

	train, test := Split(filtered, spec.TestFraction, spec.Seed)
	if test == nil {
		logger.Warn("Filtered set too small for a hold-out split, training on all data")
	}

	if err := engine.Fit(train); err != nil {
		return nil, nil, fmt.Errorf("failed to fit %s model: %w", spec.ModelType, err)
	}

	metrics := Evaluate(engine, test)
	if metrics != nil {
		logger.Info("Model evaluated",
			zap.String("model_type", string(spec.ModelType)),
			zap.Float64("rmse", metrics.RMSE),
			zap.Float64("mae", metrics.MAE),
		)
	}
	return engine, metrics, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
