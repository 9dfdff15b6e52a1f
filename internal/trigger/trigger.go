package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/events"
	"github.com/JinxX404/BookNest-fullstack/internal/jobs"
	"github.com/JinxX404/BookNest-fullstack/internal/metrics"
	"github.com/JinxX404/BookNest-fullstack/internal/recommender"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/models"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
	"github.com/JinxX404/BookNest-fullstack/pkg/retry"
)

// Trainer is the slice of the recommendation service the trigger drives.
type Trainer interface {
	TrainModel(ctx context.Context, spec recommender.Spec) (*models.RecommendationModel, error)
	GenerateForUser(ctx context.Context, userID int64, n int, modelID string) ([]models.UserRecommendation, error)
}

// RatingCounter re-reads a user's rating count from the store, so the
// trigger decides on current state rather than a possibly stale event.
type RatingCounter interface {
	GetRatingCount(ctx context.Context, userID int64) (int, error)
}

type Config struct {
	Threshold int
	TopN      int
	Spec      recommender.Spec
}

// Trigger watches rating-created events and, at the moment a user's rating
// count reaches the threshold exactly, schedules a full retrain followed by
// recommendation generation for that user. Firing on equality (not >=) makes
// it a one-shot per user; a model trained before the user qualified cannot
// recommend for them, hence the retrain-first ordering.
type Trigger struct {
	cfg    Config
	svc    Trainer
	counts RatingCounter
	pool   *jobs.Pool

	// Serializes retrains so concurrent threshold crossings do not race
	// two trainings of the same model type through the worker pool.
	trainMu sync.Mutex
}

func New(cfg Config, svc Trainer, counts RatingCounter, pool *jobs.Pool) *Trigger {
	return &Trigger{cfg: cfg, svc: svc, counts: counts, pool: pool}
}

// Run consumes events until the channel closes or the context is cancelled.
func (t *Trigger) Run(ctx context.Context, eventCh <-chan events.RatingEvent) {
	logger.Info("Retraining trigger running", zap.Int("threshold", t.cfg.Threshold))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			t.handle(ctx, ev)
		}
	}
}

func (t *Trigger) handle(ctx context.Context, ev events.RatingEvent) {
	// Overwriting an existing rating leaves the count where it was; a user
	// sitting at the threshold who edits a score has not crossed it again.
	if !ev.Created {
		return
	}
	if ev.RatingCount != t.cfg.Threshold {
		return
	}

	// Event delivery is at-least-once, so re-check against the store; a
	// duplicate of an old event no longer matches the current count.
	count, err := retry.DoWithResult(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Logger:       logger.Log,
	}, func() (int, error) {
		return t.counts.GetRatingCount(ctx, ev.UserID)
	})
	if err != nil {
		logger.Warn("Could not verify rating count, trusting event",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)
		count = ev.RatingCount
	}
	if count != t.cfg.Threshold {
		logger.Debug("Rating count moved past threshold, skipping trigger",
			zap.Int64("user_id", ev.UserID),
			zap.Int("count", count),
		)
		return
	}

	logger.Info("User reached rating threshold, scheduling retrain",
		zap.Int64("user_id", ev.UserID),
		zap.Int("threshold", t.cfg.Threshold),
	)
	metrics.RetrainTriggers.Inc()

	jobID, err := t.pool.Submit(fmt.Sprintf("retrain_%s", t.cfg.Spec.ModelType), func(jobCtx context.Context) error {
		return t.retrainAndGenerate(jobCtx, ev.UserID)
	})
	if err != nil {
		logger.Error("Failed to schedule retraining job",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
		)
		return
	}
	logger.Info("Retraining job scheduled", zap.String("job_id", jobID), zap.Int64("user_id", ev.UserID))
}

func (t *Trigger) retrainAndGenerate(ctx context.Context, userID int64) error {
	t.trainMu.Lock()
	defer t.trainMu.Unlock()

	model, err := t.svc.TrainModel(ctx, t.cfg.Spec)
	if err != nil {
		// Surface through the job status; generation must not run
		// against a stale or missing model.
		return fmt.Errorf("retraining for user %d failed: %w", userID, err)
	}

	recs, err := t.svc.GenerateForUser(ctx, userID, t.cfg.TopN, model.ID)
	if err != nil {
		return fmt.Errorf("generation for user %d failed: %w", userID, err)
	}

	logger.Info("Triggered retrain and generation complete",
		zap.Int64("user_id", userID),
		zap.String("model_id", model.ID),
		zap.Int("recommendations", len(recs)),
	)
	return nil
}
