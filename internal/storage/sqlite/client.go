package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/storage/models"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

// ErrModelNotFound is returned when a requested model id does not exist or
// no model of the requested type is active yet.
var ErrModelNotFound = errors.New("recommendation model not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ratings (
		user_id INTEGER NOT NULL,
		isbn13 TEXT NOT NULL,
		score REAL NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, isbn13)
	);
	CREATE INDEX IF NOT EXISTS idx_ratings_user ON ratings(user_id);
	CREATE INDEX IF NOT EXISTS idx_ratings_item ON ratings(isbn13);

	CREATE TABLE IF NOT EXISTS recommendation_models (
		id TEXT PRIMARY KEY,
		model_type TEXT NOT NULL,
		min_ratings_per_user INTEGER NOT NULL,
		n_factors INTEGER NOT NULL,
		knn_k INTEGER NOT NULL,
		rmse REAL,
		mae REAL,
		is_active INTEGER NOT NULL DEFAULT 0,
		artifact BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_models_type_active ON recommendation_models(model_type, is_active);
	CREATE INDEX IF NOT EXISTS idx_models_created ON recommendation_models(created_at);

	CREATE TABLE IF NOT EXISTS user_recommendations (
		user_id INTEGER NOT NULL,
		isbn13 TEXT NOT NULL,
		score REAL NOT NULL,
		model_id TEXT,
		generated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, isbn13)
	);
	CREATE INDEX IF NOT EXISTS idx_recs_user ON user_recommendations(user_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertRating writes a rating, overwriting any previous score for the same
// (user, book). It returns the user's rating count after the write and
// whether the write created a new row; an overwrite of an existing rating
// leaves the count unchanged and must not look like a new rating downstream.
func (c *Client) UpsertRating(ctx context.Context, r *models.Rating) (int, bool, error) {
	now := time.Now().Unix()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ratings WHERE user_id = ? AND isbn13 = ?`,
		r.UserID, r.ISBN13,
	).Scan(&existing)
	if err != nil {
		return 0, false, fmt.Errorf("failed to check existing rating: %w", err)
	}

	query := `
		INSERT INTO ratings (user_id, isbn13, score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, isbn13) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, r.UserID, r.ISBN13, r.Score, now, now); err != nil {
		return 0, false, fmt.Errorf("failed to upsert rating: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings WHERE user_id = ?`, r.UserID).Scan(&count); err != nil {
		return 0, false, fmt.Errorf("failed to count ratings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit rating upsert: %w", err)
	}

	created := existing == 0
	logger.Debug("Rating upserted",
		zap.Int64("user_id", r.UserID),
		zap.String("isbn13", r.ISBN13),
		zap.Float64("score", r.Score),
		zap.Int("rating_count", count),
		zap.Bool("created", created),
	)
	return count, created, nil
}

// GetAllRatings returns a consistent snapshot of the rating feed.
func (c *Client) GetAllRatings(ctx context.Context) ([]models.Rating, error) {
	query := `SELECT user_id, isbn13, score, created_at, updated_at FROM ratings ORDER BY user_id, isbn13`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.Rating
	for rows.Next() {
		var r models.Rating
		var createdAt, updatedAt int64

		if err := rows.Scan(&r.UserID, &r.ISBN13, &r.Score, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		r.UpdatedAt = time.Unix(updatedAt, 0)
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rating rows: %w", err)
	}

	return ratings, nil
}

func (c *Client) GetRatingCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ratings: %w", err)
	}
	return count, nil
}

// GetUsersWithRatingCount returns ids of users holding at least minRatings
// ratings, ascending.
func (c *Client) GetUsersWithRatingCount(ctx context.Context, minRatings int) ([]int64, error) {
	query := `
		SELECT user_id FROM ratings
		GROUP BY user_id
		HAVING COUNT(*) >= ?
		ORDER BY user_id
	`

	rows, err := c.db.QueryContext(ctx, query, minRatings)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible users: %w", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// InsertModel stores a new model artifact and, in the same transaction,
// deactivates every other active model of the same type before activating
// the new one. No reader ever observes two active models of one type.
func (c *Client) InsertModel(ctx context.Context, m *models.RecommendationModel, artifact []byte) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE recommendation_models SET is_active = 0 WHERE model_type = ? AND is_active = 1`,
		m.ModelType,
	); err != nil {
		return fmt.Errorf("failed to deactivate sibling models: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recommendation_models
			(id, model_type, min_ratings_per_user, n_factors, knn_k, rmse, mae, is_active, artifact, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		m.ID, m.ModelType, m.MinRatingsPerUser, m.NFactors, m.KnnK,
		nullableFloat(m.RMSE), nullableFloat(m.MAE), artifact, m.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model insert: %w", err)
	}

	logger.Info("Model saved and activated",
		zap.String("model_id", m.ID),
		zap.String("model_type", m.ModelType),
	)
	return nil
}

// ActivateModel flips the active flag to the given model, deactivating its
// siblings in the same transaction.
func (c *Client) ActivateModel(ctx context.Context, modelID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var modelType string
	err = tx.QueryRowContext(ctx,
		`SELECT model_type FROM recommendation_models WHERE id = ?`, modelID,
	).Scan(&modelType)
	if err == sql.ErrNoRows {
		return ErrModelNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up model: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE recommendation_models SET is_active = 0 WHERE model_type = ? AND is_active = 1`,
		modelType,
	); err != nil {
		return fmt.Errorf("failed to deactivate sibling models: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE recommendation_models SET is_active = 1 WHERE id = ?`, modelID,
	); err != nil {
		return fmt.Errorf("failed to activate model: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	logger.Info("Model activated", zap.String("model_id", modelID), zap.String("model_type", modelType))
	return nil
}

func (c *Client) GetModel(ctx context.Context, modelID string) (*models.RecommendationModel, []byte, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, model_type, min_ratings_per_user, n_factors, knn_k, rmse, mae, is_active, artifact, created_at
		FROM recommendation_models WHERE id = ?`, modelID)
	return scanModel(row)
}

func (c *Client) GetActiveModel(ctx context.Context, modelType string) (*models.RecommendationModel, []byte, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, model_type, min_ratings_per_user, n_factors, knn_k, rmse, mae, is_active, artifact, created_at
		FROM recommendation_models WHERE model_type = ? AND is_active = 1`, modelType)
	return scanModel(row)
}

func (c *Client) ListModels(ctx context.Context) ([]models.RecommendationModel, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, model_type, min_ratings_per_user, n_factors, knn_k, rmse, mae, is_active, created_at
		FROM recommendation_models ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var out []models.RecommendationModel
	for rows.Next() {
		var m models.RecommendationModel
		var rmse, mae sql.NullFloat64
		var isActive int
		var createdAt int64

		err := rows.Scan(&m.ID, &m.ModelType, &m.MinRatingsPerUser, &m.NFactors, &m.KnnK,
			&rmse, &mae, &isActive, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model row: %w", err)
		}
		m.RMSE = floatPtr(rmse)
		m.MAE = floatPtr(mae)
		m.IsActive = isActive == 1
		m.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceUserRecommendations swaps out a user's persisted recommendation
// batch: the old rows are deleted and the new batch inserted in one
// transaction, so no partial batch is ever visible.
func (c *Client) ReplaceUserRecommendations(ctx context.Context, userID int64, recs []models.UserRecommendation) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_recommendations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear previous recommendations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_recommendations (user_id, isbn13, score, model_id, generated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, userID, rec.ISBN13, rec.Score, rec.ModelID, rec.GeneratedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recommendation batch: %w", err)
	}
	return nil
}

func (c *Client) GetUserRecommendations(ctx context.Context, userID int64) ([]models.UserRecommendation, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT user_id, isbn13, score, model_id, generated_at
		FROM user_recommendations WHERE user_id = ?
		ORDER BY score DESC, isbn13`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}
	defer rows.Close()

	var out []models.UserRecommendation
	for rows.Next() {
		var rec models.UserRecommendation
		var modelID sql.NullString
		var generatedAt int64

		if err := rows.Scan(&rec.UserID, &rec.ISBN13, &rec.Score, &modelID, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation row: %w", err)
		}
		rec.ModelID = modelID.String
		rec.GeneratedAt = time.Unix(generatedAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanModel(row *sql.Row) (*models.RecommendationModel, []byte, error) {
	var m models.RecommendationModel
	var rmse, mae sql.NullFloat64
	var isActive int
	var artifact []byte
	var createdAt int64

	err := row.Scan(&m.ID, &m.ModelType, &m.MinRatingsPerUser, &m.NFactors, &m.KnnK,
		&rmse, &mae, &isActive, &artifact, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil, ErrModelNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan model: %w", err)
	}

	m.RMSE = floatPtr(rmse)
	m.MAE = floatPtr(mae)
	m.IsActive = isActive == 1
	m.CreatedAt = time.Unix(createdAt, 0)
	return &m, artifact, nil
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
