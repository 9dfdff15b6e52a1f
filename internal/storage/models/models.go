package models

import "time"

// Rating is one user's score for one book. At most one row exists per
// (user, book); rating updates overwrite the previous score.
type Rating struct {
	UserID    int64
	ISBN13    string
	Score     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecommendationModel is the metadata row for one trained model artifact.
// RMSE and MAE are nil when training ran without a hold-out split.
type RecommendationModel struct {
	ID                string
	ModelType         string
	MinRatingsPerUser int
	NFactors          int
	KnnK              int
	RMSE              *float64
	MAE               *float64
	IsActive          bool
	CreatedAt         time.Time
}

// UserRecommendation is one persisted row of a user's latest recommendation
// batch. A new batch fully replaces the previous one.
type UserRecommendation struct {
	UserID      int64
	ISBN13      string
	Score       float64
	ModelID     string
	GeneratedAt time.Time
}
