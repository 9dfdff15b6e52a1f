package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TrainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booknest_trainings_total",
			Help: "Total model training runs",
		},
		[]string{"model_type", "status"},
	)

	TrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booknest_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"model_type"},
	)

	ActiveModelRMSE = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "booknest_active_model_rmse",
			Help: "RMSE of the active model on its hold-out set",
		},
		[]string{"model_type"},
	)

	ActiveModelMAE = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "booknest_active_model_mae",
			Help: "MAE of the active model on its hold-out set",
		},
		[]string{"model_type"},
	)

	RecommendationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booknest_recommendation_requests_total",
			Help: "Total recommendation requests served",
		},
		[]string{"status"},
	)

	RecommendationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booknest_recommendation_latency_seconds",
			Help:    "Recommendation generation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	ColdStartFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booknest_cold_start_fallbacks_total",
			Help: "Recommendation requests served by the popularity fallback",
		},
	)

	RatingsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booknest_ratings_ingested_total",
			Help: "Total rating writes accepted",
		},
	)

	RetrainTriggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booknest_retrain_triggers_total",
			Help: "Retrainings initiated by the rating-threshold trigger",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booknest_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booknest_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(TrainingsTotal)
	prometheus.MustRegister(TrainingDuration)
	prometheus.MustRegister(ActiveModelRMSE)
	prometheus.MustRegister(ActiveModelMAE)
	prometheus.MustRegister(RecommendationRequests)
	prometheus.MustRegister(RecommendationLatency)
	prometheus.MustRegister(ColdStartFallbacks)
	prometheus.MustRegister(RatingsIngested)
	prometheus.MustRegister(RetrainTriggers)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
