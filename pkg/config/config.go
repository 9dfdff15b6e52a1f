package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	Recommender RecommenderConfig
	Trigger     TriggerConfig
	Jobs        JobsConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL int
}

type RecommenderConfig struct {
	ModelType         string
	MinRatingsPerUser int
	NFactors          int
	KnnK              int
	KnnMinOverlap     int
	TestFraction      float64
	Epochs            int
	LearningRate      float64
	Regularization    float64
	Seed              int64
	ScaleMin          float64
	ScaleMax          float64
	TopN              int
	PopularityWeight  float64
}

type TriggerConfig struct {
	Enabled         bool
	RatingThreshold int
}

type JobsConfig struct {
	Workers   int
	QueueSize int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/booknest")

	viper.SetEnvPrefix("BOOKNEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("sqlite.path", "./data/booknest.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cacheTTL", 900)

	viper.SetDefault("recommender.modelType", "svd")
	viper.SetDefault("recommender.minRatingsPerUser", 5)
	viper.SetDefault("recommender.nFactors", 100)
	viper.SetDefault("recommender.knnK", 40)
	viper.SetDefault("recommender.knnMinOverlap", 2)
	viper.SetDefault("recommender.testFraction", 0.2)
	viper.SetDefault("recommender.epochs", 20)
	viper.SetDefault("recommender.learningRate", 0.005)
	viper.SetDefault("recommender.regularization", 0.02)
	viper.SetDefault("recommender.seed", 42)
	viper.SetDefault("recommender.scaleMin", 1)
	viper.SetDefault("recommender.scaleMax", 5)
	viper.SetDefault("recommender.topN", 10)
	viper.SetDefault("recommender.popularityWeight", 1.0)

	viper.SetDefault("trigger.enabled", true)
	viper.SetDefault("trigger.ratingThreshold", 22)

	viper.SetDefault("jobs.workers", 2)
	viper.SetDefault("jobs.queueSize", 64)

	viper.SetDefault("ratelimit.maxRequestsPerMinute", 120)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
