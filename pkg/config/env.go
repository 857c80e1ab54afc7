package config

import (
	"os"
	"strconv"
)

// applyEnv overlays environment variables on cfg. Unset or malformed
// values leave the current setting in place.
func applyEnv(cfg *Config) {
	cfg.Search.Workload = getEnv("AUTOTUNE_WORKLOAD", cfg.Search.Workload)
	cfg.Search.WorkloadFile = getEnv("AUTOTUNE_WORKLOAD_FILE", cfg.Search.WorkloadFile)
	cfg.Search.Target = getEnv("AUTOTUNE_TARGET", cfg.Search.Target)
	cfg.Search.Depth = getEnvInt("AUTOTUNE_DEPTH", cfg.Search.Depth)

	cfg.Tuner.Population = getEnvInt("AUTOTUNE_POPULATION", cfg.Tuner.Population)
	cfg.Tuner.Generations = getEnvInt("AUTOTUNE_GENERATIONS", cfg.Tuner.Generations)
	cfg.Tuner.TopK = getEnvInt("AUTOTUNE_TOP_K", cfg.Tuner.TopK)
	cfg.Tuner.Workers = getEnvInt("AUTOTUNE_WORKERS", cfg.Tuner.Workers)
	cfg.Tuner.Seed = getEnvUint64("AUTOTUNE_SEED", cfg.Tuner.Seed)
	cfg.Tuner.Dedup = getEnvBool("AUTOTUNE_DEDUP", cfg.Tuner.Dedup)

	cfg.CostModel.CacheSize = getEnvInt("AUTOTUNE_COST_CACHE_SIZE", cfg.CostModel.CacheSize)
	cfg.Metrics.Addr = getEnv("AUTOTUNE_METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Records.Dir = getEnv("AUTOTUNE_RECORDS_DIR", cfg.Records.Dir)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Tracing.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", cfg.Tracing.JaegerEndpoint)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}
