package config

import (
	"os"
	"strconv"
)

// Config represents the application configuration.
// This is an infrastructure component that loads configuration from environment variables.
type Config struct {
	Port         string
	LogLevel     string
	DatabaseDSN  string
	OpenAIAPIKey string
	OpenAIModel  string
	JWTSecret    string

	OTLPEndpoint string

	// CircuitFailureThreshold, CircuitOpenTimeoutMs, and CircuitWindowMs tune
	// the default per-node-type Circuit Breaker (§4.6): the breaker trips
	// once CircuitFailureThreshold failures land within the last
	// CircuitWindowMs. The same values apply to every node type's breaker;
	// there is no per-node or per-key override.
	CircuitFailureThreshold int
	CircuitOpenTimeoutMs    int
	CircuitWindowMs         int

	// MaxParallelism caps how many branches of a single parallel node run
	// at once (§5). Iterations of a loop node with concurrent=true are not
	// capped by it.
	MaxParallelism int
}

// Load creates a new Config instance by reading environment variables.
func Load() *Config {
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:             getEnv("DATABASE_DSN", ""),
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o"),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		OTLPEndpoint:            getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		CircuitFailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitOpenTimeoutMs:    getEnvInt("CIRCUIT_OPEN_TIMEOUT_MS", 30_000),
		CircuitWindowMs:         getEnvInt("CIRCUIT_WINDOW_MS", 60_000),
		MaxParallelism:          getEnvInt("MAX_PARALLELISM", 32),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// GetPortInt returns the port as an integer.
func (c *Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}
