package config

import "os"

// Config holds runtime configuration.
type Config struct {
	LogLevel      string
	DatabaseURL   string
	SQLitePath    string
	RedisAddr     string
	ContractDir   string
	ResultBackend string // "memory" | "sqlite" | "postgres" | "redis"
	OTLPEndpoint  string
	Telemetry     bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://gridverify@localhost:5432/gridverify?sslmode=disable"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "gridverify.db"
	}

	contractDir := os.Getenv("CONTRACT_DIR")
	if contractDir == "" {
		contractDir = "contracts"
	}

	backend := os.Getenv("RESULT_BACKEND")
	if backend == "" {
		backend = "memory"
	}

	otlp := os.Getenv("OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	return &Config{
		LogLevel:      logLevel,
		DatabaseURL:   dbURL,
		SQLitePath:    sqlitePath,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		ContractDir:   contractDir,
		ResultBackend: backend,
		OTLPEndpoint:  otlp,
		Telemetry:     os.Getenv("TELEMETRY_ENABLED") == "true",
	}
}
