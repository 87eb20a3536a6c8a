package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Directories
	InputDir  string
	OutputDir string

	// Embeddings
	OpenAIAPIKey              string
	OpenAIBaseURL             string
	EmbeddingsModel           string
	EmbeddingsBatchSize       int
	IncludeStreamDescriptions bool

	// Relationship builder
	CreateOnlyNew bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                      getEnv("PORT", "8080"),
		Env:                       getEnv("ENV", "development"),
		Neo4jURI:                  getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:                 getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:             getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:             getEnv("NEO4J_DATABASE", ""),
		InputDir:                  getEnv("INPUT_DIR", "data/input"),
		OutputDir:                 getEnv("OUTPUT_DIR", "data/output"),
		OpenAIAPIKey:              getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:             getEnv("OPENAI_BASE_URL", ""),
		EmbeddingsModel:           getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingsBatchSize:       getEnvInt("EMBEDDINGS_BATCH_SIZE", 100),
		IncludeStreamDescriptions: getEnvBool("EMBEDDINGS_INCLUDE_STREAM_DESCRIPTIONS", false),
		CreateOnlyNew:             getEnvBool("CREATE_ONLY_NEW", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.EmbeddingsBatchSize < 1 {
		return fmt.Errorf("EMBEDDINGS_BATCH_SIZE must be positive")
	}
	// OpenAI key is only required when the embeddings stage runs; the
	// embeddings component checks it at construction time.
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}
