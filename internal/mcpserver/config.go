package mcpserver

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/apresai/roleplay/internal/ingest"
	"github.com/apresai/roleplay/internal/llm"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Config holds server configuration.
type Config struct {
	Port int
	// TableName selects the DynamoDB document store. Empty keeps documents
	// in memory for the life of the process.
	TableName string
	// S3Bucket enables report uploads.
	S3Bucket     string
	CDNBaseURL   string
	AWSRegion    string
	MaxJobs      int
	SecretPrefix string // e.g. "/roleplay/mcp/"
	// RedisAddr mirrors job events to Redis pub/sub when set.
	RedisAddr string
	OutputDir string
	Layout    string
	MinWords  int
	// LLM overrides the provider settings read from the environment.
	LLM llm.Config
}

// DefaultConfig returns a Config populated from environment variables.
func DefaultConfig() Config {
	return Config{
		Port:         envInt("PORT", 8000),
		TableName:    os.Getenv("DYNAMODB_TABLE"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		CDNBaseURL:   os.Getenv("CDN_BASE_URL"),
		AWSRegion:    envOr("AWS_REGION", "us-east-1"),
		MaxJobs:      envInt("MAX_JOBS", 5),
		SecretPrefix: os.Getenv("SECRET_PREFIX"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		OutputDir:    os.Getenv("OUTPUT_DIR"),
		Layout:       envOr("PROMPT_LAYOUT", "architect"),
		MinWords:     envInt("MIN_WORDS", ingest.DefaultMinWords),
	}
}

func (c Config) needsAWS() bool {
	return c.TableName != "" || c.S3Bucket != "" || c.SecretPrefix != "" || c.LLM.Provider == "nova"
}

// loadSecrets fetches provider API keys from Secrets Manager and sets them as
// env vars. Keys already present in the environment win.
func loadSecrets(ctx context.Context, cfg aws.Config, prefix string, logger *slog.Logger) error {
	client := secretsmanager.NewFromConfig(cfg)

	secrets := map[string]string{
		"OPENAI_API_KEY":    prefix + "OPENAI_API_KEY",
		"ANTHROPIC_API_KEY": prefix + "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY":    prefix + "GEMINI_API_KEY",
	}

	for envVar, secretID := range secrets {
		if os.Getenv(envVar) != "" {
			continue
		}

		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			os.Setenv(envVar, *result.SecretString)
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
