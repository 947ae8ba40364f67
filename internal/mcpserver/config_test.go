package mcpserver

import (
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"

	"github.com/apresai/roleplay/internal/llm"
)

func newMCP() *server.MCPServer {
	return server.NewMCPServer("roleplay-test", "0.0.0", server.WithToolCapabilities(true))
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("MAX_JOBS", "not-a-number")
	t.Setenv("DYNAMODB_TABLE", "roleplay-docs")
	t.Setenv("PROMPT_LAYOUT", "")

	cfg := DefaultConfig()
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, 5, cfg.MaxJobs)
	assert.Equal(t, "roleplay-docs", cfg.TableName)
	assert.Equal(t, "architect", cfg.Layout)
}

func TestConfig_NeedsAWS(t *testing.T) {
	assert.False(t, Config{}.needsAWS())
	assert.True(t, Config{S3Bucket: "b"}.needsAWS())
	assert.True(t, Config{LLM: llm.Config{Provider: "nova"}}.needsAWS())
}
