package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apresai/roleplay/internal/jobs"
	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/observability"
	"github.com/apresai/roleplay/internal/pipeline"
	"github.com/apresai/roleplay/internal/storage"
	"github.com/apresai/roleplay/internal/store"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported in the MCP handshake.
var Version = "1.0.0"

// Server is the MCP server for role-play prompt generation.
type Server struct {
	cfg      Config
	mcp      *server.MCPServer
	http     *server.StreamableHTTPServer
	jobs     *jobs.Manager
	handlers *Handlers
	log      *slog.Logger
}

// New creates and configures the MCP server. ctx doubles as the base
// context for background jobs and should be cancelled on SIGTERM.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	var (
		docs     store.Store = store.NewMemory()
		uploader *storage.Storage
	)

	if cfg.needsAWS() {
		awsCfg, err := observability.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		if cfg.SecretPrefix != "" {
			if err := loadSecrets(ctx, awsCfg, cfg.SecretPrefix, logger); err != nil {
				logger.Warn("Failed to load secrets from Secrets Manager, falling back to env vars",
					"error", err)
			}
		}
		if cfg.TableName != "" {
			docs = store.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
		}
		if cfg.S3Bucket != "" {
			uploader = storage.New(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.CDNBaseURL)
		}
	}

	// Secrets land in the environment, so provider settings are read after.
	llmCfg := cfg.LLM
	if llmCfg.Provider == "" {
		llmCfg = llm.ConfigFromEnv()
	}
	client, err := llm.New(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	storeOpts := []jobs.Option{jobs.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		rdb, err := jobs.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, jobs.WithPublisher(jobs.NewRedisBroadcaster(rdb, "roleplay", logger)))
		logger.Info("Mirroring job events to Redis", "addr", cfg.RedisAddr)
	}
	mgr := jobs.NewManager(jobs.NewMemoryStore(storeOpts...), cfg.MaxJobs, logger, ctx)

	deps := pipeline.Deps{LLM: client, Model: llmCfg.Model, Store: docs, Logger: logger}
	if uploader != nil {
		deps.Uploader = uploader
	}
	handlers := NewHandlers(mgr, docs, deps, HandlerOptions{
		OutputDir: cfg.OutputDir,
		Layout:    cfg.Layout,
		MinWords:  cfg.MinWords,
	}, logger)

	mcpServer := server.NewMCPServer(
		"roleplay",
		Version,
		server.WithToolCapabilities(true),
	)
	handlers.Register(mcpServer)

	return &Server{
		cfg:      cfg,
		mcp:      mcpServer,
		jobs:     mgr,
		handlers: handlers,
		log:      logger,
	}, nil
}

// Start runs the HTTP MCP server. It blocks until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("Starting MCP server", "addr", addr)

	s.http = server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
	)
	return s.http.Start(addr)
}

// Shutdown stops accepting requests and waits up to timeout for running
// jobs to record their final state.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) {
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.log.Warn("HTTP shutdown error", "error", err)
		}
	}
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("All jobs finished")
	case <-time.After(timeout):
		s.log.Warn("Timed out waiting for jobs", "running", s.jobs.Running())
	}
}
