package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/arbiter/internal/anthropic"
	"github.com/MikeSquared-Agency/arbiter/internal/api"
	"github.com/MikeSquared-Agency/arbiter/internal/backfill"
	"github.com/MikeSquared-Agency/arbiter/internal/config"
	"github.com/MikeSquared-Agency/arbiter/internal/embedding"
	"github.com/MikeSquared-Agency/arbiter/internal/eval"
	"github.com/MikeSquared-Agency/arbiter/internal/hermes"
	"github.com/MikeSquared-Agency/arbiter/internal/judge"
	"github.com/MikeSquared-Agency/arbiter/internal/processor"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/slack"
	"github.com/MikeSquared-Agency/arbiter/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("arbiter starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rubric
	r, err := rubric.Load(cfg.RubricPath)
	if err != nil {
		slog.Error("failed to load rubric", "path", cfg.RubricPath, "error", err)
		os.Exit(1)
	}
	slog.Info("rubric loaded", "version", r.Version, "stages", len(r.Stages), "behaviors", len(r.Behaviors))

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Embedding provider (optional; without it semantic matching degrades
	// to exact-only per the fallback policy)
	var provider embedding.Provider
	if cfg.OpenAIAPIKey != "" {
		provider = embedding.NewOpenAIProvider(embedding.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.EmbeddingModel,
		})
		slog.Info("embedding provider ready", "model", cfg.EmbeddingModel)
	} else {
		slog.Warn("OPENAI_API_KEY not set, semantic matching disabled")
	}

	// Stage judge (optional; without it scoring is purely deterministic)
	var stageJudge eval.Judge
	if cfg.AnthropicAPIKey != "" {
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		stageJudge = judge.New(llm, slog.Default())
		slog.Info("stage judge ready", "model", cfg.AnthropicModel)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, running without stage judgments")
	}

	evaluator, err := eval.New(r, provider, eval.Options{
		Judge:  stageJudge,
		Logger: slog.Default(),
	})
	if err != nil {
		slog.Error("failed to build evaluator", "error", err)
		os.Exit(1)
	}

	// One-shot backfill mode: evaluate an export directory and exit.
	if cfg.BackfillDir != "" {
		runner := backfill.NewRunner(backfill.Config{Dir: cfg.BackfillDir}, evaluator, db, slog.Default())
		summary, err := runner.Run(ctx)
		if err != nil {
			slog.Error("backfill failed", "error", err)
			os.Exit(1)
		}
		slog.Info("backfill complete",
			"files", summary.Files,
			"calls", summary.Calls,
			"evaluated", summary.Evaluated,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
		)
		return
	}

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Slack poster (optional; arbiter works without Slack, just no review loop)
	var slackPoster *slack.Poster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		slackPoster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without review loop")
	}

	// Processor, the main pipeline
	proc := processor.New(db, evaluator, hermesClient, slackPoster, cfg.ChronicleURL, slog.Default())

	// Subscribe to transcript events
	if err := hermesClient.Subscribe(hermes.SubjectTranscriptStored, proc.HandleTranscriptStored); err != nil {
		slog.Error("failed to subscribe to transcript events", "error", err)
		os.Exit(1)
	}

	// Subscribe to Slack reactions for the review loop
	if err := hermesClient.Subscribe(hermes.SubjectSlackReaction, proc.HandleReaction); err != nil {
		slog.Error("failed to subscribe to slack reactions", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewRefinementServer(cfg.Port, cfg.APIToken, evaluator, db, db, hermesClient)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := hermesClient.Publish("qa.agent.arbiter.registered", map[string]any{
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"port":           cfg.Port,
		"rubric_version": r.Version,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("arbiter ready", "port", cfg.Port, "rubric_version", r.Version)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("arbiter stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
