package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/1000heads/curator/internal/app"
	"github.com/1000heads/curator/internal/config"
	"github.com/1000heads/curator/internal/delivery"
	"github.com/1000heads/curator/internal/extract"
	"github.com/1000heads/curator/internal/feed"
	"github.com/1000heads/curator/internal/ledger"
	"github.com/1000heads/curator/internal/logger"
	"github.com/1000heads/curator/internal/metrics"
	"github.com/1000heads/curator/internal/ranker"
	"github.com/1000heads/curator/internal/slack"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go startMonitoringServer()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	ctx := context.Background()

	sources, err := feed.LoadSources(cfg.FeedsConfigPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.FeedsConfigPath).Msg("cannot load feed sources")
		os.Exit(1)
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("provider", cfg.RankerProvider).Msg("cannot initialize ranking provider")
		os.Exit(1)
	}

	slackClient := slack.NewClient(cfg.SlackBotToken)

	var led app.Ledger
	if cfg.SpreadsheetID != "" && cfg.SheetsCredentialsPath != "" {
		client, err := ledger.NewClient(ctx, cfg.SheetsCredentialsPath, cfg.SpreadsheetID, cfg.WorksheetName)
		if err != nil {
			// The ledger is optional infrastructure; the orchestrator warns
			// the channel and runs without duplicate suppression.
			logger.Warn().Err(err).Msg("ledger unavailable")
		} else {
			led = client
		}
	}

	extractor := extract.New(cfg.ExtractTimeout)
	ingestor := feed.NewIngestor(extractor.Extract, cfg.FeedTimeout, cfg.LookbackDays)
	rnk := ranker.New(provider)
	engine := delivery.New(slackClient, cfg.SlackChannelID, cfg.Reactions)

	curator := app.New(cfg, sources, led, ingestor, rnk, engine, slackClient)
	if err := curator.Run(ctx); err != nil {
		os.Exit(1)
	}
}

func buildProvider(ctx context.Context, cfg *config.Config) (ranker.Provider, error) {
	if cfg.RankerProvider == "gemini" {
		return ranker.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	return ranker.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
}

func startMonitoringServer() {
	port := os.Getenv("MONITORING_PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/metrics", metricsHandler)

	logger.Info().Str("port", port).Msg("starting monitoring server")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		logger.Error().Err(err).Msg("monitoring server stopped")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	if !stats["is_healthy"].(bool) {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
