package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/docai"
	"github.com/mhartley/invoice-extract/internal/patterns"
	"github.com/mhartley/invoice-extract/internal/pipeline"
	"github.com/mhartley/invoice-extract/internal/repository"
	"github.com/mhartley/invoice-extract/internal/retry"
	"github.com/mhartley/invoice-extract/internal/server"
	"github.com/mhartley/invoice-extract/internal/tier"
	"github.com/mhartley/invoice-extract/internal/validate"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib := patterns.Builtin()
	classifier := vendor.NewClassifier(logger, lib)
	if cfg.Pipeline.ProfileDir != "" {
		if err := vendor.LoadProfileDir(cfg.Pipeline.ProfileDir, lib, classifier, logger); err != nil {
			logger.Error("loading vendor profiles", "dir", cfg.Pipeline.ProfileDir, "error", err)
			os.Exit(1)
		}
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Factor:      2.0,
		Jitter:      cfg.Retry.Jitter,
	}

	tiers := buildTiers(logger, cfg, lib, policy)

	validator := validate.New(logger, validate.Config{
		MinItemsForDupCheck: cfg.Validator.MinItemsForDupCheck,
		MinUniquePairRatio:  cfg.Validator.MinUniquePairRatio,
		MaxEmptyFieldRatio:  cfg.Validator.MaxEmptyFieldRatio,
	})

	orch, err := pipeline.New(logger, pipeline.Config{
		Budget:       cfg.Pipeline.Budget,
		SafetyMargin: cfg.Pipeline.SafetyMargin,
	}, tiers, validator)
	if err != nil {
		logger.Error("building orchestrator", "error", err)
		os.Exit(1)
	}

	ledger, err := repository.Open(ctx, cfg.Ledger.DSN, logger)
	if err != nil {
		logger.Error("opening ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	var analyzer *docai.Client
	if cfg.DocAI.Endpoint != "" {
		analyzer = docai.NewClient(logger, cfg.DocAI, policy)
	}

	processor := pipeline.NewProcessor(logger, classifier, orch, ledger)
	srv := server.New(logger, processor, analyzer, ledger)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Routes(),
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("stopped")
}

// buildTiers materializes the configured tier order. The enabled list is
// explicit configuration; there is no hidden toggle.
func buildTiers(logger *slog.Logger, cfg *common.Config, lib *patterns.Library, policy retry.Policy) []tier.Extractor {
	var tiers []tier.Extractor
	for _, name := range cfg.Pipeline.EnabledTiers {
		switch name {
		case constants.TierGenerative:
			if !cfg.LLM.Enabled {
				logger.Warn("generative tier listed but LLM_TIER_ENABLED is false; skipping")
				continue
			}
			tiers = append(tiers, tier.NewGenerativeTier(logger, cfg.LLM, policy))
		case constants.TierEntity:
			tiers = append(tiers, tier.NewEntityTier(logger))
		case constants.TierTable:
			tiers = append(tiers, tier.NewTableTier(logger))
		case constants.TierText:
			tiers = append(tiers, tier.NewTextTier(logger, lib))
		}
	}
	return tiers
}
