package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/docai"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/export"
	"github.com/mhartley/invoice-extract/internal/patterns"
	"github.com/mhartley/invoice-extract/internal/pipeline"
	"github.com/mhartley/invoice-extract/internal/repository"
	"github.com/mhartley/invoice-extract/internal/retry"
	"github.com/mhartley/invoice-extract/internal/tier"
	"github.com/mhartley/invoice-extract/internal/validate"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory of document dumps to process (required)")
		out      = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		profiles = flag.String("profiles", "", "optional vendor profile YAML directory")
		inmem    = flag.Bool("inmem", true, "use an in-memory job ledger")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		parentDir := filepath.Dir(*dir)
		*out = filepath.Join(parentDir, "line_items.xlsx")
	}

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()

	lib := patterns.Builtin()
	classifier := vendor.NewClassifier(logger, lib)
	if *profiles != "" {
		if err := vendor.LoadProfileDir(*profiles, lib, classifier, logger); err != nil {
			printError("Error: loading vendor profiles: %v\n", err)
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

	var tiers []tier.Extractor
	for _, name := range cfg.Pipeline.EnabledTiers {
		switch name {
		case constants.TierGenerative:
			if cfg.LLM.Enabled {
				tiers = append(tiers, tier.NewGenerativeTier(logger, cfg.LLM, policy))
			}
		case constants.TierEntity:
			tiers = append(tiers, tier.NewEntityTier(logger))
		case constants.TierTable:
			tiers = append(tiers, tier.NewTableTier(logger))
		case constants.TierText:
			tiers = append(tiers, tier.NewTextTier(logger, lib))
		}
	}

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
		printError("Error: building orchestrator: %v\n", err)
		os.Exit(1)
	}

	dsn := cfg.Ledger.DSN
	if *inmem {
		dsn = ":memory:"
	}
	ledger, err := repository.Open(ctx, dsn, logger)
	if err != nil {
		printError("Error: opening ledger: %v\n", err)
		os.Exit(1)
	}
	defer ledger.Close()

	processor := pipeline.NewProcessor(logger, classifier, orch, ledger)

	docs, err := loadDocuments(*dir)
	if err != nil {
		printError("Error: loading documents: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		printError("Error: no .txt or .json documents found in %s\n", *dir)
		os.Exit(1)
	}

	var rows []export.Row
	processed, failed := 0, 0
	runDate := time.Now().UTC()
	for _, d := range docs {
		summary, err := processor.ProcessDocument(ctx, d.doc)
		if err != nil {
			failed++
			logger.Error("batch.document_failed", "file", d.name, "error", err)
			continue
		}
		processed++
		rows = append(rows, export.RowsFromItems(runDate, summary.VendorName, summary.Items)...)
	}

	if len(rows) > 0 {
		svc := export.NewService(logger)
		book, err := svc.BuildWorkbook(rows)
		if err != nil {
			printError("Error: building workbook: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, book, 0o644); err != nil {
			printError("Error: writing %s: %v\n", *out, err)
			os.Exit(1)
		}
	}

	counts, err := ledger.CountByReason(ctx)
	if err == nil {
		var parts []string
		for reason, n := range counts {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(parts)
		fmt.Printf("outcomes: %s\n", strings.Join(parts, " "))
	}
	fmt.Printf("processed=%d failed=%d rows=%d out=%s\n", processed, failed, len(rows), *out)
	if failed > 0 && processed == 0 {
		os.Exit(1)
	}
}

type batchDoc struct {
	name string
	doc  *entity.Document
}

// loadDocuments reads .txt files as raw document text and .json files as
// saved document-understanding payloads (validated the same way as live
// responses).
func loadDocuments(dir string) ([]batchDoc, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".txt" || ext == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var docs []batchDoc
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var doc *entity.Document
		if strings.HasSuffix(strings.ToLower(name), ".json") {
			doc, err = docai.ParsePayload(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		} else {
			doc = &entity.Document{ID: uuid.New(), Text: string(raw)}
		}
		docs = append(docs, batchDoc{name: name, doc: doc})
	}
	return docs, nil
}
