// Package pipeline coordinates the tier fallback for one document: try each
// enabled tier in order, validate anything that claims success, and stop the
// whole attempt before the caller's wall-clock budget runs out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/tier"
	"github.com/mhartley/invoice-extract/internal/validate"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// Config bounds one multi-tier run. Ceiling = Budget - SafetyMargin.
type Config struct {
	Budget       time.Duration
	SafetyMargin time.Duration
}

// Attempt records one tier invocation for diagnostics and the job ledger.
type Attempt struct {
	Tier    constants.TierName `json:"tier"`
	Status  tier.Status        `json:"status"`
	Reason  constants.Reason   `json:"reason"`
	Elapsed time.Duration      `json:"elapsed"`
	Detail  string             `json:"detail,omitempty"`
}

// Outcome is the result of a run: the validated items plus the audit trail.
// On terminal failure Items is nil and Attempts explains what happened.
type Outcome struct {
	Items       []entity.LineItem
	WinningTier constants.TierName
	Attempts    []Attempt
}

// TierNames lists the attempted tiers in order, for logging and the ledger.
func (o *Outcome) TierNames() []string {
	names := make([]string, 0, len(o.Attempts))
	for _, a := range o.Attempts {
		names = append(names, string(a.Tier))
	}
	return names
}

// Orchestrator is a state machine over the enabled tiers. Tiers are mutually
// exclusive fallbacks, never parallel races; a validated Success terminates
// the run.
type Orchestrator struct {
	logger    *slog.Logger
	cfg       Config
	tiers     []tier.Extractor
	validator *validate.Validator
}

// New builds an orchestrator over an explicit, ordered tier list. The text
// tier is the last resort and skipping it is a defect, so its absence from
// the list is a construction error rather than a silent misconfiguration.
func New(logger *slog.Logger, cfg Config, tiers []tier.Extractor, validator *validate.Validator) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("no tiers enabled: %w", common.ErrInvalidInput)
	}
	hasText := false
	for _, t := range tiers {
		if t.Name() == constants.TierText {
			hasText = true
		}
	}
	if !hasText {
		return nil, fmt.Errorf("text tier missing from enabled list: %w", common.ErrInvalidInput)
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 160 * time.Second
	}
	if cfg.SafetyMargin < 0 || cfg.SafetyMargin >= cfg.Budget {
		cfg.SafetyMargin = 0
	}
	return &Orchestrator{logger: logger, cfg: cfg, tiers: tiers, validator: validator}, nil
}

// Run processes one document. It returns a populated Outcome on success; on
// terminal failure the error is an AppError coded BUDGET_EXCEEDED or
// ALL_TIERS_EXHAUSTED and the Outcome still carries the attempt trail.
func (o *Orchestrator) Run(ctx context.Context, doc *entity.Document, profile *vendor.Profile) (*Outcome, error) {
	ceiling := o.cfg.Budget - o.cfg.SafetyMargin
	deadline := time.Now().Add(ceiling)
	// an earlier caller deadline wins automatically
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	outcome := &Outcome{}
	for _, ex := range o.tiers {
		if remaining := time.Until(deadline); remaining <= 0 || ctx.Err() != nil {
			o.logger.Warn("pipeline.budget_exceeded",
				"doc_id", doc.ID,
				"tiers_attempted", outcome.TierNames(),
			)
			return outcome, common.NewAppError(constants.ReasonBudgetExceeded,
				fmt.Sprintf("wall-clock ceiling %s reached before tier %s", ceiling, ex.Name()), ctx.Err())
		}

		start := time.Now()
		res := ex.Extract(ctx, doc, profile)
		elapsed := time.Since(start)
		attempt := Attempt{
			Tier:    ex.Name(),
			Status:  res.Status,
			Reason:  res.Reason,
			Elapsed: elapsed,
		}
		if res.Err != nil {
			attempt.Detail = res.Err.Error()
		}

		switch res.Status {
		case tier.StatusSuccess:
			if err := o.validator.Validate(res.Items); err != nil {
				// degraded batch: never passes silently; next tier gets a shot
				attempt.Status = tier.StatusFailure
				attempt.Reason = constants.ReasonValidationDegraded
				attempt.Detail = err.Error()
				outcome.Attempts = append(outcome.Attempts, attempt)
				o.logger.Warn("pipeline.tier.degraded",
					"doc_id", doc.ID,
					"tier", ex.Name(),
					"items", len(res.Items),
					"error", err,
				)
				continue
			}
			outcome.Attempts = append(outcome.Attempts, attempt)
			outcome.Items = res.Items
			outcome.WinningTier = ex.Name()
			o.logger.Info("pipeline.tier.ok",
				"doc_id", doc.ID,
				"tier", ex.Name(),
				"items", len(res.Items),
				"elapsed_ms", elapsed.Milliseconds(),
			)
			return outcome, nil

		case tier.StatusNoMatch:
			outcome.Attempts = append(outcome.Attempts, attempt)
			o.logger.Info("pipeline.tier.no_match",
				"doc_id", doc.ID,
				"tier", ex.Name(),
				"elapsed_ms", elapsed.Milliseconds(),
			)

		case tier.StatusFailure:
			outcome.Attempts = append(outcome.Attempts, attempt)
			if ctx.Err() != nil {
				// the tier was cut off mid-flight by the ceiling; abort
				// cleanly instead of letting later tiers race the deadline
				o.logger.Warn("pipeline.budget_exceeded_mid_tier",
					"doc_id", doc.ID,
					"tier", ex.Name(),
					"tiers_attempted", outcome.TierNames(),
				)
				return outcome, common.NewAppError(constants.ReasonBudgetExceeded,
					fmt.Sprintf("ceiling reached during tier %s", ex.Name()), ctx.Err())
			}
			o.logger.Warn("pipeline.tier.failed",
				"doc_id", doc.ID,
				"tier", ex.Name(),
				"error", res.Err,
				"elapsed_ms", elapsed.Milliseconds(),
			)
		}
	}

	o.logger.Error("pipeline.exhausted",
		"doc_id", doc.ID,
		"tiers_attempted", outcome.TierNames(),
	)
	return outcome, common.NewAppError(constants.ReasonAllTiersExhausted,
		fmt.Sprintf("no tier produced a valid batch (%d attempted)", len(outcome.Attempts)), nil)
}
