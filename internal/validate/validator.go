// Package validate rejects degenerate extraction batches before they reach
// the sink. Its main target is placeholder duplication: a tier that stopped
// extracting partway and backfilled the rest with one repeated price and
// quantity looks successful but is garbage, and historically shipped.
package validate

import (
	"fmt"
	"log/slog"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/entity"
)

// Config holds the degenerate-result thresholds. The defaults come from
// observed failure batches, not a formal spec, which is why they are
// configuration rather than constants.
type Config struct {
	// MinItemsForDupCheck: batches smaller than this legitimately repeat
	// price/quantity pairs, so the duplication check only applies at or
	// above it.
	MinItemsForDupCheck int
	// MinUniquePairRatio: minimum fraction of distinct (unit_price,
	// quantity) pairs over total items.
	MinUniquePairRatio float64
	// MaxEmptyFieldRatio: maximum fraction of items missing any of invoice
	// number, description, price, or quantity.
	MaxEmptyFieldRatio float64
}

type Validator struct {
	logger *slog.Logger
	cfg    Config
}

func New(logger *slog.Logger, cfg Config) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinItemsForDupCheck <= 0 {
		cfg.MinItemsForDupCheck = 10
	}
	if cfg.MinUniquePairRatio <= 0 {
		cfg.MinUniquePairRatio = 0.20
	}
	if cfg.MaxEmptyFieldRatio <= 0 {
		cfg.MaxEmptyFieldRatio = 0.50
	}
	return &Validator{logger: logger, cfg: cfg}
}

// Validate returns a VALIDATION_DEGRADED error when the batch looks like a
// silent extraction failure; nil means the batch may proceed to the sink.
func (v *Validator) Validate(items []entity.LineItem) error {
	if len(items) == 0 {
		return common.NewAppError(constants.ReasonValidationDegraded, "empty batch", nil)
	}

	incomplete := 0
	pairs := make(map[string]struct{}, len(items))
	for _, li := range items {
		if li.InvoiceNumber == "" || li.Description == "" || !li.UnitPrice.Valid || li.Quantity == 0 {
			incomplete++
		}
		pairs[li.PairKey()] = struct{}{}
	}

	emptyRatio := float64(incomplete) / float64(len(items))
	if emptyRatio > v.cfg.MaxEmptyFieldRatio {
		v.logger.Warn("validate.incomplete_fields",
			"items", len(items),
			"incomplete", incomplete,
			"ratio", emptyRatio,
		)
		return common.NewAppError(constants.ReasonValidationDegraded,
			fmt.Sprintf("%d of %d items missing required fields", incomplete, len(items)), nil)
	}

	if len(items) >= v.cfg.MinItemsForDupCheck {
		uniqueRatio := float64(len(pairs)) / float64(len(items))
		if uniqueRatio < v.cfg.MinUniquePairRatio {
			v.logger.Warn("validate.placeholder_duplication",
				"items", len(items),
				"distinct_pairs", len(pairs),
				"ratio", uniqueRatio,
			)
			return common.NewAppError(constants.ReasonValidationDegraded,
				fmt.Sprintf("only %d distinct price/quantity pairs across %d items", len(pairs), len(items)), nil)
		}
	}
	return nil
}
