// Package tier implements the four extraction strategies. Each tier
// attempts the whole document and either yields a usable item list or
// signals the orchestrator to advance; partial output is never returned.
package tier

import (
	"context"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// Status tags one extraction attempt outcome.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusNoMatch Status = "NO_MATCH"
	StatusFailure Status = "FAILURE"
)

// Result is the tagged outcome of one tier attempt.
type Result struct {
	Status Status
	Items  []entity.LineItem
	Reason constants.Reason
	Err    error
}

// Success wraps a usable item list.
func Success(items []entity.LineItem) Result {
	return Result{Status: StatusSuccess, Items: items, Reason: constants.ReasonOK}
}

// NoMatch signals the orchestrator to advance to the next tier.
func NoMatch() Result {
	return Result{Status: StatusNoMatch, Reason: constants.ReasonTierNoMatch}
}

// Failure signals a tier-level error (retries already exhausted). The
// orchestrator treats it like a no-match and advances.
func Failure(err error) Result {
	return Result{Status: StatusFailure, Reason: constants.ReasonTierTransientFailure, Err: err}
}

// Extractor is the common tier contract.
type Extractor interface {
	Name() constants.TierName
	Extract(ctx context.Context, doc *entity.Document, profile *vendor.Profile) Result
}
