package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/mhartley/invoice-extract/constants"
)

// ExtractJob is the ledger record for one processed document: which vendor
// was detected, which tiers ran, and how the request ended.
type ExtractJob struct {
	ID             uuid.UUID        `json:"id"`
	DocumentID     uuid.UUID        `json:"document_id"`
	VendorID       string           `json:"vendor_id"`
	TiersAttempted []string         `json:"tiers_attempted"`
	WinningTier    string           `json:"winning_tier,omitempty"`
	Reason         constants.Reason `json:"reason"`
	ItemCount      int              `json:"item_count"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// Elapsed is the wall-clock duration of the whole multi-tier attempt.
func (j *ExtractJob) Elapsed() time.Duration {
	return j.FinishedAt.Sub(j.StartedAt)
}
