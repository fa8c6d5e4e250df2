package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/repository"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// Processor coordinates vendor classification, the tier fallback run, and
// ledger recording for one document.
type Processor struct {
	Logger     *slog.Logger
	Classifier *vendor.Classifier
	Orch       *Orchestrator
	Ledger     *repository.Ledger // optional; nil disables recording
}

func NewProcessor(logger *slog.Logger, classifier *vendor.Classifier, orch *Orchestrator, ledger *repository.Ledger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Classifier: classifier, Orch: orch, Ledger: ledger}
}

// Summary is the per-document result handed to the HTTP surface and the
// batch tool.
type Summary struct {
	JobID        uuid.UUID
	VendorID     string
	VendorName   string
	VendorReason constants.Reason // OK or VENDOR_UNKNOWN
	WinningTier  constants.TierName
	Items        []entity.LineItem
	Attempts     []Attempt
}

// ProcessDocument runs the whole per-request flow. The returned Summary is
// populated even when err is a terminal failure, so callers can surface the
// tier trail. Re-running on identical input yields an identical item list.
func (p *Processor) ProcessDocument(ctx context.Context, doc *entity.Document) (*Summary, error) {
	started := time.Now().UTC()

	profile, vendorReason := p.Classifier.Classify(doc.FullText())
	p.Logger.Info("processor.classified",
		"doc_id", doc.ID,
		"vendor_id", profile.VendorID,
		"vendor_reason", vendorReason,
	)

	outcome, err := p.Orch.Run(ctx, doc, profile)

	summary := &Summary{
		JobID:        uuid.New(),
		VendorID:     profile.VendorID,
		VendorName:   profile.DisplayName,
		VendorReason: vendorReason,
		WinningTier:  outcome.WinningTier,
		Items:        outcome.Items,
		Attempts:     outcome.Attempts,
	}

	job := &entity.ExtractJob{
		ID:             summary.JobID,
		DocumentID:     doc.ID,
		VendorID:       profile.VendorID,
		TiersAttempted: outcome.TierNames(),
		WinningTier:    string(outcome.WinningTier),
		Reason:         constants.ReasonOK,
		ItemCount:      len(outcome.Items),
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
	}
	if err != nil {
		job.Reason = constants.ReasonAllTiersExhausted
		if r, ok := common.ReasonOf(err); ok {
			job.Reason = r
		}
		job.ErrorMessage = err.Error()
	}
	if p.Ledger != nil {
		if recErr := p.Ledger.Record(ctx, job); recErr != nil {
			// ledger trouble must not fail the extraction itself
			p.Logger.Error("processor.ledger.record_failed", "job_id", job.ID, "error", recErr)
		}
	}

	if err != nil {
		p.Logger.Error("processor.failed",
			"doc_id", doc.ID,
			"job_id", job.ID,
			"reason", job.Reason,
			"tiers_attempted", job.TiersAttempted,
		)
		return summary, err
	}
	p.Logger.Info("processor.ok",
		"doc_id", doc.ID,
		"job_id", job.ID,
		"vendor_id", profile.VendorID,
		"tier", outcome.WinningTier,
		"items", len(outcome.Items),
	)
	return summary, nil
}
