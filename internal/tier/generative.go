package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/docai"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/retry"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// GenerativeTier extracts line items with a chat-completions model. It is
// not in the default tier order; enable it explicitly once its latency fits
// the document budget.
type GenerativeTier struct {
	logger *slog.Logger
	cfg    common.LLMConfig
	http   *http.Client
	policy retry.Policy
}

func NewGenerativeTier(logger *slog.Logger, cfg common.LLMConfig, policy retry.Policy) *GenerativeTier {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &GenerativeTier{
		logger: logger,
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		policy: policy,
	}
}

func (t *GenerativeTier) Name() constants.TierName { return constants.TierGenerative }

func (t *GenerativeTier) Extract(ctx context.Context, doc *entity.Document, profile *vendor.Profile) Result {
	rid := uuid.New().String()
	start := time.Now()
	text := doc.FullText()

	t.logger.Info("tier.generative.start",
		"req_id", rid,
		"doc_id", doc.ID,
		"model", t.cfg.Model,
		"text_len", len(text),
		"vendor_id", profile.VendorID,
	)

	schema := BuildLineItemsSchema()
	body := map[string]any{
		"model":           t.cfg.Model,
		"temperature":     t.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(profile)},
			{"role": "user", "content": buildUserPrompt(text)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + t.cfg.APIKey}

	var raw []byte
	err := t.policy.Do(ctx, t.logger, "generative.extract", func(ctx context.Context) error {
		var status int
		var err error
		raw, status, err = docai.SendJSON(ctx, t.http, endpoint, body, headers, t.logger)
		if err != nil {
			if status == 0 || status == http.StatusTooManyRequests || status >= 500 {
				return fmt.Errorf("llm call: %v: %w", err, common.ErrTransient)
			}
			return fmt.Errorf("llm call: %w", err)
		}
		return nil
	})
	if err != nil {
		t.logger.Error("tier.generative.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Failure(err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return Failure(fmt.Errorf("decode llm response: %w", err))
	}
	if len(cc.Choices) == 0 {
		return Failure(fmt.Errorf("no choices in llm response"))
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	// Validate strictly first, then retry once after a lenient sanitize.
	if err := docai.ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, droppedFields, sErr := SanitizeLineItemsJSON(content)
		if sErr != nil {
			return Failure(fmt.Errorf("sanitize llm output: %w", sErr))
		}
		if vErr := docai.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			t.logger.Error("tier.generative.schema_validation_failed",
				"req_id", rid, "error", vErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return Failure(fmt.Errorf("llm output schema validation: %w", vErr))
		}
		t.logger.Warn("tier.generative.lenient_sanitize_applied",
			"req_id", rid, "dropped", droppedFields,
		)
		content = cleaned
	}

	var payload struct {
		InvoiceNumber string `json:"invoice_number"`
		LineItems     []struct {
			ProductCode string `json:"product_code"`
			Description string `json:"description"`
			UnitPrice   string `json:"unit_price"`
			Quantity    int    `json:"quantity"`
			UPC         string `json:"upc"`
		} `json:"line_items"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		return Failure(fmt.Errorf("decode llm line items: %w", err))
	}

	invoiceNumber := payload.InvoiceNumber
	if invoiceNumber == "" {
		invoiceNumber = profile.FindInvoiceNumber(text)
	}

	items := make([]entity.LineItem, 0, len(payload.LineItems))
	for _, li := range payload.LineItems {
		code, ok := profile.MatchProductCode(li.ProductCode)
		if !ok {
			continue
		}
		items = append(items, entity.LineItem{
			InvoiceNumber: invoiceNumber,
			Description:   li.Description,
			ProductCode:   code,
			UnitPrice:     parsePrice(li.UnitPrice),
			Quantity:      li.Quantity,
			UPC:           li.UPC,
		})
	}

	t.logger.Info("tier.generative.mapped",
		"req_id", rid,
		"doc_id", doc.ID,
		"model_items", len(payload.LineItems),
		"emitted", len(items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if len(items) == 0 {
		return NoMatch()
	}
	return Success(items)
}

func buildSystemPrompt(profile *vendor.Profile) string {
	parts := []string{
		"You are an invoice line-item parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Extract EVERY product row from the ENTIRE document, all pages; never stop early.",
		"product_code is the vendor catalog code, not the UPC.",
		"unit_price is the per-unit price as a decimal string, not the extended amount.",
		"Never output null. If a field is not present, omit it.",
	}
	if len(profile.ProductCodePatterns) > 0 {
		shapes := make([]string, 0, len(profile.ProductCodePatterns))
		for _, p := range profile.ProductCodePatterns {
			shapes = append(shapes, p.Expr())
		}
		parts = append(parts, "Product codes for this vendor match one of: "+strings.Join(shapes, " , "))
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(text string) string {
	return "Invoice text:\n\n" + text + "\n\nReturn ONLY JSON that matches the provided schema."
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
