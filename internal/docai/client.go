// Package docai talks to the document-understanding service that turns raw
// document bytes into text, entity annotations, and detected tables.
package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/retry"
)

// Client calls the analysis endpoint with bounded retries. The response is
// schema-validated before use.
type Client struct {
	logger *slog.Logger
	http   *http.Client
	cfg    common.DocAIConfig
	policy retry.Policy
}

func NewClient(logger *slog.Logger, cfg common.DocAIConfig, policy retry.Policy) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger: logger,
		http:   &http.Client{Timeout: timeout},
		cfg:    cfg,
		policy: policy,
	}
}

// Analyze submits document bytes and returns the parsed, validated Document.
func (c *Client) Analyze(ctx context.Context, content []byte, contentType string) (*entity.Document, error) {
	if c.cfg.Endpoint == "" {
		return nil, fmt.Errorf("docai endpoint not configured: %w", common.ErrInvalidInput)
	}

	body := map[string]any{
		"content":      base64.StdEncoding.EncodeToString(content),
		"content_type": contentType,
	}
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	var raw []byte
	err := c.policy.Do(ctx, c.logger, "docai.analyze", func(ctx context.Context) error {
		var status int
		var err error
		raw, status, err = SendJSON(ctx, c.http, c.cfg.Endpoint, body, headers, c.logger)
		if err != nil {
			if status == 0 || status == http.StatusTooManyRequests || status >= 500 {
				return fmt.Errorf("docai call: %v: %w", err, common.ErrTransient)
			}
			return fmt.Errorf("docai call: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ParsePayload(raw)
}

// ParsePayload validates an analysis payload and decodes it into a Document
// with a fresh ID. Exported so the batch tool can load saved payload dumps
// through the same validation.
func ParsePayload(raw []byte) (*entity.Document, error) {
	if err := ValidateJSONAgainstSchema(BuildAnalysisSchema(), raw); err != nil {
		return nil, fmt.Errorf("docai payload rejected: %w", err)
	}
	var doc entity.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode docai payload: %w", err)
	}
	doc.ID = uuid.New()
	if doc.Text == "" && len(doc.Pages) == 0 {
		return nil, fmt.Errorf("docai payload has no text: %w", common.ErrInvalidInput)
	}
	return &doc, nil
}

// SendJSON sends a JSON request to a full URL with optional headers and
// returns the raw response body. Callers decide the URL and headers.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("docai.http.encode_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		logger.Error("docai.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("docai.http.request",
		"req_id", reqID,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("docai.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Warn("docai.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	logger.Info("docai.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}
