// Package server exposes the extraction pipeline as a single
// request/response HTTP call. The upstream caller owns the wall-clock
// budget; the orchestrator's ceiling keeps the response inside it.
package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/docai"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/pipeline"
	"github.com/mhartley/invoice-extract/internal/repository"
)

type Server struct {
	logger    *slog.Logger
	processor *pipeline.Processor
	analyzer  *docai.Client // optional; nil disables raw-content requests
	ledger    *repository.Ledger
}

func New(logger *slog.Logger, processor *pipeline.Processor, analyzer *docai.Client, ledger *repository.Ledger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, processor: processor, analyzer: analyzer, ledger: ledger}
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.health)
	r.POST("/v1/extract", s.extract)
	r.GET("/v1/jobs", s.jobs)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

type extractRequest struct {
	// Inline pre-analyzed document...
	Document *entity.Document `json:"document,omitempty"`
	// ...or raw content to push through the document-understanding service.
	Content     string `json:"content,omitempty"` // base64
	ContentType string `json:"content_type,omitempty"`
}

type lineItemView struct {
	InvoiceNumber string `json:"invoice_number"`
	Description   string `json:"description"`
	ProductCode   string `json:"product_code"`
	UnitPrice     string `json:"unit_price,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	UPC           string `json:"upc,omitempty"`
}

type extractResponse struct {
	JobID          string           `json:"job_id"`
	VendorID       string           `json:"vendor_id"`
	VendorName     string           `json:"vendor_name"`
	VendorReason   constants.Reason `json:"vendor_reason"`
	Tier           string           `json:"tier"`
	Items          []lineItemView   `json:"items"`
	TiersAttempted []string         `json:"tiers_attempted"`
}

type failureResponse struct {
	Reason         constants.Reason `json:"reason"`
	Detail         string           `json:"detail"`
	TiersAttempted []string         `json:"tiers_attempted,omitempty"`
}

func (s *Server) extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failureResponse{Reason: "INVALID_REQUEST", Detail: err.Error()})
		return
	}

	doc, err := s.resolveDocument(c, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, failureResponse{Reason: "INVALID_REQUEST", Detail: err.Error()})
		return
	}

	summary, err := s.processor.ProcessDocument(c.Request.Context(), doc)
	if err != nil {
		reason, ok := common.ReasonOf(err)
		if !ok {
			reason = constants.ReasonAllTiersExhausted
		}
		status := http.StatusUnprocessableEntity
		if reason == constants.ReasonBudgetExceeded {
			status = http.StatusGatewayTimeout
		}
		resp := failureResponse{Reason: reason, Detail: err.Error()}
		if summary != nil {
			for _, a := range summary.Attempts {
				resp.TiersAttempted = append(resp.TiersAttempted, string(a.Tier))
			}
		}
		c.JSON(status, resp)
		return
	}

	items := make([]lineItemView, 0, len(summary.Items))
	for _, li := range summary.Items {
		v := lineItemView{
			InvoiceNumber: li.InvoiceNumber,
			Description:   li.Description,
			ProductCode:   li.ProductCode,
			Quantity:      li.Quantity,
			UPC:           li.UPC,
		}
		if li.UnitPrice.Valid {
			v.UnitPrice = li.UnitPrice.Decimal.String()
		}
		items = append(items, v)
	}

	resp := extractResponse{
		JobID:        summary.JobID.String(),
		VendorID:     summary.VendorID,
		VendorName:   summary.VendorName,
		VendorReason: summary.VendorReason,
		Tier:         string(summary.WinningTier),
		Items:        items,
	}
	for _, a := range summary.Attempts {
		resp.TiersAttempted = append(resp.TiersAttempted, string(a.Tier))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) resolveDocument(c *gin.Context, req *extractRequest) (*entity.Document, error) {
	if req.Document != nil {
		doc := req.Document
		if doc.Text == "" && len(doc.Pages) == 0 {
			return nil, common.WrapError(common.ErrInvalidInput, "document has no text")
		}
		if doc.ID == uuid.Nil {
			doc.ID = uuid.New()
		}
		return doc, nil
	}
	if req.Content == "" {
		return nil, common.WrapError(common.ErrInvalidInput, "either document or content is required")
	}
	if s.analyzer == nil {
		return nil, common.WrapError(common.ErrInvalidInput, "raw content submitted but no document-understanding service configured")
	}
	raw, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, common.WrapError(err, "decode content")
	}
	return s.analyzer.Analyze(c.Request.Context(), raw, req.ContentType)
}

func (s *Server) jobs(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusNotFound, failureResponse{Reason: "LEDGER_DISABLED", Detail: "job ledger not configured"})
		return
	}
	jobs, err := s.ledger.Recent(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, failureResponse{Reason: "LEDGER_ERROR", Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
