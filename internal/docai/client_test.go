package docai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/retry"
)

const analysisPayload = `{
	"text": "ORDER NO: CS003837319\n6 D123456 walnut photo frame 4.50",
	"entities": [
		{"type": "invoice_number", "mention": "CS003837319"},
		{"type": "line_item", "mention": "6 D123456 walnut photo frame 4.50", "properties": [
			{"type": "product_code", "mention": "D123456"},
			{"type": "unit_price", "mention": "4.50"},
			{"type": "qty_shipped", "mention": "6"}
		]}
	],
	"tables": [
		{"page": 1, "headers": ["Item No", "Qty", "Price"], "rows": [["D123456", "6", "4.50"]]}
	]
}`

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		var body struct {
			Content     string `json:"content"`
			ContentType string `json:"content_type"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application/pdf", body.ContentType)
		assert.NotEmpty(t, body.Content)
		_, _ = w.Write([]byte(analysisPayload))
	}))
	defer srv.Close()

	c := NewClient(nil, common.DocAIConfig{Endpoint: srv.URL, APIKey: "sekrit"}, testPolicy())
	doc, err := c.Analyze(context.Background(), []byte("%PDF-1.4 ..."), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, doc.Text, "CS003837319")
	assert.Len(t, doc.Entities, 2)
	assert.Len(t, doc.Tables, 1)
}

func TestAnalyzeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(nil, common.DocAIConfig{Endpoint: srv.URL}, testPolicy())
	_, err := c.Analyze(context.Background(), []byte("x"), "application/pdf")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, common.IsTransient(err))
}

func TestAnalyzeExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(nil, common.DocAIConfig{Endpoint: srv.URL}, testPolicy())
	_, err := c.Analyze(context.Background(), []byte("x"), "application/pdf")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "attempts exhausted")
}

func TestAnalyzeRequiresEndpoint(t *testing.T) {
	c := NewClient(nil, common.DocAIConfig{}, testPolicy())
	_, err := c.Analyze(context.Background(), []byte("x"), "application/pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestParsePayload(t *testing.T) {
	doc, err := ParsePayload([]byte(analysisPayload))
	require.NoError(t, err)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", doc.ID.String())
	assert.Equal(t, 1, doc.Tables[0].Page)

	t.Run("rejects_schema_violation", func(t *testing.T) {
		// entity missing its required type
		_, err := ParsePayload([]byte(`{"text": "x", "entities": [{"mention": "D123456"}]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rejected")
	})

	t.Run("rejects_empty_text", func(t *testing.T) {
		_, err := ParsePayload([]byte(`{"entities": []}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("rejects_non_json", func(t *testing.T) {
		_, err := ParsePayload([]byte("not json"))
		require.Error(t, err)
	})
}

func TestSendJSONReturnsBodyOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": "unparseable document"}`))
	}))
	defer srv.Close()

	raw, status, err := SendJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"k": "v"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(raw), "unparseable")
}
