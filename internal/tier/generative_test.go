package tier

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

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/retry"
)

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func genTier(baseURL string) *GenerativeTier {
	return NewGenerativeTier(nil, common.LLMConfig{
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
		APIKey:  "sk-test",
	}, retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond})
}

func genDoc() *entity.Document {
	return &entity.Document{Text: "ORDER NO: CS003837319\n6 D123456 walnut photo frame 4.50"}
}

func TestGenerativeTierHappyPath(t *testing.T) {
	_, profile := giftwareProfile(t)

	var gotBody atomic.Pointer[map[string]any]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBody.Store(&body)
		_, _ = w.Write([]byte(chatReply(`{
			"invoice_number": "CS003837319",
			"line_items": [
				{"product_code": "D123456", "description": "walnut photo frame", "unit_price": "4.50", "quantity": 6},
				{"product_code": "TOTAL", "description": "not a real row"}
			]
		}`)))
	}))
	defer srv.Close()

	g := genTier(srv.URL + "/v1")
	res := g.Extract(context.Background(), genDoc(), profile)
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Items, 1, "rows without a valid code shape are dropped")
	assert.Equal(t, "D123456", res.Items[0].ProductCode)
	assert.Equal(t, "CS003837319", res.Items[0].InvoiceNumber)
	assert.Equal(t, 6, res.Items[0].Quantity)

	body := *gotBody.Load()
	assert.Equal(t, "gpt-4o-mini", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	system := msgs[0].(map[string]any)["content"].(string)
	assert.Contains(t, system, "EVERY product row")
	assert.Contains(t, system, "ENTIRE document")
}

func TestGenerativeTierSanitizesLooseOutput(t *testing.T) {
	_, profile := giftwareProfile(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// floats and stringy quantities fail the strict schema first pass
		_, _ = w.Write([]byte(chatReply(`{
			"line_items": [
				{"product_code": "D123456", "unit_price": 4.5, "quantity": "6", "confidence": 0.9}
			]
		}`)))
	}))
	defer srv.Close()

	g := genTier(srv.URL)
	res := g.Extract(context.Background(), genDoc(), profile)
	require.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 6, res.Items[0].Quantity)
	require.True(t, res.Items[0].UnitPrice.Valid)
	assert.Equal(t, "CS003837319", res.Items[0].InvoiceNumber, "invoice number recovered from document text")
}

func TestGenerativeTierRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, profile := giftwareProfile(t)
	g := genTier(srv.URL)
	res := g.Extract(context.Background(), genDoc(), profile)
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerativeTierRejectsUnfixableOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatReply(`{"line_items": [{"description": "missing required code"}]}`)))
	}))
	defer srv.Close()

	_, profile := giftwareProfile(t)
	g := genTier(srv.URL)
	res := g.Extract(context.Background(), genDoc(), profile)
	assert.Equal(t, StatusFailure, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "schema validation")
}

func TestGenerativeTierNoUsableRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatReply(`{"line_items": []}`)))
	}))
	defer srv.Close()

	_, profile := giftwareProfile(t)
	g := genTier(srv.URL)
	res := g.Extract(context.Background(), genDoc(), profile)
	assert.Equal(t, StatusNoMatch, res.Status)
}

func TestGenerativeTierName(t *testing.T) {
	assert.Equal(t, constants.TierGenerative, genTier("http://localhost").Name())
}
