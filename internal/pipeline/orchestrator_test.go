package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/common"
	"github.com/mhartley/invoice-extract/internal/entity"
	"github.com/mhartley/invoice-extract/internal/patterns"
	"github.com/mhartley/invoice-extract/internal/tier"
	"github.com/mhartley/invoice-extract/internal/validate"
	"github.com/mhartley/invoice-extract/internal/vendor"
)

// stubTier scripts one tier outcome and counts invocations.
type stubTier struct {
	name  constants.TierName
	fn    func(ctx context.Context) tier.Result
	calls int
}

func (s *stubTier) Name() constants.TierName { return s.name }

func (s *stubTier) Extract(ctx context.Context, _ *entity.Document, _ *vendor.Profile) tier.Result {
	s.calls++
	return s.fn(ctx)
}

func fixed(name constants.TierName, res tier.Result) *stubTier {
	return &stubTier{name: name, fn: func(context.Context) tier.Result { return res }}
}

func goodItems(n int) []entity.LineItem {
	items := make([]entity.LineItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, entity.LineItem{
			InvoiceNumber: "CS003837319",
			ProductCode:   fmt.Sprintf("D1%05d", i),
			Description:   fmt.Sprintf("item %d", i),
			UnitPrice:     decimal.NullDecimal{Decimal: decimal.New(int64(100+i), -2), Valid: true},
			Quantity:      1 + i%7,
		})
	}
	return items
}

func placeholderItems(n int) []entity.LineItem {
	items := make([]entity.LineItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, entity.LineItem{
			InvoiceNumber: "CS003837319",
			ProductCode:   fmt.Sprintf("D1%05d", i),
			Description:   fmt.Sprintf("item %d", i),
			UnitPrice:     decimal.NullDecimal{Decimal: decimal.New(100, -2), Valid: true},
			Quantity:      3,
		})
	}
	return items
}

func newOrch(t *testing.T, cfg Config, tiers ...tier.Extractor) *Orchestrator {
	t.Helper()
	o, err := New(nil, cfg, tiers, validate.New(nil, validate.Config{}))
	require.NoError(t, err)
	return o
}

func testDoc() *entity.Document { return &entity.Document{Text: "ORDER NO: CS003837319"} }

func testProfile(t *testing.T) *vendor.Profile {
	t.Helper()
	c := vendor.NewClassifier(nil, patterns.Builtin())
	p, ok := c.Profile("giftware")
	require.True(t, ok)
	return p
}

func TestNewRequiresTextTier(t *testing.T) {
	v := validate.New(nil, validate.Config{})

	_, err := New(nil, Config{}, nil, v)
	require.Error(t, err)

	_, err = New(nil, Config{}, []tier.Extractor{
		fixed(constants.TierEntity, tier.NoMatch()),
		fixed(constants.TierTable, tier.NoMatch()),
	}, v)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRunFirstTierWins(t *testing.T) {
	entityTier := fixed(constants.TierEntity, tier.Success(goodItems(12)))
	tableTier := fixed(constants.TierTable, tier.Success(goodItems(12)))
	textTier := fixed(constants.TierText, tier.Success(goodItems(12)))
	o := newOrch(t, Config{}, entityTier, tableTier, textTier)

	out, err := o.Run(context.Background(), testDoc(), testProfile(t))
	require.NoError(t, err)
	assert.Equal(t, constants.TierEntity, out.WinningTier)
	assert.Len(t, out.Items, 12)
	assert.Equal(t, 1, entityTier.calls)
	assert.Equal(t, 0, tableTier.calls, "tiers are fallbacks, not races")
	assert.Equal(t, 0, textTier.calls)
	assert.Equal(t, []string{"ENTITY"}, out.TierNames())
}

func TestRunAdvancesOnNoMatchAndFailure(t *testing.T) {
	entityTier := fixed(constants.TierEntity, tier.NoMatch())
	tableTier := fixed(constants.TierTable, tier.Failure(errors.New("table detector down")))
	textTier := fixed(constants.TierText, tier.Success(goodItems(5)))
	o := newOrch(t, Config{}, entityTier, tableTier, textTier)

	out, err := o.Run(context.Background(), testDoc(), testProfile(t))
	require.NoError(t, err)
	assert.Equal(t, constants.TierText, out.WinningTier)
	assert.Equal(t, []string{"ENTITY", "TABLE", "TEXT"}, out.TierNames())
	assert.Equal(t, "table detector down", out.Attempts[1].Detail)
}

func TestRunDegradedBatchAdvances(t *testing.T) {
	// entity tier claims success with 130 copies of one price/qty pair;
	// the validator bounces it and the table tier gets its shot
	entityTier := fixed(constants.TierEntity, tier.Success(placeholderItems(130)))
	tableTier := fixed(constants.TierTable, tier.Success(goodItems(130)))
	textTier := fixed(constants.TierText, tier.NoMatch())
	o := newOrch(t, Config{}, entityTier, tableTier, textTier)

	out, err := o.Run(context.Background(), testDoc(), testProfile(t))
	require.NoError(t, err)
	assert.Equal(t, constants.TierTable, out.WinningTier)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, tier.StatusFailure, out.Attempts[0].Status)
	assert.Equal(t, constants.ReasonValidationDegraded, out.Attempts[0].Reason)
	assert.Contains(t, out.Attempts[0].Detail, "distinct price/quantity pairs")
}

func TestRunAllTiersExhausted(t *testing.T) {
	o := newOrch(t, Config{},
		fixed(constants.TierEntity, tier.NoMatch()),
		fixed(constants.TierTable, tier.NoMatch()),
		fixed(constants.TierText, tier.NoMatch()),
	)

	out, err := o.Run(context.Background(), testDoc(), testProfile(t))
	require.Error(t, err)
	reason, ok := common.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, constants.ReasonAllTiersExhausted, reason)
	assert.Len(t, out.Attempts, 3, "attempt trail survives terminal failure")
}

func TestRunBudgetExceededBeforeTier(t *testing.T) {
	slow := &stubTier{name: constants.TierEntity, fn: func(ctx context.Context) tier.Result {
		<-ctx.Done()
		return tier.Failure(ctx.Err())
	}}
	textTier := fixed(constants.TierText, tier.Success(goodItems(5)))
	o := newOrch(t, Config{Budget: 60 * time.Millisecond, SafetyMargin: 10 * time.Millisecond}, slow, textTier)

	out, err := o.Run(context.Background(), testDoc(), testProfile(t))
	require.Error(t, err)
	reason, ok := common.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, constants.ReasonBudgetExceeded, reason)
	assert.Equal(t, 0, textTier.calls, "no tier starts after the ceiling")
	assert.NotEmpty(t, out.Attempts)
}

func TestRunCallerDeadlineWins(t *testing.T) {
	slow := &stubTier{name: constants.TierText, fn: func(ctx context.Context) tier.Result {
		<-ctx.Done()
		return tier.Failure(ctx.Err())
	}}
	o := newOrch(t, Config{Budget: time.Hour}, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := o.Run(ctx, testDoc(), testProfile(t))
	require.Error(t, err)
	reason, _ := common.ReasonOf(err)
	assert.Equal(t, constants.ReasonBudgetExceeded, reason)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunIsIdempotent(t *testing.T) {
	o := newOrch(t, Config{},
		fixed(constants.TierEntity, tier.NoMatch()),
		fixed(constants.TierText, tier.Success(goodItems(7))),
	)

	doc := testDoc()
	profile := testProfile(t)
	first, err := o.Run(context.Background(), doc, profile)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), doc, profile)
	require.NoError(t, err)
	assert.Equal(t, first.WinningTier, second.WinningTier)
	assert.Equal(t, first.Items, second.Items)
}
