package plan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_ledger/config"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	cfg := config.Default()
	c, err := NewCatalog(cfg.Plans, cfg.Addons)
	require.NoError(t, err)
	return c
}

func TestTier_Rank(t *testing.T) {
	assert.Less(t, Free.Rank(), Basic.Rank())
	assert.Less(t, Basic.Rank(), Pro.Rank())
	assert.Less(t, Pro.Rank(), Enterprise.Rank())
	assert.True(t, Free.IsFree())
	assert.False(t, Basic.IsFree())
	assert.Equal(t, 0, Tier("unknown").Rank())
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"basic", Basic},
		{"Basic", Basic},
		{" PRO ", Pro},
		{"enterprise", Enterprise},
		{"基础版", Basic},
		{"专业版", Pro},
		{"企业版", Enterprise},
		{"免费版", Free},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTier(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseTier("platinum")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("annual")
	require.NoError(t, err)
	assert.Equal(t, Annual, p)
	assert.Equal(t, 12, p.Months())
	assert.Equal(t, 365, p.Days())

	p, err = ParsePeriod("monthly")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Months())
	assert.Equal(t, 30, p.Days())

	_, err = ParsePeriod("weekly")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestCatalog_PriceOf(t *testing.T) {
	c := defaultCatalog(t)

	price, err := c.PriceOf(Pro, Monthly, "cny")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("99.90")))

	price, err = c.PriceOf(Basic, Annual, "USD")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("83.88")))

	_, err = c.PriceOf(Free, Monthly, "CNY")
	assert.ErrorIs(t, err, ErrNoPrice)

	_, err = c.PriceOf(Pro, Monthly, "EUR")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestCatalog_Allowance(t *testing.T) {
	c := defaultCatalog(t)

	assert.Equal(t, Allowance{Image: 30, Video: 5}, c.Allowance(Free))
	assert.Equal(t, Allowance{Image: 100, Video: 20}, c.Allowance(Basic))
	assert.Equal(t, Allowance{Image: 500, Video: 100}, c.Allowance(Pro))
	assert.Equal(t, Allowance{Image: 1500, Video: 300}, c.Allowance(Enterprise))
	assert.Equal(t, []Tier{Free, Basic, Pro, Enterprise}, c.Tiers())
}

func TestCatalog_Addon(t *testing.T) {
	c := defaultCatalog(t)

	a, err := c.Addon("addon_standard")
	require.NoError(t, err)
	assert.Equal(t, 100, a.ImageCredits)
	assert.Equal(t, 20, a.VideoAudioCredits)

	price, err := a.PriceIn("cny")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("29.9")))

	_, err = c.Addon("addon_huge")
	assert.ErrorIs(t, err, ErrUnknownAddon)
	assert.Len(t, c.Addons(), 3)
}

func TestNewCatalog_InvalidInput(t *testing.T) {
	_, err := NewCatalog(map[string]config.PlanConfig{"gold": {}}, nil)
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = NewCatalog(map[string]config.PlanConfig{
		"basic": {MonthlyPrice: map[string]string{"CNY": "abc"}},
	}, nil)
	assert.Error(t, err)
}
