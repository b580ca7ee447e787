package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// TestOpenTrade_InvalidSide tests rejection of unsupported trade sides
func TestOpenTrade_InvalidSide(t *testing.T) {
	lg := NewMemoryLedger()
	_, err := lg.OpenTrade("BTCUSDT", Side("LONG"), d("100"), d("1"))
	assert.Error(t, err)
}

// TestCloseTrade_ComputesRealizedPnL tests P&L computation for both sides
func TestCloseTrade_ComputesRealizedPnL(t *testing.T) {
	lg := NewMemoryLedger()
	now := time.Now().UTC()

	buy, err := lg.OpenTrade("BTCUSDT", SideBuy, d("100"), d("2"))
	require.NoError(t, err)
	closed, err := lg.CloseTrade(buy.ID, d("110"), now)
	require.NoError(t, err)
	assert.True(t, closed.RealizedPnL.Equal(d("20")))
	assert.True(t, closed.IsWin())

	sell, err := lg.OpenTrade("ETHUSDT", SideSell, d("50"), d("4"))
	require.NoError(t, err)
	closed, err = lg.CloseTrade(sell.ID, d("55"), now)
	require.NoError(t, err)
	assert.True(t, closed.RealizedPnL.Equal(d("-20")))
	assert.False(t, closed.IsWin())
}

// TestCloseTrade_AlreadyClosed tests double-close rejection
func TestCloseTrade_AlreadyClosed(t *testing.T) {
	lg := NewMemoryLedger()
	trade, err := lg.OpenTrade("BTCUSDT", SideBuy, d("100"), d("1"))
	require.NoError(t, err)

	_, err = lg.CloseTrade(trade.ID, d("105"), time.Now().UTC())
	require.NoError(t, err)
	_, err = lg.CloseTrade(trade.ID, d("110"), time.Now().UTC())
	assert.Error(t, err)
}

// TestListOpenTrades tests that closed trades drop out of the open list
func TestListOpenTrades(t *testing.T) {
	lg := NewMemoryLedger()
	ctx := context.Background()

	a, err := lg.OpenTrade("BTCUSDT", SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	_, err = lg.OpenTrade("ETHUSDT", SideBuy, d("50"), d("1"))
	require.NoError(t, err)

	open, err := lg.ListOpenTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	_, err = lg.CloseTrade(a.ID, d("101"), time.Now().UTC())
	require.NoError(t, err)

	open, err = lg.ListOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "ETHUSDT", open[0].Symbol)
}

// TestListTradesClosedOn tests the UTC calendar day filter
func TestListTradesClosedOn(t *testing.T) {
	lg := NewMemoryLedger()
	ctx := context.Background()
	today := time.Now().UTC()
	yesterday := today.AddDate(0, 0, -1)

	a, err := lg.OpenTrade("BTCUSDT", SideBuy, d("100"), d("1"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(a.ID, d("105"), today)
	require.NoError(t, err)

	b, err := lg.OpenTrade("ETHUSDT", SideBuy, d("50"), d("1"))
	require.NoError(t, err)
	_, err = lg.CloseTrade(b.ID, d("49"), yesterday)
	require.NoError(t, err)

	closed, err := lg.ListTradesClosedOn(ctx, today)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "BTCUSDT", closed[0].Symbol)
}

// TestListClosedTrades tests newest-first ordering and the limit
func TestListClosedTrades(t *testing.T) {
	lg := NewMemoryLedger()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		trade, err := lg.OpenTrade("BTCUSDT", SideBuy, d("100"), d("1"))
		require.NoError(t, err)
		_, err = lg.CloseTrade(trade.ID, d("105"), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	closed, err := lg.ListClosedTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.True(t, closed[0].ClosedAt.After(closed[1].ClosedAt))

	all, err := lg.ListClosedTrades(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
