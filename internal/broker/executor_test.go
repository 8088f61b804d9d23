package broker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/relaycopier/signalcopier/internal/domain"
)

func testExecutor(settings ExecutorSettings) *Executor {
	return NewExecutor(nil, "acct-1", "tenant-12345678", settings)
}

func TestSplitLotsSplitModeUsesRatios(t *testing.T) {
	e := testExecutor(ExecutorSettings{
		SplitTPs: true,
		TPRatios: []decimal.Decimal{decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.3), decimal.NewFromFloat(0.2)},
		TPLotMode: domain.TPLotModeSplit,
	})
	lots := e.splitLots(decimal.NewFromFloat(0.1), 3)
	assert.Len(t, lots, 3)
	sum := decimal.Zero
	for _, l := range lots {
		sum = sum.Add(l)
	}
	assert.True(t, sum.Sub(decimal.NewFromFloat(0.1)).Abs().LessThan(decimal.NewFromFloat(0.01)))
}

func TestSplitLotsEqualModeGivesFullLotToEach(t *testing.T) {
	e := testExecutor(ExecutorSettings{SplitTPs: true, TPLotMode: domain.TPLotModeEqual})
	lots := e.splitLots(decimal.NewFromFloat(0.05), 3)
	for _, l := range lots {
		assert.True(t, l.Equal(decimal.NewFromFloat(0.05)))
	}
}

func TestSplitLotsSingleTPReturnsFullLot(t *testing.T) {
	e := testExecutor(ExecutorSettings{SplitTPs: true, TPLotMode: domain.TPLotModeSplit})
	lots := e.splitLots(decimal.NewFromFloat(0.1), 1)
	assert.Len(t, lots, 1)
	assert.True(t, lots[0].Equal(decimal.NewFromFloat(0.1)))
}

func TestOrderTypeSelectsMarketWithinThreshold(t *testing.T) {
	e := testExecutor(ExecutorSettings{GoldThreshold: decimal.NewFromFloat(3.0)})
	ot := e.orderType(domain.Buy, decimal.NewFromFloat(1950), decimal.NewFromFloat(1950.5), "XAUUSD")
	assert.Equal(t, "ORDER_TYPE_BUY", ot)
}

func TestOrderTypeSelectsStopAboveMarketForBuy(t *testing.T) {
	e := testExecutor(ExecutorSettings{GoldThreshold: decimal.NewFromFloat(3.0)})
	ot := e.orderType(domain.Buy, decimal.NewFromFloat(1960), decimal.NewFromFloat(1950), "XAUUSD")
	assert.Equal(t, "ORDER_TYPE_BUY_STOP", ot)
}

func TestOrderTypeSelectsLimitBelowMarketForBuy(t *testing.T) {
	e := testExecutor(ExecutorSettings{GoldThreshold: decimal.NewFromFloat(3.0)})
	ot := e.orderType(domain.Buy, decimal.NewFromFloat(1940), decimal.NewFromFloat(1950), "XAUUSD")
	assert.Equal(t, "ORDER_TYPE_BUY_LIMIT", ot)
}

func TestOrderTypeSellStopAndLimit(t *testing.T) {
	e := testExecutor(ExecutorSettings{GoldThreshold: decimal.NewFromFloat(3.0)})
	assert.Equal(t, "ORDER_TYPE_SELL_STOP", e.orderType(domain.Sell, decimal.NewFromFloat(1940), decimal.NewFromFloat(1950), "XAUUSD"))
	assert.Equal(t, "ORDER_TYPE_SELL_LIMIT", e.orderType(domain.Sell, decimal.NewFromFloat(1960), decimal.NewFromFloat(1950), "XAUUSD"))
}

func TestShortTagTruncatesTo8(t *testing.T) {
	assert.Equal(t, "tenant-1", shortTag("tenant-12345678"))
	assert.Equal(t, "abc", shortTag("abc"))
}

func TestPriceThresholdBySymbolKind(t *testing.T) {
	assert.True(t, priceThreshold("USDJPY", decimal.Zero).Equal(decimal.NewFromFloat(0.05)))
	assert.True(t, priceThreshold("DJ30", decimal.Zero).Equal(decimal.NewFromFloat(10.0)))
	assert.True(t, priceThreshold("EURUSD", decimal.Zero).Equal(decimal.NewFromFloat(0.0005)))
	assert.True(t, priceThreshold("XAUUSD", decimal.NewFromFloat(5.0)).Equal(decimal.NewFromFloat(5.0)))
}
