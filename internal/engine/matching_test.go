package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/book"
	"fenrir/internal/common"
	"fenrir/internal/syncer"
)

func limitOrder(id uint64, side common.Side, price, qty, updatedAt uint64) *common.Order {
	return &common.Order{
		ID:                 id,
		Side:               side,
		OrderType:          common.Limit,
		MatchStrategy:      common.Standard,
		LiquidityDirective: common.AllowTaker,
		TimeInForce:        common.GoodTillCancelled,
		Price:              common.NewPrice(price),
		Quantity:           common.NewQuantity(qty),
		FilledQuantity:     common.NewQuantity(0),
		CreatedAt:          updatedAt,
		UpdatedAt:          updatedAt,
	}
}

func marketOrder(id uint64, side common.Side, qty, updatedAt uint64, strategy common.MatchStrategy, slippageBps *uint32) *common.Order {
	return &common.Order{
		ID:                 id,
		Side:               side,
		OrderType:          common.Market,
		MatchStrategy:      strategy,
		LiquidityDirective: common.AllowTaker,
		TimeInForce:        common.None,
		Price:              common.NewPrice(0),
		Quantity:           common.NewQuantity(qty),
		FilledQuantity:     common.NewQuantity(0),
		SlippageTolerance:  slippageBps,
		CreatedAt:          updatedAt,
		UpdatedAt:          updatedAt,
	}
}

func newTestBook() *book.OrderBook {
	return book.New(syncer.Noop{})
}

// S1 — full fill.
func TestS1FullFill(t *testing.T) {
	b := newTestBook()
	b.Insert(limitOrder(1, common.Sell, 100, 10, 1000))
	b.Insert(limitOrder(2, common.Buy, 100, 10, 1001))

	NewMatchingEngine(b, 2000).MatchOrders()

	_, sellStillThere := b.BestPrice(common.Sell)
	_, buyStillThere := b.BestPrice(common.Buy)
	assert.False(t, sellStillThere)
	assert.False(t, buyStillThere)
}

// S2 — price-time priority.
func TestS2PriceTimePriority(t *testing.T) {
	b := newTestBook()
	b.Insert(limitOrder(1, common.Sell, 100, 10, 1000))
	b.Insert(limitOrder(2, common.Sell, 100, 10, 1005))
	b.Insert(limitOrder(3, common.Buy, 100, 10, 1010))

	NewMatchingEngine(b, 2000).MatchOrders()

	var remaining []uint64
	b.WalkSideMaker(common.Sell, nil, func(o *common.Order) book.WalkingResult {
		remaining = append(remaining, o.ID)
		return book.Next()
	})
	require.Len(t, remaining, 1)
	assert.Equal(t, uint64(2), remaining[0])
}

// S3 — partial maker.
func TestS3PartialMaker(t *testing.T) {
	b := newTestBook()
	b.Insert(limitOrder(1, common.Sell, 100, 10, 1000))
	b.Insert(limitOrder(2, common.Buy, 100, 4, 1001))

	NewMatchingEngine(b, 2000).MatchOrders()

	var maker *common.Order
	b.WalkSideMaker(common.Sell, nil, func(o *common.Order) book.WalkingResult {
		maker = o
		return book.Next()
	})
	require.NotNil(t, maker)
	assert.Equal(t, common.NewQuantity(6), maker.Quantity)
}

// S4 — FOK insufficient liquidity.
func TestS4FOKInsufficientLiquidity(t *testing.T) {
	b := newTestBook()
	b.Insert(limitOrder(1, common.Sell, 100, 5, 1000))
	taker := marketOrder(2, common.Buy, 10, 1001, common.FillOrKill, nil)
	b.Insert(taker)

	NewMatchingEngine(b, 2000).MatchOrders()

	assert.Equal(t, common.Rejected, taker.Status)
	require.NotNil(t, taker.RejectReason)
	assert.Equal(t, common.InsufficientLiquidity, *taker.RejectReason)

	var maker *common.Order
	b.WalkSideMaker(common.Sell, nil, func(o *common.Order) book.WalkingResult {
		maker = o
		return book.Next()
	})
	require.NotNil(t, maker)
	assert.Equal(t, common.NewQuantity(5), maker.Quantity, "untouched maker liquidity on a failed FOK lock")
}

// A FOK market sell must lock the buy side, not the sell side. The
// system this spec was distilled from hardcoded Side::Sell in this
// walk regardless of taker side; this is the regression test for the
// fix.
func TestFOKSellLocksBuySideNotSellSide(t *testing.T) {
	b := newTestBook()
	b.Insert(limitOrder(1, common.Buy, 100, 10, 1000))
	taker := marketOrder(2, common.Sell, 10, 1001, common.FillOrKill, nil)
	b.Insert(taker)

	NewMatchingEngine(b, 2000).MatchOrders()

	assert.Equal(t, common.Filled, taker.Status)
	_, buyStillThere := b.BestPrice(common.Buy)
	assert.False(t, buyStillThere, "the buy-side maker must have been locked and filled")
}

// S5 — slippage cutoff on a market IOC buy.
func TestS5SlippageCutoff(t *testing.T) {
	b := newTestBook()
	b.Insert(limitOrder(1, common.Sell, 100, 5, 1000))
	b.Insert(limitOrder(2, common.Sell, 120, 10, 1001))
	bps := uint32(10)
	taker := marketOrder(3, common.Buy, 10, 1002, common.ImmediateOrCancel, &bps)
	b.Insert(taker)

	NewMatchingEngine(b, 2000).MatchOrders()

	assert.Equal(t, common.NewQuantity(5), taker.Quantity, "5 units unfilled after the slip-priced sell exhausts")
	assert.Equal(t, common.PartiallyFilled, taker.Status)

	var remainingSells []uint64
	b.WalkSideMaker(common.Sell, nil, func(o *common.Order) book.WalkingResult {
		remainingSells = append(remainingSells, o.ID)
		return book.Next()
	})
	assert.Equal(t, []uint64{2}, remainingSells)
}

// A surviving partially-filled maker must stay the front of its side for
// the next taker election within the same pass, not just the current
// active taker's own continuation. Buy(2) and Buy(3) rest ahead of
// Sell(1) and Sell(4); Sell(1) clears Buy(2) then continues against
// Buy(3), leaving Buy(3) partially filled but still resting — Buy(3)
// must then go on to cross Sell(4) in this same MatchOrders call instead
// of being skipped over as already "visited".
func TestCrossTakerResolvesSurvivingMakerAgainstNextTaker(t *testing.T) {
	b := newTestBook()
	b.Insert(limitOrder(2, common.Buy, 100, 4, 1001))
	b.Insert(limitOrder(3, common.Buy, 100, 20, 1002))
	b.Insert(limitOrder(1, common.Sell, 100, 10, 1000))
	b.Insert(limitOrder(4, common.Sell, 100, 5, 1003))

	NewMatchingEngine(b, 2000).MatchOrders()

	_, sellThere := b.BestPrice(common.Sell)
	assert.False(t, sellThere, "both sell orders must be consumed in this pass")

	var remainingBuys []*common.Order
	b.WalkSideMaker(common.Buy, nil, func(o *common.Order) book.WalkingResult {
		remainingBuys = append(remainingBuys, o)
		return book.Next()
	})
	require.Len(t, remainingBuys, 1, "only Buy(3) should remain, partially filled")
	assert.Equal(t, uint64(3), remainingBuys[0].ID)
	assert.Equal(t, common.NewQuantity(9), remainingBuys[0].Quantity)
}

// S6 — MakerOnly orders never cross each other.
func TestS6MakerOnlyNoCross(t *testing.T) {
	b := newTestBook()
	sell := limitOrder(1, common.Sell, 100, 10, 1000)
	sell.LiquidityDirective = common.MakerOnly
	buy := limitOrder(2, common.Buy, 110, 10, 1000)
	buy.LiquidityDirective = common.MakerOnly
	b.Insert(sell)
	b.Insert(buy)

	NewMatchingEngine(b, 2000).MatchOrders()

	_, sellThere := b.BestPrice(common.Sell)
	_, buyThere := b.BestPrice(common.Buy)
	assert.True(t, sellThere)
	assert.True(t, buyThere)
}
