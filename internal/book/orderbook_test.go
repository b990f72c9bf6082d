package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestInsertAndBestPrice(t *testing.T) {
	b := New(syncer.Noop{})
	b.Insert(limitOrder(1, common.Buy, 100, 10, 1000))
	b.Insert(limitOrder(2, common.Buy, 105, 10, 1001))

	best, ok := b.BestPrice(common.Buy)
	require.True(t, ok)
	assert.Equal(t, common.NewPrice(105), best)
}

func TestRemoveIsIdempotentOnUnknownID(t *testing.T) {
	b := New(syncer.Noop{})
	err := b.Remove(999, common.UserRequest)
	assert.Equal(t, common.ErrCancelOrderNotFound, err)
}

func TestUpdateMovesOrderToBackOfNewPriceLevel(t *testing.T) {
	b := New(syncer.Noop{})
	b.Insert(limitOrder(1, common.Sell, 100, 10, 1000))
	b.Insert(limitOrder(2, common.Sell, 110, 10, 1500))

	err := b.Update(1, common.NewPrice(110), 2000)
	require.NoError(t, err)

	var seen []uint64
	b.WalkSideMaker(common.Sell, nil, func(o *common.Order) WalkingResult {
		seen = append(seen, o.ID)
		return Next()
	})
	require.Len(t, seen, 2)
	assert.Equal(t, []uint64{2, 1}, seen, "the repriced order queues behind the one already resting at 110")
}

func TestWalkSideMakerSkipsTakerOnly(t *testing.T) {
	b := New(syncer.Noop{})
	takerOnly := limitOrder(1, common.Sell, 100, 10, 1000)
	takerOnly.LiquidityDirective = common.TakerOnly
	b.Insert(takerOnly)
	b.Insert(limitOrder(2, common.Sell, 101, 10, 1001))

	var seen []uint64
	b.WalkSideMaker(common.Sell, nil, func(o *common.Order) WalkingResult {
		seen = append(seen, o.ID)
		return Next()
	})
	assert.Equal(t, []uint64{2}, seen)
}

func TestWalkCrossTakerBothMakerOnlySkipsBoth(t *testing.T) {
	b := New(syncer.Noop{})
	sell := limitOrder(1, common.Sell, 100, 10, 1000)
	sell.LiquidityDirective = common.MakerOnly
	buy := limitOrder(2, common.Buy, 110, 10, 1000)
	buy.LiquidityDirective = common.MakerOnly
	b.Insert(sell)
	b.Insert(buy)

	var visited int
	b.WalkCrossTaker(
		func(taker, maker *common.Order) PairOutcome {
			visited++
			return PairOutcome{Claimed: true}
		},
		func(taker *common.Order) bool { return false },
	)
	assert.Zero(t, visited, "both sides MakerOnly: no taker can be elected")
}

func TestWalkCrossTakerElectsLowerPriorityAsTaker(t *testing.T) {
	b := New(syncer.Noop{})
	// Earlier sell (lower priority value) should be elected taker.
	b.Insert(limitOrder(1, common.Sell, 100, 10, 1000))
	b.Insert(limitOrder(2, common.Buy, 110, 10, 2000))

	var takers []uint64
	b.WalkCrossTaker(
		func(taker, maker *common.Order) PairOutcome {
			takers = append(takers, taker.ID)
			return PairOutcome{Claimed: true, TakerFilled: true}
		},
		func(taker *common.Order) bool { return false },
	)
	require.Len(t, takers, 1)
	assert.Equal(t, uint64(1), takers[0])
}

// A maker that survives a trade (partially filled, not removed) must
// stay parked at its iterator so the walk re-reads it as the current
// front on the very next step — whether that step is the same active
// taker continuing, or a fresh taker elected after the active one
// finalizes. Two makers ahead of two takers: Sell(1) clears Buy(2) then
// continues against Buy(3), which survives partially filled; Buy(3)
// must then go on to cross Sell(4) in this same walk instead of the
// walk ending with both still resting unmatched.
func TestWalkCrossTakerRevisitsSurvivingMaker(t *testing.T) {
	b := New(syncer.Noop{})
	b.Insert(limitOrder(2, common.Buy, 100, 4, 1001))
	b.Insert(limitOrder(3, common.Buy, 100, 20, 1002))
	b.Insert(limitOrder(1, common.Sell, 100, 10, 1000))
	b.Insert(limitOrder(4, common.Sell, 100, 5, 1003))

	remaining := map[uint64]uint64{1: 10, 2: 4, 3: 20, 4: 5}
	var pairs [][2]uint64

	b.WalkCrossTaker(
		func(taker, maker *common.Order) PairOutcome {
			pairs = append(pairs, [2]uint64{taker.ID, maker.ID})
			traded := remaining[taker.ID]
			if remaining[maker.ID] < traded {
				traded = remaining[maker.ID]
			}
			remaining[taker.ID] -= traded
			remaining[maker.ID] -= traded
			return PairOutcome{
				Claimed:     true,
				RemoveMaker: remaining[maker.ID] == 0,
				TakerFilled: remaining[taker.ID] == 0,
			}
		},
		func(taker *common.Order) bool { return remaining[taker.ID] == 0 },
	)

	assert.Equal(t,
		[][2]uint64{{1, 2}, {1, 3}, {3, 4}},
		pairs,
		"Buy(3) must be re-paired against Sell(4) in this same walk after surviving Sell(1)",
	)
}
