package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitOrder(id uint64, side Side, price, qty uint64, updatedAt uint64) *Order {
	return &Order{
		ID:                 id,
		Side:               side,
		OrderType:          Limit,
		MatchStrategy:      Standard,
		LiquidityDirective: AllowTaker,
		TimeInForce:        GoodTillCancelled,
		Price:              NewPrice(price),
		Quantity:           NewQuantity(qty),
		FilledQuantity:     NewQuantity(0),
		CreatedAt:          updatedAt,
		UpdatedAt:          updatedAt,
	}
}

func TestPriorityComposition(t *testing.T) {
	o := newLimitOrder(103, Buy, 100, 10, 1000)
	assert.Equal(t, uint64(1000*100+3), o.Priority())
}

func TestBookKeyCarriesSideAndPriority(t *testing.T) {
	buy := newLimitOrder(1, Buy, 100, 10, 1000)
	assert.Equal(t, Buy, buy.BookKey().Side)
	assert.Equal(t, uint64(100000), buy.BookKey().Priority)
}

func TestLifecycleClaimIsExclusive(t *testing.T) {
	o := newLimitOrder(1, Buy, 100, 10, 1000)
	require.True(t, o.EnterMatched())
	assert.False(t, o.EnterMatched(), "a second matched claim must not succeed")
	assert.True(t, o.ExitMatched())
	assert.True(t, o.EnterMatched())
}

func TestEnterFinishedRacesWithMatch(t *testing.T) {
	o := newLimitOrder(1, Buy, 100, 10, 1000)
	require.True(t, o.EnterMatched())
	// A concurrent cancel attempting Active->Finished must lose once the
	// matcher already claimed Active->Matched.
	assert.False(t, o.EnterFinishedFromActive())
	assert.True(t, o.EnterFinishedFromMatched())
	assert.True(t, o.IsFinished())
}

func TestValidateLimitOrder(t *testing.T) {
	o := newLimitOrder(1, Buy, 100, 10, 1000)
	assert.NoError(t, o.Validate())

	bad := o.Clone()
	bad.MatchStrategy = FillOrKill
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMatchStrategy)

	bad = o.Clone()
	bps := uint32(10)
	bad.SlippageTolerance = &bps
	assert.ErrorIs(t, bad.Validate(), ErrSlippageNotApplicable)
}

func TestValidateMarketOrder(t *testing.T) {
	o := newLimitOrder(1, Buy, 100, 10, 1000)
	o.OrderType = Market
	o.MatchStrategy = ImmediateOrCancel
	o.TimeInForce = None
	assert.NoError(t, o.Validate())

	bad := o.Clone()
	bad.TimeInForce = GoodTillCancelled
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTimeInForce)

	bad = o.Clone()
	tooMuch := uint32(MaxAllowedSlippageToleranceBps + 1)
	bad.SlippageTolerance = &tooMuch
	assert.ErrorIs(t, bad.Validate(), ErrSlippageExceedsMaximum)
}

func TestSlippageBoundPrice(t *testing.T) {
	buyer := newLimitOrder(1, Buy, 0, 10, 1000)
	buyer.OrderType = Market
	bps := uint32(10)
	buyer.SlippageTolerance = &bps

	bound, ok := buyer.SlippageBoundPrice(NewPrice(100))
	require.True(t, ok)
	assert.Equal(t, NewPrice(100), bound, "100 * 10bps / 10000 truncates to 0")

	seller := newLimitOrder(2, Sell, 0, 10, 1000)
	seller.OrderType = Market
	seller.SlippageTolerance = &bps
	bound, ok = seller.SlippageBoundPrice(NewPrice(100))
	require.True(t, ok)
	assert.Equal(t, NewPrice(100), bound)

	noTolerance := newLimitOrder(3, Buy, 0, 10, 1000)
	_, ok = noTolerance.SlippageBoundPrice(NewPrice(100))
	assert.False(t, ok)
}
