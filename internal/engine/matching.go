package engine

import (
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"fenrir/internal/book"
	"fenrir/internal/common"
)

// MatchingEngine runs one matching pass over a single book. It is
// created fresh per pass (NewMatchingEngine) rather than held
// persistently, since the only state it carries is the pass's
// wall-clock timestamp and the book it is walking.
type MatchingEngine struct {
	book *book.OrderBook
	now  uint64
}

// NewMatchingEngine builds a matching engine for one pass over b,
// stamping every trade and status transition it produces with now
// (microseconds).
func NewMatchingEngine(b *book.OrderBook, now uint64) *MatchingEngine {
	return &MatchingEngine{book: b, now: now}
}

// MatchOrders drives both halves of one pass: the resting market-order
// book first (each entry must resolve this pass, win or reject), then
// the cross-taker walk between the two limit-order sides. The whole
// pass holds the book exclusively: both halves nest further book calls
// from within a walk's own callback (matchMarketOrder checks the
// opposite side's best price mid-walk; the cross-taker match below
// re-pairs against the opposite side's front on every step), which
// would deadlock against Insert/Update/Remove's own locking if this
// pass additionally tried to take the lock per-call.
func (m *MatchingEngine) MatchOrders() {
	m.book.Lock()
	defer m.book.Unlock()

	m.book.WalkMarketBook(func(o *common.Order) book.WalkingResult {
		return m.matchMarketOrder(o)
	})
	m.matchCrossTaker()
}

// processOrderPair fills taker against maker for the crossing quantity,
// emits the resulting trade pair, and reports whether maker was fully
// consumed (and should be removed from its collection). Both orders
// must already hold the Matched claim. Returning false releases maker's
// claim back to Active (no trade occurred, or it remains partially
// filled); true finishes it.
func (m *MatchingEngine) processOrderPair(taker, maker *common.Order, updated *[]*common.Order, trades *[]common.Trade) bool {
	makerTrade, takerTrade, ok := common.MatchOrders(m.now, taker, maker)
	if !ok {
		maker.ExitMatched()
		return false
	}

	var clone *common.Order
	removed := maker.Status == common.Filled
	if !removed {
		clone = maker.CloneResetLifecycle()
		maker.ExitMatched()
	} else {
		maker.EnterFinishedFromMatched()
		clone = maker.Clone()
	}
	*updated = append(*updated, clone)
	*trades = append(*trades, makerTrade, takerTrade)
	return removed
}

// lockBookLiquidity walks the opposite side's maker book (filtered to
// slippagePrice, if set), claiming makers one at a time until quantity
// is fully covered. On success it returns the ids it locked, in walk
// order, ready to be re-walked and actually filled. On failure
// (insufficient resting liquidity) it releases every claim it took and
// reports ok=false: a FOK order must see the whole book atomically or
// not at all.
//
// opposite is the side being walked — always the side across from the
// taker. The system this was distilled from hardcoded Sell here, a bug
// that broke FOK buys walking the wrong book; this implementation takes
// the side as a parameter instead.
func (m *MatchingEngine) lockBookLiquidity(opposite common.Side, quantity *common.Quantity, slippagePrice *common.Price) ([]uint64, bool) {
	var ids []uint64
	remaining := new(uint256.Int).Set(quantity)

	m.book.WalkSideMaker(opposite, slippagePrice, func(maker *common.Order) book.WalkingResult {
		if !maker.EnterMatched() {
			return book.Next()
		}
		remaining = common.SatSub(remaining, maker.Quantity)
		ids = append(ids, maker.ID)
		if common.ZeroQuantity(remaining) {
			return book.ExitWalk()
		}
		return book.Next()
	})

	if common.ZeroQuantity(remaining) {
		return ids, true
	}

	m.book.WalkByIDList(ids, func(o *common.Order) book.WalkingResult {
		o.ExitMatched()
		return book.Next()
	})
	return nil, false
}

// matchMarketOrderFOK fills taker all-or-nothing. It first locks enough
// opposite-side liquidity to cover taker's full quantity, then replays
// that locked set through processOrderPair. If the book could not cover
// it, taker is rejected with InsufficientLiquidity instead.
func (m *MatchingEngine) matchMarketOrderFOK(opposite common.Side, slippagePrice *common.Price, taker *common.Order) book.WalkingResult {
	var updated []*common.Order
	var trades []common.Trade

	ids, ok := m.lockBookLiquidity(opposite, taker.Quantity, slippagePrice)
	if !ok {
		taker.MarkRejected(common.InsufficientLiquidity)
		taker.EnterFinishedFromMatched()
		updated = append(updated, taker.Clone())
		m.book.SyncMatched(updated, trades)
		return book.RemoveAndNext()
	}

	m.book.WalkByIDList(ids, func(maker *common.Order) book.WalkingResult {
		removed := m.processOrderPair(taker, maker, &updated, &trades)
		return book.WalkingResult{Remove: removed, Exit: common.ZeroQuantity(taker.Quantity)}
	})

	taker.EnterFinishedFromMatched()
	updated = append(updated, taker.Clone())
	m.book.SyncMatched(updated, trades)
	return book.RemoveAndNext()
}

// matchMarketOrder claims taker, computes its slippage bound against
// the opposite side's best price, and dispatches to the FOK or IOC
// path per taker's match strategy.
func (m *MatchingEngine) matchMarketOrder(taker *common.Order) book.WalkingResult {
	if !taker.EnterMatched() {
		return book.Next()
	}

	opposite := taker.Side.Opposite()
	var slippagePrice *common.Price
	if best, ok := m.book.BestPriceLocked(opposite); ok {
		if bound, ok := taker.SlippageBoundPrice(best); ok {
			slippagePrice = bound
		}
	}

	if taker.MatchStrategy == common.FillOrKill {
		return m.matchMarketOrderFOK(opposite, slippagePrice, taker)
	}

	var updated []*common.Order
	var trades []common.Trade
	m.book.WalkSideMaker(opposite, slippagePrice, func(maker *common.Order) book.WalkingResult {
		if !maker.EnterMatched() {
			return book.Next()
		}
		removed := m.processOrderPair(taker, maker, &updated, &trades)
		return book.WalkingResult{Remove: removed, Exit: common.ZeroQuantity(taker.Quantity)}
	})

	if len(trades) == 0 {
		taker.MarkRejected(common.InsufficientLiquidity)
	}
	taker.EnterFinishedFromMatched()
	updated = append(updated, taker.Clone())
	m.book.SyncMatched(updated, trades)
	return book.RemoveAndNext()
}

// matchCrossTaker drives the cross-taker walk over both limit-order
// sides. A taker elected by WalkCrossTaker stays active across several
// calls to pair (one per maker it crosses) before finalize settles it,
// so the trade/update accumulators below are scoped to whichever taker
// is currently active, not to a single call.
//
// This replaces a per-taker nested walk of the opposite side (the shape
// the system this was distilled from uses, safe there only because its
// book is a lock-free skip list whose iterators tolerate concurrent
// removal): WalkCrossTaker already holds one iterator open per side for
// the whole pass, and a second iterator over the same tree would not
// survive that tree's own flush.
func (m *MatchingEngine) matchCrossTaker() {
	var updated []*common.Order
	var trades []common.Trade
	var activeTakerID uint64
	var haveActiveTaker bool

	settle := func(taker *common.Order) bool {
		if len(trades) == 0 {
			// Nothing ever matched against this taker: release its claim
			// and leave it resting exactly as it was, no sync event.
			taker.ExitMatched()
			haveActiveTaker = false
			return false
		}

		var clone *common.Order
		removed := taker.Status == common.Filled
		if !removed {
			clone = taker.CloneResetLifecycle()
			taker.ExitMatched()
		} else {
			taker.EnterFinishedFromMatched()
			clone = taker.Clone()
		}
		updated = append(updated, clone)
		m.book.SyncMatched(updated, trades)

		log.Debug().
			Uint64("taker_id", taker.ID).
			Int("trades", len(trades)).
			Bool("removed", removed).
			Msg("limit order matched")

		updated = nil
		trades = nil
		haveActiveTaker = false
		return removed
	}

	pair := func(taker, maker *common.Order) book.PairOutcome {
		if !haveActiveTaker || activeTakerID != taker.ID {
			if !taker.EnterMatched() {
				return book.PairOutcome{Claimed: false}
			}
			haveActiveTaker = true
			activeTakerID = taker.ID
			updated = nil
			trades = nil
		}
		if !maker.EnterMatched() {
			return book.PairOutcome{Claimed: true}
		}
		removed := m.processOrderPair(taker, maker, &updated, &trades)
		return book.PairOutcome{
			Claimed:     true,
			RemoveMaker: removed,
			TakerFilled: common.ZeroQuantity(taker.Quantity),
		}
	}

	finalize := func(taker *common.Order) bool {
		if !haveActiveTaker || activeTakerID != taker.ID {
			return false
		}
		return settle(taker)
	}

	m.book.WalkCrossTaker(pair, finalize)
}
