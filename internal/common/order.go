package common

import (
	"sync/atomic"

	"github.com/holiman/uint256"
)

// BookKey is the composite ordering key a book's collections sort on:
// price, then priority, tie-broken by side-dependent direction. Priority
// already embeds the order id's low digits (see Priority below), so two
// distinct orders share a BookKey only when they have the same price and
// their ids collide mod 100 within the same microsecond; the comparator
// has no fourth field to separate them.
type BookKey struct {
	Price    *Price
	Priority uint64
	Side     Side
}

// Order is a single resting or incoming order. Fields above the dashed
// line are immutable after construction. Fields below it are mutated
// only by whichever goroutine currently holds the lifecycle claim
// (Active -> Matched, or Active -> Finished for a cancel/update): the
// matching engine for quantity/filled/status, and both the engine and
// cancel/update paths for the terminal reason fields. lifecycle itself
// is the synchronization: everything else is a plain field, safe to
// touch only after a successful claim.
type Order struct {
	ID                 uint64
	UserID             uint64
	Side               Side
	OrderType          OrderType
	MatchStrategy      MatchStrategy
	LiquidityDirective LiquidityDirective
	TimeInForce        TimeInForce
	ExpiresAt          uint64 // microseconds; only meaningful when TimeInForce == GoodTillDate
	SlippageTolerance  *uint32
	CreatedAt          uint64

	lifecycle atomic.Uint32

	// --- claim-holder only below this line ---
	Price          *Price
	Quantity       *Quantity
	FilledQuantity *Quantity
	Status         OrderStatus
	CancelReason   *CancelReason
	RejectReason   *RejectReason
	UpdatedAt      uint64
}

// Priority is the tie-break scalar a BookKey sorts on within one side of
// the book: the earlier the order, the lower (better) the priority
// value. Composed as updated_at_microseconds*100 + id%100 so it stays a
// single comparable integer instead of a (timestamp, id) pair. Known
// limitation: ids that collide mod 100 at the same microsecond are not
// distinguished further.
func (o *Order) Priority() uint64 {
	return o.UpdatedAt*100 + o.ID%100
}

// BookKey derives the order's current sort position.
func (o *Order) BookKey() BookKey {
	return BookKey{Price: o.Price, Priority: o.Priority(), Side: o.Side}
}

// IsFinished reports whether the order's lifecycle has reached its
// terminal state. Once true it never becomes false again.
func (o *Order) IsFinished() bool {
	return Lifecycle(o.lifecycle.Load()) == Finished
}

// ResetLifecycle forces the lifecycle back to Active. Used only when
// constructing a fresh clone (e.g. on update) that has not yet been
// published into the book.
func (o *Order) ResetLifecycle() {
	o.lifecycle.Store(uint32(Active))
}

// EnterMatched claims the order for the matching engine: Active -> Matched.
// A concurrent cancel/update that already claimed Active -> Finished wins
// the race and this call reports false.
func (o *Order) EnterMatched() bool {
	return o.lifecycle.CompareAndSwap(uint32(Active), uint32(Matched))
}

// ExitMatched releases a match claim without finishing the order: Matched
// -> Active. Used to hand a claimed order back: a maker or taker left
// partially filled, a maker whose pairing produced no trade, makers
// released from a FOK lock that could not be filled, and a limit taker
// that crossed nothing.
func (o *Order) ExitMatched() bool {
	return o.lifecycle.CompareAndSwap(uint32(Matched), uint32(Active))
}

// EnterFinishedFromActive claims a still-Active order for removal: used
// by cancel and by update (which removes-then-reinserts). Losing this
// race means the matching engine got to the order first.
func (o *Order) EnterFinishedFromActive() bool {
	return o.lifecycle.CompareAndSwap(uint32(Active), uint32(Finished))
}

// EnterFinishedFromMatched finishes an order the engine already claimed
// (Matched -> Finished): once its remaining quantity reaches zero, or,
// for a market taker, at the end of its matching attempt whether or not
// quantity remains (rejected, or an IOC remainder).
func (o *Order) EnterFinishedFromMatched() bool {
	return o.lifecycle.CompareAndSwap(uint32(Matched), uint32(Finished))
}

// quantityFill debits traded from the remaining quantity and credits it
// to filled_quantity. Caller must already hold the Matched claim.
func (o *Order) quantityFill(traded *Quantity) {
	o.Quantity = SatSub(o.Quantity, traded)
	o.FilledQuantity = new(uint256.Int).Add(o.FilledQuantity, traded)
}

// updateStatus is the claim-holder-only status setter.
func (o *Order) updateStatus(status OrderStatus) {
	o.Status = status
}

// updateCancelReason is the claim-holder-only cancel-reason setter.
func (o *Order) updateCancelReason(reason CancelReason) {
	o.CancelReason = &reason
}

// updateRejectReason is the claim-holder-only reject-reason setter.
func (o *Order) updateRejectReason(reason RejectReason) {
	o.RejectReason = &reason
}

// MarkCancelled finishes the bookkeeping half of a cancel: the lifecycle
// claim itself is taken by the caller via EnterFinishedFromActive before
// this runs. Deliberate enrichment over the system this was distilled
// from, which leaves status/cancel_reason at their last value on
// removal; here the order handed to the syncer is self-describing.
func (o *Order) MarkCancelled(reason CancelReason) {
	o.updateStatus(Cancelled)
	o.updateCancelReason(reason)
}

// MarkRejected sets status and reject_reason. The matching engine calls
// it on a claimed market taker it finishes for lack of liquidity.
func (o *Order) MarkRejected(reason RejectReason) {
	o.updateStatus(Rejected)
	o.updateRejectReason(reason)
}

// Clone copies the order, including its current lifecycle state.
func (o *Order) Clone() *Order {
	c := *o
	c.lifecycle.Store(o.lifecycle.Load())
	if o.Price != nil {
		c.Price = new(uint256.Int).Set(o.Price)
	}
	if o.Quantity != nil {
		c.Quantity = new(uint256.Int).Set(o.Quantity)
	}
	if o.FilledQuantity != nil {
		c.FilledQuantity = new(uint256.Int).Set(o.FilledQuantity)
	}
	if o.CancelReason != nil {
		r := *o.CancelReason
		c.CancelReason = &r
	}
	if o.RejectReason != nil {
		r := *o.RejectReason
		c.RejectReason = &r
	}
	return &c
}

// CloneResetLifecycle clones the order and resets its lifecycle to
// Active, the shape update() needs: the old entry is finished and
// removed, a fresh clone with the new price/time takes its place.
func (o *Order) CloneResetLifecycle() *Order {
	c := o.Clone()
	c.ResetLifecycle()
	return c
}

// SlippageBoundPrice computes the worst acceptable execution price given
// a reference price, honoring the order's slippage tolerance. ok is
// false when the order carries no tolerance at all.
func (o *Order) SlippageBoundPrice(price *Price) (bound *Price, ok bool) {
	if o.SlippageTolerance == nil {
		return nil, false
	}
	return slippageBoundPrice(o.Side, price, *o.SlippageTolerance), true
}

// Validate checks the per-field combination rules spec.md §6 requires
// before an order may be inserted.
func (o *Order) Validate() error {
	switch o.OrderType {
	case Limit:
		if o.MatchStrategy != Standard {
			return ErrInvalidMatchStrategy
		}
		if o.LiquidityDirective != AllowTaker && o.LiquidityDirective != MakerOnly {
			return ErrInvalidLiquidityDirective
		}
		if o.TimeInForce != GoodTillCancelled && o.TimeInForce != GoodTillDate {
			return ErrInvalidTimeInForce
		}
		if o.SlippageTolerance != nil {
			return ErrSlippageNotApplicable
		}
		return nil
	case Market:
		if o.MatchStrategy != ImmediateOrCancel && o.MatchStrategy != FillOrKill {
			return ErrInvalidMatchStrategy
		}
		if o.LiquidityDirective == MakerOnly {
			return ErrInvalidLiquidityDirective
		}
		if o.TimeInForce == GoodTillCancelled || o.TimeInForce == GoodTillDate {
			return ErrInvalidTimeInForce
		}
		if o.SlippageTolerance != nil && *o.SlippageTolerance > MaxAllowedSlippageToleranceBps {
			return ErrSlippageExceedsMaximum
		}
		return nil
	default:
		return ErrInvalidMatchStrategy
	}
}
