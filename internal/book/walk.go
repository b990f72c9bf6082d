package book

import "fenrir/internal/common"

// WalkingResult tells a walk primitive what to do with the entry that
// was just visited: Remove takes it out of its collection (and the id
// index); Exit stops the walk after this entry.
type WalkingResult struct {
	Remove bool
	Exit   bool
}

// Next continues the walk, keeping the entry.
func Next() WalkingResult { return WalkingResult{} }

// RemoveAndNext removes the entry and continues the walk.
func RemoveAndNext() WalkingResult { return WalkingResult{Remove: true} }

// ExitWalk stops the walk, keeping the entry.
func ExitWalk() WalkingResult { return WalkingResult{Exit: true} }

// RemoveAndExit removes the entry then stops the walk.
func RemoveAndExit() WalkingResult { return WalkingResult{Remove: true, Exit: true} }

// pendingDeletes accumulates entries a walk decided to remove. Deletion
// is deferred to the end of the walk rather than performed while
// btree.BTreeG's Iter() cursor is live, since mutating a tree out from
// under its own open cursor is not something btree.BTreeG supports.
//
// None of the walk primitives below take OrderBook's lock themselves:
// there is exactly one logical matcher per book, and it holds the book
// exclusively (via Lock/Unlock) for an entire pass so that a walk's own
// callback can make further book calls — checking the opposite side's
// best price, pairing a taker against the opposite side's current front
// — without re-entering a non-reentrant mutex. Callers outside a match
// pass (tests, mostly) may call these directly only when nothing else
// can be mutating the book concurrently.
type pendingDeletes struct {
	orders []*common.Order
}

func (p *pendingDeletes) add(o *common.Order) { p.orders = append(p.orders, o) }

func (b *OrderBook) flush(tree *orderTree, p *pendingDeletes) {
	for _, o := range p.orders {
		tree.Delete(o)
		delete(b.orderIndex, o.ID)
	}
}

// WalkMarketBook iterates marketOrders in priority order, calling visit
// on each. Used by the matching engine to drive every resting market
// order (these never rest for long: IOC/FOK either fill them now or
// finish them rejected) through one matching attempt per engine pass.
func (b *OrderBook) WalkMarketBook(visit func(*common.Order) WalkingResult) {
	var pending pendingDeletes
	iter := b.marketOrders.Iter()
	defer iter.Release()
	for ok := iter.First(); ok; ok = iter.Next() {
		order := iter.Item()
		result := visit(order)
		if result.Remove {
			pending.add(order)
		}
		if result.Exit {
			break
		}
	}
	b.flush(b.marketOrders, &pending)
}

// WalkSideMaker iterates side's tree front-to-back, skipping TakerOnly
// orders (they can never be a maker) and stopping once slipPrice, if
// set, is crossed. slipPrice is the taker's worst acceptable price: for
// a Buy-side maker walk (the taker is selling) makers below slipPrice
// are out of range; for a Sell-side maker walk makers above slipPrice
// are out of range.
func (b *OrderBook) WalkSideMaker(side common.Side, slipPrice *common.Price, visit func(*common.Order) WalkingResult) {
	tree := b.treeForSide(side)
	var pending pendingDeletes
	iter := tree.Iter()
	defer iter.Release()
	for ok := iter.First(); ok; ok = iter.Next() {
		order := iter.Item()

		if order.LiquidityDirective == common.TakerOnly {
			continue
		}

		if slipPrice != nil {
			if side == common.Buy {
				if order.Price.Cmp(slipPrice) < 0 {
					break
				}
			} else {
				if order.Price.Cmp(slipPrice) > 0 {
					break
				}
			}
		}

		result := visit(order)
		if result.Remove {
			pending.add(order)
		}
		if result.Exit {
			break
		}
	}
	b.flush(tree, &pending)
}

// PairOutcome is what the pair callback passed to WalkCrossTaker reports
// back about one taker/maker encounter.
//
//   - Claimed is false only on the first encounter with a given taker,
//     when the caller's own attempt to claim it (EnterMatched) lost a
//     race to a concurrent cancel. The walk moves past that taker
//     without ever treating it as active.
//   - RemoveMaker reports whether maker was fully consumed and should
//     be dropped from its tree.
//   - TakerFilled reports whether taker itself is now fully consumed;
//     the walk will call finalize for it immediately and move on.
type PairOutcome struct {
	Claimed     bool
	RemoveMaker bool
	TakerFilled bool
}

// WalkCrossTaker dual-walks the buy and sell trees front-to-back while
// their best prices still cross (buy >= sell). At each crossing pair it
// elects a taker:
//
//   - both sides' front order is MakerOnly: neither can be a taker; both
//     pointers advance without a pairing.
//   - exactly one side's front order is MakerOnly: the other side is the
//     taker (a MakerOnly order can be crossed but never initiate).
//   - otherwise: the side with the lower priority value (the
//     earlier-arriving order) is the taker — it pays the price
//     improvement of the later order it crosses.
//
// Once a taker is elected it stays active — re-paired against the
// opposite side's new front on every subsequent step — until it fills,
// the opposite side runs out, or prices stop crossing (which, given
// price ordering, also means nothing further back in that side could
// cross either). Any of those endings calls finalize exactly once for
// that taker before a new one is elected.
//
// This single pass (rather than electing a taker and then re-walking
// the opposite side from scratch per taker, as a lock-free book can
// afford to) is what lets the whole cross-taker walk run on exactly two
// iterators: nesting a second traversal of a tree this walk already has
// open would delete out from under its own cursor once that nested walk
// flushed its removals.
func (b *OrderBook) WalkCrossTaker(pair func(taker, maker *common.Order) PairOutcome, finalize func(taker *common.Order) (removeTaker bool)) {
	buyIter := b.buyOrders.Iter()
	defer buyIter.Release()
	sellIter := b.sellOrders.Iter()
	defer sellIter.Release()

	var buyPending, sellPending pendingDeletes

	buyOk := buyIter.First()
	sellOk := sellIter.First()

	var activeTaker *common.Order
	var activeTakerIsBuy bool

	finalizeActive := func() {
		if activeTaker == nil {
			return
		}
		if finalize(activeTaker) {
			if activeTakerIsBuy {
				buyPending.add(activeTaker)
			} else {
				sellPending.add(activeTaker)
			}
		}
		if activeTakerIsBuy {
			buyOk = buyIter.Next()
		} else {
			sellOk = sellIter.Next()
		}
		activeTaker = nil
	}

	for buyOk && sellOk {
		buyOrder := buyIter.Item()
		sellOrder := sellIter.Item()

		if buyOrder.Price.Cmp(sellOrder.Price) < 0 {
			finalizeActive()
			break
		}

		var taker, maker *common.Order
		var takerIsBuy bool

		if activeTaker != nil {
			takerIsBuy = activeTakerIsBuy
			taker = activeTaker
			if takerIsBuy {
				maker = sellOrder
			} else {
				maker = buyOrder
			}
		} else {
			buyMakerOnly := buyOrder.LiquidityDirective == common.MakerOnly
			sellMakerOnly := sellOrder.LiquidityDirective == common.MakerOnly

			if buyMakerOnly && sellMakerOnly {
				buyOk = buyIter.Next()
				sellOk = sellIter.Next()
				continue
			}

			switch {
			case buyMakerOnly && !sellMakerOnly:
				takerIsBuy = false
			case sellMakerOnly && !buyMakerOnly:
				takerIsBuy = true
			case buyOrder.Priority() < sellOrder.Priority():
				takerIsBuy = true
			default:
				takerIsBuy = false
			}

			if takerIsBuy {
				taker, maker = buyOrder, sellOrder
			} else {
				taker, maker = sellOrder, buyOrder
			}
		}

		if maker.LiquidityDirective == common.TakerOnly {
			if takerIsBuy {
				sellOk = sellIter.Next()
			} else {
				buyOk = buyIter.Next()
			}
			continue
		}

		outcome := pair(taker, maker)
		if !outcome.Claimed {
			// Only reachable on a fresh election: the taker never became
			// active, so nothing to finalize, and the maker was never
			// actually paired against — only taker's own pointer moves.
			if takerIsBuy {
				buyOk = buyIter.Next()
			} else {
				sellOk = sellIter.Next()
			}
			continue
		}

		if activeTaker == nil {
			activeTaker = taker
			activeTakerIsBuy = takerIsBuy
		}

		if outcome.RemoveMaker {
			if takerIsBuy {
				sellPending.add(maker)
				sellOk = sellIter.Next()
			} else {
				buyPending.add(maker)
				buyOk = buyIter.Next()
			}
		}
		// A maker that survives stays parked at its iterator: it is still
		// the front of its side, and the next taker election (or this same
		// active taker's next step) must see it again.

		if outcome.TakerFilled {
			finalizeActive()
		}
	}

	finalizeActive()

	b.flush(b.buyOrders, &buyPending)
	b.flush(b.sellOrders, &sellPending)
}

// WalkByIDList visits the orders named by ids, in the given order,
// resolving each through orderIndex. Unknown ids are skipped. Used by
// FOK liquidity locking to re-walk exactly the makers it already
// selected, and to release them again if the lock could not be filled.
func (b *OrderBook) WalkByIDList(ids []uint64, visit func(*common.Order) WalkingResult) {
	byTree := map[*orderTree]*pendingDeletes{
		b.buyOrders:    {},
		b.sellOrders:   {},
		b.marketOrders: {},
	}

	for _, id := range ids {
		loc, found := b.orderIndex[id]
		if !found {
			continue
		}
		var tree *orderTree
		if loc.isMarket {
			tree = b.marketOrders
		} else {
			tree = b.treeForSide(loc.side)
		}
		order, found := tree.Get(loc.probe(id))
		if !found {
			continue
		}

		result := visit(order)
		if result.Remove {
			byTree[tree].add(order)
		}
		if result.Exit {
			break
		}
	}

	for tree, pending := range byTree {
		b.flush(tree, pending)
	}
}
