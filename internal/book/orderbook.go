// Package book holds the order book: the ordered collections a symbol's
// resting orders live in, the id index used to find them in O(log n),
// and the four traversal primitives the matching engine walks to find
// crossing orders.
package book

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	"fenrir/internal/common"
)

// Syncer is the collaborator notified of every committed book change.
// Defined here (rather than imported from internal/syncer) to keep
// internal/book free of a dependency on internal/syncer; internal/syncer
// provides the concrete implementations.
type Syncer interface {
	AddOrder(commitID uint64, order *common.Order)
	UpdateOrder(commitID uint64, order *common.Order)
	CancelOrder(commitID uint64, order *common.Order)
	Matched(commitID uint64, updated []*common.Order, trades []common.Trade)
}

type orderTree = btree.BTreeG[*common.Order]

// location is what orderIndex stores per id: enough to rebuild the exact
// probe the tree's comparator needs to find the order again, without
// scanning. isMarket selects marketOrders (keyed by priority alone)
// over the side trees (keyed by BookKey).
type location struct {
	side      common.Side
	price     *common.Price
	priority  uint64
	isMarket  bool
}

// probe rebuilds a throwaway *common.Order carrying just enough state
// for the tree comparator (which reads Side/Price/Priority()) to treat
// it as equal to the real, stored order. Priority() is
// updated_at*100 + id%100, so updated_at is recovered exactly from the
// stored priority and id.
func (l location) probe(orderID uint64) *common.Order {
	updatedAt := (l.priority - orderID%100) / 100
	return &common.Order{ID: orderID, Side: l.side, Price: l.price, UpdatedAt: updatedAt}
}

// OrderBook owns one symbol's resting orders. buyOrders and sellOrders
// are ordered by BookKey (price, then priority, direction depending on
// side); marketOrders is ordered by Priority alone since market orders
// carry no price. orderIndex resolves an id to the BookKey it currently
// sits under, so lookups by id never have to scan a tree.
//
// Structural mutation (insert/remove/re-key) is serialized by mu. This
// is not the lock-free skip list the original engine uses — Go's
// garbage collector already reclaims unlinked nodes, so there is no
// epoch-reclamation burden to replicate, and btree.BTreeG has no
// lock-free variant in the ecosystem. Because a match pass holds mu for
// its whole duration (Lock/Unlock), Insert, Update and Remove called
// during a pass wait for it to finish rather than racing it order by
// order. Ownership of each order is still decided by the lifecycle
// claim, a sync/atomic CAS on the order itself.
type OrderBook struct {
	mu sync.RWMutex

	buyOrders    *orderTree
	sellOrders   *orderTree
	marketOrders *orderTree

	orderIndex map[uint64]location

	syncer Syncer

	// commitID is the shared monotonic counter spec.md requires: every
	// structural change (insert, update, remove, match) bumps it once
	// and hands the new value to the syncer alongside the event.
	commitID atomic.Uint64
}

func bookKeyLess(a, b common.BookKey) bool {
	if a.Side != b.Side {
		// A comparator is only ever invoked within one side's tree, so
		// this branch is unreachable in practice; kept as a defined
		// tie-break rather than a panic.
		return a.Side < b.Side
	}
	cmp := a.Price.Cmp(b.Price)
	if a.Side == common.Sell {
		if cmp != 0 {
			return cmp < 0
		}
	} else {
		if cmp != 0 {
			return cmp > 0
		}
	}
	return a.Priority < b.Priority
}

func newSideTree() *orderTree {
	return btree.NewBTreeG(func(a, b *common.Order) bool {
		return bookKeyLess(a.BookKey(), b.BookKey())
	})
}

func newMarketTree() *orderTree {
	return btree.NewBTreeG(func(a, b *common.Order) bool {
		return a.Priority() < b.Priority()
	})
}

// New creates an empty order book reporting to syncer.
func New(syncer Syncer) *OrderBook {
	return &OrderBook{
		buyOrders:    newSideTree(),
		sellOrders:   newSideTree(),
		marketOrders: newMarketTree(),
		orderIndex:   make(map[uint64]location),
		syncer:       syncer,
	}
}

func (b *OrderBook) treeForSide(side common.Side) *orderTree {
	if side == common.Buy {
		return b.buyOrders
	}
	return b.sellOrders
}

func (b *OrderBook) nextCommitID() uint64 {
	return b.commitID.Add(1)
}

// Insert places a new order into the book. It does not run matching
// itself (insertion and matching are separate steps), but it takes mu,
// so it waits while a match pass holds the book via Lock. Market orders
// go into marketOrders, keyed only by priority; limit orders go into the
// side tree keyed by BookKey.
func (b *OrderBook) Insert(order *common.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order.Status = common.Placed
	switch order.OrderType {
	case common.Market:
		b.marketOrders.Set(order)
		b.orderIndex[order.ID] = location{priority: order.Priority(), isMarket: true}
	default:
		b.treeForSide(order.Side).Set(order)
		key := order.BookKey()
		b.orderIndex[order.ID] = location{side: key.Side, price: key.Price, priority: key.Priority}
	}

	id := b.nextCommitID()
	log.Debug().Uint64("order_id", order.ID).Uint64("commit_id", id).Msg("order inserted")
	b.syncer.AddOrder(id, order)
}

// Update claims, relocates, and republishes an order at a new price.
// Price changes reset time priority: the refreshed updated_at puts the
// order at the back of its new price level, a deliberate policy per
// spec.md §5, not a bug.
func (b *OrderBook) Update(orderID uint64, newPrice *common.Price, nowMicros uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	loc, found := b.orderIndex[orderID]
	if !found {
		return common.ErrOrderNotFound
	}
	if loc.isMarket {
		return common.ErrInvalidUpdateRequest
	}
	tree := b.treeForSide(loc.side)
	existing, found := tree.Get(loc.probe(orderID))
	if !found {
		return common.ErrOrderNotFound
	}
	if !existing.EnterFinishedFromActive() {
		return common.ErrOrderNotModifiable
	}

	tree.Delete(existing)
	delete(b.orderIndex, orderID)

	updated := existing.Clone()
	updated.Price = newPrice
	updated.UpdatedAt = nowMicros
	updated.ResetLifecycle()

	tree.Set(updated)
	newKey := updated.BookKey()
	b.orderIndex[orderID] = location{side: newKey.Side, price: newKey.Price, priority: newKey.Priority}

	id := b.nextCommitID()
	log.Debug().Uint64("order_id", orderID).Uint64("commit_id", id).Msg("order updated")
	b.syncer.UpdateOrder(id, updated)
	return nil
}

// Remove claims and deletes an order, marking it Cancelled with the
// given reason before it becomes unreachable.
func (b *OrderBook) Remove(orderID uint64, reason common.CancelReason) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	loc, found := b.orderIndex[orderID]
	if !found {
		return common.ErrCancelOrderNotFound
	}

	var tree *orderTree
	if loc.isMarket {
		tree = b.marketOrders
	} else {
		tree = b.treeForSide(loc.side)
	}

	existing, found := tree.Get(loc.probe(orderID))
	if !found {
		return common.ErrCancelOrderNotFound
	}
	if !existing.EnterFinishedFromActive() {
		return common.ErrOrderNotCancellable
	}

	existing.MarkCancelled(reason)
	tree.Delete(existing)
	delete(b.orderIndex, orderID)

	id := b.nextCommitID()
	log.Debug().Uint64("order_id", orderID).Uint64("commit_id", id).Msg("order cancelled")
	b.syncer.CancelOrder(id, existing)
	return nil
}

// BestPrice returns the best resting price on side, if any. Matches the
// original's lack of any liquidity-direction filtering: a MakerOnly
// order at the front of the book is still reported, per spec.md's
// Design Notes acceptance of this as documented behavior rather than a
// bug to fix. Takes its own read lock; callers already inside a match
// pass (holding the book via Lock) must use BestPriceLocked instead.
func (b *OrderBook) BestPrice(side common.Side) (*common.Price, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.BestPriceLocked(side)
}

// BestPriceLocked is BestPrice without taking the lock itself. Only
// safe to call while the book is already held via Lock, which is how
// the matching engine uses it mid-pass.
func (b *OrderBook) BestPriceLocked(side common.Side) (*common.Price, bool) {
	tree := b.treeForSide(side)
	top, ok := tree.Min()
	if !ok {
		return nil, false
	}
	return top.Price, true
}

// SyncMatched reports a batch of updated orders and the trades a match
// pass produced. Called once per match-pass event, outside the per-order
// insert/update/remove commit sequence. Safe to call while the book is
// held via Lock; it only touches the syncer and the commit counter.
func (b *OrderBook) SyncMatched(updated []*common.Order, trades []common.Trade) {
	id := b.nextCommitID()
	b.syncer.Matched(id, updated, trades)
}

// Lock and Unlock give the matching engine exclusive access to the
// whole book for the duration of one match pass, so its walk
// primitives (which assume the caller already holds the book, and may
// themselves call back into the book mid-walk — matchMarketOrder checks
// the opposite side's best price, WalkCrossTaker re-derives the opposite
// side's front on every step) never need to re-acquire mu themselves.
// Insert, Update, Remove, and BestPrice take mu on their own for
// standalone use outside a match pass.
func (b *OrderBook) Lock()   { b.mu.Lock() }
func (b *OrderBook) Unlock() { b.mu.Unlock() }
