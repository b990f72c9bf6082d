// Package engine owns a registry of order books, one per symbol, and
// the matching algorithm that walks each book to pair crossing orders.
package engine

import (
	"sync"

	"fenrir/internal/book"
	"fenrir/internal/common"
)

// Engine is a registry of order books keyed by symbol. It does not
// coordinate matching across books: each symbol is matched
// independently, same as spec.md scopes it (cross-book coordination is
// an explicit non-goal).
type Engine struct {
	mu     sync.RWMutex
	books  map[string]*book.OrderBook
	syncer book.Syncer
}

// New creates an engine whose books all report to syncer.
func New(syncer book.Syncer) *Engine {
	return &Engine{
		books:  make(map[string]*book.OrderBook),
		syncer: syncer,
	}
}

// Book returns the order book for symbol, creating it on first use.
func (e *Engine) Book(symbol string) *book.OrderBook {
	e.mu.RLock()
	b, ok := e.books[symbol]
	e.mu.RUnlock()
	if ok {
		return b
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.books[symbol]; ok {
		return b
	}
	b = book.New(e.syncer)
	e.books[symbol] = b
	return b
}

// Symbols returns the symbols with a registered book, in no particular
// order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	return out
}

// CreateOrder validates and inserts order into symbol's book.
func (e *Engine) CreateOrder(symbol string, order *common.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	e.Book(symbol).Insert(order)
	return nil
}

// UpdateOrder relocates an existing order to a new price.
func (e *Engine) UpdateOrder(symbol string, orderID uint64, newPrice *common.Price, nowMicros uint64) error {
	return e.Book(symbol).Update(orderID, newPrice, nowMicros)
}

// CancelOrder removes an existing order at the user's request.
func (e *Engine) CancelOrder(symbol string, orderID uint64) error {
	return e.Book(symbol).Remove(orderID, common.UserRequest)
}

// MatchOrders runs one matching pass over symbol's book: first the
// resting market orders (each must resolve now, one way or another),
// then the cross-taker walk between the limit-order sides.
func (e *Engine) MatchOrders(symbol string, nowMicros uint64) {
	NewMatchingEngine(e.Book(symbol), nowMicros).MatchOrders()
}
