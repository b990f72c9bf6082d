package wire

import (
	"sync"

	"github.com/rs/zerolog/log"

	"fenrir/internal/book"
	"fenrir/internal/common"
)

// Syncer reports cancellations and fills to the session of the user that
// placed the order, as execution reports over the wire; added and
// updated orders are only logged. It implements book.Syncer. CancelOrder
// and Matched need a symbol to stamp onto the outgoing report but are
// not told one (orders and trades carry no symbol); orderSymbols below
// tracks it, filled in by BindSymbol.
type Syncer struct {
	sessions *SessionRegistry

	mu           sync.Mutex
	orderSymbols map[uint64]string
}

var _ book.Syncer = (*Syncer)(nil)

// NewSyncer builds a wire Syncer reporting to the sessions registered
// in sessions.
func NewSyncer(sessions *SessionRegistry) *Syncer {
	return &Syncer{
		sessions:     sessions,
		orderSymbols: make(map[uint64]string),
	}
}

func (s *Syncer) symbolFor(orderID uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderSymbols[orderID]
}

func (s *Syncer) forgetSymbol(orderID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orderSymbols, orderID)
}

func (s *Syncer) deliver(userID uint64, report Report) {
	if err := s.sessions.writeToUser(userID, report.Serialize()); err != nil {
		log.Debug().Err(err).Uint64("user_id", userID).Msg("no live session for report")
	}
}

// AddOrder logs the commit. Symbol routing for this order is set up
// separately by the host calling BindSymbol right after CreateOrder,
// since AddOrder's own call from inside Insert has no symbol to give it.
func (s *Syncer) AddOrder(commitID uint64, order *common.Order) {
	log.Debug().Uint64("commit_id", commitID).Uint64("order_id", order.ID).Msg("wire: order added")
}

// BindSymbol records which symbol an order belongs to, so later events
// (which only ever carry the order, not its book) can stamp reports
// with the right symbol. Called by the host right after CreateOrder.
func (s *Syncer) BindSymbol(orderID uint64, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderSymbols[orderID] = symbol
}

func (s *Syncer) UpdateOrder(commitID uint64, order *common.Order) {
	log.Debug().Uint64("commit_id", commitID).Uint64("order_id", order.ID).Msg("wire: order updated")
}

func (s *Syncer) CancelOrder(commitID uint64, order *common.Order) {
	symbol := s.symbolFor(order.ID)
	s.forgetSymbol(order.ID)
	report := Report{
		MessageType: ExecutionReport,
		Symbol:      symbol,
		Side:        order.Side,
		OrderID:     order.ID,
		Price:       order.Price.Uint64(),
		Quantity:    order.Quantity.Uint64(),
		CreatedAt:   order.UpdatedAt,
	}
	s.deliver(order.UserID, report)
}

func (s *Syncer) Matched(commitID uint64, updated []*common.Order, trades []common.Trade) {
	byOrderID := make(map[uint64]*common.Order, len(updated))
	for _, o := range updated {
		byOrderID[o.ID] = o
	}

	for _, trade := range trades {
		order, ok := byOrderID[trade.OrderID]
		if !ok {
			continue
		}
		symbol := s.symbolFor(order.ID)
		s.deliver(order.UserID, tradeReport(symbol, trade, order.Side))
		if order.IsFinished() {
			s.forgetSymbol(order.ID)
		}
	}
}
