package syncer

import (
	"github.com/rs/zerolog/log"

	"fenrir/internal/common"
)

// Logging reports every event at Info via zerolog, the teacher's
// package-level logger style. A non-empty reference Syncer, useful in
// development and demos where a host wants visibility without wiring a
// real downstream system.
type Logging struct{}

func (Logging) AddOrder(commitID uint64, order *common.Order) {
	log.Info().
		Uint64("commit_id", commitID).
		Uint64("order_id", order.ID).
		Str("side", order.Side.String()).
		Msg("order added")
}

func (Logging) UpdateOrder(commitID uint64, order *common.Order) {
	log.Info().
		Uint64("commit_id", commitID).
		Uint64("order_id", order.ID).
		Msg("order updated")
}

func (Logging) CancelOrder(commitID uint64, order *common.Order) {
	log.Info().
		Uint64("commit_id", commitID).
		Uint64("order_id", order.ID).
		Msg("order cancelled")
}

func (Logging) Matched(commitID uint64, updated []*common.Order, trades []common.Trade) {
	log.Info().
		Uint64("commit_id", commitID).
		Int("updated", len(updated)).
		Int("trades", len(trades)).
		Msg("match pass committed")
}

var _ Syncer = Logging{}
