package common

import "github.com/holiman/uint256"

// Trade is one side of a matched pair: a single order's fill record.
// A single crossing produces two Trades, one Maker and one Taker,
// sharing quantity and the maker's price (see MatchOrders).
type Trade struct {
	Role      TradeRole
	OrderID   uint64
	Price     *Price
	Quantity  *Quantity
	CreatedAt uint64
}

// MatchOrders fills taker against maker for min(taker.Quantity,
// maker.Quantity), updates both orders' remaining/filled quantity and
// status, and returns the maker and taker trade records. Reports
// ok=false (no trades, no mutation) when the crossing quantity would be
// zero, which should not happen for two live orders but is checked
// defensively since both sides come from caller-held claims, not a
// fresh read.
//
// Caller must already hold the Matched claim on both orders.
func MatchOrders(nowMicros uint64, taker, maker *Order) (makerTrade, takerTrade Trade, ok bool) {
	traded := MinQuantity(taker.Quantity, maker.Quantity)
	if ZeroQuantity(traded) {
		return Trade{}, Trade{}, false
	}

	maker.quantityFill(traded)
	taker.quantityFill(traded)

	if ZeroQuantity(maker.Quantity) {
		maker.updateStatus(Filled)
	} else {
		maker.updateStatus(PartiallyFilled)
	}
	if ZeroQuantity(taker.Quantity) {
		taker.updateStatus(Filled)
	} else {
		taker.updateStatus(PartiallyFilled)
	}

	price := new(uint256.Int).Set(maker.Price)
	makerTrade = Trade{
		Role:      RoleMaker,
		OrderID:   maker.ID,
		Price:     price,
		Quantity:  new(uint256.Int).Set(traded),
		CreatedAt: nowMicros,
	}
	takerTrade = Trade{
		Role:      RoleTaker,
		OrderID:   taker.ID,
		Price:     new(uint256.Int).Set(price),
		Quantity:  new(uint256.Int).Set(traded),
		CreatedAt: nowMicros,
	}
	return makerTrade, takerTrade, true
}
