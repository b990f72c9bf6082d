// Package wire is the optional TCP host adapting the engine to a binary
// line protocol: place/cancel requests in, execution/error reports out.
// It exists only as a demonstration collaborator (spec.md's Syncer port
// with a real implementation) and is outside the matching core's scope.
package wire

import (
	"encoding/binary"
	"errors"

	"fenrir/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
)

// MessageType identifies the wire format of an incoming request.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
)

// ReportMessageType identifies the wire format of an outgoing report.
type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

// symbolLen is the fixed width a symbol is padded or truncated to on
// the wire, the same fixed-ticker approach the teacher's protocol uses.
const symbolLen = 8

// noSlippage is the sentinel SlippageToleranceBps value meaning "not
// set", since 0 is itself a valid (zero-tolerance) slippage bound.
const noSlippage = 0xFFFFFFFF

type Message interface {
	GetType() MessageType
}

type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

const (
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 1 + 1 + 1 + 1 + 1 + 8 + 8 + 4 + 8 + 8 + symbolLen
	CancelOrderMessageHeaderLen = 8 + symbolLen
)

// NewOrderMessage is a place-order request. Price and quantity travel
// as plain uint64 units; scaling to a display price is a host concern
// this demonstration protocol does not attempt.
type NewOrderMessage struct {
	BaseMessage
	Symbol             string
	Side               common.Side
	OrderType          common.OrderType
	MatchStrategy      common.MatchStrategy
	LiquidityDirective common.LiquidityDirective
	TimeInForce        common.TimeInForce
	Price              uint64
	Quantity           uint64
	SlippageToleranceBps uint32
	ExpiresAt          uint64
	UserID             uint64
}

// Order builds the book order this request describes. id is assigned
// by the host's monotonic counter, not carried on the wire.
func (m *NewOrderMessage) Order(id uint64, nowMicros uint64) *common.Order {
	order := &common.Order{
		ID:                 id,
		UserID:             m.UserID,
		Side:               m.Side,
		OrderType:          m.OrderType,
		MatchStrategy:      m.MatchStrategy,
		LiquidityDirective: m.LiquidityDirective,
		TimeInForce:        m.TimeInForce,
		ExpiresAt:          m.ExpiresAt,
		CreatedAt:          nowMicros,
		UpdatedAt:          nowMicros,
		Price:              common.NewPrice(m.Price),
		Quantity:           common.NewQuantity(m.Quantity),
		FilledQuantity:     common.NewQuantity(0),
	}
	if m.SlippageToleranceBps != noSlippage {
		bps := m.SlippageToleranceBps
		order.SlippageTolerance = &bps
	}
	return order
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

func parseSymbol(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.Side = common.Side(msg[0])
	m.OrderType = common.OrderType(msg[1])
	m.MatchStrategy = common.MatchStrategy(msg[2])
	m.LiquidityDirective = common.LiquidityDirective(msg[3])
	m.TimeInForce = common.TimeInForce(msg[4])
	m.Price = binary.BigEndian.Uint64(msg[5:13])
	m.Quantity = binary.BigEndian.Uint64(msg[13:21])
	m.SlippageToleranceBps = binary.BigEndian.Uint32(msg[21:25])
	m.ExpiresAt = binary.BigEndian.Uint64(msg[25:33])
	m.UserID = binary.BigEndian.Uint64(msg[33:41])
	m.Symbol = parseSymbol(msg[41 : 41+symbolLen])
	return m, nil
}

// CancelOrderMessage is a cancel-order request.
type CancelOrderMessage struct {
	BaseMessage
	Symbol  string
	OrderID uint64
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	m.Symbol = parseSymbol(msg[8 : 8+symbolLen])
	return m, nil
}

// Report is one outgoing execution or error notification.
type Report struct {
	MessageType ReportMessageType
	Symbol      string
	Side        common.Side
	Role        common.TradeRole
	OrderID     uint64
	Price       uint64
	Quantity    uint64
	CreatedAt   uint64
	Err         string
}

const reportFixedHeaderLen = 1 + 1 + 1 + 8 + 8 + 8 + 8 + symbolLen + 2

// Serialize converts the report to its wire form.
func (r *Report) Serialize() []byte {
	buf := make([]byte, reportFixedHeaderLen+len(r.Err))
	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.Side)
	buf[2] = byte(r.Role)
	binary.BigEndian.PutUint64(buf[3:11], r.OrderID)
	binary.BigEndian.PutUint64(buf[11:19], r.Price)
	binary.BigEndian.PutUint64(buf[19:27], r.Quantity)
	binary.BigEndian.PutUint64(buf[27:35], r.CreatedAt)
	copy(buf[35:35+symbolLen], r.Symbol)
	binary.BigEndian.PutUint16(buf[35+symbolLen:37+symbolLen], uint16(len(r.Err)))
	copy(buf[37+symbolLen:], r.Err)
	return buf
}

func tradeReport(symbol string, trade common.Trade, side common.Side) Report {
	return Report{
		MessageType: ExecutionReport,
		Symbol:      symbol,
		Side:        side,
		Role:        trade.Role,
		OrderID:     trade.OrderID,
		Price:       trade.Price.Uint64(),
		Quantity:    trade.Quantity.Uint64(),
		CreatedAt:   trade.CreatedAt,
	}
}

func errorReport(err error) Report {
	return Report{MessageType: ErrorReport, Err: err.Error()}
}
