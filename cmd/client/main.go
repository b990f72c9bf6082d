package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	userID := flag.Uint64("user", 0, "User id placing or cancelling orders")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel']")

	symbol := flag.String("symbol", "AAPL", "Symbol (max 8 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	strategyStr := flag.String("strategy", "standard", "Match strategy: 'standard', 'fok', or 'ioc'")
	liquidityStr := flag.String("liquidity", "taker", "Liquidity directive: 'taker', 'maker-only', or 'taker-only'")
	tifStr := flag.String("tif", "gtc", "Time in force: 'none', 'gtc', or 'gtd'")
	price := flag.Uint64("price", 100, "Limit price (ignored for market orders)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	slippageBps := flag.Uint64("slippage-bps", 0, "Slippage tolerance in basis points (0 means unset)")
	expiresAt := flag.Uint64("expires-at", 0, "Expiry time as unix micros, for -tif gtd")

	orderID := flag.Uint64("order-id", 0, "Order id to cancel")

	flag.Parse()

	if *userID == 0 {
		fmt.Println("Error: -user is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as user %d\n", *serverAddr, *userID)

	go readReports(conn)

	side := common.Buy
	if strings.EqualFold(*sideStr, "sell") {
		side = common.Sell
	}

	orderType := common.Limit
	if strings.EqualFold(*typeStr, "market") {
		orderType = common.Market
	}

	strategy := parseStrategy(*strategyStr)
	liquidity := parseLiquidity(*liquidityStr)
	tif := parseTimeInForce(*tifStr)

	var slippage uint32
	if *slippageBps > 0 {
		slippage = uint32(*slippageBps)
	} else {
		slippage = noSlippageSentinel
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range parseQuantities(*qtyStr) {
			msg := wire.NewOrderMessage{
				BaseMessage:          wire.BaseMessage{TypeOf: wire.NewOrder},
				Symbol:               *symbol,
				Side:                 side,
				OrderType:            orderType,
				MatchStrategy:        strategy,
				LiquidityDirective:   liquidity,
				TimeInForce:          tif,
				Price:                *price,
				Quantity:             qty,
				SlippageToleranceBps: slippage,
				ExpiresAt:            *expiresAt,
				UserID:               *userID,
			}
			if err := sendNewOrder(conn, msg); err != nil {
				log.Printf("Failed to place order (qty %d): %v", qty, err)
				continue
			}
			fmt.Printf("-> Sent %s %s order: %s qty=%d price=%d\n", strings.ToUpper(*sideStr), strings.ToUpper(*typeStr), *symbol, qty, *price)
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == 0 {
			log.Fatal("Error: -order-id is required for cancellation")
		}
		if err := sendCancelOrder(conn, *symbol, *orderID); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent cancel request for order %d\n", *orderID)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

// noSlippageSentinel mirrors wire.noSlippage; the constant itself is
// unexported since it is an implementation detail of how the protocol
// distinguishes "no bound" from a genuine zero-bps bound.
const noSlippageSentinel = 0xFFFFFFFF

func parseStrategy(s string) common.MatchStrategy {
	switch strings.ToLower(s) {
	case "fok":
		return common.FillOrKill
	case "ioc":
		return common.ImmediateOrCancel
	default:
		return common.Standard
	}
}

func parseLiquidity(s string) common.LiquidityDirective {
	switch strings.ToLower(s) {
	case "maker-only":
		return common.MakerOnly
	case "taker-only":
		return common.TakerOnly
	default:
		return common.AllowTaker
	}
}

func parseTimeInForce(s string) common.TimeInForce {
	switch strings.ToLower(s) {
	case "gtd":
		return common.GoodTillDate
	case "none":
		return common.None
	default:
		return common.GoodTillCancelled
	}
}

func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: invalid quantity %q, skipping", p)
		}
	}
	return result
}

func sendNewOrder(conn net.Conn, msg wire.NewOrderMessage) error {
	symbolBytes := make([]byte, 8)
	copy(symbolBytes, msg.Symbol)

	body := make([]byte, wire.NewOrderMessageHeaderLen)
	body[0] = byte(msg.Side)
	body[1] = byte(msg.OrderType)
	body[2] = byte(msg.MatchStrategy)
	body[3] = byte(msg.LiquidityDirective)
	body[4] = byte(msg.TimeInForce)
	binary.BigEndian.PutUint64(body[5:13], msg.Price)
	binary.BigEndian.PutUint64(body[13:21], msg.Quantity)
	binary.BigEndian.PutUint32(body[21:25], msg.SlippageToleranceBps)
	binary.BigEndian.PutUint64(body[25:33], msg.ExpiresAt)
	binary.BigEndian.PutUint64(body[33:41], msg.UserID)
	copy(body[41:49], symbolBytes)

	buf := make([]byte, wire.BaseMessageHeaderLen+len(body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(wire.NewOrder))
	copy(buf[2:], body)

	_, err := conn.Write(buf)
	return err
}

func sendCancelOrder(conn net.Conn, symbol string, orderID uint64) error {
	symbolBytes := make([]byte, 8)
	copy(symbolBytes, symbol)

	buf := make([]byte, wire.BaseMessageHeaderLen+wire.CancelOrderMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(wire.CancelOrder))
	binary.BigEndian.PutUint64(buf[2:10], orderID)
	copy(buf[10:18], symbolBytes)

	_, err := conn.Write(buf)
	return err
}

// reportFixedHeaderLen mirrors wire.reportFixedHeaderLen: the portion of
// a Report before its variable-length error string.
const reportFixedHeaderLen = 1 + 1 + 1 + 8 + 8 + 8 + 8 + 8 + 2

func readReports(conn net.Conn) {
	for {
		header := make([]byte, reportFixedHeaderLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := wire.ReportMessageType(header[0])
		side := common.Side(header[1])
		role := common.TradeRole(header[2])
		orderID := binary.BigEndian.Uint64(header[3:11])
		price := binary.BigEndian.Uint64(header[11:19])
		qty := binary.BigEndian.Uint64(header[19:27])
		symbol := strings.TrimRight(string(header[35:43]), "\x00")
		errLen := binary.BigEndian.Uint16(header[43:45])

		var errStr string
		if errLen > 0 {
			errBuf := make([]byte, errLen)
			if _, err := io.ReadFull(conn, errBuf); err != nil {
				log.Printf("Error reading report body: %v", err)
				return
			}
			errStr = string(errBuf)
		}

		if msgType == wire.ErrorReport {
			fmt.Printf("\n[SERVER ERROR] %s\n", errStr)
			continue
		}
		fmt.Printf("\n[EXECUTION] %s %s | role=%s | order=%d | qty=%d | price=%d\n",
			strings.ToUpper(side.String()), symbol, role.String(), orderID, qty, price)
	}
}
