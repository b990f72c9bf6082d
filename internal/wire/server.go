package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/common"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper task conversion")
	ErrSessionNotFound    = errors.New("session not found")
)

// Engine is the subset of *engine.Engine the wire host needs. Declared
// here, not imported, so internal/wire depends only on the shape it
// uses — the same separation internal/book draws around Syncer.
type Engine interface {
	CreateOrder(symbol string, order *common.Order) error
	UpdateOrder(symbol string, orderID uint64, newPrice *common.Price, nowMicros uint64) error
	CancelOrder(symbol string, orderID uint64) error
	MatchOrders(symbol string, nowMicros uint64)
}

// clientMessage links a decoded request to the session it arrived on.
type clientMessage struct {
	session uuid.UUID
	message Message
}

// Server is a TCP host that decodes NewOrder/CancelOrder requests into
// engine calls and reports fills and errors back over the same
// connection. It assigns order ids itself (a simple monotonic counter)
// since the wire protocol does not carry one; it does not persist
// anything and has no notion of a session surviving past its
// connection, per spec.md's non-goals for this layer.
type Server struct {
	address string
	port    int
	engine  Engine
	nextID  idCounter

	pool           workerPool
	cancel         context.CancelFunc
	clientMessages chan clientMessage

	sessions *SessionRegistry
	syncer   *Syncer
}

// New creates a wire host bound to address:port, dispatching decoded
// requests to engine. syncer is the Syncer the engine's books were
// constructed with (see NewSyncer); the server binds each new order to
// its symbol on syncer so later fill/cancel reports know where to route.
func New(address string, port int, engine Engine, syncer *Syncer) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         engine,
		pool:           newWorkerPool(defaultNWorkers),
		clientMessages: make(chan clientMessage, 1),
		sessions:       syncer.sessions,
		syncer:         syncer,
	}
}

// Shutdown requests the server stop accepting connections and exit Run.
func (s *Server) Shutdown() {
	log.Info().Msg("wire server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("wire server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting connection")
				continue
			}
			id := s.sessions.add(conn)
			log.Info().Str("session", id.String()).Str("address", conn.RemoteAddr().String()).Msg("new session")
			s.pool.addTask(sessionConn{id: id, conn: conn})
		}
	}
}

// sessionConn is the unit of work the connection-handling worker pool
// passes around: a connection paired with the session id it was
// registered under, so a worker never has to look it up by address.
type sessionConn struct {
	id   uuid.UUID
	conn net.Conn
}

func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	sc, ok := task.(sessionConn)
	if !ok {
		return ErrImproperConversion
	}

	select {
	case <-t.Dying():
		return nil
	default:
	}

	if err := sc.conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("session", sc.id.String()).Msg("failed setting read deadline")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	n, err := sc.conn.Read(buffer)
	if err != nil {
		// A read failure (including a plain timeout with nothing sent)
		// ends this connection's session; the client must reconnect.
		s.sessions.remove(sc.id)
		return nil
	}

	message, err := parseMessage(buffer[:n])
	if err != nil {
		log.Error().Err(err).Str("session", sc.id.String()).Msg("error parsing message")
		s.sessions.remove(sc.id)
		return nil
	}

	s.clientMessages <- clientMessage{session: sc.id, message: message}

	// Requeue the connection for its next message.
	s.pool.addTask(sc)
	return nil
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case cm := <-s.clientMessages:
			if err := s.handleMessage(cm); err != nil {
				log.Error().Err(err).Str("session", cm.session.String()).Msg("error handling message")
				s.reportError(cm.session, err)
			}
		}
	}
}

func (s *Server) handleMessage(cm clientMessage) error {
	now := uint64(time.Now().UnixMicro())
	switch msg := cm.message.(type) {
	case NewOrderMessage:
		id := s.nextID.next()
		order := msg.Order(id, now)
		s.sessions.bindUser(cm.session, order.UserID)
		if err := s.engine.CreateOrder(msg.Symbol, order); err != nil {
			return err
		}
		s.syncer.BindSymbol(order.ID, msg.Symbol)
		s.engine.MatchOrders(msg.Symbol, now)
		return nil
	case CancelOrderMessage:
		return s.engine.CancelOrder(msg.Symbol, msg.OrderID)
	case BaseMessage:
		return nil // heartbeat
	default:
		return ErrInvalidMessageType
	}
}

func (s *Server) reportError(session uuid.UUID, err error) {
	report := errorReport(err)
	if writeErr := s.sessions.write(session, report.Serialize()); writeErr != nil {
		log.Error().Err(writeErr).Str("session", session.String()).Msg("unable to deliver error report")
	}
}

// idCounter hands out order ids. A plain mutex-guarded counter, not
// sync/atomic.Uint64, since every caller already goes through
// sessionHandler's single goroutine; kept as its own type so the
// handler reads as "get the next id" rather than a bare field access.
type idCounter struct {
	mu    sync.Mutex
	value uint64
}

func (c *idCounter) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}
