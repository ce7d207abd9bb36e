package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scenesync/server/internal/config"
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/protocol"
)

// Session represents a single peer connection. Network I/O runs in
// dedicated goroutines; scene state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn *websocket.Conn

	state atomic.Int32 // protocol.SessionState stored as int32

	InQueue  chan []byte // game loop reads messages from here
	OutQueue chan []byte // writer goroutine reads from here

	IP     string
	client ecs.ClientID // set by the hello handler (game loop only)

	outBuf [][]byte // buffered messages, flushed by the output system (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	limiter      *rate.Limiter // reader goroutine only
	limited      bool          // reader goroutine only
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxBytes     int64

	log *zap.Logger
}

func NewSession(conn *websocket.Conn, id uint64, cfg config.NetworkConfig, log *zap.Logger) *Session {
	limit := rate.Inf
	if cfg.MessagesPerSecond > 0 {
		limit = rate.Limit(cfg.MessagesPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, cfg.InQueueSize),
		OutQueue:     make(chan []byte, cfg.OutQueueSize),
		IP:           conn.RemoteAddr().String(),
		closeCh:      make(chan struct{}),
		limiter:      rate.NewLimiter(limit, burst),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		maxBytes:     cfg.MaxMessageBytes,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(protocol.StateConnected))
	return s
}

func (s *Session) State() protocol.SessionState {
	return protocol.SessionState(s.state.Load())
}

func (s *Session) SetState(st protocol.SessionState) {
	s.state.Store(int32(st))
}

// SessionID identifies the connection; it differs from the client id,
// which survives reconnects.
func (s *Session) SessionID() uint64 { return s.ID }

func (s *Session) ClientID() ecs.ClientID      { return s.client }
func (s *Session) SetClientID(id ecs.ClientID) { s.client = id }

// Log returns the session-scoped logger.
func (s *Session) Log() *zap.Logger { return s.log }

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a message for sending. It is not written until FlushOutput
// is called by the output system. Game loop only.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// SendMessage encodes payload as a typ message and buffers it.
func (s *Session) SendMessage(typ string, payload any) error {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	s.Send(data)
	return nil
}

// FlushOutput drains the output buffer to OutQueue for the writer
// goroutine. Non-blocking: if OutQueue is full, the session is
// disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow peer")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts the session down. Safe from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(protocol.StateClosing)
		close(s.closeCh)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads messages and pushes them
// onto InQueue for the game loop. Messages over the rate limit are dropped
// and answered once per limited stretch with E_RATE_LIMIT.
func (s *Session) readLoop() {
	defer s.Close()

	if s.maxBytes > 0 {
		s.conn.SetReadLimit(s.maxBytes)
	}
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		s.extendReadDeadline()

		if !s.limiter.Allow() {
			if !s.limited {
				s.limited = true
				s.log.Warn("message rate exceeded")
				s.sendDirect(protocol.TypeError, protocol.Error{
					Code:    protocol.ErrRateLimit,
					Message: protocol.ErrRateLimited.Error(),
				})
			}
			continue
		}
		s.limited = false

		// Block until InQueue has space or the session closes. Dropping
		// would silently lose patches; blocking only stalls this peer.
		select {
		case s.InQueue <- msg:
		case <-s.closeCh:
			return
		}
	}
}

// sendDirect bypasses the game-loop buffer. Used by the reader goroutine
// for transport-level errors; dropped when the queue is full.
func (s *Session) sendDirect(typ string, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		return
	}
	select {
	case s.OutQueue <- data:
	default:
	}
}

func (s *Session) extendReadDeadline() {
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

// writeLoop runs in its own goroutine. It writes queued messages and keeps
// the connection alive with pings.
func (s *Session) writeLoop() {
	defer s.Close()

	pingEvery := s.readTimeout * 9 / 10
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.write(websocket.TextMessage, data) {
				return
			}
		case <-ping.C:
			if !s.write(websocket.PingMessage, nil) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) write(kind int, data []byte) bool {
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(kind, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
