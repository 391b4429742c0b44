package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/errors"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Inline images are base64 data URLs.
	maxMessageSize = 2 << 20

	sendBufferSize = 64
)

// Options bound connection establishment. Attempts is the ceiling of
// consecutive failed attempts per outage before giving up; zero retries forever.
type Options struct {
	URL            string
	Attempts       int
	Delay          time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration
	Header         http.Header
}

func DefaultOptions(url string) Options {
	return Options{
		URL:            url,
		Attempts:       5,
		Delay:          time.Second,
		MaxDelay:       5 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Dialer opens Sockets against one endpoint.
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewDialer(opts Options, log *slog.Logger) *Dialer {
	return &Dialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.ConnectTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		log: log,
	}
}

// Dial starts connecting in the background and returns the Socket at once.
func (d *Dialer) Dial(ctx context.Context, handler contract.Handler) (contract.Conn, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil handler")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Socket{
		log:     d.log.With("url", d.opts.URL),
		opts:    d.opts,
		dialer:  d.dialer,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// Socket is one logical connection. It reconnects on its own after a drop
// and delivers every Handler callback from its run goroutine.
type Socket struct {
	log     *slog.Logger
	opts    Options
	dialer  *websocket.Dialer
	handler contract.Handler
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	send      chan []byte
	closed    bool
	closeOnce sync.Once
}

// Emit queues one event on the live connection.
func (s *Socket) Emit(event string, payload any) error {
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return errors.ErrConnectionClosed
	case s.send == nil:
		return errors.ErrNotConnected
	}
	select {
	case s.send <- data:
		s.log.Debug("Frame queued", "type", event)
		return nil
	default:
		return errors.ErrSendBufferFull
	}
}

// Close stops the socket. Frames already queued are flushed best-effort,
// followed by a close frame; no acknowledgment is awaited.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		send := s.send
		s.send = nil
		s.mu.Unlock()
		if send != nil {
			close(send)
		}
		s.cancel()
	})
	return nil
}

// Done is closed once the socket has fully stopped.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) run(ctx context.Context) {
	defer close(s.done)
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	attempt := 0
	for {
		if s.isClosed() {
			return
		}
		attempt++
		conn, err := s.connect(ctx)
		if err != nil {
			if s.isClosed() {
				return
			}
			final := s.opts.Attempts > 0 && attempt >= s.opts.Attempts
			s.log.Warn("Connection attempt failed", "attempt", attempt, "final", final, "err", err)
			s.handler.OnConnectError(fmt.Errorf("%w: %v", errors.ErrTransport, err), attempt, final)
			if final {
				_ = s.Close()
				return
			}
			if !sleep(ctx, backoff(attempt, s.opts.Delay, s.opts.MaxDelay)) {
				return
			}
			continue
		}
		attempt = 0

		send := make(chan []byte, sendBufferSize)
		stop := make(chan struct{})
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.send = send
		s.mu.Unlock()

		go s.writePump(conn, send, stop)
		s.log.Info("Connected")
		s.handler.OnConnect(s)
		err = s.readPump(conn)
		close(stop)

		s.mu.Lock()
		closed := s.closed
		if s.send == send {
			s.send = nil
		}
		s.mu.Unlock()
		if closed {
			return
		}
		s.log.Warn("Connection dropped", "err", err)
		s.handler.OnDisconnect(fmt.Errorf("%w: %v", errors.ErrTransport, err))
	}
}

func (s *Socket) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx := ctx
	if s.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.opts.ConnectTimeout)
		defer cancel()
	}
	conn, _, err := s.dialer.DialContext(dialCtx, s.opts.URL, s.opts.Header)
	return conn, err
}

// readPump delivers inbound frames to the handler in arrival order until the
// connection fails.
func (s *Socket) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var evt contract.Event
		if err := json.Unmarshal(message, &evt); err != nil || evt.Type == "" {
			s.log.Warn("Dropping malformed frame", "err", err)
			continue
		}
		s.log.Debug("Frame received", "type", evt.Type)
		s.handler.OnEvent(evt)
	}
}

// writePump is the only writer of conn. A closed send channel means Close was
// called: pending frames are written, then a close frame.
func (s *Socket) writePump(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// backoff doubles delay per failed attempt, capped at max.
func backoff(attempt int, delay, max time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	d := delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
