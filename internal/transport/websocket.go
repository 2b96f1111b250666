package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/watzon/alyx-worker/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second

	DefaultReadLimit = 100 * 1024 * 1024
)

// Options configures a WebSocket stream.
type Options struct {
	// ReadLimit caps the size of one inbound frame.
	ReadLimit int64

	// PingInterval enables keepalive pings when positive.
	PingInterval time.Duration

	// Header is sent with the dial request.
	Header http.Header
}

// WebSocketStream is a Stream over one WebSocket connection. Each protocol
// message is one text frame holding its JSON encoding.
type WebSocketStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Dial connects to the host at url.
func Dial(ctx context.Context, url string, opts Options) (*WebSocketStream, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: opts.Header,
	})
	if err != nil {
		return nil, err
	}
	return newWebSocketStream(conn, opts), nil
}

// Accept upgrades an HTTP request to a stream. It is the host side of Dial.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*WebSocketStream, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, err
	}
	return newWebSocketStream(conn, opts), nil
}

func newWebSocketStream(conn *websocket.Conn, opts Options) *WebSocketStream {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	conn.SetReadLimit(opts.ReadLimit)

	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketStream{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if opts.PingInterval > 0 {
		go s.pingPump(opts.PingInterval)
	}
	return s
}

// Recv reads the next message.
func (s *WebSocketStream) Recv(ctx context.Context) (*protocol.Message, error) {
	ctx, cancel := s.merge(ctx)
	defer cancel()

	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		select {
		case <-s.done:
			return nil, io.EOF
		default:
		}
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: binary frame", ErrMalformed)
	}
	return decode(data)
}

// Send writes one message.
func (s *WebSocketStream) Send(ctx context.Context, msg *protocol.Message) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	data, err := encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := s.merge(ctx)
	defer cancel()
	ctx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
	defer cancelWrite()

	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		select {
		case <-s.done:
			return ErrClosed
		default:
		}
		return err
	}
	return nil
}

// Close closes the connection with a normal closure. It is safe to call
// more than once.
func (s *WebSocketStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close(websocket.StatusNormalClosure, "closing")
		s.cancel()
	})
	return err
}

// merge returns a context canceled when either ctx or the stream is done.
func (s *WebSocketStream) merge(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *WebSocketStream) pingPump(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, pongTimeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("Ping failed")
				_ = s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
