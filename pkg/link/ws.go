package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: readBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true // the operator station is not a browser origin
	},
}

var dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}

type wsConn struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{id: uuid.NewString(), conn: c}
}

func (c *wsConn) ID() string         { return c.id }
func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
func (c *wsConn) Close() error       { return c.conn.Close() }

// Receive returns one websocket message. A normal close frame from the peer
// is reported as an empty message.
func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return []byte{}, nil
		}
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (c *wsConn) Send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// acceptWS serves a single websocket upgrade on ep.Path. Later clients are
// refused until the next Open.
func acceptWS(ctx context.Context, ep Endpoint) (Conn, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", ep.Addr(), err)
	}
	return serveOneWS(ctx, ln, ep.Path)
}

func serveOneWS(ctx context.Context, ln net.Listener, path string) (Conn, error) {
	if path == "" {
		path = "/"
	}
	accepted := make(chan *websocket.Conn, 1)
	var taken atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if !taken.CompareAndSwap(false, true) {
			http.Error(w, "control endpoint already connected", http.StatusServiceUnavailable)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			taken.Store(false)
			return
		}
		accepted <- c
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	// Hijacked connections survive Shutdown.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case c := <-accepted:
		return newWSConn(c), nil
	case err := <-errCh:
		return nil, fmt.Errorf("serve websocket: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func dialWS(ctx context.Context, ep Endpoint) (Conn, error) {
	c, _, err := dialer.DialContext(ctx, ep.URL(), nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(c), nil
}
