package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
)

const readBufferSize = 4096

type tcpConn struct {
	id   string
	conn net.Conn
	buf  []byte

	writeMu sync.Mutex
}

func newTCPConn(c net.Conn) *tcpConn {
	return &tcpConn{id: uuid.NewString(), conn: c, buf: make([]byte, readBufferSize)}
}

func (c *tcpConn) ID() string         { return c.id }
func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
func (c *tcpConn) Close() error       { return c.conn.Close() }

// Receive returns whatever one read delivers. TCP has no message boundaries,
// so a chunk may hold several JSON documents or part of one.
func (c *tcpConn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		return append([]byte(nil), c.buf[:n]...), nil
	}
	if errors.Is(err, io.EOF) {
		return []byte{}, nil
	}
	if err == nil {
		return []byte{}, nil
	}
	return nil, err
}

func (c *tcpConn) Send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(msg)
	return err
}

// acceptTCP binds ep, accepts exactly one peer and closes the listener.
func acceptTCP(ctx context.Context, ep Endpoint) (Conn, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", ep.Addr(), err)
	}
	return acceptOne(ctx, ln)
}

func acceptOne(ctx context.Context, ln net.Listener) (Conn, error) {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	c, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return newTCPConn(c), nil
}

func dialTCP(ctx context.Context, ep Endpoint) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, err
	}
	return newTCPConn(c), nil
}
