// Package link owns the control channel: the network connection the
// operator's endpoint sends command batches over, and the receive task that
// feeds them into the robot state.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	ErrEmptyMessage = errors.New("link: empty message")
	ErrPeerStop     = errors.New("link: peer sent STOP")
	ErrTaskRunning  = errors.New("link: receive task already running")
	ErrClosed       = errors.New("link: manager closed")
	ErrGaveUp       = errors.New("link: connect attempts exhausted")
)

// State is the lifecycle of the active connection.
type State int

const (
	Disconnected State = iota
	Listening
	Connecting
	Established
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Listening:
		return "LISTENING"
	case Connecting:
		return "CONNECTING"
	case Established:
		return "ESTABLISHED"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Role decides whether the engine waits for the control endpoint or dials it.
type Role string

const (
	RoleListen  Role = "listen"
	RoleConnect Role = "connect"
)

// Transport is the wire carrying the JSON batches.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportWS  Transport = "ws"
)

// Endpoint holds the bind or connect parameters. They are reused unchanged
// for every reconnection.
type Endpoint struct {
	Role      Role
	Transport Transport
	Host      string
	Port      int
	Path      string // websocket only
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the websocket URL for connect role.
func (e Endpoint) URL() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "ws://" + e.Addr() + path
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s %s://%s", e.Role, e.Transport, e.Addr())
}

// Conn is one established control connection.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Receive blocks for the next message. An orderly shutdown by the peer
	// yields an empty message and a nil error.
	Receive(ctx context.Context) ([]byte, error)
	Send(msg []byte) error
	RemoteAddr() string
	Close() error
}

// Open establishes one connection for ep. Listen role blocks until a single
// peer arrives; connect role makes one dial attempt.
func Open(ctx context.Context, ep Endpoint) (Conn, error) {
	switch ep.Transport {
	case TransportTCP, "":
		if ep.Role == RoleConnect {
			return dialTCP(ctx, ep)
		}
		return acceptTCP(ctx, ep)
	case TransportWS:
		if ep.Role == RoleConnect {
			return dialWS(ctx, ep)
		}
		return acceptWS(ctx, ep)
	default:
		return nil, fmt.Errorf("link: unknown transport %q", ep.Transport)
	}
}
