// Package serialport is the byte transport to the robot's microcontroller.
//
// A *Port may be nil: the engine keeps running without a controller
// attached, and every send then reports ErrNoPort instead of failing hard.
package serialport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	ErrNoPort  = errors.New("serialport: no controller attached")
	ErrTimeout = errors.New("serialport: read timed out")
)

// AmbiguousError is returned by Open when discovery finds several ports.
type AmbiguousError struct {
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("serialport: %d ports available, choose one of %s",
		len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// Config selects and opens a port.
type Config struct {
	Name        string // explicit device path, wins over everything else
	Prefix      string // e.g. /dev/ttyACM or COM
	Index       *int   // prefix suffix, skips discovery
	SearchRange int    // probe prefix0 .. prefix(N-1)
	Baud        int
	ReadTimeout time.Duration
	Greeting    bool // read one line after opening
}

// Device is the subset of serial.Port the transport needs.
type Device interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// openDevice is replaced in tests.
var openDevice = func(name string, baud int) (Device, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// List returns the serial ports known to the operating system.
func List() ([]string, error) {
	return serial.GetPortsList()
}

// Discover probes prefix+N for N in [0, searchRange) and returns the names
// that could be opened.
func Discover(prefix string, searchRange, baud int) []string {
	var found []string
	for i := 0; i < searchRange; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		dev, err := openDevice(name, baud)
		if err != nil {
			continue
		}
		_ = dev.Close()
		found = append(found, name)
	}
	return found
}

// Port is an open serial link with line-oriented reads.
type Port struct {
	name     string
	dev      Device
	timeout  time.Duration
	greeting string

	writeMu sync.Mutex
	readMu  sync.Mutex
	pending []byte
}

// Open resolves cfg to a device and opens it.
func Open(cfg Config) (*Port, error) {
	name, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	dev, err := openDevice(name, cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	p := NewPort(name, dev, cfg.ReadTimeout)
	if cfg.Greeting {
		line, err := p.ReadLine()
		if err != nil && !errors.Is(err, ErrTimeout) {
			_ = p.Close()
			return nil, fmt.Errorf("read greeting from %s: %w", name, err)
		}
		p.greeting = line
	}
	return p, nil
}

func resolve(cfg Config) (string, error) {
	if name := strings.TrimSpace(cfg.Name); name != "" {
		return name, nil
	}
	if cfg.Index != nil {
		return fmt.Sprintf("%s%d", cfg.Prefix, *cfg.Index), nil
	}
	found := Discover(cfg.Prefix, cfg.SearchRange, cfg.Baud)
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: nothing answered on %s0..%d", ErrNoPort, cfg.Prefix, cfg.SearchRange-1)
	case 1:
		return found[0], nil
	default:
		return "", &AmbiguousError{Candidates: found}
	}
}

// NewPort wraps an already open device.
func NewPort(name string, dev Device, readTimeout time.Duration) *Port {
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	// Short device timeouts keep ReadLine responsive to its own deadline.
	_ = dev.SetReadTimeout(min(readTimeout, 50*time.Millisecond))
	return &Port{name: name, dev: dev, timeout: readTimeout}
}

// Name returns the device path.
func (p *Port) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

// Greeting returns the first line the controller sent after opening.
func (p *Port) Greeting() string {
	if p == nil {
		return ""
	}
	return p.greeting
}

// Send writes msg to the controller.
func (p *Port) Send(msg string) error {
	if p == nil || p.dev == nil {
		return ErrNoPort
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.dev, msg); err != nil {
		return fmt.Errorf("write %s: %w", p.name, err)
	}
	return nil
}

// ReadLine returns the next newline-terminated line, terminator included.
// If the read timeout passes first, any partial line is returned; with no
// data at all the error is ErrTimeout.
func (p *Port) ReadLine() (string, error) {
	if p == nil || p.dev == nil {
		return "", ErrNoPort
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()

	deadline := time.Now().Add(p.timeout)
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(p.pending, '\n'); i >= 0 {
			line := string(p.pending[:i+1])
			p.pending = p.pending[i+1:]
			return line, nil
		}
		if !time.Now().Before(deadline) {
			if len(p.pending) > 0 {
				line := string(p.pending)
				p.pending = nil
				return line, nil
			}
			return "", ErrTimeout
		}

		n, err := p.dev.Read(buf)
		if n > 0 {
			p.pending = append(p.pending, buf[:n]...)
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", p.name, err)
		}
	}
}

// Close releases the device.
func (p *Port) Close() error {
	if p == nil || p.dev == nil {
		return nil
	}
	return p.dev.Close()
}
