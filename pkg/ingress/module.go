package ingress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type ClientType uint8

const (
	ClientTypeTCP = iota
	ClientTypeWS
)

func (c ClientType) String() string {
	switch c {
	case ClientTypeWS:
		return "ws"
	default:
		return "tcp"
	}
}

const (
	// The longest line a client may send before it is cut off.
	MAX_LINE_LENGTH = 4096
)

var (
	ErrTimeout = errors.New("no connection before timeout")
	ErrClosed  = errors.New("listener closed")

	// The client sent a line that does not fit in the read buffer.
	ErrLineTooLong = errors.New("line too long")
)

// Connection is one client's line-oriented stream. Reads must come from a
// single goroutine; writes may come from any.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader

	kind         ClientType
	host         string
	device       string
	writeTimeout time.Duration

	writeMutex sync.Mutex
	closeOnce  sync.Once
	done       chan struct{}
}

func newConnection(conn net.Conn, kind ClientType, host string, device string) *Connection {
	return &Connection{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, MAX_LINE_LENGTH),
		kind:   kind,
		host:   host,
		device: device,
		done:   make(chan struct{}),
	}
}

// NewConnection wraps an established stream such as one end of net.Pipe.
func NewConnection(conn net.Conn) *Connection {
	return newConnection(conn, ClientTypeTCP, hostOf(conn.RemoteAddr()), "desktop")
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (c *Connection) Type() ClientType {
	return c.kind
}

func (c *Connection) Host() string {
	return c.host
}

func (c *Connection) DeviceType() string {
	return c.device
}

// ReadLine returns the next line without its terminator. A final line
// without a terminator is still returned; after that, io.EOF.
func (c *Connection) ReadLine() (string, error) {
	// ReadSlice stops at the end of the buffer, so a client can never make
	// us hold more than MAX_LINE_LENGTH bytes.
	line, err := c.reader.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", fmt.Errorf("%w: over %d bytes", ErrLineTooLong, MAX_LINE_LENGTH)
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimRight(string(line), "\r\n"), nil
		}
		return "", err
	}

	return strings.TrimRight(string(line), "\r\n"), nil
}

// WriteLine sends a single line to the client.
func (c *Connection) WriteLine(line string) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// Close may be called any number of times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

type Options struct {
	// Accepted connections per second; zero means unlimited.
	AcceptRate  float64
	AcceptBurst int

	WebSocket bool
	// The WebSocket port is the TCP port plus this offset.
	WebSocketOffset int

	WriteTimeout time.Duration

	// Called when a connection is dropped before it reaches Accept.
	OnReject func(reason string)
}

// Listener collects connections from every source it serves and hands
// them out one at a time through Accept.
type Listener struct {
	options Options
	limiter *rate.Limiter

	conns   chan *Connection
	closed  chan struct{}
	closers []io.Closer
	addr    net.Addr
	wsAddr  net.Addr

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen starts serving on the given TCP port, and on the WebSocket port
// if enabled. Port zero picks free ports.
func Listen(port int, options Options) (*Listener, error) {
	l := &Listener{
		options: options,
		conns:   make(chan *Connection),
		closed:  make(chan struct{}),
	}

	if options.AcceptRate > 0 {
		burst := options.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(options.AcceptRate), burst)
	}

	tcp, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	l.addr = tcp.Addr()
	l.closers = append(l.closers, tcp)

	if options.WebSocket {
		wsPort := 0
		if port != 0 {
			wsPort = port + options.WebSocketOffset
		}

		err := l.serveWS(wsPort)
		if err != nil {
			tcp.Close()
			return nil, err
		}
	}

	l.wg.Add(1)
	go l.serveTCP(tcp)

	return l, nil
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}

// WebSocketAddr is nil unless WebSocket ingress is enabled.
func (l *Listener) WebSocketAddr() net.Addr {
	return l.wsAddr
}

func (l *Listener) reject(conn *Connection, reason string) {
	log.Debug().
		Str("host", conn.Host()).
		Str("reason", reason).
		Msg("dropped connection")
	if l.options.OnReject != nil {
		l.options.OnReject(reason)
	}
	conn.Close()
}

// offer blocks until the connection is accepted or the listener closes.
func (l *Listener) offer(conn *Connection) {
	conn.writeTimeout = l.options.WriteTimeout

	if l.limiter != nil && !l.limiter.Allow() {
		l.reject(conn, "rate")
		return
	}

	select {
	case l.conns <- conn:
	case <-l.closed:
		conn.Close()
	}
}

// Accept waits up to timeout for the next connection. It returns
// ErrTimeout when none arrived and ErrClosed once the listener is closed.
func (l *Listener) Accept(ctx context.Context, timeout time.Duration) (*Connection, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-l.conns:
		return conn, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops every source. Connections that were never accepted are
// closed; accepted ones are left to their owners.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		for _, closer := range l.closers {
			if closeErr := closer.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
		l.wg.Wait()
	})
	return err
}
