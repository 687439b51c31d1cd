package websocket

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wschat/internal/config"
	"wschat/internal/protocol"
	"wschat/pkg/logger"
)

const defaultSendQueueSize = 256

var (
	ErrSendQueueFull    = errors.New("websocket: send queue full")
	ErrConnectionClosed = errors.New("websocket: connection closed")
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one accepted socket. It is owned by the Multiplexer.
type Connection struct {
	id       string
	conn     net.Conn
	reader   *bufio.Reader
	remoteIP string

	state atomic.Int32

	writeTimeout time.Duration

	// send is drained by writePump. sendMu guards closing it.
	sendMu     sync.Mutex
	send       chan []byte
	sendClosed bool
	writerDone chan struct{}

	stalled atomic.Bool
	onStall func(*Connection)

	limiter *rate.Limiter
}

// ConnectionID derives the identity of a connection from its remote address.
func ConnectionID(remoteAddr string) string {
	h := fnv.New64a()
	h.Write([]byte(remoteAddr))
	return fmt.Sprintf("%016x", h.Sum64())
}

func newConnection(nc net.Conn, cfg config.ServerConfig) *Connection {
	remote := nc.RemoteAddr().String()
	ip, _, err := net.SplitHostPort(remote)
	if err != nil {
		ip = remote
	}

	queueSize := cfg.SendQueueSize
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}

	c := &Connection{
		id:           ConnectionID(remote),
		conn:         nc,
		reader:       bufio.NewReader(nc),
		remoteIP:     ip,
		writeTimeout: cfg.WriteTimeout,
		send:         make(chan []byte, queueSize),
	}
	if cfg.RateLimit.Enabled {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.MessagesPerSecond), cfg.RateLimit.Burst)
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteIP() string {
	return c.remoteIP
}

func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// allow reports whether another inbound frame fits in the rate limit.
func (c *Connection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// start launches the writer. onStall runs once if the peer cannot keep up;
// it must not block.
func (c *Connection) start(onStall func(*Connection)) {
	c.onStall = onStall
	c.writerDone = make(chan struct{})
	go c.writePump()
}

// Send queues a single unfragmented frame.
func (c *Connection) Send(payload []byte, op protocol.Opcode) error {
	return c.writeRaw(protocol.Encode(payload, op))
}

// SendJSON encodes v and queues it as a text frame.
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return c.Send(data, protocol.OpText)
}

// writeRaw queues frame without blocking. A full queue drops the connection.
func (c *Connection) writeRaw(frame []byte) error {
	if state := c.State(); state != StateOpen && state != StateClosing {
		return fmt.Errorf("%w: %s is %s", ErrConnectionClosed, c.id, state)
	}
	if c.stalled.Load() {
		return fmt.Errorf("%w: %s", ErrSendQueueFull, c.id)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, c.id)
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.stall(ErrSendQueueFull)
		return fmt.Errorf("%w: %s", ErrSendQueueFull, c.id)
	}
}

func (c *Connection) writePump() {
	defer func() {
		c.conn.Close()
		close(c.writerDone)
	}()

	for frame := range c.send {
		if c.stalled.Load() {
			continue
		}
		if c.writeTimeout > 0 {
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if _, err := c.conn.Write(frame); err != nil {
			c.stall(err)
		}
	}
}

// stall abandons the connection. A partly written frame leaves the stream
// unusable, so the socket is closed right away.
func (c *Connection) stall(err error) {
	if !c.stalled.CompareAndSwap(false, true) {
		return
	}
	if c.State() == StateOpen {
		logger.Warn("Dropping connection %s (%s): %v", c.id, c.remoteIP, err)
	}
	c.conn.Close()
	if c.onStall != nil {
		c.onStall(c)
	}
}

// shutdown closes the transport once. Queued frames are flushed first unless
// the connection stalled.
func (c *Connection) shutdown() bool {
	for {
		state := c.State()
		if state == StateClosed {
			return false
		}
		if c.state.CompareAndSwap(int32(state), int32(StateClosed)) {
			break
		}
	}

	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()

	if tcp, ok := c.conn.(*net.TCPConn); ok {
		tcp.CloseRead()
	}
	if c.writerDone == nil || c.stalled.Load() {
		c.conn.Close()
	}
	return true
}

// wait blocks until the writer has flushed and closed the socket.
func (c *Connection) wait() {
	if c.writerDone != nil {
		<-c.writerDone
	}
}
