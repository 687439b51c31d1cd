// Package websocket accepts raw TCP connections, upgrades them, and feeds
// their frames one at a time to a Handler.
package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"wschat/internal/config"
	"wschat/internal/protocol"
	"wschat/pkg/logger"
)

var ErrServerClosed = errors.New("websocket: server closed")

// Handler receives the events of open connections. Calls never overlap.
type Handler interface {
	HandleFrame(conn *Connection, payload []byte)
	HandleDisconnect(conn *Connection)
}

type Multiplexer struct {
	cfg       config.ServerConfig
	handler   Handler
	scheduler Scheduler

	mu       sync.Mutex
	listener net.Listener

	// conns is only touched from scheduled events.
	conns map[string]*Connection

	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewMultiplexer(cfg config.ServerConfig, handler Handler) (*Multiplexer, error) {
	scheduler, err := NewScheduler(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	return &Multiplexer{
		cfg:       cfg,
		handler:   handler,
		scheduler: scheduler,
		conns:     make(map[string]*Connection),
	}, nil
}

func (m *Multiplexer) ListenAndServe() error {
	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return m.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (m *Multiplexer) Serve(ln net.Listener) error {
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	m.listener = ln
	m.mu.Unlock()

	logger.Info("Accepting WebSocket connections on %s (%s scheduler)", ln.Addr(), m.schedulerName())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if m.closed.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return err
		}

		m.wg.Add(1)
		go m.serveConn(nc)
	}
}

func (m *Multiplexer) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// OpenCount returns the number of open connections.
func (m *Multiplexer) OpenCount() int {
	n := 0
	m.scheduler.Run(func() { n = len(m.conns) })
	return n
}

// Shutdown stops accepting, disconnects every open connection and stops
// the scheduler once all connection goroutines have returned or ctx ends.
func (m *Multiplexer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed.Store(true)
	if m.listener != nil {
		m.listener.Close()
	}
	m.mu.Unlock()

	m.scheduler.Run(func() {
		for _, conn := range m.conns {
			m.disconnect(conn)
		}
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	m.scheduler.Stop()
	return err
}

func (m *Multiplexer) serveConn(nc net.Conn) {
	defer m.wg.Done()

	conn := newConnection(nc, m.cfg)

	if m.cfg.HandshakeTimeout > 0 {
		nc.SetReadDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	}
	if _, err := protocol.Negotiate(conn.reader, nc); err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Debug("Handshake with %s failed: %v", conn.RemoteAddr(), err)
			protocol.Reject(nc)
		}
		nc.Close()
		return
	}
	nc.SetReadDeadline(time.Time{})

	accepted := false
	if !m.scheduler.Run(func() { accepted = m.open(conn) }) || !accepted {
		nc.Close()
		return
	}
	defer func() {
		// Covers a scheduler stopped by Shutdown before teardown could run.
		conn.shutdown()
		conn.wait()
	}()

	for {
		raw, err := protocol.ReadFrame(conn.reader, m.cfg.MaxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && conn.State() == StateOpen {
				logger.Debug("Read from %s failed: %v", conn.ID(), err)
			}
			m.scheduler.Run(func() { m.disconnect(conn) })
			return
		}

		if !conn.allow() {
			logger.Warn("Connection %s (%s) exceeded its message rate", conn.ID(), conn.RemoteIP())
			m.scheduler.Run(func() { m.closeWith(conn, protocol.ClosePolicyViolation, "rate limit exceeded") })
			return
		}

		if !m.scheduler.Run(func() { m.handleFrame(conn, raw) }) {
			return
		}
		if conn.State() == StateClosed {
			return
		}
	}
}

// open adds conn to the open set unless its identity is already present.
func (m *Multiplexer) open(conn *Connection) bool {
	if m.closed.Load() {
		return false
	}
	if _, exists := m.conns[conn.ID()]; exists {
		logger.Warn("Dropping duplicate connection %s from %s", conn.ID(), conn.RemoteAddr())
		return false
	}
	conn.setState(StateOpen)
	conn.start(m.dropStalled)
	m.conns[conn.ID()] = conn
	logger.Info("Connection %s opened from %s", conn.ID(), conn.RemoteAddr())
	return true
}

func (m *Multiplexer) handleFrame(conn *Connection, raw []byte) {
	if conn.State() != StateOpen {
		return
	}

	frame, err := protocol.Decode(raw)
	if err != nil {
		logger.Debug("Dropping connection %s: %v", conn.ID(), err)
		m.disconnect(conn)
		return
	}

	switch frame.Opcode {
	case protocol.OpClose:
		m.closeWith(conn, 1000, "")
	case protocol.OpPing:
		conn.Send(frame.Payload, protocol.OpPong)
	case protocol.OpPong:
	default:
		if protocol.IsPing(frame.Payload) {
			conn.writeRaw(protocol.Pong())
			return
		}
		m.handler.HandleFrame(conn, frame.Payload)
	}
}

func (m *Multiplexer) closeWith(conn *Connection, code int, reason string) {
	if conn.State() != StateOpen {
		return
	}
	conn.setState(StateClosing)
	conn.writeRaw(protocol.EncodeClose(code, reason))
	m.disconnect(conn)
}

// disconnect shuts the socket, forgets the connection and tears down its
// service state. It runs at most once per connection.
func (m *Multiplexer) disconnect(conn *Connection) {
	wasOpen := conn.State() == StateOpen || conn.State() == StateClosing
	if !conn.shutdown() {
		return
	}
	if current, ok := m.conns[conn.ID()]; ok && current == conn {
		delete(m.conns, conn.ID())
	}
	if wasOpen {
		m.handler.HandleDisconnect(conn)
		logger.Info("Connection %s closed", conn.ID())
	}
}

// dropStalled tears down a connection whose peer stopped reading. It may be
// called from inside an event, so the teardown is scheduled separately.
func (m *Multiplexer) dropStalled(conn *Connection) {
	go m.scheduler.Run(func() { m.disconnect(conn) })
}

func (m *Multiplexer) schedulerName() string {
	if _, ok := m.scheduler.(*LockedScheduler); ok {
		return config.SchedulerLocked
	}
	return config.SchedulerLoop
}
