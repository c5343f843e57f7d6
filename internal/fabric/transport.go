package fabric

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/logger"
	"github.com/arxgeo/geodist/internal/metrics"
)

// Handler processes one received Message and optionally returns a reply
// to write back on the same connection (nil for a fire-and-forget tag).
type Handler func(conn net.Conn, msg Message) *Message

// Server accepts TCP connections from peer controllers and dispatches
// every framed Message it receives to Handler. Each worker runs one
// Server and receives every host command on it, including the
// distance-join traffic phase's batches, which the host relays; the
// host itself only dials out and runs no Server.
type Server struct {
	addr     string
	handler  Handler
	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]bool
}

// NewServer binds addr (host:port, empty host means all interfaces) and
// returns a Server that dispatches incoming frames to handler.
func NewServer(addr string, handler Handler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		clients: make(map[net.Conn]bool),
	}
}

// Start begins accepting connections in a background goroutine and
// returns once the listener is bound, so callers know the bound address
// (useful when addr requests an ephemeral port) before returning.
func (s *Server) Start() (string, error) {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", dberr.Wrap(dberr.CodeCommunication, "listen on "+s.addr, err)
	}
	s.listener = l
	go s.acceptLoop()
	return l.Addr().String(), nil
}

// Stop closes every client connection and the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			logger.Error("fabric: accept failed: %v", err)
			continue
		}
		s.mu.Lock()
		s.clients[conn] = true
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return // peer closed the connection or sent a malformed frame
		}
		metrics.RecordMessageReceived(msg.Tag.String())
		reply := s.handler(conn, msg)
		if reply != nil {
			if err := WriteMessage(conn, *reply); err != nil {
				logger.Error("fabric: reply write failed: %v", err)
				return
			}
			metrics.RecordMessageSent(reply.Tag.String())
		}
	}
}

// Client is a long-lived, reconnectable connection to one peer node.
// Controllers keep one Client per peer they address individually
// (scatter) and reuse the same connection across a session.
type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient returns a Client that dials addr lazily on first Send.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

func (c *Client) ensureConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeCommunication, "dial "+c.addr, err)
	}
	c.conn = conn
	return conn, nil
}

// Send writes m and, unless m.Tag is TagHeartbeat, blocks for exactly one
// reply frame (the request/reply pairing every fabric exchange uses: a
// command gets exactly one Ack/Nack/QueryResult back before the next one
// is sent on the same connection).
func (c *Client) Send(m Message) (*Message, error) {
	conn, err := c.ensureConn()
	if err != nil {
		return nil, err
	}
	if err := WriteMessage(conn, m); err != nil {
		c.invalidate()
		return nil, err
	}
	metrics.RecordMessageSent(m.Tag.String())
	if m.Tag == TagHeartbeat {
		return nil, nil
	}
	reply, err := ReadMessage(conn)
	if err != nil {
		c.invalidate()
		return nil, dberr.Wrap(dberr.CodeCommunication, "read reply from "+c.addr, err)
	}
	metrics.RecordMessageReceived(reply.Tag.String())
	return &reply, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() {
	c.invalidate()
}
