package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server accepts editor connections. Handlers for every connection share
// one queue drained by Process.
type Server struct {
	ln         net.Listener
	dispatcher *dispatcher
	log        *zap.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// Listen opens a TCP listener on addr.
func Listen(addr string, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return NewServer(ln, log), nil
}

// NewServer wraps an existing listener.
func NewServer(ln net.Listener, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		ln:         ln,
		dispatcher: newDispatcher(log),
		log:        log,
		clients:    make(map[*Client]struct{}),
	}
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// RegisterHandler registers a packet handler for all connections.
func (s *Server) RegisterHandler(packetID uint16, handler PacketHandler) {
	s.dispatcher.register(packetID, handler)
}

// Serve accepts connections until ctx is done or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accepting: %w", err)
		}
		c := newPeer(conn, s.dispatcher, s.log)
		s.track(c, true)
		c.log.Info("Editor connected")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(c, false)
			defer c.Disconnect()
			if err := c.Serve(ctx); err != nil {
				c.log.Warn("Connection closed", zap.Error(err))
				return
			}
			c.log.Info("Editor disconnected")
		}()
	}
}

func (s *Server) track(c *Client, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.clients[c] = struct{}{}
	} else {
		delete(s.clients, c)
	}
}

// Process dispatches every queued packet and returns how many ran.
func (s *Server) Process() (int, error) {
	return s.dispatcher.process()
}

// Broadcast sends a packet to every connected editor.
func (s *Server) Broadcast(id uint16, body []byte) error {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	var errs error
	for _, c := range clients {
		errs = multierr.Append(errs, c.SendPacket(id, body))
	}
	return errs
}

// ClientCount returns the number of live connections.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting and drops every connection.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for c := range s.clients {
		c.Disconnect()
	}
	s.mu.Unlock()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
