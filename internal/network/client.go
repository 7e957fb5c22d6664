// Package network carries terrain edits between an editor and a runtime
// over framed connections.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/network/packets"
)

// ErrNotConnected is returned when sending on a closed client.
var ErrNotConnected = errors.New("not connected")

// maxBodySize bounds a single packet body.
const maxBodySize = 64 << 20

// inboxSize is how many packets may wait for Process.
const inboxSize = 256

const defaultDialTimeout = 5 * time.Second

// Transport is the minimal byte-level link the editor side needs.
type Transport interface {
	Send(data []byte) error
	OnReceive(fn func(data []byte))
}

// PacketHandler handles incoming packets.
type PacketHandler func(c *Client, body []byte) error

// Packet is a received frame waiting to be dispatched.
type Packet struct {
	From *Client
	ID   uint16
	Body []byte
}

// dispatcher queues packets from reader goroutines and runs handlers on
// whichever goroutine calls process.
type dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint16]PacketHandler
	fallback func(data []byte)
	inbox    chan Packet
	log      *zap.Logger
}

func newDispatcher(log *zap.Logger) *dispatcher {
	return &dispatcher{
		handlers: make(map[uint16]PacketHandler),
		inbox:    make(chan Packet, inboxSize),
		log:      log,
	}
}

func (d *dispatcher) register(id uint16, h PacketHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = h
}

func (d *dispatcher) setFallback(fn func(data []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = fn
}

func (d *dispatcher) push(ctx context.Context, p Packet) error {
	select {
	case d.inbox <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dispatcher) process() (int, error) {
	var errs error
	n := 0
	for {
		select {
		case p := <-d.inbox:
			n++
			errs = multierr.Append(errs, d.dispatch(p))
		default:
			return n, errs
		}
	}
}

func (d *dispatcher) dispatch(p Packet) error {
	d.mu.RLock()
	h, ok := d.handlers[p.ID]
	fallback := d.fallback
	d.mu.RUnlock()

	if ok {
		if err := h(p.From, p.Body); err != nil {
			return fmt.Errorf("packet 0x%04X: %w", p.ID, err)
		}
		return nil
	}
	if fallback != nil {
		fallback(packets.Frame(p.ID, p.Body))
		return nil
	}
	d.log.Debug("Unhandled packet", zap.Uint16("id", p.ID), zap.Int("length", len(p.Body)))
	return nil
}

// Client is one end of a framed connection.
type Client struct {
	// DialTimeout bounds Connect. Zero means defaultDialTimeout.
	DialTimeout time.Duration

	conn       net.Conn
	mu         sync.Mutex
	connected  bool
	dispatcher *dispatcher
	log        *zap.Logger
}

var _ Transport = (*Client)(nil)

// New creates a new network client.
func New(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		dispatcher: newDispatcher(log),
		log:        log,
	}
}

// newPeer creates a server-side client that shares the server's dispatcher.
func newPeer(conn net.Conn, d *dispatcher, log *zap.Logger) *Client {
	return &Client{
		conn:       conn,
		connected:  true,
		dispatcher: d,
		log:        log.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Connect dials a runtime.
func (c *Client) Connect(addr string) error {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if err := c.Attach(conn); err != nil {
		conn.Close()
		return err
	}
	c.log.Info("Connected", zap.String("addr", addr))
	return nil
}

// Attach uses an established connection.
func (c *Client) Attach(conn net.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}
	c.conn = conn
	c.connected = true
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// RegisterHandler registers a packet handler.
func (c *Client) RegisterHandler(packetID uint16, handler PacketHandler) {
	c.dispatcher.register(packetID, handler)
}

// OnReceive receives every frame that has no registered handler, header
// included.
func (c *Client) OnReceive(fn func(data []byte)) {
	c.dispatcher.setFallback(fn)
}

// Send writes a complete frame.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("sending %d bytes: %w", len(data), err)
	}
	return nil
}

// SendPacket frames body under id and sends it.
func (c *Client) SendPacket(id uint16, body []byte) error {
	return c.Send(packets.Frame(id, body))
}

// Serve reads frames until the connection closes or ctx is done. Frames
// are queued for Process. A clean remote close returns nil.
func (c *Client) Serve(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var hdr [packets.HeaderSize]byte
	for {
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return c.readError(ctx, err)
		}
		h := packets.DecodeHeader(hdr[:])
		if h.Length > maxBodySize {
			return fmt.Errorf("packet 0x%04X: body of %d bytes exceeds limit", h.ID, h.Length)
		}
		body := make([]byte, h.Length)
		if _, err := io.ReadFull(conn, body); err != nil {
			return c.readError(ctx, err)
		}
		if err := c.dispatcher.push(ctx, Packet{From: c, ID: h.ID, Body: body}); err != nil {
			return nil
		}
	}
}

func (c *Client) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return fmt.Errorf("reading packet: %w", err)
}

// Process dispatches every queued packet and returns how many ran.
// Should be called regularly from the owning loop.
func (c *Client) Process() (int, error) {
	return c.dispatcher.process()
}
