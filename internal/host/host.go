// Package host runs the authoritative terrain session behind a network
// server: it applies editor requests on one goroutine and answers with the
// result of each commit.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/layer"
	"github.com/Faultbox/midgard-terrain/internal/network"
	"github.com/Faultbox/midgard-terrain/internal/network/packets"
	"github.com/Faultbox/midgard-terrain/internal/storage"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/internal/texture"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// ProtocolVersion is sent in every welcome.
const ProtocolVersion uint16 = 1

// ErrWrongMap is returned for requests addressed to another map.
var ErrWrongMap = errors.New("wrong map")

// Config holds host configuration.
type Config struct {
	MapID        uint32
	TickInterval time.Duration
	// RenderFormat is the readback format used for procedural refills.
	RenderFormat texture.PixelFormat
}

// Host owns a session. Only Tick and Run touch it.
type Host struct {
	cfg     Config
	sess    *layer.Session
	store   *storage.Store
	srv     *network.Server
	renders *texture.Queue
	builder terrain.MeshBuilder

	// dirty is set by commits and cleared by a save.
	dirty bool
	// refill is a procedural region waiting for the next tick to submit it.
	refill *grid.Rect
	log    *zap.Logger
}

// New wires the session to srv's handlers. store may be nil to disable
// saving; renders may be nil to disable procedural refills.
func New(cfg Config, sess *layer.Session, store *storage.Store, srv *network.Server, renders *texture.Queue, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second / 30
	}
	if cfg.RenderFormat == texture.FormatUnknown {
		cfg.RenderFormat = texture.FormatRFloat
	}
	h := &Host{
		cfg:     cfg,
		sess:    sess,
		store:   store,
		srv:     srv,
		renders: renders,
		builder: terrain.GridMeshBuilder{},
		log:     log,
	}

	srv.RegisterHandler(packets.ER_HELLO, h.guard(packets.ER_HELLO, h.handleHello))
	srv.RegisterHandler(packets.ER_LAYER_REGION, h.guard(packets.ER_LAYER_REGION, h.handleLayerRegion))
	srv.RegisterHandler(packets.ER_BRUSH_STAMP, h.guard(packets.ER_BRUSH_STAMP, h.handleBrushStamp))
	srv.RegisterHandler(packets.ER_MAP_RESIZE, h.guard(packets.ER_MAP_RESIZE, h.handleMapResize))
	return h
}

// Session returns the hosted session. Callers must be on the host goroutine.
func (h *Host) Session() *layer.Session { return h.sess }

// Run serves editors and ticks until ctx is done, then saves the session.
func (h *Host) Run(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- h.srv.Serve(ctx) }()

	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	h.log.Info("host running",
		zap.Stringer("addr", h.srv.Addr()),
		zap.Duration("tick", h.cfg.TickInterval))

	// Stats
	ticks := 0
	statsTimer := time.Now()

	for {
		select {
		case <-ctx.Done():
			return h.shutdown(<-served)
		case err := <-served:
			if ctx.Err() != nil {
				return h.shutdown(err)
			}
			if err != nil {
				return fmt.Errorf("serving: %w", err)
			}
			return nil
		case <-ticker.C:
			if err := h.Tick(ctx); err != nil {
				h.log.Warn("tick", zap.Error(err))
			}
			ticks++
			if time.Since(statsTimer) >= time.Minute {
				h.log.Debug("host stats",
					zap.Int("ticks", ticks),
					zap.Int("editors", h.srv.ClientCount()))
				ticks = 0
				statsTimer = time.Now()
			}
		}
	}
}

// shutdown waits for render jobs and saves.
func (h *Host) shutdown(serveErr error) error {
	if h.renders != nil {
		h.renders.Wait()
	}
	return multierr.Append(serveErr, h.Save())
}

// Tick dispatches queued packets, applies finished renders and rebuilds
// invalidated meshes.
func (h *Host) Tick(ctx context.Context) error {
	_, err := h.srv.Process()

	if h.refill != nil {
		h.RequestProcedural(ctx, *h.refill)
		h.refill = nil
	}

	if h.renders != nil {
		for _, res := range h.renders.Drain() {
			if res.Err != nil {
				h.log.Warn("render failed", zap.String("job", res.Job.Name), zap.Error(res.Err))
				continue
			}
			if applyErr := h.applyRender(res); applyErr != nil {
				err = multierr.Append(err, applyErr)
			}
		}
	}

	if _, buildErr := h.sess.Map.BuildMeshes(h.builder); buildErr != nil {
		err = multierr.Append(err, buildErr)
	}
	return err
}

// Save writes the session if anything changed since the last save.
func (h *Host) Save() error {
	if h.store == nil || !h.dirty {
		return nil
	}
	if err := h.store.SaveSession(h.sess); err != nil {
		return err
	}
	h.dirty = false
	return nil
}

// RequestProcedural refills the procedural layer over region in the
// background. The result is applied on a later Tick.
func (h *Host) RequestProcedural(ctx context.Context, region grid.Rect) bool {
	if h.renders == nil {
		return false
	}
	if _, ok := storage.FindLayer(h.sess, storage.ProceduralLayer); !ok {
		return false
	}
	h.renders.Submit(ctx, texture.Job{Name: storage.ProceduralLayer, Region: region, Format: h.cfg.RenderFormat})
	return true
}

func (h *Host) applyRender(res texture.Result) error {
	l, ok := storage.FindLayer(h.sess, res.Job.Name)
	if !ok {
		h.log.Debug("render for unknown layer", zap.String("layer", res.Job.Name))
		return nil
	}
	start := grid.Point{X: res.Job.Region.X, Y: res.Job.Region.Y}
	commit, err := h.sess.ApplyRegion(l.ID, start, res.Grid)
	if err != nil {
		return err
	}
	h.committed(commit)
	return h.srv.Broadcast(packets.RE_COMMIT_ACK, h.ack(l.ID, commit).Encode())
}

// guard answers handler failures with an error packet so one bad request
// does not stop the tick.
func (h *Host) guard(id uint16, fn network.PacketHandler) network.PacketHandler {
	return func(c *network.Client, body []byte) error {
		err := fn(c, body)
		if err == nil {
			return nil
		}
		h.log.Warn("request failed", zap.Uint16("packet", id), zap.Error(err))
		return c.SendPacket(packets.RE_ERROR, (&packets.Error{RequestID: id, Message: err.Error()}).Encode())
	}
}

func (h *Host) checkMap(mapID uint32) error {
	if mapID != h.cfg.MapID {
		return fmt.Errorf("%w: %d, serving %d", ErrWrongMap, mapID, h.cfg.MapID)
	}
	return nil
}

func (h *Host) welcome() *packets.Welcome {
	return &packets.Welcome{
		MapID:   h.cfg.MapID,
		SizeX:   uint32(h.sess.Map.MapSize.X),
		SizeY:   uint32(h.sess.Map.MapSize.Y),
		Layers:  uint16(len(h.sess.Layers()) + len(h.sess.MaterialLayers())),
		Version: ProtocolVersion,
	}
}

func (h *Host) ack(id layer.ID, res layer.CommitResult) *packets.CommitAck {
	return &packets.CommitAck{
		MapID:       h.cfg.MapID,
		LayerID:     uint32(id),
		RegionX:     int32(res.Region.X),
		RegionY:     int32(res.Region.Y),
		RegionW:     uint32(res.Region.Width),
		RegionH:     uint32(res.Region.Height),
		Changed:     uint32(res.Changed),
		Invalidated: uint32(res.Invalidated),
	}
}

func (h *Host) committed(res layer.CommitResult) {
	if res.Changed > 0 {
		h.dirty = true
	}
}

func (h *Host) handleHello(c *network.Client, body []byte) error {
	p, err := packets.DecodeHello(body)
	if err != nil {
		return err
	}
	if err := h.checkMap(p.MapID); err != nil {
		return err
	}
	if p.Version != ProtocolVersion {
		h.log.Warn("editor protocol mismatch", zap.Uint16("editor", p.Version), zap.Uint16("host", ProtocolVersion))
	}
	return c.SendPacket(packets.RE_WELCOME, h.welcome().Encode())
}

func (h *Host) handleLayerRegion(c *network.Client, body []byte) error {
	p, err := packets.DecodeLayerRegion(body)
	if err != nil {
		return err
	}
	if err := h.checkMap(p.MapID); err != nil {
		return err
	}
	id := layer.ID(p.LayerID)
	res, err := h.sess.ApplyRegion(id, p.Start(), p.Grid())
	if err != nil {
		return err
	}
	h.committed(res)
	return c.SendPacket(packets.RE_COMMIT_ACK, h.ack(id, res).Encode())
}

func (h *Host) handleBrushStamp(c *network.Client, body []byte) error {
	p, err := packets.DecodeBrushStamp(body)
	if err != nil {
		return err
	}
	if err := h.checkMap(p.MapID); err != nil {
		return err
	}
	id := layer.ID(p.LayerID)
	dirty, err := h.sess.Stamp(id, mgl32.Vec2{p.X, p.Y}, layer.Brush{Radius: p.Radius, Value: p.Value, Erase: p.Erase})
	if err != nil {
		return err
	}
	res := h.sess.Commit(dirty)
	h.committed(res)
	return c.SendPacket(packets.RE_COMMIT_ACK, h.ack(id, res).Encode())
}

func (h *Host) handleMapResize(c *network.Client, body []byte) error {
	p, err := packets.DecodeMapResize(body)
	if err != nil {
		return err
	}
	if err := h.checkMap(p.MapID); err != nil {
		return err
	}
	size := grid.Size{X: int(p.SizeX), Y: int(p.SizeY)}
	if err := h.sess.ResizeMap(size); err != nil {
		return err
	}
	h.dirty = true
	h.log.Info("map resized", zap.Int("x", size.X), zap.Int("y", size.Y))

	// Grown procedural cells stay empty until the refill lands.
	bounds := h.sess.Map.HeightmapData.Bounds()
	h.refill = &bounds
	return h.srv.Broadcast(packets.RE_WELCOME, h.welcome().Encode())
}
