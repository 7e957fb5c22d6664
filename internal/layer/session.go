package layer

import (
	"fmt"
	"slices"

	"github.com/x448/float16"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Session is the single owner of a terrain being edited. All methods must be
// called from the goroutine that owns the session.
type Session struct {
	Map       *terrain.Map
	Materials *compositor.MaterialState

	// BaseHeight is the normalized height the canonical grid holds before
	// any layer is applied.
	BaseHeight float32

	// Optional change sinks. Commit reports the net change of every
	// canonical cell it touched.
	HeightRecorder compositor.Recorder[float32]
	WeightRecorder compositor.Recorder[compositor.WeightCell]

	layers         []*Layer
	materialLayers []*Layer
	nextID         ID
	log            *zap.Logger
}

// NewSession takes ownership of m and fills it with baseHeight. The chunk
// registry is built if m was not initialized. A nil logger disables logging.
func NewSession(m *terrain.Map, baseHeight float32, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if m.ChunkLen() == 0 {
		m.Initialize()
	}
	s := &Session{
		Map:        m,
		Materials:  compositor.NewMaterialState(m.HeightmapData.Size()),
		BaseHeight: baseHeight,
		nextID:     1,
		log:        log,
	}
	m.HeightmapData.Fill(baseHeight)
	return s
}

// Layers returns the height layers in registration order.
func (s *Session) Layers() []*Layer { return slices.Clone(s.layers) }

// MaterialLayers returns the material layers in registration order.
func (s *Session) MaterialLayers() []*Layer { return slices.Clone(s.materialLayers) }

// Layer looks up a height or material layer.
func (s *Session) Layer(id ID) (*Layer, error) {
	for _, l := range s.layers {
		if l.ID == id {
			return l, nil
		}
	}
	for _, l := range s.materialLayers {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownLayer, id)
}

// AddHeightLayer registers a height layer after every existing one and
// composites it.
func (s *Session) AddHeightLayer(name string, kind Kind, start grid.Point, blend compositor.BlendType, buf Buffer) *Layer {
	l := &Layer{
		ID:            s.nextID,
		Name:          name,
		Kind:          kind,
		StartPosition: start,
		Blend:         blend,
		Buffer:        buf,
	}
	s.nextID++
	s.layers = append(s.layers, l)
	s.log.Info("layer added", zap.Stringer("layer", l), zap.Stringer("blend", blend))
	s.Commit(l.Footprint())
	return l
}

// AddPaintedLayer registers an empty sparse layer covering the whole map.
func (s *Session) AddPaintedLayer(name string, blend compositor.BlendType) *Layer {
	size := s.Map.HeightmapData.Size()
	buf := NewMaskableHalfBuffer(grid.New[grid.Maskable[float16.Float16]](size.X, size.Y), s.Map.HeightRange, true)
	return s.AddHeightLayer(name, KindPainted, grid.Point{}, blend, buf)
}

// AddMaterialLayer registers an empty weight layer for material covering the
// whole map.
func (s *Session) AddMaterialLayer(name string, material uint8) *Layer {
	size := s.Map.HeightmapData.Size()
	buf := NewHalfBuffer(grid.New[float16.Float16](size.X, size.Y), s.Map.HeightRange, true)
	return s.AddMaterialLayerBuffer(name, material, grid.Point{}, buf)
}

// AddMaterialLayerBuffer registers a material layer with an existing buffer.
func (s *Session) AddMaterialLayerBuffer(name string, material uint8, start grid.Point, buf Buffer) *Layer {
	l := &Layer{
		ID:            s.nextID,
		Name:          name,
		Kind:          KindMaterial,
		StartPosition: start,
		Material:      material,
		Buffer:        buf,
	}
	s.nextID++
	s.materialLayers = append(s.materialLayers, l)
	s.log.Info("material layer added", zap.Stringer("layer", l), zap.Uint8("material", material))
	s.Commit(l.Footprint())
	return l
}

// RemoveLayer detaches a layer and recomposites the area it covered.
func (s *Session) RemoveLayer(id ID) error {
	l, err := s.Layer(id)
	if err != nil {
		return err
	}
	del := func(x *Layer) bool { return x.ID == id }
	s.layers = slices.DeleteFunc(s.layers, del)
	s.materialLayers = slices.DeleteFunc(s.materialLayers, del)
	s.log.Info("layer removed", zap.Stringer("layer", l))
	s.Commit(l.Footprint())
	return nil
}

// CommitResult summarises one commit.
type CommitResult struct {
	Region      grid.Rect
	Adjustments int
	Changed     int
	Invalidated int
}

// Commit recomposes dirty from the base height and every layer in
// registration order, then drops the meshes of the tiles it touched.
// Each tile rewrites only the part of dirty it owns, so a seam vertex is
// written once.
func (s *Session) Commit(dirty grid.Rect) CommitResult {
	dirty = dirty.Intersect(s.Map.HeightmapData.Bounds())
	res := CommitResult{Region: dirty}
	if dirty.Empty() {
		return res
	}

	adjustments := s.Map.AdjustmentRegions(dirty)
	for _, adj := range adjustments {
		res.Changed += s.recompose(adj.Region)
	}
	res.Adjustments = len(adjustments)
	res.Invalidated = s.Map.InvalidateRegion(dirty)

	s.log.Debug("commit",
		zap.Stringer("region", dirty),
		zap.Int("adjustments", res.Adjustments),
		zap.Int("changed", res.Changed),
		zap.Int("invalidated", res.Invalidated))
	return res
}

// Recompose rebuilds the whole canonical state and drops every mesh.
func (s *Session) Recompose() int {
	changed := s.recompose(s.Map.HeightmapData.Bounds())
	s.Map.InvalidateMeshes()
	s.log.Debug("recomposed", zap.Int("changed", changed))
	return changed
}

// recompose resets r and reapplies every layer clipped to it. It returns the
// number of cells whose height or material changed.
func (s *Session) recompose(r grid.Rect) int {
	heights := s.Map.HeightmapData
	before := heights.SubGrid(r)
	beforeWeights := s.Materials.Weights.SubGrid(r)
	beforeMaterials := s.Materials.Materials.SubGrid(r)

	heights.FillRect(r, s.BaseHeight)
	s.Materials.Reset(r)
	for _, l := range s.layers {
		l.Buffer.composeHeight(l.StartPosition, heights, l.Blend, r)
	}
	for _, l := range s.materialLayers {
		l.Buffer.composeWeight(l.Material, l.StartPosition, s.Materials, r)
	}

	changed := 0
	for y := range r.Height {
		for x := range r.Width {
			i := heights.Index(r.X+x, r.Y+y)
			oldH, newH := before.Get(x, y), heights.Cells()[i]
			oldW := compositor.WeightCell{Weight: beforeWeights.Get(x, y), Material: beforeMaterials.Get(x, y)}
			newW := s.Materials.Cell(i)

			if oldH == newH && oldW == newW {
				continue
			}
			changed++
			if oldH != newH && s.HeightRecorder != nil {
				s.HeightRecorder.RecordChange(i, oldH, newH)
			}
			if oldW != newW && s.WeightRecorder != nil {
				s.WeightRecorder.RecordChange(i, oldW, newW)
			}
		}
	}
	return changed
}

// ResizeMap changes the map size. Layer buffers anchored at the origin grow
// to cover the new heightmap; they never shrink.
func (s *Session) ResizeMap(size grid.Size) error {
	if err := s.Map.Resize(size); err != nil {
		return err
	}
	hm := s.Map.HeightmapData.Size()
	s.Materials.Resize(hm)
	for _, l := range slices.Concat(s.layers, s.materialLayers) {
		need := grid.Size{X: hm.X - l.StartPosition.X, Y: hm.Y - l.StartPosition.Y}
		l.Buffer.grow(need)
	}
	s.Recompose()
	return nil
}

// ApplyRegion writes region into a layer with its top-left cell at start
// (canonical coordinates) and commits the affected area. Only the part of
// region inside the map is written. Unset region cells clear sparse layers
// and are ignored by dense ones.
func (s *Session) ApplyRegion(id ID, start grid.Point, region *grid.Grid[grid.Maskable[float32]]) (CommitResult, error) {
	l, err := s.Layer(id)
	if err != nil {
		return CommitResult{}, err
	}
	size := region.Size()
	r := grid.Rect{X: start.X, Y: start.Y, Width: size.X, Height: size.Y}.Intersect(s.Map.HeightmapData.Bounds())
	if r.Empty() {
		return CommitResult{Region: r}, nil
	}

	l.Buffer.grow(grid.Size{X: r.Right() - l.StartPosition.X, Y: r.Bottom() - l.StartPosition.Y})
	for y := r.Y; y < r.Bottom(); y++ {
		for x := r.X; x < r.Right(); x++ {
			v := region.Get(x-start.X, y-start.Y)
			l.Buffer.write(x-l.StartPosition.X, y-l.StartPosition.Y, v.Value, v.Valid)
		}
	}
	return s.Commit(r), nil
}
