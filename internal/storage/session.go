package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/layer"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Well-known layer names of a stored terrain.
const (
	ProceduralLayer = "procedural"
	ImportLayer     = "import"
	PaintLayer      = "paint"
	materialPrefix  = "material-"
	configFile      = "config.yaml"
)

// MaterialLayerName returns the stored name of the weight layer for material.
func MaterialLayerName(material uint8) string {
	return materialPrefix + strconv.Itoa(int(material))
}

// SaveConfig writes the config the terrain was built with.
func (s *Store) SaveConfig(cfg *config.Config) error {
	return cfg.SaveTo(filepath.Join(s.dir, configFile))
}

// LoadConfig reads the stored config, falling back to fallback when none
// was saved.
func (s *Store) LoadConfig(fallback *config.Config) (*config.Config, error) {
	path := filepath.Join(s.dir, configFile)
	if _, err := os.Stat(path); err != nil {
		return fallback, nil
	}
	return config.LoadFile(path)
}

// OpenSession builds a session from cfg with the standard layer stack and
// fills it from disk: the procedural layer when enabled, an imported ushort
// layer when one was saved, the painted layer, then every saved material
// layer in material order.
func (s *Store) OpenSession(cfg *config.Config) (*layer.Session, error) {
	m, err := terrain.NewMap(cfg.Terrain.Settings(), s.log.Named("map"))
	if err != nil {
		return nil, err
	}
	sess := layer.NewSession(m, cfg.Terrain.BaseHeight, s.log.Named("session"))
	size := m.HeightmapData.Size()

	if cfg.Procedural.Enabled {
		sess.AddProceduralLayer(ProceduralLayer, cfg.Procedural.Params(), cfg.Procedural.BlendType())
	}
	if s.hasLayer(ImportLayer) {
		sess.AddHeightLayer(ImportLayer, layer.KindTexture, grid.Point{}, compositor.Maximum,
			layer.NewUShortBuffer(grid.New[uint16](size.X, size.Y)))
	}
	sess.AddPaintedLayer(PaintLayer, compositor.Maximum)

	materials, err := s.savedMaterials()
	if err != nil {
		return nil, err
	}
	for _, mat := range materials {
		sess.AddMaterialLayer(MaterialLayerName(mat), mat)
	}

	if err := s.LoadSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// FindLayer returns the first layer named name.
func FindLayer(sess *layer.Session, name string) (*layer.Layer, bool) {
	for _, l := range append(sess.Layers(), sess.MaterialLayers()...) {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

// ImportHeights replaces the import layer with g, adding the layer when
// the session has none, and commits it.
func ImportHeights(sess *layer.Session, g *grid.Grid[uint16]) (layer.CommitResult, error) {
	l, ok := FindLayer(sess, ImportLayer)
	if !ok {
		size := sess.Map.HeightmapData.Size()
		l = sess.AddHeightLayer(ImportLayer, layer.KindTexture, grid.Point{}, compositor.Maximum,
			layer.NewUShortBuffer(grid.New[uint16](size.X, size.Y)))
	}
	cells, ok := layer.Cells[uint16](l.Buffer)
	if !ok {
		return layer.CommitResult{}, fmt.Errorf("layer %s is not a ushort layer", l)
	}
	cells.CopyRegion(g, g.Bounds(), 0, 0)
	return sess.Commit(l.Footprint()), nil
}

// MaterialLayer returns the weight layer for material, adding it when
// missing.
func MaterialLayer(sess *layer.Session, material uint8) *layer.Layer {
	name := MaterialLayerName(material)
	if l, ok := FindLayer(sess, name); ok {
		return l
	}
	return sess.AddMaterialLayer(name, material)
}

func (s *Store) hasLayer(name string) bool {
	_, err := os.Stat(s.LayerPath(&layer.Layer{Name: name}))
	return err == nil
}

func (s *Store) savedMaterials() ([]uint8, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, layersDir, materialPrefix+"*.txt"))
	if err != nil {
		return nil, fmt.Errorf("listing material layers: %w", err)
	}
	var materials []uint8
	for _, p := range paths {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), materialPrefix), ".txt")
		n, err := strconv.ParseUint(name, 10, 8)
		if err != nil {
			s.log.Debug("skipping layer file", zap.String("path", p))
			continue
		}
		materials = append(materials, uint8(n))
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i] < materials[j] })
	return materials, nil
}
