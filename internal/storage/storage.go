// Package storage persists terrain sessions in the grid interchange formats.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/x448/float16"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/internal/layer"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

const (
	heightmapFile = "heightmap.txt"
	weightsFile   = "weights.txt"
	materialsFile = "materials.txt"
	layersDir     = "layers"
	fetchedDir    = "fetched"
)

// Store handles file-based persistence for one terrain.
type Store struct {
	dir string
	log *zap.Logger
}

// New creates a Store rooted at dir, creating subdirectories as needed.
func New(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, d := range []string{dir, filepath.Join(dir, layersDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// SaveHeightmap writes the canonical heightmap.
func (s *Store) SaveHeightmap(g *grid.Grid[float32]) error {
	return s.atomicWrite(filepath.Join(s.dir, heightmapFile), func(w io.Writer) error {
		return grid.WriteHeightmap(w, g)
	})
}

// LoadHeightmap reads the canonical heightmap. It returns nil without an
// error when none was saved.
func (s *Store) LoadHeightmap() (*grid.Grid[float32], error) {
	return readFile(filepath.Join(s.dir, heightmapFile), grid.ReadHeightmap)
}

// SaveMaterials writes the winning weight and material grids.
func (s *Store) SaveMaterials(state *compositor.MaterialState) error {
	if err := s.atomicWrite(filepath.Join(s.dir, weightsFile), func(w io.Writer) error {
		return grid.WriteHalfWeights(w, state.Weights)
	}); err != nil {
		return err
	}
	return s.atomicWrite(filepath.Join(s.dir, materialsFile), func(w io.Writer) error {
		return grid.WriteBytes(w, state.Materials)
	})
}

// LoadMaterials reads the material grids. Missing files yield empty grids
// of size.
func (s *Store) LoadMaterials(size grid.Size) (*compositor.MaterialState, error) {
	state := compositor.NewMaterialState(size)
	weights, err := readFile(filepath.Join(s.dir, weightsFile), grid.ReadHalfWeights)
	if err != nil {
		return nil, err
	}
	materials, err := readFile(filepath.Join(s.dir, materialsFile), grid.ReadBytes)
	if err != nil {
		return nil, err
	}
	if weights != nil {
		state.Weights.CopyRegion(weights, weights.Bounds(), 0, 0)
	}
	if materials != nil {
		state.Materials.CopyRegion(materials, materials.Bounds(), 0, 0)
	}
	return state, nil
}

// LayerPath returns the file a layer is saved to.
func (s *Store) LayerPath(l *layer.Layer) string {
	return filepath.Join(s.dir, layersDir, fileName(l.Name)+".txt")
}

// SaveLayer writes the layer buffer in the format matching its cell type.
func (s *Store) SaveLayer(l *layer.Layer) error {
	var write func(io.Writer) error
	if g, ok := layer.Cells[uint8](l.Buffer); ok {
		write = func(w io.Writer) error { return grid.WriteBytes(w, g) }
	} else if g, ok := layer.Cells[uint16](l.Buffer); ok {
		write = func(w io.Writer) error { return grid.WriteUint16(w, g) }
	} else if g, ok := layer.Cells[grid.Maskable[float16.Float16]](l.Buffer); ok {
		write = func(w io.Writer) error { return grid.WriteMaskableHalf(w, g) }
	} else if g, ok := layer.Cells[grid.Maskable[float32]](l.Buffer); ok {
		write = func(w io.Writer) error { return grid.WriteMaskableHalf(w, toHalf(g, grid.Maskable[float32].Get)) }
	} else if g, ok := layer.Cells[float16.Float16](l.Buffer); ok {
		write = func(w io.Writer) error { return grid.WriteMaskableHalf(w, toHalf(g, always(float16.Float16.Float32))) }
	} else if g, ok := layer.Cells[float32](l.Buffer); ok {
		write = func(w io.Writer) error { return grid.WriteMaskableHalf(w, toHalf(g, always(identity[float32]))) }
	} else {
		return fmt.Errorf("save layer %s: unsupported buffer %T", l, l.Buffer)
	}

	path := s.LayerPath(l)
	if err := s.atomicWrite(path, write); err != nil {
		return fmt.Errorf("save layer %s: %w", l, err)
	}
	s.log.Debug("layer saved", zap.Stringer("layer", l), zap.String("path", path))
	return nil
}

// LoadLayer reads a saved layer into l's buffer, growing it when the file is
// larger. A missing file leaves the buffer untouched and reports false.
func (s *Store) LoadLayer(l *layer.Layer) (bool, error) {
	path := s.LayerPath(l)
	var err error
	loaded := false
	if g, ok := layer.Cells[uint8](l.Buffer); ok {
		loaded, err = loadInto(path, g, grid.ReadBytes, identity[uint8])
	} else if g, ok := layer.Cells[uint16](l.Buffer); ok {
		loaded, err = loadInto(path, g, grid.ReadUint16, identity[uint16])
	} else if g, ok := layer.Cells[grid.Maskable[float16.Float16]](l.Buffer); ok {
		loaded, err = loadInto(path, g, grid.ReadMaskableHalf, identity[grid.Maskable[float16.Float16]])
	} else if g, ok := layer.Cells[grid.Maskable[float32]](l.Buffer); ok {
		loaded, err = loadInto(path, g, grid.ReadMaskableHalf, func(c grid.Maskable[float16.Float16]) grid.Maskable[float32] {
			if !c.Valid {
				return grid.Maskable[float32]{}
			}
			return grid.Some(c.Value.Float32())
		})
	} else if g, ok := layer.Cells[float16.Float16](l.Buffer); ok {
		loaded, err = loadInto(path, g, grid.ReadMaskableHalf, func(c grid.Maskable[float16.Float16]) float16.Float16 {
			return c.Value
		})
	} else if g, ok := layer.Cells[float32](l.Buffer); ok {
		loaded, err = loadInto(path, g, grid.ReadMaskableHalf, func(c grid.Maskable[float16.Float16]) float32 {
			return c.Value.Float32()
		})
	} else {
		return false, fmt.Errorf("load layer %s: unsupported buffer %T", l, l.Buffer)
	}
	if err != nil {
		return false, fmt.Errorf("load layer %s: %w", l, err)
	}
	if loaded {
		s.log.Debug("layer loaded", zap.Stringer("layer", l), zap.String("path", path))
	}
	return loaded, nil
}

// SaveSession writes the canonical grids and every layer.
func (s *Store) SaveSession(sess *layer.Session) error {
	if err := s.SaveHeightmap(sess.Map.HeightmapData); err != nil {
		return err
	}
	if err := s.SaveMaterials(sess.Materials); err != nil {
		return err
	}
	layers := append(sess.Layers(), sess.MaterialLayers()...)
	for _, l := range layers {
		if err := s.SaveLayer(l); err != nil {
			return err
		}
	}
	s.log.Info("session saved", zap.String("dir", s.dir), zap.Int("layers", len(layers)))
	return nil
}

// LoadSession fills every registered layer from disk and recomposes the
// map. Layers without a saved file stay empty.
func (s *Store) LoadSession(sess *layer.Session) error {
	loaded := 0
	for _, l := range append(sess.Layers(), sess.MaterialLayers()...) {
		ok, err := s.LoadLayer(l)
		if err != nil {
			return err
		}
		if ok {
			loaded++
		}
	}
	changed := sess.Recompose()
	s.log.Info("session loaded", zap.String("dir", s.dir), zap.Int("layers", loaded), zap.Int("changed", changed))
	return nil
}

// atomicWrite writes a file atomically using a temp file + rename.
func (s *Store) atomicWrite(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ReadHeightmapFile reads a heightmap from any path, for example one
// returned by Fetch.
func ReadHeightmapFile(path string) (*grid.Grid[float32], error) {
	g, err := readFile(path, grid.ReadHeightmap)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("read %s: %w", path, os.ErrNotExist)
	}
	return g, nil
}

func readFile[T any](path string, read func(io.Reader) (*grid.Grid[T], error)) (*grid.Grid[T], error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	g, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return g, nil
}

func loadInto[S, T any](path string, dst *grid.Grid[T], read func(io.Reader) (*grid.Grid[S], error), conv func(S) T) (bool, error) {
	src, err := readFile(path, read)
	if err != nil || src == nil {
		return false, err
	}
	dst.Resize(max(dst.LengthX(), src.LengthX()), max(dst.LengthY(), src.LengthY()))
	dstCells := dst.Cells()
	for y := range src.LengthY() {
		for x := range src.LengthX() {
			dstCells[dst.Index(x, y)] = conv(src.Get(x, y))
		}
	}
	return true, nil
}

func toHalf[T any](g *grid.Grid[T], get func(T) (float32, bool)) *grid.Grid[grid.Maskable[float16.Float16]] {
	out := grid.New[grid.Maskable[float16.Float16]](g.LengthX(), g.LengthY())
	cells := out.Cells()
	for i, c := range g.Cells() {
		if v, ok := get(c); ok {
			cells[i] = grid.Some(float16.Fromfloat32(v))
		}
	}
	return out
}

func always[T any](fn func(T) float32) func(T) (float32, bool) {
	return func(v T) (float32, bool) { return fn(v), true }
}

func identity[T any](v T) T { return v }

// fileName keeps letters, digits, dot, dash and underscore.
func fileName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if clean == "" || strings.Trim(clean, ".") == "" {
		return "layer"
	}
	return clean
}
