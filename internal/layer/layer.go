// Package layer owns the terrain editing session: the ordered height and
// material layers, the canonical map they composite into, and the painting
// operations that write into them.
package layer

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

var (
	// ErrUnknownLayer is returned for IDs that are not registered.
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrNotPaintable is returned when a brush targets a layer whose buffer
	// cannot take painted values.
	ErrNotPaintable = errors.New("layer is not paintable")
)

// ID identifies a layer within a session.
type ID int

// Kind describes where a layer's data comes from.
type Kind int

const (
	KindPainted Kind = iota
	KindProcedural
	KindTexture
	KindMaterial
)

func (k Kind) String() string {
	switch k {
	case KindPainted:
		return "painted"
	case KindProcedural:
		return "procedural"
	case KindTexture:
		return "texture"
	case KindMaterial:
		return "material"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Layer is one independently authored buffer composited into the map.
type Layer struct {
	ID   ID
	Name string
	Kind Kind

	// StartPosition anchors the buffer's top-left cell in canonical coordinates.
	StartPosition grid.Point
	Blend         compositor.BlendType
	// Material is the index written into the winning-material grid. Only
	// used by material layers.
	Material uint8
	Buffer   Buffer
}

// Footprint returns the canonical rect the buffer covers.
func (l *Layer) Footprint() grid.Rect {
	s := l.Buffer.Size()
	return grid.Rect{X: l.StartPosition.X, Y: l.StartPosition.Y, Width: s.X, Height: s.Y}
}

func (l *Layer) String() string {
	return fmt.Sprintf("%s#%d(%s)", l.Kind, l.ID, l.Name)
}
