// Package texture turns offscreen render results and image files into layer
// grids.
package texture

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/x448/float16"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// ErrUnsupportedFormat is returned when a readback uses a pixel format the
// decode table does not know. The operation that produced it must be aborted.
var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// PixelFormat is the layout of a render-texture readback.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	// FormatRFloat is one 32-bit float per pixel.
	FormatRFloat
	// FormatRHalf is one 16-bit float per pixel.
	FormatRHalf
	// FormatRGBA8 is 8-bit unorm RGBA; red is the value, zero alpha means no data.
	FormatRGBA8
	// FormatRGHalf is a 16-bit float value and a 16-bit float mask; zero mask means no data.
	FormatRGHalf
	// FormatRGBAHalf is 16-bit float RGBA; red is the value, zero alpha means no data.
	FormatRGBAHalf
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRFloat:
		return "RFloat"
	case FormatRHalf:
		return "RHalf"
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGHalf:
		return "RGHalf"
	case FormatRGBAHalf:
		return "RGBAHalf"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Readback is the raw pixel data copied back from a render texture. Rows are
// stored top to bottom, little-endian.
type Readback struct {
	Format PixelFormat
	Width  int
	Height int
	Data   []byte
}

type pixelCodec struct {
	size   int
	decode func(px []byte) (float32, bool)
	encode func(px []byte, v float32, ok bool)
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

func putHalf(b []byte, v float32) {
	binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
}

var codecs = map[PixelFormat]pixelCodec{
	FormatRFloat: {
		size: 4,
		decode: func(px []byte) (float32, bool) {
			return gomath.Float32frombits(binary.LittleEndian.Uint32(px)), true
		},
		encode: func(px []byte, v float32, _ bool) {
			binary.LittleEndian.PutUint32(px, gomath.Float32bits(v))
		},
	},
	FormatRHalf: {
		size:   2,
		decode: func(px []byte) (float32, bool) { return half(px), true },
		encode: func(px []byte, v float32, _ bool) { putHalf(px, v) },
	},
	FormatRGBA8: {
		size: 4,
		decode: func(px []byte) (float32, bool) {
			if px[3] == 0 {
				return 0, false
			}
			return float32(px[0]) / 255, true
		},
		encode: func(px []byte, v float32, ok bool) {
			px[0] = uint8(gomath.Round(float64(math.Clamp01(v)) * 255))
			px[1], px[2], px[3] = 0, 0, 0
			if ok {
				px[3] = 255
			}
		},
	},
	FormatRGHalf: {
		size: 4,
		decode: func(px []byte) (float32, bool) {
			if half(px[2:]) == 0 {
				return 0, false
			}
			return half(px), true
		},
		encode: func(px []byte, v float32, ok bool) {
			putHalf(px, v)
			putHalf(px[2:], boolToFloat(ok))
		},
	},
	FormatRGBAHalf: {
		size: 8,
		decode: func(px []byte) (float32, bool) {
			if half(px[6:]) == 0 {
				return 0, false
			}
			return half(px), true
		},
		encode: func(px []byte, v float32, ok bool) {
			putHalf(px, v)
			putHalf(px[2:], 0)
			putHalf(px[4:], 0)
			putHalf(px[6:], boolToFloat(ok))
		},
	},
}

func boolToFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// BytesPerPixel returns the pixel size of f, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	return codecs[f].size
}

// Decode converts a readback into a sparse grid using the decode table.
func Decode(rb Readback) (*grid.Grid[grid.Maskable[float32]], error) {
	codec, ok := codecs[rb.Format]
	if !ok {
		return nil, fmt.Errorf("decoding readback: %w: %v", ErrUnsupportedFormat, rb.Format)
	}
	if !grid.FitsCells(rb.Width, rb.Height) {
		return nil, fmt.Errorf("decoding readback: bad size %dx%d", rb.Width, rb.Height)
	}
	want := rb.Width * rb.Height * codec.size
	if len(rb.Data) < want {
		return nil, fmt.Errorf("decoding readback: %v data too short: %d < %d bytes", rb.Format, len(rb.Data), want)
	}

	g := grid.New[grid.Maskable[float32]](rb.Width, rb.Height)
	cells := g.Cells()
	for i := range cells {
		px := rb.Data[i*codec.size : (i+1)*codec.size]
		if v, ok := codec.decode(px); ok {
			cells[i] = grid.Some(v)
		}
	}
	return g, nil
}

// Encode packs a sparse grid into a readback. Software renderers and tests
// use it to produce what a GPU readback would return.
func Encode(format PixelFormat, g *grid.Grid[grid.Maskable[float32]]) (Readback, error) {
	codec, ok := codecs[format]
	if !ok {
		return Readback{}, fmt.Errorf("encoding readback: %w: %v", ErrUnsupportedFormat, format)
	}
	data := make([]byte, g.Len()*codec.size)
	for i, c := range g.Cells() {
		codec.encode(data[i*codec.size:(i+1)*codec.size], c.Value, c.Valid)
	}
	return Readback{Format: format, Width: g.LengthX(), Height: g.LengthY(), Data: data}, nil
}
