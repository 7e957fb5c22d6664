// Package packets defines the editor/runtime terrain sync packets.
//
// Every packet travels as a frame: a 6-byte header (packet ID u16, body
// length u32) followed by the body. All integers are little-endian.
package packets

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/x448/float16"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Packet IDs, editor -> runtime
const (
	ER_HELLO        uint16 = 0x0001 // Open a session for a map
	ER_LAYER_REGION uint16 = 0x0101 // Replace a region of a layer buffer
	ER_BRUSH_STAMP  uint16 = 0x0102 // Stamp a brush into a layer
	ER_MAP_RESIZE   uint16 = 0x0103 // Resize the map
)

// Packet IDs, runtime -> editor
const (
	RE_WELCOME    uint16 = 0x8001 // Session accepted
	RE_COMMIT_ACK uint16 = 0x8101 // Result of a commit
	RE_ERROR      uint16 = 0x80FF // Request failed
)

// HeaderSize is the size of a frame header.
const HeaderSize = 6

// ErrShortPacket is returned when a body is shorter than its fields.
var ErrShortPacket = errors.New("packet too short")

// Header precedes every packet body.
type Header struct {
	ID     uint16
	Length uint32
}

// EncodeHeader writes h into the first HeaderSize bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:], h.ID)
	binary.LittleEndian.PutUint32(buf[2:], h.Length)
}

// DecodeHeader reads a header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) Header {
	return Header{
		ID:     binary.LittleEndian.Uint16(buf[0:]),
		Length: binary.LittleEndian.Uint32(buf[2:]),
	}
}

// Frame prefixes body with a header for id.
func Frame(id uint16, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	EncodeHeader(buf, Header{ID: id, Length: uint32(len(body))})
	copy(buf[HeaderSize:], body)
	return buf
}

func short(name string, want, got int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortPacket, name, want, got)
}

// Hello (ER_HELLO 0x0001)
type Hello struct {
	MapID   uint32
	Version uint16
}

// Size returns the body size.
func (p *Hello) Size() int { return 6 }

// Encode encodes the body.
func (p *Hello) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint32(buf[0:], p.MapID)
	binary.LittleEndian.PutUint16(buf[4:], p.Version)
	return buf
}

// DecodeHello decodes an ER_HELLO body.
func DecodeHello(data []byte) (*Hello, error) {
	p := &Hello{}
	if len(data) < p.Size() {
		return nil, short("hello", p.Size(), len(data))
	}
	p.MapID = binary.LittleEndian.Uint32(data[0:])
	p.Version = binary.LittleEndian.Uint16(data[4:])
	return p, nil
}

// Welcome (RE_WELCOME 0x8001)
type Welcome struct {
	MapID   uint32
	SizeX   uint32
	SizeY   uint32
	Layers  uint16
	Version uint16
}

// Size returns the body size.
func (p *Welcome) Size() int { return 16 }

// Encode encodes the body.
func (p *Welcome) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint32(buf[0:], p.MapID)
	binary.LittleEndian.PutUint32(buf[4:], p.SizeX)
	binary.LittleEndian.PutUint32(buf[8:], p.SizeY)
	binary.LittleEndian.PutUint16(buf[12:], p.Layers)
	binary.LittleEndian.PutUint16(buf[14:], p.Version)
	return buf
}

// DecodeWelcome decodes an RE_WELCOME body.
func DecodeWelcome(data []byte) (*Welcome, error) {
	p := &Welcome{}
	if len(data) < p.Size() {
		return nil, short("welcome", p.Size(), len(data))
	}
	p.MapID = binary.LittleEndian.Uint32(data[0:])
	p.SizeX = binary.LittleEndian.Uint32(data[4:])
	p.SizeY = binary.LittleEndian.Uint32(data[8:])
	p.Layers = binary.LittleEndian.Uint16(data[12:])
	p.Version = binary.LittleEndian.Uint16(data[14:])
	return p, nil
}

// LayerRegion (ER_LAYER_REGION 0x0101) carries a rectangular slice of a
// layer buffer. Values are 16-bit floats in row-major order; Mask holds
// one bit per cell, set when the cell has a value.
type LayerRegion struct {
	MapID   uint32
	LayerID uint32
	StartX  int32
	StartY  int32
	Width   uint16
	Height  uint16
	Values  []float16.Float16
	Mask    []byte
}

const layerRegionFixed = 20

// NewLayerRegion packs g, anchored at start, into a region packet.
func NewLayerRegion(mapID, layerID uint32, start grid.Point, g *grid.Grid[grid.Maskable[float32]]) *LayerRegion {
	n := g.Len()
	p := &LayerRegion{
		MapID:   mapID,
		LayerID: layerID,
		StartX:  int32(start.X),
		StartY:  int32(start.Y),
		Width:   uint16(g.LengthX()),
		Height:  uint16(g.LengthY()),
		Values:  make([]float16.Float16, n),
		Mask:    make([]byte, (n+7)/8),
	}
	for i, c := range g.Cells() {
		if !c.Valid {
			continue
		}
		p.Values[i] = float16.Fromfloat32(c.Value)
		p.Mask[i/8] |= 1 << (i % 8)
	}
	return p
}

func (p *LayerRegion) cells() int { return int(p.Width) * int(p.Height) }

// Size returns the body size.
func (p *LayerRegion) Size() int {
	n := p.cells()
	return layerRegionFixed + n*2 + (n+7)/8
}

// Start returns the region origin in canonical coordinates.
func (p *LayerRegion) Start() grid.Point {
	return grid.Point{X: int(p.StartX), Y: int(p.StartY)}
}

// Grid unpacks the region into a sparse grid.
func (p *LayerRegion) Grid() *grid.Grid[grid.Maskable[float32]] {
	g := grid.New[grid.Maskable[float32]](int(p.Width), int(p.Height))
	cells := g.Cells()
	for i := range cells {
		if p.Mask[i/8]&(1<<(i%8)) != 0 {
			cells[i] = grid.Some(p.Values[i].Float32())
		}
	}
	return g
}

// Encode encodes the body.
func (p *LayerRegion) Encode() []byte {
	n := p.cells()
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint32(buf[0:], p.MapID)
	binary.LittleEndian.PutUint32(buf[4:], p.LayerID)
	binary.LittleEndian.PutUint32(buf[8:], uint32(p.StartX))
	binary.LittleEndian.PutUint32(buf[12:], uint32(p.StartY))
	binary.LittleEndian.PutUint16(buf[16:], p.Width)
	binary.LittleEndian.PutUint16(buf[18:], p.Height)
	off := layerRegionFixed
	for i := range n {
		binary.LittleEndian.PutUint16(buf[off:], p.Values[i].Bits())
		off += 2
	}
	copy(buf[off:], p.Mask)
	return buf
}

// DecodeLayerRegion decodes an ER_LAYER_REGION body.
func DecodeLayerRegion(data []byte) (*LayerRegion, error) {
	if len(data) < layerRegionFixed {
		return nil, short("layer region", layerRegionFixed, len(data))
	}
	p := &LayerRegion{
		MapID:   binary.LittleEndian.Uint32(data[0:]),
		LayerID: binary.LittleEndian.Uint32(data[4:]),
		StartX:  int32(binary.LittleEndian.Uint32(data[8:])),
		StartY:  int32(binary.LittleEndian.Uint32(data[12:])),
		Width:   binary.LittleEndian.Uint16(data[16:]),
		Height:  binary.LittleEndian.Uint16(data[18:]),
	}
	if len(data) < p.Size() {
		return nil, short("layer region", p.Size(), len(data))
	}
	n := p.cells()
	p.Values = make([]float16.Float16, n)
	off := layerRegionFixed
	for i := range n {
		p.Values[i] = float16.Frombits(binary.LittleEndian.Uint16(data[off:]))
		off += 2
	}
	p.Mask = make([]byte, (n+7)/8)
	copy(p.Mask, data[off:])
	return p, nil
}

// BrushStamp (ER_BRUSH_STAMP 0x0102)
type BrushStamp struct {
	MapID   uint32
	LayerID uint32
	X, Y    float32
	Radius  float32
	Value   float32
	Erase   bool
}

// Size returns the body size.
func (p *BrushStamp) Size() int { return 25 }

// Encode encodes the body.
func (p *BrushStamp) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint32(buf[0:], p.MapID)
	binary.LittleEndian.PutUint32(buf[4:], p.LayerID)
	binary.LittleEndian.PutUint32(buf[8:], gomath.Float32bits(p.X))
	binary.LittleEndian.PutUint32(buf[12:], gomath.Float32bits(p.Y))
	binary.LittleEndian.PutUint32(buf[16:], gomath.Float32bits(p.Radius))
	binary.LittleEndian.PutUint32(buf[20:], gomath.Float32bits(p.Value))
	if p.Erase {
		buf[24] = 1
	}
	return buf
}

// DecodeBrushStamp decodes an ER_BRUSH_STAMP body.
func DecodeBrushStamp(data []byte) (*BrushStamp, error) {
	p := &BrushStamp{}
	if len(data) < p.Size() {
		return nil, short("brush stamp", p.Size(), len(data))
	}
	p.MapID = binary.LittleEndian.Uint32(data[0:])
	p.LayerID = binary.LittleEndian.Uint32(data[4:])
	p.X = gomath.Float32frombits(binary.LittleEndian.Uint32(data[8:]))
	p.Y = gomath.Float32frombits(binary.LittleEndian.Uint32(data[12:]))
	p.Radius = gomath.Float32frombits(binary.LittleEndian.Uint32(data[16:]))
	p.Value = gomath.Float32frombits(binary.LittleEndian.Uint32(data[20:]))
	p.Erase = data[24] != 0
	return p, nil
}

// MapResize (ER_MAP_RESIZE 0x0103)
type MapResize struct {
	MapID uint32
	SizeX uint32
	SizeY uint32
}

// Size returns the body size.
func (p *MapResize) Size() int { return 12 }

// Encode encodes the body.
func (p *MapResize) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint32(buf[0:], p.MapID)
	binary.LittleEndian.PutUint32(buf[4:], p.SizeX)
	binary.LittleEndian.PutUint32(buf[8:], p.SizeY)
	return buf
}

// DecodeMapResize decodes an ER_MAP_RESIZE body.
func DecodeMapResize(data []byte) (*MapResize, error) {
	p := &MapResize{}
	if len(data) < p.Size() {
		return nil, short("map resize", p.Size(), len(data))
	}
	p.MapID = binary.LittleEndian.Uint32(data[0:])
	p.SizeX = binary.LittleEndian.Uint32(data[4:])
	p.SizeY = binary.LittleEndian.Uint32(data[8:])
	return p, nil
}

// CommitAck (RE_COMMIT_ACK 0x8101) reports what a commit touched.
type CommitAck struct {
	MapID       uint32
	LayerID     uint32
	RegionX     int32
	RegionY     int32
	RegionW     uint32
	RegionH     uint32
	Changed     uint32
	Invalidated uint32
}

// Size returns the body size.
func (p *CommitAck) Size() int { return 32 }

// Encode encodes the body.
func (p *CommitAck) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint32(buf[0:], p.MapID)
	binary.LittleEndian.PutUint32(buf[4:], p.LayerID)
	binary.LittleEndian.PutUint32(buf[8:], uint32(p.RegionX))
	binary.LittleEndian.PutUint32(buf[12:], uint32(p.RegionY))
	binary.LittleEndian.PutUint32(buf[16:], p.RegionW)
	binary.LittleEndian.PutUint32(buf[20:], p.RegionH)
	binary.LittleEndian.PutUint32(buf[24:], p.Changed)
	binary.LittleEndian.PutUint32(buf[28:], p.Invalidated)
	return buf
}

// DecodeCommitAck decodes an RE_COMMIT_ACK body.
func DecodeCommitAck(data []byte) (*CommitAck, error) {
	p := &CommitAck{}
	if len(data) < p.Size() {
		return nil, short("commit ack", p.Size(), len(data))
	}
	p.MapID = binary.LittleEndian.Uint32(data[0:])
	p.LayerID = binary.LittleEndian.Uint32(data[4:])
	p.RegionX = int32(binary.LittleEndian.Uint32(data[8:]))
	p.RegionY = int32(binary.LittleEndian.Uint32(data[12:]))
	p.RegionW = binary.LittleEndian.Uint32(data[16:])
	p.RegionH = binary.LittleEndian.Uint32(data[20:])
	p.Changed = binary.LittleEndian.Uint32(data[24:])
	p.Invalidated = binary.LittleEndian.Uint32(data[28:])
	return p, nil
}

// Region returns the committed rect.
func (p *CommitAck) Region() grid.Rect {
	return grid.Rect{X: int(p.RegionX), Y: int(p.RegionY), Width: int(p.RegionW), Height: int(p.RegionH)}
}

// Error (RE_ERROR 0x80FF) carries a failed request's packet ID and message.
type Error struct {
	RequestID uint16
	Message   string
}

// message is Message cut to what the length field can describe.
func (p *Error) message() string {
	if len(p.Message) > 0xFFFF {
		return p.Message[:0xFFFF]
	}
	return p.Message
}

// Size returns the body size.
func (p *Error) Size() int { return 4 + len(p.message()) }

// Encode encodes the body.
func (p *Error) Encode() []byte {
	msg := p.message()
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint16(buf[0:], p.RequestID)
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(msg)))
	copy(buf[4:], msg)
	return buf
}

// DecodeError decodes an RE_ERROR body.
func DecodeError(data []byte) (*Error, error) {
	if len(data) < 4 {
		return nil, short("error", 4, len(data))
	}
	n := int(binary.LittleEndian.Uint16(data[2:]))
	if len(data) < 4+n {
		return nil, short("error", 4+n, len(data))
	}
	return &Error{
		RequestID: binary.LittleEndian.Uint16(data[0:]),
		Message:   string(data[4 : 4+n]),
	}, nil
}
