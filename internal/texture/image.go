package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// DecodeImage reads a PNG, BMP or TGA heightmap as 16-bit luminance.
// Rows stay top to bottom.
func DecodeImage(data []byte) (*grid.Grid[uint16], error) {
	img, err := decodeAny(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	g := grid.New[uint16](b.Dx(), b.Dy())
	for y := range b.Dy() {
		for x := range b.Dx() {
			gray := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			g.Set(x, y, gray.Y)
		}
	}
	return g, nil
}

// DecodeImageMask reads an image as normalized luminance. Fully transparent
// pixels carry no data.
func DecodeImageMask(data []byte) (*grid.Grid[grid.Maskable[float32]], error) {
	img, err := decodeAny(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	g := grid.New[grid.Maskable[float32]](b.Dx(), b.Dy())
	for y := range b.Dy() {
		for x := range b.Dx() {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if _, _, _, a := c.RGBA(); a == 0 {
				continue
			}
			gray := color.Gray16Model.Convert(c).(color.Gray16)
			g.Set(x, y, grid.Some(float32(gray.Y)/65535))
		}
	}
	return g, nil
}

func decodeAny(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	if !errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	// TGA has no magic number, so it is tried last.
	img, err = decodeTGA(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

const (
	tgaTypeTrueColor    = 2
	tgaTypeTrueColorRLE = 10
	tgaHeaderSize       = 18
)

// decodeTGA handles uncompressed and RLE true-colour TGA at 24 or 32 bpp.
func decodeTGA(data []byte) (image.Image, error) {
	if len(data) < tgaHeaderSize {
		return nil, errors.New("tga: data too short")
	}
	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	topToBottom := data[17]&0x20 != 0

	if colorMapType != 0 {
		return nil, errors.New("tga: color-mapped images not supported")
	}
	if imageType != tgaTypeTrueColor && imageType != tgaTypeTrueColorRLE {
		return nil, fmt.Errorf("tga: unsupported image type %d", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("tga: unsupported bit depth %d", bpp)
	}
	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, errors.New("tga: data truncated")
	}

	r := &tgaReader{
		img:         image.NewNRGBA(image.Rect(0, 0, width, height)),
		src:         data[offset:],
		pixelSize:   bpp / 8,
		width:       width,
		height:      height,
		topToBottom: topToBottom,
	}
	var err error
	if imageType == tgaTypeTrueColor {
		err = r.readRaw(width * height)
	} else {
		err = r.readRLE()
	}
	if err != nil {
		return nil, err
	}
	return r.img, nil
}

type tgaReader struct {
	img         *image.NRGBA
	src         []byte
	pos         int
	pixel       int
	pixelSize   int
	width       int
	height      int
	topToBottom bool
}

func (r *tgaReader) next() (color.NRGBA, error) {
	if r.pos+r.pixelSize > len(r.src) {
		return color.NRGBA{}, errors.New("tga: pixel data truncated")
	}
	px := r.src[r.pos : r.pos+r.pixelSize]
	r.pos += r.pixelSize
	c := color.NRGBA{R: px[2], G: px[1], B: px[0], A: 255}
	if r.pixelSize == 4 {
		c.A = px[3]
	}
	return c, nil
}

func (r *tgaReader) put(c color.NRGBA) {
	x := r.pixel % r.width
	y := r.pixel / r.width
	if !r.topToBottom {
		y = r.height - 1 - y
	}
	r.img.SetNRGBA(x, y, c)
	r.pixel++
}

func (r *tgaReader) readRaw(count int) error {
	total := r.width * r.height
	for i := 0; i < count && r.pixel < total; i++ {
		c, err := r.next()
		if err != nil {
			return err
		}
		r.put(c)
	}
	return nil
}

func (r *tgaReader) readRLE() error {
	total := r.width * r.height
	for r.pixel < total {
		if r.pos >= len(r.src) {
			return errors.New("tga: rle data truncated")
		}
		packet := r.src[r.pos]
		r.pos++
		count := int(packet&0x7f) + 1
		if packet&0x80 == 0 {
			if err := r.readRaw(count); err != nil {
				return err
			}
			continue
		}
		c, err := r.next()
		if err != nil {
			return err
		}
		for i := 0; i < count && r.pixel < total; i++ {
			r.put(c)
		}
	}
	return nil
}
