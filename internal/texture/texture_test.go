package texture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

func sparseGrid() *grid.Grid[grid.Maskable[float32]] {
	g := grid.New[grid.Maskable[float32]](2, 2)
	g.Set(0, 0, grid.Some[float32](0.5))
	g.Set(1, 0, grid.Some[float32](1))
	g.Set(1, 1, grid.Some[float32](0.25))
	return g
}

func TestDecodeFormats(t *testing.T) {
	tests := []struct {
		format    PixelFormat
		size      int
		keepsMask bool
	}{
		{FormatRFloat, 4, false},
		{FormatRHalf, 2, false},
		{FormatRGBA8, 4, true},
		{FormatRGHalf, 4, true},
		{FormatRGBAHalf, 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BytesPerPixel(); got != tt.size {
				t.Errorf("expected %d bytes per pixel, got %d", tt.size, got)
			}
			rb, err := Encode(tt.format, sparseGrid())
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			g, err := Decode(rb)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			want := sparseGrid()
			for i, c := range g.Cells() {
				w := want.Cells()[i]
				if tt.keepsMask && c.Valid != w.Valid {
					t.Errorf("cell %d: expected valid=%v, got %v", i, w.Valid, c.Valid)
				}
				if !tt.keepsMask && !c.Valid {
					t.Errorf("cell %d: expected every cell valid", i)
				}
				if d := c.Value - w.Value; w.Valid && (d > 1.0/255 || d < -1.0/255) {
					t.Errorf("cell %d: expected %v, got %v", i, w.Value, c.Value)
				}
			}
		})
	}
}

func TestDecodeRGBA8ZeroAlpha(t *testing.T) {
	rb := Readback{Format: FormatRGBA8, Width: 2, Height: 1, Data: []byte{
		255, 0, 0, 0, // red but transparent
		51, 0, 0, 255,
	}}
	g, err := Decode(rb)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if g.Get(0, 0).Valid {
		t.Error("expected zero alpha to mean no data")
	}
	if v, ok := g.Get(1, 0).Get(); !ok || v != 0.2 {
		t.Errorf("expected 0.2, got %v (ok %v)", v, ok)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	for _, f := range []PixelFormat{FormatUnknown, PixelFormat(99)} {
		_, err := Decode(Readback{Format: f, Width: 1, Height: 1, Data: make([]byte, 16)})
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%v: expected ErrUnsupportedFormat, got %v", f, err)
		}
	}
	if _, err := Encode(FormatUnknown, sparseGrid()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat from Encode, got %v", err)
	}
}

func TestDecodeShortData(t *testing.T) {
	_, err := Decode(Readback{Format: FormatRFloat, Width: 2, Height: 2, Data: make([]byte, 15)})
	if err == nil {
		t.Fatal("expected error for short data")
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		t.Error("short data must not be reported as an unsupported format")
	}
}

func TestDecodeOversizedReadback(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"overflowing size", 1 << 40, 1 << 40},
		{"too many cells", 1 << 20, 1 << 20},
		{"negative width", -1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Decode(Readback{Format: FormatRFloat, Width: tt.width, Height: tt.height, Data: make([]byte, 16)})
			if err == nil {
				t.Errorf("expected error, got grid %v", g.Size())
			}
		})
	}
}

func grayImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{A: 255})
	img.Set(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(0, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
	img.Set(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func TestDecodeImagePNGAndBMP(t *testing.T) {
	var pngData, bmpData bytes.Buffer
	if err := png.Encode(&pngData, grayImage()); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	if err := bmp.Encode(&bmpData, grayImage()); err != nil {
		t.Fatalf("bmp encode failed: %v", err)
	}

	for name, data := range map[string][]byte{"png": pngData.Bytes(), "bmp": bmpData.Bytes()} {
		g, err := DecodeImage(data)
		if err != nil {
			t.Fatalf("%s: DecodeImage failed: %v", name, err)
		}
		if g.Size() != (grid.Size{X: 2, Y: 2}) {
			t.Fatalf("%s: expected 2x2, got %v", name, g.Size())
		}
		if g.Get(0, 0) != 0 || g.Get(1, 0) != 0xffff {
			t.Errorf("%s: expected black then white, got %d %d", name, g.Get(0, 0), g.Get(1, 0))
		}
	}

	mask, err := DecodeImageMask(pngData.Bytes())
	if err != nil {
		t.Fatalf("DecodeImageMask failed: %v", err)
	}
	if mask.Get(0, 1).Valid {
		t.Error("expected transparent pixel to carry no data")
	}
	if v, ok := mask.Get(1, 1).Get(); !ok || v != 1 {
		t.Errorf("expected 1, got %v (ok %v)", v, ok)
	}
}

func tgaHeader(imageType byte, w, h int, bpp byte, topToBottom bool) []byte {
	hdr := make([]byte, tgaHeaderSize)
	hdr[2] = imageType
	hdr[12], hdr[13] = byte(w), byte(w>>8)
	hdr[14], hdr[15] = byte(h), byte(h>>8)
	hdr[16] = bpp
	if topToBottom {
		hdr[17] = 0x20
	}
	return hdr
}

func TestDecodeImageTGA(t *testing.T) {
	// Bottom-up raw: the first stored row is the bottom one.
	raw := append(tgaHeader(tgaTypeTrueColor, 2, 2, 24, false),
		0, 0, 0, 255, 255, 255, // bottom row: black, white
		255, 255, 255, 0, 0, 0, // top row: white, black
	)
	g, err := DecodeImage(raw)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	want := [][]uint16{{0xffff, 0}, {0, 0xffff}}
	for y, row := range want {
		for x, v := range row {
			if got := g.Get(x, y); got != v {
				t.Errorf("raw (%d,%d): expected %d, got %d", x, y, v, got)
			}
		}
	}

	// Top-down RLE: one run of 3 white pixels, then one raw black pixel.
	rle := append(tgaHeader(tgaTypeTrueColorRLE, 2, 2, 32, true),
		0x82, 255, 255, 255, 255,
		0x00, 0, 0, 0, 255,
	)
	g, err = DecodeImage(rle)
	if err != nil {
		t.Fatalf("DecodeImage RLE failed: %v", err)
	}
	if g.Get(0, 0) != 0xffff || g.Get(0, 1) != 0xffff || g.Get(1, 1) != 0 {
		t.Errorf("unexpected RLE result %v", g.Cells())
	}
}

func TestDecodeImageErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"color mapped", func() []byte { h := tgaHeader(1, 1, 1, 24, false); h[1] = 1; return h }()},
		{"bad depth", tgaHeader(tgaTypeTrueColor, 1, 1, 16, false)},
		{"truncated pixels", tgaHeader(tgaTypeTrueColor, 2, 2, 24, false)},
		{"truncated rle", append(tgaHeader(tgaTypeTrueColorRLE, 2, 2, 24, false), 0x81, 1, 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeImage(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func flatRenderer(v float32) Renderer {
	return RendererFunc(func(_ context.Context, job Job) (Readback, error) {
		g := grid.New[grid.Maskable[float32]](job.Region.Width, job.Region.Height)
		g.Fill(grid.Some(v))
		return Encode(job.Format, g)
	})
}

func TestRenderAsync(t *testing.T) {
	job := Job{Name: "flat", Region: grid.Rect{Width: 3, Height: 2}, Format: FormatRGHalf}
	res := <-RenderAsync(context.Background(), flatRenderer(0.5), job)
	if res.Err != nil {
		t.Fatalf("render failed: %v", res.Err)
	}
	if res.Grid.Size() != (grid.Size{X: 3, Y: 2}) {
		t.Errorf("expected 3x2 grid, got %v", res.Grid.Size())
	}
	if v, ok := res.Grid.Get(2, 1).Get(); !ok || v != 0.5 {
		t.Errorf("expected 0.5, got %v (ok %v)", v, ok)
	}

	failing := RendererFunc(func(context.Context, Job) (Readback, error) {
		return Readback{Format: PixelFormat(42), Width: 1, Height: 1, Data: []byte{0}}, nil
	})
	res = <-RenderAsync(context.Background(), failing, Job{Name: "bad", Format: PixelFormat(42)})
	if !errors.Is(res.Err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", res.Err)
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(flatRenderer(1), 4)
	if got := q.Drain(); len(got) != 0 {
		t.Fatalf("expected empty drain, got %d results", len(got))
	}

	ctx := context.Background()
	for i := range 3 {
		q.Submit(ctx, Job{Name: "job", Region: grid.Rect{Width: i + 1, Height: 1}, Format: FormatRFloat})
	}
	q.Wait()

	results := q.Drain()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("unexpected error: %v", res.Err)
		}
	}
}
