package grid

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/x448/float16"
)

func TestWriteHeightmapLayout(t *testing.T) {
	g := New[float32](3, 2)
	g.Set(0, 0, 0)
	g.Set(1, 0, 1)
	g.Set(2, 0, 0.5)
	g.Set(0, 1, -2) // clamped
	g.Set(1, 1, 7)  // clamped
	g.Set(2, 1, 0.25)

	var buf bytes.Buffer
	if err := WriteHeightmap(&buf, g); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	want := "3 2\n0000FFFF8000\n0000FFFF4000\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}

	back, err := ReadHeightmap(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if back.LengthX() != 3 || back.LengthY() != 2 {
		t.Fatalf("expected 3x2, got %dx%d", back.LengthX(), back.LengthY())
	}
	if back.Get(1, 0) != 1 || back.Get(0, 1) != 0 {
		t.Errorf("unexpected decoded values %v %v", back.Get(1, 0), back.Get(0, 1))
	}
}

func TestWriteHalfWeightsUsesTwoDigits(t *testing.T) {
	g := New[float16.Float16](2, 1)
	g.Set(0, 0, float16.Fromfloat32(1))
	g.Set(1, 0, float16.Fromfloat32(0.5))

	var buf bytes.Buffer
	if err := WriteHalfWeights(&buf, g); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if buf.String() != "2 1\nFF80\n" {
		t.Errorf("unexpected encoding %q", buf.String())
	}
}

func TestReadBytes(t *testing.T) {
	g, err := ReadBytes(strings.NewReader("2 2\n0a0B\nff00\n"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if g.Get(0, 0) != 10 || g.Get(1, 0) != 11 || g.Get(0, 1) != 255 || g.Get(1, 1) != 0 {
		t.Errorf("unexpected values %v", g.Cells())
	}
}

func TestReadAcceptsMissingFinalNewline(t *testing.T) {
	g, err := ReadUint16(strings.NewReader("1 2\n0001\n0002"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if g.Get(0, 1) != 2 {
		t.Errorf("expected 2, got %d", g.Get(0, 1))
	}
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"empty input", "", 1},
		{"bad dimension line", "3x2\n", 1},
		{"negative dimension", "-1 2\n", 1},
		{"extra dimension", "1 2 3\n", 1},
		{"huge dimensions", "99999999999 99999999999\nFF\n", 1},
		{"too many cells", "200000 200000\n", 1},
		{"truncated token", "2 1\n00FF0\n", 2},
		{"too few values", "2 1\n00FF\n", 2},
		{"too many values", "1 1\n00FF0000\n", 2},
		{"carriage return", "1 1\n00FF\r\n", 2},
		{"missing row", "1 2\n00FF\n", 3},
		{"invalid hex", "1 1\nZZZZ\n", 2},
		{"trailing data", "1 1\n00FF\n0000\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ReadUint16(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if g != nil {
				t.Error("no grid should be returned on failure")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if de.Line != tt.line {
				t.Errorf("expected failure on line %d, got %d (%s)", tt.line, de.Line, de.Msg)
			}
		})
	}
}

func TestMaskableHalfFormat(t *testing.T) {
	g := New[Maskable[float16.Float16]](3, 2)
	g.Set(0, 0, Some(float16.Fromfloat32(0.5)))
	g.Set(2, 0, Some(float16.Fromfloat32(0.33325)))
	g.Set(1, 1, Some(float16.Fromfloat32(1)))

	var buf bytes.Buffer
	if err := WriteMaskableHalf(&buf, g); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "3 2" {
		t.Errorf("expected dimension line \"3 2\", got %q", lines[0])
	}
	if lines[2] != "NULL\t1\tNULL" {
		t.Errorf("unexpected second row %q", lines[2])
	}

	back, err := ReadMaskableHalf(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i, want := range g.Cells() {
		if got := back.Cells()[i]; got != want {
			t.Errorf("cell %d: expected %+v, got %+v", i, want, got)
		}
	}
}

func TestMaskableHalfRejectsBadTokens(t *testing.T) {
	inputs := []string{
		"2 1\n0.5\n",
		"2 1\n0.5\tnil\n",
		"1 1\n0.5\t0.5\n",
	}
	for _, in := range inputs {
		if _, err := ReadMaskableHalf(strings.NewReader(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("input %q: expected ErrMalformed, got %v", in, err)
		}
	}
}
