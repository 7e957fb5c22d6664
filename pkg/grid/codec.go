package grid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/x448/float16"
)

// ErrMalformed is wrapped by every decoding failure.
var ErrMalformed = errors.New("malformed grid data")

// NullToken marks an unset cell in the decimal maskable format.
const NullToken = "NULL"

// MaxCells bounds the cell count a decoder will allocate.
const MaxCells = 1 << 27

// FitsCells reports whether a lengthX by lengthY grid stays within MaxCells.
func FitsCells(lengthX, lengthY int) bool {
	if lengthX < 0 || lengthY < 0 {
		return false
	}
	return lengthX == 0 || lengthY <= MaxCells/lengthX
}

// DecodeError describes where a persisted grid failed to parse.
// Line is 1-based; the dimension line is line 1.
type DecodeError struct {
	Line int
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("grid line %d: %s", e.Line, e.Msg)
}

func (e *DecodeError) Unwrap() error { return ErrMalformed }

func malformed(line int, format string, args ...any) error {
	return &DecodeError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// WriteHeightmap writes normalized heights as 4-digit hex ushort tokens.
func WriteHeightmap(w io.Writer, g *Grid[float32]) error {
	return writeHex(w, g, 4, func(v float32) uint64 {
		return uint64(normalizedToUint(v, math.MaxUint16))
	})
}

// ReadHeightmap parses the output of WriteHeightmap.
func ReadHeightmap(r io.Reader) (*Grid[float32], error) {
	return readHex(r, 4, func(v uint64) float32 {
		return float32(v) / math.MaxUint16
	})
}

// WriteUint16 writes raw ushort cells as 4-digit hex tokens.
func WriteUint16(w io.Writer, g *Grid[uint16]) error {
	return writeHex(w, g, 4, func(v uint16) uint64 { return uint64(v) })
}

// ReadUint16 parses the output of WriteUint16.
func ReadUint16(r io.Reader) (*Grid[uint16], error) {
	return readHex(r, 4, func(v uint64) uint16 { return uint16(v) })
}

// WriteBytes writes byte cells as 2-digit hex tokens.
func WriteBytes(w io.Writer, g *Grid[uint8]) error {
	return writeHex(w, g, 2, func(v uint8) uint64 { return uint64(v) })
}

// ReadBytes parses the output of WriteBytes.
func ReadBytes(r io.Reader) (*Grid[uint8], error) {
	return readHex(r, 2, func(v uint64) uint8 { return uint8(v) })
}

// WriteHalfWeights writes normalized half values quantized to a byte.
func WriteHalfWeights(w io.Writer, g *Grid[float16.Float16]) error {
	return writeHex(w, g, 2, func(v float16.Float16) uint64 {
		return uint64(normalizedToUint(v.Float32(), math.MaxUint8))
	})
}

// ReadHalfWeights parses the output of WriteHalfWeights.
func ReadHalfWeights(r io.Reader) (*Grid[float16.Float16], error) {
	return readHex(r, 2, func(v uint64) float16.Float16 {
		return float16.Fromfloat32(float32(v) / math.MaxUint8)
	})
}

func normalizedToUint(v float32, maxValue float64) uint32 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return uint32(maxValue)
	}
	return uint32(math.Round(float64(v) * maxValue))
}

func writeHex[T any](w io.Writer, g *Grid[T], digits int, encode func(T) uint64) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", g.LengthX(), g.LengthY())
	format := "%0" + strconv.Itoa(digits) + "X"
	for y := range g.LengthY() {
		for x := range g.LengthX() {
			fmt.Fprintf(bw, format, encode(g.Get(x, y)))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func readHex[T any](r io.Reader, digits int, decode func(uint64) T) (*Grid[T], error) {
	lines := newLineReader(r)
	lengthX, lengthY, err := lines.readDimensions()
	if err != nil {
		return nil, err
	}

	g := New[T](lengthX, lengthY)
	for y := range lengthY {
		row, err := lines.next()
		if err != nil {
			return nil, err
		}
		if len(row)%digits != 0 {
			return nil, malformed(lines.line, "truncated hex token (row length %d is not a multiple of %d)", len(row), digits)
		}
		if count := len(row) / digits; count != lengthX {
			return nil, malformed(lines.line, "expected %d values, got %d", lengthX, count)
		}
		for x := range lengthX {
			token := row[x*digits : (x+1)*digits]
			v, err := strconv.ParseUint(token, 16, 64)
			if err != nil {
				return nil, malformed(lines.line, "invalid hex token %q", token)
			}
			g.Set(x, y, decode(v))
		}
	}
	if err := lines.expectEnd(); err != nil {
		return nil, err
	}
	return g, nil
}

// WriteMaskableHalf writes nullable half cells as tab-separated decimals.
// Unset cells are written as NULL.
func WriteMaskableHalf(w io.Writer, g *Grid[Maskable[float16.Float16]]) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", g.LengthX(), g.LengthY())
	for y := range g.LengthY() {
		for x := range g.LengthX() {
			if x > 0 {
				bw.WriteByte('\t')
			}
			cell := g.Get(x, y)
			if !cell.Valid {
				bw.WriteString(NullToken)
				continue
			}
			bw.WriteString(strconv.FormatFloat(float64(cell.Value.Float32()), 'g', 5, 32))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadMaskableHalf parses the output of WriteMaskableHalf.
func ReadMaskableHalf(r io.Reader) (*Grid[Maskable[float16.Float16]], error) {
	lines := newLineReader(r)
	lengthX, lengthY, err := lines.readDimensions()
	if err != nil {
		return nil, err
	}

	g := New[Maskable[float16.Float16]](lengthX, lengthY)
	for y := range lengthY {
		row, err := lines.next()
		if err != nil {
			return nil, err
		}
		var tokens []string
		if row != "" {
			tokens = strings.Split(row, "\t")
		}
		if len(tokens) != lengthX {
			return nil, malformed(lines.line, "expected %d values, got %d", lengthX, len(tokens))
		}
		for x, token := range tokens {
			if token == NullToken {
				continue
			}
			v, err := strconv.ParseFloat(token, 32)
			if err != nil {
				return nil, malformed(lines.line, "invalid decimal token %q", token)
			}
			g.Set(x, y, Some(float16.Fromfloat32(float32(v))))
		}
	}
	if err := lines.expectEnd(); err != nil {
		return nil, err
	}
	return g, nil
}

// lineReader yields '\n'-terminated lines and rejects any other line ending.
type lineReader struct {
	br   *bufio.Reader
	line int
	eof  bool
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReader(r)}
}

func (l *lineReader) next() (string, error) {
	if l.eof {
		return "", malformed(l.line+1, "unexpected end of data")
	}
	s, err := l.br.ReadString('\n')
	l.line++
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading grid line %d: %w", l.line, err)
		}
		l.eof = true
		if s == "" {
			return "", malformed(l.line, "unexpected end of data")
		}
	}
	s = strings.TrimSuffix(s, "\n")
	if strings.ContainsAny(s, "\r\v\f") {
		return "", malformed(l.line, "unexpected line-ending character")
	}
	return s, nil
}

func (l *lineReader) readDimensions() (int, int, error) {
	header, err := l.next()
	if err != nil {
		return 0, 0, err
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return 0, 0, malformed(l.line, "bad dimension line %q", header)
	}
	lengthX, errX := strconv.Atoi(parts[0])
	lengthY, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil || lengthX < 0 || lengthY < 0 {
		return 0, 0, malformed(l.line, "bad dimension line %q", header)
	}
	if !FitsCells(lengthX, lengthY) {
		return 0, 0, malformed(l.line, "dimensions %dx%d exceed %d cells", lengthX, lengthY, MaxCells)
	}
	return lengthX, lengthY, nil
}

// expectEnd fails when non-empty content follows the last row.
func (l *lineReader) expectEnd() error {
	if l.eof {
		return nil
	}
	rest, err := io.ReadAll(l.br)
	if err != nil {
		return fmt.Errorf("reading grid trailer: %w", err)
	}
	if len(strings.TrimRight(string(rest), "\n")) > 0 {
		return malformed(l.line+1, "unexpected data after last row")
	}
	return nil
}
