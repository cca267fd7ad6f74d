// Package grid provides the fixed-resolution sample storage shared by every
// simulation field, and the two-slot buffers kernels ping-pong between.
package grid

import (
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Stride is the number of float32 channels stored per cell. Every field keeps
// four channels regardless of how many are meaningful.
const Stride = 4

// Kind identifies the logical quantity a field holds.
type Kind uint8

const (
	Velocity Kind = iota
	Density
	Pressure
	Divergence
	Curl
)

func (k Kind) String() string {
	switch k {
	case Velocity:
		return "velocity"
	case Density:
		return "density"
	case Pressure:
		return "pressure"
	case Divergence:
		return "divergence"
	case Curl:
		return "curl"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Channels returns the number of meaningful channels for the kind.
// Density is splatted as grey RGB, so it carries three.
func (k Kind) Channels() int {
	switch k {
	case Velocity:
		return 2
	case Density:
		return 3
	default:
		return 1
	}
}

// Precision selects the numeric storage type of a field.
type Precision uint8

const (
	Full Precision = iota // float32
	Half                  // IEEE 754 binary16
)

func (p Precision) String() string {
	if p == Half {
		return "half"
	}
	return "full"
}

// ParsePrecision maps a config string to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "full", "float32":
		return Full, nil
	case "half", "float16":
		return Half, nil
	}
	return Full, fmt.Errorf("unknown precision %q", s)
}

// Sample is one four-channel cell value.
type Sample [Stride]float32

// Field is a W×H grid of four-channel samples. Rows run bottom to top, so
// cell (x, y) has its centre at uv ((x+0.5)/W, (y+0.5)/H).
type Field struct {
	Kind      Kind
	W, H      int
	Precision Precision

	// Pix holds W*H*Stride channels, row-major.
	Pix []float32
}

func newField(kind Kind, w, h int, p Precision) *Field {
	return &Field{
		Kind:      kind,
		W:         w,
		H:         h,
		Precision: p,
		Pix:       make([]float32, w*h*Stride),
	}
}

// Offset returns the index of channel 0 of cell (x, y) in Pix.
func (f *Field) Offset(x, y int) int {
	return (y*f.W + x) * Stride
}

// Channels returns the number of meaningful channels for the field's kind.
func (f *Field) Channels() int { return f.Kind.Channels() }

// TexelSize returns the uv extent of one cell.
func (f *Field) TexelSize() (float32, float32) {
	return 1 / float32(f.W), 1 / float32(f.H)
}

// At returns cell (x, y). Coordinates must be in range.
func (f *Field) At(x, y int) Sample {
	i := f.Offset(x, y)
	return Sample{f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]}
}

// Fetch returns cell (x, y) with clamp-to-edge addressing.
func (f *Field) Fetch(x, y int) Sample {
	return f.At(clampInt(x, 0, f.W-1), clampInt(y, 0, f.H-1))
}

// FetchX returns channel 0 of cell (x, y) with clamp-to-edge addressing.
func (f *Field) FetchX(x, y int) float32 {
	return f.Pix[f.Offset(clampInt(x, 0, f.W-1), clampInt(y, 0, f.H-1))]
}

// FetchY returns channel 1 of cell (x, y) with clamp-to-edge addressing.
func (f *Field) FetchY(x, y int) float32 {
	return f.Pix[f.Offset(clampInt(x, 0, f.W-1), clampInt(y, 0, f.H-1))+1]
}

// Store writes cell (x, y).
func (f *Field) Store(x, y int, s Sample) {
	i := f.Offset(x, y)
	copy(f.Pix[i:i+Stride], s[:])
}

// Sample returns the bilinearly filtered value at uv with clamp-to-edge
// addressing, matching a linear-filtered texture lookup.
func (f *Field) Sample(u, v float32) Sample {
	tx := u*float32(f.W) - 0.5
	ty := v*float32(f.H) - 0.5
	fx0 := float32(math.Floor(float64(tx)))
	fy0 := float32(math.Floor(float64(ty)))
	ax := tx - fx0
	ay := ty - fy0
	x0, y0 := int(fx0), int(fy0)

	s00 := f.Fetch(x0, y0)
	s10 := f.Fetch(x0+1, y0)
	s01 := f.Fetch(x0, y0+1)
	s11 := f.Fetch(x0+1, y0+1)

	var out Sample
	for c := 0; c < Stride; c++ {
		bottom := s00[c] + (s10[c]-s00[c])*ax
		top := s01[c] + (s11[c]-s01[c])*ax
		out[c] = bottom + (top-bottom)*ay
	}
	return out
}

// Clear sets the first three channels of every cell to value and the fourth
// to 1, the same output a clear pass writes.
func (f *Field) Clear(value float32) {
	for i := 0; i < len(f.Pix); i += Stride {
		f.Pix[i] = value
		f.Pix[i+1] = value
		f.Pix[i+2] = value
		f.Pix[i+3] = 1
	}
	f.Quantize(0, f.H)
}

// Quantize rounds rows [y0, y1) to the field's storage precision. It is a
// no-op for full precision fields.
func (f *Field) Quantize(y0, y1 int) {
	if f.Precision != Half {
		return
	}
	start := y0 * f.W * Stride
	end := y1 * f.W * Stride
	for i := start; i < end; i++ {
		f.Pix[i] = float16.Fromfloat32(f.Pix[i]).Float32()
	}
}

// CopyFrom copies src into f. Both fields must share a resolution.
func (f *Field) CopyFrom(src *Field) {
	copy(f.Pix, src.Pix)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
