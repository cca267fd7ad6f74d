package grid

import (
	"errors"
	"math"
	"testing"
)

func mustAlloc(t *testing.T, a Allocator, kind Kind, w, h int) *Field {
	t.Helper()
	f, err := a.Allocate(kind, w, h)
	if err != nil {
		t.Fatalf("allocate %s %dx%d: %v", kind, w, h, err)
	}
	return f
}

func TestAllocateRejectsInvalidResolution(t *testing.T) {
	a := HostAllocator{}
	for _, dims := range [][2]int{{0, 16}, {16, 0}, {-4, 8}} {
		_, err := a.Allocate(Density, dims[0], dims[1])
		if err == nil {
			t.Fatalf("expected error for %dx%d", dims[0], dims[1])
		}
		var allocErr *AllocationError
		if !errors.As(err, &allocErr) {
			t.Fatalf("expected *AllocationError, got %T", err)
		}
		if !errors.Is(err, ErrInvalidResolution) {
			t.Errorf("expected ErrInvalidResolution, got %v", err)
		}
	}
}

func TestAllocateRejectsOversized(t *testing.T) {
	a := HostAllocator{MaxCells: 64 * 64}
	if _, err := a.Allocate(Velocity, 65, 64); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	f := mustAlloc(t, a, Velocity, 64, 64)
	if len(f.Pix) != 64*64*Stride {
		t.Errorf("expected %d channels, got %d", 64*64*Stride, len(f.Pix))
	}
}

func TestSwapRoundTrip(t *testing.T) {
	db, err := NewDoubleBuffer(HostAllocator{}, Pressure, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	read, write := db.Read(), db.Write()
	if read == write {
		t.Fatal("read and write must be distinct allocations")
	}

	db.Swap()
	if db.Read() != write || db.Write() != read {
		t.Error("single swap should exchange roles")
	}
	db.Swap()
	if db.Read() != read || db.Write() != write {
		t.Error("two swaps should restore the original assignment")
	}
}

func TestClearWritesConstant(t *testing.T) {
	f := mustAlloc(t, HostAllocator{}, Density, 4, 3)
	f.Clear(0.25)
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			s := f.At(x, y)
			if s[0] != 0.25 || s[1] != 0.25 || s[2] != 0.25 || s[3] != 1 {
				t.Fatalf("cell (%d,%d) = %v", x, y, s)
			}
		}
	}
}

func TestFetchClampsToEdge(t *testing.T) {
	f := mustAlloc(t, HostAllocator{}, Pressure, 3, 3)
	f.Store(0, 0, Sample{1})
	f.Store(2, 2, Sample{9})

	if v := f.FetchX(-5, -1); v != 1 {
		t.Errorf("expected clamp to (0,0)=1, got %f", v)
	}
	if v := f.FetchX(7, 3); v != 9 {
		t.Errorf("expected clamp to (2,2)=9, got %f", v)
	}
}

func TestSampleBilinear(t *testing.T) {
	f := mustAlloc(t, HostAllocator{}, Pressure, 2, 2)
	f.Store(0, 0, Sample{0})
	f.Store(1, 0, Sample{1})
	f.Store(0, 1, Sample{2})
	f.Store(1, 1, Sample{3})

	// Texel centres return exact values
	if v := f.Sample(0.25, 0.25)[0]; v != 0 {
		t.Errorf("expected 0 at first centre, got %f", v)
	}
	if v := f.Sample(0.75, 0.75)[0]; v != 3 {
		t.Errorf("expected 3 at last centre, got %f", v)
	}

	// Midpoint averages all four
	if v := f.Sample(0.5, 0.5)[0]; math.Abs(float64(v-1.5)) > 1e-6 {
		t.Errorf("expected 1.5 at midpoint, got %f", v)
	}

	// Outside the grid clamps to the edge texel
	if v := f.Sample(-1, -1)[0]; v != 0 {
		t.Errorf("expected clamp to 0, got %f", v)
	}
	if v := f.Sample(0.75, 2)[0]; v != 3 {
		t.Errorf("expected clamp to 3, got %f", v)
	}
}

func TestHalfPrecisionQuantizes(t *testing.T) {
	f := mustAlloc(t, HostAllocator{Precision: Half}, Density, 2, 1)
	const v = float32(0.1)
	f.Store(0, 0, Sample{v, v, v, 1})
	f.Quantize(0, 1)

	got := f.At(0, 0)[0]
	if got == v {
		t.Errorf("expected 0.1 to lose precision in binary16, got exact %v", got)
	}
	if math.Abs(float64(got-v)) > 1e-4 {
		t.Errorf("binary16 rounding error too large: %v vs %v", got, v)
	}

	// Exactly representable values survive
	f.Store(1, 0, Sample{0.5, -2, 1024, 1})
	f.Quantize(0, 1)
	if s := f.At(1, 0); s != (Sample{0.5, -2, 1024, 1}) {
		t.Errorf("representable values changed: %v", s)
	}
}

func TestParsePrecision(t *testing.T) {
	if p, err := ParsePrecision("half"); err != nil || p != Half {
		t.Errorf("half: got %v, %v", p, err)
	}
	if p, err := ParsePrecision(""); err != nil || p != Full {
		t.Errorf("empty: got %v, %v", p, err)
	}
	if _, err := ParsePrecision("double"); err == nil {
		t.Error("expected error for unknown precision")
	}
}
