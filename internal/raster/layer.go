package raster

import (
	"context"
	"fmt"
)

// DataType identifies the native sample encoding of a layer.
type DataType int

const (
	// Uint8 is 8-bit unsigned integer samples (0-255).
	Uint8 DataType = iota
	// Uint16 is 16-bit unsigned integer samples (0-65535).
	Uint16
	// Float32 is 32-bit floating point samples.
	Float32
)

func (d DataType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// ParseDataType converts a textual name into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "uint8", "byte":
		return Uint8, nil
	case "uint16":
		return Uint16, nil
	case "float32", "float":
		return Float32, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

// Integral reports whether the type holds whole-number samples.
func (d DataType) Integral() bool { return d == Uint8 || d == Uint16 }

// Range returns the representable sample range. Float32 layers nominally
// span [0,1]; callers widen it when a layer declares otherwise.
func (d DataType) Range() (lo, hi float64) {
	switch d {
	case Uint8:
		return 0, 255
	case Uint16:
		return 0, 65535
	default:
		return 0, 1
	}
}

// ByteSize returns the encoded width of one sample in bytes.
func (d DataType) ByteSize() int {
	switch d {
	case Uint8:
		return 1
	case Uint16:
		return 2
	default:
		return 4
	}
}

// Layer is a read-only multi-band raster on a Grid.
//
// Implementations must be safe for concurrent Read calls; the engine reads
// tiles from several goroutines at once.
type Layer interface {
	// Name identifies the layer in logs, progress events and reports.
	Name() string

	// Grid returns the layer's pixel lattice.
	Grid() Grid

	// Bands returns the number of sample bands.
	Bands() int

	// DataType returns the native sample encoding.
	DataType() DataType

	// NoData returns the sentinel marking invalid pixels, if the layer has
	// one. A pixel is invalid only when every band equals the sentinel.
	NoData() (float64, bool)

	// Read copies band samples for w into dst in row-major order. dst must
	// hold at least w.Size() values. w is always fully inside the layer
	// grid; use ReadWindow for windows that may extend past it.
	Read(ctx context.Context, band int, w Window, dst []float64) error
}

// Fingerprinter is implemented by layers whose pixel content can be
// identified across process runs, such as files. The fingerprint keys
// cached histogram statistics; layers without one are never cached.
type Fingerprinter interface {
	Fingerprint() (string, bool)
}

// ValidMasker is implemented by layers that carry an explicit per-pixel
// validity mask, such as images with an alpha channel. The mask narrows the
// nodata rule: a pixel must be inside the grid, pass the mask and not be
// all-bands-nodata to count as valid. w is always fully inside the grid.
type ValidMasker interface {
	ReadValid(ctx context.Context, w Window, dst []bool) error
}

// FloatRanger is implemented by float32 layers that declare the value range
// their samples span. Histogram binning uses it in place of the nominal
// [0,1] range.
type FloatRanger interface {
	FloatRange() (lo, hi float64)
}
