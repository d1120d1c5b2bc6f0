package raster

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ENVI data type codes for the encodings this package writes.
const (
	enviTypeUint8   = 1
	enviTypeFloat32 = 4
	enviTypeUint16  = 12
)

func enviTypeCode(d DataType) int {
	switch d {
	case Uint8:
		return enviTypeUint8
	case Uint16:
		return enviTypeUint16
	default:
		return enviTypeFloat32
	}
}

// ENVIDataset streams a mosaic to disk as a band-sequential ENVI raster: a
// raw little-endian sample file plus a text header sidecar.
//
// Tiles address absolute file offsets, so they may arrive in any order. The
// header is only written by Finalize; a data file without its .hdr marks an
// aborted run and is never a readable raster.
type ENVIDataset struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	grid     Grid
	dtype    DataType
	bands    int
	nodata   float64
	hasND    bool
	rowBuf   []byte
	finished bool
}

// CreateENVI creates the data file for a mosaic of the given shape. The
// conventional extension is .dat; the header lands at path minus extension
// plus .hdr. nodata fills pixels no layer covered; nil means 0.
func CreateENVI(path string, grid Grid, bands int, dtype DataType, nodata *float64) (*ENVIDataset, error) {
	if bands < 1 {
		return nil, fmt.Errorf("create %s: %d bands", path, bands)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create raster: %w", err)
	}
	d := &ENVIDataset{
		path:   path,
		f:      f,
		grid:   grid,
		dtype:  dtype,
		bands:  bands,
		rowBuf: make([]byte, grid.Cols*dtype.ByteSize()),
	}
	if nodata != nil {
		d.nodata = *nodata
		d.hasND = true
	}
	// Size the file up front so untouched regions read as zero instead of
	// EOF, and so a full disk fails here rather than mid-run.
	total := int64(bands) * int64(grid.Rows) * int64(grid.Cols) * int64(dtype.ByteSize())
	if err := f.Truncate(total); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("allocate raster: %w", err)
	}
	return d, nil
}

func (d *ENVIDataset) Grid() Grid { return d.grid }
func (d *ENVIDataset) Bands() int { return d.bands }

// HeaderPath returns where Finalize writes the sidecar.
func (d *ENVIDataset) HeaderPath() string { return enviHeaderName(d.path) }

func enviHeaderName(dataPath string) string {
	return strings.TrimSuffix(dataPath, filepath.Ext(dataPath)) + ".hdr"
}

func (d *ENVIDataset) WriteTile(ctx context.Context, t *Tile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return fmt.Errorf("write to closed dataset %s", d.path)
	}
	if len(t.Bands) != d.bands {
		return fmt.Errorf("tile has %d bands, dataset has %d", len(t.Bands), d.bands)
	}
	w := t.Window
	size := d.dtype.ByteSize()
	planeBytes := int64(d.grid.Rows) * int64(d.grid.Cols) * int64(size)
	for b := 0; b < d.bands; b++ {
		for y := 0; y < w.H; y++ {
			buf := d.rowBuf[:w.W*size]
			for x := 0; x < w.W; x++ {
				i := y*w.W + x
				v := t.Bands[b][i]
				if !t.Valid[i] {
					v = d.nodata
				}
				d.encode(buf[x*size:], v)
			}
			off := int64(b)*planeBytes + (int64(w.Y+y)*int64(d.grid.Cols)+int64(w.X))*int64(size)
			if _, err := d.f.WriteAt(buf, off); err != nil {
				return fmt.Errorf("write tile %s: %w", w, err)
			}
		}
	}
	return nil
}

func (d *ENVIDataset) encode(dst []byte, v float64) {
	switch d.dtype {
	case Uint8:
		dst[0] = uint8(clampRange(v, 0, 255) + 0.5)
	case Uint16:
		binary.LittleEndian.PutUint16(dst, uint16(clampRange(v, 0, 65535)+0.5))
	default:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finalize flushes the data file and writes the header sidecar. Until it
// returns, the output does not exist as a raster.
func (d *ENVIDataset) Finalize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return fmt.Errorf("finalize closed dataset %s", d.path)
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("sync raster: %w", err)
	}
	if err := d.f.Close(); err != nil {
		return fmt.Errorf("close raster: %w", err)
	}
	if err := os.WriteFile(d.HeaderPath(), []byte(d.headerText()), 0o644); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	d.finished = true
	return nil
}

func (d *ENVIDataset) headerText() string {
	var sb strings.Builder
	sb.WriteString("ENVI\n")
	sb.WriteString("description = {qrastermerge mosaic}\n")
	fmt.Fprintf(&sb, "samples = %d\n", d.grid.Cols)
	fmt.Fprintf(&sb, "lines = %d\n", d.grid.Rows)
	fmt.Fprintf(&sb, "bands = %d\n", d.bands)
	sb.WriteString("header offset = 0\n")
	sb.WriteString("file type = ENVI Standard\n")
	fmt.Fprintf(&sb, "data type = %d\n", enviTypeCode(d.dtype))
	sb.WriteString("interleave = bsq\n")
	sb.WriteString("byte order = 0\n")
	fmt.Fprintf(&sb, "map info = {Arbitrary, 1, 1, %s, %s, %s, %s, units=Meters}\n",
		formatCoord(d.grid.OriginX), formatCoord(d.grid.OriginY),
		formatCoord(d.grid.PixelW), formatCoord(d.grid.PixelH))
	if d.hasND {
		fmt.Fprintf(&sb, "data ignore value = %s\n", formatCoord(d.nodata))
	}
	return sb.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Discard drops the partial output, removing the data file and any header.
func (d *ENVIDataset) Discard() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.finished {
		d.f.Close()
	}
	d.finished = true
	err := os.Remove(d.path)
	if herr := os.Remove(d.HeaderPath()); herr != nil && !os.IsNotExist(herr) && err == nil {
		err = herr
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard raster: %w", err)
	}
	return nil
}

// ENVILayer reads a band-sequential ENVI raster without loading it. Reads
// go through ReadAt, so the layer is safe for concurrent use.
type ENVILayer struct {
	path        string
	f           *os.File
	grid        Grid
	dtype       DataType
	bands       int
	nodata      float64
	hasND       bool
	fingerprint string
}

// OpenENVI opens the data file at path using its .hdr sidecar. Only
// band-sequential little-endian files of the supported data types are
// accepted.
func OpenENVI(path string) (*ENVILayer, error) {
	hdrPath := enviHeaderName(path)
	kv, err := parseENVIHeader(hdrPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: missing header %s (incomplete or foreign raster)", path, hdrPath)
		}
		return nil, err
	}

	cols, err := headerInt(kv, "samples")
	if err != nil {
		return nil, fmt.Errorf("header %s: %w", hdrPath, err)
	}
	rows, err := headerInt(kv, "lines")
	if err != nil {
		return nil, fmt.Errorf("header %s: %w", hdrPath, err)
	}
	bands, err := headerInt(kv, "bands")
	if err != nil {
		return nil, fmt.Errorf("header %s: %w", hdrPath, err)
	}
	typeCode, err := headerInt(kv, "data type")
	if err != nil {
		return nil, fmt.Errorf("header %s: %w", hdrPath, err)
	}
	var dtype DataType
	switch typeCode {
	case enviTypeUint8:
		dtype = Uint8
	case enviTypeUint16:
		dtype = Uint16
	case enviTypeFloat32:
		dtype = Float32
	default:
		return nil, fmt.Errorf("header %s: unsupported data type %d", hdrPath, typeCode)
	}
	if il := kv["interleave"]; il != "" && !strings.EqualFold(il, "bsq") {
		return nil, fmt.Errorf("header %s: unsupported interleave %q", hdrPath, il)
	}
	if bo := kv["byte order"]; bo != "" && bo != "0" {
		return nil, fmt.Errorf("header %s: unsupported byte order %q", hdrPath, bo)
	}
	if off := kv["header offset"]; off != "" && off != "0" {
		return nil, fmt.Errorf("header %s: unsupported header offset %q", hdrPath, off)
	}

	grid := Grid{PixelW: 1, PixelH: 1, Cols: cols, Rows: rows, OriginY: float64(rows)}
	if mi := kv["map info"]; mi != "" {
		g, err := parseMapInfo(mi, cols, rows)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", hdrPath, err)
		}
		grid = g
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	l := &ENVILayer{
		path:  path,
		f:     f,
		grid:  grid,
		dtype: dtype,
		bands: bands,
	}
	if nd := kv["data ignore value"]; nd != "" {
		v, err := strconv.ParseFloat(nd, 64)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("header %s: data ignore value: %w", hdrPath, err)
		}
		l.nodata = v
		l.hasND = true
	}
	if stat, err := f.Stat(); err == nil {
		l.fingerprint = fmt.Sprintf("%s|%d|%d", path, stat.Size(), stat.ModTime().UnixNano())
	}
	return l, nil
}

// parseENVIHeader reads the key = value pairs of a header, joining brace
// lists that span lines.
func parseENVIHeader(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kv := make(map[string]string)
	lines := strings.Split(string(data), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || line == "ENVI" || !strings.Contains(line, "=") {
			continue
		}
		eq := strings.Index(line, "=")
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		val := strings.TrimSpace(line[eq+1:])
		for strings.HasPrefix(val, "{") && !strings.Contains(val, "}") && i+1 < len(lines) {
			i++
			val += " " + strings.TrimSpace(lines[i])
		}
		val = strings.TrimSuffix(strings.TrimPrefix(val, "{"), "}")
		kv[key] = strings.TrimSpace(val)
	}
	return kv, nil
}

func headerInt(kv map[string]string, key string) (int, error) {
	s, ok := kv[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// parseMapInfo converts an ENVI map info list into a Grid. The reference
// pixel is 1-based and tied to its outer top-left corner.
func parseMapInfo(s string, cols, rows int) (Grid, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 7 {
		return Grid{}, fmt.Errorf("map info: %d of 7 fields", len(parts))
	}
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return Grid{}, fmt.Errorf("map info field %d: %w", i+2, err)
		}
		vals[i] = v
	}
	refX, refY, mapX, mapY, pw, ph := vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	if pw <= 0 || ph <= 0 {
		return Grid{}, fmt.Errorf("map info: non-positive pixel size %gx%g", pw, ph)
	}
	return Grid{
		OriginX: mapX - (refX-1)*pw,
		OriginY: mapY + (refY-1)*ph,
		PixelW:  pw,
		PixelH:  ph,
		Cols:    cols,
		Rows:    rows,
	}, nil
}

func (l *ENVILayer) Name() string       { return l.path }
func (l *ENVILayer) Grid() Grid         { return l.grid }
func (l *ENVILayer) Bands() int         { return l.bands }
func (l *ENVILayer) DataType() DataType { return l.dtype }

func (l *ENVILayer) NoData() (float64, bool) { return l.nodata, l.hasND }

// Fingerprint implements Fingerprinter.
func (l *ENVILayer) Fingerprint() (string, bool) {
	return l.fingerprint, l.fingerprint != ""
}

func (l *ENVILayer) Read(ctx context.Context, band int, w Window, dst []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if band < 0 || band >= l.bands {
		return fmt.Errorf("layer %s: band %d out of range", l.path, band)
	}
	full := Window{W: l.grid.Cols, H: l.grid.Rows}
	if w.Intersect(full) != w {
		return fmt.Errorf("layer %s: window %s outside grid %dx%d", l.path, w, l.grid.Cols, l.grid.Rows)
	}
	size := l.dtype.ByteSize()
	planeBytes := int64(l.grid.Rows) * int64(l.grid.Cols) * int64(size)
	buf := make([]byte, w.W*size)
	for y := 0; y < w.H; y++ {
		off := int64(band)*planeBytes + (int64(w.Y+y)*int64(l.grid.Cols)+int64(w.X))*int64(size)
		if _, err := l.f.ReadAt(buf, off); err != nil {
			return fmt.Errorf("read %s row %d: %w", l.path, w.Y+y, err)
		}
		for x := 0; x < w.W; x++ {
			switch l.dtype {
			case Uint8:
				dst[y*w.W+x] = float64(buf[x])
			case Uint16:
				dst[y*w.W+x] = float64(binary.LittleEndian.Uint16(buf[x*size:]))
			default:
				dst[y*w.W+x] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[x*size:])))
			}
		}
	}
	return nil
}

// Close releases the underlying file.
func (l *ENVILayer) Close() error { return l.f.Close() }
