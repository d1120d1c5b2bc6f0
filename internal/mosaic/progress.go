package mosaic

import (
	"time"

	"github.com/uav4geo/QRasterMerge/internal/histmatch"
	"github.com/uav4geo/QRasterMerge/internal/raster"
)

// Phase identifies the stage a progress event belongs to.
type Phase int

const (
	// PhaseStatistics is the histogram accumulation pass.
	PhaseStatistics Phase = iota + 1
	// PhaseCompositing is the tile blend-and-write pass.
	PhaseCompositing
	// PhaseFinalize is the output flush.
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseStatistics:
		return "statistics"
	case PhaseCompositing:
		return "compositing"
	case PhaseFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Progress is one observation of a running merge. During statistics, Done
// and Total count layers and Layer names the one just finished; during
// compositing they count written tiles.
type Progress struct {
	RunID    string
	Phase    Phase
	Done     int
	Total    int
	Layer    string
	Fraction float64
}

// MatchInfo records the matching applied to one non-reference layer, for
// reporting.
type MatchInfo struct {
	Layer     string
	Reference string
	Overlap   bool
	Cached    bool
	Channels  []histmatch.ChannelStats
	Transfers []histmatch.TransferFunc
}

// Result summarizes a completed merge.
type Result struct {
	RunID        string
	Grid         raster.Grid
	Bands        int
	Layers       int
	TilesWritten int
	Equalize     EqualizeMode
	Matching     []MatchInfo
	Elapsed      time.Duration
}
