package histmatch

// ChannelStats pairs the source and reference histograms of one matched
// channel: a band in RGB mode, or one of L, C, H.
type ChannelStats struct {
	Name      string
	Source    *Histogram
	Reference *Histogram
}

// LayerStats holds everything needed to rebuild a layer's transfer
// functions. It is what the statistics pass produces and what the stats
// cache persists; transfers themselves are always rebuilt from it.
type LayerStats struct {
	Layer    string
	Overlap  bool // false when no mutual overlap existed and full extents were used
	Channels []ChannelStats
}

// BuildTransfers derives one monotone transfer per channel.
func (s *LayerStats) BuildTransfers() ([]TransferFunc, error) {
	fns := make([]TransferFunc, len(s.Channels))
	for i, ch := range s.Channels {
		fn, err := Match(ch.Source, ch.Reference)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return fns, nil
}
