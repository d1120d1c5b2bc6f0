package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uav4geo/QRasterMerge/internal/statcache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the layer statistics cache",
		Long: `Histogram matching scans every input once to collect per-band statistics.
The results are keyed by layer fingerprint and kept in a local SQLite
database, so repeated merges of unchanged rasters skip the scan.`,
	}
	cmd.AddCommand(newCachePathCmd(), newCacheClearCmd())
	return cmd
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache database location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := statcache.DefaultPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached layer statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openStatsCache()
			if err != nil {
				return err
			}
			defer cache.Close()
			n, err := cache.Count()
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			printSuccess("cleared %d cached layer statistics", n)
			printDetail("%s", cache.Path())
			return nil
		},
	}
}
