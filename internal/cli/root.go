package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// SetVersion sets the version information displayed by --version. Called by
// the main package with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the qrastermerge CLI. ctx cancellation aborts a running
// merge cleanly; the destination is discarded rather than left half
// written.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "qrastermerge",
		Short:        "Blend georeferenced rasters into seamless mosaics",
		Long:         `qrastermerge composites two or more co-registered raster layers into a single mosaic, feathering seams across a blend distance and optionally matching histograms so exposure differences do not show.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("qrastermerge %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newMergeCmd())
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
