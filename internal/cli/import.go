package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/loreledger/internal/importer"
	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/metrics"
	"github.com/roach88/loreledger/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	PackageDir  string
	CampaignID  string
	ShowMetrics bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <package-dir>",
		Short: "Import a content package into a campaign ledger",
		Long: `Import a content package into a campaign ledger.

The package is validated, ordered and appended as seed events in a single
transaction. Re-importing a package whose manifest already completed in the
campaign writes nothing and reports the stored state digest.

Exit codes:
  0 - Package imported (or already imported)
  1 - Package rejected (schema, content index, collision, references, ...)
  2 - Command error (database unavailable, bad flags, etc.)

Examples:
  loreledger import ./packs/greenhollow --campaign camp-1 --db ./ledger.db
  loreledger import ./packs/greenhollow --campaign camp-1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.PackageDir = args[0]
			return runImport(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CampaignID, "campaign", "", "campaign to import into (required)")
	_ = cmd.MarkFlagRequired("campaign")
	cmd.Flags().BoolVar(&opts.ShowMetrics, "metrics", false, "write Prometheus metrics to stderr after the run")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)
	logger := opts.logger()
	m := metrics.New()

	if info, err := os.Stat(opts.PackageDir); err != nil {
		return WrapExitError(ExitCommandError, "package directory", err)
	} else if !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("package directory: %s is not a directory", opts.PackageDir))
	}

	st, err := store.Open(opts.dbPath(), store.WithRecorder(m), store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	im, err := importer.New(st,
		importer.WithEnabled(opts.Config.ImportEnabled),
		importer.WithLogger(logger),
		importer.WithRecorder(m),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create importer", err)
	}

	f.VerboseLog("importing %s into campaign %s", opts.PackageDir, opts.CampaignID)
	res, err := im.RunDir(ctx, opts.PackageDir, opts.CampaignID)
	if opts.ShowMetrics {
		if werr := m.WriteText(f.GetErrWriter()); werr != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", werr)
		}
	}
	if err != nil {
		return f.Fail(ExitFailure, "import failed", err)
	}

	if opts.Format == "json" {
		return f.Success(res)
	}
	writeImportText(f.Writer, res)
	return nil
}

func writeImportText(w io.Writer, res importer.Result) {
	if res.IdempotentSkip {
		fmt.Fprintf(w, "Package %s already imported into %s; nothing written.\n", res.PackageID, res.CampaignID)
		fmt.Fprintf(w, "  manifest: %s\n", res.ManifestHash)
		fmt.Fprintf(w, "  digest:   %s\n", res.StateDigest)
		return
	}

	fmt.Fprintf(w, "Imported %s into %s\n", res.PackageID, res.CampaignID)
	fmt.Fprintf(w, "  manifest: %s\n", res.ManifestHash)
	fmt.Fprintf(w, "  events:   %d created\n", res.EventsCreated)
	fmt.Fprintf(w, "  log rows: %d\n", res.ImportLogRows)
	fmt.Fprintf(w, "  digest:   %s\n", res.StateDigest)
	for _, phase := range ir.Phases() {
		c, ok := res.Counts[phase]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-9s created=%d skipped=%d\n", phase, c.Created, c.Skipped)
	}
}
