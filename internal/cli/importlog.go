package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
)

// ImportLogOptions holds flags for the import-log command.
type ImportLogOptions struct {
	*RootOptions
	CampaignID string
	Phase      string // optional filter
}

// NewImportLogCommand creates the import-log command.
func NewImportLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportLogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import-log",
		Short: "List a campaign's ImportLog rows in sequence order",
		Long: `List a campaign's ImportLog rows in sequence order.

Examples:
  loreledger import-log --campaign camp-1 --db ./ledger.db
  loreledger import-log --campaign camp-1 --phase entity --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportLog(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CampaignID, "campaign", "", "campaign to list (required)")
	_ = cmd.MarkFlagRequired("campaign")
	cmd.Flags().StringVar(&opts.Phase, "phase", "", "only list rows of this phase")

	return cmd
}

func runImportLog(ctx context.Context, opts *ImportLogOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	if opts.Phase != "" && !knownPhase(ir.Phase(opts.Phase)) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown phase %q: must be one of %v", opts.Phase, ir.Phases()))
	}

	st, err := store.Open(opts.dbPath(), store.WithLogger(opts.logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rows, err := st.ReadImportLog(ctx, opts.CampaignID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read import log", err)
	}
	if opts.Phase != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Phase == ir.Phase(opts.Phase) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	if opts.Format == "json" {
		return f.Success(rows)
	}
	writeImportLogText(f.Writer, opts.CampaignID, rows)
	return nil
}

func writeImportLogText(w io.Writer, campaignID string, rows []ir.ImportLogEntry) {
	if len(rows) == 0 {
		fmt.Fprintf(w, "No import log rows found for campaign %s.\n", campaignID)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%6d  %-12s  %-13s  %-9s  %s  %s\n",
			row.SequenceNo, row.Phase, row.ObjectType, row.Action, row.StableID, shortHash(row.FileHash))
	}
}

func knownPhase(p ir.Phase) bool {
	for _, known := range ir.Phases() {
		if p == known {
			return true
		}
	}
	return false
}

// shortHash abbreviates a hex digest for text output.
func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
