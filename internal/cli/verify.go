package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loreledger/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	CampaignID string // optional - all campaigns when empty
}

// VerifyCampaignResult holds the verification result for one campaign.
type VerifyCampaignResult struct {
	CampaignID  string `json:"campaign_id"`
	Events      int    `json:"events"`       // verified before the first failure
	ChainLength int    `json:"chain_length"` // events stored for the campaign
	Head        string `json:"head,omitempty"`
	Valid       bool   `json:"valid"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Campaigns      []VerifyCampaignResult `json:"campaigns"`
	TotalCampaigns int                    `json:"total_campaigns"`
	AllValid       bool                   `json:"all_valid"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify campaign hash chains",
		Long: `Recompute every payload hash and chain link of one or all campaigns.

Exit codes:
  0 - All chains verified
  1 - A chain is broken (tampered payload, broken link, ordinal gap)
  2 - Command error (database not found, etc.)

Examples:
  loreledger verify --db ./ledger.db
  loreledger verify --db ./ledger.db --campaign camp-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CampaignID, "campaign", "", "verify a single campaign")

	return cmd
}

func runVerify(ctx context.Context, opts *VerifyOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	st, err := store.Open(opts.dbPath(), store.WithLogger(opts.logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	campaigns := []string{opts.CampaignID}
	if opts.CampaignID == "" {
		campaigns, err = st.ListCampaigns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list campaigns", err)
		}
	}

	result := VerifyResult{
		Campaigns:      make([]VerifyCampaignResult, 0, len(campaigns)),
		TotalCampaigns: len(campaigns),
		AllValid:       true,
	}
	for _, id := range campaigns {
		f.VerboseLog("verifying campaign %s", id)
		v, err := st.VerifyCampaign(ctx, id)
		switch {
		case err == nil:
			result.Campaigns = append(result.Campaigns, VerifyCampaignResult{
				CampaignID:  id,
				Events:      v.Events,
				ChainLength: v.ChainLength,
				Head:        v.Head.String(),
				Valid:       true,
			})
		case store.IsFatal(err):
			result.AllValid = false
			result.Campaigns = append(result.Campaigns, VerifyCampaignResult{
				CampaignID:  id,
				Events:      v.Events,
				ChainLength: v.ChainLength,
				Error:       err.Error(),
				ErrorCode:   ErrorCode(err),
			})
		default:
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to verify campaign %s", id), err)
		}
	}

	if opts.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		writeVerifyText(cmd, result)
	}

	if !result.AllValid {
		return NewExitError(ExitFailure, "ledger verification failed")
	}
	return nil
}

func writeVerifyText(cmd *cobra.Command, result VerifyResult) {
	w := cmd.OutOrStdout()
	if result.TotalCampaigns == 0 {
		fmt.Fprintln(w, "No campaigns found in database.")
		return
	}
	for _, c := range result.Campaigns {
		if c.Valid {
			fmt.Fprintf(w, "ok    %s  events=%d head=%s\n", c.CampaignID, c.Events, c.Head)
			continue
		}
		fmt.Fprintf(w, "FAIL  %s  [%s] %s (verified %d of %d events)\n",
			c.CampaignID, c.ErrorCode, c.Error, c.Events, c.ChainLength)
	}
}
