package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	CampaignID string
	EventType  string // optional filter
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List a campaign's ledger events in replay order",
		Long: `List a campaign's ledger events in replay order.

Text output prints one line per event; --verbose adds the canonical payload.

Examples:
  loreledger events --campaign camp-1 --db ./ledger.db
  loreledger events --campaign camp-1 --type seed.entity_created --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CampaignID, "campaign", "", "campaign to list (required)")
	_ = cmd.MarkFlagRequired("campaign")
	cmd.Flags().StringVar(&opts.EventType, "type", "", "only list events of this type")

	return cmd
}

func runEvents(ctx context.Context, opts *EventsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	st, err := store.Open(opts.dbPath(), store.WithLogger(opts.logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, opts.CampaignID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	if opts.EventType != "" {
		filtered := events[:0]
		for _, env := range events {
			if env.EventType == opts.EventType {
				filtered = append(filtered, env)
			}
		}
		events = filtered
	}

	if opts.Format == "json" {
		return f.Success(events)
	}
	return writeEventsText(f.Writer, opts.CampaignID, events, opts.Verbose)
}

func writeEventsText(w io.Writer, campaignID string, events []ir.Envelope, verbose bool) error {
	if len(events) == 0 {
		fmt.Fprintf(w, "No events found for campaign %s.\n", campaignID)
		return nil
	}
	for _, env := range events {
		fmt.Fprintf(w, "%6d  %-28s  world_time=%d  %s\n",
			env.ReplayOrdinal, env.EventType, env.WorldTime, eventSubject(env.Payload))
		if !verbose {
			continue
		}
		payload, err := ir.MarshalCanonical(env.Payload)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to encode payload at ordinal %d", env.ReplayOrdinal), err)
		}
		fmt.Fprintf(w, "        payload_hash=%s\n        %s\n", env.PayloadHash, payload)
	}
	return nil
}

// eventSubject names the object an event is about.
func eventSubject(payload ir.IRObject) string {
	for _, key := range []string{"stable_id", "chunk_id", "package_id"} {
		if s := payload.GetString(key); s != "" {
			return s
		}
	}
	return "-"
}
