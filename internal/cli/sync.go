package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/thureinphyoecoder/larapee-sync/internal/api"
	"github.com/thureinphyoecoder/larapee-sync/internal/engine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	APIBaseURL string
	Token      string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the order API",
		Long: `Drain pending outbox entries against the remote order API, oldest first.

Each delivered order is folded back into the local cache under its
server-assigned id. Failed entries stay pending (or go dead at the retry
ceiling) and are listed with a recommended next action.

Example:
  larapee-sync sync --db ./larapee.db --api https://api.example.com/v1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.APIBaseURL, "api", "", "order API base URL (default from LARAPEE_API_BASE_URL)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token (default from LARAPEE_API_TOKEN)")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	cfg, st, log, err := opts.setup()
	if err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	defer st.Close()
	defer log.Sync()

	baseURL := cfg.API.BaseURL
	if opts.APIBaseURL != "" {
		baseURL = opts.APIBaseURL
	}
	if baseURL == "" {
		return NewExitError(ExitCommandError, "no API base URL configured (--api or LARAPEE_API_BASE_URL)")
	}
	token := cfg.API.Token
	if opts.Token != "" {
		token = opts.Token
	}

	client := api.NewClient(time.Duration(cfg.API.TimeoutSeconds)*time.Second, log)
	eng := engine.New(st, client, log, engine.Config{
		RetryCeiling: cfg.Sync.RetryCeiling,
		BatchLimit:   cfg.Sync.BatchLimit,
	})

	res, err := eng.Sync(cmd.Context(), baseURL, token)
	if err != nil {
		return WrapExitError(ExitCommandError, "sync failed", err)
	}

	if err := printResult(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) {
		fmt.Fprintf(w, "Synced: %d  Failed: %d  Pending: %d\n", res.Synced, res.Failed, res.Pending)
		if res.LastSyncAt != nil {
			fmt.Fprintf(w, "Last sync: %s\n", res.LastSyncAt.Format(time.RFC3339))
		}
		for _, issue := range res.Issues {
			fmt.Fprintf(w, "entry %d: %s -> %s\n", issue.EntryID, issue.Error, issue.Recommendation)
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}

	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d entries failed to sync", res.Failed))
	}
	return nil
}
