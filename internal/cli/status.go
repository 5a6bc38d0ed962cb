package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/thureinphyoecoder/larapee-sync/internal/outbox"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Online bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending count and last sync time",
		Long: `Report the sync indicator state: pending outbox entries and the time of
the last successful sync pass. Network reachability is an external signal,
passed in with --online.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Online, "online", false, "report the client as online")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	_, st, log, err := opts.setup()
	if err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	defer st.Close()
	defer log.Sync()

	queue := outbox.New(st, log)
	status, err := queue.Status(cmd.Context(), opts.Online)
	if err != nil {
		return WrapExitError(ExitCommandError, "read status", err)
	}

	return printResult(cmd.OutOrStdout(), opts.Format, status, func(w io.Writer) {
		mode := "offline"
		if status.Online {
			mode = "online"
		}
		fmt.Fprintf(w, "Mode: %s\n", mode)
		fmt.Fprintf(w, "Pending: %d\n", status.Pending)
		if status.LastSyncAt != nil {
			fmt.Fprintf(w, "Last sync: %s\n", status.LastSyncAt.Format(time.RFC3339))
		} else {
			fmt.Fprintln(w, "Last sync: never")
		}
	})
}
