package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thureinphyoecoder/larapee-sync/internal/outbox"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	Dead bool
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List queued orders awaiting delivery",
		Long: `List the outbox entries still awaiting delivery, projected as orders
with the negative-id sentinel. With --dead, list dead-lettered entries
instead; these require an explicit requeue or discard.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Dead, "dead", false, "list dead-lettered entries instead")

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
	_, st, log, err := opts.setup()
	if err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	defer st.Close()
	defer log.Sync()

	queue := outbox.New(st, log)

	if opts.Dead {
		entries, err := queue.DeadOrders(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "list dead entries", err)
		}
		return printResult(cmd.OutOrStdout(), opts.Format, entries, func(w io.Writer) {
			if len(entries) == 0 {
				fmt.Fprintln(w, "No dead entries.")
				return
			}
			for _, e := range entries {
				reason := ""
				if e.LastError != nil {
					reason = *e.LastError
				}
				fmt.Fprintf(w, "entry %d (%s, retries %d): %s\n", e.ID, e.EventType, e.Retries, reason)
			}
		})
	}

	orders, err := queue.PendingOrders(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "list pending orders", err)
	}
	return printResult(cmd.OutOrStdout(), opts.Format, orders, func(w io.Writer) {
		if len(orders) == 0 {
			fmt.Fprintln(w, "No pending orders.")
			return
		}
		for _, o := range orders {
			fmt.Fprintf(w, "order %d (%s), estimated total %.2f\n", o.ID, o.Status, o.TotalAmount)
		}
	})
}

// NewRequeueCommand creates the requeue command.
func NewRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue <entry-id>",
		Short: "Reset a dead outbox entry to pending",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeadAction(rootOpts, args[0], cmd, "requeue")
		},
	}
	return cmd
}

// NewDiscardCommand creates the discard command.
func NewDiscardCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard <entry-id>",
		Short: "Delete a dead outbox entry",
		Long: `Delete a dead-lettered entry. This drops an unconfirmed order intent
permanently; prefer requeue unless the order is known to be wrong.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeadAction(rootOpts, args[0], cmd, "discard")
		},
	}
	return cmd
}

func runDeadAction(opts *RootOptions, rawID string, cmd *cobra.Command, action string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid entry id", err)
	}

	_, st, log, err := opts.setup()
	if err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	defer st.Close()
	defer log.Sync()

	queue := outbox.New(st, log)
	if action == "requeue" {
		err = queue.RequeueDead(cmd.Context(), id)
	} else {
		err = queue.DiscardDead(cmd.Context(), id)
	}
	if err != nil {
		return WrapExitError(ExitFailure, action+" failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "entry %d %sd\n", id, action)
	return nil
}
