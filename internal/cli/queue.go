package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/thureinphyoecoder/larapee-sync/internal/order"
	"github.com/thureinphyoecoder/larapee-sync/internal/outbox"
)

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue <draft.json|->",
		Short: "Queue an order-creation intent for later delivery",
		Long: `Read an order draft (JSON) from a file or stdin, normalize it and record
it in the outbox. Queuing the same order twice returns the existing
pending entry instead of creating a second one.

Draft shape:
  {"phone": "...", "address": "...", "shop_id": 12,
   "items": [{"variant_id": 7, "quantity": 2}]}`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runQueue(opts *RootOptions, path string, cmd *cobra.Command) error {
	var reader io.Reader
	if path == "-" {
		reader = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "open draft file", err)
		}
		defer f.Close()
		reader = f
	}

	var draft order.OrderDraft
	if err := json.NewDecoder(reader).Decode(&draft); err != nil {
		return WrapExitError(ExitCommandError, "parse order draft", err)
	}

	_, st, log, err := opts.setup()
	if err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	defer st.Close()
	defer log.Sync()

	queue := outbox.New(st, log)
	view, err := queue.QueueOrder(cmd.Context(), draft)
	if err != nil {
		return WrapExitError(ExitCommandError, "queue order", err)
	}

	return printResult(cmd.OutOrStdout(), opts.Format, view, func(w io.Writer) {
		fmt.Fprintf(w, "Queued order %d (%s), estimated total %.2f\n", view.ID, view.Status, view.TotalAmount)
	})
}
