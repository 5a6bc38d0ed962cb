package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products [query]",
		Short: "Search the locally cached catalog",
		Long: `Search cached products by name or sku (case-insensitive substring), or
list the newest cached products when no query is given. Reads never touch
the network; results reflect the last catalog refresh.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runProducts(rootOpts, query, cmd)
		},
	}

	return cmd
}

func runProducts(opts *RootOptions, query string, cmd *cobra.Command) error {
	_, st, log, err := opts.setup()
	if err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	defer st.Close()
	defer log.Sync()

	products, err := st.SearchProducts(cmd.Context(), query)
	if err != nil {
		return WrapExitError(ExitCommandError, "search products", err)
	}

	return printResult(cmd.OutOrStdout(), opts.Format, products, func(w io.Writer) {
		if len(products) == 0 {
			fmt.Fprintln(w, "No cached products.")
			return
		}
		for _, p := range products {
			fmt.Fprintf(w, "%d  %s  [%s]  (%d variants)\n", p.ID, p.Name, p.SKU, len(p.Variants))
		}
	})
}
