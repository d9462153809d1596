package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/STTM-NSU/demo-trading/internal/quote"
	"github.com/spf13/cobra"
)

var quoteSearch bool

var quoteCmd = &cobra.Command{
	Use:   "quote <symbol>...",
	Short: "Fetch current prices through the configured quote provider",
	Example: `  demo-trading quote AAPL TSLA
  demo-trading quote --search tesla`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		oracle, stop, err := newOracle(cmd.Context())
		if err != nil {
			return err
		}
		defer stop()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

		if quoteSearch {
			matches, err := oracle.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "SYMBOL\tNAME\tTYPE\tREGION")
			for _, m := range matches {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Symbol, m.Name, m.Type, m.Region)
			}
			return w.Flush()
		}

		fmt.Fprintln(w, "SYMBOL\tPRICE")
		for _, s := range args {
			price, err := oracle.CurrentPrice(cmd.Context(), s)
			if err != nil {
				fmt.Fprintf(w, "%s\t%s\n", quote.NormalizeSymbol(s), err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\n", quote.NormalizeSymbol(s), price)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().BoolVarP(&quoteSearch, "search", "s", false, "search symbols by keywords instead")
}
