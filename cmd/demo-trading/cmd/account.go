package cmd

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/STTM-NSU/demo-trading/internal/portfolio"
	"github.com/spf13/cobra"
)

var historyLimit int

var portfolioCmd = &cobra.Command{
	Use:   "portfolio <user-id>",
	Short: "Show the demo portfolio of a user",
	Long: `Show cash and holdings of a user's demo portfolio. A user without one gets
the default portfolio, the same as on first access through the API.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.service.Portfolio(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "user:    %s\n", p.UserID)
		fmt.Fprintf(out, "cash:    %s %s\n", p.Cash.StringFixed(portfolio.CashPlaces), appCfg.Ledger.Currency)
		fmt.Fprintf(out, "updated: %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))

		symbols := make([]string, 0, len(p.Holdings))
		for s := range p.Holdings {
			symbols = append(symbols, s)
		}
		slices.Sort(symbols)

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tQUANTITY")
		for _, s := range symbols {
			fmt.Fprintf(w, "%s\t%s\n", s, p.Holdings[s])
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "List executed demo orders of a user, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		trades, err := a.service.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tID\tSIDE\tSYMBOL\tQUANTITY\tPRICE")
		for _, t := range trades {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.CreatedAt.Format("2006-01-02 15:04:05"), t.ID, t.Side, t.Symbol, t.Quantity, t.Price.StringFixed(2))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(portfolioCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "max trades to list (default history.limit)")
}
