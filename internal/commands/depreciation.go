package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
)

// maxPreviewPeriods bounds declining-balance schedules, which approach the
// residual value only asymptotically until rounding closes the gap.
const maxPreviewPeriods = 100

func newDepreciationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "depreciation",
		Short: "Depreciation tools",
	}
	cmd.AddCommand(newDepreciationPreviewCommand())
	return cmd
}

func newDepreciationPreviewCommand() *cobra.Command {
	var method, value, residual, from, currency string
	var life int

	cmd := &cobra.Command{
		Use:     "preview",
		Short:   "Print a yearly depreciation schedule",
		Example: `  bookkeeper depreciation preview --method straight_line --value 1200 --life 12`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			purchase, err := decimal.NewFromString(value)
			if err != nil {
				return fmt.Errorf("invalid --value %q", value)
			}
			res, err := decimal.NewFromString(residual)
			if err != nil {
				return fmt.Errorf("invalid --residual %q", residual)
			}
			start := ledger.DateOf(time.Now())
			if from != "" {
				if start, err = time.Parse(time.DateOnly, from); err != nil {
					return fmt.Errorf("invalid --from %q, want YYYY-MM-DD", from)
				}
			}
			cur, err := ledger.ParseCurrency(currency)
			if err != nil {
				return err
			}
			a := ledger.Asset{
				Name:          "preview",
				PurchaseDate:  start,
				PurchaseValue: purchase,
				ResidualValue: res,
				CurrentValue:  purchase,
				Method:        ledger.ParseDepreciationMethod(method),
				UsefulLife:    life,
			}
			rows, err := posting.New(cur).Schedule(a, start, maxPreviewPeriods)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "period\tdate\tamount\tbook value\t")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", r.Period, r.Date.Format(time.DateOnly), cur.Format(r.Amount), cur.Format(r.CurrentValue))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&method, "method", "straight_line", "straight_line or declining_balance")
	cmd.Flags().StringVar(&value, "value", "", "purchase value")
	_ = cmd.MarkFlagRequired("value")
	cmd.Flags().IntVar(&life, "life", 0, "useful life in years")
	_ = cmd.MarkFlagRequired("life")
	cmd.Flags().StringVar(&residual, "residual", "0", "residual value")
	cmd.Flags().StringVar(&from, "from", "", "date of the first period (default today)")
	cmd.Flags().StringVar(&currency, "currency", "KRW", "currency whose minor unit sets the rounding")

	return cmd
}
