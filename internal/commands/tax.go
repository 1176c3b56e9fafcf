package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
)

func newTaxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tax",
		Short: "Tax calculations",
	}
	cmd.AddCommand(newTaxCalcCommand())
	return cmd
}

func newTaxCalcCommand() *cobra.Command {
	var supply, rate, currency string
	var inclusive bool

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Split an amount into supply, tax and total",
		Example: `  bookkeeper tax calc --supply 10000 --rate 10
  bookkeeper tax calc --supply 11000 --rate 10 --inclusive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(supply)
			if err != nil {
				return fmt.Errorf("invalid --supply %q", supply)
			}
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("invalid --rate %q", rate)
			}
			cur, err := ledger.ParseCurrency(currency)
			if err != nil {
				return err
			}
			engine := posting.New(cur)
			var calc posting.TaxCalculation
			if inclusive {
				calc, err = engine.CalculateInclusive(amount, r)
			} else {
				calc, err = engine.Calculate(amount, r)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "supply: %s\n", cur.Format(calc.SupplyAmount))
			fmt.Fprintf(out, "rate:   %s%%\n", calc.TaxRate)
			fmt.Fprintf(out, "tax:    %s\n", cur.Format(calc.TaxAmount))
			fmt.Fprintf(out, "total:  %s\n", cur.Format(calc.TotalAmount))
			return nil
		},
	}

	cmd.Flags().StringVar(&supply, "supply", "", "supply amount (gross amount with --inclusive)")
	_ = cmd.MarkFlagRequired("supply")
	cmd.Flags().StringVar(&rate, "rate", "", "tax rate in percent")
	_ = cmd.MarkFlagRequired("rate")
	cmd.Flags().BoolVar(&inclusive, "inclusive", false, "treat --supply as tax-inclusive")
	cmd.Flags().StringVar(&currency, "currency", "KRW", "currency whose minor unit sets the rounding")

	return cmd
}
