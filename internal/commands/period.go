package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
)

func newPeriodCommand() *cobra.Command {
	var reportType, key string

	cmd := &cobra.Command{
		Use:   "period",
		Short: "Resolve a tax report period key to its date range",
		Example: `  bookkeeper period --type quarterly --key 2024-q1
  bookkeeper period --type monthly`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := ledger.ReportType(reportType)
			if key == "" {
				key = posting.CurrentPeriodKey(rt, time.Now())
			}
			p, err := posting.ResolvePeriod(posting.PeriodDescriptor{ReportType: rt, Key: strings.ToLower(strings.TrimSpace(key))})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s .. %s\n", rt, strings.ToLower(key), p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))
			return nil
		},
	}

	cmd.Flags().StringVar(&reportType, "type", "quarterly", "monthly, quarterly, half_yearly or yearly")
	cmd.Flags().StringVar(&key, "key", "", "period key such as 2024-03, 2024-q1, 2024-h2 or 2024 (default current period)")

	return cmd
}
