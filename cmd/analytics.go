package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/apilog-dashboard/internal/apiclient"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

// newAnalyticsCmd creates the 'analytics' subcommand that prints the
// aggregate views of the request log.
func newAnalyticsCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Prints latency, status code and traffic summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := logs.ParseGranularity(period)
			if err != nil {
				return err
			}
			return runAnalyticsCommand(cmd, g)
		},
	}
	cmd.Flags().StringVar(&period, "type", string(logs.GranularityDay), "traffic bucket: day, week or month")
	return cmd
}

func runAnalyticsCommand(cmd *cobra.Command, g logs.Granularity) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	stopTracing := startTracing(cmd.Context(), e)
	defer stopTracing()
	client, err := apiclient.New(
		e.cfg.Client.BaseURL,
		apiclient.Credentials{Token: e.cfg.Client.Token, UserID: e.cfg.Client.UserID},
		apiclient.WithTimeout(e.cfg.Client.RequestTimeout),
		apiclient.WithLogger(e.logger.Named("apiclient")),
	)
	if err != nil {
		return err
	}
	ctx, span := telemetry.Tracer().Start(cmd.Context(), "apilog.analytics")
	defer span.End()

	stats := client.Analytics()
	latency, err := stats.AvgResponseTime(ctx)
	if err != nil {
		return err
	}
	codes, err := stats.StatusCodeBreakdown(ctx)
	if err != nil {
		return err
	}
	periods, err := stats.RequestsPer(ctx, g)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tAVG RESPONSE")
	for _, row := range latency {
		fmt.Fprintf(tw, "%s\t%.1fms\n", row.Endpoint, row.AvgTime)
	}
	fmt.Fprintln(tw, "\nSTATUS\tREQUESTS")
	for _, row := range codes {
		fmt.Fprintf(tw, "%d\t%d\n", row.StatusCode, row.Count)
	}
	fmt.Fprintf(tw, "\n%s\tREQUESTS\n", periodHeader(g))
	for _, row := range periods {
		fmt.Fprintf(tw, "%s\t%d\n", row.Period, row.Count)
	}
	return tw.Flush()
}

func periodHeader(g logs.Granularity) string {
	switch g {
	case logs.GranularityWeek:
		return "WEEK"
	case logs.GranularityMonth:
		return "MONTH"
	default:
		return "DAY"
	}
}
