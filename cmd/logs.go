package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/apilog-dashboard/internal/apiclient"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

type logsOptions struct {
	page      int
	limit     int
	sortBy    string
	sortOrder string
	filters   map[string]string
}

// newLogsCmd creates the 'logs' subcommand that prints one page of logs.
func newLogsCmd() *cobra.Command {
	opts := &logsOptions{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints a page of API request logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogsCommand(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&opts.limit, "limit", 10, "entries per page")
	cmd.Flags().StringVar(&opts.sortBy, "sort-by", logs.SortTimestamp, "sort column")
	cmd.Flags().StringVar(&opts.sortOrder, "sort-order", "desc", "asc or desc")
	cmd.Flags().StringToStringVarP(&opts.filters, "filter", "f", nil,
		"filter as key=value (fromDate, toDate, statusCode, method, endpoint)")
	return cmd
}

func runLogsCommand(cmd *cobra.Command, opts *logsOptions) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	filters, err := parseFilters(opts.filters)
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
	ctx, span := telemetry.Tracer().Start(cmd.Context(), "apilog.logs")
	defer span.End()

	page, err := client.Logs().Query(ctx, logs.Query{
		Page:      opts.page,
		Limit:     opts.limit,
		SortBy:    opts.sortBy,
		SortOrder: opts.sortOrder,
		Filters:   filters,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tMETHOD\tENDPOINT\tSTATUS\tRESPONSE")
	for _, entry := range page.Logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\n",
			entry.Timestamp.Format(time.RFC3339), entry.Method, entry.Endpoint, entry.StatusCode, entry.ResponseTime)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(page.Logs), page.Total)
	return nil
}
