package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/formflow/metric"
)

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize navigation counters from a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _ := cmd.Flags().GetString("url")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			families, err := metric.Scrape(ctx, &http.Client{}, url)
			if err != nil {
				return err
			}
			summaries := metric.Summarize(families)

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "FLOW\tSUBMITTED\tDECISIONS\tVALIDATION FAILURES\tREDIRECTS")
			for _, s := range summaries {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", s.Flow, s.Submitted,
					formatCounts(s.Decisions), formatCounts(s.ValidationFailures), formatCounts(s.PolicyRedirects))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("url", "http://localhost:9090/metrics", "Metrics endpoint of a formflow server")
	cmd.Flags().Duration("timeout", 5*time.Second, "Scrape timeout")
	cmd.Flags().Bool("json", false, "Print the summary as JSON")
	return cmd
}

// formatCounts renders a label->count map as "a=1 b=2"
func formatCounts(counts map[string]uint64) string {
	if len(counts) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
