package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/jdziat/simple-qr-jobs/pkg/analytics"
)

// AnalyticsInsightsAction prints the aggregated report.
func AnalyticsInsightsAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Analytics.Aggregate(ctx); err != nil {
		a.Logger.Warn("aggregation failed", "error", err)
	}
	report, err := a.Analytics.ExportInsights(ctx)
	if err != nil {
		return err
	}

	w := stdout(cmd)
	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "analytics enabled: %t, %d events\n", report.Enabled, report.TotalEvents)
	events := newTable(cmd, "Category", "Event", "Count")
	for _, c := range report.Events {
		events.Append(c.Category, c.Name, strconv.FormatInt(c.Count, 10))
	}
	if err := events.Render(); err != nil {
		return err
	}
	if len(report.TopKinds) > 0 {
		kinds := newTable(cmd, "Kind", "Count")
		for _, k := range report.TopKinds {
			kinds.Append(k.Kind, strconv.FormatInt(k.Count, 10))
		}
		if err := kinds.Render(); err != nil {
			return err
		}
	}
	period := analytics.Period(cmd.String("period"))
	if rows := report.Periods[period]; len(rows) > 0 {
		table := newTable(cmd, "Bucket", "Total")
		for _, r := range rows {
			table.Append(r.Bucket, strconv.FormatInt(r.Total, 10))
		}
		return table.Render()
	}
	return nil
}

// AnalyticsAggregateAction rolls raw events into summaries now.
func AnalyticsAggregateAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Analytics.Aggregate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout(cmd), "aggregated")
	return nil
}

// AnalyticsPurgeAction deletes events older than --older-than.
func AnalyticsPurgeAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	n := a.Analytics.PurgeOlderThan(ctx, cmd.Duration("older-than"))
	fmt.Fprintf(stdout(cmd), "purged %d events\n", n)
	return nil
}
