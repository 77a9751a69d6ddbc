package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Count is the number of events for one category/name pair.
type Count struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Count    int64  `json:"count"`
}

// KindCount is how often a QR kind appeared in recorded events.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// PeriodSummary totals one bucket.
type PeriodSummary struct {
	Bucket     string           `json:"bucket"`
	Start      time.Time        `json:"start"`
	Total      int64            `json:"total"`
	ByCategory map[string]int64 `json:"byCategory"`
}

// Insights is the exported analytics report.
type Insights struct {
	GeneratedAt time.Time                  `json:"generatedAt"`
	Enabled     bool                       `json:"enabled"`
	TotalEvents int64                      `json:"totalEvents"`
	Categories  map[string]int64           `json:"categories"`
	Events      []Count                    `json:"events"`
	TopKinds    []KindCount                `json:"topKinds"`
	Periods     map[Period][]PeriodSummary `json:"periods"`
}

func emptyInsights(at time.Time, enabled bool) *Insights {
	return &Insights{
		GeneratedAt: at,
		Enabled:     enabled,
		Categories:  map[string]int64{},
		Events:      []Count{},
		TopKinds:    []KindCount{},
		Periods:     map[Period][]PeriodSummary{},
	}
}

// ExportInsights builds a report from the retained raw events and the stored
// summaries. Storage failures are logged and yield an empty report; the
// error is only non-nil when ctx is done.
func (a *Aggregator) ExportInsights(ctx context.Context) (*Insights, error) {
	now := a.now()
	report, err := a.insights(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			return emptyInsights(now, a.Enabled()), ctx.Err()
		}
		a.logger.Error("analytics insights failed", "error", err)
		return emptyInsights(now, a.Enabled()), nil
	}
	return report, nil
}

func (a *Aggregator) insights(ctx context.Context, now time.Time) (*Insights, error) {
	events, err := a.storage.Events(ctx, now.Add(-a.retention))
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	report := emptyInsights(now, a.Enabled())
	pairs := make(map[[2]string]int64)
	kinds := make(map[string]int64)
	for _, e := range events {
		report.TotalEvents++
		report.Categories[e.Category]++
		pairs[[2]string{e.Category, e.Name}]++
		if k, ok := e.Properties["kind"].(string); ok && k != "" {
			kinds[k]++
		}
	}
	for p, n := range pairs {
		report.Events = append(report.Events, Count{Category: p[0], Name: p[1], Count: n})
	}
	sort.Slice(report.Events, func(i, j int) bool {
		if report.Events[i].Count != report.Events[j].Count {
			return report.Events[i].Count > report.Events[j].Count
		}
		if report.Events[i].Category != report.Events[j].Category {
			return report.Events[i].Category < report.Events[j].Category
		}
		return report.Events[i].Name < report.Events[j].Name
	})
	for k, n := range kinds {
		report.TopKinds = append(report.TopKinds, KindCount{Kind: k, Count: n})
	}
	sort.Slice(report.TopKinds, func(i, j int) bool {
		if report.TopKinds[i].Count != report.TopKinds[j].Count {
			return report.TopKinds[i].Count > report.TopKinds[j].Count
		}
		return report.TopKinds[i].Kind < report.TopKinds[j].Kind
	})

	for _, period := range Periods {
		rows, err := a.storage.Summaries(ctx, period, now.Add(-a.retention))
		if err != nil {
			return nil, fmt.Errorf("load %s summaries: %w", period, err)
		}
		var out []PeriodSummary
		index := make(map[string]int)
		for _, row := range rows {
			i, ok := index[row.Bucket]
			if !ok {
				i = len(out)
				index[row.Bucket] = i
				out = append(out, PeriodSummary{
					Bucket:     row.Bucket,
					Start:      row.BucketStart,
					ByCategory: map[string]int64{},
				})
			}
			out[i].Total += row.Count
			out[i].ByCategory[row.Category] += row.Count
		}
		report.Periods[period] = out
	}
	return report, nil
}
