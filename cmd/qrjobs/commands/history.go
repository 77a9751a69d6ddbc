package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// HistoryListAction prints history entries, newest first.
func HistoryListAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Store.SearchHistory(ctx, cmd.String("search"))
	if err != nil {
		return err
	}
	if limit := cmd.Int("limit"); limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	table := newTable(cmd, "ID", "Type", "Title", "Text", "Created")
	for _, r := range results {
		table.Append(r.ID, string(r.Kind), shorten(r.Title, 30), shorten(r.SourceText, 40), formatTime(r.CreatedAt))
	}
	return table.Render()
}

// HistoryDeleteAction removes the entries named by the arguments.
func HistoryDeleteAction(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("expected at least one history id")
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := stdout(cmd)
	for _, id := range ids {
		found, err := a.Store.DeleteHistoryEntry(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintf(w, "%s: not found\n", id)
			continue
		}
		fmt.Fprintf(w, "%s: deleted\n", id)
	}
	return nil
}

// HistoryClearAction empties the history.
func HistoryClearAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Store.ClearHistory(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout(cmd), "history cleared")
	return nil
}
