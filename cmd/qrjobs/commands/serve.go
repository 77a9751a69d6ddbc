package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

// ServeAction keeps the services running: interrupted jobs are restarted,
// analytics maintenance runs on schedule and metrics are served on --addr.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range a.StartResumed(ctx) {
		a.Logger.Info("resumed job", "job_id", id)
	}
	addr := cmd.String("addr")
	if addr == "" {
		addr = a.Config.Metrics.Addr
	}
	return a.ServeMetrics(ctx, addr)
}
