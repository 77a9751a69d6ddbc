// Package commands implements the qrjobs CLI actions.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jdziat/simple-qr-jobs/internal/app"
	"github.com/jdziat/simple-qr-jobs/internal/config"
	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// openApp loads configuration from the --env file and builds the services.
func openApp(ctx context.Context, cmd *cli.Command) (*app.App, error) {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return nil, err
	}
	if dir := cmd.String("out-dir"); dir != "" {
		cfg.OutputDir = dir
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return a, nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func newTable(cmd *cli.Command, header ...any) *tablewriter.Table {
	table := tablewriter.NewWriter(stdout(cmd))
	table.Header(header...)
	return table
}

func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "size", Usage: "image width in pixels (default from settings)"},
		&cli.IntFlag{Name: "margin", Usage: "quiet zone in modules (default from settings)", Value: -1},
		&cli.StringFlag{Name: "fg", Usage: "foreground color #rrggbb"},
		&cli.StringFlag{Name: "bg", Usage: "background color #rrggbb"},
		&cli.StringFlag{Name: "level", Usage: "error correction level L, M, Q or H"},
	}
}

// renderOptions overlays render flags on the stored defaults.
func renderOptions(cmd *cli.Command, defaults core.RenderOptions) core.RenderOptions {
	opts := defaults
	if v := cmd.Int("size"); v > 0 {
		opts.Size = v
	}
	if v := cmd.Int("margin"); v >= 0 {
		opts.Margin = v
	}
	if v := cmd.String("fg"); v != "" {
		opts.Foreground = v
	}
	if v := cmd.String("bg"); v != "" {
		opts.Background = v
	}
	if v := cmd.String("level"); v != "" {
		opts.ErrorCorrection = core.ErrorCorrection(strings.ToUpper(v))
	}
	return opts
}

func shorten(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
