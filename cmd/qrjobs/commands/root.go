package commands

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Root returns the qrjobs command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:  "qrjobs",
		Usage: "generate, batch and export QR codes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Usage: "environment file path", Value: ".env"},
			&cli.StringFlag{Name: "out-dir", Usage: "directory downloads are written to (overrides QRJOBS_OUTPUT_DIR)"},
		},
		Commands: []*cli.Command{
			generateCommand(),
			batchCommand(),
			exportCommand(),
			{
				Name:  "history",
				Usage: "inspect generation history",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list history entries",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "search", Usage: "case-insensitive filter on text and title"},
							&cli.IntFlag{Name: "limit", Usage: "maximum entries to print"},
						},
						Action: HistoryListAction,
					},
					{Name: "delete", Usage: "delete entries by id", ArgsUsage: "ID...", Action: HistoryDeleteAction},
					{Name: "clear", Usage: "delete every entry", Action: HistoryClearAction},
				},
			},
			{
				Name:  "settings",
				Usage: "show or change preferences",
				Commands: []*cli.Command{
					{Name: "show", Usage: "print the effective settings", Action: SettingsShowAction},
					{Name: "set", Usage: "update settings", ArgsUsage: "KEY=VALUE...", Action: SettingsSetAction},
					{Name: "reset", Usage: "restore the defaults", Action: SettingsResetAction},
				},
			},
			{
				Name:  "analytics",
				Usage: "local usage analytics",
				Commands: []*cli.Command{
					{
						Name:  "insights",
						Usage: "print the aggregated report",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "json", Usage: "print the report as JSON"},
							&cli.StringFlag{Name: "period", Usage: "roll-up to tabulate: day, week or month", Value: "day"},
						},
						Action: AnalyticsInsightsAction,
					},
					{Name: "aggregate", Usage: "roll raw events into summaries", Action: AnalyticsAggregateAction},
					{
						Name:  "purge",
						Usage: "delete old raw events",
						Flags: []cli.Flag{
							&cli.DurationFlag{Name: "older-than", Usage: "age cutoff", Value: 90 * 24 * time.Hour},
						},
						Action: AnalyticsPurgeAction,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "resume interrupted jobs, run maintenance and serve metrics",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "metrics listen address (default QRJOBS_METRICS_ADDR)"},
				},
				Action: ServeAction,
			},
		},
	}
}

// generateCommand carries the render flags on the parent; payload
// subcommands inherit them.
func generateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "render one QR code",
		ArgsUsage: "[TEXT]",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "text", Usage: "content to encode"},
			&cli.StringFlag{Name: "kind", Usage: "content kind (detected when empty)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "image filename"},
			&cli.BoolFlag{Name: "copy", Usage: "also copy the image to the clipboard"},
		}, renderFlags()...),
		Action: GenerateAction,
		Commands: []*cli.Command{
			{
				Name:  "wifi",
				Usage: "render a WiFi join code",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ssid", Required: true},
					&cli.StringFlag{Name: "password"},
					&cli.StringFlag{Name: "security", Usage: "wpa, wep or open", Value: "wpa"},
					&cli.BoolFlag{Name: "hidden"},
				},
				Action: GenerateWiFiAction,
			},
			{
				Name:  "email",
				Usage: "render a mailto code",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Required: true},
					&cli.StringFlag{Name: "subject"},
					&cli.StringFlag{Name: "body"},
				},
				Action: GenerateEmailAction,
			},
			{
				Name:  "sms",
				Usage: "render a prefilled text message code",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "number", Required: true},
					&cli.StringFlag{Name: "message"},
				},
				Action: GenerateSMSAction,
			},
		},
	}
}

func batchCommand() *cli.Command {
	id := &cli.StringFlag{Name: "id", Usage: "job id", Required: true}
	return &cli.Command{
		Name:  "batch",
		Usage: "run and inspect batch jobs",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "generate codes for many inputs",
				ArgsUsage: "[TEXT...]",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "read one input per line (- for stdin)"},
					&cli.StringFlag{Name: "name", Usage: "job name"},
					&cli.StringFlag{Name: "kind", Usage: "content kind for every input (detected when empty)"},
					&cli.IntFlag{Name: "concurrency", Usage: "parallel tasks (default from settings)"},
					&cli.IntFlag{Name: "retries", Usage: "retry attempts per task"},
					&cli.DurationFlag{Name: "retry-delay", Usage: "base delay between attempts"},
					&cli.DurationFlag{Name: "timeout", Usage: "per-attempt timeout"},
					&cli.BoolFlag{Name: "no-history", Usage: "do not save results to history"},
					&cli.BoolFlag{Name: "optimize", Usage: "run short inputs first"},
					&cli.StringFlag{Name: "export", Usage: "export the results when done (archive, json, csv, printable, gallery)"},
				}, renderFlags()...),
				Action: BatchRunAction,
			},
			{Name: "list", Usage: "list jobs", Action: BatchListAction},
			{Name: "status", Usage: "show job progress", Flags: []cli.Flag{id}, Action: BatchStatusAction},
			{Name: "cancel", Usage: "cancel a running job", Flags: []cli.Flag{id}, Action: BatchCancelAction},
			{Name: "retry", Usage: "rerun failed tasks", Flags: []cli.Flag{id}, Action: BatchRetryAction},
			{Name: "delete", Usage: "delete a job", Flags: []cli.Flag{id}, Action: BatchDeleteAction},
			{Name: "resume", Usage: "restart interrupted jobs", Action: BatchResumeAction},
		},
	}
}

// exportCommand's format flags are inherited by "templates save".
func exportCommand() *cli.Command {
	presetFlags := []cli.Flag{
		&cli.StringFlag{Name: "format", Usage: "archive, json, csv, printable or gallery", Value: "archive"},
		&cli.StringFlag{Name: "naming", Usage: "sequential or timestamp", Value: "sequential"},
		&cli.BoolFlag{Name: "metadata", Usage: "include per-code metadata"},
		&cli.StringFlag{Name: "compression", Usage: "none, fast or best", Value: "fast"},
	}
	return &cli.Command{
		Name:  "export",
		Usage: "bundle results into a downloadable file",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "job", Usage: "export this job's results instead of history"},
			&cli.StringFlag{Name: "search", Usage: "export matching history entries only"},
			&cli.StringFlag{Name: "template", Usage: "start from a saved or built-in template"},
			&cli.StringFlag{Name: "filename", Usage: "download name without extension"},
			&cli.StringFlag{Name: "title", Usage: "heading for HTML formats"},
			&cli.BoolFlag{Name: "progress", Usage: "print progress"},
		}, presetFlags...),
		Action: ExportAction,
		Commands: []*cli.Command{
			{
				Name:  "templates",
				Usage: "manage export templates",
				Commands: []*cli.Command{
					{Name: "list", Usage: "list templates", Action: TemplatesListAction},
					{
						Name:      "save",
						Usage:     "save a template",
						ArgsUsage: "NAME",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "description"},
						},
						Action: TemplatesSaveAction,
					},
					{Name: "delete", Usage: "delete a saved template", ArgsUsage: "NAME", Action: TemplatesDeleteAction},
				},
			},
		},
	}
}
