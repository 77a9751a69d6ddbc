package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jdziat/simple-qr-jobs/internal/app"
	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/export"
)

// ExportAction bundles the results of --job, or the history, and writes the
// bundle into the output directory.
func ExportAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results, name, err := exportSource(ctx, cmd, a)
	if err != nil {
		return err
	}

	opts, err := exportOptions(ctx, cmd, a)
	if err != nil {
		return err
	}
	if opts.Filename == "" {
		opts.Filename = name
	}
	w := stdout(cmd)
	if cmd.Bool("progress") {
		opts.Progress = func(p export.Progress) {
			fmt.Fprintf(w, "%-12s %d/%d\n", p.Stage, p.Current, p.Total)
		}
	}

	out, err := a.Bundler.Export(ctx, results, opts)
	if err != nil {
		return err
	}
	if err := export.Deliver(ctx, out, a.Sink); err != nil {
		return err
	}
	fmt.Fprintf(w, "exported %d codes to %s (%d bytes)\n", out.Count, out.Filename, out.Size)
	return nil
}

func exportSource(ctx context.Context, cmd *cli.Command, a *app.App) ([]*core.GenerationResult, string, error) {
	if id := cmd.String("job"); id != "" {
		job, err := a.Scheduler.GetJob(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return job.Results, job.Name, nil
	}
	if q := cmd.String("search"); q != "" {
		results, err := a.Store.SearchHistory(ctx, q)
		return results, "", err
	}
	results, err := a.Store.GetHistory(ctx)
	return results, "", err
}

// exportOptions starts from --template, or the settings' export format, and
// applies explicit flags on top.
func exportOptions(ctx context.Context, cmd *cli.Command, a *app.App) (export.Options, error) {
	var opts export.Options
	if name := cmd.String("template"); name != "" {
		p, err := a.Templates.Get(ctx, name)
		if err != nil {
			return opts, err
		}
		opts = p.Options()
	} else {
		settings, err := a.Store.GetSettings(ctx)
		if err != nil {
			return opts, err
		}
		opts.Format = export.Format(settings.ExportFormat)
	}
	if cmd.IsSet("format") {
		opts.Format = export.Format(strings.ToLower(cmd.String("format")))
	}
	if cmd.IsSet("naming") {
		opts.Naming = export.NamingByName(cmd.String("naming"))
	}
	if cmd.IsSet("metadata") {
		opts.IncludeMetadata = cmd.Bool("metadata")
	}
	if cmd.IsSet("compression") {
		opts.Compression = export.Compression(cmd.String("compression"))
	}
	opts.Filename = cmd.String("filename")
	opts.Title = cmd.String("title")
	return opts, nil
}

// TemplatesListAction prints built-in and saved presets.
func TemplatesListAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	presets, err := a.Templates.List(ctx)
	if err != nil {
		return err
	}
	table := newTable(cmd, "Name", "Format", "Naming", "Metadata", "Builtin", "Description")
	for _, p := range presets {
		table.Append(p.Name, string(p.Format), p.Naming,
			fmt.Sprint(p.IncludeMetadata), fmt.Sprint(p.Builtin), p.Description)
	}
	return table.Render()
}

// TemplatesSaveAction stores a preset named by the first argument.
func TemplatesSaveAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one template name")
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	p := export.Preset{
		Name:            cmd.Args().First(),
		Description:     cmd.String("description"),
		Format:          export.Format(strings.ToLower(cmd.String("format"))),
		Naming:          cmd.String("naming"),
		IncludeMetadata: cmd.Bool("metadata"),
		Compression:     export.Compression(cmd.String("compression")),
	}
	if err := a.Templates.Save(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "saved template %q\n", p.Name)
	return nil
}

// TemplatesDeleteAction removes the saved preset named by the first argument.
func TemplatesDeleteAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one template name")
	}
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Templates.Delete(ctx, cmd.Args().First())
}
