package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/store"
)

// SettingsShowAction prints the effective settings and storage usage.
func SettingsShowAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.Store.GetSettings(ctx)
	if err != nil {
		return err
	}
	table := newTable(cmd, "Setting", "Value")
	table.Append("defaultSize", strconv.Itoa(s.Size))
	table.Append("defaultMargin", strconv.Itoa(s.Margin))
	table.Append("foregroundColor", s.Foreground)
	table.Append("backgroundColor", s.Background)
	table.Append("errorCorrectionLevel", string(s.ErrorCorrection))
	table.Append("historyLimit", strconv.Itoa(s.HistoryLimit))
	table.Append("saveHistory", strconv.FormatBool(s.SaveHistory))
	table.Append("analyticsEnabled", strconv.FormatBool(s.AnalyticsEnabled))
	table.Append("exportFormat", s.ExportFormat)
	table.Append("batchConcurrency", strconv.Itoa(s.BatchConcurrency))
	if usage, err := a.Store.Usage(ctx); err == nil {
		quota := "unbounded"
		if usage.Quota > 0 {
			quota = strconv.FormatInt(usage.Quota, 10)
		}
		table.Append("storage", fmt.Sprintf("%d bytes used, quota %s", usage.BytesUsed, quota))
	}
	return table.Render()
}

// SettingsSetAction applies key=value arguments as one update.
func SettingsSetAction(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("expected key=value arguments")
	}
	var patch store.SettingsPatch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("%q is not key=value", arg)
		}
		if err := setField(&patch, key, value); err != nil {
			return err
		}
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.UpdateSettings(ctx, patch); err != nil {
		return err
	}
	fmt.Fprintln(stdout(cmd), "settings updated")
	return nil
}

// SettingsResetAction restores the defaults.
func SettingsResetAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Store.ResetSettings(ctx)
}

func setField(p *store.SettingsPatch, key, value string) error {
	intValue := func() (*int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &n, nil
	}
	boolValue := func() (*bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &b, nil
	}

	var err error
	switch key {
	case "defaultSize", "size":
		p.Size, err = intValue()
	case "defaultMargin", "margin":
		p.Margin, err = intValue()
	case "foregroundColor", "fg":
		p.Foreground = &value
	case "backgroundColor", "bg":
		p.Background = &value
	case "errorCorrectionLevel", "level":
		level := core.ErrorCorrection(strings.ToUpper(value))
		p.ErrorCorrection = &level
	case "historyLimit":
		p.HistoryLimit, err = intValue()
	case "saveHistory":
		p.SaveHistory, err = boolValue()
	case "analyticsEnabled", "analytics":
		p.AnalyticsEnabled, err = boolValue()
	case "exportFormat":
		p.ExportFormat = &value
	case "batchConcurrency", "concurrency":
		p.BatchConcurrency, err = intValue()
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return err
}
