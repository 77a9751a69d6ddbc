package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jdziat/simple-qr-jobs/internal/app"
	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/generator"
	"github.com/jdziat/simple-qr-jobs/pkg/security"
)

// GenerateAction renders one QR code from --text or the arguments.
func GenerateAction(ctx context.Context, cmd *cli.Command) error {
	text := cmd.String("text")
	if text == "" {
		text = strings.Join(cmd.Args().Slice(), " ")
	}
	kind := core.Kind(cmd.String("kind"))
	if kind == "" {
		kind = generator.DetectKind(text)
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		return err
	}
	res, err := a.Generator.Generate(ctx, text, renderOptions(cmd, settings.RenderOptions()), kind)
	if err != nil {
		return err
	}
	return deliverResult(ctx, cmd, a, res, settings.SaveHistory)
}

// GenerateWiFiAction renders a WiFi join code.
func GenerateWiFiAction(ctx context.Context, cmd *cli.Command) error {
	return generatePayload(ctx, cmd, generator.WiFiPayload{
		SSID:     cmd.String("ssid"),
		Password: cmd.String("password"),
		Security: wifiSecurity(cmd.String("security")),
		Hidden:   cmd.Bool("hidden"),
	})
}

// GenerateEmailAction renders a mailto code.
func GenerateEmailAction(ctx context.Context, cmd *cli.Command) error {
	return generatePayload(ctx, cmd, generator.EmailPayload{
		To:      cmd.String("to"),
		Subject: cmd.String("subject"),
		Body:    cmd.String("body"),
	})
}

// GenerateSMSAction renders a prefilled text message code.
func GenerateSMSAction(ctx context.Context, cmd *cli.Command) error {
	return generatePayload(ctx, cmd, generator.SMSPayload{
		Number:  cmd.String("number"),
		Message: cmd.String("message"),
	})
}

func generatePayload(ctx context.Context, cmd *cli.Command, p generator.Payload) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		return err
	}
	res, err := a.Generator.GeneratePayload(ctx, p, renderOptions(cmd, settings.RenderOptions()))
	if err != nil {
		return err
	}
	return deliverResult(ctx, cmd, a, res, settings.SaveHistory)
}

func deliverResult(ctx context.Context, cmd *cli.Command, a *app.App, res *core.GenerationResult, save bool) error {
	if save {
		if err := a.Store.AddToHistory(ctx, res); err != nil {
			a.Logger.Warn("failed to save history", "error", err)
		}
	}
	name := cmd.String("output")
	if name == "" {
		name = "qr_" + security.SanitizeFilename(res.ID)
	}
	name = strings.TrimSuffix(name, ".png") + ".png"
	if err := a.Sink.DownloadFile(ctx, res.ImageData, name); err != nil {
		return err
	}
	if cmd.Bool("copy") {
		a.Notifier.CopyImage(ctx, res.ImageData)
	}
	fmt.Fprintf(stdout(cmd), "%s\t%s\t%s\n", res.ID, res.Kind, res.Title)
	return nil
}

func wifiSecurity(s string) string {
	switch strings.ToLower(s) {
	case "", "wpa", "wpa2", "wpa3":
		return generator.SecurityWPA
	case "wep":
		return generator.SecurityWEP
	case "none", "open", "nopass":
		return generator.SecurityOpen
	}
	return s
}
