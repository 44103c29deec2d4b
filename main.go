package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/factcheck-relay/internal/check"
	"github.com/dtnitsch/factcheck-relay/internal/db"
	"github.com/dtnitsch/factcheck-relay/internal/scan"
	"github.com/dtnitsch/factcheck-relay/internal/serve"
	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/help"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	formatFlag := func(def, usage string) *cli.StringFlag {
		return &cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: def, Usage: usage}
	}

	return &cli.App{
		Name:  "fcr",
		Usage: "Fact-check relay: verify text, images and videos against a fact-check backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "Path to the YAML config file"},
			&cli.StringFlag{Name: "db", Usage: "Path to the settings/history database", EnvVars: []string{"FCR_DB_PATH"}},
			&cli.StringFlag{Name: "api-base-url", Usage: "Backend base URL (stored only if none is set)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Only log errors"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Run a user-initiated verification",
				Subcommands: []*cli.Command{
					{
						Name:      "text",
						Usage:     "Fact-check text (args, or stdin with -)",
						ArgsUsage: "[text...]",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "page", Usage: "Page the text was selected on", Value: check.DefaultPage},
							formatFlag("text", "Output format: text or json"),
						},
						Action: check.TextAction,
					},
					{
						Name:      "image",
						Usage:     "Check whether an image is AI-generated",
						ArgsUsage: "<image-url>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "page", Usage: "Page the image appears on (default: the image URL)"},
							formatFlag("text", "Output format: text or json"),
						},
						Action: check.ImageAction,
					},
					{
						Name:      "video",
						Usage:     "Analyse a video page",
						ArgsUsage: "<page-url>",
						Flags: []cli.Flag{
							formatFlag("text", "Output format: text or json"),
						},
						Action: check.VideoAction,
					},
					{
						Name:   "health",
						Usage:  "Probe the backend health endpoint",
						Action: check.HealthAction,
					},
				},
			},
			{
				Name:      "scan",
				Usage:     "Passively scan pages and warn on low accuracy",
				ArgsUsage: "[url...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "urls", Usage: "Comma-separated URLs to scan"},
					&cli.BoolFlag{Name: "article", Usage: "Extract the main article instead of all visible text"},
					&cli.StringFlag{Name: "cache-dir", Usage: "Directory for cached page text (empty disables caching)"},
					&cli.BoolFlag{Name: "refresh", Usage: "Drop cached page text for these URLs before scanning"},
					&cli.DurationFlag{Name: "cache-ttl", Value: time.Hour, Usage: "How long cached page text stays fresh (0 = forever)"},
					&cli.IntFlag{Name: "concurrency", Aliases: []string{"c"}, Value: 4, Usage: "Pages scanned at once"},
					formatFlag("text", "Output format: text or json"),
				},
				Action: scan.ScanAction,
			},
			{
				Name:  "settings",
				Usage: "Read and change the settings store",
				Subcommands: []*cli.Command{
					{Name: "list", Usage: "Print all settings as YAML", Action: db.SettingsListAction},
					{Name: "get", Usage: "Print one setting", ArgsUsage: "<key>", Action: db.SettingsGetAction},
					{Name: "set", Usage: "Change one setting", ArgsUsage: "<key> <value>", Action: db.SettingsSetAction},
				},
			},
			{
				Name:  "history",
				Usage: "List recorded checks",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum rows"},
					&cli.StringFlag{Name: "outcome", Usage: "Filter: succeeded, failed or rejected"},
					&cli.StringFlag{Name: "domain", Usage: "Filter by origin domain"},
					formatFlag("table", "Output format: table or yaml"),
				},
				Action: db.HistoryAction,
				Subcommands: []*cli.Command{
					{Name: "show", Usage: "Show one check (default: latest)", ArgsUsage: "[check-id]", Action: db.ShowCheckAction},
					{Name: "stats", Usage: "Outcome and classification counts", Action: db.StatsAction},
				},
			},
			{
				Name:  "serve",
				Usage: "Run the HTTP bridge for the browser extension",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address (default " + models.DefaultListenAddr + ")"},
				},
				Action: serve.ServeAction,
			},
			{
				Name:  "quickstart",
				Usage: "Print a YAML quick reference",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprint(c.App.Writer, help.ColdstartYAML)
					return err
				},
			},
		},
	}
}
