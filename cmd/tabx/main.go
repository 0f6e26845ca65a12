package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tabx-cli/tabx/internal/config"
	"github.com/tabx-cli/tabx/internal/logging"
	"github.com/tabx-cli/tabx/internal/orchestrator"
	"github.com/tabx-cli/tabx/internal/util"
	"github.com/tabx-cli/tabx/internal/version"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    version.Name,
		Usage:   "Asynchronous table exports from the admin Data API",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "tabx.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.BoolFlag{
				Name:  "demo",
				Usage: "Use the embedded demo catalog instead of a remote API",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "tables",
				Usage:  "List exportable tables",
				Action: listTables,
			},
			{
				Name:      "schema",
				Usage:     "Show a table's columns and export policy",
				ArgsUsage: "<table>",
				Action:    showSchema,
			},
			{
				Name:   "export",
				Usage:  "Run an export without the interactive wizard",
				Action: runExport,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "table",
						Aliases:  []string{"t"},
						Usage:    "Table to export",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "columns",
						Usage: "Comma-separated columns (default: all exportable)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, json, excel, xml)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum rows to export",
					},
					&cli.StringFlag{
						Name:  "search",
						Usage: "Free-text search filter",
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "Filter clause as column:op:value (repeatable)",
					},
				},
			},
			{
				Name:   "wizard",
				Usage:  "Run the interactive export wizard",
				Action: runWizard,
			},
			{
				Name:      "status",
				Usage:     "Show the status of an export job",
				ArgsUsage: "<job-id>",
				Action:    showStatus,
			},
			{
				Name:      "download",
				Usage:     "Download a completed export job",
				ArgsUsage: "<job-id>",
				Action:    downloadJob,
			},
			{
				Name:  "history",
				Usage: "List recorded export runs, or view one run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
				},
				Action: showHistory,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads configuration, applies flag overrides, configures logging,
// and wires the orchestrator.
func setup(c *cli.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := config.LoadWithOptions(c.String("config"), config.LoadOptions{
		ForceDemo: c.Bool("demo"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Logging.Format)

	return orchestrator.New(cfg)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nInterrupted.")
		cancel()
	}()

	return ctx, cancel
}

func listTables(c *cli.Context) error {
	orch, err := setup(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return orch.ListTables(ctx)
}

func showSchema(c *cli.Context) error {
	table := c.Args().First()
	if table == "" {
		return fmt.Errorf("usage: %s schema <table>", version.Name)
	}

	orch, err := setup(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return orch.ShowSchema(ctx, table)
}

func runExport(c *cli.Context) error {
	orch, err := setup(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	req, err := orch.PrepareRequest(ctx,
		c.String("table"),
		util.SplitCSV(c.String("columns")),
		c.String("format"),
		c.Int("limit"),
		c.String("search"),
		c.StringSlice("filter"))
	if err != nil {
		return err
	}

	return orch.RunExport(ctx, req)
}

func runWizard(c *cli.Context) error {
	orch, err := setup(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	return orch.RunWizard()
}

func showStatus(c *cli.Context) error {
	jobID := c.Args().First()
	if jobID == "" {
		return fmt.Errorf("usage: %s status <job-id>", version.Name)
	}

	orch, err := setup(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return orch.ShowJobStatus(ctx, jobID)
}

func downloadJob(c *cli.Context) error {
	jobID := c.Args().First()
	if jobID == "" {
		return fmt.Errorf("usage: %s download <job-id>", version.Name)
	}

	orch, err := setup(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return orch.Download(ctx, jobID)
}

func showHistory(c *cli.Context) error {
	orch, err := setup(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	if runID := c.String("run"); runID != "" {
		return orch.ShowRunDetails(runID)
	}
	return orch.ShowHistory()
}
