package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sparkify/internal/config"
	"sparkify/internal/metrics"
	"sparkify/internal/pipeline"
	"sparkify/internal/schema"
	"sparkify/internal/staging"
	"sparkify/internal/ui"
)

var (
	runCreateTables bool
	runShowCounts   bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stage the raw data and load the star schema",
	Long: `Run executes the COPY statements that fill staging_events and staging_songs,
then the INSERT statements that build users, songs, artists, time and finally
songplays. Each statement commits on its own unless --atomic is given. The
first failing statement stops the run.`,
	Example: `  sparkify run --config dwh.cfg
  sparkify run --create-tables --atomic
  sparkify run --target sqlite --sqlite-path local.db --create-tables`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.BoolVar(&runCreateTables, "create-tables", false, "drop and recreate every table before loading")
	flags.Bool("atomic", false, "run every statement in one transaction and roll back on failure")
	flags.String("unmatched", "exclude", "songplays without a catalog match: exclude or keep")
	flags.String("region", "", "AWS region of the S3 bucket, when it differs from the cluster")
	flags.String("pushgateway", "", "Prometheus Pushgateway URL to push run metrics to")
	flags.Duration("timeout", 0, "per-statement timeout, 0 for none")
	flags.BoolVar(&runShowCounts, "counts", false, "print the row count of every table afterwards")

	bindFlags(runCmd, map[string]string{
		"atomic":      "warehouse.atomic",
		"unmatched":   "policy.unmatched",
		"region":      "s3.region",
		"pushgateway": "metrics.pushgateway",
		"timeout":     "warehouse.statement_timeout",
	})
}

func runPipeline(ctx context.Context) error {
	cfg, stmts, err := loadTarget(schema.Options{})
	if err != nil {
		return err
	}

	if !quiet {
		ui.ShowHeader("Sparkify load: " + settings.Target)
	}
	spinner := ui.NewSpinner(fmt.Sprintf("Connecting to %s", settings.Target))
	if !quiet {
		spinner.Start()
	}
	svc, err := openWarehouse(ctx, cfg)
	if err != nil {
		if !quiet {
			spinner.Stop(false, "Connection failed")
		}
		return err
	}
	defer svc.Close()
	if !quiet {
		spinner.Stop(true, fmt.Sprintf("Connected to %s", settings.Target))
	}

	recorder := metrics.NewRecorder()
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(recorder),
		pipeline.WithCreateTables(runCreateTables),
		pipeline.WithAtomic(settings.Atomic),
	}
	if settings.Target == config.TargetSQLite {
		opts = append(opts, pipeline.WithStager(staging.NewLoader(cfg.S3, logger)))
	}
	if !quiet {
		opts = append(opts, pipeline.WithObserver(func(s pipeline.Step) {
			ui.ShowStep(s.Stage, s.Name, s.Rows, s.Duration, s.Status == pipeline.StatusSucceeded)
		}))
	}

	report, runErr := pipeline.New(svc, stmts, opts...).Run(ctx)

	if settings.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := recorder.Push(pushCtx, settings.Pushgateway, report.RunID); err != nil {
			logger.WithError(err).Warn("metrics push failed")
			if !quiet {
				ui.ShowWarning("Could not push metrics to " + settings.Pushgateway)
			}
		}
		cancel()
	}

	if runErr != nil {
		return runErr
	}

	if !quiet {
		fmt.Fprintln(ui.Output)
		ui.RenderReport(ui.Output, report)
		if runShowCounts {
			counts, err := pipeline.New(svc, stmts).TableCounts(ctx)
			if err != nil {
				return err
			}
			ui.RenderCounts(ui.Output, counts)
		}
		ui.ShowSuccess(fmt.Sprintf("Loaded %d rows into the star schema in %s", report.TotalRows(), report.Duration().Round(time.Millisecond)))
	}
	return nil
}
