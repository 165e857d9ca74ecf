package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sparkify/internal/pipeline"
	"sparkify/internal/schema"
	"sparkify/internal/ui"
)

var createTablesYes bool

// createTablesCmd represents the create-tables command
var createTablesCmd = &cobra.Command{
	Use:   "create-tables",
	Short: "Drop and recreate the staging and star schema tables",
	Long: `Create-tables drops every staging and analytics table and creates them
again, empty. All previously loaded data is lost.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, stmts, err := loadTarget(schema.Options{})
		if err != nil {
			return err
		}

		if !createTablesYes {
			ok, err := ui.Confirm(fmt.Sprintf("Drop and recreate all %d tables on %s?", len(stmts.Create()), settings.Target), false)
			if err != nil {
				return err
			}
			if !ok {
				ui.ShowInfo("Nothing changed")
				return nil
			}
		}

		svc, err := openWarehouse(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		opts := []pipeline.Option{pipeline.WithLogger(logger)}
		if !quiet {
			opts = append(opts, pipeline.WithObserver(func(s pipeline.Step) {
				ui.ShowStep(s.Stage, s.Name, s.Rows, s.Duration, s.Status == pipeline.StatusSucceeded)
			}))
		}
		if _, err := pipeline.New(svc, stmts, opts...).CreateTables(ctx); err != nil {
			return err
		}

		if !quiet {
			ui.ShowSuccess(fmt.Sprintf("Recreated %d tables", len(stmts.Create())))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createTablesCmd)
	createTablesCmd.Flags().BoolVarP(&createTablesYes, "yes", "y", false, "do not ask for confirmation")
}
