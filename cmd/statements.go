package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sparkify/internal/schema"
	"sparkify/internal/ui"
)

var (
	statementsFormat string
	statementsKind   string
)

// statementsCmd represents the statements command
var statementsCmd = &cobra.Command{
	Use:   "statements",
	Short: "Print the SQL a run would execute",
	Long: `Statements renders every DROP, CREATE, COPY and INSERT statement for the
configured target in execution order, without connecting to the warehouse.`,
	Example: `  sparkify statements --kind insert
  sparkify statements --format yaml --target sqlite`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, stmts, err := loadTarget(schema.Options{})
		if err != nil {
			return err
		}

		selected, err := selectStatements(stmts, statementsKind)
		if err != nil {
			return err
		}
		return writeStatements(cmd.OutOrStdout(), selected, statementsFormat)
	},
}

func init() {
	rootCmd.AddCommand(statementsCmd)
	statementsCmd.Flags().StringVarP(&statementsFormat, "format", "f", "sql", "output format: sql, yaml or table")
	statementsCmd.Flags().StringVarP(&statementsKind, "kind", "k", "all", "statement list: drop, create, copy, insert or all")
}

func selectStatements(stmts *schema.Statements, kind string) ([]schema.Statement, error) {
	switch strings.ToLower(kind) {
	case "", "all":
		return stmts.All(), nil
	case "drop":
		return stmts.Drop(), nil
	case "create":
		return stmts.Create(), nil
	case "copy":
		return stmts.Copy(), nil
	case "insert":
		return stmts.Insert(), nil
	}
	return nil, fmt.Errorf("unknown statement kind %q", kind)
}

type statementDoc struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Table       string `yaml:"table"`
	Fingerprint string `yaml:"fingerprint"`
	SQL         string `yaml:"sql"`
}

func writeStatements(w io.Writer, stmts []schema.Statement, format string) error {
	switch strings.ToLower(format) {
	case "sql":
		for _, s := range stmts {
			fmt.Fprintf(w, "-- %s (%s)\n%s\n\n", s.Name, s.Table, s.SQL)
		}
		return nil
	case "yaml":
		docs := make([]statementDoc, len(stmts))
		for i, s := range stmts {
			docs[i] = statementDoc{
				Name:        s.Name,
				Kind:        string(s.Kind),
				Table:       s.Table,
				Fingerprint: s.Fingerprint(),
				SQL:         s.SQL,
			}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		ui.RenderStatements(w, stmts)
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}
