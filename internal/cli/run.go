package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Params   []string
	Init     bool   // create the model's tables first
	Seed     string // YAML file of rows per entity, inserted after Init
}

// RunResult is the JSON form of a query's rows.
type RunResult struct {
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query.yaml>",
		Short: "Compile a query and run it against a database",
		Long: `Compile a query document and execute it on a SQLite database.

The database connection registers the relq emulation functions, so decimal
arithmetic, date math and regular expressions behave as compiled. With
--init the model's tables are created first (a database created for a
different model is refused); --seed inserts rows from a YAML file.

Examples:
  relq run -m shop.cue --db shop.db --init --seed rows.yaml orders.yaml
  relq run -m shop.cue --db shop.db by-name.yaml -p name=Ann --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter value as name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Init, "init", false, "create the model's tables if needed")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "YAML file with rows to insert, keyed by entity")

	return cmd
}

func runQuery(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := opts.logger(cmd.ErrOrStderr())

	comp, model, err := opts.newCompiler(logger)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	files, err := LoadQueries([]string{path})
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if len(files) != 1 {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: run takes a single query document, found %d", path, len(files))})
	}
	values, err := ParseParams(opts.Params, files)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	doc := files[0].Doc
	params := paramsFor(doc, values)

	st, err := store.Open(opts.Database, logger)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeDatabase, Message: err.Error()})
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	mappings := sqlite.New().Mappings()
	if opts.Init || opts.Seed != "" {
		if err := st.CreateSchema(ctx, model, mappings); err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeDatabase, Message: err.Error()})
		}
		formatter.VerboseLog("Schema ready in %s", opts.Database)
	}
	if opts.Seed != "" {
		rows, err := loadSeed(opts.Seed)
		if err != nil {
			return outputCommandError(formatter, err)
		}
		if err := st.Seed(ctx, model, mappings, rows); err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeDatabase, Message: err.Error()})
		}
		formatter.VerboseLog("Seeded %d entit(ies) from %s", len(rows), opts.Seed)
	}

	compiled, err := comp.Compile(doc.Query, params)
	if err != nil {
		ce := queryError(err)
		_ = formatter.Error(ce.Code, ce.Message, ce.Details)
		return NewExitError(ExitFailure, ce.Code+": "+ce.Message)
	}
	formatter.VerboseLog("Executing:\n%s", compiled.Command.Text)

	rows, err := st.Query(ctx, compiled.Command, params)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), compiled.Command.Text)
		return WrapExitError(ExitFailure, "query failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(RunResult{SQL: compiled.Command.Text, Columns: rows.Columns, Rows: rows.Values})
	}
	return outputRows(formatter, rows)
}

func loadSeed(path string) (map[string][]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("seed file: %v", err)}
	}
	var rows map[string][]map[string]any
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return rows, nil
}

func outputRows(f *OutputFormatter, rows *store.Rows) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(rows.Columns, "\t"))
	for _, r := range rows.Values {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = cell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(f.Writer, "(%d row(s))\n", len(rows.Values))
	return nil
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	}
	return fmt.Sprint(v)
}
