package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Params []string // name=value
	Jobs   int      // concurrent compilations
}

// CompiledQuery is the outcome of compiling one query document.
type CompiledQuery struct {
	Name        string    `json:"name"`
	SQL         string    `json:"sql,omitempty"`
	Parameters  []string  `json:"parameters,omitempty"`
	Cardinality string    `json:"cardinality,omitempty"`
	Cacheable   bool      `json:"cacheable"`
	Error       *CLIError `json:"error,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query.yaml>...",
		Short: "Compile query documents to SQL",
		Long: `Compile query documents to SQLite SQL.

Every document in every file is compiled against the --model entity model.
Parameter values matter only for their nullness: a null value is inlined
as NULL and the command is marked as not cacheable.

Examples:
  relq compile -m shop.cue orders.yaml
  relq compile -m shop.cue by-name.yaml -p name=null
  relq compile -m ./model queries/*.yaml --jobs 8 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter value as name=value (repeatable)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 4, "number of queries compiled concurrently")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	comp, _, err := opts.newCompiler(opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return outputCommandError(formatter, err)
	}
	files, err := LoadQueries(paths)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	values, err := ParseParams(opts.Params, files)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	reqs := make([]compiler.Request, len(files))
	for i, f := range files {
		reqs[i] = compiler.Request{Name: f.Name, Query: f.Doc.Query, Params: paramsFor(f.Doc, values)}
	}
	formatter.VerboseLog("Compiling %d query document(s)", len(reqs))

	outcomes, err := comp.CompileAll(ctx, reqs, opts.Jobs)
	if err != nil {
		return WrapExitError(ExitCommandError, "compilation interrupted", err)
	}

	results := make([]CompiledQuery, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		results[i] = compiledQuery(o)
		if o.Err != nil {
			failed++
		}
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: results}
		if failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%d of %d queries failed", failed, len(results))}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		outputCompileText(formatter, results)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d queries failed", failed, len(results)))
	}
	return nil
}

func compiledQuery(o compiler.Outcome) CompiledQuery {
	q := CompiledQuery{Name: o.Name}
	if o.Err != nil {
		q.Error = queryError(o.Err)
		return q
	}
	q.SQL = o.Compiled.Command.Text
	q.Cacheable = o.Compiled.Command.Cacheable
	q.Cardinality = o.Compiled.Plan.Cardinality.String()
	for _, p := range o.Compiled.Command.Parameters {
		q.Parameters = append(q.Parameters, p.Name)
	}
	return q
}

func outputCompileText(f *OutputFormatter, results []CompiledQuery) {
	w := f.Writer
	for i, q := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if q.Error != nil {
			fmt.Fprintf(w, "-- %s\n✗ %s: %s\n", q.Name, q.Error.Code, q.Error.Message)
			continue
		}
		notes := []string{q.Cardinality}
		if !q.Cacheable {
			notes = append(notes, "not cacheable")
		}
		fmt.Fprintf(w, "-- %s (%s)\n%s;\n", q.Name, strings.Join(notes, ", "), q.SQL)
	}
}

// outputCommandError reports an error that stopped the command before any
// query ran.
func outputCommandError(f *OutputFormatter, err error) error {
	ce := queryError(err)
	_ = f.Error(ce.Code, ce.Message, ce.Details)
	return WrapExitError(ExitCommandError, ce.Code+": "+ce.Message, nil)
}
