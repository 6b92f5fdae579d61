package cli

import (
	"fmt"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Params []string
	Tree   bool // dump the relational tree after each pass
}

// ExplainStage is one pipeline pass in explain output.
type ExplainStage struct {
	Name string `json:"name"`
	SQL  string `json:"sql,omitempty"`
	Tree string `json:"tree,omitempty"`
}

// ExplainResult is the JSON form of an explanation.
type ExplainResult struct {
	Query       string         `json:"query"`
	Key         string         `json:"key"`
	Cardinality string         `json:"cardinality,omitempty"`
	Stages      []ExplainStage `json:"stages"`
	SQL         string         `json:"sql,omitempty"`
	Cacheable   bool           `json:"cacheable"`
	Error       *CLIError      `json:"error,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <query.yaml>",
		Short: "Show a query after each compilation pass",
		Long: `Show how a query document is compiled.

Prints the source query, its cache key and the SQL after translation,
type inference and null compensation. With --tree the relational tree of
each pass is dumped as well. Caches are bypassed.

Examples:
  relq explain -m shop.cue by-name.yaml -p name=null
  relq explain -m shop.cue orders.yaml --tree`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter value as name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Tree, "tree", false, "dump the relational tree of every pass")

	return cmd
}

func runExplain(opts *ExplainOptions, path string, cmd *cobra.Command) error {
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
	files, err := LoadQueries([]string{path})
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if len(files) != 1 {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: explain takes a single query document, found %d", path, len(files))})
	}
	values, err := ParseParams(opts.Params, files)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	doc := files[0].Doc
	ex, err := comp.Explain(doc.Query, paramsFor(doc, values))
	if ex == nil {
		return outputCommandError(formatter, err)
	}

	result := ExplainResult{Query: ex.Query, Key: ex.Key}
	if len(ex.Stages) > 0 {
		result.Cardinality = ex.Cardinality.String()
	}
	for _, st := range ex.Stages {
		s := ExplainStage{Name: st.Name, SQL: st.SQL}
		if opts.Tree {
			s.Tree = pretty.Sprint(st.Select)
		}
		result.Stages = append(result.Stages, s)
	}
	if ex.Command != nil {
		result.SQL = ex.Command.Text
		result.Cacheable = ex.Command.Cacheable
	}
	if err != nil {
		result.Error = queryError(err)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Error != nil {
			resp.Status, resp.Error = "error", result.Error
		}
		if encErr := formatter.encode(resp); encErr != nil {
			return encErr
		}
	} else {
		outputExplainText(formatter, result)
	}

	if result.Error != nil {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", result.Error.Code, result.Error.Message))
	}
	return nil
}

func outputExplainText(f *OutputFormatter, r ExplainResult) {
	w := f.Writer
	fmt.Fprintf(w, "Query: %s\n", r.Query)
	fmt.Fprintf(w, "Key:   %s\n", r.Key)
	if r.Cardinality != "" {
		fmt.Fprintf(w, "Rows:  %s\n", r.Cardinality)
	}
	for _, st := range r.Stages {
		fmt.Fprintf(w, "\n== %s ==\n", st.Name)
		if st.SQL != "" {
			fmt.Fprintln(w, st.SQL)
		}
		if st.Tree != "" {
			fmt.Fprintln(w, st.Tree)
		}
	}
	if r.Error != nil {
		fmt.Fprintf(w, "\n✗ %s: %s\n", r.Error.Code, r.Error.Message)
		return
	}
	cacheable := "cacheable"
	if !r.Cacheable {
		cacheable = "not cacheable"
	}
	fmt.Fprintf(w, "\n== command (%s) ==\n%s;\n", cacheable, r.SQL)
}
