package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/store"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	DDL bool // print CREATE TABLE statements
}

// EntitySummary describes one validated entity.
type EntitySummary struct {
	Name        string `json:"name"`
	Table       string `json:"table"`
	Properties  int    `json:"properties"`
	Navigations int    `json:"navigations"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool            `json:"valid"`
	Hash     string          `json:"hash"`
	Entities []EntitySummary `json:"entities"`
	DDL      []string        `json:"ddl,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [model]",
		Short: "Validate an entity model",
		Long: `Validate a CUE entity model without compiling queries.

Checks kinds, keys and navigations, and prints the model hash stored in
databases created from it. The model is the argument or, when omitted,
the --model flag.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Model = args[0]
			}
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DDL, "ddl", false, "print the CREATE TABLE statements for the model")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	model, err := opts.loadModel()
	if err != nil {
		return outputCommandError(formatter, err)
	}
	hash, err := store.ModelHash(model)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	result := ValidationResult{Valid: true, Hash: hash}
	for _, e := range model.Entities() {
		formatter.VerboseLog("Validated entity: %s", e.Name)
		result.Entities = append(result.Entities, EntitySummary{
			Name:        e.Name,
			Table:       e.Table,
			Properties:  len(e.Properties),
			Navigations: len(e.Navigations),
		})
	}
	if opts.DDL {
		result.DDL = store.DDL(model, sqlite.New().Mappings())
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Model valid: %d entit(ies)\n", len(result.Entities))
	fmt.Fprintf(w, "  hash %s\n\n", result.Hash)
	for _, e := range result.Entities {
		fmt.Fprintf(w, "  %s (%s): %d propert(ies), %d navigation(s)\n", e.Name, e.Table, e.Properties, e.Navigations)
	}
	if len(result.DDL) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Join(result.DDL, ";\n\n")+";")
	}
	return nil
}
