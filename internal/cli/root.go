package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Model is the CUE file or directory holding the entity model.
	Model string

	CacheSize       int
	RelationalNulls bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the relq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "relq",
		Short: "relq - query compiler for SQLite",
		Long: `Compile LINQ-style query trees to SQLite SQL.

Queries are YAML documents over an entity model written in CUE. relq
translates them, compensates for null semantics and generates SQL that
runs on SQLite with the relq emulation functions registered.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Model, "model", "m", "", "CUE file or directory with the entity model")
	cmd.PersistentFlags().IntVar(&opts.CacheSize, "cache-size", compiler.DefaultCacheSize, "compiled query cache size (negative disables caching)")
	cmd.PersistentFlags().BoolVar(&opts.RelationalNulls, "relational-nulls", false, "compare nulls with SQL semantics")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// logger writes pipeline events to w: warnings by default, everything
// with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadModel loads the --model path.
func (o *RootOptions) loadModel() (*schema.StaticModel, error) {
	if o.Model == "" {
		return nil, &LoadError{Code: ErrCodeModel, Message: "--model is required"}
	}
	model, err := schema.LoadPath(o.Model)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeModel, Message: err.Error()}
	}
	return model, nil
}

// newCompiler builds a compiler for the --model path with the global
// options.
func (o *RootOptions) newCompiler(logger *slog.Logger) (*compiler.Compiler, *schema.StaticModel, error) {
	model, err := o.loadModel()
	if err != nil {
		return nil, nil, err
	}
	c, err := compiler.New(model, sqlite.New(), compiler.Options{
		CacheSize:       o.CacheSize,
		RelationalNulls: o.RelationalNulls,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create compiler: %w", err)
	}
	return c, model, nil
}
