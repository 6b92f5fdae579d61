package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/relq/internal/canonical"
	"github.com/roach88/relq/internal/nullsem"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/querytranslate"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/sqltranslate"
	"github.com/roach88/relq/internal/typeinfer"
)

// DefaultCacheSize is the plan cache capacity when Options leaves it zero.
const DefaultCacheSize = 512

// Dialect is everything the pipeline needs from a database dialect.
type Dialect interface {
	querytranslate.Dialect
	Name() string
	Capabilities() queryir.Capabilities
	NullExtension() nullsem.Extension
	Generator() querysql.Dialect
}

// Options configures a Compiler.
type Options struct {
	// CacheSize bounds the plan cache. The command cache holds twice as
	// many entries. Zero means DefaultCacheSize; negative disables caching.
	CacheSize int

	// RelationalNulls skips null-semantics compensation.
	RelationalNulls bool

	// Logger receives pipeline events. Nil uses slog.Default.
	Logger *slog.Logger

	// Registerer receives the compiler's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// Plan is the parameter-independent half of a compilation.
type Plan struct {
	// Key is the query's shape key.
	Key string

	// Select has every type mapping resolved but no null compensation.
	Select      *queryir.Select
	Shape       *querytranslate.Shape
	Cardinality querytranslate.Cardinality

	// Params are the parameters the query declares, in first-appearance
	// order.
	Params []*query.Param
}

// Compiled is a plan with the command generated for one set of parameter
// values.
type Compiled struct {
	*Plan
	Command *querysql.Command
}

// Compiler compiles queries against one model and dialect. It is safe for
// concurrent use.
type Compiler struct {
	dialect    Dialect
	translator *querytranslate.Translator
	inferrer   *typeinfer.Inferrer
	nulls      *nullsem.Processor
	generator  *querysql.Generator
	logger     *slog.Logger
	metrics    *metrics

	plans    *lru.Cache[string, *Plan]
	commands *arc.ARCCache[string, *querysql.Command]
}

// New builds a compiler.
func New(model schema.Model, dialect Dialect, opts Options) (*Compiler, error) {
	if model == nil {
		return nil, errors.New("compiler: nil model")
	}
	if dialect == nil {
		return nil, errors.New("compiler: nil dialect")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("dialect", dialect.Name())

	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("compiler: register metrics: %w", err)
	}

	c := &Compiler{
		dialect:    dialect,
		translator: querytranslate.New(model, dialect, logger),
		inferrer:   typeinfer.New(dialect.Mappings(), logger),
		nulls: nullsem.New(dialect.Mappings(), nullsem.Options{
			RelationalNulls: opts.RelationalNulls,
			Extensions:      []nullsem.Extension{dialect.NullExtension()},
			Logger:          logger,
		}),
		generator: querysql.NewGenerator(dialect.Generator()),
		logger:    logger,
		metrics:   m,
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		if c.plans, err = lru.New[string, *Plan](size); err != nil {
			return nil, fmt.Errorf("compiler: plan cache: %w", err)
		}
		if c.commands, err = arc.NewARC[string, *querysql.Command](2 * size); err != nil {
			return nil, fmt.Errorf("compiler: command cache: %w", err)
		}
	}
	return c, nil
}

// Plan translates e and resolves its type mappings, reusing a cached plan
// for an equal shape.
func (c *Compiler) Plan(e query.Expr) (*Plan, error) {
	key, err := query.ShapeKey(e)
	if err != nil {
		return nil, fmt.Errorf("compiler: shape key: %w", err)
	}
	if c.plans != nil {
		if p, ok := c.plans.Get(key); ok {
			c.metrics.planHits.Inc()
			c.logger.Debug("plan cache hit", "key", key[:12])
			return p, nil
		}
		c.metrics.planMisses.Inc()
	}

	res, err := c.translator.Translate(e)
	if err != nil {
		c.reject(e, err)
		return nil, err
	}
	sel, n := c.inferrer.Infer(res.Select)
	c.logger.Debug("type mappings inferred", "key", key[:12], "substitutions", n)

	p := &Plan{
		Key:         key,
		Select:      sel,
		Shape:       res.Shape,
		Cardinality: res.Cardinality,
		Params:      query.Params(e),
	}
	if c.plans != nil {
		c.plans.Add(key, p)
	}
	return p, nil
}

// Compile compiles e for the given parameter values. Only which values are
// nil matters; the command is shared by every call with the same shape and
// the same null parameters.
func (c *Compiler) Compile(e query.Expr, params map[string]any) (*Compiled, error) {
	start := time.Now()
	defer func() { c.metrics.duration.Observe(time.Since(start).Seconds()) }()

	p, err := c.Plan(e)
	if err != nil {
		return nil, err
	}
	if err := checkParams(p.Params, params); err != nil {
		return nil, err
	}
	cmd, err := c.command(p, params)
	if err != nil {
		return nil, err
	}
	return &Compiled{Plan: p, Command: cmd}, nil
}

func (c *Compiler) command(p *Plan, params map[string]any) (*querysql.Command, error) {
	nulls := nullParams(p.Params, params)
	key := canonical.MustHash(canonical.DomainCommand, []any{p.Key, nulls})
	if c.commands != nil {
		if cmd, ok := c.commands.Get(key); ok {
			c.metrics.commandHits.Inc()
			c.logger.Debug("command cache hit", "key", p.Key[:12], "nulls", nulls)
			return cmd, nil
		}
		c.metrics.commandMisses.Inc()
	}

	sel, cacheable, err := c.nulls.Process(p.Select, params)
	if err != nil {
		return nil, fmt.Errorf("compiler: null semantics: %w", err)
	}
	// Null folding may leave constants the first inference pass never saw.
	sel, _ = c.inferrer.Infer(sel)
	if err := queryir.Validate(sel, c.dialect.Capabilities()); err != nil {
		c.metrics.failures.WithLabelValues("INVALID_TREE").Inc()
		c.logger.Warn("query rejected by validation", "key", p.Key[:12], "error", err)
		return nil, err
	}
	cmd, err := c.generator.Generate(sel)
	if err != nil {
		return nil, fmt.Errorf("compiler: generate: %w", err)
	}
	cmd.Cacheable = cacheable
	if c.commands != nil {
		c.commands.Add(key, cmd)
	}
	c.logger.Debug("command generated", "key", p.Key[:12], "cacheable", cacheable, "params", len(cmd.Parameters))
	return cmd, nil
}

func (c *Compiler) reject(e query.Expr, err error) {
	code := "UNKNOWN"
	var te *sqltranslate.TranslationError
	if errors.As(err, &te) {
		code = string(te.Code)
	}
	c.metrics.failures.WithLabelValues(code).Inc()
	c.logger.Warn("query rejected", "query", query.Format(e), "code", code, "error", err)
}

// Request is one entry of a batch.
type Request struct {
	Name   string
	Query  query.Expr
	Params map[string]any
}

// Outcome is the result of one batch entry. Exactly one of Compiled and
// Err is set.
type Outcome struct {
	Name     string
	Compiled *Compiled
	Err      error
}

// CompileAll compiles reqs concurrently, at most limit at a time (no limit
// when limit <= 0). Per-query failures are reported in the outcomes; the
// returned error is non-nil only when ctx is cancelled.
func (c *Compiler) CompileAll(ctx context.Context, reqs []Request, limit int) ([]Outcome, error) {
	out := make([]Outcome, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, r := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			compiled, err := c.Compile(r.Query, r.Params)
			out[i] = Outcome{Name: r.Name, Compiled: compiled, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// checkParams requires a value, possibly nil, for every declared parameter.
func checkParams(declared []*query.Param, values map[string]any) error {
	var missing []string
	for _, p := range declared {
		if _, ok := values[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("compiler: no value for parameters %v", missing)
	}
	return nil
}

// nullParams lists the declared parameters whose value is nil, sorted.
func nullParams(declared []*query.Param, values map[string]any) []any {
	names := make([]string, 0)
	for _, p := range declared {
		if v, ok := values[p.Name]; ok && v == nil {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}
