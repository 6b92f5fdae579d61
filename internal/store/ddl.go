package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/canonical"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/schema"
)

const metaTable = "__relq_model"

// ErrModelChanged is returned by CreateSchema when the database was created
// for a different model.
var ErrModelChanged = errors.New("database was created for a different model")

var quote = querysql.Standard{}.QuoteIdentifier

// DDL returns a CREATE TABLE statement per entity, in model order. Column
// types are the store types of the default mappings.
func DDL(model schema.Model, mappings queryir.MappingSource) []string {
	var out []string
	for _, e := range model.Entities() {
		var b strings.Builder
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", tableName(e))
		for i, p := range e.Properties {
			if i > 0 {
				b.WriteString(",\n")
			}
			fmt.Fprintf(&b, "    %s %s", quote(p.Column), MappingFor(mappings, p).StoreType)
			if !p.Nullable {
				b.WriteString(" NOT NULL")
			}
		}
		if len(e.Key) > 0 {
			cols := make([]string, len(e.Key))
			for i, k := range e.Key {
				p, _ := e.Property(k)
				cols[i] = quote(p.Column)
			}
			fmt.Fprintf(&b, ",\n    PRIMARY KEY (%s)", strings.Join(cols, ", "))
		}
		b.WriteString("\n)")
		out = append(out, b.String())
	}
	return out
}

// CreateSchema creates the model's tables. It is idempotent for the same
// model and fails with ErrModelChanged for a different one.
func (s *Store) CreateSchema(ctx context.Context, model schema.Model, mappings queryir.MappingSource) error {
	hash, err := ModelHash(model)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+quote(metaTable)+" (hash TEXT NOT NULL)"); err != nil {
		return fmt.Errorf("create %s: %w", metaTable, err)
	}
	var existing string
	err = tx.QueryRowContext(ctx, "SELECT hash FROM "+quote(metaTable)).Scan(&existing)
	switch {
	case err == nil && existing == hash:
		return nil
	case err == nil:
		return ErrModelChanged
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("read model hash: %w", err)
	}

	for _, stmt := range DDL(model, mappings) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO "+quote(metaTable)+" (hash) VALUES (?)", hash); err != nil {
		return fmt.Errorf("record model hash: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("schema created", "entities", len(model.Entities()), "model", hash[:12])
	return nil
}

// ModelHash identifies the table layout a model produces.
func ModelHash(model schema.Model) (string, error) {
	var entities []any
	for _, e := range model.Entities() {
		props := make([]any, len(e.Properties))
		for i, p := range e.Properties {
			props[i] = []any{p.Column, p.Kind.String(), p.Element.String(), p.Nullable}
		}
		keys := make([]any, len(e.Key))
		for i, k := range e.Key {
			keys[i] = k
		}
		entities = append(entities, []any{e.Schema, e.Table, keys, props})
	}
	return canonical.Hash(canonical.DomainModel, entities)
}

// MappingFor returns the default mapping of a property's column.
func MappingFor(mappings queryir.MappingSource, p *schema.Property) *queryir.TypeMapping {
	if p.Kind == queryir.KindArray {
		var elem *queryir.TypeMapping
		if p.Element != queryir.KindUnknown {
			elem = mappings.Default(p.Element)
		}
		return mappings.Collection(elem)
	}
	return mappings.Default(p.Kind)
}

func tableName(e *schema.Entity) string {
	if e.Schema != "" {
		return quote(e.Schema) + "." + quote(e.Table)
	}
	return quote(e.Table)
}
