package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/sqlite"
)

// Insert writes rows into the table of entity. Row keys are property
// names; an absent property is NULL. Values are converted to their stored
// form through the properties' default mappings, so datetimes, timespans
// and byte strings may also be given as text.
func (s *Store) Insert(ctx context.Context, entity *schema.Entity, mappings queryir.MappingSource, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, len(entity.Properties))
	marks := make([]string, len(entity.Properties))
	for i, p := range entity.Properties {
		cols[i] = quote(p.Column)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName(entity), strings.Join(cols, ", "), strings.Join(marks, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", entity.Table, err)
	}
	defer prepared.Close()

	for n, row := range rows {
		if err := checkColumns(entity, row); err != nil {
			return fmt.Errorf("%s row %d: %w", entity.Name, n, err)
		}
		args := make([]any, len(entity.Properties))
		for i, p := range entity.Properties {
			v, err := Coerce(p.Kind, p.Element, row[p.Name])
			if err != nil {
				return fmt.Errorf("%s row %d: %s: %w", entity.Name, n, p.Name, err)
			}
			if v == nil && !p.Nullable {
				return fmt.Errorf("%s row %d: %s is required", entity.Name, n, p.Name)
			}
			if err := checkElements(p, v); err != nil {
				return fmt.Errorf("%s row %d: %s: %w", entity.Name, n, p.Name, err)
			}
			if args[i], err = MappingFor(mappings, p).ProviderValue(v); err != nil {
				return fmt.Errorf("%s row %d: %s: %w", entity.Name, n, p.Name, err)
			}
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", entity.Table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("rows inserted", "entity", entity.Name, "rows", len(rows))
	return nil
}

// Seed inserts rows for several entities, keyed by entity name, in model
// order.
func (s *Store) Seed(ctx context.Context, model schema.Model, mappings queryir.MappingSource, data map[string][]map[string]any) error {
	known := make(map[string]bool, len(data))
	for _, e := range model.Entities() {
		known[e.Name] = true
		if err := s.Insert(ctx, e, mappings, data[e.Name]); err != nil {
			return err
		}
	}
	var unknown []string
	for name := range data {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("seed data for unknown entities %v", unknown)
	}
	return nil
}

func checkColumns(entity *schema.Entity, row map[string]any) error {
	for name := range row {
		if _, ok := entity.Property(name); !ok {
			return fmt.Errorf("no property %q", name)
		}
	}
	return nil
}

// checkElements refuses null elements in a collection whose elements are
// not declared nullable.
func checkElements(p *schema.Property, v any) error {
	items, ok := v.([]any)
	if !ok || p.Kind != queryir.KindArray || p.ElementNullable {
		return nil
	}
	for i, it := range items {
		if it == nil {
			return fmt.Errorf("element %d is null", i)
		}
	}
	return nil
}

// Coerce accepts the textual forms YAML files use for kinds that have no
// natural YAML scalar.
func Coerce(kind, elem queryir.Kind, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		switch kind {
		case queryir.KindDateTime, queryir.KindDateTimeOffset, queryir.KindDate:
			return dateparse.ParseIn(x, time.UTC)
		case queryir.KindTime, queryir.KindTimeSpan:
			return sqlite.ParseTimeSpan(x)
		case queryir.KindBytes:
			return hex.DecodeString(x)
		}
	case []any:
		if kind != queryir.KindArray {
			break
		}
		out := make([]any, len(x))
		for i, item := range x {
			c, err := Coerce(elem, queryir.KindUnknown, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}
	return v, nil
}
