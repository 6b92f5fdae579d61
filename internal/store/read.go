package store

import (
	"context"
	"fmt"

	"github.com/roach88/relq/internal/querysql"
)

// Rows is a fully read result set. Values are what the driver returns:
// int64, float64, string, []byte or nil.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Query binds params to cmd, runs it and reads every row.
func (s *Store) Query(ctx context.Context, cmd *querysql.Command, params map[string]any) (*Rows, error) {
	args, err := cmd.Args(params)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, cmd.Text, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := &Rows{Columns: cols, Values: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out.Values = append(out.Values, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	s.logger.Debug("query executed", "rows", len(out.Values), "params", len(args))
	return out, nil
}
