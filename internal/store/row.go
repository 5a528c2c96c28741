package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Field is one column assignment. Fields keep caller order, which becomes the
// column order of the generated statement.
type Field struct {
	Name  string
	Value any
}

type Fields []Field

func (f Fields) names() []string {
	out := make([]string, len(f))
	for i, field := range f {
		out[i] = field.Name
	}
	return out
}

func (f Fields) values() []any {
	out := make([]any, len(f))
	for i, field := range f {
		out[i] = field.Value
	}
	return out
}

func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}

func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b
		}
		return r.Int64(key) != 0
	default:
		return r.Int64(key) != 0
	}
}

// Clone returns a shallow copy without the listed keys.
func (r Row) Clone(without ...string) Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, k := range without {
		delete(out, k)
	}
	return out
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := make([]Row, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
