package dataset

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/duckmesh/tableagent/internal/table"
)

var ErrTooManyRows = errors.New("dataset exceeds row limit")

// FromRows drains rows into a table. Column types come from the driver's
// database type names; columns the driver does not name are inferred from
// their first non-null value. More than maxRows rows is an error.
func FromRows(rows *sql.Rows, maxRows int) (*table.Table, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	if len(columnTypes) == 0 {
		return nil, fmt.Errorf("result has no columns")
	}

	var records [][]any
	for rows.Next() {
		if maxRows > 0 && len(records) >= maxRows {
			return nil, fmt.Errorf("%w of %d", ErrTooManyRows, maxRows)
		}
		values := make([]any, len(columnTypes))
		targets := make([]any, len(columnTypes))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(records), err)
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	fields := make([]table.Field, len(columnTypes))
	for i, ct := range columnTypes {
		typ, ok := LogicalType(ct.DatabaseTypeName())
		if !ok {
			typ = inferType(records, i)
		}
		fields[i] = table.Field{Name: ct.Name(), Type: typ}
	}

	builder, err := table.NewBuilder(fields)
	if err != nil {
		return nil, err
	}
	for i, record := range records {
		if err := builder.Append(record...); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return builder.Build(), nil
}

// LogicalType maps a DuckDB or PostgreSQL type name to a logical type. It
// reports false for an empty name so the caller can infer from values.
// Nested and otherwise unknown types are rendered as strings.
func LogicalType(databaseType string) (table.Type, bool) {
	name := strings.ToUpper(strings.TrimSpace(databaseType))
	if name == "" {
		return "", false
	}
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	switch {
	case strings.HasPrefix(name, "TIMESTAMP"), name == "DATE", name == "DATETIME":
		return table.TypeTimestamp, true
	case strings.HasSuffix(name, "[]"):
		return table.TypeString, true
	}
	switch name {
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT",
		"INT2", "INT4", "INT8", "SERIAL", "BIGSERIAL", "SMALLSERIAL":
		return table.TypeInt, true
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8", "DOUBLE PRECISION", "DECIMAL", "NUMERIC":
		return table.TypeFloat, true
	case "BOOLEAN", "BOOL":
		return table.TypeBool, true
	default:
		return table.TypeString, true
	}
}

func inferType(records [][]any, col int) table.Type {
	for _, record := range records {
		switch record[col].(type) {
		case nil:
			continue
		case int64, int32, int16, int8, int, uint8, uint16, uint32, *big.Int:
			return table.TypeInt
		case float64, float32:
			return table.TypeFloat
		case bool:
			return table.TypeBool
		case time.Time:
			return table.TypeTimestamp
		default:
			return table.TypeString
		}
	}
	return table.TypeString
}
