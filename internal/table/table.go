package table

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeInt       Type = "int"
	TypeFloat     Type = "float"
	TypeString    Type = "string"
	TypeBool      Type = "bool"
	TypeTimestamp Type = "timestamp"
)

func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

func (t Type) Valid() bool {
	switch t {
	case TypeInt, TypeFloat, TypeString, TypeBool, TypeTimestamp:
		return true
	default:
		return false
	}
}

type Field struct {
	Name string
	Type Type
}

type column struct {
	field  Field
	values []any
}

// Table is an immutable columnar dataset. Values are int64, float64, string,
// bool, time.Time or nil.
type Table struct {
	columns []column
	index   map[string]int
	rows    int
}

func (t *Table) NumRows() int {
	return t.rows
}

func (t *Table) NumColumns() int {
	return len(t.columns)
}

func (t *Table) Fields() []Field {
	fields := make([]Field, len(t.columns))
	for i, col := range t.columns {
		fields[i] = col.field
	}
	return fields
}

func (t *Table) Field(name string) (Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.columns[i].field, true
}

func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

func (t *Table) Value(row, col int) any {
	return t.columns[col].values[row]
}

// Row returns a read-only view of one row.
func (t *Table) Row(row int) RowView {
	return RowView{table: t, row: row}
}

type RowView struct {
	table *Table
	row   int
}

func (r RowView) Value(col int) any {
	return r.table.columns[col].values[r.row]
}

// Describe reports column names and logical types in declared order.
func (t *Table) Describe() Descriptor {
	return Descriptor{Fields: t.Fields()}
}

// Builder accumulates rows and freezes them into a Table.
type Builder struct {
	columns []column
	index   map[string]int
	rows    int
}

func NewBuilder(fields []Field) (*Builder, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	b := &Builder{
		columns: make([]column, 0, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return nil, fmt.Errorf("column name is required")
		}
		if !field.Type.Valid() {
			return nil, fmt.Errorf("column %q: unsupported type %q", name, field.Type)
		}
		if _, exists := b.index[name]; exists {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		b.index[name] = len(b.columns)
		b.columns = append(b.columns, column{field: Field{Name: name, Type: field.Type}})
	}
	return b, nil
}

// Append adds one row; values are coerced to each column's logical type.
func (b *Builder) Append(values ...any) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("row %d: got %d values, want %d", b.rows, len(values), len(b.columns))
	}
	converted := make([]any, len(values))
	for i, value := range values {
		v, err := Coerce(b.columns[i].field.Type, value)
		if err != nil {
			return fmt.Errorf("row %d column %q: %w", b.rows, b.columns[i].field.Name, err)
		}
		converted[i] = v
	}
	for i := range b.columns {
		b.columns[i].values = append(b.columns[i].values, converted[i])
	}
	b.rows++
	return nil
}

func (b *Builder) Build() *Table {
	t := &Table{
		columns: b.columns,
		index:   b.index,
		rows:    b.rows,
	}
	b.columns = nil
	b.index = nil
	b.rows = 0
	return t
}

func (b *Builder) Len() int {
	return b.rows
}

// FromRecords builds a table from row maps; missing keys become nulls.
func FromRecords(fields []Field, records []map[string]any) (*Table, error) {
	b, err := NewBuilder(fields)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		values := make([]any, len(fields))
		for i, field := range fields {
			values[i] = record[field.Name]
		}
		if err := b.Append(values...); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
