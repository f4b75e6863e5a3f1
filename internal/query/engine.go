package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/tableagent/internal/expr"
	"github.com/duckmesh/tableagent/internal/table"
)

// Engine executes requests against one immutable table. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	table *table.Table
}

func NewEngine(t *table.Table) (*Engine, error) {
	if t == nil {
		return nil, fmt.Errorf("table is required")
	}
	return &Engine{table: t}, nil
}

// source is a row-major view the pipeline reads from: the base table or an
// aggregated intermediate.
type source interface {
	Value(row, col int) any
}

type matrix [][]any

func (m matrix) Value(row, col int) any {
	return m[row][col]
}

// frame is a lazy view over a source: fields map to source columns and rows
// to source row ids. Projection, ordering and limiting only rewrite the
// index slices.
type frame struct {
	src    source
	fields []table.Field
	cols   []int
	rows   []int
}

func (f *frame) lookup(name string) (int, bool) {
	for i, field := range f.fields {
		if field.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (f *frame) names() []string {
	names := make([]string, len(f.fields))
	for i, field := range f.fields {
		names[i] = field.Name
	}
	return names
}

func (f *frame) value(row, field int) any {
	return f.src.Value(f.rows[row], f.cols[field])
}

// Execute runs the pipeline in fixed order: clamp limit, filter,
// group/aggregate, project, order, limit, materialize.
func (e *Engine) Execute(ctx context.Context, request Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	limit := request.EffectiveLimit()
	base := e.table.Fields()

	aggs, dropped := supportedAggregations(request.Aggregations)
	groupBy := uniqueNames(request.GroupBy)
	grouping := len(groupBy) > 0 && len(request.Aggregations) > 0
	if err := validateReferences(base, groupBy, request.Aggregations); err != nil {
		return Result{}, err
	}
	if grouping {
		if err := validateAggregationTypes(base, aggs); err != nil {
			return Result{}, err
		}
	}

	var pred *expr.Predicate
	if strings.TrimSpace(request.Filter) != "" {
		compiled, err := expr.Compile(request.Filter, base)
		if err != nil {
			return Result{}, invalidExpression(err)
		}
		pred = compiled
	}

	// Without grouping or ordering the first limit matches are the answer.
	stopAfter := -1
	if !grouping && request.OrderBy == "" {
		stopAfter = limit
	}
	selected := e.filter(pred, stopAfter)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	f := &frame{src: e.table, fields: base, cols: identity(len(base)), rows: selected}
	if grouping {
		f = groupAndAggregate(e.table, base, selected, groupBy, aggs)
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
	}

	if len(request.Columns) > 0 {
		if err := project(f, request.Columns); err != nil {
			return Result{}, err
		}
	}

	if request.OrderBy != "" {
		idx, ok := f.lookup(request.OrderBy)
		if !ok {
			return Result{}, unknownColumn(request.OrderBy, "order_by", f.names())
		}
		sortRows(f, idx, request.OrderDescending)
	}

	if len(f.rows) > limit {
		f.rows = f.rows[:limit]
	}

	result := materialize(f)
	result.DroppedAggregations = dropped
	if pred != nil {
		result.FilterColumns = pred.Columns()
	}
	return result, nil
}

func (e *Engine) filter(pred *expr.Predicate, stopAfter int) []int {
	n := e.table.NumRows()
	if pred == nil {
		if stopAfter >= 0 && stopAfter < n {
			n = stopAfter
		}
		return identity(n)
	}
	selected := make([]int, 0)
	for i := 0; i < n; i++ {
		if !pred.Match(e.table.Row(i)) {
			continue
		}
		selected = append(selected, i)
		if stopAfter >= 0 && len(selected) >= stopAfter {
			break
		}
	}
	return selected
}

func supportedAggregations(requested Aggregations) (Aggregations, []Aggregation) {
	var kept Aggregations
	var dropped []Aggregation
	seen := map[string]bool{}
	for _, agg := range requested {
		if !agg.Kind.Supported() {
			dropped = append(dropped, agg)
			continue
		}
		name := agg.OutputName()
		if seen[name] {
			continue
		}
		seen[name] = true
		kept = append(kept, agg)
	}
	return kept, dropped
}

// validateReferences checks group_by and aggregation columns against the
// base schema even when grouping is skipped because one side is empty.
func validateReferences(fields []table.Field, groupBy []string, aggs Aggregations) error {
	names := fieldNames(fields)
	for _, name := range groupBy {
		if _, ok := fieldByName(fields, name); !ok {
			return unknownColumn(name, "group_by", names)
		}
	}
	for _, agg := range aggs {
		if _, ok := fieldByName(fields, agg.Column); !ok {
			return unknownColumn(agg.Column, "aggregations", names)
		}
	}
	return nil
}

func validateAggregationTypes(fields []table.Field, aggs Aggregations) error {
	for _, agg := range aggs {
		field, _ := fieldByName(fields, agg.Column)
		if requiresNumeric(agg.Kind) && !field.Type.Numeric() {
			return &Error{
				Kind:   KindTypeMismatch,
				Column: agg.Column,
				Msg:    fmt.Sprintf("aggregation %s requires a numeric column, %q is %s", agg.Kind, agg.Column, field.Type),
			}
		}
	}
	return nil
}

// groupAndAggregate partitions rows by the group-by tuple in discovery order
// and emits one row per group: the key columns followed by the aggregates.
func groupAndAggregate(t *table.Table, base []table.Field, rows []int, groupBy []string, aggs Aggregations) *frame {
	keyCols := make([]int, len(groupBy))
	fields := make([]table.Field, 0, len(groupBy)+len(aggs))
	for i, name := range groupBy {
		keyCols[i], _ = t.ColumnIndex(name)
		fields = append(fields, base[keyCols[i]])
	}
	aggCols := make([]int, len(aggs))
	for i, agg := range aggs {
		aggCols[i], _ = t.ColumnIndex(agg.Column)
		fields = append(fields, table.Field{
			Name: agg.OutputName(),
			Type: aggregateType(agg.Kind, base[aggCols[i]].Type),
		})
	}

	groupIndex := map[string]int{}
	var groups [][]int
	var key strings.Builder
	for _, row := range rows {
		key.Reset()
		for _, col := range keyCols {
			writeKeyPart(&key, t.Value(row, col))
		}
		g, ok := groupIndex[key.String()]
		if !ok {
			g = len(groups)
			groupIndex[key.String()] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], row)
	}

	out := make(matrix, len(groups))
	values := make([]any, 0)
	for g, members := range groups {
		record := make([]any, 0, len(fields))
		for _, col := range keyCols {
			record = append(record, t.Value(members[0], col))
		}
		for i, agg := range aggs {
			values = values[:0]
			for _, row := range members {
				values = append(values, t.Value(row, aggCols[i]))
			}
			record = append(record, aggregate(agg.Kind, base[aggCols[i]].Type, values))
		}
		out[g] = record
	}

	return &frame{src: out, fields: fields, cols: identity(len(fields)), rows: identity(len(out))}
}

func writeKeyPart(b *strings.Builder, v any) {
	if v == nil {
		b.WriteString("~|")
		return
	}
	var s string
	switch typed := v.(type) {
	case string:
		s = typed
	case int64:
		s = strconv.FormatInt(typed, 10)
	case float64:
		s = strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		s = strconv.FormatBool(typed)
	case time.Time:
		s = typed.Format(time.RFC3339Nano)
	default:
		s = fmt.Sprint(typed)
	}
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
	b.WriteByte('|')
}

func project(f *frame, columns []string) error {
	fields := make([]table.Field, 0, len(columns))
	cols := make([]int, 0, len(columns))
	seen := map[string]bool{}
	for _, name := range columns {
		if seen[name] {
			continue
		}
		idx, ok := f.lookup(name)
		if !ok {
			return unknownColumn(name, "columns", f.names())
		}
		seen[name] = true
		fields = append(fields, f.fields[idx])
		cols = append(cols, f.cols[idx])
	}
	f.fields = fields
	f.cols = cols
	return nil
}

// sortRows is a stable sort; missing values (null, NaN) go last in either
// direction.
func sortRows(f *frame, field int, descending bool) {
	col := f.cols[field]
	sort.SliceStable(f.rows, func(i, j int) bool {
		a := f.src.Value(f.rows[i], col)
		b := f.src.Value(f.rows[j], col)
		aMissing, bMissing := isMissing(a), isMissing(b)
		switch {
		case aMissing:
			return false
		case bMissing:
			return true
		}
		cmp, ok := table.Compare(a, b)
		if !ok {
			return false
		}
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func materialize(f *frame) Result {
	columns := f.names()
	rows := make([][]any, len(f.rows))
	for i := range f.rows {
		values := make([]any, len(f.fields))
		for j := range f.fields {
			values[j] = jsonSafe(f.value(i, j))
		}
		rows[i] = values
	}
	return Result{
		Columns: columns,
		Rows:    rows,
		Shape:   Shape{Rows: len(rows), Columns: len(columns)},
	}
}

// jsonSafe maps non-finite floats to null; JSON has no encoding for them.
func jsonSafe(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

// uniqueNames keeps the first occurrence of each name.
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func fieldByName(fields []table.Field, name string) (table.Field, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return table.Field{}, false
}

func fieldNames(fields []table.Field) []string {
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name
	}
	return names
}

func unknownColumn(name, clause string, available []string) *Error {
	return &Error{
		Kind:   KindUnknownColumn,
		Column: name,
		Msg:    fmt.Sprintf("unknown column %q in %s; available columns: %s", name, clause, strings.Join(available, ", ")),
	}
}

func invalidExpression(err error) *Error {
	out := &Error{Kind: KindInvalidExpression, Msg: "invalid filter_expr", Err: err}
	var exprErr *expr.Error
	if errors.As(err, &exprErr) {
		out.Column = exprErr.Column
	}
	return out
}
