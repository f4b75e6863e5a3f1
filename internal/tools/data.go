package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duckmesh/tableagent/internal/observability"
	"github.com/duckmesh/tableagent/internal/query"
	"github.com/duckmesh/tableagent/internal/table"
)

const (
	GetSchemaTool = "get_schema"
	QueryDataTool = "query_data"
)

const getSchemaDescription = "Get the schema of the dataset including all column names and their data types. " +
	"Use this first to understand what data is available."

const queryDataDescription = "Query the dataset with various operations including: selecting columns, filtering rows, " +
	"grouping and aggregating data, ordering results, and limiting output. " +
	"By default returns up to 40 results in descending order. " +
	"Supports aggregations: sum, mean, count, min, max, std, median. " +
	"Filter expressions use Polars syntax: pl.col('column_name') > 5, pl.col('name') == 'John', etc."

var queryDataParameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "columns": {"type": "array", "items": {"type": "string"}, "description": "Columns to select. All columns when omitted."},
    "filter_expr": {"type": "string", "description": "Filter expression, e.g. pl.col('age') > 30"},
    "group_by": {"type": "array", "items": {"type": "string"}, "description": "Columns to group by for aggregations."},
    "aggregations": {"type": "object", "additionalProperties": {"type": "string", "enum": ["sum", "mean", "count", "min", "max", "std", "median"]}, "description": "Column to aggregation mapping, e.g. {\"revenue\": \"sum\"}. Output columns are named <column>_<aggregation>."},
    "order_by": {"type": "string", "description": "Column to sort by."},
    "order_descending": {"type": "boolean", "default": true},
    "limit": {"type": "integer", "default": 40, "minimum": 1, "maximum": 100}
  },
  "additionalProperties": false
}`)

// SchemaInspector is satisfied by *table.Table.
type SchemaInspector interface {
	Describe() table.Descriptor
}

// DataTools registers get_schema and query_data on a new toolbox.
func DataTools(inspector SchemaInspector, executor query.Executor) (*Toolbox, error) {
	if inspector == nil || executor == nil {
		return nil, fmt.Errorf("schema inspector and query executor are required")
	}
	box := NewToolbox()
	if err := box.Register(Tool{
		Name:        GetSchemaTool,
		Description: getSchemaDescription,
		Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return inspector.Describe(), nil
		},
	}); err != nil {
		return nil, err
	}
	if err := box.Register(Tool{
		Name:        QueryDataTool,
		Description: queryDataDescription,
		Parameters:  queryDataParameters,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			req, err := DecodeQueryRequest(args)
			if err != nil {
				return nil, err
			}
			start := time.Now()
			result, err := executor.Execute(ctx, req)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			observability.ObserveQuery(outcome, time.Since(start))
			if err != nil {
				return nil, err
			}
			return result, nil
		},
	}); err != nil {
		return nil, err
	}
	return box, nil
}

// DecodeQueryRequest decodes query_data arguments on top of the defaults.
// Unknown fields are rejected.
func DecodeQueryRequest(args json.RawMessage) (query.Request, error) {
	req := query.DefaultRequest()
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return req, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return query.Request{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return req, nil
}
