package query

import (
	"bytes"
	"encoding/json"
)

type Shape struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// Result holds materialized rows in column order. It marshals to the tool
// contract {"data": [{column: value}], "shape": {"rows", "columns"}}.
type Result struct {
	Columns []string
	Rows    [][]any
	Shape   Shape
	// DroppedAggregations lists requested aggregations whose kind is not
	// supported and that were skipped.
	DroppedAggregations []Aggregation
	// FilterColumns lists the columns the filter expression referenced.
	FilterColumns []string
}

func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"data":[`)
	keys := make([][]byte, len(r.Columns))
	for i, column := range r.Columns {
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	for i, values := range r.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j := range r.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			value, err := json.Marshal(values[j])
			if err != nil {
				return nil, err
			}
			buf.Write(keys[j])
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteString(`],"shape":`)
	shape, err := json.Marshal(r.Shape)
	if err != nil {
		return nil, err
	}
	buf.Write(shape)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
