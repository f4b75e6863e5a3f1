package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

const (
	DefaultLimit = 40
	MinLimit     = 1
	MaxLimit     = 100
)

type AggKind string

const (
	AggSum    AggKind = "sum"
	AggMean   AggKind = "mean"
	AggCount  AggKind = "count"
	AggMin    AggKind = "min"
	AggMax    AggKind = "max"
	AggStd    AggKind = "std"
	AggMedian AggKind = "median"
)

func (k AggKind) Supported() bool {
	switch k {
	case AggSum, AggMean, AggCount, AggMin, AggMax, AggStd, AggMedian:
		return true
	default:
		return false
	}
}

type Aggregation struct {
	Column string
	Kind   AggKind
}

func (a Aggregation) OutputName() string {
	return a.Column + "_" + string(a.Kind)
}

// Aggregations is an ordered column -> kind mapping. It decodes from a JSON
// object and keeps the object's key order; a repeated key replaces the
// earlier kind in place.
type Aggregations []Aggregation

func (a *Aggregations) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*a = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("aggregations must be an object mapping column to aggregation")
	}

	var out Aggregations
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		column, _ := keyTok.(string)
		var kind string
		if err := dec.Decode(&kind); err != nil {
			return fmt.Errorf("aggregation for %q must be a string: %w", column, err)
		}
		replaced := false
		for i := range out {
			if out[i].Column == column {
				out[i].Kind = AggKind(kind)
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, Aggregation{Column: column, Kind: AggKind(kind)})
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

func (a Aggregations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, agg := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(agg.Column)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(string(agg.Kind))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Request is the declarative query accepted by the engine. Decode JSON on top
// of DefaultRequest so omitted fields keep their defaults.
type Request struct {
	Columns         []string     `json:"columns,omitempty"`
	Filter          string       `json:"filter_expr,omitempty"`
	GroupBy         []string     `json:"group_by,omitempty"`
	Aggregations    Aggregations `json:"aggregations,omitempty"`
	OrderBy         string       `json:"order_by,omitempty"`
	OrderDescending bool         `json:"order_descending"`
	Limit           int          `json:"limit"`
}

func DefaultRequest() Request {
	return Request{OrderDescending: true, Limit: DefaultLimit}
}

// EffectiveLimit clamps Limit to [MinLimit, MaxLimit].
func (r Request) EffectiveLimit() int {
	return ClampLimit(r.Limit)
}

func ClampLimit(limit int) int {
	if limit > MaxLimit {
		return MaxLimit
	}
	if limit < MinLimit {
		return MinLimit
	}
	return limit
}

type Executor interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
