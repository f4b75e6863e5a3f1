package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/duckmesh/tableagent/internal/guard"
	"github.com/duckmesh/tableagent/internal/query"
	"github.com/duckmesh/tableagent/internal/table"
)

func testTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.FromRecords([]table.Field{
		{Name: "region", Type: table.TypeString},
		{Name: "revenue", Type: table.TypeFloat},
	}, []map[string]any{
		{"region": "eu", "revenue": 100.0},
		{"region": "us", "revenue": 250.0},
		{"region": "eu", "revenue": 50.0},
	})
	if err != nil {
		t.Fatalf("FromRecords() error = %v", err)
	}
	return tbl
}

func testToolbox(t *testing.T) *Toolbox {
	t.Helper()
	tbl := testTable(t)
	engine, err := query.NewEngine(tbl)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	box, err := DataTools(tbl, engine)
	if err != nil {
		t.Fatalf("DataTools() error = %v", err)
	}
	return box
}

func decodeErrorCode(t *testing.T, content string) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		t.Fatalf("decode error payload %q: %v", content, err)
	}
	return payload.Error.Code
}

func TestDataToolsDefinitionsOrder(t *testing.T) {
	defs := testToolbox(t).Definitions()
	if len(defs) != 2 || defs[0].Name != GetSchemaTool || defs[1].Name != QueryDataTool {
		t.Fatalf("Definitions() = %+v", defs)
	}
	if !strings.Contains(defs[1].Description, "sum, mean, count, min, max, std, median") {
		t.Fatalf("query_data description = %q", defs[1].Description)
	}
	if !json.Valid(defs[0].Parameters) || !json.Valid(defs[1].Parameters) {
		t.Fatal("parameters must be valid JSON schema documents")
	}
}

func TestSessionInvokeSchemaAndQuery(t *testing.T) {
	session := NewSession(testToolbox(t), nil)
	session.Begin()

	schema := session.Invoke(context.Background(), Call{ID: "1", Name: GetSchemaTool})
	if schema.ErrorCode != "" || schema.Content != `{"region":"string","revenue":"float"}` {
		t.Fatalf("get_schema output = %+v", schema)
	}

	out := session.Invoke(context.Background(), Call{
		ID:        "2",
		Name:      QueryDataTool,
		Arguments: json.RawMessage(`{"group_by":["region"],"aggregations":{"revenue":"sum"},"order_by":"revenue_sum","limit":1}`),
	})
	if out.ErrorCode != "" {
		t.Fatalf("query_data error = %s", out.Content)
	}
	want := `{"data":[{"region":"us","revenue_sum":250}],"shape":{"rows":1,"columns":2}}`
	if out.Content != want {
		t.Fatalf("query_data content = %s, want %s", out.Content, want)
	}
}

func TestSessionInvokeErrorPayloads(t *testing.T) {
	session := NewSession(testToolbox(t), nil)
	cases := []struct {
		call Call
		code string
	}{
		{Call{Name: QueryDataTool, Arguments: json.RawMessage(`{"columns":["nope"]}`)}, CodeUnknownColumn},
		{Call{Name: QueryDataTool, Arguments: json.RawMessage(`{"filter_expr":"pl.col('foo') > 5"}`)}, CodeInvalidExpression},
		{Call{Name: QueryDataTool, Arguments: json.RawMessage(`{"group_by":["revenue"],"aggregations":{"region":"mean"}}`)}, CodeTypeMismatch},
		{Call{Name: QueryDataTool, Arguments: json.RawMessage(`{"limit":"ten"}`)}, CodeInvalidArguments},
		{Call{Name: QueryDataTool, Arguments: json.RawMessage(`{"colums":["region"]}`)}, CodeInvalidArguments},
		{Call{Name: "drop_table"}, CodeUnknownTool},
	}
	for _, tc := range cases {
		out := session.Invoke(context.Background(), tc.call)
		if out.ErrorCode != tc.code {
			t.Fatalf("Invoke(%s %s) code = %q, want %q (%s)", tc.call.Name, tc.call.Arguments, out.ErrorCode, tc.code, out.Content)
		}
		if got := decodeErrorCode(t, out.Content); got != tc.code {
			t.Fatalf("payload code = %q, want %q", got, tc.code)
		}
	}
}

func TestSessionRecoversPanics(t *testing.T) {
	box := NewToolbox()
	if err := box.Register(Tool{Name: "boom", Handler: func(context.Context, json.RawMessage) (any, error) {
		panic("kaboom")
	}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	out := NewSession(box, nil).Invoke(context.Background(), Call{Name: "boom"})
	if out.ErrorCode != CodeToolFailed || !strings.Contains(out.Content, "kaboom") {
		t.Fatalf("Invoke() = %+v", out)
	}
}

func TestSessionGuardVetoesAfterBudget(t *testing.T) {
	g := guard.New(QueryDataTool, 2)
	session := NewSession(testToolbox(t), nil, g)
	session.Begin()

	args := json.RawMessage(`{"limit":1}`)
	for i := 0; i < 2; i++ {
		if out := session.Invoke(context.Background(), Call{Name: QueryDataTool, Arguments: args}); out.Vetoed {
			t.Fatalf("call %d vetoed", i+1)
		}
	}
	out := session.Invoke(context.Background(), Call{Name: QueryDataTool, Arguments: args})
	if !out.Vetoed || out.Content != guard.VetoMessage(QueryDataTool, 2) {
		t.Fatalf("third call = %+v", out)
	}
	if out := session.Invoke(context.Background(), Call{Name: GetSchemaTool}); out.Vetoed {
		t.Fatal("get_schema must not be vetoed")
	}

	session.Begin()
	if out := session.Invoke(context.Background(), Call{Name: QueryDataTool, Arguments: args}); out.Vetoed {
		t.Fatal("budget not reset by Begin()")
	}
}

func TestSessionConcurrentInvokeRespectsBudget(t *testing.T) {
	g := guard.New(QueryDataTool, 3)
	session := NewSession(testToolbox(t), nil, g)
	session.Begin()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		vetoes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := session.Invoke(context.Background(), Call{Name: QueryDataTool, Arguments: json.RawMessage(`{}`)})
			if out.Vetoed {
				mu.Lock()
				vetoes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if vetoes != 17 {
		t.Fatalf("vetoes = %d, want 17", vetoes)
	}
}

func TestToolboxRegisterValidation(t *testing.T) {
	box := NewToolbox()
	noop := func(context.Context, json.RawMessage) (any, error) { return nil, nil }
	if err := box.Register(Tool{Name: " ", Handler: noop}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := box.Register(Tool{Name: "x"}); err == nil {
		t.Fatal("expected error for missing handler")
	}
	if err := box.Register(Tool{Name: "x", Handler: noop}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := box.Register(Tool{Name: "x", Handler: noop}); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("Register(duplicate) error = %v", err)
	}
	if _, err := box.Call(context.Background(), "y", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Call(unknown) error = %v", err)
	}
}

func TestDecodeQueryRequestKeepsDefaults(t *testing.T) {
	req, err := DecodeQueryRequest(json.RawMessage(`{"order_by":"revenue"}`))
	if err != nil {
		t.Fatalf("DecodeQueryRequest() error = %v", err)
	}
	if !req.OrderDescending || req.Limit != query.DefaultLimit {
		t.Fatalf("defaults lost: %+v", req)
	}
	req, err = DecodeQueryRequest(nil)
	if err != nil || req.Limit != query.DefaultLimit {
		t.Fatalf("DecodeQueryRequest(nil) = %+v, %v", req, err)
	}
}
