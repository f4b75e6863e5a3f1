package demo

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/tableagent/internal/dataset"
	"github.com/duckmesh/tableagent/internal/query"
	"github.com/duckmesh/tableagent/internal/storage"
)

type memoryStore struct {
	objects  map[string][]byte
	metadata map[string]map[string]string
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.metadata = map[string]map[string]string{}
	}
	m.objects[key] = data
	m.metadata[key] = opts.Metadata
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string, _ storage.GetOptions) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func testSeedConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Rows = 120
	cfg.OutputPath = filepath.Join(t.TempDir(), "nested", "sales.parquet")
	cfg.StartDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.Days = 30
	return cfg
}

func TestSeederWritesFileAndUploads(t *testing.T) {
	cfg := testSeedConfig(t)
	cfg.Upload = true
	store := &memoryStore{}
	seeder, err := NewSeeder(cfg, nil, Targets{Store: store})
	if err != nil {
		t.Fatalf("NewSeeder() error = %v", err)
	}

	summary, err := seeder.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Rows != 120 || summary.Path != cfg.OutputPath || summary.Key != "datasets/sales/sales.parquet" {
		t.Fatalf("summary = %+v", summary)
	}

	onDisk, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(onDisk, store.objects[summary.Key]) {
		t.Fatal("uploaded object differs from file")
	}
	if meta := store.metadata[summary.Key]; meta["rows"] != "120" || meta["seed"] != "42" {
		t.Fatalf("object metadata = %v", meta)
	}
	if int64(len(onDisk)) != summary.Bytes {
		t.Fatalf("Bytes = %d, file has %d", summary.Bytes, len(onDisk))
	}

	rows, err := parquet.Read[Sale](bytes.NewReader(onDisk), int64(len(onDisk)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	want := NewGenerator(cfg.Seed, cfg.StartDate, cfg.Days).Generate(cfg.Rows)
	if len(rows) != len(want) || rows[0].OrderID != 1 || rows[0].Region != want[0].Region || rows[0].Revenue != want[0].Revenue {
		t.Fatalf("read back %d rows, first = %+v, want %+v", len(rows), rows[0], want[0])
	}
}

func TestNewSeederValidation(t *testing.T) {
	cfg := testSeedConfig(t)
	cfg.Upload = true
	if _, err := NewSeeder(cfg, nil, Targets{}); err == nil {
		t.Fatal("expected error for upload without store")
	}
	cfg.Upload = false
	cfg.OutputPath = ""
	if _, err := NewSeeder(cfg, nil, Targets{}); err == nil {
		t.Fatal("expected error without output target")
	}
	cfg.PostgresTable = "sales"
	if _, err := NewSeeder(cfg, nil, Targets{}); err == nil {
		t.Fatal("expected error for postgres table without database")
	}
}

func TestSeededDatasetAnswersRegionQuery(t *testing.T) {
	cfg := testSeedConfig(t)
	seeder, err := NewSeeder(cfg, nil, Targets{})
	if err != nil {
		t.Fatalf("NewSeeder() error = %v", err)
	}
	if _, err := seeder.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	tbl, err := dataset.LoadFile(context.Background(), cfg.OutputPath, dataset.FormatParquet, 0)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if tbl.NumRows() != cfg.Rows {
		t.Fatalf("NumRows() = %d, want %d", tbl.NumRows(), cfg.Rows)
	}
	engine, err := query.NewEngine(tbl)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	req := query.DefaultRequest()
	req.GroupBy = []string{"region"}
	req.Aggregations = query.Aggregations{{Column: "revenue", Kind: query.AggSum}}
	req.OrderBy = "revenue_sum"
	result, err := engine.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Shape.Rows == 0 || result.Shape.Rows > 4 || result.Columns[1] != "revenue_sum" {
		t.Fatalf("result = %+v", result)
	}
}
