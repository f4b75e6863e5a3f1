package demo

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/tableagent/internal/storage"
)

type Summary struct {
	Rows          int
	Bytes         int64
	Path          string
	Key           string
	PostgresTable string
}

// Targets holds the optional sinks. Store is required when Config.Upload is
// set and DB when Config.PostgresTable is named.
type Targets struct {
	Store storage.ObjectStore
	DB    *sql.DB
}

// WriteParquet encodes sales as a single parquet file.
func WriteParquet(w io.Writer, sales []Sale) error {
	writer := parquet.NewGenericWriter[Sale](w)
	if _, err := writer.Write(sales); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

type Seeder struct {
	cfg     Config
	log     *slog.Logger
	targets Targets
}

func NewSeeder(cfg Config, logger *slog.Logger, targets Targets) (*Seeder, error) {
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("rows must be > 0")
	}
	if cfg.Upload && targets.Store == nil {
		return nil, fmt.Errorf("object store is required for upload")
	}
	if cfg.PostgresTable != "" && targets.DB == nil {
		return nil, fmt.Errorf("database is required for postgres table %q", cfg.PostgresTable)
	}
	if !cfg.hasTarget() {
		return nil, fmt.Errorf("no output target configured")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Seeder{cfg: cfg, log: logger, targets: targets}, nil
}

func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	sales := NewGenerator(s.cfg.Seed, s.cfg.StartDate, s.cfg.Days).Generate(s.cfg.Rows)
	var buf bytes.Buffer
	if err := WriteParquet(&buf, sales); err != nil {
		return Summary{}, err
	}
	summary := Summary{Rows: len(sales), Bytes: int64(buf.Len())}

	if s.cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.OutputPath), 0o755); err != nil {
			return Summary{}, fmt.Errorf("create output dir: %w", err)
		}
		if err := os.WriteFile(s.cfg.OutputPath, buf.Bytes(), 0o644); err != nil {
			return Summary{}, fmt.Errorf("write %s: %w", s.cfg.OutputPath, err)
		}
		summary.Path = s.cfg.OutputPath
		s.log.Info("demo dataset written", slog.String("path", s.cfg.OutputPath), slog.Int("rows", summary.Rows))
	}

	if s.cfg.Upload {
		key, err := storage.DatasetKey(s.cfg.DatasetName, "parquet")
		if err != nil {
			return Summary{}, err
		}
		info, err := s.targets.Store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{
			ContentType: "application/vnd.apache.parquet",
			Metadata: map[string]string{
				"rows": strconv.Itoa(summary.Rows),
				"seed": strconv.FormatInt(s.cfg.Seed, 10),
			},
		})
		if err != nil {
			return Summary{}, fmt.Errorf("upload %s: %w", key, err)
		}
		summary.Key = info.Key
		s.log.Info("demo dataset uploaded", slog.String("key", info.Key), slog.Int64("bytes", info.Size))
	}

	if s.cfg.PostgresTable != "" {
		if err := WritePostgres(ctx, s.targets.DB, s.cfg.PostgresTable, sales); err != nil {
			return Summary{}, err
		}
		summary.PostgresTable = s.cfg.PostgresTable
		s.log.Info("demo dataset inserted", slog.String("table", s.cfg.PostgresTable), slog.Int("rows", summary.Rows))
	}
	return summary, nil
}
