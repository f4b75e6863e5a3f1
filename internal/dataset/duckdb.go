package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/tableagent/internal/storage"
	"github.com/duckmesh/tableagent/internal/table"
)

// LoadFile reads a local parquet, csv or newline-delimited json file through
// an in-memory DuckDB.
func LoadFile(ctx context.Context, localPath string, format Format, maxRows int) (*table.Table, error) {
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("stat dataset file: %w", err)
	}
	reader, err := readFunction(format)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	sqlText := fmt.Sprintf("SELECT * FROM %s(%s)", reader, quoteString(localPath))
	if maxRows > 0 {
		// One extra row lets FromRows tell "exactly maxRows" from "too many".
		sqlText += fmt.Sprintf(" LIMIT %d", maxRows+1)
	}
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("read %s file: %w", format, err)
	}
	defer func() { _ = rows.Close() }()
	return FromRows(rows, maxRows)
}

// LoadObject downloads key into a temp dir and reads it with LoadFile.
func LoadObject(ctx context.Context, store storage.ObjectStore, key string, format Format, maxRows int, maxBytes int64) (*table.Table, error) {
	workDir, err := os.MkdirTemp("", "tableagent-dataset-")
	if err != nil {
		return nil, fmt.Errorf("create dataset temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "dataset."+string(format))
	if err := downloadTo(ctx, store, key, localPath, maxBytes); err != nil {
		return nil, err
	}
	return LoadFile(ctx, localPath, format, maxRows)
}

func downloadTo(ctx context.Context, store storage.ObjectStore, key, localPath string, maxBytes int64) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local dataset file: %w", err)
	}
	if _, err := storage.Download(ctx, store, key, file, maxBytes); err != nil {
		_ = file.Close()
		return fmt.Errorf("download %q: %w", key, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close local dataset file: %w", err)
	}
	return nil
}

func readFunction(format Format) (string, error) {
	switch format {
	case FormatParquet:
		return "read_parquet", nil
	case FormatCSV:
		return "read_csv_auto", nil
	case FormatJSON:
		return "read_json_auto", nil
	}
	return "", fmt.Errorf("unsupported dataset format %q", format)
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
