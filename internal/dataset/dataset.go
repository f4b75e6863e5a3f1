// Package dataset loads the table the service answers questions about. A
// load happens once at startup; any failure aborts the process.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/duckmesh/tableagent/internal/storage"
	"github.com/duckmesh/tableagent/internal/table"
)

type Source string

const (
	SourceFile     Source = "file"
	SourceS3       Source = "s3"
	SourcePostgres Source = "postgres"
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

const DefaultMaxRows = 1_000_000

// FormatFromPath infers the file format from the extension of p.
func FormatFromPath(p string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSuffix(p, ".gz")), "."))
	switch ext {
	case "parquet", "pq":
		return FormatParquet, nil
	case "csv", "tsv":
		return FormatCSV, nil
	case "json", "jsonl", "ndjson":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("cannot infer dataset format from %q", p)
}

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatParquet:
		return FormatParquet, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported dataset format %q", raw)
}

// Options selects where the table comes from. Location is a local path for
// SourceFile, an object key for SourceS3 and a table name for SourcePostgres.
type Options struct {
	Source         Source
	Location       string
	Format         Format
	MaxRows        int
	MaxObjectBytes int64
	Store          storage.ObjectStore
	DB             *sql.DB
}

func (o Options) format() (Format, error) {
	if o.Format != "" {
		return ParseFormat(string(o.Format))
	}
	return FormatFromPath(o.Location)
}

func (o Options) maxRows() int {
	if o.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return o.MaxRows
}

// Load reads the whole dataset into an immutable table.
func Load(ctx context.Context, opts Options, logger *slog.Logger) (*table.Table, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(opts.Location) == "" {
		return nil, fmt.Errorf("dataset location is required")
	}
	start := time.Now()

	var (
		tbl *table.Table
		err error
	)
	switch opts.Source {
	case SourceFile:
		var format Format
		if format, err = opts.format(); err == nil {
			tbl, err = LoadFile(ctx, opts.Location, format, opts.maxRows())
		}
	case SourceS3:
		if opts.Store == nil {
			return nil, fmt.Errorf("object store is required for source %q", opts.Source)
		}
		var format Format
		if format, err = opts.format(); err == nil {
			tbl, err = LoadObject(ctx, opts.Store, opts.Location, format, opts.maxRows(), opts.MaxObjectBytes)
		}
	case SourcePostgres:
		if opts.DB == nil {
			return nil, fmt.Errorf("database handle is required for source %q", opts.Source)
		}
		tbl, err = LoadPostgres(ctx, opts.DB, opts.Location, opts.maxRows())
	default:
		return nil, fmt.Errorf("unsupported dataset source %q", opts.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s dataset %q: %w", opts.Source, opts.Location, err)
	}

	logger.InfoContext(ctx, "dataset loaded",
		slog.String("source", string(opts.Source)),
		slog.String("location", opts.Location),
		slog.Int("rows", tbl.NumRows()),
		slog.Int("columns", tbl.NumColumns()),
		slog.String("duration", time.Since(start).String()),
	)
	return tbl, nil
}
