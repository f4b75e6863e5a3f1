package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectTooLarge = errors.New("object exceeds size limit")
	ErrObjectChanged  = errors.New("object changed during read")
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// GetOptions pins a read to one object version. An empty MatchETag reads
// whatever is current.
type GetOptions struct {
	MatchETag string
}

// ObjectStore holds dataset files. The service only reads; Put is used by the
// seed command.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string, opts GetOptions) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// Download copies the object at key into w. The read is pinned to the ETag
// seen by Stat, so an object replaced mid-download fails with
// ErrObjectChanged. maxBytes <= 0 disables the size check; otherwise objects
// larger than maxBytes are refused before and during the copy.
func Download(ctx context.Context, store ObjectStore, key string, w io.Writer, maxBytes int64) (ObjectInfo, error) {
	info, err := store.Stat(ctx, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if maxBytes > 0 && info.Size > maxBytes {
		return ObjectInfo{}, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrObjectTooLarge, key, info.Size, maxBytes)
	}
	reader, err := store.Get(ctx, key, GetOptions{MatchETag: info.ETag})
	if err != nil {
		return ObjectInfo{}, err
	}
	defer func() { _ = reader.Close() }()

	src := io.Reader(reader)
	if maxBytes > 0 {
		src = io.LimitReader(reader, maxBytes+1)
	}
	written, err := io.Copy(w, src)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("copy object %q: %w", key, err)
	}
	if maxBytes > 0 && written > maxBytes {
		return ObjectInfo{}, fmt.Errorf("%w: %s grew past %d bytes", ErrObjectTooLarge, key, maxBytes)
	}
	info.Size = written
	return info, nil
}
