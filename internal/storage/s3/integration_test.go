//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/duckmesh/tableagent/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("TABLEAGENT_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("TABLEAGENT_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Endpoint:         endpoint,
		Region:           envOr("TABLEAGENT_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("TABLEAGENT_TEST_S3_BUCKET", "tableagent-it"),
		AccessKeyID:      envOr("TABLEAGENT_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("TABLEAGENT_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "datasets/roundtrip/roundtrip.csv"
	payload := []byte("id,region\n1,eu\n")
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var buf bytes.Buffer
	info, err := storage.Download(ctx, store, key, &buf, 1<<20)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if info.Size != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Fatalf("Download() = %q (%d bytes)", buf.String(), info.Size)
	}

	if _, err := store.Stat(ctx, "datasets/missing/missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat(missing) error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
