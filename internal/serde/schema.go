package serde

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hamba/avro/v2"

	"github.com/glizzus/kafka-connector/internal/schedule"
)

// ConfigurationError reports a schema that cannot be loaded or parsed.
type ConfigurationError = schedule.ConfigurationError

// BlobGetter reads objects from blob storage.
type BlobGetter interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

const s3Scheme = "s3://"

// LoadSchema reads and parses an Avro schema from a file path or from an
// s3://bucket/key location. blobs may be nil when no s3 locations are used.
// An empty source yields a nil schema.
func LoadSchema(ctx context.Context, source string, blobs BlobGetter) (avro.Schema, error) {
	if source == "" {
		return nil, nil
	}

	raw, err := readSchema(ctx, source, blobs)
	if err != nil {
		return nil, &ConfigurationError{Field: "schema", Reason: "cannot read " + source, Err: err}
	}
	schema, err := avro.Parse(string(raw))
	if err != nil {
		return nil, &ConfigurationError{Field: "schema", Reason: "cannot parse " + source, Err: err}
	}
	return schema, nil
}

func readSchema(ctx context.Context, source string, blobs BlobGetter) ([]byte, error) {
	location, ok := strings.CutPrefix(source, s3Scheme)
	if !ok {
		return os.ReadFile(source)
	}

	bucket, key, ok := strings.Cut(location, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("expected %sbucket/key", s3Scheme)
	}
	if blobs == nil {
		return nil, fmt.Errorf("no blob storage configured")
	}

	body, err := blobs.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}
