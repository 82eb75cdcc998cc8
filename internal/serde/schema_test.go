package serde_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glizzus/kafka-connector/internal/serde"
)

type mapBlobs map[string]string

func (m mapBlobs) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := m[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestLoadSchemaFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reading.avsc")
	require.NoError(t, os.WriteFile(path, []byte(readingSchema), 0o600))

	schema, err := serde.LoadSchema(t.Context(), path, nil)
	require.NoError(t, err)
	assert.Contains(t, schema.String(), "sensors.Reading")
}

func TestLoadSchemaFromBlobStorage(t *testing.T) {
	blobs := mapBlobs{"schemas/reading.avsc": readingSchema}

	schema, err := serde.LoadSchema(t.Context(), "s3://schemas/reading.avsc", blobs)
	require.NoError(t, err)
	assert.NotNil(t, schema)
}

func TestLoadSchemaEmpty(t *testing.T) {
	schema, err := serde.LoadSchema(t.Context(), "", nil)
	assert.NoError(t, err)
	assert.Nil(t, schema)
}

func TestLoadSchemaFailures(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.avsc")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type": "nope"}`), 0o600))

	table := []struct {
		name   string
		source string
		blobs  serde.BlobGetter
	}{
		{name: "missing file", source: filepath.Join(t.TempDir(), "missing.avsc")},
		{name: "unparseable", source: bad},
		{name: "s3 without storage", source: "s3://schemas/reading.avsc"},
		{name: "s3 without key", source: "s3://schemas", blobs: mapBlobs{}},
		{name: "s3 missing key", source: "s3://schemas/other.avsc", blobs: mapBlobs{}},
	}
	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			_, err := serde.LoadSchema(t.Context(), tc.source, tc.blobs)
			var cfgErr *serde.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}
