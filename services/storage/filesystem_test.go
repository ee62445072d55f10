package storagesvc

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core"
)

var pdf = []byte("%PDF-1.3\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")

func newStore(t *testing.T) *FileStore {
	conf := core.NewTestConfig()
	conf.Storage.Dir = t.TempDir()
	conf.Storage.PublicBaseURL = "http://localhost:8000/files/"
	return NewFileStore(conf)
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	url, err := store.Put(ctx, "documents/t1/abc/FAC-2025-0001.pdf", pdf)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/files/documents/t1/abc/FAC-2025-0001.pdf", url)

	data, err := store.Get(ctx, "documents/t1/abc/FAC-2025-0001.pdf")
	require.NoError(t, err)
	assert.Equal(t, pdf, data)

	_, err = store.Get(ctx, "documents/t1/missing.pdf")
	assert.True(t, core.IsNotFound(err))
}

func TestFileStoreRejects(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		data []byte
		err  error
	}{
		{name: "escaping key", key: "../secret.pdf", data: pdf, err: ErrInvalidKey},
		{name: "absolute key", key: "/etc/x.pdf", data: pdf, err: ErrInvalidKey},
		{name: "empty key", key: "", data: pdf, err: ErrInvalidKey},
		{name: "script", key: "logos/x.html", data: []byte("<html><script>alert(1)</script></html>"), err: ErrUnsupportedType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Put(ctx, tc.key, tc.data)
			assert.True(t, errors.Is(err, tc.err), "got %v", err)
		})
	}
}
