package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStoreRetriesBucketCheck(t *testing.T) {
	var heads atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && strings.Trim(r.URL.Path, "/") == "toast" {
			heads.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := NewObjectStore(ObjectStoreConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "a",
		SecretKey: "s",
		Bucket:    "toast",
	})
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, store.ensureBucket(canceled))

	// A failure is not remembered.
	require.NoError(t, store.ensureBucket(context.Background()))
	checked := heads.Load()
	assert.GreaterOrEqual(t, checked, int64(1))

	require.NoError(t, store.ensureBucket(context.Background()))
	assert.Equal(t, checked, heads.Load(), "a confirmed bucket is not checked again")
}
