package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastHTTP(attempts int) *HTTPFetcher {
	return NewHTTP(HTTPOptions{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		RatePerSecond:  1000,
	})
}

func TestResolve_LocalPathPassesThrough(t *testing.T) {
	r := NewResolver(nil, nil, t.TempDir())

	path, cleanup, err := r.Resolve(context.Background(), "/data/jan.csv")
	require.NoError(t, err)
	assert.Equal(t, "/data/jan.csv", path)

	// Cleanup of a local path must not touch the file.
	real := filepath.Join(t.TempDir(), "keep.csv")
	require.NoError(t, os.WriteFile(real, []byte("a,b\n"), 0o644))
	path, cleanup, err = r.Resolve(context.Background(), real)
	require.NoError(t, err)
	cleanup()
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestResolve_RelativePathPassesThrough(t *testing.T) {
	r := NewResolver(nil, nil, t.TempDir())
	path, _, err := r.Resolve(context.Background(), "data/jan.csv")
	require.NoError(t, err)
	assert.Equal(t, "data/jan.csv", path)
}

func TestResolve_MissingFetcher(t *testing.T) {
	r := NewResolver(nil, nil, t.TempDir())
	_, _, err := r.Resolve(context.Background(), "ftp://partner.example.com/jan.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scheme "ftp"`)
}

func TestResolve_DownloadAndCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("date,impressions\n2026-01-15,1000\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := NewResolver(fastHTTP(1), nil, dir)

	path, cleanup, err := r.Resolve(context.Background(), srv.URL+"/jan.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "impressions")

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestHTTPFetch_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	path, err := fastHTTP(3).Fetch(context.Background(), srv.URL+"/jan.csv", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(raw))
}

func TestHTTPFetch_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastHTTP(2).Fetch(context.Background(), srv.URL, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFetch_PermanentFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fastHTTP(3).Fetch(context.Background(), srv.URL+"/gone.csv", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load(), "4xx is permanent")
}

func TestHTTPFetch_SendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTP(HTTPOptions{UserAgent: "harmonize-cli/1.0", MaxAttempts: 1, RatePerSecond: 1000})
	_, err := f.Fetch(context.Background(), srv.URL, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "harmonize-cli/1.0", got)
}

func TestScratchPath_KeepsExtension(t *testing.T) {
	p := scratchPath("/tmp", "https://partner.example.com/exports/jan.xlsx")
	assert.Equal(t, ".xlsx", filepath.Ext(p))

	p = scratchPath("/tmp", "https://partner.example.com/export.csv?token=abc")
	assert.Equal(t, ".csv", filepath.Ext(p))

	p = scratchPath("/tmp", "https://partner.example.com/export")
	assert.Equal(t, "", filepath.Ext(p))
}

func TestTransient_Classification(t *testing.T) {
	assert.False(t, transient(nil))
	assert.True(t, transient(&transientErr{err: assert.AnError}))
	assert.True(t, transient(errContaining("read tcp: connection reset by peer")))
	assert.False(t, transient(assert.AnError))
}

type strErr string

func (e strErr) Error() string { return string(e) }

func errContaining(msg string) error { return strErr(msg) }
