// Package fetch materializes remote raw-source payloads as local files.
// Partner deliveries arrive over HTTPS or FTP as often as on disk; the
// pipeline fetches them into a scratch directory before ingestion so the
// readers only ever deal with local paths.
package fetch

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Fetcher downloads one protocol's payloads.
type Fetcher interface {
	// Fetch downloads the payload behind location into dir and returns
	// the local file path.
	Fetch(ctx context.Context, location, dir string) (string, error)
}

// Resolver picks a Fetcher by location scheme. Local paths pass through
// untouched.
type Resolver struct {
	http Fetcher
	ftp  Fetcher
	dir  string
}

// NewResolver creates a Resolver downloading into dir (os.TempDir when
// empty).
func NewResolver(httpFetcher, ftpFetcher Fetcher, dir string) *Resolver {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Resolver{http: httpFetcher, ftp: ftpFetcher, dir: dir}
}

// Resolve returns a local path for the location, downloading when remote.
// The cleanup function removes the downloaded copy; for local paths it is
// a no-op.
func (r *Resolver) Resolve(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}

	scheme := ""
	if u, err := url.Parse(location); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}

	var f Fetcher
	switch scheme {
	case "http", "https":
		f = r.http
	case "ftp":
		f = r.ftp
	default:
		return location, noop, nil
	}
	if f == nil {
		return "", noop, eris.Errorf("fetch: no fetcher configured for scheme %q", scheme)
	}

	path, err := f.Fetch(ctx, location, r.dir)
	if err != nil {
		return "", noop, err
	}
	return path, func() { _ = os.Remove(path) }, nil
}

// scratchPath builds a collision-free download target keeping the remote
// file's extension so format sniffing still works.
func scratchPath(dir, location string) string {
	ext := filepath.Ext(location)
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	return filepath.Join(dir, "payload-"+uuid.New().String()[:8]+ext)
}
