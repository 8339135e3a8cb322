package fetch

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher. Anonymous login is used when no
// credentials are given, which covers most partner drop servers.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
}

// FTPFetcher downloads payloads from ftp:// locations.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTP creates an FTPFetcher.
func NewFTP(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &FTPFetcher{opts: opts}
}

func (f *FTPFetcher) Fetch(ctx context.Context, location, dir string) (string, error) {
	host, remotePath, err := parseFTPURL(location)
	if err != nil {
		return "", err
	}

	zap.L().Debug("ftp connecting",
		zap.String("component", "fetch"),
		zap.String("host", host),
		zap.String("path", remotePath),
	)

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", eris.Wrapf(err, "fetch: ftp dial %s", host)
	}
	defer conn.Quit()

	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		return "", eris.Wrap(err, "fetch: ftp login")
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: ftp retrieve %s", remotePath)
	}
	defer resp.Close()

	local := scratchPath(dir, location)
	out, err := os.Create(local)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: create %s", local)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp); err != nil {
		os.Remove(local)
		return "", eris.Wrapf(err, "fetch: copy %s", location)
	}
	return local, nil
}

func parseFTPURL(raw string) (host, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", eris.Wrapf(err, "fetch: parse ftp url %s", raw)
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("fetch: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return "", "", eris.New("fetch: empty path in ftp url")
	}
	return host, u.Path, nil
}
