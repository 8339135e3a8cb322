package fetch

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent      string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	RatePerSecond  float64
	Burst          int
}

// HTTPFetcher downloads payloads over HTTP(S) with a shared rate limit
// and exponential-backoff retries on transient failures.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    HTTPOptions
}

// NewHTTP creates an HTTPFetcher.
func NewHTTP(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 4
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RatePerSecond)
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		opts:    opts,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location, dir string) (string, error) {
	log := zap.L().With(zap.String("component", "fetch"), zap.String("url", location))

	var lastErr error
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt-1, f.opts.InitialBackoff)
			log.Warn("retrying download", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", lastErr
			case <-time.After(delay):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "fetch: rate limit wait")
		}

		path, err := f.download(ctx, location, dir)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if !transient(err) || ctx.Err() != nil {
			return "", lastErr
		}
	}
	return "", eris.Wrapf(lastErr, "fetch: %s after %d attempts", location, f.opts.MaxAttempts)
}

func (f *HTTPFetcher) download(ctx context.Context, location, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: build request %s", location)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &transientErr{eris.Wrapf(err, "fetch: GET %s", location)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", &transientErr{eris.Errorf("fetch: GET %s returned %d", location, resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", eris.Errorf("fetch: GET %s returned %d", location, resp.StatusCode)
	}

	path := scratchPath(dir, location)
	out, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: create %s", path)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(path)
		return "", &transientErr{eris.Wrapf(err, "fetch: copy body of %s", location)}
	}
	return path, nil
}

// transientErr marks a failure safe to retry.
type transientErr struct{ err error }

func (e *transientErr) Error() string { return e.err.Error() }
func (e *transientErr) Unwrap() error { return e.err }

func transient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientErr
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection reset by peer", "broken pipe", "i/o timeout", "no such host"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// backoff doubles per attempt with 25% jitter.
func backoff(attempt int, initial time.Duration) time.Duration {
	d := float64(initial) * math.Pow(2, float64(attempt))
	d += d * 0.25 * (rand.Float64()*2 - 1)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
