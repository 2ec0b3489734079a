package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const enableFetchDebugLogs = false

const (
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Page is a fetched document.
type Page struct {
	Status int
	Body   string
}

// PageGetter performs exactly one request for a URL.
type PageGetter interface {
	Get(ctx context.Context, url string) (Page, error)
}

// Pacer blocks until the next request to a server may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// HTTPGetter fetches pages with a plain HTTP client.
type HTTPGetter struct {
	client *resty.Client
}

// NewHTTPGetter creates a getter with the given per-request timeout and
// extra headers. A User-Agent header overrides DefaultUserAgent.
func NewHTTPGetter(timeout time.Duration, headers map[string]string) *HTTPGetter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", DefaultUserAgent).
		SetHeaders(headers)
	return &HTTPGetter{client: client}
}

func (g *HTTPGetter) Get(ctx context.Context, url string) (Page, error) {
	res, err := g.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return Page{}, err
	}
	return Page{Status: res.StatusCode(), Body: string(res.Body())}, nil
}

// Fetcher wraps a PageGetter with pacing and linear-backoff retries.
type Fetcher struct {
	Getter     PageGetter
	Pacer      Pacer
	MaxRetries int
	RetryDelay time.Duration
	LogPrefix  string

	sleep func(ctx context.Context, d time.Duration) error
}

// Fetch requests url until it gets a final answer. Transport failures,
// 429 and 5xx statuses are retried up to MaxRetries times, waiting
// attempt*RetryDelay between attempts. A 404 is returned as a page so the
// adapter can inspect it. Every attempt passes the pacer first.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	sleep := f.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	attempts := f.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, time.Duration(attempt-1)*f.RetryDelay); err != nil {
				return Page{}, abortedWait(err, lastErr)
			}
		}
		if f.Pacer != nil {
			if err := f.Pacer.Wait(ctx); err != nil {
				return Page{}, abortedWait(err, lastErr)
			}
		}

		page, err := f.Getter.Get(ctx, url)
		if err != nil {
			lastErr = err
			log.Printf("[W] %s Error on page (attempt %d/%d): %v", f.LogPrefix, attempt, attempts, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch {
		case page.Status == http.StatusOK, page.Status == http.StatusNotFound:
			if enableFetchDebugLogs {
				log.Printf("[D] %s Fetched %s (status %d, %d bytes)", f.LogPrefix, url, page.Status, len(page.Body))
			}
			return page, nil
		case page.Status == http.StatusTooManyRequests, page.Status >= 500:
			lastErr = fmt.Errorf("received non-200 status: %d", page.Status)
			log.Printf("[W] %s Non-200 status (attempt %d/%d): %d", f.LogPrefix, attempt, attempts, page.Status)
		default:
			return Page{}, Errorf(KindNetwork, "unexpected status %d from %s", page.Status, url)
		}
	}

	return Page{}, classifyTransport(lastErr, nil)
}

// classifyTransport turns a getter/pacer failure into an *Error. cause is
// the last request error seen, if any.
func classifyTransport(err, cause error) *Error {
	if err == nil {
		err = cause
	}
	if err == nil {
		return Errorf(KindNetwork, "all retries failed")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, err, "fetch deadline exceeded")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(KindTimeout, err, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindNetwork, err, "fetch canceled")
	}
	return Wrap(KindNetwork, err, "all retries failed")
}

// abortedWait classifies a backoff or pacing wait cut short by ctx. Without
// an earlier failed attempt nothing was fetched, so the result is
// KindCanceled; otherwise the last real failure stands.
func abortedWait(err, lastErr error) *Error {
	if lastErr == nil {
		return Wrap(KindCanceled, err, "no request slot before the context ended")
	}
	return classifyTransport(lastErr, nil)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
