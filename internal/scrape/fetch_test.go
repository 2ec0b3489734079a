package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedGetter struct {
	mu      sync.Mutex
	replies []func() (Page, error)
	calls   int
	starts  []time.Time
}

func (g *scriptedGetter) Get(ctx context.Context, url string) (Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.starts = append(g.starts, time.Now())
	i := g.calls
	g.calls++
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i]()
}

func ok(body string) func() (Page, error) {
	return func() (Page, error) { return Page{Status: 200, Body: body}, nil }
}

func status(code int) func() (Page, error) {
	return func() (Page, error) { return Page{Status: code}, nil }
}

func fail(err error) func() (Page, error) {
	return func() (Page, error) { return Page{}, err }
}

func TestFetchRetriesWithLinearBackoff(t *testing.T) {
	getter := &scriptedGetter{replies: []func() (Page, error){
		fail(errors.New("connection reset")),
		status(503),
		ok("<html>done</html>"),
	}}
	var waits []time.Duration
	f := &Fetcher{
		Getter:     getter,
		MaxRetries: 3,
		RetryDelay: time.Second,
		LogPrefix:  "[test]",
		sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	page, err := f.Fetch(context.Background(), "http://example.invalid")
	require.NoError(t, err)
	require.Equal(t, "<html>done</html>", page.Body)
	require.Equal(t, 3, getter.calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	getter := &scriptedGetter{replies: []func() (Page, error){fail(errors.New("dial tcp: no route to host"))}}
	f := &Fetcher{
		Getter:     getter,
		MaxRetries: 3,
		LogPrefix:  "[test]",
		sleep:      func(context.Context, time.Duration) error { return nil },
	}

	_, err := f.Fetch(context.Background(), "http://example.invalid")
	require.Error(t, err)
	require.Equal(t, KindNetwork, KindOf(err))
	require.Equal(t, 4, getter.calls)
}

func TestFetchReturnsNotFoundPages(t *testing.T) {
	getter := &scriptedGetter{replies: []func() (Page, error){status(404)}}
	f := &Fetcher{Getter: getter, MaxRetries: 3, sleep: func(context.Context, time.Duration) error { return nil }}

	page, err := f.Fetch(context.Background(), "http://example.invalid")
	require.NoError(t, err)
	require.Equal(t, 404, page.Status)
	require.Equal(t, 1, getter.calls)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	getter := &scriptedGetter{replies: []func() (Page, error){status(403)}}
	f := &Fetcher{Getter: getter, MaxRetries: 3, sleep: func(context.Context, time.Duration) error { return nil }}

	_, err := f.Fetch(context.Background(), "http://example.invalid")
	require.Equal(t, KindNetwork, KindOf(err))
	require.Equal(t, 1, getter.calls)
}

func TestFetchClassifiesTimeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := &Fetcher{
		Getter:     NewHTTPGetter(50*time.Millisecond, nil),
		MaxRetries: 1,
		sleep:      func(context.Context, time.Duration) error { return nil },
	}
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Equal(t, KindTimeout, KindOf(err))
}

func TestHTTPGetterSendsHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	g := NewHTTPGetter(time.Second, map[string]string{"Accept-Language": "en-US"})
	page, err := g.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, 200, page.Status)
	require.Equal(t, "hello", page.Body)
	require.Equal(t, DefaultUserAgent, gotUA)
	require.Equal(t, "en-US", gotLang)
}

func TestPacingInvariant(t *testing.T) {
	const minDelay = 40 * time.Millisecond
	const requests = 6

	getter := &scriptedGetter{replies: []func() (Page, error){ok("x")}}
	pacer := NewRatePacer(minDelay)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := &Fetcher{Getter: getter, Pacer: pacer}
			if _, err := f.Fetch(context.Background(), "http://example.invalid"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, getter.starts, requests)
	first, last := getter.starts[0], getter.starts[0]
	for _, s := range getter.starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	// n requests inside a window imply window >= (n-1)*minDelay.
	span := last.Sub(first)
	require.GreaterOrEqual(t, span, time.Duration(requests-1)*minDelay-10*time.Millisecond)
}

func TestPacerWaitHonorsContext(t *testing.T) {
	pacer := NewRatePacer(time.Hour)
	require.NoError(t, pacer.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, pacer.Wait(ctx))
}

func TestFetchWithoutPacingSlotIsCanceled(t *testing.T) {
	getter := &scriptedGetter{replies: []func() (Page, error){ok("x")}}
	f := &Fetcher{Getter: getter, Pacer: NewRatePacer(2 * time.Second)}
	_, err := f.Fetch(context.Background(), "http://example.invalid")
	require.NoError(t, err)

	// The next slot is ~2s away; the limiter refuses at once.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, "http://example.invalid")
	require.Equal(t, KindCanceled, KindOf(err))
	require.False(t, KindOf(err).Retryable())
	require.Equal(t, 1, getter.calls)
}

func TestFetchBackoffAbortKeepsLastFailure(t *testing.T) {
	getter := &scriptedGetter{replies: []func() (Page, error){fail(errors.New("connection reset"))}}
	f := &Fetcher{
		Getter:     getter,
		MaxRetries: 3,
		sleep:      func(context.Context, time.Duration) error { return context.Canceled },
	}
	_, err := f.Fetch(context.Background(), "http://example.invalid")
	require.Equal(t, KindNetwork, KindOf(err))
	require.Equal(t, 1, getter.calls)
}
