package scrape

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserGetter renders pages in headless Chrome, for servers whose
// profile pages are filled in by JavaScript.
type BrowserGetter struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	waitFor  string
}

// NewBrowserGetter starts a browser allocator bound to parent. waitFor is a
// CSS selector that must be present before the page is captured; empty
// means "body".
func NewBrowserGetter(parent context.Context, timeout time.Duration, userAgent, waitFor string) *BrowserGetter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if waitFor == "" {
		waitFor = "body"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(parent, opts...)
	return &BrowserGetter{allocCtx: allocCtx, cancel: cancel, timeout: timeout, waitFor: waitFor}
}

func (g *BrowserGetter) Get(ctx context.Context, url string) (Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(g.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, g.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(g.waitFor, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			return Page{}, context.DeadlineExceeded
		}
		return Page{}, err
	}
	// Navigation only succeeds for documents the browser could load, so the
	// status is reported as 200 and not-found detection relies on content.
	return Page{Status: 200, Body: html}, nil
}

// Close shuts down the browser.
func (g *BrowserGetter) Close() {
	log.Println("[I] [Scraper/Browser] Shutting down headless browser...")
	g.cancel()
}
