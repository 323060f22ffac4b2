// Package preview lists the preview images published next to deck content.
//
// A deck converted at <prefix> publishes one image per page at
// <prefix>/<taskId>/preview/<index>.png. Whether an image exists is only
// known by asking the content origin, so listings probe concurrently with a
// bounded worker count.
package preview

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/projector/internal/deck"
)

// DefaultConcurrency bounds simultaneous probes per listing.
const DefaultConcurrency = 4

// URL returns the preview image location for one page.
func URL(prefix, taskID string, index int) string {
	return fmt.Sprintf("%s/%s/preview/%d.png", strings.TrimRight(prefix, "/"), taskID, index)
}

// Prober checks whether a preview asset exists.
type Prober interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// HTTPProber probes with HEAD requests. 200 means present, 404 absent; any
// other status is an error.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber returns a prober using client, or http.DefaultClient when
// nil. A positive timeout bounds each probe.
func NewHTTPProber(client *http.Client, timeout time.Duration) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{client: client, timeout: timeout}
}

// Exists issues a HEAD request for url.
func (p *HTTPProber) Exists(ctx context.Context, url string) (bool, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("build preview request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("preview request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("preview request returned %s", resp.Status)
	}
}

// Entry is a deck with a published first-page preview.
type Entry struct {
	TaskID string `json:"taskId"`
	URL    string `json:"url"`
}

// Lister enumerates existing preview images.
type Lister struct {
	prober      Prober
	concurrency int
}

// NewLister returns a lister probing through p with at most concurrency
// requests in flight.
func NewLister(p Prober, concurrency int) *Lister {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Lister{prober: p, concurrency: concurrency}
}

// Pages returns the preview URLs that exist for pages 1..pageCount, in page
// order. Probe failures surface as a ResourceError.
func (l *Lister) Pages(ctx context.Context, prefix, taskID string, pageCount int) ([]string, error) {
	urls := make([]string, pageCount)
	for i := range urls {
		urls[i] = URL(prefix, taskID, i+1)
	}
	found, err := l.probeAll(ctx, urls)
	if err != nil {
		return nil, deck.NewResourceError(deck.ErrCodePreviewUnavailable, "probe page previews", err).WithTask(taskID)
	}

	out := make([]string, 0, pageCount)
	for i, ok := range found {
		if ok {
			out = append(out, urls[i])
		}
	}
	return out, nil
}

// Decks returns the decks whose first page has a preview, in input order.
func (l *Lister) Decks(ctx context.Context, decks []deck.SlideState) ([]Entry, error) {
	urls := make([]string, len(decks))
	for i, st := range decks {
		urls[i] = URL(st.ContentURL, st.TaskID, 1)
	}
	found, err := l.probeAll(ctx, urls)
	if err != nil {
		return nil, deck.NewResourceError(deck.ErrCodePreviewUnavailable, "probe deck previews", err)
	}

	out := make([]Entry, 0, len(decks))
	for i, ok := range found {
		if ok {
			out = append(out, Entry{TaskID: decks[i].TaskID, URL: urls[i]})
		}
	}
	return out, nil
}

func (l *Lister) probeAll(ctx context.Context, urls []string) ([]bool, error) {
	found := make([]bool, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			ok, err := l.prober.Exists(ctx, u)
			if err != nil {
				return fmt.Errorf("%s: %w", u, err)
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}
