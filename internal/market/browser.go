package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"

	"polyagent/internal/pkg/jsonutil"
)

// BrowserCollector renders the market page in headless Chrome and reads the
// market object out of the embedded __NEXT_DATA__ payload.
type BrowserCollector struct {
	pageURL string
	timeout time.Duration
	nowFn   func() time.Time
	fetch   func(ctx context.Context, url string) (string, error)
}

func NewBrowserCollector(pageURL string, timeout time.Duration) *BrowserCollector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &BrowserCollector{
		pageURL: strings.TrimRight(pageURL, "/"),
		timeout: timeout,
		nowFn:   time.Now,
	}
	c.fetch = c.render
	return c
}

func (c *BrowserCollector) Collect(ctx context.Context, query string) (Snapshot, error) {
	slug := Slugify(query)
	if slug == "" {
		return Snapshot{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	raw, err := c.fetch(ctx, c.pageURL+"/"+slug)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: render %s: %v", ErrCollection, slug, err)
	}
	snap, err := parseNextData(raw, slug)
	if err != nil {
		return Snapshot{}, err
	}
	snap.CollectedAt = c.nowFn().UTC()
	return snap, nil
}

func (c *BrowserCollector) render(ctx context.Context, pageURL string) (string, error) {
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()
	timeoutCtx, cancelTimeout := context.WithTimeout(parent, c.timeout)
	defer cancelTimeout()

	var payload string
	tasks := chromedp.Tasks{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("#__NEXT_DATA__", chromedp.ByQuery),
		chromedp.TextContent("#__NEXT_DATA__", &payload, chromedp.ByQuery),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return "", err
	}
	return payload, nil
}

// parseNextData finds the market whose slug matches in the dehydrated query
// cache of a Polymarket page.
func parseNextData(page, slug string) (Snapshot, error) {
	raw, ok := jsonutil.ExtractNextData(page)
	if !ok || !gjson.Valid(raw) {
		return Snapshot{}, badPayload("__NEXT_DATA__ is not valid json")
	}
	queries := gjson.Get(raw, "props.pageProps.dehydratedState.queries")
	var found gjson.Result
	queries.ForEach(func(_, q gjson.Result) bool {
		data := q.Get("state.data")
		if m := data.Get(fmt.Sprintf("markets.#(slug==%q)", slug)); m.Exists() {
			found = m
			return false
		}
		if data.Get("slug").String() == slug && data.Get("outcomes").Exists() {
			found = data
			return false
		}
		return true
	})
	if !found.Exists() {
		return Snapshot{}, fmt.Errorf("%w: %s not present on page", ErrNotFound, slug)
	}
	snap, err := snapshotFromGamma(found)
	if err != nil {
		return Snapshot{}, badPayload("%s: %v", slug, err)
	}
	if snap.ID == "" {
		snap.ID = slug
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, badPayload("%s: %v", slug, err)
	}
	return snap, nil
}
