package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"polyagent/internal/pkg/text"

	"github.com/tidwall/gjson"
)

// GammaCollector reads markets from the Polymarket Gamma REST API.
type GammaCollector struct {
	baseURL string
	client  *http.Client
	nowFn   func() time.Time
}

func NewGammaCollector(baseURL string, timeout time.Duration) *GammaCollector {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &GammaCollector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		nowFn:   time.Now,
	}
}

func (c *GammaCollector) Collect(ctx context.Context, query string) (Snapshot, error) {
	slug := Slugify(query)
	if slug == "" {
		return Snapshot{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	endpoint := c.baseURL + "/markets?slug=" + url.QueryEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCollection, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCollection, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read body: %v", ErrCollection, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	if resp.StatusCode >= 300 {
		return Snapshot{}, fmt.Errorf("%w: gamma status %d: %s", ErrCollection, resp.StatusCode, text.Truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return Snapshot{}, badPayload("gamma returned invalid json")
	}
	root := gjson.ParseBytes(body)
	node := root
	if root.IsArray() {
		arr := root.Array()
		if len(arr) == 0 {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
		}
		node = arr[0]
	}
	snap, err := snapshotFromGamma(node)
	if err != nil {
		return Snapshot{}, badPayload("%s: %v", slug, err)
	}
	if snap.ID == "" {
		snap.ID = slug
	}
	snap.CollectedAt = c.nowFn().UTC()
	if err := snap.Validate(); err != nil {
		return Snapshot{}, badPayload("%s: %v", slug, err)
	}
	return snap, nil
}

// snapshotFromGamma maps one Gamma market object. Gamma encodes outcomes and
// outcomePrices as JSON strings inside the JSON document.
func snapshotFromGamma(node gjson.Result) (Snapshot, error) {
	outcomes := stringList(node.Get("outcomes"))
	prices := stringList(node.Get("outcomePrices"))
	if len(outcomes) == 0 {
		return Snapshot{}, fmt.Errorf("market has no outcomes")
	}
	if len(prices) != len(outcomes) {
		return Snapshot{}, fmt.Errorf("outcomes/prices length mismatch: %d vs %d", len(outcomes), len(prices))
	}
	priceMap := make(map[string]float64, len(outcomes))
	for i, o := range outcomes {
		p, err := strconv.ParseFloat(strings.TrimSpace(prices[i]), 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("price for %s: %w", o, err)
		}
		priceMap[o] = p
	}
	slug := node.Get("slug").String()
	snap := Snapshot{
		ID:          firstNonEmpty(slug, node.Get("id").String()),
		Title:       node.Get("question").String(),
		Category:    node.Get("category").String(),
		Outcomes:    outcomes,
		Prices:      priceMap,
		Volume24h:   node.Get("volume24hr").Float(),
		Liquidity:   node.Get("liquidity").Float(),
		EndDate:     node.Get("endDate").String(),
		Description: node.Get("description").String(),
	}
	if slug != "" {
		snap.URL = "https://polymarket.com/market/" + slug
	}
	return snap, nil
}

func stringList(res gjson.Result) []string {
	if !res.Exists() {
		return nil
	}
	if res.Type == gjson.String {
		res = gjson.Parse(res.String())
	}
	if !res.IsArray() {
		return nil
	}
	var out []string
	for _, item := range res.Array() {
		out = append(out, item.String())
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
