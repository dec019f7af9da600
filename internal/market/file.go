package market

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type fixtureFile struct {
	Markets []Snapshot `yaml:"markets"`
}

// FileCollector serves snapshots from a YAML fixture file. The file is
// re-read when its modification time changes so fixtures can be edited live.
type FileCollector struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	markets map[string]Snapshot
	nowFn   func() time.Time
}

func NewFileCollector(path string) (*FileCollector, error) {
	c := &FileCollector{path: path, nowFn: time.Now}
	if _, err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FileCollector) Collect(ctx context.Context, query string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCollection, err)
	}
	markets, err := c.load()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCollection, err)
	}
	query = strings.TrimSpace(query)
	snap, ok := markets[query]
	if !ok {
		snap, ok = markets[Slugify(query)]
	}
	if !ok {
		for _, m := range markets {
			if strings.EqualFold(m.Title, query) {
				snap, ok = m, true
				break
			}
		}
	}
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, query)
	}
	snap = snap.clone()
	snap.CollectedAt = c.nowFn().UTC()
	return snap, nil
}

func (c *FileCollector) load() (map[string]Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("stat fixtures failed: %w", err)
	}
	if c.markets != nil && info.ModTime().Equal(c.modTime) {
		return c.markets, nil
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures failed: %w", err)
	}
	var file fixtureFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse fixtures failed: %w", err)
	}
	markets := make(map[string]Snapshot, len(file.Markets))
	for i, m := range file.Markets {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("fixture #%d: %w", i+1, err)
		}
		markets[m.ID] = m
	}
	c.markets = markets
	c.modTime = info.ModTime()
	return markets, nil
}
