// Package caching keeps extracted page text on disk so repeated scans of
// the same URL skip the fetch.
package caching

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
)

// Entry is one cached page.
type Entry struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// TextCache is a directory of JSON entries named by the hash of the URL
// and extraction mode. Entries older than ttl are misses.
type TextCache struct {
	dir   string
	ttl   time.Duration
	clock clockwork.Clock
}

// New creates dir if needed. A nil clock uses the real clock.
func New(dir string, ttl time.Duration, clock clockwork.Clock) (*TextCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TextCache{dir: dir, ttl: ttl, clock: clock}, nil
}

func (c *TextCache) file(url, mode string) string {
	sum := sha256.Sum256([]byte(mode + "\x00" + url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// Get returns the entry for url extracted with mode, if present and fresh.
func (c *TextCache) Get(url, mode string) (Entry, bool) {
	data, err := os.ReadFile(c.file(url, mode))
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || e.URL != url {
		return Entry{}, false
	}
	if c.ttl > 0 && c.clock.Since(e.FetchedAt) > c.ttl {
		return Entry{}, false
	}
	return e, true
}

// Put stores text for url, stamping it with the current time.
func (c *TextCache) Put(url, mode, title, text string) error {
	data, err := json.Marshal(Entry{URL: url, Title: title, Text: text, FetchedAt: c.clock.Now()})
	if err != nil {
		return err
	}
	tmp := c.file(url, mode) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return os.Rename(tmp, c.file(url, mode))
}

// Delete drops the entry for url extracted with mode.
func (c *TextCache) Delete(url, mode string) error {
	err := os.Remove(c.file(url, mode))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
