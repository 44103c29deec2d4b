package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/dtnitsch/factcheck-relay/models"
)

// Handler is a content context's message entry point.
type Handler func(ctx context.Context, msg models.Message) error

// ContentFactory builds the content context that Inject installs in a tab.
type ContentFactory func(tabID int) Handler

// Bus is an in-process stand-in for the browser's tab messaging: it tracks
// open tabs, their URLs and whether a content script is attached. It
// implements Transport, Injector and TabLocator.
type Bus struct {
	mu      sync.Mutex
	tabs    map[int]*tabState
	factory ContentFactory
}

type tabState struct {
	url     string
	handler Handler
}

func NewBus(factory ContentFactory) *Bus {
	return &Bus{
		tabs:    make(map[int]*tabState),
		factory: factory,
	}
}

// OpenTab registers a tab without a content script.
func (b *Bus) OpenTab(tabID int, url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabs[tabID] = &tabState{url: url}
}

// Navigate changes a tab's URL. A hard navigation unloads the content
// script; an in-page (SPA) navigation keeps it.
func (b *Bus) Navigate(tabID int, url string, hard bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[tabID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, tabID)
	}
	t.url = url
	if hard {
		t.handler = nil
	}
	return nil
}

// CloseTab forgets the tab.
func (b *Bus) CloseTab(tabID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tabs, tabID)
}

// Attach installs a content script handler, as a declared content script
// does on page load.
func (b *Bus) Attach(tabID int, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[tabID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, tabID)
	}
	t.handler = h
	return nil
}

func (b *Bus) Send(ctx context.Context, tabID int, msg models.Message) error {
	b.mu.Lock()
	t, ok := b.tabs[tabID]
	var h Handler
	if ok {
		h = t.handler
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, tabID)
	}
	if h == nil {
		return ErrNotReady
	}
	return h(ctx, msg)
}

func (b *Bus) Inject(ctx context.Context, tabID int) error {
	if b.factory == nil {
		return fmt.Errorf("no content script available to inject")
	}
	h := b.factory(tabID)

	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[tabID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, tabID)
	}
	t.handler = h
	return nil
}

func (b *Bus) TabURL(ctx context.Context, tabID int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[tabID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNoTab, tabID)
	}
	return t.url, nil
}
