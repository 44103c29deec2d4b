// Package messaging carries typed messages from the background context to
// the content context of a tab. Delivery is one call per message with a
// single timeout: restricted pages are skipped, and a tab whose content
// script is not loaded yet gets it injected and one retry.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/pageurl"
)

var (
	// ErrNotReady means the tab exists but no content script answers.
	ErrNotReady = errors.New("receiving content script not loaded")
	// ErrNoTab means the tab is closed or unknown.
	ErrNoTab = errors.New("no such tab")
)

// Transport sends one message to a tab's content context.
type Transport interface {
	Send(ctx context.Context, tabID int, msg models.Message) error
}

// Injector loads the content script and its styling into a tab.
type Injector interface {
	Inject(ctx context.Context, tabID int) error
}

// TabLocator reports a tab's current URL.
type TabLocator interface {
	TabURL(ctx context.Context, tabID int) (string, error)
}

// Status is the outcome of a delivery.
type Status string

const (
	Delivered         Status = "delivered"
	DeliveredAfterInj Status = "delivered_after_injection"
	DroppedRestricted Status = "dropped_restricted"
	Lost              Status = "lost"
)

type Options struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

type Deliverer struct {
	transport  Transport
	injector   Injector
	tabs       TabLocator
	timeout    time.Duration
	retryDelay time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
}

func NewDeliverer(transport Transport, injector Injector, tabs TabLocator, opts Options) *Deliverer {
	d := &Deliverer{
		transport:  transport,
		injector:   injector,
		tabs:       tabs,
		timeout:    opts.Timeout,
		retryDelay: opts.RetryDelay,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if d.timeout <= 0 {
		d.timeout = 5 * time.Second
	}
	if d.retryDelay <= 0 {
		d.retryDelay = 150 * time.Millisecond
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Deliver sends msg to tabID. It never returns an error: a lost message is
// logged and reported through the Status only.
func (d *Deliverer) Deliver(ctx context.Context, tabID int, msg models.Message) Status {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	tabURL, err := d.tabs.TabURL(ctx, tabID)
	if err != nil {
		d.logger.Warn("Cannot look up tab, dropping message", "tab_id", tabID, "type", msg.Type, "error", err)
		return Lost
	}
	if pageurl.IsRestricted(tabURL) {
		d.logger.Debug("Restricted page, dropping message", "tab_id", tabID, "type", msg.Type, "url", tabURL)
		return DroppedRestricted
	}

	err = d.transport.Send(ctx, tabID, msg)
	if err == nil {
		return Delivered
	}
	if errors.Is(err, ErrNoTab) {
		d.logger.Warn("Tab closed before delivery", "tab_id", tabID, "type", msg.Type)
		return Lost
	}
	if !errors.Is(err, ErrNotReady) {
		d.logger.Warn("Content script rejected message", "tab_id", tabID, "type", msg.Type, "error", err)
		return Lost
	}

	d.logger.Info("Content script not ready, injecting", "tab_id", tabID, "type", msg.Type, "error", err)
	if err := d.injector.Inject(ctx, tabID); err != nil {
		d.logger.Warn("Content script injection failed", "tab_id", tabID, "error", err)
		return Lost
	}

	select {
	case <-d.clock.After(d.retryDelay):
	case <-ctx.Done():
		d.logger.Warn("Delivery timed out before retry", "tab_id", tabID, "type", msg.Type)
		return Lost
	}

	if err := d.transport.Send(ctx, tabID, msg); err != nil {
		d.logger.Warn("Delivery failed after injection", "tab_id", tabID, "type", msg.Type, "error", err)
		return Lost
	}
	return DeliveredAfterInj
}
