// Package presentation is the page-side state machine that turns
// presentation messages into overlay and modal changes. At most one
// artifact is visible at a time: every show first tears down the current
// one.
package presentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/pageurl"
)

// ErrUnhandled is returned by Handle for message types the page does not
// present.
var ErrUnhandled = errors.New("message not handled by presentation")

// Phase is what the page currently shows.
type Phase string

const (
	None    Phase = "none"
	Loading Phase = "loading"
	Result  Phase = "result"
	Error   Phase = "error"
	Warning Phase = "warning"
)

// Renderer draws presentation artifacts. Calls are serialized by the
// Machine.
type Renderer interface {
	ShowLoading(kind models.Kind)
	ShowResult(t models.MessageType, data models.ResultData)
	ShowError(t models.MessageType, data models.ErrorData)
	ShowWarning(data models.WarningData)
	// ShowNotice is a transient toast; it is not one of the exclusive
	// artifacts.
	ShowNotice(data models.ErrorData)
	Clear()
	ShowPageButton(videoID string)
	HidePageButton()
}

type Options struct {
	WarningTimeout time.Duration
	Clock          clockwork.Clock
	Logger         *slog.Logger
}

type Machine struct {
	renderer       Renderer
	warningTimeout time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger

	mu            sync.Mutex
	phase         Phase
	pageURL       string
	videoID       string
	buttonOffered bool
	buttonVisible bool
	warnTimer     clockwork.Timer
	gen           int
}

// New starts the machine for the page at pageURL; a recognized media page
// gets its page button right away.
func New(renderer Renderer, pageURL string, opts Options) *Machine {
	if opts.WarningTimeout <= 0 {
		opts.WarningTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Machine{
		renderer:       renderer,
		warningTimeout: opts.WarningTimeout,
		clock:          opts.Clock,
		logger:         opts.Logger,
		phase:          None,
	}
	m.mu.Lock()
	m.enterPage(pageURL)
	m.mu.Unlock()
	return m
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) PageButtonVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buttonVisible
}

// Handle applies one presentation message. Its signature matches
// messaging.Handler.
func (m *Machine) Handle(ctx context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg.Type {
	case models.MsgShowLoading:
		var data models.LoadingData
		if err := msg.Decode(&data); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		m.teardown()
		m.renderer.ShowLoading(data.Kind)
		m.phase = Loading

	case models.MsgShowTextResult, models.MsgShowImageResult, models.MsgShowVideoResult:
		var data models.ResultData
		if err := msg.Decode(&data); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		if !m.samePage(data.OriginURL) {
			m.logger.Info("Dropping result for a page no longer shown", "origin_url", data.OriginURL, "page_url", m.pageURL)
			return nil
		}
		m.teardown()
		m.renderer.ShowResult(msg.Type, data)
		m.phase = Result
		m.restoreButton()

	case models.MsgShowError, models.MsgShowBaseURLWarning, models.MsgShowConfigure:
		var data models.ErrorData
		if err := msg.Decode(&data); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		m.teardown()
		m.renderer.ShowError(msg.Type, data)
		m.phase = Error
		m.restoreButton()

	case models.MsgShowBusy:
		var data models.ErrorData
		if err := msg.Decode(&data); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		m.renderer.ShowNotice(data)
		m.restoreButton()

	case models.MsgShowWarning:
		var data models.WarningData
		if err := msg.Decode(&data); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		m.teardown()
		m.renderer.ShowWarning(data)
		m.phase = Warning
		gen := m.gen
		m.warnTimer = m.clock.AfterFunc(m.warningTimeout, func() { m.expire(gen) })

	case models.MsgPageChanged:
		var data models.PageData
		if err := msg.Decode(&data); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		m.teardown()
		m.enterPage(data.URL)

	default:
		return fmt.Errorf("%w: %q", ErrUnhandled, msg.Type)
	}
	return nil
}

// Dismiss closes a result or error modal or a warning overlay, as the close
// button and backdrop click do. Loading overlays are not dismissable.
func (m *Machine) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case Result, Error, Warning:
		m.teardown()
		m.restoreButton()
	}
}

// ClickPageButton hides the page button and reports whether it was
// visible. The caller then asks for a video check.
func (m *Machine) ClickPageButton() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buttonVisible {
		return false
	}
	m.renderer.HidePageButton()
	m.buttonVisible = false
	return true
}

func (m *Machine) expire(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.phase != Warning {
		return
	}
	m.teardown()
	m.restoreButton()
}

// teardown removes the visible artifact and invalidates a pending warning
// timer.
func (m *Machine) teardown() {
	m.gen++
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.phase != None {
		m.renderer.Clear()
	}
	m.phase = None
}

func (m *Machine) enterPage(pageURL string) {
	if m.buttonVisible {
		m.renderer.HidePageButton()
		m.buttonVisible = false
	}
	m.pageURL = pageURL
	m.videoID, m.buttonOffered = pageurl.VideoID(pageURL)
	m.restoreButton()
}

func (m *Machine) restoreButton() {
	if m.buttonOffered && !m.buttonVisible {
		m.renderer.ShowPageButton(m.videoID)
		m.buttonVisible = true
	}
}

// samePage compares origin with the current page, ignoring fragments. An
// empty side means unknown and always matches.
func (m *Machine) samePage(origin string) bool {
	if origin == "" || m.pageURL == "" {
		return true
	}
	return stripFragment(origin) == stripFragment(m.pageURL)
}

func stripFragment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
