// Package scan runs the passive scan scheduler: one debounced event loop
// per tab that decides whether the current page gets an automatic text
// verification.
package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/pageurl"
	"github.com/dtnitsch/factcheck-relay/pkg/settings"
)

// Phase is the scheduler's position in the scan cycle for the current page.
type Phase string

const (
	Unarmed Phase = "unarmed"
	Armed   Phase = "armed"
	Fired   Phase = "fired"
	Settled Phase = "settled"
)

// State is the per-tab scan state.
type State struct {
	CurrentURL            string
	HasCheckedCurrentPage bool
	IsChecking            bool
	Phase                 Phase
}

// SettingsSource is the part of the settings store the scheduler reads.
type SettingsSource interface {
	Snapshot() (models.Settings, error)
	Subscribe() (<-chan settings.Change, func())
}

// TextSource extracts the visible text of the page at pageURL.
type TextSource interface {
	PageText(ctx context.Context, pageURL string) (string, error)
}

// Submitter hands a passive request to the orchestrator and waits for its
// outcome.
type Submitter interface {
	Submit(ctx context.Context, req models.VerificationRequest) (*models.VerificationResult, error)
}

// Presenter receives the presentation events the scheduler emits for its
// own tab.
type Presenter interface {
	Handle(ctx context.Context, msg models.Message) error
}

type Options struct {
	Config       models.ScanConfig
	ShareBaseURL string
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

type scanOutcome struct {
	url     string
	skipped bool
	result  *models.VerificationResult
	err     error
}

type Scheduler struct {
	tabID     int
	cfg       models.ScanConfig
	shareBase string
	settings  SettingsSource
	location  LocationObserver
	text      TextSource
	submit    Submitter
	presenter Presenter
	clock     clockwork.Clock
	logger    *slog.Logger

	// Owned by the Run goroutine.
	st             State
	allowed        bool
	timer          clockwork.Timer
	timerC         <-chan time.Time
	outcomes       chan scanOutcome
	rearmAfterScan bool

	mu        sync.Mutex
	published State
}

func New(tabID int, src SettingsSource, loc LocationObserver, text TextSource, submit Submitter, presenter Presenter, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		tabID:     tabID,
		cfg:       opts.Config,
		shareBase: opts.ShareBaseURL,
		settings:  src,
		location:  loc,
		text:      text,
		submit:    submit,
		presenter: presenter,
		clock:     opts.Clock,
		logger:    opts.Logger.With("tab_id", tabID),
		outcomes:  make(chan scanOutcome, 1),
		st:        State{Phase: Unarmed},
		published: State{Phase: Unarmed},
	}
}

// State returns the state as of the last handled event.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

// Run drives the scheduler until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	changes, cancel := s.settings.Subscribe()
	defer cancel()
	defer s.stopTimer()

	s.st.CurrentURL = s.location.Current()
	s.allowed = s.scanAllowed()
	s.evaluate(s.cfg.InitialDelay)
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
			s.onSettingsChange()
		case u := <-s.location.Changes():
			s.onURLChange(ctx, u)
		case <-s.timerC:
			s.fire(ctx)
		case out := <-s.outcomes:
			s.onScanDone(ctx, out)
		}
		s.publish()
	}
}

func (s *Scheduler) publish() {
	s.mu.Lock()
	s.published = s.st
	s.mu.Unlock()
}

func (s *Scheduler) scanAllowed() bool {
	snap, err := s.settings.Snapshot()
	if err != nil {
		s.logger.Warn("Failed to read settings", "error", err)
		return false
	}
	return snap.PassiveScanAllowed()
}

// evaluate arms the timer when scanning is allowed, the page is unchecked
// and nothing is in flight.
func (s *Scheduler) evaluate(delay time.Duration) {
	if !s.allowed {
		s.stopTimer()
		s.st.HasCheckedCurrentPage = true
		if !s.st.IsChecking {
			s.st.Phase = Settled
		}
		return
	}
	if s.st.HasCheckedCurrentPage || s.st.IsChecking || s.timer != nil {
		return
	}
	if pageurl.IsRestricted(s.st.CurrentURL) {
		s.st.HasCheckedCurrentPage = true
		s.st.Phase = Settled
		return
	}
	s.timer = s.clock.NewTimer(delay)
	s.timerC = s.timer.Chan()
	s.st.Phase = Armed
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.timerC = nil
}

func (s *Scheduler) onSettingsChange() {
	wasAllowed := s.allowed
	s.allowed = s.scanAllowed()

	switch {
	case !s.allowed:
		s.evaluate(0)
	case !wasAllowed:
		s.st.HasCheckedCurrentPage = false
		if s.st.IsChecking {
			s.rearmAfterScan = true
			return
		}
		s.evaluate(s.cfg.RearmDelay)
	}
}

func (s *Scheduler) onURLChange(ctx context.Context, u string) {
	if u == s.st.CurrentURL {
		return
	}
	s.stopTimer()
	s.st.CurrentURL = u
	s.st.HasCheckedCurrentPage = false
	if !s.st.IsChecking {
		s.st.Phase = Unarmed
	}

	videoID, _ := pageurl.VideoID(u)
	s.present(ctx, models.MsgPageChanged, models.PageData{URL: u, VideoID: videoID})

	if s.st.IsChecking {
		s.rearmAfterScan = true
		return
	}
	s.evaluate(s.cfg.RearmDelay)
}

func (s *Scheduler) fire(ctx context.Context) {
	s.timer = nil
	s.timerC = nil
	if !s.allowed {
		s.evaluate(0)
		return
	}

	// Marked before anything is sent so the same page is never scanned twice.
	s.st.IsChecking = true
	s.st.HasCheckedCurrentPage = true
	s.st.Phase = Fired

	pageURL := s.st.CurrentURL
	go func() {
		out := s.scan(ctx, pageURL)
		select {
		case s.outcomes <- out:
		case <-ctx.Done():
		}
	}()
}

func (s *Scheduler) scan(ctx context.Context, pageURL string) scanOutcome {
	raw, err := s.text.PageText(ctx, pageURL)
	if err != nil {
		return scanOutcome{url: pageURL, err: err}
	}
	text, ok := PrepareText(raw, s.cfg.MinChars, s.cfg.MaxChars)
	if !ok {
		return scanOutcome{url: pageURL, skipped: true}
	}

	res, err := s.submit.Submit(ctx, models.VerificationRequest{
		Kind:      models.KindText,
		TabID:     s.tabID,
		Payload:   text,
		OriginURL: pageURL,
		Passive:   true,
	})
	return scanOutcome{url: pageURL, result: res, err: err}
}

func (s *Scheduler) onScanDone(ctx context.Context, out scanOutcome) {
	switch {
	case out.err != nil:
		s.logger.Warn("Passive scan failed", "url", out.url, "error", out.err)
	case out.skipped:
		s.logger.Debug("Passive scan skipped, not enough text", "url", out.url)
	default:
		s.maybeWarn(ctx, out)
	}

	s.st.IsChecking = false
	s.st.Phase = Settled

	if s.rearmAfterScan {
		s.rearmAfterScan = false
		s.st.Phase = Unarmed
		s.evaluate(s.cfg.RearmDelay)
	}
}

func (s *Scheduler) maybeWarn(ctx context.Context, out scanOutcome) {
	if out.result == nil || out.result.Text == nil {
		return
	}
	accuracy, warn := ShouldWarn(out.result.Text.Accuracy, s.cfg.AccuracyThreshold)
	s.logger.Info("Passive scan complete", "url", out.url, "accuracy", out.result.Text.Accuracy, "warn", warn)
	if !warn {
		return
	}
	s.present(ctx, models.MsgShowWarning, models.WarningData{
		PageURL:       out.url,
		Accuracy:      accuracy,
		Result:        out.result.Text,
		IsCurrentPage: s.location.Current() == out.url,
		ShareLink:     pageurl.ShareLink(s.shareBase, out.result.RecordID()),
	})
}

func (s *Scheduler) present(ctx context.Context, t models.MessageType, data any) {
	msg, err := models.NewMessage(t, data)
	if err != nil {
		s.logger.Error("Failed to encode message", "type", t, "error", err)
		return
	}
	if err := s.presenter.Handle(ctx, msg); err != nil {
		s.logger.Warn("Failed to present message", "type", t, "error", err)
	}
}
