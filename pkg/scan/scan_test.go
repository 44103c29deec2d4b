package scan

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/db"
	"github.com/dtnitsch/factcheck-relay/pkg/settings"
)

const (
	pageA = "https://news.example.com/a"
	pageB = "https://news.example.com/b"
)

type fakeLocation struct {
	mu      sync.Mutex
	url     string
	changes chan string
}

func newFakeLocation(u string) *fakeLocation {
	return &fakeLocation{url: u, changes: make(chan string, 4)}
}

func (f *fakeLocation) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakeLocation) Changes() <-chan string { return f.changes }

func (f *fakeLocation) navigate(u string) {
	f.mu.Lock()
	f.url = u
	f.mu.Unlock()
	f.changes <- u
}

type staticText map[string]string

func (s staticText) PageText(ctx context.Context, pageURL string) (string, error) {
	return s[pageURL], nil
}

type fakeSubmitter struct {
	accuracy string
	release  chan struct{} // nil means answer immediately
	requests chan models.VerificationRequest
}

func newFakeSubmitter(accuracy string) *fakeSubmitter {
	return &fakeSubmitter{accuracy: accuracy, requests: make(chan models.VerificationRequest, 8)}
}

func (f *fakeSubmitter) Submit(ctx context.Context, req models.VerificationRequest) (*models.VerificationResult, error) {
	f.requests <- req
	if f.release != nil {
		<-f.release
	}
	return &models.VerificationResult{
		Kind: models.KindText,
		Text: &models.TextResult{Accuracy: f.accuracy, Reason: "r", RecordID: "rec-1"},
	}, nil
}

type presenterLog struct {
	msgs chan models.Message
}

func (p *presenterLog) Handle(ctx context.Context, msg models.Message) error {
	p.msgs <- msg
	return nil
}

type harness struct {
	clock   *clockwork.FakeClock
	store   *settings.Store
	loc     *fakeLocation
	submit  *fakeSubmitter
	present *presenterLog
	sched   *Scheduler
	cfg     models.ScanConfig
	ctx     context.Context
}

func newHarness(t *testing.T, text staticText, submit *fakeSubmitter) *harness {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	h := &harness{
		clock:   clockwork.NewFakeClock(),
		store:   settings.New(database, nil),
		loc:     newFakeLocation(pageA),
		submit:  submit,
		present: &presenterLog{msgs: make(chan models.Message, 16)},
		cfg:     models.DefaultConfig().Scan,
	}
	h.sched = New(7, h.store, h.loc, text, submit, h.present, Options{
		Config:       h.cfg,
		ShareBaseURL: "https://share.example",
		Clock:        h.clock,
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (h *harness) waitTimer(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("timer never armed: %v", err)
	}
}

func (h *harness) waitState(t *testing.T, desc string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := h.sched.State()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, state = %+v", desc, st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) nextMessage(t *testing.T) models.Message {
	t.Helper()
	select {
	case msg := <-h.present.msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no presentation message")
	}
	return models.Message{}
}

func (h *harness) noMessage(t *testing.T) {
	t.Helper()
	select {
	case msg := <-h.present.msgs:
		t.Fatalf("unexpected presentation message %s", msg.Type)
	default:
	}
}

func settled(st State) bool {
	return st.Phase == Settled && !st.IsChecking
}

func longText(n int) string {
	return strings.Repeat("a", n)
}

func TestScheduler_ShortTextMarksCheckedWithoutRequest(t *testing.T) {
	submit := newFakeSubmitter("90%")
	h := newHarness(t, staticText{pageA: "too short to check"}, submit)
	h.start(t)

	h.waitTimer(t)
	h.clock.Advance(h.cfg.InitialDelay)

	st := h.waitState(t, "settled", settled)
	if !st.HasCheckedCurrentPage {
		t.Error("HasCheckedCurrentPage = false after skipping short page")
	}
	if len(submit.requests) != 0 {
		t.Errorf("submitted %d requests for short text, want 0", len(submit.requests))
	}
}

func TestScheduler_TruncatesLongText(t *testing.T) {
	submit := newFakeSubmitter("90%")
	h := newHarness(t, staticText{pageA: longText(6000)}, submit)
	h.start(t)

	h.waitTimer(t)
	h.clock.Advance(h.cfg.InitialDelay)

	req := <-submit.requests
	if got := utf8.RuneCountInString(req.Payload); got != 5000 {
		t.Errorf("payload length = %d, want 5000", got)
	}
	if req.Kind != models.KindText || !req.Passive || req.OriginURL != pageA || req.TabID != 7 {
		t.Errorf("request = %+v", req)
	}
	h.waitState(t, "settled", settled)
}

func TestScheduler_WarningThreshold(t *testing.T) {
	tests := []struct {
		accuracy string
		warn     bool
	}{
		{"65%", true},
		{"69.9%", true},
		{"70%", false},
		{"95%", false},
		{"n/a", false},
	}

	for _, tt := range tests {
		t.Run(tt.accuracy, func(t *testing.T) {
			h := newHarness(t, staticText{pageA: longText(200)}, newFakeSubmitter(tt.accuracy))
			h.start(t)

			h.waitTimer(t)
			h.clock.Advance(h.cfg.InitialDelay)
			h.waitState(t, "settled", settled)

			if !tt.warn {
				h.noMessage(t)
				return
			}
			msg := h.nextMessage(t)
			if msg.Type != models.MsgShowWarning {
				t.Fatalf("message type = %s, want %s", msg.Type, models.MsgShowWarning)
			}
			var data models.WarningData
			if err := msg.Decode(&data); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !data.IsCurrentPage {
				t.Error("IsCurrentPage = false, want true")
			}
			if data.PageURL != pageA {
				t.Errorf("PageURL = %q, want %q", data.PageURL, pageA)
			}
			if data.ShareLink != "https://share.example?id=rec-1" {
				t.Errorf("ShareLink = %q", data.ShareLink)
			}
		})
	}
}

func TestScheduler_URLChangeCancelsPendingTimer(t *testing.T) {
	submit := newFakeSubmitter("90%")
	h := newHarness(t, staticText{pageA: longText(200), pageB: longText(300)}, submit)
	h.start(t)

	h.waitTimer(t)
	h.loc.navigate(pageB)
	h.waitState(t, "new url", func(st State) bool { return st.CurrentURL == pageB && st.Phase == Armed })

	if msg := h.nextMessage(t); msg.Type != models.MsgPageChanged {
		t.Errorf("message type = %s, want %s", msg.Type, models.MsgPageChanged)
	}

	// The initial timer would have fired here.
	h.clock.Advance(h.cfg.InitialDelay)
	time.Sleep(20 * time.Millisecond)
	if len(submit.requests) != 0 {
		t.Fatal("canceled timer still fired")
	}

	h.clock.Advance(h.cfg.RearmDelay - h.cfg.InitialDelay)
	req := <-submit.requests
	if req.OriginURL != pageB {
		t.Errorf("OriginURL = %q, want %q", req.OriginURL, pageB)
	}
}

func TestScheduler_SettingsToggle(t *testing.T) {
	submit := newFakeSubmitter("90%")
	h := newHarness(t, staticText{pageA: longText(200)}, submit)
	h.start(t)

	h.waitTimer(t)
	if err := h.store.SetBackgroundDetectionEnabled(false); err != nil {
		t.Fatalf("SetBackgroundDetectionEnabled() error = %v", err)
	}
	h.waitState(t, "disabled", func(st State) bool { return settled(st) && st.HasCheckedCurrentPage })

	h.clock.Advance(h.cfg.RearmDelay)
	time.Sleep(20 * time.Millisecond)
	if len(submit.requests) != 0 {
		t.Fatal("scan fired while disabled")
	}

	if err := h.store.SetBackgroundDetectionEnabled(true); err != nil {
		t.Fatalf("SetBackgroundDetectionEnabled() error = %v", err)
	}
	h.waitState(t, "re-armed", func(st State) bool { return st.Phase == Armed && !st.HasCheckedCurrentPage })
	h.waitTimer(t)
	h.clock.Advance(h.cfg.RearmDelay)

	if req := <-submit.requests; req.OriginURL != pageA {
		t.Errorf("OriginURL = %q, want %q", req.OriginURL, pageA)
	}
}

func TestScheduler_ToggleOffAndOnDuringScan(t *testing.T) {
	submit := newFakeSubmitter("90%")
	submit.release = make(chan struct{})
	h := newHarness(t, staticText{pageA: longText(200)}, submit)
	h.start(t)

	h.waitTimer(t)
	h.clock.Advance(h.cfg.InitialDelay)
	<-submit.requests
	h.waitState(t, "checking", func(st State) bool { return st.IsChecking })

	if err := h.store.SetBackgroundDetectionEnabled(false); err != nil {
		t.Fatalf("SetBackgroundDetectionEnabled() error = %v", err)
	}
	// Let the scheduler see the off state before the toggle flips back.
	time.Sleep(20 * time.Millisecond)
	if err := h.store.SetBackgroundDetectionEnabled(true); err != nil {
		t.Fatalf("SetBackgroundDetectionEnabled() error = %v", err)
	}
	h.waitState(t, "unchecked while in flight", func(st State) bool { return st.IsChecking && !st.HasCheckedCurrentPage })

	close(submit.release)
	st := h.waitState(t, "re-armed", func(st State) bool { return !st.IsChecking && st.Phase == Armed })
	if st.HasCheckedCurrentPage {
		t.Errorf("state = %+v, want unchecked and armed", st)
	}

	h.waitTimer(t)
	h.clock.Advance(h.cfg.RearmDelay)
	if req := <-submit.requests; req.OriginURL != pageA {
		t.Errorf("OriginURL = %q, want %q", req.OriginURL, pageA)
	}
	h.waitState(t, "settled", func(st State) bool { return settled(st) && st.HasCheckedCurrentPage })
}

func TestScheduler_DisabledFromStart(t *testing.T) {
	submit := newFakeSubmitter("90%")
	h := newHarness(t, staticText{pageA: longText(200)}, submit)
	if err := h.store.SetFactCheckEnabled(false); err != nil {
		t.Fatalf("SetFactCheckEnabled() error = %v", err)
	}
	h.start(t)

	st := h.waitState(t, "settled", settled)
	if !st.HasCheckedCurrentPage {
		t.Error("HasCheckedCurrentPage = false while disabled")
	}
}

func TestScheduler_NavigateDuringScan(t *testing.T) {
	submit := newFakeSubmitter("40%")
	submit.release = make(chan struct{})
	h := newHarness(t, staticText{pageA: longText(200), pageB: longText(200)}, submit)
	h.start(t)

	h.waitTimer(t)
	h.clock.Advance(h.cfg.InitialDelay)
	<-submit.requests
	h.waitState(t, "checking", func(st State) bool { return st.IsChecking && st.Phase == Fired })

	h.loc.navigate(pageB)
	st := h.waitState(t, "new url", func(st State) bool { return st.CurrentURL == pageB })
	if !st.IsChecking {
		t.Error("IsChecking cleared before the scan finished")
	}
	if msg := h.nextMessage(t); msg.Type != models.MsgPageChanged {
		t.Fatalf("message type = %s, want %s", msg.Type, models.MsgPageChanged)
	}

	close(submit.release)
	msg := h.nextMessage(t)
	if msg.Type != models.MsgShowWarning {
		t.Fatalf("message type = %s, want %s", msg.Type, models.MsgShowWarning)
	}
	var data models.WarningData
	if err := msg.Decode(&data); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if data.IsCurrentPage {
		t.Error("IsCurrentPage = true for a page the user left")
	}

	h.waitState(t, "re-armed for new page", func(st State) bool { return st.Phase == Armed && !st.IsChecking })
	h.waitTimer(t)
	h.clock.Advance(h.cfg.RearmDelay)
	if req := <-submit.requests; req.OriginURL != pageB {
		t.Errorf("OriginURL = %q, want %q", req.OriginURL, pageB)
	}
}

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"empty", "", "", false},
		{"whitespace only", " \n\t ", "", false},
		{"49 runes", longText(49), "", false},
		{"50 runes", longText(50), longText(50), true},
		{"collapses whitespace", "  " + longText(25) + "\n\n  " + longText(25) + "  ", longText(25) + " " + longText(25), true},
		{"truncates", longText(5001), longText(5000), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PrepareText(tt.raw, 50, 5000)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("PrepareText() = (%d runes, %v), want (%d runes, %v)",
					utf8.RuneCountInString(got), ok, utf8.RuneCountInString(tt.want), tt.wantOK)
			}
		})
	}
}

func TestTruncate_Multibyte(t *testing.T) {
	got := Truncate("가나다라마", 3)
	if got != "가나다" {
		t.Errorf("Truncate() = %q, want %q", got, "가나다")
	}
}

func TestParseAccuracy(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"65%", 65, true},
		{"65.5 %", 65.5, true},
		{"Accuracy: 82%", 82, true},
		{"", 0, false},
		{"unknown", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseAccuracy(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseAccuracy(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPoller_EmitsChanges(t *testing.T) {
	var mu sync.Mutex
	current := pageA
	source := func() string {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	clock := clockwork.NewFakeClock()
	p := NewPoller(source, time.Second, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}

	clock.Advance(time.Second)
	select {
	case u := <-p.Changes():
		t.Fatalf("unexpected change to %q", u)
	case <-time.After(20 * time.Millisecond):
	}

	mu.Lock()
	current = pageB
	mu.Unlock()
	clock.Advance(time.Second)

	select {
	case u := <-p.Changes():
		if u != pageB {
			t.Errorf("change = %q, want %q", u, pageB)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change emitted")
	}
	if p.Current() != pageB {
		t.Errorf("Current() = %q, want %q", p.Current(), pageB)
	}
}
