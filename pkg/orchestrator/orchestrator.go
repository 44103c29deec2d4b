// Package orchestrator is the background hub: it admits verification
// requests through the tracker, calls the backend and turns each outcome
// into presentation messages for the originating tab.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/db"
	"github.com/dtnitsch/factcheck-relay/pkg/messaging"
	"github.com/dtnitsch/factcheck-relay/pkg/pageurl"
	"github.com/dtnitsch/factcheck-relay/pkg/tracker"
)

// State is a step of a request's lifecycle.
type State string

const (
	Idle            State = "idle"
	Admitted        State = "admitted"
	LoadingNotified State = "loading_notified"
	Succeeded       State = "succeeded"
	Failed          State = "failed"
	Released        State = "released"
	Rejected        State = "rejected"
)

// Verifier performs one backend call. The error is a
// *models.VerificationFailure.
type Verifier interface {
	Verify(ctx context.Context, kind models.Kind, payload string) (*models.VerificationResult, error)
}

// SettingsReader returns a fresh settings snapshot.
type SettingsReader interface {
	Snapshot() (models.Settings, error)
}

// Emitter delivers a presentation message to a tab. *messaging.Deliverer
// implements it.
type Emitter interface {
	Deliver(ctx context.Context, tabID int, msg models.Message) messaging.Status
}

// History persists finished checks. *db.DB implements it.
type History interface {
	InsertCheck(rec db.CheckRecord) (int64, error)
}

type Options struct {
	ShareBaseURL string
	History      History
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Outcome is the terminal view of one request.
type Outcome struct {
	State   State
	Steps   []State
	Result  *models.VerificationResult
	Failure *models.VerificationFailure
}

type Orchestrator struct {
	verifier  Verifier
	settings  SettingsReader
	tracker   *tracker.Tracker
	emitter   Emitter
	shareBase string
	history   History
	clock     clockwork.Clock
	logger    *slog.Logger
}

func New(verifier Verifier, settings SettingsReader, tr *tracker.Tracker, emitter Emitter, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShareBaseURL == "" {
		opts.ShareBaseURL = models.DefaultShareBaseURL
	}
	return &Orchestrator{
		verifier:  verifier,
		settings:  settings,
		tracker:   tr,
		emitter:   emitter,
		shareBase: opts.ShareBaseURL,
		history:   opts.History,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
}

// Handle runs one request to completion. Passive requests produce no
// presentation messages; the scan scheduler presents their outcome.
func (o *Orchestrator) Handle(ctx context.Context, req models.VerificationRequest) Outcome {
	start := o.clock.Now()
	out := o.run(ctx, req)
	o.record(req, out, o.clock.Since(start).Milliseconds())
	return out
}

// Submit runs a passive request and returns its result, or the failure as
// the error.
func (o *Orchestrator) Submit(ctx context.Context, req models.VerificationRequest) (*models.VerificationResult, error) {
	req.Passive = true
	out := o.Handle(ctx, req)
	if out.Failure != nil {
		return nil, out.Failure
	}
	return out.Result, nil
}

// OnTabClosed drops any tracking state for the tab.
func (o *Orchestrator) OnTabClosed(tabID int) {
	o.tracker.OnTabClosed(tabID)
	o.logger.Debug("Tab closed", "tab_id", tabID)
}

func (o *Orchestrator) run(ctx context.Context, req models.VerificationRequest) (out Outcome) {
	logger := o.logger.With("tab_id", req.TabID, "kind", req.Kind, "passive", req.Passive)
	out = Outcome{State: Idle, Steps: []State{Idle}}
	step := func(s State) {
		out.State = s
		out.Steps = append(out.Steps, s)
	}

	snap, err := o.settings.Snapshot()
	if err != nil {
		logger.Error("Failed to read settings", "error", err)
		out.Failure = models.NewFailure(models.Unknown, "could not read extension settings", err.Error())
		if !req.Passive {
			o.emitFailure(ctx, req, out.Failure)
		}
		step(Rejected)
		return out
	}
	if snap.APIBaseURL == "" {
		out.Failure = models.NewFailure(models.ConfigurationMissing, models.MsgConfigurationMissing, "")
		if !req.Passive {
			o.emit(ctx, req.TabID, models.MsgShowConfigure, models.ErrorData{
				Kind:           req.Kind,
				Classification: models.ConfigurationMissing,
				Message:        models.MsgConfigurationMissing,
			})
		}
		logger.Info("Base URL not configured, request not sent")
		step(Rejected)
		return out
	}

	if !o.tracker.TryAdmit(req.TabID, req.Kind) {
		out.Failure = models.NewFailure(models.RequestAlreadyInProgress, models.MsgAlreadyInProgress, "")
		if !req.Passive {
			o.emit(ctx, req.TabID, models.MsgShowBusy, models.ErrorData{
				Kind:           req.Kind,
				Classification: models.RequestAlreadyInProgress,
				Message:        models.MsgAlreadyInProgress,
			})
		}
		logger.Info("Request already in progress for tab")
		step(Rejected)
		return out
	}
	step(Admitted)
	defer func() {
		o.tracker.Release(req.TabID, req.Kind)
		step(Released)
	}()

	if !req.Passive {
		o.emit(ctx, req.TabID, models.MsgShowLoading, models.LoadingData{Kind: req.Kind})
	}
	step(LoadingNotified)

	res, err := o.verifier.Verify(ctx, req.Kind, req.Payload)
	if err != nil {
		out.Failure = asFailure(err)
		logger.Warn("Verification failed", "classification", out.Failure.Classification, "error", out.Failure)
		if !req.Passive {
			o.emitFailure(ctx, req, out.Failure)
		}
		step(Failed)
		return out
	}

	out.Result = res
	logger.Info("Verification succeeded", "record_id", res.RecordID(), "accuracy", res.Accuracy())
	if !req.Passive {
		o.emit(ctx, req.TabID, resultMessageType(req.Kind), models.ResultData{
			Result:    res,
			ShareLink: pageurl.ShareLink(o.shareBase, res.RecordID()),
			OriginURL: req.OriginURL,
		})
	}
	step(Succeeded)
	return out
}

// emitFailure picks the presentation purely from the classification.
func (o *Orchestrator) emitFailure(ctx context.Context, req models.VerificationRequest, f *models.VerificationFailure) {
	data := models.ErrorData{Kind: req.Kind, Classification: f.Classification, Message: f.HumanMessage}
	if data.Message == "" {
		data.Message = f.RawDetail
	}

	if f.Classification.IsBaseURLProblem() {
		o.emit(ctx, req.TabID, models.MsgShowBaseURLWarning, data)
		return
	}
	if msg, ok := f.Classification.FixedMessage(); ok {
		data.Message = msg
	}
	o.emit(ctx, req.TabID, models.MsgShowError, data)
}

func (o *Orchestrator) emit(ctx context.Context, tabID int, t models.MessageType, data any) messaging.Status {
	msg, err := models.NewMessage(t, data)
	if err != nil {
		o.logger.Error("Failed to encode message", "type", t, "error", err)
		return messaging.Lost
	}
	return o.emitter.Deliver(ctx, tabID, msg)
}

func (o *Orchestrator) record(req models.VerificationRequest, out Outcome, durationMS int64) {
	if o.history == nil {
		return
	}

	origin := req.OriginURL
	if origin == "" && req.Kind != models.KindText {
		origin = req.Payload
	}
	rec := db.CheckRecord{
		TabID:      req.TabID,
		Kind:       string(req.Kind),
		Passive:    req.Passive,
		OriginURL:  origin,
		Domain:     pageurl.RegistrableDomain(origin),
		Outcome:    outcomeLabel(out),
		DurationMS: durationMS,
	}
	if out.Failure != nil {
		rec.Classification = string(out.Failure.Classification)
	}
	if out.Result != nil {
		rec.Accuracy = out.Result.Accuracy()
		rec.RecordID = out.Result.RecordID()
		rec.ShareLink = pageurl.ShareLink(o.shareBase, rec.RecordID)
	}

	if _, err := o.history.InsertCheck(rec); err != nil {
		o.logger.Warn("Failed to record check", "tab_id", req.TabID, "error", err)
	}
}

func outcomeLabel(out Outcome) string {
	switch {
	case out.State == Rejected:
		return string(Rejected)
	case out.Failure != nil:
		return string(Failed)
	default:
		return string(Succeeded)
	}
}

func resultMessageType(kind models.Kind) models.MessageType {
	switch kind {
	case models.KindImage:
		return models.MsgShowImageResult
	case models.KindVideo:
		return models.MsgShowVideoResult
	}
	return models.MsgShowTextResult
}

func asFailure(err error) *models.VerificationFailure {
	var f *models.VerificationFailure
	if errors.As(err, &f) {
		return f
	}
	return models.NewFailure(models.Unknown, err.Error(), "")
}
