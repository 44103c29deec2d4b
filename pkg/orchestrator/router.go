package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dtnitsch/factcheck-relay/models"
)

// ErrUnknownMessage is returned by Dispatch for message types it does not
// route.
var ErrUnknownMessage = errors.New("unknown message type")

// SettingsWriter is the part of the settings store the toggle handlers use.
type SettingsWriter interface {
	SettingsReader
	SetFactCheckEnabled(enabled bool) error
	SetBackgroundDetectionEnabled(enabled bool) error
}

// Reply answers a dispatched message.
type Reply struct {
	Accepted bool                        `json:"accepted"`
	Settings *models.Settings            `json:"settings,omitempty"`
	Result   *models.VerificationResult  `json:"result,omitempty"`
	Failure  *models.VerificationFailure `json:"failure,omitempty"`
}

// TabClosedFunc is called after a tab's tracking state is dropped.
type TabClosedFunc func(tabID int)

// Router routes messages arriving from popups and content scripts.
// Verify intents run in the background; Dispatch returns once they are
// accepted.
type Router struct {
	orch     *Orchestrator
	settings SettingsWriter
	onClosed TabClosedFunc
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewRouter(orch *Orchestrator, settings SettingsWriter, onClosed TabClosedFunc, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		orch:     orch,
		settings: settings,
		onClosed: onClosed,
		logger:   logger,
	}
}

// Dispatch handles one message from tabID.
func (r *Router) Dispatch(ctx context.Context, tabID int, msg models.Message) (Reply, error) {
	r.logger.Debug("Dispatching message", "tab_id", tabID, "type", msg.Type)

	switch msg.Type {
	case models.MsgVerifyText, models.MsgVerifyImage, models.MsgVerifyVideo:
		req, err := r.request(tabID, msg)
		if err != nil {
			return Reply{}, err
		}
		// The request outlives the message exchange that started it.
		bg := context.WithoutCancel(ctx)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.orch.Handle(bg, req)
		}()
		return Reply{Accepted: true}, nil

	case models.MsgPassiveScan:
		req, err := r.request(tabID, msg)
		if err != nil {
			return Reply{}, err
		}
		res, err := r.orch.Submit(ctx, req)
		if err != nil {
			return Reply{Accepted: true, Failure: asFailure(err)}, nil
		}
		return Reply{Accepted: true, Result: res}, nil

	case models.MsgSetFactCheck, models.MsgSetBackgroundScan:
		var data models.ToggleData
		if err := msg.Decode(&data); err != nil {
			return Reply{}, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		set := r.settings.SetFactCheckEnabled
		if msg.Type == models.MsgSetBackgroundScan {
			set = r.settings.SetBackgroundDetectionEnabled
		}
		if err := set(data.Enabled); err != nil {
			return Reply{}, err
		}
		return r.settingsReply()

	case models.MsgGetSettings:
		return r.settingsReply()

	case models.MsgTabClosed:
		r.orch.OnTabClosed(tabID)
		if r.onClosed != nil {
			r.onClosed(tabID)
		}
		return Reply{Accepted: true}, nil
	}

	return Reply{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
}

// Wait blocks until every background request started by Dispatch has
// finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) request(tabID int, msg models.Message) (models.VerificationRequest, error) {
	var data models.VerifyData
	if err := msg.Decode(&data); err != nil {
		return models.VerificationRequest{}, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
	}

	req := models.VerificationRequest{
		Kind:      kindOf(msg.Type),
		TabID:     tabID,
		Payload:   data.Payload,
		OriginURL: data.OriginURL,
		Passive:   msg.Type == models.MsgPassiveScan,
	}
	// A video check without an explicit URL checks the page itself.
	if req.Kind == models.KindVideo && req.Payload == "" {
		req.Payload = req.OriginURL
	}
	return req, nil
}

func (r *Router) settingsReply() (Reply, error) {
	snap, err := r.settings.Snapshot()
	if err != nil {
		return Reply{}, err
	}
	return Reply{Accepted: true, Settings: &snap}, nil
}

func kindOf(t models.MessageType) models.Kind {
	switch t {
	case models.MsgVerifyImage:
		return models.KindImage
	case models.MsgVerifyVideo:
		return models.KindVideo
	}
	return models.KindText
}
