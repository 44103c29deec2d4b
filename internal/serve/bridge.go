// Package serve exposes the background hub over HTTP so a browser
// extension (or any other host) can forward messages to it and poll the
// presentation events queued for each tab.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/messaging"
	"github.com/dtnitsch/factcheck-relay/pkg/orchestrator"
	"github.com/dtnitsch/factcheck-relay/pkg/settings"
)

// maxQueuedEvents bounds a tab's queue; the oldest events go first.
const maxQueuedEvents = 64

// Bridge owns the tab bus and the per-tab event queues.
type Bridge struct {
	bus      *messaging.Bus
	settings *settings.Store
	logger   *slog.Logger

	mu     sync.Mutex
	queues map[int][]models.Message
}

func NewBridge(store *settings.Store, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		settings: store,
		logger:   logger,
		queues:   make(map[int][]models.Message),
	}
	b.bus = messaging.NewBus(b.queueHandler)
	return b
}

// Bus is the transport the hub delivers through.
func (b *Bridge) Bus() *messaging.Bus {
	return b.bus
}

// ForgetTab drops a closed tab's bus entry and queue.
func (b *Bridge) ForgetTab(tabID int) {
	b.bus.CloseTab(tabID)
	b.mu.Lock()
	delete(b.queues, tabID)
	b.mu.Unlock()
}

func (b *Bridge) queueHandler(tabID int) messaging.Handler {
	return func(ctx context.Context, msg models.Message) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		q := append(b.queues[tabID], msg)
		if len(q) > maxQueuedEvents {
			q = q[len(q)-maxQueuedEvents:]
		}
		b.queues[tabID] = q
		return nil
	}
}

func (b *Bridge) drain(tabID int) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[tabID]
	delete(b.queues, tabID)
	if q == nil {
		q = []models.Message{}
	}
	return q
}

// Handler builds the chi router serving the bridge API.
func (b *Bridge) Handler(router *orchestrator.Router) http.Handler {
	h := &handler{bridge: b, router: router}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(b.logger))
	r.Use(loggingMiddleware(b.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)

		r.Route("/tabs/{tab}", func(r chi.Router) {
			r.Post("/ready", h.tabReady)
			r.Post("/navigate", h.tabNavigate)
			r.Post("/messages", h.postMessage)
			r.Get("/events", h.getEvents)
			r.Delete("/", h.closeTab)
		})
	})
	return r
}

type handler struct {
	bridge *Bridge
	router *orchestrator.Router
}

type pageBody struct {
	URL  string `json:"url"`
	Hard bool   `json:"hard,omitempty"`
}

// tabReady is called by the content script once it is loaded.
func (h *handler) tabReady(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabParam(w, r)
	if !ok {
		return
	}
	var body pageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected {\"url\": ...}")
		return
	}

	bus := h.bridge.bus
	if _, err := bus.TabURL(r.Context(), tabID); errors.Is(err, messaging.ErrNoTab) {
		bus.OpenTab(tabID, body.URL)
	} else if err := bus.Navigate(tabID, body.URL, false); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if err := bus.Attach(tabID, h.bridge.queueHandler(tabID)); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) tabNavigate(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabParam(w, r)
	if !ok {
		return
	}
	var body pageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected {\"url\": ...}")
		return
	}
	if err := h.bridge.bus.Navigate(tabID, body.URL, body.Hard); err != nil {
		writeError(w, http.StatusNotFound, "TAB_NOT_FOUND", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) postMessage(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabParam(w, r)
	if !ok {
		return
	}
	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	reply, err := h.router.Dispatch(r.Context(), tabID, msg)
	if err != nil {
		status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
		if errors.Is(err, orchestrator.ErrUnknownMessage) {
			status, code = http.StatusBadRequest, "UNKNOWN_MESSAGE"
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *handler) getEvents(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": h.bridge.drain(tabID)})
}

func (h *handler) closeTab(w http.ResponseWriter, r *http.Request) {
	tabID, ok := tabParam(w, r)
	if !ok {
		return
	}
	if _, err := h.router.Dispatch(r.Context(), tabID, models.Message{Type: models.MsgTabClosed}); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	snap, err := h.bridge.settings.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// putSettings accepts {"key": "value"} pairs using the store's key names.
func (h *handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	for key, value := range body {
		if err := h.bridge.settings.Set(key, value); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SETTING", err.Error())
			return
		}
	}
	h.getSettings(w, r)
}

func tabParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tab"))
	if err != nil || tabID < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_TAB", "tab id must be a non-negative integer")
		return 0, false
	}
	return tabID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
