// Package settings is the single authoritative settings store. Values live
// in the sqlite settings table; consumers subscribe for change
// notifications and re-read a fresh Snapshot on every notification rather
// than caching values.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/dtnitsch/factcheck-relay/models"
)

// ErrUnknownKey is returned by Set for keys the store does not manage.
var ErrUnknownKey = errors.New("unknown settings key")

// Backend is the key-value persistence the store sits on. *db.DB
// implements it.
type Backend interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
}

// Change notifies subscribers that Key was written.
type Change struct {
	Key string
}

type Store struct {
	backend Backend
	logger  *slog.Logger

	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		subs:    make(map[int]chan Change),
	}
}

// Snapshot reads every setting from the backend. Keys never written fall
// back to models.DefaultSettings.
func (s *Store) Snapshot() (models.Settings, error) {
	snap := models.DefaultSettings()

	var err error
	if snap.FactCheckEnabled, err = s.readBool(models.KeyFactCheckEnabled, snap.FactCheckEnabled); err != nil {
		return snap, err
	}
	if snap.BackgroundDetectionEnabled, err = s.readBool(models.KeyBackgroundDetectionEnabled, snap.BackgroundDetectionEnabled); err != nil {
		return snap, err
	}
	if snap.APIBaseURL, err = s.readString(models.KeyAPIBaseURL); err != nil {
		return snap, err
	}
	return snap, nil
}

// APIBaseURL returns the configured backend base URL, empty when unset.
func (s *Store) APIBaseURL() (string, error) {
	return s.readString(models.KeyAPIBaseURL)
}

func (s *Store) SetFactCheckEnabled(enabled bool) error {
	return s.write(models.KeyFactCheckEnabled, enabled)
}

func (s *Store) SetBackgroundDetectionEnabled(enabled bool) error {
	return s.write(models.KeyBackgroundDetectionEnabled, enabled)
}

// SetAPIBaseURL stores the base URL without a trailing slash.
func (s *Store) SetAPIBaseURL(baseURL string) error {
	return s.write(models.KeyAPIBaseURL, strings.TrimRight(strings.TrimSpace(baseURL), "/"))
}

// SeedAPIBaseURL stores baseURL only if the user has not configured one.
func (s *Store) SeedAPIBaseURL(baseURL string) error {
	if baseURL == "" {
		return nil
	}
	current, err := s.APIBaseURL()
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return s.SetAPIBaseURL(baseURL)
}

// Set writes a setting from its string form, as typed on the command line
// or received over the HTTP bridge.
func (s *Store) Set(key, value string) error {
	switch key {
	case models.KeyFactCheckEnabled, models.KeyBackgroundDetectionEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects a boolean, got %q", key, value)
		}
		return s.write(key, b)
	case models.KeyAPIBaseURL:
		return s.SetAPIBaseURL(value)
	}
	return fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Subscribe returns a channel that receives a Change after every write,
// and a cancel func that closes it. Notifications coalesce: a subscriber
// that has not drained its pending Change gets no second one, so it must
// re-read Snapshot instead of trusting Change.Key alone.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 1)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) write(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	if err := s.backend.SetSetting(key, string(raw)); err != nil {
		return err
	}
	s.logger.Info("Setting changed", "key", key, "value", string(raw))
	s.notify(Change{Key: key})
	return nil
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *Store) readBool(key string, def bool) (bool, error) {
	raw, found, err := s.backend.GetSetting(key)
	if err != nil || !found {
		return def, err
	}
	var b bool
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		s.logger.Warn("Ignoring malformed setting", "key", key, "value", raw)
		return def, nil
	}
	return b, nil
}

func (s *Store) readString(key string) (string, error) {
	raw, found, err := s.backend.GetSetting(key)
	if err != nil || !found {
		return "", err
	}
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warn("Ignoring malformed setting", "key", key, "value", raw)
		return "", nil
	}
	return v, nil
}
