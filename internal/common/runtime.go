package common

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/db"
	"github.com/dtnitsch/factcheck-relay/pkg/messaging"
	"github.com/dtnitsch/factcheck-relay/pkg/orchestrator"
	"github.com/dtnitsch/factcheck-relay/pkg/settings"
	"github.com/dtnitsch/factcheck-relay/pkg/tracker"
	"github.com/dtnitsch/factcheck-relay/pkg/verifier"
)

// Runtime is what every action needs: configuration, logger, the sqlite
// store and the settings store on top of it.
type Runtime struct {
	Config   models.AppConfig
	Logger   *slog.Logger
	DB       *db.DB
	Settings *settings.Store
}

// NewLogger builds the JSON stderr logger from the global flags.
func NewLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	if c.Bool("quiet") {
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Setup loads configuration, applies flag overrides and opens the store.
// Callers must Close the runtime.
func Setup(c *cli.Context) (*Runtime, error) {
	logger := NewLogger(c)

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("api-base-url") {
		cfg.APIBaseURL = c.String("api-base-url")
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := settings.New(database, logger)
	if err := store.SeedAPIBaseURL(cfg.APIBaseURL); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to seed API base URL: %w", err)
	}

	logger.Debug("Runtime ready", "db_path", database.Path())
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		DB:       database,
		Settings: store,
	}, nil
}

func (r *Runtime) Close() error {
	return r.DB.Close()
}

// Verifier returns a backend client reading the base URL from the settings
// store.
func (r *Runtime) Verifier() *verifier.Client {
	return verifier.New(r.Settings, verifier.Options{
		Timeout:       r.Config.RequestTimeout,
		ImageEndpoint: r.Config.ImageEndpoint,
		Logger:        r.Logger,
	})
}

// Hub wires the background side: tracker, deliverer over transport and
// the orchestrator with history recording.
type Hub struct {
	Tracker      *tracker.Tracker
	Deliverer    *messaging.Deliverer
	Orchestrator *orchestrator.Orchestrator
	Router       *orchestrator.Router
}

// NewHub builds the background hub delivering through bus. onClosed runs
// after a tab_closed message.
func (r *Runtime) NewHub(bus interface {
	messaging.Transport
	messaging.Injector
	messaging.TabLocator
}, onClosed orchestrator.TabClosedFunc) *Hub {
	tr := tracker.New(nil)
	deliverer := messaging.NewDeliverer(bus, bus, bus, messaging.Options{
		Timeout:    r.Config.DeliveryTimeout,
		RetryDelay: r.Config.DeliveryRetryDelay,
		Logger:     r.Logger,
	})
	orch := orchestrator.New(r.Verifier(), r.Settings, tr, deliverer, orchestrator.Options{
		ShareBaseURL: r.Config.ShareBaseURL,
		History:      r.DB,
		Logger:       r.Logger,
	})
	return &Hub{
		Tracker:      tr,
		Deliverer:    deliverer,
		Orchestrator: orch,
		Router:       orchestrator.NewRouter(orch, r.Settings, onClosed, r.Logger),
	}
}

// Elapsed formats a duration for command output.
func Elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
