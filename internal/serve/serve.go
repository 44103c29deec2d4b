package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/factcheck-relay/internal/common"
)

func ServeAction(c *cli.Context) error {
	rt, err := common.Setup(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer rt.Close()

	addr := rt.Config.ListenAddr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	bridge := NewBridge(rt.Settings, rt.Logger)
	hub := rt.NewHub(bridge.Bus(), bridge.ForgetTab)

	srv := &http.Server{
		Addr:              addr,
		Handler:           bridge.Handler(hub.Router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Info("Bridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return cli.Exit(err.Error(), 2)
		}
	case <-ctx.Done():
		rt.Logger.Info("Shutting down bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Warn("Bridge shutdown incomplete", "error", err)
		}
	}

	// Let in-flight checks deliver their last events and record history.
	hub.Router.Wait()
	return nil
}
