package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dtnitsch/factcheck-relay/internal/common"
	"github.com/dtnitsch/factcheck-relay/pkg/caching"
	"github.com/dtnitsch/factcheck-relay/pkg/fetcher"
	"github.com/dtnitsch/factcheck-relay/pkg/messaging"
	"github.com/dtnitsch/factcheck-relay/pkg/pageurl"
	"github.com/dtnitsch/factcheck-relay/pkg/parser"
	"github.com/dtnitsch/factcheck-relay/pkg/presentation"
	scanpkg "github.com/dtnitsch/factcheck-relay/pkg/scan"
)

// Report is the outcome of a passive scan of one page.
type Report struct {
	URL       string  `json:"url"`
	Status    string  `json:"status"` // checked, skipped, disabled, failed
	Accuracy  string  `json:"accuracy,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Warned    bool    `json:"warned"`
	ShareLink string  `json:"share_link,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ScanAction runs the passive scan scheduler over each URL as if it were
// loaded in its own tab.
func ScanAction(c *cli.Context) error {
	raw := append(common.SplitList(c.String("urls")), c.Args().Slice()...)
	urls, invalid := common.SanitizeAndValidateURLs(raw)

	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, u := range invalid {
		rt.Logger.Warn("Skipping invalid URL", "url", u)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no valid URLs to scan (use --urls or pass URLs as arguments)")
	}

	start := time.Now()
	asJSON := c.String("format") == "json"
	var screen io.Writer = c.App.Writer
	if asJSON {
		screen = io.Discard
	}
	renderer := presentation.NewWriterRenderer(screen)

	bus := messaging.NewBus(nil)
	hub := rt.NewHub(bus, nil)
	source := &pageSource{
		fetcher: fetcher.NewFetcher(rt.Config.RequestTimeout),
		parser:  &parser.Parser{},
		article: c.Bool("article"),
		logger:  rt.Logger,
	}
	if dir := c.String("cache-dir"); dir != "" {
		cache, err := caching.New(dir, c.Duration("cache-ttl"), nil)
		if err != nil {
			return err
		}
		source.cache = cache
		if c.Bool("refresh") {
			for _, u := range urls {
				if err := cache.Delete(u, source.mode()); err != nil {
					rt.Logger.Warn("Failed to drop cached page text", "url", u, "error", err)
				}
			}
		}
	}

	concurrency := c.Int("concurrency")
	if concurrency <= 0 {
		concurrency = 4
	}
	rt.Logger.Info("Starting passive scans", "url_count", len(urls), "concurrency", concurrency, "article", source.article)

	reports := make([]Report, len(urls))
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() error {
			reports[i] = scanPage(ctx, rt, hub, bus, source, renderer, i+1, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := c.App.Writer
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	warned := 0
	for _, r := range reports {
		line := fmt.Sprintf("%-9s %s", r.Status, r.URL)
		if r.Accuracy != "" {
			line += " (" + r.Accuracy + ")"
		}
		if r.Error != "" {
			line += ": " + r.Error
		}
		if r.Warned {
			warned++
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\nScanned %d pages in %s, %d flagged below %.0f%%\n",
		len(reports), common.Elapsed(start), warned, rt.Config.Scan.AccuracyThreshold)
	return nil
}

// scanPage opens tabID on pageURL, runs a scheduler until it settles and
// closes the tab.
func scanPage(ctx context.Context, rt *common.Runtime, hub *common.Hub, bus *messaging.Bus, source *pageSource, renderer presentation.Renderer, tabID int, pageURL string) Report {
	logger := rt.Logger.With("tab_id", tabID, "url", pageURL)
	report := Report{URL: pageURL}

	machine := presentation.New(renderer, pageURL, presentation.Options{
		WarningTimeout: rt.Config.Presentation.WarningTimeout,
		Logger:         logger,
	})
	bus.OpenTab(tabID, pageURL)
	defer func() {
		bus.CloseTab(tabID)
		hub.Orchestrator.OnTabClosed(tabID)
	}()
	if err := bus.Attach(tabID, machine.Handle); err != nil {
		report.Status, report.Error = "failed", err.Error()
		return report
	}

	limit := rt.Config.Scan.InitialDelay + rt.Config.RequestTimeout + 30*time.Second
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	poller := scanpkg.NewPoller(func() string {
		u, _ := bus.TabURL(runCtx, tabID)
		return u
	}, rt.Config.Scan.PollInterval, nil)
	go poller.Run(runCtx)

	text := &recordingSource{next: source}
	submit := &recordingSubmitter{next: hub.Orchestrator}
	sched := scanpkg.New(tabID, rt.Settings, poller, text, submit, machine, scanpkg.Options{
		Config:       rt.Config.Scan,
		ShareBaseURL: rt.Config.ShareBaseURL,
		Logger:       logger,
	})

	done := make(chan error, 1)
	go func() { done <- sched.Run(runCtx) }()

	settled := waitSettled(runCtx, sched)
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Scheduler stopped with error", "error", err)
	}

	return buildReport(report, settled, text, submit, rt, logger)
}

func waitSettled(ctx context.Context, sched *scanpkg.Scheduler) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := sched.State()
		if st.Phase == scanpkg.Settled && st.HasCheckedCurrentPage && !st.IsChecking {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func buildReport(report Report, settled bool, text *recordingSource, submit *recordingSubmitter, rt *common.Runtime, logger *slog.Logger) Report {
	submitted, res, err := submit.outcome()
	switch {
	case !settled:
		report.Status, report.Error = "failed", "scan did not finish in time"
	case text.lastErr() != nil:
		report.Status, report.Error = "failed", text.lastErr().Error()
	case err != nil:
		report.Status, report.Error = "failed", err.Error()
	case !submitted:
		report.Status = "skipped"
		if snap, serr := rt.Settings.Snapshot(); serr == nil && !snap.PassiveScanAllowed() {
			report.Status = "disabled"
		}
	default:
		report.Status = "checked"
		report.Accuracy = res.Accuracy()
		report.Score, report.Warned = scanpkg.ShouldWarn(report.Accuracy, rt.Config.Scan.AccuracyThreshold)
		report.ShareLink = pageurl.ShareLink(rt.Config.ShareBaseURL, res.RecordID())
	}
	logger.Debug("Scan finished", "status", report.Status, "accuracy", report.Accuracy)
	return report
}
