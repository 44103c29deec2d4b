package check

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/factcheck-relay/internal/common"
	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/messaging"
	"github.com/dtnitsch/factcheck-relay/pkg/orchestrator"
	"github.com/dtnitsch/factcheck-relay/pkg/pageurl"
	"github.com/dtnitsch/factcheck-relay/pkg/presentation"
)

// cliTabID is the single tab a command-line check runs in.
const cliTabID = 1

// DefaultPage is the page a text check is attributed to when --page is
// not given.
const DefaultPage = "https://localhost/"

// Summary is the --format json output of a check.
type Summary struct {
	Kind      models.Kind                 `json:"kind"`
	Page      string                      `json:"page"`
	State     orchestrator.State          `json:"state"`
	Steps     []orchestrator.State        `json:"steps"`
	Result    *models.VerificationResult  `json:"result,omitempty"`
	Failure   *models.VerificationFailure `json:"failure,omitempty"`
	ShareLink string                      `json:"share_link,omitempty"`
	Elapsed   string                      `json:"elapsed"`
}

func TextAction(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if text == "" || text == "-" {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}
	page := c.String("page")
	if page == "" {
		page = DefaultPage
	}
	return runCheck(c, models.KindText, strings.TrimSpace(text), page)
}

func ImageAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: fcr check image <image-url>")
	}
	image := common.SanitizeURL(c.Args().First())
	page := c.String("page")
	if page == "" {
		page = image
	}
	return runCheck(c, models.KindImage, image, page)
}

func VideoAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: fcr check video <page-url>")
	}
	page := common.SanitizeURL(c.Args().First())
	return runCheck(c, models.KindVideo, page, page)
}

// HealthAction probes the backend's health endpoint.
func HealthAction(c *cli.Context) error {
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(c.Context, rt.Config.RequestTimeout)
	defer cancel()

	base, _ := rt.Settings.APIBaseURL()
	if err := rt.Verifier().Health(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("backend %s: %v", orUnset(base), err), 1)
	}
	fmt.Fprintf(c.App.Writer, "backend %s: ok\n", base)
	return nil
}

// runCheck sends one verification through the full background path: the
// orchestrator delivers its events to a presentation machine attached to
// a single in-process tab.
func runCheck(c *cli.Context, kind models.Kind, payload, page string) error {
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	start := time.Now()
	asJSON := c.String("format") == "json"

	var screen io.Writer = c.App.Writer
	if asJSON {
		screen = io.Discard
	}
	machine := presentation.New(presentation.NewWriterRenderer(screen), page, presentation.Options{
		WarningTimeout: rt.Config.Presentation.WarningTimeout,
		Logger:         rt.Logger,
	})

	bus := messaging.NewBus(func(int) messaging.Handler { return machine.Handle })
	bus.OpenTab(cliTabID, page)
	if err := bus.Attach(cliTabID, machine.Handle); err != nil {
		return err
	}
	hub := rt.NewHub(bus, nil)

	ctx, cancel := context.WithTimeout(c.Context, rt.Config.RequestTimeout+rt.Config.DeliveryTimeout)
	defer cancel()

	out := hub.Orchestrator.Handle(ctx, models.VerificationRequest{
		Kind:      kind,
		TabID:     cliTabID,
		Payload:   payload,
		OriginURL: page,
	})

	if asJSON {
		summary := Summary{
			Kind:    kind,
			Page:    page,
			State:   out.State,
			Steps:   out.Steps,
			Result:  out.Result,
			Failure: out.Failure,
			Elapsed: common.Elapsed(start),
		}
		if out.Result != nil {
			summary.ShareLink = pageurl.ShareLink(rt.Config.ShareBaseURL, out.Result.RecordID())
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
	}

	if out.Failure != nil {
		return cli.Exit("", 1)
	}
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
