package db

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/factcheck-relay/internal/common"
	dbpkg "github.com/dtnitsch/factcheck-relay/pkg/db"
)

// HistoryAction lists recent checks, newest first.
func HistoryAction(c *cli.Context) error {
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	outcome := c.String("outcome")
	if err := validateOutcome(outcome); err != nil {
		return err
	}

	checks, err := rt.DB.ListChecks(dbpkg.CheckFilter{
		Limit:   c.Int("limit"),
		Outcome: outcome,
		Domain:  c.String("domain"),
	})
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.String("format") == "yaml" {
		return writeYAML(out, checks)
	}

	if len(checks) == 0 {
		fmt.Fprintln(out, "No checks found")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-20s %-6s %-10s %-28s %-9s %-25s\n",
		"ID", "Created", "Kind", "Outcome", "Classification", "Accuracy", "Domain")
	fmt.Fprintln(out, strings.Repeat("-", 110))
	for _, rec := range checks {
		kind := rec.Kind
		if rec.Passive {
			kind += "*"
		}
		fmt.Fprintf(out, "%-6d %-20s %-6s %-10s %-28s %-9s %-25s\n",
			rec.CheckID,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			kind,
			rec.Outcome,
			orDash(rec.Classification),
			orDash(rec.Accuracy),
			orDash(rec.Domain),
		)
	}

	fmt.Fprintf(out, "\nTotal: %d checks (* = passive scan)\n", len(checks))
	fmt.Fprintf(out, "\nTip: Use 'fcr history show <id>' to see details\n")
	return nil
}

// ShowCheckAction prints one check; without an argument it shows the latest.
func ShowCheckAction(c *cli.Context) error {
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	checkID, err := GetCheckIDOrLatest(c, rt.DB)
	if err != nil {
		return err
	}
	rec, err := rt.DB.GetCheck(checkID)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Check %d\n", rec.CheckID)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Created:        %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Tab:            %d\n", rec.TabID)
	fmt.Fprintf(out, "Kind:           %s (passive: %t)\n", rec.Kind, rec.Passive)
	fmt.Fprintf(out, "Origin:         %s\n", orDash(rec.OriginURL))
	fmt.Fprintf(out, "Outcome:        %s\n", rec.Outcome)
	fmt.Fprintf(out, "Classification: %s\n", orDash(rec.Classification))
	fmt.Fprintf(out, "Accuracy:       %s\n", orDash(rec.Accuracy))
	fmt.Fprintf(out, "Record:         %s\n", orDash(rec.RecordID))
	fmt.Fprintf(out, "Share:          %s\n", orDash(rec.ShareLink))
	fmt.Fprintf(out, "Duration:       %dms\n", rec.DurationMS)
	return nil
}

// StatsAction counts failed and rejected checks per classification.
func StatsAction(c *cli.Context) error {
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	counts, err := rt.DB.CountChecksByClassification()
	if err != nil {
		return err
	}

	out := c.App.Writer
	if len(counts) == 0 {
		fmt.Fprintln(out, "No failed checks")
		return nil
	}

	classes := make([]string, 0, len(counts))
	for class := range counts {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool {
		if counts[classes[i]] != counts[classes[j]] {
			return counts[classes[i]] > counts[classes[j]]
		}
		return classes[i] < classes[j]
	})

	for _, class := range classes {
		fmt.Fprintf(out, "%-28s %d\n", class, counts[class])
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
