package db

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	dbpkg "github.com/dtnitsch/factcheck-relay/pkg/db"
)

var outcomes = []string{"succeeded", "failed", "rejected"}

// GetCheckIDOrLatest returns the check ID from args, or the latest check if
// none is given.
func GetCheckIDOrLatest(c *cli.Context, database *dbpkg.DB) (int64, error) {
	if c.NArg() == 0 {
		checks, err := database.ListChecks(dbpkg.CheckFilter{Limit: 1})
		if err != nil {
			return 0, fmt.Errorf("failed to get latest check: %w", err)
		}
		if len(checks) == 0 {
			return 0, fmt.Errorf("no checks found. Run 'fcr check text \"...\"' first")
		}
		return checks[0].CheckID, nil
	}

	checkID, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid check ID: %s", c.Args().First())
	}
	return checkID, nil
}

func validateOutcome(outcome string) error {
	if outcome == "" {
		return nil
	}
	for _, o := range outcomes {
		if o == outcome {
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q (use: succeeded, failed, or rejected)", outcome)
}
