package db

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/factcheck-relay/internal/common"
	"github.com/dtnitsch/factcheck-relay/models"
)

// SettingsListAction prints the settings snapshot as YAML.
func SettingsListAction(c *cli.Context) error {
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	snap, err := rt.Settings.Snapshot()
	if err != nil {
		return err
	}
	return writeYAML(c.App.Writer, snap)
}

// SettingsGetAction prints one setting value.
func SettingsGetAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: fcr settings get <key>")
	}
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	snap, err := rt.Settings.Snapshot()
	if err != nil {
		return err
	}

	var value any
	switch key := c.Args().First(); key {
	case models.KeyFactCheckEnabled:
		value = snap.FactCheckEnabled
	case models.KeyBackgroundDetectionEnabled:
		value = snap.BackgroundDetectionEnabled
	case models.KeyAPIBaseURL:
		value = snap.APIBaseURL
	default:
		return fmt.Errorf("unknown settings key %q (use: %s, %s, or %s)", key,
			models.KeyFactCheckEnabled, models.KeyBackgroundDetectionEnabled, models.KeyAPIBaseURL)
	}
	fmt.Fprintln(c.App.Writer, value)
	return nil
}

// SettingsSetAction writes one setting from its string form.
func SettingsSetAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: fcr settings set <key> <value>")
	}
	rt, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	key, value := c.Args().Get(0), c.Args().Get(1)
	if err := rt.Settings.Set(key, value); err != nil {
		return err
	}
	rt.Logger.Info("Setting updated", "key", key)
	return nil
}
