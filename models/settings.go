package models

// Settings store keys. The names match what the extension popup writes.
const (
	KeyFactCheckEnabled           = "isFactCheckEnabled"
	KeyBackgroundDetectionEnabled = "isBackgroundDetectionEnabled"
	KeyAPIBaseURL                 = "apiBaseUrl"
)

// Settings is a point-in-time snapshot of the settings store.
type Settings struct {
	FactCheckEnabled           bool   `json:"isFactCheckEnabled" yaml:"isFactCheckEnabled"`
	BackgroundDetectionEnabled bool   `json:"isBackgroundDetectionEnabled" yaml:"isBackgroundDetectionEnabled"`
	APIBaseURL                 string `json:"apiBaseUrl" yaml:"apiBaseUrl"`
}

// DefaultSettings returns the values used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		FactCheckEnabled:           true,
		BackgroundDetectionEnabled: true,
	}
}

// PassiveScanAllowed reports whether both toggles needed for passive
// scanning are on.
func (s Settings) PassiveScanAllowed() bool {
	return s.FactCheckEnabled && s.BackgroundDetectionEnabled
}
