// Package syncconfig loads and validates the external configuration spec
// §6 enumerates, grounded on the teacher's internal/syncconfig/syncconfig.go
// (same ~/.config/<app>/config.json file; values come from that file, or
// from the profile defaults when it is absent, and no environment variable
// overrides them), generalized from the teacher's single sync.url setting
// to the full desktop/mobile profile this spec requires.
package syncconfig

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Provider is the closed set of storage providers spec §6 names.
type Provider string

const (
	ProviderNeutral         Provider = "neutral"
	ProviderGoogleAppData   Provider = "google_appdata"
	ProviderOneDriveApproot Provider = "onedrive_approot"
	ProviderICloudCloudKit  Provider = "icloud_cloudkit"
	ProviderCloudManaged    Provider = "cloud_managed"
)

func (p Provider) valid() bool {
	switch p {
	case ProviderNeutral, ProviderGoogleAppData, ProviderOneDriveApproot, ProviderICloudCloudKit, ProviderCloudManaged:
		return true
	}
	return false
}

// Profile selects which set of defaults a host applies (spec §6).
type Profile string

const (
	ProfileDesktop Profile = "desktop"
	ProfileMobile  Profile = "mobile"
)

// bounds mirrors spec §6's enumerated [min, max] ranges.
type bounds struct{ min, max int }

var (
	autoSyncIntervalBounds       = bounds{15, 3600}
	backgroundSyncIntervalBounds = bounds{30, 7200}
	limitBounds                  = bounds{20, 500}
	maxPullPagesBounds           = bounds{1, 20}
)

func clamp(v int, b bounds) int {
	if v < b.min {
		return b.min
	}
	if v > b.max {
		return b.max
	}
	return v
}

// Config is the full sync configuration for one device, validated against
// spec §6's enumerated bounds and the push_url/pull_url both-or-neither
// rule.
type Config struct {
	Provider                      Provider `json:"provider"`
	PushURL                       string   `json:"push_url,omitempty"`
	PullURL                       string   `json:"pull_url,omitempty"`
	AutoSyncIntervalSeconds       int      `json:"auto_sync_interval_seconds"`
	BackgroundSyncIntervalSeconds int      `json:"background_sync_interval_seconds"`
	PushLimit                     int      `json:"push_limit"`
	PullLimit                     int      `json:"pull_limit"`
	MaxPullPages                  int      `json:"max_pull_pages"`
}

// ErrEndpointsRequireBoth is SYNC_ENDPOINTS_REQUIRE_BOTH from spec §7.
var ErrEndpointsRequireBoth = fmt.Errorf("push_url and pull_url must both be set or both be empty")

// Defaults returns the profile's default Config per spec §6.
func Defaults(profile Profile) Config {
	switch profile {
	case ProfileMobile:
		return Config{
			Provider:                      ProviderNeutral,
			AutoSyncIntervalSeconds:       120,
			BackgroundSyncIntervalSeconds: 600,
			PushLimit:                     120,
			PullLimit:                     120,
			MaxPullPages:                  3,
		}
	default:
		return Config{
			Provider:                      ProviderNeutral,
			AutoSyncIntervalSeconds:       60,
			BackgroundSyncIntervalSeconds: 300,
			PushLimit:                     200,
			PullLimit:                     200,
			MaxPullPages:                  5,
		}
	}
}

// Validate clamps numeric fields into their spec §6 bounds, ensures the
// effective background interval is never less than the auto interval,
// checks the provider enum, and enforces the push/pull URL both-or-neither
// rule with an http(s) scheme.
func (c *Config) Validate() error {
	if !c.Provider.valid() {
		return fmt.Errorf("invalid provider %q", c.Provider)
	}
	if (c.PushURL == "") != (c.PullURL == "") {
		return ErrEndpointsRequireBoth
	}
	for _, raw := range []string{c.PushURL, c.PullURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid endpoint URL %q: must be http(s)", raw)
		}
	}

	c.AutoSyncIntervalSeconds = clamp(c.AutoSyncIntervalSeconds, autoSyncIntervalBounds)
	c.BackgroundSyncIntervalSeconds = clamp(c.BackgroundSyncIntervalSeconds, backgroundSyncIntervalBounds)
	if c.BackgroundSyncIntervalSeconds < c.AutoSyncIntervalSeconds {
		c.BackgroundSyncIntervalSeconds = c.AutoSyncIntervalSeconds
	}
	c.PushLimit = clamp(c.PushLimit, limitBounds)
	c.PullLimit = clamp(c.PullLimit, limitBounds)
	c.MaxPullPages = clamp(c.MaxPullPages, maxPullPagesBounds)
	return nil
}

// configDirName and configFileName mirror the teacher's
// ~/.config/<app>/config.json layout.
const (
	configDirName  = "tdsync"
	configFileName = "config.json"
)

// ConfigDir returns ~/.config/tdsync, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", configDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the config file, falling back to the given profile's defaults
// when the file does not exist, then validates the result.
func Load(profile Profile) (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Defaults(profile)
			return &cfg, nil
		}
		return nil, err
	}
	cfg := Defaults(profile)
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to ~/.config/tdsync/config.json.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0644)
}

// deviceIDFileName stores this installation's device identity, independent
// of config.json so it is never accidentally overwritten by a config edit.
const deviceIDFileName = "device_id"

// LoadOrCreateDeviceID reads the device identity file, generating and
// persisting a new uuid.NewString() identity on first run. This backs the
// model.DeviceIDSettingKey local setting the Store also maintains; the file
// is the durable source, the setting is the synchronization-visible mirror
// the Sync Engine and Mutation API stamp onto every shadow row.
func LoadOrCreateDeviceID() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, deviceIDFileName)
	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		return string(data), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0644); err != nil {
		return "", err
	}
	return id, nil
}
