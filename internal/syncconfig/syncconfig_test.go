package syncconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home) // os.UserHomeDir on Windows
	return home
}

func TestValidateClampsOutOfRangeValues(t *testing.T) {
	cfg := Config{
		Provider:                      ProviderNeutral,
		AutoSyncIntervalSeconds:       1,
		BackgroundSyncIntervalSeconds: 99999,
		PushLimit:                     0,
		PullLimit:                     99999,
		MaxPullPages:                  0,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.AutoSyncIntervalSeconds != autoSyncIntervalBounds.min {
		t.Errorf("AutoSyncIntervalSeconds = %d, want %d", cfg.AutoSyncIntervalSeconds, autoSyncIntervalBounds.min)
	}
	if cfg.BackgroundSyncIntervalSeconds != backgroundSyncIntervalBounds.max {
		t.Errorf("BackgroundSyncIntervalSeconds = %d, want %d", cfg.BackgroundSyncIntervalSeconds, backgroundSyncIntervalBounds.max)
	}
	if cfg.PushLimit != limitBounds.min {
		t.Errorf("PushLimit = %d, want %d", cfg.PushLimit, limitBounds.min)
	}
	if cfg.PullLimit != limitBounds.max {
		t.Errorf("PullLimit = %d, want %d", cfg.PullLimit, limitBounds.max)
	}
	if cfg.MaxPullPages != maxPullPagesBounds.min {
		t.Errorf("MaxPullPages = %d, want %d", cfg.MaxPullPages, maxPullPagesBounds.min)
	}
}

func TestValidateRaisesBackgroundIntervalToMatchAutoInterval(t *testing.T) {
	cfg := Config{Provider: ProviderNeutral, AutoSyncIntervalSeconds: 500, BackgroundSyncIntervalSeconds: 100}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.BackgroundSyncIntervalSeconds != 500 {
		t.Errorf("BackgroundSyncIntervalSeconds = %d, want 500 (must never trail auto interval)", cfg.BackgroundSyncIntervalSeconds)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Config{Provider: "not-a-provider"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidateRequiresBothEndpointsOrNeither(t *testing.T) {
	cfg := Config{Provider: ProviderNeutral, PushURL: "https://example.com/push"}
	if err := cfg.Validate(); err != ErrEndpointsRequireBoth {
		t.Fatalf("Validate() = %v, want ErrEndpointsRequireBoth", err)
	}
}

func TestValidateRejectsNonHTTPEndpoint(t *testing.T) {
	cfg := Config{Provider: ProviderNeutral, PushURL: "ftp://example.com/push", PullURL: "ftp://example.com/pull"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http(s) endpoint")
	}
}

func TestLoadFallsBackToProfileDefaultsWhenFileMissing(t *testing.T) {
	withTempHome(t)
	cfg, err := Load(ProfileMobile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults(ProfileMobile)
	if *cfg != want {
		t.Errorf("Load() = %+v, want defaults %+v", *cfg, want)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	withTempHome(t)
	cfg := Defaults(ProfileDesktop)
	cfg.PushURL = "https://sync.example.com/push"
	cfg.PullURL = "https://sync.example.com/pull"

	if err := Save(&cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(ProfileDesktop)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.PushURL != cfg.PushURL || got.PullURL != cfg.PullURL {
		t.Errorf("Load() = %+v, want %+v", *got, cfg)
	}
}

func TestLoadRejectsInvalidSavedConfig(t *testing.T) {
	home := withTempHome(t)
	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(`{"provider":"bogus"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_ = home
	if _, err := Load(ProfileDesktop); err == nil {
		t.Fatal("expected error loading a config with an invalid provider")
	}
}

func TestLoadOrCreateDeviceIDPersistsAcrossCalls(t *testing.T) {
	withTempHome(t)
	first, err := LoadOrCreateDeviceID()
	if err != nil {
		t.Fatalf("LoadOrCreateDeviceID: %v", err)
	}
	if first == "" {
		t.Fatal("expected a non-empty device id")
	}
	second, err := LoadOrCreateDeviceID()
	if err != nil {
		t.Fatalf("LoadOrCreateDeviceID (second call): %v", err)
	}
	if first != second {
		t.Errorf("device id changed across calls: %q != %q", first, second)
	}
}
