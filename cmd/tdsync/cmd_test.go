package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// withTempStore points getBaseDir at a fresh temp directory and runs `init`
// so every test starts from an initialized store, mirroring how a real
// invocation sequence begins.
func withTempStore(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home) // os.UserHomeDir on Windows

	dir := filepath.Join(t.TempDir(), "store")
	baseDirOverride = &dir
	t.Cleanup(func() { baseDirOverride = nil })

	if out, err := runCmd(t, "init"); err != nil {
		t.Fatalf("init: %v (%s)", err, out)
	}
	return dir
}

// runCmd executes rootCmd with args, capturing everything written to
// os.Stdout (termout's helpers print there directly rather than through
// cobra's configured writer). cobra commands under test share the
// package-level rootCmd, so tests must not run in parallel.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd.SetArgs(args)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	realStdout := os.Stdout
	os.Stdout = w

	runErr := rootCmd.Execute()

	os.Stdout = realStdout
	w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	return string(out), runErr
}

func TestInitCreatesStore(t *testing.T) {
	dir := withTempStore(t)
	if _, err := runCmd(t, "init"); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if dir == "" {
		t.Fatal("expected a store directory")
	}
}

func TestProjectCreateAndList(t *testing.T) {
	withTempStore(t)

	if _, err := runCmd(t, "project", "create", "Launch", "--description", "first"); err != nil {
		t.Fatalf("project create: %v", err)
	}

	out, err := runCmd(t, "project", "list")
	if err != nil {
		t.Fatalf("project list: %v", err)
	}
	if !strings.Contains(out, "Launch") {
		t.Fatalf("project list output = %q, want it to contain Launch", out)
	}
}

func TestTaskCreate(t *testing.T) {
	withTempStore(t)

	if _, err := runCmd(t, "project", "create", "Inbox"); err != nil {
		t.Fatalf("project create: %v", err)
	}

	if _, err := runCmd(t, "task", "create", "Write report", "--priority", "URGENT"); err != nil {
		t.Fatalf("task create: %v", err)
	}
}

func TestSettingPutGetDelete(t *testing.T) {
	withTempStore(t)

	if _, err := runCmd(t, "setting", "put", "theme", "dark"); err != nil {
		t.Fatalf("setting put: %v", err)
	}
	out, err := runCmd(t, "setting", "get", "theme")
	if err != nil {
		t.Fatalf("setting get: %v", err)
	}
	if !strings.Contains(out, "dark") {
		t.Fatalf("setting get output = %q, want it to contain dark", out)
	}
	if _, err := runCmd(t, "setting", "delete", "theme"); err != nil {
		t.Fatalf("setting delete: %v", err)
	}
}

func TestSyncStatusWithoutConfigurationIsLocalOnly(t *testing.T) {
	withTempStore(t)

	out, err := runCmd(t, "sync", "status")
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	if !strings.Contains(out, "LOCAL_ONLY") {
		t.Fatalf("sync status output = %q, want LOCAL_ONLY", out)
	}
}

func TestDoctorSkipsReachabilityWhenUnconfigured(t *testing.T) {
	withTempStore(t)

	out, err := runCmd(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if !strings.Contains(out, "SKIPPED") {
		t.Fatalf("doctor output = %q, want a SKIPPED reachability line", out)
	}
}
