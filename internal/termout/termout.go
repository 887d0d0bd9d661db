// Package termout provides styled terminal output for the tdsync CLI,
// grounded on the teacher's internal/output/output.go: the same
// lipgloss-styled Success/Error/Warning/Info/JSON helpers, generalized from
// issue/status formatting to sync cycle summaries and conflict reports.
package termout

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/syncrunner"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	statusStyles = map[Status]lipgloss.Style{
		StatusLocalOnly: subtleStyle,
		StatusSyncing:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		StatusSynced:    successStyle,
		StatusOffline:   warningStyle,
		StatusConflict:  conflictStyle,
	}
)

// Success prints a success message.
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message.
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message.
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message.
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON prints v as indented JSON.
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Status is one of the five user-visible sync states spec §7 names.
type Status string

const (
	StatusLocalOnly Status = "LOCAL_ONLY"
	StatusSyncing   Status = "SYNCING"
	StatusSynced    Status = "SYNCED"
	StatusOffline   Status = "OFFLINE"
	StatusConflict  Status = "CONFLICT"
)

// DeriveStatus computes the sync status spec §7 exposes to the host UI from
// the last cycle summary and whether any conflict is still open. cycleErr
// is the error (if any) RunCycle returned for the last attempted cycle.
func DeriveStatus(lastSummary *syncrunner.CycleSummary, cycleErr error, openConflicts int) Status {
	if openConflicts > 0 {
		return StatusConflict
	}
	if lastSummary == nil {
		return StatusLocalOnly
	}
	if cycleErr != nil {
		return StatusOffline
	}
	if lastSummary.PendingOutboxChanges > 0 || lastSummary.Pull.HasMore {
		return StatusSyncing
	}
	return StatusSynced
}

// FormatStatus renders a Status with its color.
func FormatStatus(s Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatCycleSummary renders a CycleSummary as a one-line human-readable
// report for `tdsync sync run`.
func FormatCycleSummary(s *syncrunner.CycleSummary) string {
	var parts []string
	parts = append(parts, titleStyle.Render("sync"))
	parts = append(parts, fmt.Sprintf("pushed %d", s.RemovedOutboxChanges))
	if s.FailedOutboxChanges > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("failed %d", s.FailedOutboxChanges)))
	}
	parts = append(parts, fmt.Sprintf("pulled %d", s.Pull.Applied))
	if s.Pull.Conflicts > 0 {
		parts = append(parts, conflictStyle.Render(fmt.Sprintf("conflicts %d", s.Pull.Conflicts)))
	}
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("cursor %s", s.CheckpointAfter)))
	return strings.Join(parts, "  ")
}

// FormatConflict renders one conflict row for `tdsync conflicts list`.
func FormatConflict(c *store.Conflict) string {
	var parts []string
	parts = append(parts, titleStyle.Render(c.ID))
	parts = append(parts, conflictStyle.Render(fmt.Sprintf("[%s]", c.ReasonCode)))
	parts = append(parts, fmt.Sprintf("%s %s", c.EntityType, c.EntityID))
	parts = append(parts, subtleStyle.Render(string(c.Status)))
	return strings.Join(parts, "  ")
}
