package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"activestats/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusNull:
		return "none"
	case domain.StatusPending:
		return "pending"
	default:
		return string(s)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// renderSnapshot prints the snapshot header followed by one row per kind.
func renderSnapshot(w io.Writer, title string, snap domain.Snapshot) {
	fmt.Fprintf(w, "\n=== %s ===\n", title)
	if snap.SessionID != "" {
		fmt.Fprintf(w, "Session:    %s\n", snap.SessionID)
	}
	fmt.Fprintf(w, "Paid:       %t\n", snap.Paid)
	if !snap.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated At: %s\n", snap.UpdatedAt.UTC().Format(timeLayout))
	}

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Status", "Polling", "Browse", "Refresh", "Message")
	for _, kind := range domain.Kinds {
		state := snap.State(kind)
		en := snap.Enablement(kind)
		table.Append(
			string(kind),
			statusLabel(state.Job.Status),
			yesNo(state.Polling),
			yesNo(en.NavigationEnabled),
			yesNo(en.RefreshEnabled),
			state.Job.Message,
		)
	}
	table.Render()
}

// formatChange renders one watch line for a kind.
func formatChange(snap domain.Snapshot, kind domain.JobKind) string {
	state := snap.State(kind)
	var flags []string
	if state.Polling {
		flags = append(flags, "polling")
	}
	en := snap.Enablement(kind)
	if en.NavigationEnabled {
		flags = append(flags, "browse")
	}
	if en.RefreshEnabled {
		flags = append(flags, "refresh")
	}
	return fmt.Sprintf("[%s] %-8s %-10s %-24s %s",
		snap.UpdatedAt.UTC().Format("15:04:05"),
		kind,
		statusLabel(state.Job.Status),
		strings.Join(flags, ","),
		state.Job.Message,
	)
}
