package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfeld/trk/internal/board"
	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/output"
	"github.com/mfeld/trk/internal/store"
)

var boardInterval time.Duration

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Watch the issue board live",
	Long: `Show the issue board and keep it updated as issues change.

The board polls the store and redraws whenever an issue is created,
moved, or deleted. Press Ctrl-C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardRun(cmd.Context())
	},
}

func init() {
	boardCmd.Flags().DurationVar(&boardInterval, "interval", board.DefaultInterval, "Poll interval")
	rootCmd.AddCommand(boardCmd)
}

func boardRun(parent context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watcher := board.NewWatcher(s, boardInterval)
	sub := watcher.Watch(ctx, store.IssueListFilter{})
	defer sub.Close()

	for snap := range sub.Updates() {
		renderBoard(snap)
	}

	fmt.Fprintln(ui.Out)
	ui.Info("Board closed.")
	return nil
}

// renderBoard draws one snapshot grouped into status columns.
func renderBoard(snap board.Snapshot) {
	// ANSI clear screen + home
	fmt.Fprint(ui.Out, "\033[2J\033[H")
	fmt.Fprintf(ui.Out, "Issue board — %s\n\n", snap.At.Format(time.Kitchen))

	byStatus := map[models.IssueStatus][]*models.Issue{}
	for _, issue := range snap.Issues {
		byStatus[issue.Status] = append(byStatus[issue.Status], issue)
	}

	for _, status := range []models.IssueStatus{
		models.IssueStatusOpen,
		models.IssueStatusInProgress,
		models.IssueStatusDone,
	} {
		issues := byStatus[status]
		fmt.Fprintf(ui.Out, "%s (%d)\n", output.StatusColor(string(status)), len(issues))
		if len(issues) == 0 {
			fmt.Fprintln(ui.Out, "  —")
			continue
		}
		for _, issue := range issues {
			assignee := issue.AssignedTo
			if assignee == "" {
				assignee = "unassigned"
			}
			fmt.Fprintf(ui.Out, "  %s  %-40s %s  %s\n",
				output.Cyan(shortID(issue.ID)),
				truncate(issue.Title, 40),
				output.PriorityColor(string(issue.Priority)),
				assignee,
			)
		}
	}
}

// truncate shortens s to at most n characters. Slices by runes so
// multi-byte titles are never cut mid-sequence.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
