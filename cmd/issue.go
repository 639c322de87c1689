package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfeld/trk/internal/create"
	"github.com/mfeld/trk/internal/dedupe"
	"github.com/mfeld/trk/internal/identity"
	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/output"
	"github.com/mfeld/trk/internal/store"
)

// Each subcommand gets its own flag variables: pflag assigns defaults at
// registration time, so sharing one variable across commands would leave
// it holding whichever default registered last.
var (
	issueTitle    string
	issueDesc     string
	issuePriority string
	issueAssign   string
	issueForce    bool
	issueYes      bool

	issueListStatus   string
	issueListPriority string
	issueListAssign   string
	issueListCreator  string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues on the board",
	Long:  "Add, list, and update issues on the shared board.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	Long: `Add a new issue to the board.

The title is checked against existing issues first. If similar issues
are found you are shown the matches and asked to confirm, go back, or
use --force to skip the check entirely.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <status>",
	Short: "Move an issue to a new status",
	Long: `Move an issue to open, in_progress, or done.

Moving straight from open to done is rejected; issues pass through
in_progress first. Reopening a done issue is allowed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusRun(args[0], args[1])
	},
}

var issueCheckCmd = &cobra.Command{
	Use:   "check <title>",
	Short: "Check a title for likely duplicates without creating anything",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCheckRun(strings.Join(args, " "))
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "medium", "Priority: low, medium, high")
	issueAddCmd.Flags().StringVar(&issueAssign, "assign", "", "Assignee email")
	issueAddCmd.Flags().BoolVar(&issueForce, "force", false, "Skip the duplicate check")
	issueAddCmd.Flags().BoolVar(&issueYes, "yes", false, "Create without prompting when duplicates are found")
	_ = issueAddCmd.MarkFlagRequired("title")

	issueListCmd.Flags().StringVar(&issueListStatus, "status", "", "Filter by status: open, in_progress, done")
	issueListCmd.Flags().StringVar(&issueListPriority, "priority", "", "Filter by priority")
	issueListCmd.Flags().StringVar(&issueListAssign, "assign", "", "Filter by assignee")
	issueListCmd.Flags().StringVar(&issueListCreator, "creator", "", "Filter by creator")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueCheckCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if !models.ValidPriority(models.IssuePriority(issuePriority)) {
		return fmt.Errorf("unknown priority: %s (use low, medium, or high)", issuePriority)
	}

	if dryRun {
		ui.DryRunMsg("Would add issue: %s [%s]", issueTitle, issuePriority)
		return nil
	}

	checkEnabled := viper.GetBool("dedupe.enabled") && !issueForce
	flow := create.NewFlow(
		s,
		dedupe.NewDetector(s, 0),
		identity.NewStatic(viper.GetString("user.email")),
		ui,
		create.Options{CheckEnabled: checkEnabled},
	)
	flow.SetDraft(create.Draft{
		Title:       issueTitle,
		Description: issueDesc,
		Priority:    models.IssuePriority(issuePriority),
		AssignedTo:  issueAssign,
	})

	state := flow.Submit(ctx)

	if state == create.StateWarning {
		renderCandidates(flow.Candidates())

		if !issueYes {
			ok, err := confirmCreate(len(flow.Candidates()))
			if err != nil {
				return err
			}
			if !ok {
				flow.Back()
				ui.Info("Issue not created.")
				return nil
			}
		}
		state = flow.Submit(ctx)
	}

	if state == create.StateFailed {
		return flow.Err()
	}

	// Give the background write a chance to land before the process exits.
	flow.Wait()
	return nil
}

// confirmCreate prompts the user to proceed past the duplicate warning.
func confirmCreate(n int) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%d similar issue(s) already exist. Create anyway?", n)).
				Affirmative("Create").
				Negative("Go back").
				Value(&ok),
		),
	).WithShowHelp(false)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

func renderCandidates(candidates []dedupe.Candidate) {
	ui.Warning("Similar issues already exist:")
	table := ui.Table([]string{"ID", "Title", "Status", "Match"})
	for _, c := range candidates {
		_ = table.Append([]string{
			shortID(c.Issue.ID),
			c.Issue.Title,
			output.StatusColor(string(c.Issue.Status)),
			fmt.Sprintf("%.0f%%", c.Score*100),
		})
	}
	_ = table.Render()
}

func issueListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.IssueListFilter{
		Status:     models.IssueStatus(issueListStatus),
		Priority:   models.IssuePriority(issueListPriority),
		AssignedTo: issueListAssign,
		CreatedBy:  issueListCreator,
	}

	issues, err := s.ListIssues(ctx, filter)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assignee", "Creator"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			issue.AssignedTo,
			issue.CreatedBy,
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", issue.Priority)
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	if issue.AssignedTo != "" {
		fmt.Fprintf(ui.Out, "  Assignee:   %s\n", issue.AssignedTo)
	}
	fmt.Fprintf(ui.Out, "  Creator:    %s\n", issue.CreatedBy)
	if len(issue.Keywords) > 0 {
		fmt.Fprintf(ui.Out, "  Keywords:   %s\n", strings.Join(issue.Keywords, ", "))
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	return nil
}

func issueStatusRun(id, statusStr string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	status := models.IssueStatus(statusStr)
	if !models.ValidStatus(status) {
		return fmt.Errorf("unknown status: %s (use open, in_progress, or done)", statusStr)
	}

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would move issue %s to %s", shortID(issue.ID), status)
		return nil
	}

	if err := s.UpdateIssueStatus(ctx, issue.ID, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	ui.Success("Moved issue %s to %s", output.Cyan(shortID(issue.ID)), output.StatusColor(string(status)))
	return nil
}

func issueCheckRun(title string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	detector := dedupe.NewDetector(s, 0)
	has, candidates := detector.Detect(ctx, title)
	if !has {
		ui.Success("No similar issues found.")
		return nil
	}

	renderCandidates(candidates)
	return nil
}

func issueDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}

	if err := s.DeleteIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}

	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

// findIssue finds an issue by full ID or prefix match.
func findIssue(ctx context.Context, s store.Store, id string) (*models.Issue, error) {
	// Try exact match first
	if issue, err := s.GetIssue(ctx, id); err == nil {
		return issue, nil
	}

	// Try prefix match - list all and filter
	upper := strings.ToUpper(id)
	issues, err := s.ListIssues(ctx, store.IssueListFilter{})
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found: %s", id)
	case 1:
		return s.GetIssue(ctx, matches[0].ID)
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
