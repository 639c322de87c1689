package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/output"
)

var (
	userEmail string
	userName  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage board users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun()
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "User email (required)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	_ = userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}

func userAddRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		ui.DryRunMsg("Would register user: %s", userEmail)
		return nil
	}

	user := &models.User{Email: userEmail, Name: userName}
	if err := s.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	ui.Success("Registered user %s", output.Cyan(user.Email))
	return nil
}

func userListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		ui.Info("No users registered.")
		return nil
	}

	table := ui.Table([]string{"Email", "Name"})
	for _, u := range users {
		_ = table.Append([]string{u.Email, u.DisplayName()})
	}
	_ = table.Render()
	return nil
}
