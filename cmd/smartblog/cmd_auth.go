package main

import (
	"fmt"

	"smartblog/internal/session"
	"smartblog/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	authEmail    string
	authPassword string
)

// loginCmd exchanges credentials for a stored token
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd, session.ModeLogin)
	},
}

// signupCmd creates an account and stores its token
var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and store the session token",
	Long: `Creates an account on the server. Passwords must be at least 6 characters.

Example:
  smartblog signup --email me@example.com --password secret1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd, session.ModeSignup)
	},
}

// logoutCmd clears the stored token
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE:  runLogout,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "Account email (required)")
		c.Flags().StringVar(&authPassword, "password", "", "Account password (required)")
		c.MarkFlagRequired("email")
		c.MarkFlagRequired("password")
	}
}

func runAuth(cmd *cobra.Command, mode session.Mode) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Session.SetMode(mode)
	logger.Info("Submitting credentials", zap.String("mode", string(mode)), zap.String("email", authEmail))
	if err := a.Submit(ctx, types.Credentials{Email: authEmail, Password: authPassword}); err != nil {
		return fmt.Errorf("%s failed: %w", mode, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%d posts)\n", authEmail, len(a.Docs.State().Drafts))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}
