package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"weekly-snippets/internal/infra/security"
	"weekly-snippets/internal/usecase"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a user and print a bearer token for it",
	RunE:  runUserAdd,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for an existing user",
	RunE:  runToken,
}

var (
	userEmail    string
	userTimezone string
	userName     string
	userID       string
	tokenTTL     time.Duration
)

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "email address (required)")
	userAddCmd.Flags().StringVar(&userTimezone, "tz", "UTC", "IANA timezone used for the trigger window")
	userAddCmd.Flags().StringVar(&userName, "name", "", "display name stored on the profile")
	userAddCmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed token")
	if err := userAddCmd.MarkFlagRequired("email"); err != nil {
		panic(fmt.Sprintf("failed to mark email flag as required: %v", err))
	}

	tokenCmd.Flags().StringVar(&userID, "id", "", "user id (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	if err := tokenCmd.MarkFlagRequired("id"); err != nil {
		panic(fmt.Sprintf("failed to mark id flag as required: %v", err))
	}

	userCmd.AddCommand(userAddCmd, tokenCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := usecase.NewUserUseCase(a.users, a.tm, logger).Register(cmd.Context(), userEmail, userTimezone, userName)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	tok, err := security.NewAuthManager(cfg.Security.JWTSecret).Mint(u.ID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "id=%s\ntoken=%s\n", u.ID, tok)
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := usecase.NewUserUseCase(a.users, a.tm, logger).Get(cmd.Context(), userID)
	if err != nil {
		return err
	}
	tok, err := security.NewAuthManager(cfg.Security.JWTSecret).Mint(u.ID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
