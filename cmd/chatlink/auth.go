package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VladFo01/chatlink/chatlink/auth"
	"github.com/VladFo01/chatlink/chatlink/rest"
)

var (
	flagUsername string
	flagEmail    string
	flagPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.stop()

		resp, err := a.api.Login(cmd.Context(), rest.LoginRequest{Username: flagUsername, Password: flagPassword})
		if err != nil {
			return describe(err)
		}
		a.log.Info("logged in", zap.String("user", flagUsername))
		printToken(resp)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and print an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.stop()

		resp, err := a.api.Register(cmd.Context(), rest.RegisterRequest{
			Username: flagUsername,
			Email:    flagEmail,
			Password: flagPassword,
		})
		if err != nil {
			return describe(err)
		}
		a.log.Info("registered", zap.String("user", flagUsername))
		printToken(resp)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the subject and expiry of the configured token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.stop()
		if err := a.requireToken(); err != nil {
			return err
		}

		claims, err := auth.Inspect(a.cfg.Auth.Token)
		if err != nil {
			return err
		}
		fmt.Printf("user:    %s\n", color.CyanString(claims.Subject))
		switch {
		case claims.ExpiresAt.IsZero():
			fmt.Println("expires: never")
		case claims.Expired(time.Now()):
			fmt.Printf("expires: %s\n", color.RedString("%s (expired)", claims.ExpiresAt.Local().Format(time.RFC1123)))
		default:
			fmt.Printf("expires: %s\n", color.GreenString(claims.ExpiresAt.Local().Format(time.RFC1123)))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&flagUsername, "username", "u", "", "username")
		c.Flags().StringVarP(&flagPassword, "password", "p", "", "password")
		_ = c.MarkFlagRequired("username")
		_ = c.MarkFlagRequired("password")
	}
	registerCmd.Flags().StringVarP(&flagEmail, "email", "e", "", "email address")
}

func printToken(resp *rest.TokenResponse) {
	color.New(color.FgGreen).Fprintln(os.Stderr, "authenticated")
	fmt.Println(resp.AccessToken)
	color.New(color.Faint).Fprintf(os.Stderr, "export CHATLINK_AUTH__TOKEN=%s\n", resp.AccessToken)
}

// describe turns API errors into a one-line message for the terminal.
func describe(err error) error {
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s (HTTP %d)", apiErr.Detail, apiErr.StatusCode)
	}
	return err
}
