package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VladFo01/chatlink/chatlink"
	"github.com/VladFo01/chatlink/chatlink/auth"
	"github.com/VladFo01/chatlink/chatlink/session"
	"github.com/VladFo01/chatlink/chatlink/upload"
	"github.com/VladFo01/chatlink/chatlink/zaplog"
	"github.com/VladFo01/chatlink/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat",
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
		if claims.Expired(time.Now()) {
			return fmt.Errorf("token for %s expired at %s, log in again", claims.Subject, claims.ExpiresAt.Local().Format(time.RFC1123))
		}
		user := claims.Subject
		if user == "" {
			user = a.cfg.Auth.Username
		}

		client := chatlink.NewClient(a.cfg.ClientConfig())
		client.SetLogger(zaplog.New(a.log, "transport"))
		client.SetRecorder(a.metrics)

		s := session.New(client, user)
		s.SetLogger(zaplog.New(a.log, "session"))
		s.SetUploader(a.uploader())
		defer s.Close()

		return tui.Run(cmd.Context(), s, user)
	},
}

func (a *app) uploader() *upload.Uploader {
	u := upload.NewUploader(a.api)
	u.PollInterval = a.cfg.Upload.PollInterval
	u.MaxAttempts = a.cfg.Upload.MaxPollAttempts
	u.Recorder = a.metrics
	u.Logger = zaplog.New(a.log, "upload")
	return u
}
