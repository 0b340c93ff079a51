package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VladFo01/chatlink/chatlink/zaplog"
	"github.com/VladFo01/chatlink/internal/devserver"
)

var rootCmd = &cobra.Command{
	Use:   "chatlink-devserver",
	Short: "In-memory backend for trying the chatlink client locally",
	RunE:  runServer,
}

var (
	flagAddr            string
	flagSecret          string
	flagProcessingPolls int
	flagTokenTTL        time.Duration
	flagLogLevel        string
	flagConsole         bool
)

func init() {
	def := devserver.DefaultOptions()
	flags := rootCmd.Flags()
	flags.StringVar(&flagAddr, "addr", ":8000", "listen address")
	flags.StringVar(&flagSecret, "secret", string(def.Secret), "HS256 signing secret")
	flags.IntVar(&flagProcessingPolls, "processing-polls", def.ProcessingPolls, "status polls that report processing before a file is processed")
	flags.DurationVar(&flagTokenTTL, "token-ttl", def.TokenTTL, "lifetime of issued tokens")
	flags.StringVar(&flagLogLevel, "log-level", "info", "debug, info, warn or error")
	flags.BoolVar(&flagConsole, "console", false, "human readable logs on stderr instead of JSON on stdout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	level, err := zaplog.ParseLevel(flagLogLevel)
	if err != nil {
		return err
	}
	var log *zap.Logger
	if flagConsole {
		log = zaplog.NewConsole(level)
	} else if log, err = zaplog.NewProduction(level); err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := devserver.DefaultOptions()
	opts.Secret = []byte(flagSecret)
	opts.ProcessingPolls = flagProcessingPolls
	opts.TokenTTL = flagTokenTTL
	opts.Logger = log

	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           devserver.New(opts).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("dev backend listening", zap.String("addr", flagAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		log.Error("server failed", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
		return err
	}
	log.Info("dev backend stopped")
	return nil
}
