package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VladFo01/chatlink/chatlink/metrics"
	"github.com/VladFo01/chatlink/chatlink/rest"
	"github.com/VladFo01/chatlink/chatlink/zaplog"
	"github.com/VladFo01/chatlink/internal/cliconfig"
)

var rootCmd = &cobra.Command{
	Use:           "chatlink",
	Short:         "Terminal client for the document chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfig      string
	flagEnvFile     string
	flagLogFile     string
	flagLogLevel    string
	flagMetricsAddr string
	flagToken       string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "path to a TOML config file")
	flags.StringVar(&flagEnvFile, "env-file", "", "dotenv file to load (default .env)")
	flags.StringVar(&flagLogFile, "log-file", "", "log file path (overrides logging.file)")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&flagToken, "token", "", "access token (overrides auth.token)")

	rootCmd.AddCommand(loginCmd, registerCmd, whoamiCmd, chatCmd, uploadCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	cfg     *cliconfig.Config
	log     *zap.Logger
	metrics *metrics.Recorder
	api     *rest.Client
	stop    func()
}

func setup() (*app, error) {
	cfg, err := cliconfig.Load(flagConfig, flagEnvFile)
	if err != nil {
		return nil, err
	}
	if flagLogFile != "" {
		cfg.Logging.File = flagLogFile
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagMetricsAddr != "" {
		cfg.Metrics.Addr = flagMetricsAddr
	}
	if flagToken != "" {
		cfg.Auth.Token = flagToken
	}

	level, err := zaplog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	log := zaplog.NewRotating(cfg.Logging.File, level)

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		api:     rest.NewClient(cfg.Server.HTTPBaseURL),
	}
	if cfg.Auth.Token != "" {
		a.api.SetToken(cfg.Auth.Token, "bearer")
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	a.stop = func() {
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
		_ = log.Sync()
	}
	return a, nil
}

func (a *app) requireToken() error {
	if a.cfg.Auth.Token == "" {
		return fmt.Errorf("no access token: run `chatlink login` and export CHATLINK_AUTH__TOKEN, or pass --token")
	}
	return nil
}
