// carrylink is a terminal client for the carry marketplace. It signs the
// user in through an identity provider, obtains the backend credential
// and streams notifications into a badge, a list and toasts.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/nhle/carrylink/internal/app"
	"github.com/nhle/carrylink/internal/auth"
	"github.com/nhle/carrylink/internal/backend"
	"github.com/nhle/carrylink/internal/credential"
	"github.com/nhle/carrylink/internal/logging"
	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
	appsync "github.com/nhle/carrylink/internal/sync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var signOut bool

	flagSet := pflag.NewFlagSet("carrylink", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the YAML config file")
	flagSet.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.BoolVar(&signOut, "sign-out", false, "forget the stored session and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	var vault app.SessionVault
	if v, err := credential.Open(model.ConfigDir()); err != nil {
		logger.WithError(err).Warn("keyring unavailable, sessions will not be remembered")
	} else {
		vault = v
	}

	if signOut {
		if vault == nil {
			return errors.New("keyring unavailable")
		}
		if err := vault.DeleteSession(); err != nil {
			return fmt.Errorf("deleting stored session: %w", err)
		}
		fmt.Println("Signed out.")
		return nil
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL:         cfg.Backend.BaseURL,
		Timeout:         time.Duration(cfg.Backend.TimeoutSec) * time.Second,
		LongPollTimeout: time.Duration(cfg.Backend.LongPollTimeoutSec) * time.Second,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	bridge := auth.NewBridge(auth.Config{
		Exchanger:  client,
		RetryDelay: cfg.RetryDelay(),
		Logger:     logger.WithField("component", "auth"),
	})
	defer bridge.Close()

	notifications := store.NewMemoryStore()
	coordinator := appsync.NewCoordinator(appsync.CoordinatorConfig{
		Backend: client,
		Store:   notifications,
		Tokens:  bridge,
		Backoff: appsync.Backoff{Initial: cfg.BackoffInitial(), Max: cfg.BackoffMax()},
		Logger:  logger.WithField("component", "sync"),
	})
	defer coordinator.Stop()

	logger.WithField("backend", cfg.Backend.BaseURL).Info("starting carrylink")

	root := app.New(app.Options{
		Config:   cfg,
		Store:    notifications,
		Sessions: coordinator,
		Bridge:   bridge,
		Vault:    vault,
		Logger:   logger.WithField("component", "app"),
	})
	program := tea.NewProgram(root, tea.WithAltScreen())
	_, err = program.Run()
	return err
}
