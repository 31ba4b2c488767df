package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/config"
	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/device"
	goble "github.com/srg/tangible/internal/device/go-ble"
	"github.com/srg/tangible/internal/pairing"
	"github.com/srg/tangible/internal/permission"
)

// Replaced in tests.
var (
	newRadio = func(logger *logrus.Logger) device.Radio {
		return goble.NewRadio(logger)
	}
	newPermissions = func() permission.Checker {
		return permission.System{}
	}
)

// env is what every command needs: config, logger, radio and pairing record.
type env struct {
	cfg        *config.Config
	logger     *logrus.Logger
	radio      device.Radio
	store      pairing.Store
	perms      permission.Checker
	closeStore func() error
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := cfg.OpenPairingStore()
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:        cfg,
		logger:     logger,
		radio:      newRadio(logger),
		store:      store,
		perms:      newPermissions(),
		closeStore: closeStore,
	}, nil
}

func (e *env) Close() {
	if err := e.closeStore(); err != nil {
		e.logger.WithError(err).Debug("Failed to close pairing store")
	}
}

func (e *env) manager(opts ...connection.Option) *connection.Manager {
	opts = append([]connection.Option{
		connection.WithLogger(e.logger),
		connection.WithOptions(e.cfg.Connection),
	}, opts...)
	return connection.New(e.radio, e.store, e.perms, opts...)
}

// requirePermission fails with a hint when the radio is not usable.
func (e *env) requirePermission(ctx context.Context) error {
	if e.perms.HasRadioPermission(ctx) {
		return nil
	}
	return e.perms.RequestRadioPermission(ctx)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
