package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/panyam/questauth"
	"github.com/panyam/questauth/config"
	"github.com/panyam/questauth/fixture"
)

const rootLongDesc = `Manage an OAuth implicit-grant API credential.

Configuration is read from ~/.config/questauth/config.yaml (or --config)
and QUESTAUTH_* environment variables.

Examples:
  questauth auth-url                 Print the URL to open for consent
  questauth login '<redirect-url>'   Store the credential from the redirect
  questauth status                   Show whether a credential is stored
  questauth get v1/accounts          Make an authenticated GET call
  questauth revoke                   Revoke and forget the credential`

// app carries the global flags to the subcommands.
type app struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "questauth",
		Short:         "Manage an OAuth implicit-grant API credential",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config.yaml")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	cmd.AddCommand(
		newAuthURLCmd(a),
		newLoginCmd(a),
		newStatusCmd(a),
		newRefreshCmd(a),
		newRevokeCmd(a),
		newGetCmd(a),
		newStubServerCmd(a),
	)
	return cmd
}

func (a *app) logger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if a.verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// session opens the configured store and builds a session on it. The
// returned function closes the store.
func (a *app) session(cmd *cobra.Command) (*questauth.Session, func(), error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := a.logger()

	store, closeStore, err := config.OpenStore(cmd.Context(), cfg.Store, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []questauth.SessionOption{questauth.WithLogger(logger)}
	if cfg.Mock {
		opts = append(opts, questauth.WithTransport(fixture.Default(fixture.WithLogger(logger))))
	}

	sess, err := questauth.NewSession(cfg.SessionConfig(store), opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	done := func() {
		if err := closeStore(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return sess, done, nil
}
