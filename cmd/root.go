// Package cmd defines the CLI commands for the archiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/app"
	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/config"
	"github.com/JakeFAU/archive-resolver/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Engine is the resolver surface the commands call.
type Engine interface {
	Resolve(ctx context.Context, raw string) archive.Result
	Render(ctx context.Context, raw string) archive.Result
	Links(raw string) archive.ProviderLinks
}

// App defines the application interface that commands use, so tests can inject a fake.
type App interface {
	Engine() Engine
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Engine() Engine {
	return a.Resolver()
}

// appFactory builds the App from a config path; tests pass a fake.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

func newApp(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return appAdapter{a}, nil
}

func newRootCmd(factory appFactory) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "archiver",
		Short: "Find or create an archived copy of a web page.",
		Long: `archiver checks public web archives for an existing snapshot of a URL and,
when none exists, asks an archive to create one. It always returns manual
search/create links so a failed run still leaves a way forward.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := factory(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil
			}
			if err := appInstance.Close(context.WithoutCancel(cmd.Context())); err != nil {
				appInstance.Logger().Warn("shutdown failed", zap.Error(err))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newResolveCmd(), newRenderCmd(), newLinksCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd(newApp)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
