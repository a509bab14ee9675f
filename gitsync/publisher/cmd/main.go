// Command codepublish publishes generated code into GitHub,
// GitLab and Bitbucket repositories. It runs single publishes
// from a YAML manifest, serves the OAuth installation
// endpoints and migrates the organization store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/byte4ever/codepublish/gitsync/config"
	"github.com/byte4ever/codepublish/gitsync/credstore"
	"github.com/byte4ever/codepublish/gitsync/oauthsrv"
	"github.com/byte4ever/codepublish/gitsync/publisher"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	level      *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	opts := &options{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:           "codepublish",
		Short:         "Publish generated code while preserving manual edits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			slog.SetDefault(slog.New(slog.NewJSONHandler(
				os.Stderr, &slog.HandlerOptions{Level: opts.level},
			)))
		},
	}

	root.PersistentFlags().StringVar(
		&opts.configPath, "config", "",
		"YAML configuration file (CODEPUBLISH_* variables override it)",
	)

	root.AddCommand(
		newPublishCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(opts),
	)

	return root
}

// load reads the configuration and applies its log level.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	o.level.Set(level)

	return cfg, nil
}

func newPublishCmd(opts *options) *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the files described by a request manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd, opts, requestPath)
		},
	}

	cmd.Flags().StringVar(&requestPath, "request", "", "publish request manifest")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}

func runPublish(cmd *cobra.Command, opts *options, requestPath string) error {
	const errCtx = "running publish"

	cfg, err := opts.load()
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := cfg.RequireDatabase(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	m, err := publisher.LoadManifest(requestPath)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	files, err := publisher.ReadFiles(m.FilesDir)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	ctx, cancel := signal.NotifyContext(
		cmd.Context(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s: connecting to database: %w", errCtx, err)
	}

	defer pool.Close()

	svc := publisher.NewService(
		credstore.NewPostgresStore(pool),
		cfg.ProviderSettings(),
		publisher.NewSynchronizer(publisher.Config{
			ScratchDir:          cfg.ScratchDir,
			IgnoreFile:          cfg.IgnoreFile,
			RestorationIdentity: cfg.RestorationIdentity(),
		}),
	)

	url, err := svc.Publish(ctx, m.Organization, m.Request(files))
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), url)

	return err
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the OAuth installation endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	const errCtx = "running server"

	cfg, err := opts.load()
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := errors.Join(cfg.RequireDatabase(), cfg.RequireStateKey()); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	states, err := oauthsrv.NewStateSigner([]byte(cfg.OAuth.StateKey), cfg.OAuth.StateTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s: connecting to database: %w", errCtx, err)
	}

	defer pool.Close()

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: oauthsrv.NewRouter(
			credstore.NewPostgresStore(pool),
			cfg.ProviderSettings(),
			states,
			slog.Default(),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s: %w", errCtx, err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", errCtx, err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the organization store schema",
		RunE: func(*cobra.Command, []string) error {
			const errCtx = "running migrations"

			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			if err := cfg.RequireDatabase(); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			if err := credstore.Migrate(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			slog.Info("database migrations applied")

			return nil
		},
	}
}
