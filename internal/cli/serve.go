package cli

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

	"github.com/roach88/jsonapi/internal/config"
	"github.com/roach88/jsonapi/internal/document"
	"github.com/roach88/jsonapi/internal/httpapi"
	"github.com/roach88/jsonapi/internal/logger"
	"github.com/roach88/jsonapi/internal/pipeline"
	"github.com/roach88/jsonapi/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON:API HTTP server",
		Long: `Run the JSON:API HTTP server.

Every resource type of the schema is routed under the path of --base-url.
The server stops gracefully on SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, cmd)
		},
	}

	def := config.DefaultConfig()
	flags := cmd.Flags()
	addDatastoreFlags(flags)
	flags.String("http-addr", def.HTTP.Addr, "address to listen on")
	flags.String("base-url", def.HTTP.BaseURL, "public URL of the API root; its path is the route prefix")
	flags.StringSlice("cors-origins", def.HTTP.CORSAllowedOrigins, "allowed CORS origins; CORS is off when empty")
	flags.Int("page-limit", def.PageLimit, "page size when page[limit] is absent")
	flags.Int("max-open-conns", def.Datastore.MaxOpenConns, "maximum open database connections")
	flags.Duration("conn-max-lifetime", def.Datastore.ConnMaxLifetime, "maximum lifetime of a database connection")
	flags.Duration("shutdown-timeout", def.HTTP.ShutdownTimeout, "time allowed for in-flight requests on shutdown")
	flags.String("log-format", def.Log.Format, "log format (text|json)")
	flags.String("log-level", def.Log.Level, "log level (none|debug|info|warn|error)")

	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid logger configuration", err)
	}
	defer func() { _ = log.Sync() }()

	models, err := loadModels(cfg.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSchema, "failed to load schema", err)
	}

	st, err := store.Open(store.Options{
		Engine:          cfg.Datastore.Engine,
		DSN:             cfg.Datastore.URI,
		MaxOpenConns:    cfg.Datastore.MaxOpenConns,
		MaxIdleConns:    cfg.Datastore.MaxIdleConns,
		ConnMaxLifetime: cfg.Datastore.ConnMaxLifetime,
	}, models)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatastore, "failed to open datastore", err)
	}
	defer st.Close()

	p := pipeline.New(models, st, document.NewSerializer(models, cfg.HTTP.BaseURL),
		pipeline.WithLogger(log),
		pipeline.WithPageLimit(cfg.PageLimit),
	)
	api := httpapi.New(p,
		httpapi.WithLogger(log),
		httpapi.WithCORS(cfg.HTTP.CORSAllowedOrigins, cfg.HTTP.CORSAllowedHeaders),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("starting JSON:API server",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("base_url", cfg.HTTP.BaseURL),
		zap.String("engine", cfg.Datastore.Engine))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return formatter.Fail(ExitCommandError, ErrCodeServerFailed, "HTTP server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("attempting to shutdown gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	<-errCh
	log.Info("server exited")
	return nil
}
