package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/serroba/taskgrid/internal/api"
	"github.com/serroba/taskgrid/internal/cache"
	"github.com/serroba/taskgrid/internal/changelog"
	"github.com/serroba/taskgrid/internal/collab"
	"github.com/serroba/taskgrid/internal/config"
	"github.com/serroba/taskgrid/internal/lock"
	"github.com/serroba/taskgrid/internal/logging"
	"github.com/serroba/taskgrid/internal/patch"
	"github.com/serroba/taskgrid/internal/storage"
	"github.com/serroba/taskgrid/internal/ws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Long: `Start the taskgrid server.

Examples:
  taskgrid serve
  taskgrid serve --addr :8080
  taskgrid serve --config /etc/taskgrid.yaml`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger, ln)
}

// serve runs the server on ln until ctx is cancelled, then drains
// connections and flushes every dirty project.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, ln net.Listener) error {
	writer := storage.NewWriter(storage.WriterConfig{
		RenameAttempts: cfg.Storage.RenameAttempts,
		RenameBackoff:  cfg.Storage.RenameBackoff,
	})
	store := storage.NewFileStore(cfg.Storage.ProjectsDir, writer)
	locks := lock.NewRegistry()

	changes := changelog.New(changelog.Config{
		Dir:    cfg.Storage.LogsDir,
		Logger: logger.Named("changelog"),
	})

	backups := storage.NewBackups(storage.BackupConfig{
		Dir:      cfg.Storage.BackupsDir,
		Every:    cfg.Backup.Every,
		Keep:     cfg.Backup.Keep,
		Writer:   writer,
		Recorder: changes,
		Logger:   logger.Named("backup"),
	})

	docs := cache.New(cache.Config{
		Store:         store,
		Locks:         locks,
		FlushInterval: cfg.Cache.FlushInterval,
		Logger:        logger.Named("cache"),
	})

	hub := ws.NewHub(logger.Named("ws"))

	service := collab.NewService(collab.Config{
		Cache:       docs,
		Store:       store,
		Locks:       locks,
		Engine:      patch.NewEngine(patch.Config{Documents: docs, Backups: backups, Logger: logger.Named("patch")}),
		Backups:     backups,
		ChangeLog:   changes,
		Broadcaster: hub,
		Logger:      logger.Named("collab"),
	})

	server := api.NewServer(api.ServerConfig{
		Service: service,
		Hub:     hub,
		Logger:  logger.Named("api"),
	})

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", ln.Addr().String()))

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return docs.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")

		// Stop taking operations before the final flush.
		err := httpServer.Shutdown(shutdownCtx)
		err = errors.Join(err, server.CloseSockets(shutdownCtx))

		return errors.Join(err, docs.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
