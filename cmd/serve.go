package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginja-dev/ginja/internal/registry"
	"github.com/ginja-dev/ginja/internal/server"
	"github.com/ginja-dev/ginja/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live preview server",
	Long: `Serve starts an HTTP server listing the templates in the template
directory. Viewed templates re-render in the browser when their source
files change on disk or when the bound data is mutated through the
JSON API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "listen port")
	serveCmd.Flags().String("host", "", "listen host")
	bind(serveCmd.Flags(), "server.port", "port")
	bind(serveCmd.Flags(), "server.host", "host")
	serveCmd.Flags().Bool("no-watch", false, "do not watch template files for changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	reg := newRegistry(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noWatch, _ := cmd.Flags().GetBool("no-watch")
	if cfg.Templates.Watch && !noWatch {
		w, err := startWatcher(ctx, cfg.Templates.Dir, cfg.Templates.Debounce(), cfg.Templates.Extensions, reg, logger)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	srv := server.New(cfg.Server.Addr(), reg, logger)
	srv.SetUpdateInterval(cfg.Render.UpdateInterval())
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startWatcher reloads templates in the registry as their sources
// change on disk.
func startWatcher(ctx context.Context, dir string, debounce time.Duration, exts []string, reg *registry.Registry, logger *slog.Logger) (*watcher.Watcher, error) {
	w, err := watcher.New(logger, debounce, exts...)
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	w.OnChange(func(changes []watcher.Change) {
		for _, c := range changes {
			name, err := filepath.Rel(dir, c.Path)
			if err != nil {
				continue
			}
			name = filepath.ToSlash(name)
			logger.Info("template changed",
				slog.String("template", name),
				slog.String("op", c.Op.String()))
			if c.Op == watcher.OpDeleted {
				reg.Evict(name)
				continue
			}
			if _, err := reg.Reload(name); err != nil {
				logger.Error("template reload failed",
					slog.String("template", name),
					slog.String("error", err.Error()))
			}
		}
	})
	go w.Run(ctx)
	return w, nil
}
