package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
	"github.com/ginja-dev/ginja/internal/registry"
)

var (
	watchOutDir      string
	watchContextFile string
	watchAsHTML      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompile templates as they change",
	Long: `Watch recompiles templates whenever their source files change and
prints any syntax errors. With --out it also re-renders each changed
template into the output directory, so the rendered files track the
sources while editing.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchOutDir, "out", "o", "", "re-render changed templates into this directory")
	watchCmd.Flags().StringVarP(&watchContextFile, "context", "c", "", "YAML file with template variables")
	watchCmd.Flags().BoolVar(&watchAsHTML, "html", false, "render through the DOM and serialize")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	reg := newRegistry(cfg)

	data, err := loadContextFile(watchContextFile)
	if err != nil {
		return err
	}

	// Compile everything once so existing errors show up immediately.
	names, err := reg.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := reg.Get(name); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
		if watchOutDir != "" {
			if err := renderToDir(reg, name, data); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
			}
		}
	}

	reg.Events().On("reload", func(evt pubsub.Event) {
		name, _ := evt.Get("name").(string)
		if name == "" {
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
		if watchOutDir == "" {
			return
		}
		if err := renderToDir(reg, name, data); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := startWatcher(ctx, cfg.Templates.Dir, cfg.Templates.Debounce(), cfg.Templates.Extensions, reg, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	logger.Info("watching for template changes")
	<-ctx.Done()
	return nil
}

// renderToDir renders the named template into the watch output
// directory, mirroring the template's relative path.
func renderToDir(reg *registry.Registry, name string, data map[string]any) error {
	tpl, err := reg.Get(name)
	if err != nil {
		return err
	}
	var out string
	if watchAsHTML {
		out, err = tpl.RenderHTML(data)
	} else {
		out, err = tpl.RenderText(data)
	}
	if err != nil {
		return err
	}
	path := filepath.Join(watchOutDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIO("creating output directory for "+name, err)
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return errors.NewIO("writing "+path, err)
	}
	return nil
}
