package main

import (
	"context"
	"fmt"

	"smartblog/cmd/smartblog/tui"
	"smartblog/internal/config"
	"smartblog/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// runInteractive starts the full-screen editor.
func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Logging settings follow the config file while the editor runs
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if w, err := config.NewWatcher(path, func(cfg *config.Config) {
		logging.Configure(cfg.Logging.Options())
		logging.Boot("Logging settings reloaded")
	}); err == nil {
		if err := w.Start(ctx); err != nil {
			logging.Get(logging.CategoryBoot).Warn("Config watcher not started: %v", err)
			w.Stop()
		} else {
			defer w.Stop()
		}
	} else {
		logging.Get(logging.CategoryBoot).Warn("Config watcher unavailable: %v", err)
	}

	model := tui.New(ctx, a)
	defer model.Shutdown()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("editor failed: %w", err)
	}
	return nil
}
