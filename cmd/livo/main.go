package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"livo/internal/app"
	"livo/internal/store"
	"livo/internal/tui"
)

var version = "0.1.0"

func main() {
	var (
		configPath string
		dataDir    string
	)

	root := &cobra.Command{
		Use:           "livo",
		Short:         "LiVo is a personal life assistant that remembers everything you share",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			return run(cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "where the local database lives")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("livo", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "livo:", err)
		os.Exit(1)
	}
}

func run(cfg app.Config) error {
	db, err := store.Open(filepath.Join(cfg.DataDir, "livo.duckdb"))
	if err != nil {
		return err
	}
	defer db.Close()

	logger := app.NewLogger(app.DefaultLogWriter(cfg.DataDir))
	backend := store.NewLocalBackend(db, logger)
	defer backend.Close()

	remember, err := app.NewRememberStore(nil)
	if err != nil {
		// The cache is a convenience; run without it rather than fail.
		remember = app.NewRememberStoreAt(filepath.Join(cfg.DataDir, "session.toml"))
	}

	application := app.NewApplication(cfg, backend, remember)

	// Restore a remembered session before the coordinator starts observing,
	// so its first auth observation already carries the identity.
	if cfg.RememberMe {
		if sess, err := remember.Load(); err == nil && sess != nil {
			if err := backend.Resume(context.Background(), sess.UID, sess.Token); err != nil {
				application.Logger.Info("remembered session rejected", map[string]interface{}{"uid": sess.UID})
				_ = remember.Clear()
			}
		}
	}

	application.Coordinator.Start()
	defer application.Coordinator.Stop()

	program := tea.NewProgram(tui.NewModel(application), tea.WithAltScreen())
	_, err = program.Run()
	return err
}
