// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/qtag/internal/api"
	"github.com/autobrr/qtag/internal/buildinfo"
	"github.com/autobrr/qtag/internal/config"
	"github.com/autobrr/qtag/internal/database"
	"github.com/autobrr/qtag/internal/domain"
	"github.com/autobrr/qtag/internal/models"
	"github.com/autobrr/qtag/internal/qbittorrent"
	"github.com/autobrr/qtag/internal/services/tagging"
)

const lockFile = "qtag.lock"

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "qtag",
		Short: "Hierarchical labels and per-label policy for qBittorrent",
		Long: `qtag - organizes qBittorrent torrents into a tree of labels and
applies each label's download, bandwidth, queue and autotag settings.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunExportConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the label engine and API server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/qtag/ or %APPDATA%\\qtag\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the database (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		app := NewApplication(configDir, dataDir, logPath)
		return app.runServer()
	}

	return command
}

func RunVersionCommand() *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of qtag",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(buildinfo.String())
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/qtag/config.toml
- Windows: %APPDATA%\qtag\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

// RunExportConfigCommand dumps the stored label tree, mappings and
// preferences as YAML.
func RunExportConfigCommand() *cobra.Command {
	var configDir, dataDir, output string

	command := &cobra.Command{
		Use:   "export-config",
		Short: "Export labels, mappings and preferences as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if dataDir != "" {
				cfg.SetDataDir(dataDir)
			}

			dbPath := cfg.GetDatabasePath()
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				return fmt.Errorf("database not found at %s", dbPath)
			}

			db, err := database.New(dbPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			record, err := models.NewTagConfigStore(db).Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load tag config: %w", err)
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("failed to encode tag config: %w", err)
			}
			return enc.Close()
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "",
		"data directory path (defaults to next to config file)")
	command.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")

	return command
}

func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
}

func NewApplication(configDir, dataDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() error {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		return errors.Wrap(err, "initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("QTAG__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("QTAG__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting qtag")

	if err := os.MkdirAll(cfg.GetDataDir(), 0755); err != nil {
		return errors.Wrap(err, "create data directory")
	}
	lock := flock.New(filepath.Join(cfg.GetDataDir(), lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return errors.Wrap(err, "acquire data directory lock")
	}
	if !locked {
		return errors.Errorf("another qtag instance is using %s", cfg.GetDataDir())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("Failed to release data directory lock")
		}
	}()

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return errors.Wrap(err, "initialize database")
	}
	defer db.Close()

	tagStore := models.NewTagConfigStore(db)
	record, err := tagStore.Load(context.Background())
	if err != nil {
		return errors.Wrap(err, "load tag config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := cfg.Snapshot()
	client, err := qbittorrent.NewClient(ctx, qbittorrent.Config{
		Host:          settings.QBittorrentHost,
		Username:      settings.QBittorrentUsername,
		Password:      settings.QBittorrentPassword,
		BasicUser:     settings.QBittorrentBasicUser,
		BasicPass:     settings.QBittorrentBasicPass,
		TLSSkipVerify: settings.QBittorrentTLSSkipVerify,
	})
	if err != nil {
		return errors.Wrap(err, "connect to qBittorrent")
	}
	defer client.Close()

	// The first sync seeds the item set the engine validates mappings against.
	if err := client.Start(ctx); err != nil {
		return errors.Wrap(err, "start qBittorrent sync")
	}
	go client.PrefetchAllTrackers(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := tagging.NewEngine(ctx, tagging.DefaultConfig(), record, client, cfg, tagStore, tagging.NewMetrics(registry))
	go client.Dispatch(ctx, engine)
	engine.Start(ctx)

	cfg.RegisterReloadListener(func(conf *domain.Config) {
		log.Info().
			Str("logLevel", conf.LogLevel).
			Str("downloadLocation", conf.Defaults.DownloadLocation).
			Msg("Configuration reloaded")
	})

	httpServer := api.NewServer(&api.Dependencies{
		Config:   settings,
		Version:  buildinfo.Version,
		Engine:   engine,
		Client:   client,
		Gatherer: registry,
	})

	errorChannel := make(chan error, 1)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		_ = engine.Stop(context.Background())
		return errors.Wrap(err, "start HTTP server")
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")
	}

	// Stop flushes pending label changes to the database.
	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to save tag config on shutdown")
	}
	cancel()

	log.Info().Msg("Server stopped")
	return nil
}
