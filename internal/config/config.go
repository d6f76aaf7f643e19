// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/qtag/internal/domain"
	"github.com/autobrr/qtag/internal/services/tagging"
)

var envPrefix = "QTAG__"

const databaseFile = "qtag.db"

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	dataDir string
	version string

	// mu guards Config against concurrent reloads.
	mu sync.RWMutex

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

var _ tagging.GlobalDefaults = (*AppConfig)(nil)

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	c.defaults()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	c.loadFromEnv()

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	c.resolveDataDir()

	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	host := "localhost"
	if detectContainer() {
		host = "0.0.0.0"
	}

	c.viper.SetDefault("host", host)
	c.viper.SetDefault("port", 7477)
	c.viper.SetDefault("baseUrl", "/")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("metricsEnabled", false)

	c.viper.SetDefault("qbittorrentHost", "http://localhost:8080")
	c.viper.SetDefault("qbittorrentUsername", "admin")
	c.viper.SetDefault("qbittorrentPassword", "")
	c.viper.SetDefault("qbittorrentBasicUser", "")
	c.viper.SetDefault("qbittorrentBasicPass", "")
	c.viper.SetDefault("qbittorrentTLSSkipVerify", false)

	c.viper.SetDefault("defaults.downloadLocation", "")
	c.viper.SetDefault("defaults.moveCompleted", false)
	c.viper.SetDefault("defaults.moveCompletedPath", "")
	c.viper.SetDefault("defaults.prioritizeFirstLast", false)
	c.viper.SetDefault("defaults.maxDownloadSpeed", -1)
	c.viper.SetDefault("defaults.maxUploadSpeed", -1)
	c.viper.SetDefault("defaults.maxConnections", -1)
	c.viper.SetDefault("defaults.maxUploadSlots", -1)
	c.viper.SetDefault("defaults.autoManaged", true)
	c.viper.SetDefault("defaults.stopAtRatio", false)
	c.viper.SetDefault("defaults.stopRatio", 2.0)
	c.viper.SetDefault("defaults.removeAtRatio", false)
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		configPath := c.resolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(configPath)

		if err := c.viper.ReadInConfig(); err != nil {
			// SetConfigFile reports a missing file as a plain fs error.
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				if err := c.writeDefaultConfig(configPath); err != nil {
					return err
				}
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	c.viper.SetConfigName("config")
	c.viper.AddConfigPath(".")
	c.viper.AddConfigPath(GetDefaultConfigDir())

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultConfigPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
			if err := c.writeDefaultConfig(defaultConfigPath); err != nil {
				return err
			}
			c.viper.SetConfigFile(defaultConfigPath)
			if err := c.viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read newly created config: %w", err)
			}
			c.dataDir = filepath.Dir(defaultConfigPath)
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func (c *AppConfig) loadFromEnv() {
	// Bind explicitly; AutomaticEnv picks up unrelated K8s service variables.
	c.viper.BindEnv("host", envPrefix+"HOST")
	c.viper.BindEnv("port", envPrefix+"PORT")
	c.viper.BindEnv("baseUrl", envPrefix+"BASE_URL")
	c.viper.BindEnv("logLevel", envPrefix+"LOG_LEVEL")
	c.viper.BindEnv("logPath", envPrefix+"LOG_PATH")
	c.viper.BindEnv("logMaxSize", envPrefix+"LOG_MAX_SIZE")
	c.viper.BindEnv("logMaxBackups", envPrefix+"LOG_MAX_BACKUPS")
	c.viper.BindEnv("dataDir", envPrefix+"DATA_DIR")
	c.viper.BindEnv("metricsEnabled", envPrefix+"METRICS_ENABLED")

	c.viper.BindEnv("qbittorrentHost", envPrefix+"QBITTORRENT_HOST")
	c.viper.BindEnv("qbittorrentUsername", envPrefix+"QBITTORRENT_USERNAME")
	c.bindOrReadFromFile("qbittorrentPassword", envPrefix+"QBITTORRENT_PASSWORD")
	c.viper.BindEnv("qbittorrentBasicUser", envPrefix+"QBITTORRENT_BASIC_USER")
	c.bindOrReadFromFile("qbittorrentBasicPass", envPrefix+"QBITTORRENT_BASIC_PASS")
	c.viper.BindEnv("qbittorrentTLSSkipVerify", envPrefix+"QBITTORRENT_TLS_SKIP_VERIFY")

	c.viper.BindEnv("defaults.downloadLocation", envPrefix+"DEFAULTS_DOWNLOAD_LOCATION")
	c.viper.BindEnv("defaults.moveCompletedPath", envPrefix+"DEFAULTS_MOVE_COMPLETED_PATH")
}

// bindOrReadFromFile prefers the contents of the file named by envVar+"_FILE"
// over envVar itself.
func (c *AppConfig) bindOrReadFromFile(key, envVar string) {
	if path := os.Getenv(envVar + "_FILE"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msgf("Could not read %s_FILE", envVar)
			c.viper.BindEnv(key, envVar)
			return
		}
		c.viper.Set(key, strings.TrimSpace(string(content)))
		return
	}
	c.viper.BindEnv(key, envVar)
}

func (c *AppConfig) watchConfig() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Msgf("Config file changed: %s", e.Name)
		if err := c.reload(); err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
		}
	})
}

func (c *AppConfig) reload() error {
	next := &domain.Config{}
	if err := c.viper.Unmarshal(next); err != nil {
		return err
	}
	next.Version = c.version

	c.mu.Lock()
	*c.Config = *next
	c.mu.Unlock()

	c.ApplyLogConfig()
	c.notifyListeners()
	return nil
}

// RegisterReloadListener registers a callback that's invoked when the configuration file is reloaded.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	c.mu.RLock()
	copied := *c.Config
	c.mu.RUnlock()
	for _, listener := range listeners {
		listener(&copied)
	}
}

// Defaults returns the current global item baseline. Reloads take effect on
// the next call.
func (c *AppConfig) Defaults() tagging.ItemDefaults {
	c.mu.RLock()
	d := c.Config.Defaults
	c.mu.RUnlock()

	return tagging.ItemDefaults{
		DownloadLocation:    d.DownloadLocation,
		MoveCompleted:       d.MoveCompleted,
		MoveCompletedPath:   d.MoveCompletedPath,
		PrioritizeFirstLast: d.PrioritizeFirstLast,
		MaxDownloadSpeed:    d.MaxDownloadSpeed,
		MaxUploadSpeed:      d.MaxUploadSpeed,
		MaxConnections:      d.MaxConnections,
		MaxUploadSlots:      d.MaxUploadSlots,
		AutoManaged:         d.AutoManaged,
		StopAtRatio:         d.StopAtRatio,
		StopRatio:           d.StopRatio,
		RemoveAtRatio:       d.RemoveAtRatio,
	}
}

// Snapshot returns a copy of the current configuration.
func (c *AppConfig) Snapshot() domain.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.Config
}

const configTemplate = `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost" (or "0.0.0.0" in containers)
host = "{{ .host }}"

# Port
# Default: 7477
port = {{ .port }}

# Base URL
# Set custom baseUrl eg /qtag/ to serve in subdirectory.
# Optional
#baseUrl = "/qtag/"

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/qtag.log"

# Maximum log file size in megabytes before rotation
# Default: {{ .logMaxSize }}
#logMaxSize = {{ .logMaxSize }}

# Number of rotated log files to retain (0 keeps all)
# Default: {{ .logMaxBackups }}
#logMaxBackups = {{ .logMaxBackups }}

# Data directory (default: next to config file)
# Database file (qtag.db) will be created inside this directory
#dataDir = "/var/db/qtag"

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Expose Prometheus metrics on /metrics
# Default: false
#metricsEnabled = false

# qBittorrent Web UI
qbittorrentHost = "{{ .qbittorrentHost }}"
qbittorrentUsername = "{{ .qbittorrentUsername }}"
#qbittorrentPassword = ""

# HTTP basic auth in front of the Web UI (optional)
#qbittorrentBasicUser = ""
#qbittorrentBasicPass = ""
#qbittorrentTLSSkipVerify = false

# Baseline for unlabelled items and for labels with a settings group disabled.
# Speeds are KiB/s, -1 means unlimited.
[defaults]
downloadLocation = "{{ .downloadLocation }}"
#moveCompleted = false
#moveCompletedPath = ""
#prioritizeFirstLast = false
#maxDownloadSpeed = -1
#maxUploadSpeed = -1
#maxConnections = -1
#maxUploadSlots = -1
#autoManaged = true
#stopAtRatio = false
#stopRatio = 2.0
#removeAtRatio = false
`

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Config file already exists at: %s", path)
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	log.Debug().Msgf("Created config directory: %s", dir)

	data := map[string]any{
		"host":                c.viper.GetString("host"),
		"port":                c.viper.GetInt("port"),
		"logLevel":            c.viper.GetString("logLevel"),
		"logMaxSize":          c.viper.GetInt("logMaxSize"),
		"logMaxBackups":       c.viper.GetInt("logMaxBackups"),
		"qbittorrentHost":     c.viper.GetString("qbittorrentHost"),
		"qbittorrentUsername": c.viper.GetString("qbittorrentUsername"),
		"downloadLocation":    c.viper.GetString("defaults.downloadLocation"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// Containers mount /config directly.
		if xdgConfig == "/config" {
			return xdgConfig
		}
		return filepath.Join(xdgConfig, "qtag")
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "qtag")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "qtag")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "qtag")
	}
}

func detectContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/.lxc-boot-id"); err == nil {
		return true
	}
	if os.Getpid() == 1 {
		return true
	}
	return false
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	cfg := c.Snapshot()
	setLogLevel(cfg.LogLevel)

	writer := c.baseLogWriter()

	if cfg.LogPath != "" {
		multiWriter, err := setupLogFile(cfg.LogPath, writer, cfg.LogMaxSize, cfg.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}

	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		writer.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		return writer
	}
	return os.Stderr
}

func (c *AppConfig) baseLogWriter() io.Writer {
	return baseLogWriter(c.version)
}

// InitDefaultLogger configures zerolog with the default writer for this version.
// CLI entry points call it before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(baseLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// resolveConfigPath accepts either a config file or the directory holding config.toml.
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	return filepath.Join(configDirOrPath, "config.toml")
}

func (c *AppConfig) resolveDataDir() {
	switch {
	case c.Config.DataDir != "":
		c.dataDir = c.Config.DataDir
	case c.dataDir != "":
	case c.viper.ConfigFileUsed() != "":
		c.dataDir = filepath.Dir(c.viper.ConfigFileUsed())
	default:
		c.dataDir = "."
	}
}

// GetDatabasePath returns the path to the database file
func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.dataDir, databaseFile)
}

// GetDataDir returns the resolved data directory path.
func (c *AppConfig) GetDataDir() string {
	return c.dataDir
}

// SetDataDir sets the data directory (used by CLI flags)
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetConfigDir returns the directory containing the config file
func (c *AppConfig) GetConfigDir() string {
	if c.viper.ConfigFileUsed() != "" {
		return filepath.Dir(c.viper.ConfigFileUsed())
	}
	return GetDefaultConfigDir()
}

// WriteDefaultConfig writes the commented default config.toml to path unless
// a file already exists there.
func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	return c.writeDefaultConfig(path)
}
