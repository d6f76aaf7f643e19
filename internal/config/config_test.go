// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/qtag/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDatabasePathResolution(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (configPath string, envDataDir string, expectedDBPath string)
	}{
		{
			name: "default_next_to_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := writeConfig(t, tmpDir, "host = \"localhost\"\nport = 8080\n")
				return configPath, "", filepath.Join(tmpDir, "qtag.db")
			},
		},
		{
			name: "explicit_data_dir_in_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				dataDir := filepath.Join(tmpDir, "data")
				require.NoError(t, os.MkdirAll(dataDir, 0o755))
				configPath := writeConfig(t, tmpDir, fmt.Sprintf("host = \"localhost\"\ndataDir = %q\n", dataDir))
				return configPath, "", filepath.Join(dataDir, "qtag.db")
			},
		},
		{
			name: "env_var_override",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configDataDir := filepath.Join(tmpDir, "config-data")
				envDataDir := filepath.Join(tmpDir, "env-data")
				configPath := writeConfig(t, tmpDir, fmt.Sprintf("dataDir = %q\n", configDataDir))
				return configPath, envDataDir, filepath.Join(envDataDir, "qtag.db")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath, envValue, expectedDBPath := tt.prepare(t, tmpDir)
			if envValue != "" {
				t.Setenv(envPrefix+"DATA_DIR", envValue)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)

			assert.Equal(t, filepath.Clean(expectedDBPath), filepath.Clean(cfg.GetDatabasePath()))
		})
	}
}

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{name: "toml_file_extension", input: "/path/to/custom.toml", expectedSuffix: "custom.toml"},
		{name: "TOML_file_extension_uppercase", input: "/path/to/CONFIG.TOML", expectedSuffix: "CONFIG.TOML"},
		{name: "directory_path", input: "/path/to/config", expectedSuffix: "config.toml"},
		{name: "existing_file_without_toml", input: "/path/to/configfile", setupFile: true, expectedSuffix: "configfile"},
		{name: "existing_directory", input: "/path/to/configdir", setupFile: true, fileIsDir: true, expectedSuffix: "config.toml"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath := filepath.Join(tmpDir, filepath.Base(tt.input))

			if tt.setupFile {
				if tt.fileIsDir {
					require.NoError(t, os.MkdirAll(inputPath, 0o755))
				} else {
					require.NoError(t, os.WriteFile(inputPath, []byte("test"), 0o644))
				}
			}

			c := &AppConfig{}
			result := c.resolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestNewWritesDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")

	cfg, err := New(dir)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[defaults]")
	assert.Contains(t, string(content), "qbittorrentHost")

	assert.Equal(t, 7477, cfg.Config.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Config.QBittorrentHost)

	d := cfg.Defaults()
	assert.Equal(t, -1.0, d.MaxDownloadSpeed)
	assert.Equal(t, -1, d.MaxConnections)
	assert.True(t, d.AutoManaged)
	assert.Equal(t, 2.0, d.StopRatio)
}

func TestDefaultsTable(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
qbittorrentHost = "http://qbit:8080"

[defaults]
downloadLocation = "/downloads"
moveCompleted = true
moveCompletedPath = "/media"
maxUploadSpeed = 512
maxConnections = 200
autoManaged = false
`)

	cfg, err := New(path)
	require.NoError(t, err)

	d := cfg.Defaults()
	assert.Equal(t, "/downloads", d.DownloadLocation)
	assert.True(t, d.MoveCompleted)
	assert.Equal(t, "/media", d.MovePath())
	assert.Equal(t, 512.0, d.MaxUploadSpeed)
	assert.Equal(t, -1.0, d.MaxDownloadSpeed)
	assert.Equal(t, 200, d.MaxConnections)
	assert.False(t, d.AutoManaged)
	assert.Equal(t, "http://qbit:8080", cfg.Config.QBittorrentHost)
}

func TestEnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		check  func(t *testing.T, cfg *AppConfig)
		secret string
	}{
		{
			name: "qbittorrent_host",
			env:  map[string]string{"QBITTORRENT_HOST": "http://env:9000"},
			check: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "http://env:9000", cfg.Config.QBittorrentHost)
			},
		},
		{
			name: "download_location",
			env:  map[string]string{"DEFAULTS_DOWNLOAD_LOCATION": "/env/downloads"},
			check: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "/env/downloads", cfg.Defaults().DownloadLocation)
			},
		},
		{
			name: "password_plain",
			env:  map[string]string{"QBITTORRENT_PASSWORD": "plain"},
			check: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "plain", cfg.Config.QBittorrentPassword)
			},
		},
		{
			name:   "password_file_wins",
			env:    map[string]string{"QBITTORRENT_PASSWORD": "plain"},
			secret: "from-file\n",
			check: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "from-file", cfg.Config.QBittorrentPassword)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for k, v := range tt.env {
				t.Setenv(envPrefix+k, v)
			}
			if tt.secret != "" {
				secretPath := filepath.Join(dir, "secret")
				require.NoError(t, os.WriteFile(secretPath, []byte(tt.secret), 0o600))
				t.Setenv(envPrefix+"QBITTORRENT_PASSWORD_FILE", secretPath)
			}

			cfg, err := New(writeConfig(t, dir, "port = 7477\n"))
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestReloadNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logLevel = \"INFO\"\n[defaults]\ndownloadLocation = \"/a\"\n")

	// Built by hand so no file watcher races the explicit reload.
	cfg := &AppConfig{viper: viper.New(), Config: &domain.Config{}, version: "dev"}
	cfg.defaults()
	require.NoError(t, cfg.load(path))
	require.NoError(t, cfg.viper.Unmarshal(cfg.Config))
	assert.Equal(t, "/a", cfg.Defaults().DownloadLocation)

	var got *domain.Config
	cfg.RegisterReloadListener(func(c *domain.Config) { got = c })

	require.NoError(t, os.WriteFile(path, []byte("logLevel = \"DEBUG\"\n[defaults]\ndownloadLocation = \"/b\"\n"), 0o644))
	require.NoError(t, cfg.viper.ReadInConfig())
	require.NoError(t, cfg.reload())

	require.NotNil(t, got)
	assert.Equal(t, "DEBUG", got.LogLevel)
	assert.Equal(t, "/b", cfg.Defaults().DownloadLocation)
}
