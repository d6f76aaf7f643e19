// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the process configuration read from config.toml and QTAG__ env vars.
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	MetricsEnabled bool `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	QBittorrentHost          string `toml:"qbittorrentHost" mapstructure:"qbittorrentHost"`
	QBittorrentUsername      string `toml:"qbittorrentUsername" mapstructure:"qbittorrentUsername"`
	QBittorrentPassword      string `toml:"qbittorrentPassword" mapstructure:"qbittorrentPassword"`
	QBittorrentBasicUser     string `toml:"qbittorrentBasicUser" mapstructure:"qbittorrentBasicUser"`
	QBittorrentBasicPass     string `toml:"qbittorrentBasicPass" mapstructure:"qbittorrentBasicPass"`
	QBittorrentTLSSkipVerify bool   `toml:"qbittorrentTLSSkipVerify" mapstructure:"qbittorrentTLSSkipVerify"`

	Defaults ItemDefaults `toml:"defaults" mapstructure:"defaults"`
}

// ItemDefaults is the global per-item baseline unlabelled items fall back to.
// Speeds are KiB/s; negative speeds and caps mean unlimited.
type ItemDefaults struct {
	DownloadLocation    string  `toml:"downloadLocation" mapstructure:"downloadLocation"`
	MoveCompleted       bool    `toml:"moveCompleted" mapstructure:"moveCompleted"`
	MoveCompletedPath   string  `toml:"moveCompletedPath" mapstructure:"moveCompletedPath"`
	PrioritizeFirstLast bool    `toml:"prioritizeFirstLast" mapstructure:"prioritizeFirstLast"`
	MaxDownloadSpeed    float64 `toml:"maxDownloadSpeed" mapstructure:"maxDownloadSpeed"`
	MaxUploadSpeed      float64 `toml:"maxUploadSpeed" mapstructure:"maxUploadSpeed"`
	MaxConnections      int     `toml:"maxConnections" mapstructure:"maxConnections"`
	MaxUploadSlots      int     `toml:"maxUploadSlots" mapstructure:"maxUploadSlots"`
	AutoManaged         bool    `toml:"autoManaged" mapstructure:"autoManaged"`
	StopAtRatio         bool    `toml:"stopAtRatio" mapstructure:"stopAtRatio"`
	StopRatio           float64 `toml:"stopRatio" mapstructure:"stopRatio"`
	RemoveAtRatio       bool    `toml:"removeAtRatio" mapstructure:"removeAtRatio"`
}
