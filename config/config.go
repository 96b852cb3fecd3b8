// Package config loads and merges the engine's layered YAML
// configuration, with an optional .env secrets overlay and
// XDG-resolved default data directories.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppSettings covers process-level basics: bind address, log level,
// data root.
type AppSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
}

// StorageSettings locates the three SQLite-backed stores.
type StorageSettings struct {
	ClipIndexPath   string `yaml:"clip_index_path"`
	ObjectIndexPath string `yaml:"object_index_path"`
	ResponseDBPath  string `yaml:"response_db_path"`
}

// SearchSettings are the default search/assembly knobs applied when a
// rule query does not override them.
type SearchSettings struct {
	StartOffsetMs       int64 `yaml:"start_offset_ms"`
	StopOffsetMs        int64 `yaml:"stop_offset_ms"`
	PlayOffsetMs        int64 `yaml:"play_offset_ms"`
	ShouldCombineClips  bool  `yaml:"should_combine_clips"`
	DefaultMergeThresholdSec int `yaml:"default_merge_threshold_sec"`
}

// FtpSettings is the FTP clip-upload target configuration.
type FtpSettings struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Directory string `yaml:"directory"`
	IsPassive bool   `yaml:"is_passive"`
}

// LocalExportSettings maps lowercased rule names to export directories.
type LocalExportSettings map[string]string

// NotificationSettings configures the push gateway.
type NotificationSettings struct {
	Enabled         bool   `yaml:"enabled"`
	GatewayHost     string `yaml:"gateway_host"`
	GatewayGUID     string `yaml:"gateway_guid"`
	GatewayPassword string `yaml:"gateway_password"`
}

// SMTPSettings configures the email responder's outbound transport.
type SMTPSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// IFTTTSettings configures the IFTTT-like trigger endpoint.
type IFTTTSettings struct {
	BaseURL          string `yaml:"base_url"`
	ServicesAuthToken string `yaml:"services_auth_token"`
}

// VideoToolkitSettings points at the ffmpeg binary and scratch space
// used by the video toolkit adapter.
type VideoToolkitSettings struct {
	FfmpegPath string `yaml:"ffmpeg_path"`
	ConfigDir  string `yaml:"config_dir"`
	ScratchDir string `yaml:"scratch_dir"`
}

// SupervisorSettings tunes worker-pool caps and sweep cadences.
type SupervisorSettings struct {
	MaxInFlightSlow   int `yaml:"max_in_flight_slow"`
	LivenessSec       int `yaml:"liveness_sec"`
	PushPurgeMaxAgeDays int `yaml:"push_purge_max_age_days"`
	PushPurgeMaxRows  int `yaml:"push_purge_max_rows"`
}

// AppConfig is the fully merged, defaulted configuration tree.
type AppConfig struct {
	App          AppSettings          `yaml:"app"`
	Storage      StorageSettings      `yaml:"storage"`
	Search       SearchSettings       `yaml:"search"`
	Ftp          FtpSettings          `yaml:"ftp"`
	LocalExport  LocalExportSettings  `yaml:"local_export"`
	Notification NotificationSettings `yaml:"notification"`
	SMTP         SMTPSettings         `yaml:"smtp"`
	IFTTT        IFTTTSettings        `yaml:"ifttt"`
	VideoToolkit VideoToolkitSettings `yaml:"video_toolkit"`
	Supervisor   SupervisorSettings   `yaml:"supervisor"`
}

// LoadConfig reads and merges appYaml and engineYaml (later files win
// per key; keys a later file omits keep the earlier file's value), overlays
// an optional .env file's secrets, and fills programmatic defaults.
func LoadConfig(appYaml, engineYaml, dotenvPath string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := loadYAML(appYaml, cfg); err != nil {
		return nil, fmt.Errorf("loading %s: %w", appYaml, err)
	}
	if err := loadYAML(engineYaml, cfg); err != nil {
		return nil, fmt.Errorf("loading %s: %w", engineYaml, err)
	}

	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", dotenvPath, err)
		}
	}
	applyEnvOverlay(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, out)
}

// applyEnvOverlay lets secrets that must never land in a committed
// YAML file be supplied as environment variables instead.
func applyEnvOverlay(cfg *AppConfig) {
	if v := os.Getenv("ENGINE_FTP_PASSWORD"); v != "" {
		cfg.Ftp.Password = v
	}
	if v := os.Getenv("ENGINE_GATEWAY_PASSWORD"); v != "" {
		cfg.Notification.GatewayPassword = v
	}
	if v := os.Getenv("ENGINE_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("ENGINE_SERVICES_AUTH_TOKEN"); v != "" {
		cfg.IFTTT.ServicesAuthToken = v
	}
}

func applyDefaults(cfg *AppConfig) {
	dataDir := defaultDataDir()

	if cfg.App.Host == "" {
		cfg.App.Host = "0.0.0.0"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.App.DataDir == "" {
		cfg.App.DataDir = dataDir
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}

	if cfg.Storage.ClipIndexPath == "" {
		cfg.Storage.ClipIndexPath = filepath.Join(cfg.App.DataDir, "clips.db")
	}
	if cfg.Storage.ObjectIndexPath == "" {
		cfg.Storage.ObjectIndexPath = filepath.Join(cfg.App.DataDir, "objects.db")
	}
	if cfg.Storage.ResponseDBPath == "" {
		cfg.Storage.ResponseDBPath = filepath.Join(cfg.App.DataDir, "responses.db")
	}

	if cfg.Search.StartOffsetMs == 0 {
		cfg.Search.StartOffsetMs = 3000
	}
	if cfg.Search.StopOffsetMs == 0 {
		cfg.Search.StopOffsetMs = 3000
	}
	if cfg.Search.DefaultMergeThresholdSec == 0 {
		cfg.Search.DefaultMergeThresholdSec = 10
	}

	if cfg.VideoToolkit.FfmpegPath == "" {
		cfg.VideoToolkit.FfmpegPath = "ffmpeg"
	}
	if cfg.VideoToolkit.ScratchDir == "" {
		cfg.VideoToolkit.ScratchDir = filepath.Join(cfg.App.DataDir, "tmp")
	}

	if cfg.Supervisor.MaxInFlightSlow == 0 {
		cfg.Supervisor.MaxInFlightSlow = 32
	}
	if cfg.Supervisor.LivenessSec == 0 {
		cfg.Supervisor.LivenessSec = 120
	}
	if cfg.Supervisor.PushPurgeMaxAgeDays == 0 {
		cfg.Supervisor.PushPurgeMaxAgeDays = 10
	}
	if cfg.Supervisor.PushPurgeMaxRows == 0 {
		cfg.Supervisor.PushPurgeMaxRows = 10000
	}
}

// defaultDataDir resolves a per-user data directory under XDG_DATA_HOME
// when no explicit data_dir is configured, instead of hard-coding a
// relative "data" path.
func defaultDataDir() string {
	dir, err := xdg.DataFile(filepath.Join("nvrengine", "data"))
	if err != nil {
		return "data"
	}
	return filepath.Dir(dir)
}
