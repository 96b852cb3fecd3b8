package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadConfigMergesAppThenEngineYaml(t *testing.T) {
	dir := t.TempDir()
	appYaml := filepath.Join(dir, "app.yaml")
	engineYaml := filepath.Join(dir, "engine.yaml")

	writeFile(t, appYaml, "app:\n  host: 127.0.0.1\n  port: 9000\n")
	writeFile(t, engineYaml, "app:\n  port: 9100\nsmtp:\n  host: smtp.example\n")

	cfg, err := LoadConfig(appYaml, engineYaml, "")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.App.Host, "engine.yaml omits host, app.yaml's value must survive")
	require.Equal(t, 9100, cfg.App.Port, "engine.yaml overrides app.yaml's port")
	require.Equal(t, "smtp.example", cfg.SMTP.Host)
}

func TestLoadConfigMissingFilesAreNotErrors(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "also-nope.yaml"), "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig("", "", "")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.App.Host)
	require.Equal(t, 8080, cfg.App.Port)
	require.Equal(t, "info", cfg.App.LogLevel)
	require.Equal(t, int64(3000), cfg.Search.StartOffsetMs)
	require.Equal(t, "ffmpeg", cfg.VideoToolkit.FfmpegPath)
	require.Equal(t, 32, cfg.Supervisor.MaxInFlightSlow)
	require.Equal(t, filepath.Join(cfg.App.DataDir, "clips.db"), cfg.Storage.ClipIndexPath)
}

func TestLoadConfigExplicitValuesSurviveDefaulting(t *testing.T) {
	dir := t.TempDir()
	appYaml := filepath.Join(dir, "app.yaml")
	writeFile(t, appYaml, "app:\n  port: 1234\nsearch:\n  start_offset_ms: 500\n")

	cfg, err := LoadConfig(appYaml, "", "")
	require.NoError(t, err)
	require.Equal(t, 1234, cfg.App.Port)
	require.Equal(t, int64(500), cfg.Search.StartOffsetMs)
}

func TestApplyEnvOverlayOverridesSecrets(t *testing.T) {
	t.Setenv("ENGINE_FTP_PASSWORD", "ftp-secret")
	t.Setenv("ENGINE_SMTP_PASSWORD", "smtp-secret")
	t.Setenv("ENGINE_GATEWAY_PASSWORD", "gw-secret")
	t.Setenv("ENGINE_SERVICES_AUTH_TOKEN", "token")

	cfg, err := LoadConfig("", "", "")
	require.NoError(t, err)
	require.Equal(t, "ftp-secret", cfg.Ftp.Password)
	require.Equal(t, "smtp-secret", cfg.SMTP.Password)
	require.Equal(t, "gw-secret", cfg.Notification.GatewayPassword)
	require.Equal(t, "token", cfg.IFTTT.ServicesAuthToken)
}
