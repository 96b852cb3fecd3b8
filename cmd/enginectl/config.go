package main

import (
	"log"
	"path/filepath"

	"github.com/nvrengine/core/config"
)

func loadAppConfig() *config.AppConfig {
	root := resolveRoot()
	appYaml := filepath.Join(root, "config", "app.yaml")
	engineYaml := filepath.Join(root, "config", "engine.yaml")
	dotenv := filepath.Join(root, ".env")

	cfg, err := config.LoadConfig(appYaml, engineYaml, dotenv)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if !filepath.IsAbs(cfg.App.DataDir) {
		cfg.App.DataDir = filepath.Join(root, cfg.App.DataDir)
	}
	if !filepath.IsAbs(cfg.Storage.ClipIndexPath) {
		cfg.Storage.ClipIndexPath = filepath.Join(root, cfg.Storage.ClipIndexPath)
	}
	if !filepath.IsAbs(cfg.Storage.ObjectIndexPath) {
		cfg.Storage.ObjectIndexPath = filepath.Join(root, cfg.Storage.ObjectIndexPath)
	}
	if !filepath.IsAbs(cfg.Storage.ResponseDBPath) {
		cfg.Storage.ResponseDBPath = filepath.Join(root, cfg.Storage.ResponseDBPath)
	}
	if !filepath.IsAbs(cfg.VideoToolkit.ScratchDir) {
		cfg.VideoToolkit.ScratchDir = filepath.Join(root, cfg.VideoToolkit.ScratchDir)
	}

	return cfg
}
