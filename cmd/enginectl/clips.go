package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/logging"
)

func runClips(args []string) {
	fs := flag.NewFlagSet("clips", flag.ExitOnError)
	camera := fs.String("camera", "", "camera location (required)")
	startMs := fs.Int64("start", 0, "window start, epoch ms")
	endMs := fs.Int64("end", 0, "window end, epoch ms (default: now)")
	addRootFlag(fs)
	fs.Parse(args)

	if *camera == "" {
		fmt.Fprintln(os.Stderr, "error: -camera flag is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadAppConfig()
	logger := logging.New(cfg.App.LogLevel)

	ci, err := clipindex.Open(cfg.Storage.ClipIndexPath, logging.Component(logger, "clipindex"))
	if err != nil {
		log.Fatalf("opening clip index: %v", err)
	}
	defer ci.Close()

	end := *endMs
	if end == 0 {
		end = time.Now().UnixMilli()
	}

	files, err := ci.GetFilesBetween(*camera, *startMs, end)
	if err != nil {
		log.Fatalf("listing clips: %v", err)
	}

	fmt.Printf("%-40s %-12s %12s %12s %10s %5s\n", "filename", "camera", "firstMs", "lastMs", "cache", "proc")
	for _, c := range files {
		fmt.Printf("%-40s %-12s %12d %12d %10d %dx%d\n",
			c.Filename, c.CameraLocation, c.FirstMs, c.LastMs, c.CacheStatus, c.ProcWidth, c.ProcHeight)
	}
	fmt.Printf("\n%d clip(s)\n", len(files))
}
