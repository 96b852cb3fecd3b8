package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nvrengine/core/capture"
	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/logging"
	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/search"
)

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cameras := fs.String("cameras", "", "comma-separated camera locations (required)")
	objType := fs.String("type", "", "object type filter")
	action := fs.String("action", "any", "action filter")
	startMs := fs.Int64("start", 0, "window start, epoch ms")
	endMs := fs.Int64("end", 0, "window end, epoch ms (default: now)")
	startOffset := fs.Int64("start-offset-ms", 3000, "padding before each event")
	stopOffset := fs.Int64("stop-offset-ms", 3000, "padding after each event")
	combine := fs.Bool("combine", true, "combine clips across objects")
	addRootFlag(fs)
	fs.Parse(args)

	cameraList := splitCommaList(*cameras)
	if len(cameraList) == 0 {
		fmt.Fprintln(os.Stderr, "error: -cameras flag is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadAppConfig()
	logger := logging.New(cfg.App.LogLevel)

	clips, err := clipindex.Open(cfg.Storage.ClipIndexPath, logging.Component(logger, "clipindex"))
	if err != nil {
		log.Fatalf("opening clip index: %v", err)
	}
	defer clips.Close()

	objects, err := objectindex.Open(cfg.Storage.ObjectIndexPath, logging.Component(logger, "objectindex"))
	if err != nil {
		log.Fatalf("opening object index: %v", err)
	}
	defer objects.Close()

	now := time.Now().UnixMilli()
	nowMs := now
	end := *endMs
	if end == 0 {
		end = now
	}

	engine := &search.Engine{Clips: clips, Objects: objects, Flush: capture.NoopFlush}

	var targets []objectindex.Target
	if *objType != "" {
		targets = append(targets, objectindex.Target{Type: *objType, Action: *action})
	}

	req := search.Request{
		Cameras: cameraList,
		Query:   objectindex.Query{Targets: targets},
		Opts: search.Options{
			StartOffsetMs:      *startOffset,
			StopOffsetMs:       *stopOffset,
			ShouldCombineClips: *combine,
		},
		MidnightMs:     *startMs,
		NextMidnightMs: end,
		IsToday:        false,
		NowMs:          nowMs,
	}

	results, err := engine.Search(context.Background(), req)
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}

	for camera, clipsFound := range results {
		fmt.Printf("%s: %d matching clip(s)\n", camera, len(clipsFound))
		for _, c := range clipsFound {
			fmt.Printf("  [%d, %d] play=%d preview=%d objects=%v saved=%v\n",
				c.StartTime, c.StopTime, c.PlayStart, c.PreviewMs, c.ObjList, c.IsSaved.IsYes())
		}
	}
}
