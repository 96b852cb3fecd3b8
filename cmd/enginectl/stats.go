package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nvrengine/core/logging"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/responsedb"
)

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	addRootFlag(fs)
	fs.Parse(args)

	cfg := loadAppConfig()
	logger := logging.New(cfg.App.LogLevel)

	objects, err := objectindex.Open(cfg.Storage.ObjectIndexPath, logging.Component(logger, "objectindex"))
	if err != nil {
		log.Fatalf("opening object index: %v", err)
	}
	defer objects.Close()

	db, err := responsedb.Open(cfg.Storage.ResponseDBPath, logging.Component(logger, "responsedb"))
	if err != nil {
		log.Fatalf("opening response db: %v", err)
	}
	defer db.Close()

	fmt.Println("pending responses by protocol:")
	for _, protocol := range []models.Protocol{
		models.ProtocolEmail, models.ProtocolPush, models.ProtocolIFTTT,
		models.ProtocolWebhook, models.ProtocolFTP, models.ProtocolLocalExport,
	} {
		pending, err := db.AreResponsesPending(protocol)
		if err != nil {
			fmt.Printf("  %-12s error: %v\n", protocol, err)
			continue
		}
		fmt.Printf("  %-12s pending=%v\n", protocol, pending)
	}

	notifications, err := db.ListPushNotifications(10)
	if err != nil {
		log.Fatalf("listing push notifications: %v", err)
	}
	fmt.Printf("\nstored push notifications (oldest %d): %d\n", len(notifications), len(notifications))

	fmt.Println("\nobject index orphan sweep (dry info only, run via supervisor cron in serve mode):")
	fmt.Printf("  last-insert horizon used by tidy: now - 15m = %d\n", time.Now().Add(-15*time.Minute).UnixMilli())
}
