package main

import (
	"context"
	"log"
	"time"

	"androidinfo/internal/cache/disk"
	"androidinfo/internal/config"
	"androidinfo/internal/dataset"
	"androidinfo/internal/httpx"
	"androidinfo/internal/publish"
	"androidinfo/internal/run"
	"androidinfo/internal/source"
	"androidinfo/internal/versions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	cache, err := disk.NewStore(disk.Config{Root: cfg.CacheDir})
	if err != nil {
		log.Fatal(err)
	}
	writer, err := dataset.NewWriter(cfg.OutputDir)
	if err != nil {
		log.Fatal(err)
	}

	session := httpx.NewSession(httpx.WithDelay(cfg.RequestDelay))
	src, err := source.NewGoogleSource(session, "")
	if err != nil {
		log.Fatal(err)
	}

	orch := &run.Orchestrator{
		BuildNumbers: &versions.BuildNumbersClient{Session: session},
		Source:       src,
		Search:       source.NewCodeSearch(session, ""),
		Repo:         source.NewRepository(session, "", cache),
		Cache:        cache,
		Writer:       writer,
	}

	ctx := context.Background()
	if err := orch.Run(ctx); err != nil {
		log.Fatal(err)
	}

	if cfg.Publish.Enabled {
		pub, err := publish.NewS3Publisher(publish.S3Config{
			Endpoint:  cfg.Publish.Endpoint,
			Region:    cfg.Publish.Region,
			AccessKey: cfg.Publish.AccessKey,
			SecretKey: cfg.Publish.SecretKey,
			Bucket:    cfg.Publish.Bucket,
			UseSSL:    cfg.Publish.UseSSL,
		})
		if err != nil {
			log.Fatal(err)
		}
		snapshotID := time.Now().UTC().Format("2006-01-02")
		if err := pub.PublishDir(ctx, snapshotID, writer.Root()); err != nil {
			log.Fatal(err)
		}
		log.Printf("published dataset snapshot %s to s3://%s", snapshotID, cfg.Publish.Bucket)
	}
}
