// Package run drives a full harvest: catalog load, permission
// definitions per release, API-to-permission mappings per SDK level,
// and the content-provider snapshots.
package run

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"androidinfo/internal/cache/disk"
	"androidinfo/internal/dataset"
	"androidinfo/internal/harvest"
	"androidinfo/internal/source"
	"androidinfo/internal/versions"
)

// minPermissionLevel is the oldest API level with a parseable core
// manifest; levels 11, 12 and 20 never had a complete source drop.
const minPermissionLevel = 4

// minMappingLevel is the first SDK whose platform package ships
// RequiresPermission annotations.
const minMappingLevel = 26

var skippedLevels = map[int]bool{11: true, 12: true, 20: true}

type Orchestrator struct {
	BuildNumbers *versions.BuildNumbersClient
	Source       *source.GoogleSource
	Search       *source.CodeSearch
	Repo         *source.Repository
	Cache        *disk.Store
	Writer       *dataset.Writer
}

// Run executes every harvest stage in order. A failing stage aborts the
// run; snapshots written by earlier stages stay on disk.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Writer.Prepare(); err != nil {
		return fmt.Errorf("prepare output: %w", err)
	}

	log.Println("loading release catalog")
	catalog, err := o.BuildNumbers.FetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	log.Printf("catalog: %d api levels, %d build tags", len(catalog.APILevels()), len(catalog.BuildVersions()))

	if err := o.Writer.WriteAPILevels(catalog.APILevels()); err != nil {
		return err
	}
	if err := o.Writer.WriteBuildVersions(catalog.BuildVersions()); err != nil {
		return err
	}

	if err := o.harvestPermissions(ctx, catalog); err != nil {
		return err
	}
	if err := o.harvestMappings(ctx, catalog); err != nil {
		return err
	}
	if err := o.harvestProviders(ctx); err != nil {
		return err
	}
	log.Printf("dataset complete in %s", o.Writer.Root())
	return nil
}

func (o *Orchestrator) harvestPermissions(ctx context.Context, catalog *versions.Catalog) error {
	log.Println("harvesting permission definitions")
	task := &harvest.PermissionTask{Source: o.Source}

	perms, err := task.Harvest(ctx, source.MainRef)
	if err != nil {
		return fmt.Errorf("permissions at %s: %w", source.MainRef, err)
	}
	if err := o.Writer.WritePermissions(dataset.ReleaseLabel, perms); err != nil {
		return err
	}
	log.Printf("permissions %s: %d groups, %d permissions", dataset.ReleaseLabel, len(perms.Groups), len(perms.Permissions))

	for _, level := range harvestableLevels(catalog) {
		perms, build, err := harvest.ResolveLatest(ctx, catalog, level, task)
		if errors.Is(err, harvest.ErrNotFound) {
			log.Printf("permissions api %d: no tagged tree with a core manifest, skipped", level.API)
			continue
		}
		if err != nil {
			return fmt.Errorf("permissions api %d: %w", level.API, err)
		}
		if err := o.Writer.WritePermissions(strconv.Itoa(level.API), perms); err != nil {
			return err
		}
		log.Printf("permissions api %d: %d permissions from %s", level.API, len(perms.Permissions), build.Tag)
	}
	return nil
}

func (o *Orchestrator) harvestMappings(ctx context.Context, catalog *versions.Catalog) error {
	log.Println("harvesting api-to-permission mappings")
	for _, level := range harvestableLevels(catalog) {
		if level.API < minMappingLevel {
			continue
		}
		task := &harvest.APIMappingTask{Repo: o.Repo, API: level.API}
		mappings, _, err := harvest.ResolveLatest(ctx, catalog, level, task)
		if errors.Is(err, harvest.ErrNotFound) {
			log.Printf("mappings sdk %d: no platform package published, skipped", level.API)
			continue
		}
		if err != nil {
			return fmt.Errorf("mappings sdk %d: %w", level.API, err)
		}
		if err := o.Writer.WritePermissionMappings(level.API, mappings); err != nil {
			return err
		}
		log.Printf("mappings sdk %d: %d annotated api surfaces", level.API, len(mappings))
	}
	return nil
}

func (o *Orchestrator) harvestProviders(ctx context.Context) error {
	log.Println("harvesting content providers")
	task := &harvest.ProviderTask{Search: o.Search, Source: o.Source, Cache: o.Cache}
	res, err := task.Harvest(ctx, source.MainRef)
	if err != nil {
		return fmt.Errorf("providers at %s: %w", source.MainRef, err)
	}
	if err := o.Writer.WriteProviders(res); err != nil {
		return err
	}
	log.Printf("providers: %d total, %d permission protected", len(res.All), len(res.NeedsPermission))
	return nil
}

// harvestableLevels filters the catalog down to the levels whose
// sources are worth visiting.
func harvestableLevels(catalog *versions.Catalog) []versions.APILevel {
	var out []versions.APILevel
	for _, level := range catalog.APILevels() {
		if level.API < minPermissionLevel || skippedLevels[level.API] {
			continue
		}
		out = append(out, level)
	}
	return out
}
