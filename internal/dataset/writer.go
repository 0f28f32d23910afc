// Package dataset lays out harvested snapshots as JSON files under one
// output root.
package dataset

import (
	"fmt"
	"path"

	"androidinfo/internal/harvest"
	"androidinfo/internal/jsonutil"
	"androidinfo/internal/safeio"
	"androidinfo/internal/versions"
)

// ReleaseLabel marks snapshots harvested from the unversioned main tree
// rather than from a tagged release.
const ReleaseLabel = "REL"

const (
	permissionsDir = "permissions"
	mappingsDir    = "permission_mappings"
)

// Writer owns the output root. Prepare wipes it so every run produces a
// complete, self-consistent dataset with no stale leftovers.
type Writer struct {
	dir *safeio.Dir
}

func NewWriter(root string) (*Writer, error) {
	dir, err := safeio.NewDir(root)
	if err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

func (w *Writer) Root() string {
	return w.dir.Root()
}

// Prepare empties the output root and recreates the dataset layout.
func (w *Writer) Prepare() error {
	if err := w.dir.Reset(); err != nil {
		return err
	}
	for _, d := range []string{permissionsDir, mappingsDir} {
		if err := w.dir.MkdirAll(d); err != nil {
			return err
		}
	}
	return nil
}

// writeJSON marshals v with four-space indentation and writes it
// atomically, so a crash mid-write never leaves a torn file behind.
func (w *Writer) writeJSON(rel string, v any) error {
	data, err := jsonutil.MarshalNoEscapeIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rel, err)
	}
	if err := w.dir.WriteFileAtomic(rel, data); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// WriteAPILevels snapshots the API-level table keyed by level.
func (w *Writer) WriteAPILevels(levels []versions.APILevel) error {
	byLevel := make(map[string]versions.APILevel, len(levels))
	for _, l := range levels {
		byLevel[fmt.Sprint(l.API)] = l
	}
	return w.writeJSON("api_levels.json", byLevel)
}

// WriteBuildVersions snapshots the build-tag table keyed by tag.
func (w *Writer) WriteBuildVersions(builds []versions.BuildVersion) error {
	byTag := make(map[string]versions.BuildVersion, len(builds))
	for _, b := range builds {
		byTag[b.Tag] = b
	}
	return w.writeJSON("build_versions.json", byTag)
}

// WritePermissions stores one permission-definitions snapshot. label is
// either an API level rendered as digits or ReleaseLabel.
func (w *Writer) WritePermissions(label string, p harvest.Permissions) error {
	return w.writeJSON(path.Join(permissionsDir, fmt.Sprintf("permissions-%s.json", label)), p)
}

// WritePermissionMappings stores the API-to-permission mappings of one
// SDK level.
func (w *Writer) WritePermissionMappings(api int, mappings []harvest.APIPermission) error {
	return w.writeJSON(path.Join(mappingsDir, fmt.Sprintf("sdk-%d.json", api)), mappings)
}

// WriteProviders stores the full provider list and the
// permission-protected subset as separate snapshots.
func (w *Writer) WriteProviders(res harvest.ProviderResult) error {
	all := fmt.Sprintf("all_content_providers-%s.json", ReleaseLabel)
	if err := w.writeJSON(path.Join(mappingsDir, all), res.All); err != nil {
		return err
	}
	subset := fmt.Sprintf("permission_content_providers-%s.json", ReleaseLabel)
	return w.writeJSON(path.Join(mappingsDir, subset), res.NeedsPermission)
}
