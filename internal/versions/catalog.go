package versions

import (
	"sort"
)

// Catalog holds the full release/tag universe for one run.
type Catalog struct {
	apiLevels     []APILevel
	buildVersions []BuildVersion
}

// NewCatalog builds a catalog from parsed levels and tags. Build
// versions are sorted ascending by (version, revision); API levels
// ascending by level.
func NewCatalog(apiLevels []APILevel, buildVersions []BuildVersion) *Catalog {
	levels := make([]APILevel, len(apiLevels))
	copy(levels, apiLevels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].API < levels[j].API })

	builds := make([]BuildVersion, len(buildVersions))
	copy(builds, buildVersions)
	sort.Slice(builds, func(i, j int) bool { return builds[i].CompareTo(builds[j]) < 0 })

	return &Catalog{apiLevels: levels, buildVersions: builds}
}

// APILevels lists all known API levels, ascending.
func (c *Catalog) APILevels() []APILevel {
	out := make([]APILevel, len(c.apiLevels))
	copy(out, c.apiLevels)
	return out
}

// BuildVersions lists all known build tags, ascending by version.
func (c *Catalog) BuildVersions() []BuildVersion {
	out := make([]BuildVersion, len(c.buildVersions))
	copy(out, c.buildVersions)
	return out
}

// BuildVersionsFor returns every tag belonging to a point version.
func (c *Catalog) BuildVersionsFor(version string) []BuildVersion {
	var out []BuildVersion
	for _, b := range c.buildVersions {
		if b.MatchVersion(version) {
			out = append(out, b)
		}
	}
	return out
}

// LatestBuildVersion resolves a point version to its most recent tag.
// A version with no tag yields nil; that is a normal value, not an
// error condition.
func (c *Catalog) LatestBuildVersion(version string) *BuildVersion {
	matches := c.BuildVersionsFor(version)
	if len(matches) == 0 {
		return nil
	}
	latest := matches[0]
	for _, b := range matches[1:] {
		if b.CompareTo(latest) > 0 {
			latest = b
		}
	}
	return &latest
}
