// Package versions models the Android release universe: API levels,
// their point versions and the concrete build tags that can be fetched
// from source control. The catalog is loaded once per run and read-only
// afterwards.
package versions

// BuildVersion is one concrete, fetchable source-tree tag, parsed from
// tags shaped android(-security)?-<version>_r<revision>.
type BuildVersion struct {
	Tag                string  `json:"tag"`
	Name               *string `json:"name"`
	Version            string  `json:"version"`
	Revision           string  `json:"revision"`
	IsSecurity         bool    `json:"is_security"`
	BuildID            string  `json:"build_id"`
	SecurityPatchLevel *string `json:"security_patch_level"`
}

// ShortVersion combines version and revision for ordering between tags
// of the same release.
func (b BuildVersion) ShortVersion() string {
	return b.Version + "_" + b.Revision
}

// MatchVersion reports whether the tag belongs to the given point version.
func (b BuildVersion) MatchVersion(version string) bool {
	return Compare(b.Version, version) == 0
}

// CompareTo orders two tags by (version, revision).
func (b BuildVersion) CompareTo(other BuildVersion) int {
	return Compare(b.ShortVersion(), other.ShortVersion())
}

// APILevel is one platform release: an API level, its codename and the
// ordered (oldest to newest) point versions belonging to it.
type APILevel struct {
	Name         *string  `json:"name"`
	VersionRange string   `json:"version_range"`
	API          int      `json:"api"`
	NDK          *int     `json:"ndk"`
	Versions     []string `json:"versions"`
}
