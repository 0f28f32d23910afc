package harvest

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strings"

	"androidinfo/internal/cache/disk"
	"androidinfo/internal/source"
)

// ContentProvider is one <provider> declaration harvested from a
// platform app manifest.
type ContentProvider struct {
	Package             string          `json:"package"`
	Name                string          `json:"name"`
	Authorities         []string        `json:"authorities"`
	Exported            bool            `json:"exported"`
	ReadPermission      *string         `json:"read_permission"`
	WritePermission     *string         `json:"write_permission"`
	HasURIPermission    bool            `json:"has_uri_permission"`
	GrantURIPermissions []URIPermission `json:"grant_uri_permissions"`
}

// URIPermission is a <grant-uri-permission> child of a provider. Type
// is whichever of path, pathPrefix or pathPattern the element declares.
type URIPermission struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// NeedsPermission reports whether reading or writing the provider is
// gated by a permission.
func (p *ContentProvider) NeedsPermission() bool {
	return p.ReadPermission != nil || p.WritePermission != nil
}

// ProviderResult carries every exported provider plus the
// permission-protected subset.
type ProviderResult struct {
	All             []ContentProvider
	NeedsPermission []ContentProvider
}

// ProviderTask harvests content-provider declarations from the
// AndroidManifest.xml files code search reports across the platform
// superproject.
type ProviderTask struct {
	Search *source.CodeSearch
	Source *source.GoogleSource
	Cache  *disk.Store
}

func (t *ProviderTask) Harvest(ctx context.Context, ref string) (ProviderResult, error) {
	byProject, err := t.Search.ProviderManifestPaths(ctx)
	if err != nil {
		return ProviderResult{}, err
	}

	projects := make([]string, 0, len(byProject))
	for project := range byProject {
		projects = append(projects, project)
	}
	sort.Strings(projects)

	all := []ContentProvider{}
	seen := map[string]bool{}
	for _, project := range projects {
		ok, err := t.Source.Exists(ctx, project, ref)
		if err != nil {
			return ProviderResult{}, err
		}
		if !ok {
			continue
		}
		for _, cp := range byProject[project] {
			content, err := t.manifest(ctx, cp, ref)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return ProviderResult{}, err
			}
			providers, err := parseProviderManifest([]byte(content))
			if err != nil {
				return ProviderResult{}, fmt.Errorf("%s: %w", cp.FullPath(), err)
			}
			for _, p := range providers {
				key := dedupProviderKey(p)
				if seen[key] {
					continue
				}
				seen[key] = true
				all = append(all, p)
			}
		}
	}
	// Zero harvested providers is still a successful harvest: both
	// snapshots are written as empty lists.
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	res := ProviderResult{All: all, NeedsPermission: []ContentProvider{}}
	for _, p := range all {
		if p.NeedsPermission() {
			res.NeedsPermission = append(res.NeedsPermission, p)
		}
	}
	return res, nil
}

// manifest fetches one manifest file, memoized on disk so reruns over
// the same ref skip the network entirely.
func (t *ProviderTask) manifest(ctx context.Context, cp source.CodePath, ref string) (string, error) {
	key := ref + "\x00" + cp.FullPath()
	if t.Cache != nil {
		cached, ok, err := t.Cache.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			return string(cached), nil
		}
	}
	content, err := t.Source.SourceFile(ctx, cp, ref)
	if err != nil {
		return "", mapNotFound(err)
	}
	if t.Cache != nil {
		if err := t.Cache.Put(ctx, key, []byte(content)); err != nil {
			return "", err
		}
	}
	return content, nil
}

type providerManifest struct {
	Package     string `xml:"package,attr"`
	Application struct {
		Providers []providerElement `xml:"provider"`
	} `xml:"application"`
}

type providerElement struct {
	Attrs     []xml.Attr `xml:",any,attr"`
	GrantURIs []struct {
		Attrs []xml.Attr `xml:",any,attr"`
	} `xml:"grant-uri-permission"`
}

func parseProviderManifest(raw []byte) ([]ContentProvider, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	var doc providerManifest
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	var out []ContentProvider
	for _, el := range doc.Application.Providers {
		p, ok, err := buildProvider(doc.Package, el)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// buildProvider assembles one provider, dropping entries that are not
// externally reachable (unexported and not granting URI permissions).
func buildProvider(pkg string, el providerElement) (ContentProvider, bool, error) {
	attr := func(name string) *string {
		for _, a := range el.Attrs {
			if a.Name.Local == name {
				v := a.Value
				return &v
			}
		}
		return nil
	}

	name := attr("name")
	authorities := attr("authorities")
	if name == nil || authorities == nil {
		return ContentProvider{}, false, nil
	}

	exported, err := boolAttr(attr("exported"))
	if err != nil {
		return ContentProvider{}, false, err
	}
	grantURI, err := boolAttr(attr("grantUriPermissions"))
	if err != nil {
		return ContentProvider{}, false, err
	}
	if !exported && !grantURI {
		return ContentProvider{}, false, nil
	}

	// android:permission is the fallback for both directions; the
	// direction-specific attributes override it.
	readPermission := attr("permission")
	writePermission := readPermission
	if v := attr("readPermission"); v != nil {
		readPermission = v
	}
	if v := attr("writePermission"); v != nil {
		writePermission = v
	}

	p := ContentProvider{
		Package:          pkg,
		Name:             resolveProviderName(pkg, *name),
		Authorities:      splitAuthorities(pkg, *authorities),
		Exported:         exported,
		ReadPermission:   readPermission,
		WritePermission:  writePermission,
		HasURIPermission: grantURI,
	}
	for _, g := range el.GrantURIs {
		for _, pathType := range []string{"path", "pathPrefix", "pathPattern"} {
			var value *string
			for _, a := range g.Attrs {
				if a.Name.Local == pathType {
					v := a.Value
					value = &v
					break
				}
			}
			if value != nil {
				p.GrantURIPermissions = append(p.GrantURIPermissions, URIPermission{Type: pathType, Path: *value})
				break
			}
		}
	}
	return p, true, nil
}

// boolAttr parses an optional manifest boolean, absent meaning false.
// Anything but "true"/"false" is a malformed manifest.
func boolAttr(v *string) (bool, error) {
	if v == nil {
		return false, nil
	}
	switch *v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("unknown boolean string: %s", *v)
	}
}

func dedupProviderKey(p ContentProvider) string {
	var sb strings.Builder
	sb.WriteString(p.Package)
	sb.WriteByte(0)
	sb.WriteString(p.Name)
	sb.WriteByte(0)
	sb.WriteString(strings.Join(p.Authorities, ";"))
	return sb.String()
}

// resolveProviderName expands manifest shorthand class names
// (".Provider" or a bare name) against the manifest package.
func resolveProviderName(pkg, name string) string {
	if strings.HasPrefix(name, ".") {
		return pkg + name
	}
	if !strings.Contains(name, ".") {
		return pkg + "." + name
	}
	return name
}

func splitAuthorities(pkg, raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, a := range parts {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		a = strings.ReplaceAll(a, "${packageName}", pkg)
		a = strings.ReplaceAll(a, "${applicationId}", pkg)
		out = append(out, a)
	}
	return out
}
