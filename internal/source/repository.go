package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"runtime"
	"strings"

	"androidinfo/internal/cache/disk"
	"androidinfo/internal/httpx"
)

// DefaultRepositoryURL is the SDK package repository root.
const DefaultRepositoryURL = "https://dl.google.com/android/repository"

// StableChannel is channel-0 in the SDK repository manifest.
const StableChannel = "channel-0"

const repositoryManifest = "repository2-1.xml"

// RemotePackage is one installable SDK package from the repository
// manifest, e.g. platforms;android-30.
type RemotePackage struct {
	Path     string
	Channel  string
	Revision int
	Archives []Archive
}

// Archive is one downloadable artifact of a RemotePackage.
type Archive struct {
	HostOS string
	URL    string
}

// Repository fetches SDK packages, caching downloaded archives on disk
// across runs (platform zips run to tens of megabytes).
type Repository struct {
	session *httpx.Session
	baseURL string
	cache   *disk.Store

	packages []RemotePackage
}

func NewRepository(session *httpx.Session, baseURL string, cache *disk.Store) *Repository {
	if baseURL == "" {
		baseURL = DefaultRepositoryURL
	}
	return &Repository{
		session: session,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache,
	}
}

type repositoryXML struct {
	RemotePackages []struct {
		Path       string `xml:"path,attr"`
		ChannelRef struct {
			Ref string `xml:"ref,attr"`
		} `xml:"channelRef"`
		Revision struct {
			Major int `xml:"major"`
		} `xml:"revision"`
		Archives []struct {
			HostOS   string `xml:"host-os"`
			Complete struct {
				URL string `xml:"url"`
			} `xml:"complete"`
		} `xml:"archives>archive"`
	} `xml:"remotePackage"`
}

func (r *Repository) loadPackages(ctx context.Context) error {
	if r.packages != nil {
		return nil
	}
	body, err := r.session.Get(ctx, r.baseURL+"/"+repositoryManifest)
	if err != nil {
		return fmt.Errorf("fetch sdk repository manifest: %w", err)
	}
	var manifest repositoryXML
	if err := xml.Unmarshal(body, &manifest); err != nil {
		return fmt.Errorf("parse sdk repository manifest: %w", err)
	}
	pkgs := make([]RemotePackage, 0, len(manifest.RemotePackages))
	for _, p := range manifest.RemotePackages {
		pkg := RemotePackage{
			Path:     p.Path,
			Channel:  p.ChannelRef.Ref,
			Revision: p.Revision.Major,
		}
		for _, a := range p.Archives {
			pkg.Archives = append(pkg.Archives, Archive{HostOS: a.HostOS, URL: a.Complete.URL})
		}
		pkgs = append(pkgs, pkg)
	}
	r.packages = pkgs
	return nil
}

// LatestPackage returns the highest-revision package matching path and
// channel, or a 404 StatusError when the repository has none.
func (r *Repository) LatestPackage(ctx context.Context, path, channel string) (*RemotePackage, error) {
	if err := r.loadPackages(ctx); err != nil {
		return nil, err
	}
	var latest *RemotePackage
	for i := range r.packages {
		p := &r.packages[i]
		if p.Path != path || p.Channel != channel {
			continue
		}
		if latest == nil || p.Revision > latest.Revision {
			latest = p
		}
	}
	if latest == nil {
		return nil, &httpx.StatusError{URL: r.baseURL + "/" + path, Code: 404}
	}
	out := *latest
	return &out, nil
}

// ArchiveURL picks the archive for the current host OS. Packages with a
// single OS-independent archive return that archive.
func (p *RemotePackage) ArchiveURL() (string, error) {
	switch len(p.Archives) {
	case 0:
		return "", fmt.Errorf("package %s: no archives available", p.Path)
	case 1:
		return p.Archives[0].URL, nil
	}
	want := map[string]string{
		"windows": "windows",
		"linux":   "linux",
		"darwin":  "macosx",
	}[runtime.GOOS]
	if want == "" {
		return "", fmt.Errorf("package %s: unsupported system %s", p.Path, runtime.GOOS)
	}
	for _, a := range p.Archives {
		if a.HostOS == want {
			return a.URL, nil
		}
	}
	return "", fmt.Errorf("package %s: no archive for host os %s", p.Path, want)
}

// DownloadArchive fetches an archive by repository-relative URL, served
// from the disk cache when present.
func (r *Repository) DownloadArchive(ctx context.Context, archiveURL string) ([]byte, error) {
	if r.cache != nil {
		if data, ok, err := r.cache.Get(ctx, archiveURL); err != nil {
			return nil, err
		} else if ok {
			return data, nil
		}
	}
	data, err := r.session.Get(ctx, r.baseURL+"/"+archiveURL)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Put(ctx, archiveURL, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}
