// Package source talks to the upstream code hosts: the gitiles mirror
// for source files at a ref, the code-search service for locating
// provider manifests, and the SDK repository for platform zips.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"androidinfo/internal/httpx"
)

// MainRef is the always-latest, unversioned tree reference.
const MainRef = "refs/heads/main"

// DefaultGitilesURL is the upstream gitiles host.
const DefaultGitilesURL = "https://android.googlesource.com"

// CodePath addresses one file inside one project of the source tree.
type CodePath struct {
	Project string
	Path    string
}

// FullPath renders the project-qualified path.
func (p CodePath) FullPath() string {
	return p.Project + "/" + p.Path
}

// GoogleSource fetches raw files from the gitiles mirror. Fetched
// contents are memoized per (ref, path) for the lifetime of the client
// since a run re-reads the same strings.xml and manifests repeatedly.
type GoogleSource struct {
	session *httpx.Session
	baseURL string
	files   *lru.Cache[string, string]
}

func NewGoogleSource(session *httpx.Session, baseURL string) (*GoogleSource, error) {
	if baseURL == "" {
		baseURL = DefaultGitilesURL
	}
	cache, err := lru.New[string, string](256)
	if err != nil {
		return nil, err
	}
	return &GoogleSource{
		session: session,
		baseURL: strings.TrimRight(baseURL, "/"),
		files:   cache,
	}, nil
}

// SourceFile returns the decoded content of a file at a ref. A missing
// file or ref surfaces as a 404 StatusError from the session.
func (g *GoogleSource) SourceFile(ctx context.Context, p CodePath, ref string) (string, error) {
	key := ref + "\x00" + p.FullPath()
	if content, ok := g.files.Get(key); ok {
		return content, nil
	}
	u := fmt.Sprintf("%s/%s/+/%s/%s?format=TEXT", g.baseURL, p.Project, ref, p.Path)
	body, err := g.session.Get(ctx, u)
	if err != nil {
		return "", err
	}
	// gitiles serves file contents base64-encoded in TEXT format.
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return "", fmt.Errorf("decode %s at %s: %w", p.FullPath(), ref, err)
	}
	content := string(decoded)
	g.files.Add(key, content)
	return content, nil
}

// Exists reports whether a project has the given ref at all.
func (g *GoogleSource) Exists(ctx context.Context, project, ref string) (bool, error) {
	u := fmt.Sprintf("%s/%s/+/%s?format=JSON", g.baseURL, project, ref)
	_, err := g.session.Get(ctx, u)
	if err != nil {
		if httpx.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
