package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"androidinfo/internal/httpx"
)

// DefaultCodeSearchURL is the search endpoint used to locate provider
// manifests across the platform superproject.
const DefaultCodeSearchURL = "https://grimoireoss-pa.clients6.google.com/batch"

// providerManifestQuery matches AndroidManifest.xml files declaring a
// provider with authorities that is exported or grants URI permissions,
// excluding samples, tests and prebuilts.
const providerManifestQuery = `lang:xml file:AndroidManifest.xml ` +
	`content:<provider content:android\:authorities ` +
	`(content:android\:exported="true" OR content:android\:grantUriPermissions="true")` +
	`-path:sample -path:samples -path:example -path:developers -path:cts -path:test -path:prebuilts -path:tools`

// CodeSearch pages through search results for provider manifests.
type CodeSearch struct {
	session    *httpx.Session
	baseURL    string
	project    string
	repository string
}

func NewCodeSearch(session *httpx.Session, baseURL string) *CodeSearch {
	if baseURL == "" {
		baseURL = DefaultCodeSearchURL
	}
	return &CodeSearch{
		session:    session,
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    "android",
		repository: "platform/superproject/main",
	}
}

type searchPage struct {
	Results []struct {
		Project string `json:"project"`
		Path    string `json:"path"`
	} `json:"results"`
	NextPageToken string `json:"next_page_token"`
}

// ProviderManifestPaths runs the provider query across all result pages
// and groups the matched manifest paths by project.
func (c *CodeSearch) ProviderManifestPaths(ctx context.Context) (map[string][]CodePath, error) {
	result := map[string][]CodePath{}
	seen := map[CodePath]bool{}
	pageToken := ""
	for {
		page, err := c.fetchPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			p := CodePath{Project: r.Project, Path: r.Path}
			if seen[p] {
				continue
			}
			seen[p] = true
			result[p.Project] = append(result[p.Project], p)
		}
		if page.NextPageToken == "" {
			return result, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *CodeSearch) fetchPage(ctx context.Context, pageToken string) (*searchPage, error) {
	q := url.Values{}
	q.Set("query", providerManifestQuery)
	q.Set("project", c.project)
	q.Set("repository", c.repository)
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	body, err := c.session.Get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("code search: %w", err)
	}
	var page searchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("code search: decode page: %w", err)
	}
	return &page, nil
}
