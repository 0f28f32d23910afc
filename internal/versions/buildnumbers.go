package versions

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"androidinfo/internal/httpx"
)

// DefaultBuildNumbersURL is the upstream page listing build IDs, tags
// and API levels.
const DefaultBuildNumbersURL = "https://source.android.com/docs/setup/about/build-numbers"

var (
	tagPattern    = regexp.MustCompile(`^android(-security)?-(.*)_r(.*)$`)
	apiNDKPattern = regexp.MustCompile(`API level (\d+)(, NDK (\d+))?`)
)

// BuildNumbersClient scrapes the release/tag universe from the upstream
// build-numbers documentation page.
type BuildNumbersClient struct {
	Session *httpx.Session
	URL     string
}

// FetchCatalog downloads and parses the build-numbers page into a
// Catalog. Transport errors propagate unchanged.
func (c *BuildNumbersClient) FetchCatalog(ctx context.Context) (*Catalog, error) {
	url := c.URL
	if url == "" {
		url = DefaultBuildNumbersURL
	}
	body, err := c.Session.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch build numbers: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse build numbers page: %w", err)
	}

	builds, err := parseBuildTable(doc, "build", false)
	if err != nil {
		return nil, err
	}
	// Honeycomb tags live in their own GPL-modules table.
	honeycomb, err := parseBuildTable(doc, "honeycomb-gpl-modules", true)
	if err != nil {
		return nil, err
	}
	builds = append(builds, honeycomb...)

	levels, err := parseAPILevelTable(doc)
	if err != nil {
		return nil, err
	}
	levels = append(levels, kitkatWear())
	levels = backfillNDK(levels)
	for i := range levels {
		levels[i].Versions = VersionsForAPI(levels[i].API)
	}

	return NewCatalog(levels, builds), nil
}

// kitkatWear synthesizes API level 20, which the upstream table omits.
func kitkatWear() APILevel {
	name := "KitKat Wear"
	return APILevel{Name: &name, VersionRange: "4.4w", API: 20}
}

// backfillNDK fills missing NDK values with the nearest lower level's.
func backfillNDK(levels []APILevel) []APILevel {
	sort.Slice(levels, func(i, j int) bool { return levels[i].API < levels[j].API })
	var current *int
	for i := range levels {
		if levels[i].NDK != nil {
			current = levels[i].NDK
		} else {
			levels[i].NDK = current
		}
	}
	return levels
}

func parseBuildTable(doc *html.Node, sectionID string, honeycomb bool) ([]BuildVersion, error) {
	tbody := tbodyAfterID(doc, sectionID)
	if tbody == nil {
		return nil, fmt.Errorf("build numbers page: section %q not found", sectionID)
	}
	var out []BuildVersion
	for _, row := range tableRows(tbody) {
		if len(row) < 2 {
			continue
		}
		m := tagPattern.FindStringSubmatch(strings.TrimSpace(row[1]))
		if m == nil {
			continue
		}
		b := BuildVersion{
			Tag:        m[0],
			Version:    m[2],
			Revision:   m[3],
			IsSecurity: m[1] != "",
			BuildID:    strings.TrimSpace(row[0]),
		}
		if honeycomb {
			name := "Honeycomb"
			b.Name = &name
		} else {
			if len(row) > 2 {
				b.Name = emptyToNil(row[2])
			}
			if len(row) > 4 {
				b.SecurityPatchLevel = emptyToNil(row[4])
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func parseAPILevelTable(doc *html.Node) ([]APILevel, error) {
	const sectionID = "platform-code-names-versions-api-levels-and-ndk-releases"
	tbody := tbodyAfterID(doc, sectionID)
	if tbody == nil {
		return nil, fmt.Errorf("build numbers page: section %q not found", sectionID)
	}
	var out []APILevel
	for _, row := range tableRows(tbody) {
		if len(row) < 3 {
			continue
		}
		m := apiNDKPattern.FindStringSubmatch(strings.TrimSpace(row[2]))
		if m == nil {
			continue
		}
		api, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("build numbers page: bad api level %q", m[1])
		}
		level := APILevel{
			Name:         parseCodename(row[0]),
			VersionRange: strings.TrimSpace(row[1]),
			API:          api,
		}
		if m[3] != "" {
			ndk, err := strconv.Atoi(m[3])
			if err != nil {
				return nil, fmt.Errorf("build numbers page: bad ndk level %q", m[3])
			}
			level.NDK = &ndk
		}
		out = append(out, level)
	}
	return out, nil
}

func parseCodename(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(text, "no codename") {
		return nil
	}
	return &text
}

func emptyToNil(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}

// tbodyAfterID returns the first tbody element appearing after the node
// carrying the given id attribute, in document order.
func tbodyAfterID(doc *html.Node, id string) *html.Node {
	var (
		found  bool
		result *html.Node
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if result != nil {
			return
		}
		if n.Type == html.ElementNode {
			if !found && attrValue(n, "id") == id {
				found = true
			} else if found && n.Data == "tbody" {
				result = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return result
}

// tableRows extracts the trimmed cell texts of every tr under tbody.
func tableRows(tbody *html.Node) [][]string {
	var rows [][]string
	for tr := tbody.FirstChild; tr != nil; tr = tr.NextSibling {
		if tr.Type != html.ElementNode || tr.Data != "tr" {
			continue
		}
		var cells []string
		for td := tr.FirstChild; td != nil; td = td.NextSibling {
			if td.Type != html.ElementNode || td.Data != "td" {
				continue
			}
			cells = append(cells, strings.TrimSpace(nodeText(td)))
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
