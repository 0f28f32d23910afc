package versions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"androidinfo/internal/httpx"
)

const buildNumbersPage = `<html><body>
<h2 id="platform-code-names-versions-api-levels-and-ndk-releases">Codenames</h2>
<table><tbody>
<tr><td>Android11</td><td>11</td><td>API level 30</td></tr>
<tr><td>Pie</td><td>9</td><td>API level 28, NDK 18</td></tr>
<tr><td>no codename</td><td>1.0</td><td>API level 1</td></tr>
</tbody></table>
<h2 id="build">Build IDs</h2>
<table><tbody>
<tr><td>RQ1A.210105.003</td><td>android-11.0.0_r29</td><td>Android11</td><td>x</td><td>2021-01-05</td></tr>
<tr><td>RP1A.200720.009</td><td>android-11.0.0_r1</td><td></td><td>x</td><td></td></tr>
<tr><td>PQ3B.190801.002</td><td>android-security-9.0.0_r76</td><td>Pie</td><td>x</td><td></td></tr>
<tr><td>header junk</td><td>not-a-tag</td><td></td><td>x</td><td></td></tr>
</tbody></table>
<h2 id="honeycomb-gpl-modules">Honeycomb</h2>
<table><tbody>
<tr><td>HRI39</td><td>android-3.0.1_r1</td></tr>
</tbody></table>
</body></html>`

func fetchTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildNumbersPage))
	}))
	t.Cleanup(srv.Close)

	client := &BuildNumbersClient{
		Session: httpx.NewSession(httpx.WithHTTPClient(srv.Client())),
		URL:     srv.URL,
	}
	catalog, err := client.FetchCatalog(context.Background())
	require.NoError(t, err)
	return catalog
}

func TestFetchCatalogParsesTags(t *testing.T) {
	catalog := fetchTestCatalog(t)

	builds := catalog.BuildVersions()
	require.Len(t, builds, 4)

	latest := catalog.LatestBuildVersion("11.0.0")
	require.NotNil(t, latest)
	require.Equal(t, "android-11.0.0_r29", latest.Tag)
	require.Equal(t, "29", latest.Revision)
	require.False(t, latest.IsSecurity)

	sec := catalog.LatestBuildVersion("9.0.0")
	require.NotNil(t, sec)
	require.Equal(t, "android-security-9.0.0_r76", sec.Tag)
	require.True(t, sec.IsSecurity)

	require.Nil(t, catalog.LatestBuildVersion("6.0.0"))
}

func TestFetchCatalogParsesAPILevels(t *testing.T) {
	catalog := fetchTestCatalog(t)

	levels := catalog.APILevels()
	byAPI := map[int]APILevel{}
	for _, l := range levels {
		byAPI[l.API] = l
	}

	require.Contains(t, byAPI, 30)
	require.Contains(t, byAPI, 28)
	require.Contains(t, byAPI, 1)

	// Synthesized KitKat Wear entry.
	wear, ok := byAPI[20]
	require.True(t, ok)
	require.Equal(t, "4.4w", wear.VersionRange)
	require.Equal(t, []string{"4.4w"}, wear.Versions)

	// NDK back-fill: level 30 has no NDK cell, inherits 28's.
	require.NotNil(t, byAPI[30].NDK)
	require.Equal(t, 18, *byAPI[30].NDK)

	// "no codename" collapses to nil.
	require.Nil(t, byAPI[1].Name)

	// Point versions attach from the static table, oldest first.
	require.Equal(t, []string{"11.0.0"}, byAPI[30].Versions)
}

func TestFetchCatalogHoneycombTags(t *testing.T) {
	catalog := fetchTestCatalog(t)
	hc := catalog.LatestBuildVersion("3.0.1")
	require.NotNil(t, hc)
	require.Equal(t, "android-3.0.1_r1", hc.Tag)
	require.NotNil(t, hc.Name)
	require.Equal(t, "Honeycomb", *hc.Name)
}
