package harvest

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"androidinfo/internal/cache/disk"
	"androidinfo/internal/httpx"
	"androidinfo/internal/source"
)

const contactsManifest = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
    package="com.android.contacts">
  <application>
    <provider android:name=".ContactsProvider"
        android:authorities="com.android.contacts;contacts"
        android:exported="true"
        android:readPermission="android.permission.READ_CONTACTS"
        android:writePermission="android.permission.WRITE_CONTACTS" />
    <provider android:name="InternalProvider"
        android:authorities="com.android.contacts.internal"
        android:exported="false" />
    <provider android:name=".DirectoryProvider"
        android:authorities="com.android.contacts.directory"
        android:exported="true"
        android:permission="android.permission.MANAGE_USERS"
        android:writePermission="android.permission.WRITE_CONTACTS" />
    <provider android:name="com.android.contacts.files.FileProvider"
        android:authorities="${applicationId}.files"
        android:exported="false"
        android:grantUriPermissions="true">
      <grant-uri-permission android:pathPrefix="/shared/" />
      <grant-uri-permission android:pathPattern=".*\.vcf" />
    </provider>
  </application>
</manifest>
`

// searchFixture serves JSON result pages keyed by page token: the
// first page answers an empty token, later pages answer the token the
// previous page advertised as next_page_token.
func searchFixture(t *testing.T, pages map[string]string) *source.CodeSearch {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Query().Get("page_token")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	return source.NewCodeSearch(httpx.NewSession(httpx.WithHTTPClient(srv.Client()), httpx.WithDelay(0)), srv.URL)
}

func providerPages() map[string]string {
	return map[string]string{
		"": `{
			"results": [{"project": "platform/packages/apps/Contacts", "path": "AndroidManifest.xml"}],
			"next_page_token": "page-2"
		}`,
		"page-2": `{
			"results": [
				{"project": "platform/packages/apps/Contacts", "path": "AndroidManifest.xml"},
				{"project": "platform/packages/apps/Legacy", "path": "AndroidManifest.xml"}
			]
		}`,
	}
}

func TestProviderTaskHarvest(t *testing.T) {
	var textFetches atomic.Int64
	gitiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/platform/packages/apps/Contacts/+/main/AndroidManifest.xml"):
			textFetches.Add(1)
			w.Write([]byte(base64.StdEncoding.EncodeToString([]byte(contactsManifest))))
		case r.URL.Path == "/platform/packages/apps/Contacts/+/main":
			w.Write([]byte(")]}'\n{}"))
		default:
			// the Legacy project has no such ref
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(gitiles.Close)

	cache, err := disk.NewStore(disk.Config{Root: t.TempDir()})
	require.NoError(t, err)

	newTask := func() *ProviderTask {
		session := httpx.NewSession(httpx.WithHTTPClient(gitiles.Client()), httpx.WithDelay(0))
		src, err := source.NewGoogleSource(session, gitiles.URL)
		require.NoError(t, err)
		return &ProviderTask{
			Search: searchFixture(t, providerPages()),
			Source: src,
			Cache:  cache,
		}
	}

	out, err := newTask().Harvest(context.Background(), "main")
	require.NoError(t, err)

	// the unexported, non-granting provider is dropped
	require.Len(t, out.All, 3)

	contacts := out.All[0]
	require.Equal(t, "com.android.contacts.ContactsProvider", contacts.Name)
	require.Equal(t, "com.android.contacts", contacts.Package)
	require.Equal(t, []string{"com.android.contacts", "contacts"}, contacts.Authorities)
	require.True(t, contacts.Exported)
	require.Equal(t, "android.permission.READ_CONTACTS", *contacts.ReadPermission)
	require.Equal(t, "android.permission.WRITE_CONTACTS", *contacts.WritePermission)
	require.False(t, contacts.HasURIPermission)

	directory := out.All[1]
	require.Equal(t, "com.android.contacts.DirectoryProvider", directory.Name)
	// android:permission covers both directions until overridden
	require.Equal(t, "android.permission.MANAGE_USERS", *directory.ReadPermission)
	require.Equal(t, "android.permission.WRITE_CONTACTS", *directory.WritePermission)
	require.True(t, directory.NeedsPermission())

	files := out.All[2]
	require.Equal(t, "com.android.contacts.files.FileProvider", files.Name)
	require.Equal(t, []string{"com.android.contacts.files"}, files.Authorities)
	require.False(t, files.Exported)
	require.True(t, files.HasURIPermission)
	require.Equal(t, []URIPermission{
		{Type: "pathPrefix", Path: "/shared/"},
		{Type: "pathPattern", Path: `.*\.vcf`},
	}, files.GrantURIPermissions)
	require.False(t, files.NeedsPermission())

	require.Len(t, out.NeedsPermission, 2)
	require.Equal(t, "com.android.contacts.ContactsProvider", out.NeedsPermission[0].Name)
	require.Equal(t, "com.android.contacts.DirectoryProvider", out.NeedsPermission[1].Name)

	// a second harvest with a fresh client reads the manifest from the
	// disk cache instead of the network
	fetched := textFetches.Load()
	_, err = newTask().Harvest(context.Background(), "main")
	require.NoError(t, err)
	require.Equal(t, fetched, textFetches.Load())
}

func TestProviderTaskNoManifestsIsEmptySuccess(t *testing.T) {
	// every searched project lacks the ref: the harvest still succeeds,
	// with empty snapshots
	gitiles := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(gitiles.Close)

	session := httpx.NewSession(httpx.WithHTTPClient(gitiles.Client()), httpx.WithDelay(0))
	src, err := source.NewGoogleSource(session, gitiles.URL)
	require.NoError(t, err)

	task := &ProviderTask{
		Search: searchFixture(t, providerPages()),
		Source: src,
	}
	out, err := task.Harvest(context.Background(), "android-1.6_r1")
	require.NoError(t, err)
	require.NotNil(t, out.All)
	require.NotNil(t, out.NeedsPermission)
	require.Empty(t, out.All)
	require.Empty(t, out.NeedsPermission)
}

func TestParseProviderManifestRejectsUnknownBoolean(t *testing.T) {
	manifest := `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
    package="com.android.contacts">
  <application>
    <provider android:name=".ContactsProvider"
        android:authorities="contacts"
        android:exported="yes" />
  </application>
</manifest>
`
	_, err := parseProviderManifest([]byte(manifest))
	require.ErrorContains(t, err, "unknown boolean string: yes")
}
