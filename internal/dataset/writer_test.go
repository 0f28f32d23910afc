package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"androidinfo/internal/harvest"
	"androidinfo/internal/versions"
)

func TestPrepareWipesStaleFiles(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "permissions", "permissions-3.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))

	w, err := NewWriter(root)
	require.NoError(t, err)
	require.NoError(t, w.Prepare())

	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
}

func TestWriteAPILevelsKeyedByLevel(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Prepare())

	name := "Android11"
	require.NoError(t, w.WriteAPILevels([]versions.APILevel{
		{Name: &name, API: 30, VersionRange: "11", Versions: []string{"11.0.0", "11.0.1"}},
	}))

	data, err := os.ReadFile(filepath.Join(w.Root(), "api_levels.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"30"`)
	require.Contains(t, string(data), `"Android11"`)
	// four-space indentation, no HTML escaping
	require.Contains(t, string(data), "\n    \"30\"")
}

func TestWritePermissionsLayout(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Prepare())

	p := harvest.Permissions{
		Groups:      map[string]harvest.PermissionGroup{},
		Permissions: map[string]harvest.Permission{},
	}
	require.NoError(t, w.WritePermissions(ReleaseLabel, p))
	require.NoError(t, w.WritePermissions("30", p))

	for _, rel := range []string{"permissions/permissions-REL.json", "permissions/permissions-30.json"} {
		_, err := os.Stat(filepath.Join(w.Root(), rel))
		require.NoError(t, err, rel)
	}
}

func TestWriteJSONKeepsRawAngleBrackets(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Prepare())

	desc := "read <em>contacts</em> & data"
	require.NoError(t, w.WritePermissions("4", harvest.Permissions{
		Groups: map[string]harvest.PermissionGroup{},
		Permissions: map[string]harvest.Permission{
			"p": {Name: "p", Description: &desc, ProtectionLevels: []string{}, PermissionFlags: []string{}},
		},
	}))

	data, err := os.ReadFile(filepath.Join(w.Root(), "permissions", "permissions-4.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), desc)
	require.False(t, strings.Contains(string(data), `\u003c`))
}

func TestWriteProvidersWritesBothSnapshots(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Prepare())

	perm := "android.permission.READ_CONTACTS"
	protected := harvest.ContentProvider{Name: "a.P", Package: "a", ReadPermission: &perm}
	open := harvest.ContentProvider{Name: "b.Q", Package: "b", Exported: true}
	require.NoError(t, w.WriteProviders(harvest.ProviderResult{
		All:             []harvest.ContentProvider{protected, open},
		NeedsPermission: []harvest.ContentProvider{protected},
	}))

	all, err := os.ReadFile(filepath.Join(w.Root(), "permission_mappings", "all_content_providers-REL.json"))
	require.NoError(t, err)
	require.Contains(t, string(all), "b.Q")

	subset, err := os.ReadFile(filepath.Join(w.Root(), "permission_mappings", "permission_content_providers-REL.json"))
	require.NoError(t, err)
	require.Contains(t, string(subset), "a.P")
	require.NotContains(t, string(subset), "b.Q")
}

func TestWriteProvidersEmptyResultWritesEmptyLists(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Prepare())

	require.NoError(t, w.WriteProviders(harvest.ProviderResult{
		All:             []harvest.ContentProvider{},
		NeedsPermission: []harvest.ContentProvider{},
	}))

	for _, rel := range []string{"all_content_providers-REL.json", "permission_content_providers-REL.json"} {
		data, err := os.ReadFile(filepath.Join(w.Root(), "permission_mappings", rel))
		require.NoError(t, err, rel)
		require.Equal(t, "[]", strings.TrimSpace(string(data)), rel)
	}
}
