package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"androidinfo/internal/cache/disk"
	"androidinfo/internal/httpx"
)

const repositoryManifestXML = `<?xml version="1.0" encoding="UTF-8"?>
<sdk-repository>
  <remotePackage path="platforms;android-30">
    <revision><major>2</major></revision>
    <channelRef ref="channel-0"/>
    <archives><archive><complete><url>platform-30_r02.zip</url></complete></archive></archives>
  </remotePackage>
  <remotePackage path="platforms;android-30">
    <revision><major>3</major></revision>
    <channelRef ref="channel-0"/>
    <archives><archive><complete><url>platform-30_r03.zip</url></complete></archive></archives>
  </remotePackage>
  <remotePackage path="platforms;android-30">
    <revision><major>4</major></revision>
    <channelRef ref="channel-1"/>
    <archives><archive><complete><url>platform-30_r04-beta.zip</url></complete></archive></archives>
  </remotePackage>
</sdk-repository>`

func newTestRepository(t *testing.T, downloads *atomic.Int32) *Repository {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + repositoryManifest:
			w.Write([]byte(repositoryManifestXML))
		case "/platform-30_r03.zip":
			if downloads != nil {
				downloads.Add(1)
			}
			w.Write([]byte("zipbytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cache, err := disk.NewStore(disk.Config{Root: t.TempDir()})
	require.NoError(t, err)
	return NewRepository(httpx.NewSession(httpx.WithHTTPClient(srv.Client())), srv.URL, cache)
}

func TestLatestPackagePicksHighestStableRevision(t *testing.T) {
	repo := newTestRepository(t, nil)
	pkg, err := repo.LatestPackage(context.Background(), "platforms;android-30", StableChannel)
	require.NoError(t, err)
	require.Equal(t, 3, pkg.Revision)

	url, err := pkg.ArchiveURL()
	require.NoError(t, err)
	require.Equal(t, "platform-30_r03.zip", url)
}

func TestLatestPackageMissingIsNotFound(t *testing.T) {
	repo := newTestRepository(t, nil)
	_, err := repo.LatestPackage(context.Background(), "platforms;android-99", StableChannel)
	require.True(t, httpx.IsNotFound(err), "expected not-found, got %v", err)
}

func TestDownloadArchiveUsesDiskCache(t *testing.T) {
	var downloads atomic.Int32
	repo := newTestRepository(t, &downloads)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		data, err := repo.DownloadArchive(ctx, "platform-30_r03.zip")
		require.NoError(t, err)
		require.Equal(t, "zipbytes", string(data))
	}
	require.Equal(t, int32(1), downloads.Load())
}
