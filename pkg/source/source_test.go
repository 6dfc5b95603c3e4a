package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/meshdb/pkg/config"
	"github.com/japaniel/meshdb/pkg/mesh"
)

const descriptorXML = `<?xml version="1.0"?>
<DescriptorRecordSet LanguageCode="eng">
  <DescriptorRecord DescriptorClass="1">
    <DescriptorUI>D009369</DescriptorUI>
    <DescriptorName><String>Neoplasms</String></DescriptorName>
    <TreeNumberList><TreeNumber>C04</TreeNumber></TreeNumberList>
  </DescriptorRecord>
  <DescriptorRecord DescriptorClass="1">
    <DescriptorUI>D009370</DescriptorUI>
    <DescriptorName><String>Neoplasms by Histologic Type</String></DescriptorName>
    <TreeNumberList><TreeNumber>C04.557</TreeNumber></TreeNumberList>
  </DescriptorRecord>
</DescriptorRecordSet>
`

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.BaseURL = baseURL
	cfg.Year = "2017"
	return cfg
}

func archiveServer(t *testing.T, body []byte, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/desc2017.gz" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") != "meshdb-test" {
			http.Error(w, "bad agent", http.StatusForbidden)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDescriptorsDownloadsParsesAndCaches(t *testing.T) {
	var hits int32
	srv := archiveServer(t, gzipped(t, descriptorXML), &hits)
	cfg := testConfig(t, srv.URL)
	opts := Options{Downloader: NewDownloader(5*time.Second, "meshdb-test", nil)}

	recs, err := Descriptors(context.Background(), cfg, opts)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "D009369", recs[0].UI)
	assert.Equal(t, []string{"D009369"}, recs[1].Parents)
	assert.FileExists(t, cfg.DescriptorPath())
	assert.FileExists(t, cfg.DescriptorCachePath())

	// The second call is served from the JSON cache.
	require.NoError(t, os.Remove(cfg.DescriptorPath()))
	again, err := Descriptors(context.Background(), cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, recs[1].Parents, again[1].Parents)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDescriptorsRefreshReparsesLocalArchive(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	require.NoError(t, os.WriteFile(cfg.DescriptorPath(), gzipped(t, descriptorXML), 0o644))
	require.NoError(t, mesh.SaveCacheFile(cfg.DescriptorCachePath(), []mesh.Record{{Kind: mesh.KindDescriptor, UI: "D000001", Name: "stale"}}))

	recs, err := Descriptors(context.Background(), cfg, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "stale", recs[0].Name)

	recs, err = Descriptors(context.Background(), cfg, Options{Refresh: true})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Neoplasms", recs[0].Name)
}

func TestDownloadFailureIsPropagated(t *testing.T) {
	var hits int32
	srv := archiveServer(t, nil, &hits)
	cfg := testConfig(t, srv.URL)

	_, err := Supplements(context.Background(), cfg, Options{Downloader: NewDownloader(5*time.Second, "meshdb-test", nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.NoFileExists(t, cfg.SupplementPath())
}

func TestEnsureArchiveLocalCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desc2017.gz")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))

	// The URL is never contacted while the file exists.
	d := NewDownloader(time.Second, "meshdb-test", nil)
	require.NoError(t, d.EnsureArchive(context.Background(), "http://127.0.0.1:0/desc2017.gz", path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func TestEnsureArchiveForce(t *testing.T) {
	var hits int32
	body := gzipped(t, descriptorXML)
	srv := archiveServer(t, body, &hits)
	path := filepath.Join(t.TempDir(), "desc2017.gz")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	d := NewDownloader(5*time.Second, "meshdb-test", nil)
	require.NoError(t, d.EnsureArchive(context.Background(), srv.URL+"/desc2017.gz", path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestDownloaderZeroValue(t *testing.T) {
	var hits int32
	body := gzipped(t, descriptorXML)
	srv := archiveServer(t, body, &hits)
	path := filepath.Join(t.TempDir(), "nested", "desc2017.gz")

	d := &Downloader{UserAgent: "meshdb-test"}
	require.NoError(t, d.EnsureArchive(context.Background(), srv.URL+"/desc2017.gz", path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}
