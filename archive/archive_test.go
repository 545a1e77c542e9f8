// These tests build small containers in a temporary directory and verify
// their structure and digests.
package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// writes a warehouse-like tree and a finished sidecar for it, returning the
// sidecar path and the request path
func stageBundle(t *testing.T, bundleUUID string) (string, string) {
	t.Helper()
	warehouse := t.TempDir()
	requestPath := filepath.Join(warehouse, "data", "exp", "IceCube", "2018")
	err := os.MkdirAll(filepath.Join(requestPath, "unbiased"), 0o755)
	if err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(requestPath, "alpha.dat"):             "first file payload",
		filepath.Join(requestPath, "unbiased", "beta.dat"):  "second file payload, a little longer",
		filepath.Join(requestPath, "unbiased", "gamma.dat"): "third",
	}
	for path, payload := range files {
		err = os.WriteFile(path, []byte(payload), 0o644)
		if err != nil {
			t.Fatal(err)
		}
	}

	workbox := t.TempDir()
	manifestPath := filepath.Join(workbox, bundleUUID+".metadata.ndjson")
	manifest, err := NewManifestWriter(manifestPath, ManifestHeader{
		UUID:            bundleUUID,
		Component:       "bundler",
		Version:         ManifestVersion,
		CreateTimestamp: "2026-08-24T00:00:00",
		FileCount:       3,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		filepath.Join(requestPath, "alpha.dat"),
		filepath.Join(requestPath, "unbiased", "beta.dat"),
		filepath.Join(requestPath, "unbiased", "gamma.dat"),
	} {
		err = manifest.WriteRecord(map[string]any{
			"uuid":         "fc-" + filepath.Base(name),
			"logical_name": name,
			"file_size":    int64(len(files[name])),
			"checksum":     map[string]string{"sha512": "unused"},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	err = manifest.Close()
	if err != nil {
		t.Fatal(err)
	}
	return manifestPath, requestPath
}

// tests that a sidecar round-trips its header and records in order
func TestManifestRoundTrip(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	manifestPath, _ := stageBundle(t, "b1")

	manifest, err := OpenManifest(manifestPath)
	assert.Nil(err)
	defer manifest.Close()
	assert.Equal("b1", manifest.Header().UUID)
	assert.Equal("bundler", manifest.Header().Component)
	assert.Equal(ManifestVersion, manifest.Header().Version)
	assert.Equal(3, manifest.Header().FileCount)

	var logicalNames []string
	for {
		record, err := manifest.Next()
		assert.Nil(err)
		if record == nil {
			break
		}
		logicalNames = append(logicalNames, record["logical_name"].(string))
	}
	assert.Len(logicalNames, 3)
	assert.Contains(logicalNames[0], "alpha.dat")
	assert.Contains(logicalNames[2], "gamma.dat")
}

// tests that the container holds the sidecar first, then members at paths
// relative to the request path, all store-only
func TestBuildZip(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	manifestPath, requestPath := stageBundle(t, "b1")
	zipPath := filepath.Join(filepath.Dir(manifestPath), "b1.zip")

	members, err := BuildZip(zipPath, manifestPath, requestPath)
	assert.Nil(err)
	assert.Equal(3, members)

	reader, err := zip.OpenReader(zipPath)
	assert.Nil(err)
	defer reader.Close()
	assert.Len(reader.File, 4)
	assert.Equal("b1.metadata.ndjson", reader.File[0].Name)
	assert.Equal("alpha.dat", reader.File[1].Name)
	assert.Equal("unbiased/beta.dat", reader.File[2].Name)
	assert.Equal("unbiased/gamma.dat", reader.File[3].Name)
	for _, entry := range reader.File {
		assert.Equal(zip.Store, entry.Method, entry.Name)
	}
}

// tests that rebuilding from the same inputs yields the same bytes
func TestBuildZipDeterministic(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	manifestPath, requestPath := stageBundle(t, "b1")
	first := filepath.Join(filepath.Dir(manifestPath), "first.zip")
	second := filepath.Join(filepath.Dir(manifestPath), "second.zip")

	_, err := BuildZip(first, manifestPath, requestPath)
	assert.Nil(err)
	_, err = BuildZip(second, manifestPath, requestPath)
	assert.Nil(err)

	firstBytes, err := os.ReadFile(first)
	assert.Nil(err)
	secondBytes, err := os.ReadFile(second)
	assert.Nil(err)
	assert.Equal(firstBytes, secondBytes)
}

// tests that a member outside the request path is refused
func TestEntryPathEscape(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	entry, err := EntryPath("/data/exp/2018/file.dat", "/data/exp/2018")
	assert.Nil(err)
	assert.Equal("file.dat", entry)

	_, err = EntryPath("/data/other/file.dat", "/data/exp/2018")
	var escapeErr *EntryEscapeError
	assert.ErrorAs(err, &escapeErr)
}

// tests digest length, case, and stability
func TestChecksums(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	path := filepath.Join(t.TempDir(), "payload")
	err := os.WriteFile(path, []byte("Wikipedia"), 0o644)
	assert.Nil(err)

	quick, strong, err := Checksums(path)
	assert.Nil(err)
	// the classic adler32 example string
	assert.Equal("11e60398", quick)
	assert.Len(strong, 128)
	assert.Regexp("^[0-9a-f]{128}$", strong)

	again, err := Sha512(path)
	assert.Nil(err)
	assert.Equal(strong, again)
}

// tests that the outbox move leaves exactly one copy at the destination
func TestMoveFile(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	workbox := t.TempDir()
	outbox := t.TempDir()
	source := filepath.Join(workbox, "b1.zip")
	dest := filepath.Join(outbox, "b1.zip")
	err := os.WriteFile(source, []byte("container bytes"), 0o644)
	assert.Nil(err)

	err = MoveFile(source, dest)
	assert.Nil(err)
	moved, err := os.ReadFile(dest)
	assert.Nil(err)
	assert.Equal("container bytes", string(moved))
	_, err = os.Stat(source)
	assert.True(os.IsNotExist(err))
}
