package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/docrouter/internal/filelock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv is a docrouter home with a config file pointing at temp folders
type testEnv struct {
	home       string
	configPath string
	watch      string
	unknown    string
	validation string
	lockFile   string
}

func newTestEnv(t *testing.T, endpoint string) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("DOCROUTER_HOME", home)
	t.Setenv("DOCROUTER_INDEX_USER", "scanner")
	t.Setenv("DOCROUTER_INDEX_PASSWORD", "pw")

	env := &testEnv{
		home:       home,
		configPath: filepath.Join(home, "config.yaml"),
		watch:      filepath.Join(home, "inbound"),
		unknown:    filepath.Join(home, "unknown"),
		validation: filepath.Join(home, "validation"),
		lockFile:   filepath.Join(home, "run.lock"),
	}
	require.NoError(t, os.MkdirAll(env.watch, 0755))

	config := fmt.Sprintf(`watch_folder: %s
validation_dir: %s
default_unknown_folder: %s
lock_file: %s
log_level: info
log_dir: %s
metadata:
  driver: sqlite3
  dsn: %s
indexing:
  endpoint: %q
  database: EDM
  timeout: 5s
`, env.watch, env.validation, env.unknown, env.lockFile, filepath.Join(home, "logs"), filepath.Join(home, "metadata.db"), endpoint)
	require.NoError(t, os.WriteFile(env.configPath, []byte(config), 0644))
	return env
}

func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append(args, "--config", e.configPath, "--env-file", filepath.Join(e.home, "none.env")))
	err := root.Execute()
	return buf.String(), err
}

func (e *testEnv) dropFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.watch, name)
	require.NoError(t, os.WriteFile(path, []byte("II*\x00scan"), 0644))
	return path
}

const referenceYAML = `document_types:
  - name: SAPXXXDE
    document_type_id: 12
    top_level_folder_id: 3
    key_property_id: 25
    has_key_property: true
    sirm_process: false
properties:
  - {id: 25, tag: ORDER_NUMBER, data_type: integer}
  - {id: 35, tag: SimonsDocumentName, data_type: string}
  - {id: 40, tag: InvoiceNo, data_type: string}
collator_paths:
  - {location: "42", path: /archive/site42}
`

func (e *testEnv) importReference(t *testing.T) {
	t.Helper()
	ref := filepath.Join(e.home, "reference.yaml")
	require.NoError(t, os.WriteFile(ref, []byte(referenceYAML), 0644))
	out, err := e.execute(t, "metadata", "import", ref)
	require.NoError(t, err, out)
}

// gateway is a minimal index engine that accepts every document
type gateway struct {
	mu       sync.Mutex
	requests []string
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.requests = append(g.requests, r.Method+" "+r.URL.Path)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/session" && r.Method == http.MethodPost:
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	case r.URL.Path == "/session":
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/documents":
		json.NewEncoder(w).Encode(map[string]string{"handle": "h1"})
	case strings.HasSuffix(r.URL.Path, "/commit"):
		json.NewEncoder(w).Encode(map[string]int{"document_id": 7781})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "docrouter", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "serve", "metadata", "audit", "validate"} {
		assert.Contains(t, names, want)
	}
}

func TestRootHelp(t *testing.T) {
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "scanned *.tif images")
}

func TestMetadataImportAndShow(t *testing.T) {
	env := newTestEnv(t, "")
	env.importReference(t)

	out, err := env.execute(t, "metadata", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Document Types (1)")
	assert.Contains(t, out, "SAPXXXDE")
	assert.Contains(t, out, "Properties (3)")
	assert.Contains(t, out, "/archive/site42")
	assert.Contains(t, out, "SimonsDocumentName   35")
	assert.Contains(t, out, "TRIP_NUMBER          not defined")
}

func TestMetadataImportMissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.execute(t, "metadata", "import", filepath.Join(env.home, "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference file not found")
}

func TestRunArchivesUnrecognizedFile(t *testing.T) {
	env := newTestEnv(t, "")
	src := env.dropFile(t, "1001-NOPE-abc.tif")

	out, err := env.execute(t, "run")
	require.NoError(t, err, out)
	assert.NoFileExists(t, src)
	assert.Contains(t, out, "ARCHIVED")

	entries, err := os.ReadDir(env.unknown)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.FileExists(t, filepath.Join(env.unknown, entries[0].Name(), "1001-NOPE-abc.tif"))

	out, err = env.execute(t, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "1001-NOPE-abc.tif")
	assert.Contains(t, out, "archived "+filepath.Join(env.unknown, entries[0].Name(), "1001-NOPE-abc.tif"))
}

func TestRunIndexesRecognizedFile(t *testing.T) {
	gw := &gateway{}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	env.importReference(t)
	src := env.dropFile(t, "1001_9988-SAPXXXDE-abc.tif")

	out, err := env.execute(t, "run")
	require.NoError(t, err, out)
	assert.NoFileExists(t, src)
	assert.Contains(t, out, "INDEXED")

	gw.mu.Lock()
	assert.Contains(t, gw.requests, "POST /documents/h1/commit")
	gw.mu.Unlock()

	out, err = env.execute(t, "audit", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "document 7781")
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	env := newTestEnv(t, "")
	src := env.dropFile(t, "1001-NOPE-abc.tif")

	holder := filelockFor(t, env.lockFile)
	defer holder.Release()

	out, err := env.execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "another docrouter run is in progress")
	assert.FileExists(t, src)
}

func TestRunInvalidConfig(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.execute(t, "run", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log_level")
}

func TestRunWatchFolderFlag(t *testing.T) {
	env := newTestEnv(t, "")
	other := filepath.Join(env.home, "other")
	require.NoError(t, os.MkdirAll(other, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(other, "5-NOPE.tif"), []byte("II*"), 0644))
	untouched := env.dropFile(t, "6-NOPE.tif")

	_, err := env.execute(t, "run", "--watch-folder", other)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(other, "5-NOPE.tif"))
	assert.FileExists(t, untouched)
}

func TestAuditEmpty(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := env.execute(t, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "No file destinations recorded")
}

func TestValidateCommand(t *testing.T) {
	env := newTestEnv(t, "")
	env.importReference(t)

	out, err := env.execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")
	assert.Contains(t, out, "Metadata OK: 1 document types, 3 properties, 1 collator paths")
	assert.Contains(t, out, "no endpoint configured")
}

func TestIsDocumentID(t *testing.T) {
	assert.True(t, isDocumentID("7781"))
	assert.False(t, isDocumentID(""))
	assert.False(t, isDocumentID("/unknown/2026-10-19 093000/a.tif"))
}

func filelockFor(t *testing.T, path string) *filelock.RunLock {
	t.Helper()
	lock := filelock.NewRunLock(path)
	ok, err := lock.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	return lock
}

func TestRunWaitGivesUpWhenLockStaysHeld(t *testing.T) {
	env := newTestEnv(t, "")
	src := env.dropFile(t, "1001-NOPE-abc.tif")

	holder := filelockFor(t, env.lockFile)
	defer holder.Release()

	out, err := env.execute(t, "run", "--wait", "300ms")
	require.NoError(t, err)
	assert.Contains(t, out, "another docrouter run is in progress")
	assert.FileExists(t, src)
}

func TestRunWaitRunsOnceLockIsReleased(t *testing.T) {
	env := newTestEnv(t, "")
	src := env.dropFile(t, "1001-NOPE-abc.tif")

	holder := filelockFor(t, env.lockFile)
	go func() {
		time.Sleep(200 * time.Millisecond)
		holder.Release()
	}()

	out, err := env.execute(t, "run", "--wait", "5s")
	require.NoError(t, err, out)
	assert.NoFileExists(t, src)
	assert.Contains(t, out, "ARCHIVED")
}

func TestAuditRunFilter(t *testing.T) {
	env := newTestEnv(t, "")
	env.dropFile(t, "1001-NOPE-abc.tif")
	_, err := env.execute(t, "run")
	require.NoError(t, err)

	out, err := env.execute(t, "audit", "--run", "no-such-run")
	require.NoError(t, err)
	assert.Contains(t, out, "No file destinations recorded")

	out, err = env.execute(t, "audit", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1001-NOPE-abc.tif")
}

func TestValidateReportsSchemaVersion(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := env.execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: ")
}

func TestValidateCheckEngine(t *testing.T) {
	gw := &gateway{}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	out, err := env.execute(t, "validate", "--check-engine")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Index engine OK")

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, []string{"POST /session", "DELETE /session"}, gw.requests)
}

func TestValidateCheckEngineWithoutEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.execute(t, "validate", "--check-engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexing.endpoint is not configured")
}
