package functions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watzon/alyx-worker/internal/testfuncs"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover_Fixtures(t *testing.T) {
	mds, err := Discover(testfuncs.FunctionsDir())
	require.NoError(t, err)

	var names []string
	for _, md := range mds {
		names = append(names, md.Name)
	}
	require.Equal(t, []string{
		"async_logging",
		"blob_size",
		"custom_entry",
		"panicking",
		"queue_echo",
		"return_error",
		"return_http",
		"return_out",
		"slow_sync",
		"sync_logging",
	}, names)
}

func TestDiscover_SkipsNonFunctions(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "hello", ManifestJSON), `{"bindings": []}`)
	writeFile(t, filepath.Join(root, ".hidden", ManifestJSON), `{"bindings": []}`)
	writeFile(t, filepath.Join(root, "_shared", ManifestJSON), `{"bindings": []}`)
	writeFile(t, filepath.Join(root, "lib", "util.go"), "package lib\n")
	writeFile(t, filepath.Join(root, "off", ManifestJSON), `{"disabled": true, "bindings": []}`)
	writeFile(t, filepath.Join(root, "broken", ManifestJSON), `{not json`)
	writeFile(t, filepath.Join(root, "README.md"), "# functions\n")

	mds, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, mds, 1)
	require.Equal(t, "hello", mds[0].Name)
}

func TestDiscover_MissingRoot(t *testing.T) {
	mds, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, mds)
}

func TestMetadataFromDir_Defaults(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "hello")
	writeFile(t, filepath.Join(dir, ManifestJSON), `{
		"bindings": [
			{"name": "req", "type": "httpTrigger", "direction": "in"},
			{"name": "$return", "type": "http", "direction": "out"}
		]
	}`)

	md, err := MetadataFromDir(dir)
	require.NoError(t, err)

	require.Equal(t, "hello", md.Name)
	require.Equal(t, dir, md.Directory)
	require.Equal(t, filepath.Join(dir, DefaultScriptFile), md.ScriptFile)
	require.Empty(t, md.EntryPoint)
	require.Equal(t, []Binding{
		{Name: "req", Type: "httpTrigger", Direction: DirectionIn},
		{Name: "$return", Type: "http", Direction: DirectionOut},
	}, md.Bindings)
}

func TestMetadataFromDir_YAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "timer")
	writeFile(t, filepath.Join(dir, ManifestYAML), `
scriptFile: handler.go
entryPoint: Tick
bindings:
  - name: timer
    type: timerTrigger
    direction: in
`)

	md, err := MetadataFromDir(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "handler.go"), md.ScriptFile)
	require.Equal(t, "Tick", md.EntryPoint)
	require.Equal(t, []Binding{{Name: "timer", Type: "timerTrigger", Direction: DirectionIn}}, md.Bindings)
}

func TestMetadataFromDir_JSONWins(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "both")
	writeFile(t, filepath.Join(dir, ManifestJSON), `{"entryPoint": "FromJSON"}`)
	writeFile(t, filepath.Join(dir, ManifestYAML), "entryPoint: FromYAML\n")

	md, err := MetadataFromDir(dir)
	require.NoError(t, err)
	require.Equal(t, "FromJSON", md.EntryPoint)
}

func TestMetadataFromDir_NoManifest(t *testing.T) {
	_, err := MetadataFromDir(t.TempDir())
	require.ErrorIs(t, err, errNotAFunction)
}

func TestMetadata_ProtoRoundTrip(t *testing.T) {
	md := &Metadata{
		Name:       "hello",
		Directory:  "/srv/hello",
		ScriptFile: "/srv/hello/main.go",
		EntryPoint: "Main",
		Bindings: []Binding{
			{Name: "req", Type: "httpTrigger", Direction: DirectionIn},
			{Name: "$return", Type: "http", Direction: DirectionOut},
		},
	}

	require.Equal(t, md, MetadataFromProto(md.Proto()))
}
