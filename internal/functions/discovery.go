package functions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var errNotAFunction = errors.New("not a function directory")

const (
	// ManifestJSON is the manifest file the host reads.
	ManifestJSON = "function.json"
	// ManifestYAML is accepted in place of function.json.
	ManifestYAML = "function.yaml"
	// DefaultScriptFile is used when a manifest names no script file.
	DefaultScriptFile = "main.go"
)

// FunctionManifest is a function's manifest file.
type FunctionManifest struct {
	ScriptFile string    `json:"scriptFile" yaml:"scriptFile"`
	EntryPoint string    `json:"entryPoint" yaml:"entryPoint"`
	Disabled   bool      `json:"disabled" yaml:"disabled"`
	Bindings   []Binding `json:"bindings" yaml:"bindings"`
}

// ReadManifest reads function.json, or function.yaml when there is no
// function.json, from dir.
func ReadManifest(dir string) (*FunctionManifest, error) {
	var manifest FunctionManifest

	data, err := os.ReadFile(filepath.Join(dir, ManifestJSON))
	if err == nil {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ManifestJSON, err)
		}
		return &manifest, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", ManifestJSON, err)
	}

	data, err = os.ReadFile(filepath.Join(dir, ManifestYAML))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNotAFunction
		}
		return nil, fmt.Errorf("reading %s: %w", ManifestYAML, err)
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestYAML, err)
	}
	return &manifest, nil
}

// MetadataFromDir builds the metadata the host would send for the
// function in dir. The function is named after its directory.
func MetadataFromDir(dir string) (*Metadata, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving function directory: %w", err)
	}

	manifest, err := ReadManifest(absDir)
	if err != nil {
		return nil, err
	}

	scriptFile := manifest.ScriptFile
	if scriptFile == "" {
		scriptFile = DefaultScriptFile
	}
	if !filepath.IsAbs(scriptFile) {
		scriptFile = filepath.Join(absDir, scriptFile)
	}

	return &Metadata{
		Name:       filepath.Base(absDir),
		Directory:  absDir,
		ScriptFile: scriptFile,
		EntryPoint: manifest.EntryPoint,
		Bindings:   manifest.Bindings,
	}, nil
}

// Discover scans root for function directories. Directories without a
// manifest, hidden directories and directories starting with "_" are
// skipped; disabled functions are skipped with a debug log.
func Discover(root string) ([]*Metadata, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		log.Warn().Str("path", root).Msg("Script root does not exist")
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading script root: %w", err)
	}

	var result []*Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}

		dir := filepath.Join(root, name)
		manifest, err := ReadManifest(dir)
		if errors.Is(err, errNotAFunction) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("function", name).Msg("Failed to read function manifest")
			continue
		}
		if manifest.Disabled {
			log.Debug().Str("function", name).Msg("Skipping disabled function")
			continue
		}

		md, err := MetadataFromDir(dir)
		if err != nil {
			log.Warn().Err(err).Str("function", name).Msg("Failed to read function manifest")
			continue
		}
		result = append(result, md)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	log.Debug().Int("count", len(result)).Str("path", root).Msg("Functions discovered")
	return result, nil
}
