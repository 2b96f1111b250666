package functions

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var (
	testWatch  = []string{"**/function.json", "**/function.yaml", "**/*.go"}
	testIgnore = []string{"**/.*", "**/*_test.go"}
)

type changeRecorder struct {
	mu   sync.Mutex
	dirs []string
}

func (r *changeRecorder) record(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = append(r.dirs, dir)
}

func (r *changeRecorder) changes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dirs...)
}

func createFunctionDir(t *testing.T, root, name string) string {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating function directory: %v", err)
	}
	manifest := `{"bindings": [{"name": "req", "type": "httpTrigger", "direction": "in"}]}`
	if err := os.WriteFile(filepath.Join(dir, ManifestJSON), []byte(manifest), 0o644); err != nil {
		t.Fatalf("creating manifest: %v", err)
	}
	return dir
}

func startWatcher(t *testing.T, root string, rec *changeRecorder, debounce time.Duration) *SourceWatcher {
	t.Helper()

	watcher, err := NewSourceWatcher(root, testWatch, testIgnore, rec.record)
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	watcher.SetDebounceDuration(debounce)

	if err := watcher.Start(); err != nil {
		t.Fatalf("starting watcher: %v", err)
	}
	t.Cleanup(func() {
		if err := watcher.Stop(); err != nil {
			t.Errorf("stopping watcher: %v", err)
		}
	})
	return watcher
}

func waitForChanges(t *testing.T, rec *changeRecorder, n int) []string {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := rec.changes(); len(got) >= n {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d change(s), got %v", n, rec.changes())
	return nil
}

func TestSourceWatcher_DetectsChanges(t *testing.T) {
	root := t.TempDir()
	funcDir := createFunctionDir(t, root, "hello")

	rec := &changeRecorder{}
	startWatcher(t, root, rec, 20*time.Millisecond)

	if err := os.WriteFile(filepath.Join(funcDir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	got := waitForChanges(t, rec, 1)
	if got[0] != funcDir {
		t.Errorf("expected change in %s, got %s", funcDir, got[0])
	}
}

func TestSourceWatcher_Debounce(t *testing.T) {
	root := t.TempDir()
	funcDir := createFunctionDir(t, root, "hello")

	rec := &changeRecorder{}
	startWatcher(t, root, rec, 200*time.Millisecond)

	source := filepath.Join(funcDir, "main.go")
	for _, content := range []string{"v1", "v2", "v3", "v4"} {
		if err := os.WriteFile(source, []byte("package main // "+content+"\n"), 0o644); err != nil {
			t.Fatalf("writing source file: %v", err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	waitForChanges(t, rec, 1)
	time.Sleep(400 * time.Millisecond)

	if got := rec.changes(); len(got) != 1 {
		t.Errorf("expected a single debounced change, got %v", got)
	}
}

func TestSourceWatcher_NewFunctionDirectory(t *testing.T) {
	root := t.TempDir()

	rec := &changeRecorder{}
	startWatcher(t, root, rec, 20*time.Millisecond)

	funcDir := createFunctionDir(t, root, "late")
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(funcDir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	got := waitForChanges(t, rec, 1)
	if got[len(got)-1] != funcDir {
		t.Errorf("expected change in %s, got %v", funcDir, got)
	}
}

func TestSourceWatcher_Matches(t *testing.T) {
	watcher, err := NewSourceWatcher(t.TempDir(), testWatch, testIgnore, func(string) {})
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	t.Cleanup(func() { _ = watcher.Stop() })

	tests := []struct {
		path string
		want bool
	}{
		{"hello/function.json", true},
		{"hello/function.yaml", true},
		{"hello/main.go", true},
		{"hello/internal/util.go", true},
		{"hello/main_test.go", false},
		{"hello/.main.go.swp", false},
		{"hello/README.md", false},
		{"hello/data.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := watcher.Matches(tt.path); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSourceWatcher_IgnoresRootFiles(t *testing.T) {
	root := t.TempDir()

	watcher, err := NewSourceWatcher(root, nil, nil, func(string) {})
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	t.Cleanup(func() { _ = watcher.Stop() })

	if _, ok := watcher.functionDir(filepath.Join(root, "main.go")); ok {
		t.Error("expected a file directly under the root to belong to no function")
	}
	dir, ok := watcher.functionDir(filepath.Join(root, "hello", "sub", "main.go"))
	if !ok || dir != filepath.Join(root, "hello") {
		t.Errorf("expected hello directory, got %q", dir)
	}
}

func TestNewSourceWatcher_InvalidPattern(t *testing.T) {
	_, err := NewSourceWatcher(t.TempDir(), []string{"[unclosed"}, nil, func(string) {})
	if err == nil {
		t.Fatal("expected error for invalid glob pattern")
	}
}
