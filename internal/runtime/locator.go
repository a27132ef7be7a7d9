// Package runtime resolves the path to the Python interpreter a worker
// should be spawned with, caching the result for the life of the process
// and persisting it across restarts in the config_entries table.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/config"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"github.com/fsnotify/fsnotify"
)

const configKeyRuntimePath = "RUNTIME_PATH"

var candidateVenvDirs = []string{"venv", ".venv", "env", ".env"}

// Locator finds and caches the interpreter path for a given install path.
type Locator struct {
	store store.Store

	mu      sync.RWMutex
	cached  string
	watcher *fsnotify.Watcher
}

// NewLocator builds a Locator backed by store for persistence across
// restarts.
func NewLocator(s store.Store) *Locator {
	return &Locator{store: s}
}

// Locate resolves the interpreter path for installPath, preferring in order:
// an explicit RUNTIME_PATH env override, the in-memory cache, the persisted
// config_entries value, and finally a fresh filesystem search.
func (l *Locator) Locate(ctx context.Context, installPath string) (string, error) {
	if config.RuntimePathOverride != "" {
		if err := l.Validate(config.RuntimePathOverride); err != nil {
			return "", fmt.Errorf("RUNTIME_PATH override is invalid: %w", err)
		}
		return config.RuntimePathOverride, nil
	}

	l.mu.RLock()
	cached := l.cached
	l.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	if entry, err := l.store.GetConfigEntry(ctx, configKeyRuntimePath); err == nil && entry != nil {
		if verr := l.Validate(entry.Value); verr == nil {
			l.setCache(entry.Value, installPath)
			return entry.Value, nil
		}
		logging.Log.WithField("path", entry.Value).Warn("persisted runtime path no longer valid, re-searching")
	}

	found, err := l.search(installPath)
	if err != nil {
		return "", err
	}

	if err := l.store.UpsertConfigEntry(ctx, &models.ConfigEntry{
		Key:         configKeyRuntimePath,
		Value:       found,
		Description: "resolved Python interpreter path",
		UpdatedAt:   time.Now().Unix(),
	}); err != nil {
		logging.Log.WithError(err).Warn("failed to persist resolved runtime path")
	}

	l.setCache(found, installPath)
	return found, nil
}

// Validate confirms path is a Python interpreter: it must exist, be
// executable, and report "python" (case-insensitive) somewhere in its
// `--version` output.
func (l *Locator) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not an interpreter", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}

	out, err := exec.Command(path, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s --version: %w", path, err)
	}
	if !strings.Contains(strings.ToLower(string(out)), "python") {
		return fmt.Errorf("%s --version did not report a python interpreter: %q", path, string(out))
	}
	return nil
}

// ClearCache drops the in-memory cached path, forcing the next Locate call
// to re-resolve from the persisted value or the filesystem.
func (l *Locator) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = ""
	if l.watcher != nil {
		_ = l.watcher.Close()
		l.watcher = nil
	}
}

func (l *Locator) setCache(path, installPath string) {
	l.mu.Lock()
	l.cached = path
	l.mu.Unlock()
	l.watchForInvalidation(installPath)
}

// search looks for a virtualenv interpreter under installPath, then a conda
// environment anywhere below it, and finally falls back to whatever the OS
// path resolver finds — the same three-tier order the spec's runtime
// resolution describes.
func (l *Locator) search(installPath string) (string, error) {
	binName := "python"
	binSubdir := "bin"
	if runtime.GOOS == "windows" {
		binName = "python.exe"
		binSubdir = "Scripts"
	}

	for _, venvDir := range candidateVenvDirs {
		candidate := filepath.Join(installPath, venvDir, binSubdir, binName)
		if err := l.Validate(candidate); err == nil {
			return candidate, nil
		}
	}

	if candidate, found := l.searchCondaEnv(installPath, binName); found {
		return candidate, nil
	}

	if found, err := exec.LookPath(binName); err == nil {
		if verr := l.Validate(found); verr == nil {
			return found, nil
		}
	}

	return "", fmt.Errorf("no interpreter found under %s (looked in %v, conda_env, and $PATH)", installPath, candidateVenvDirs)
}

// searchCondaEnv walks installPath/conda_env looking for a validated
// interpreter at any depth, mirroring the spec's "conda_env/**/<interpreter>"
// glob without pulling in a globbing library for a single call site.
func (l *Locator) searchCondaEnv(installPath, binName string) (string, bool) {
	root := filepath.Join(installPath, "conda_env")
	var found string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if info.IsDir() || info.Name() != binName {
			return nil
		}
		if verr := l.Validate(path); verr == nil {
			found = path
		}
		return nil
	})
	return found, found != ""
}

// watchForInvalidation starts a best-effort fsnotify watch on the venv
// directories under installPath, clearing the cache if one is removed or
// rewritten out from under the cached path. Watch setup failures are
// logged, not fatal: the locator simply re-validates on next use instead.
func (l *Locator) watchForInvalidation(installPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Log.WithError(err).Debug("fsnotify unavailable, runtime cache will not auto-invalidate")
		return
	}

	watched := false
	for _, venvDir := range candidateVenvDirs {
		dir := filepath.Join(installPath, venvDir)
		if _, err := os.Stat(dir); err == nil {
			if err := watcher.Add(dir); err == nil {
				watched = true
			}
		}
	}
	if !watched {
		_ = watcher.Close()
		return
	}

	l.mu.Lock()
	if l.watcher != nil {
		_ = l.watcher.Close()
	}
	l.watcher = watcher
	l.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
					logging.Log.WithField("event", event.String()).Info("virtualenv changed, invalidating runtime cache")
					l.mu.Lock()
					l.cached = ""
					l.mu.Unlock()
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Log.WithError(werr).Debug("runtime locator watcher error")
			}
		}
	}()
}
