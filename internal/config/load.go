package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the agentctl configuration file, living
// under the state directory (spec.md §6 "config.yaml").
const ConfigFileName = "config.yaml"

// FindConfigFile walks up from the given directory to find
// .agentctl/config.yaml. Returns the absolute path to the config file, or
// an empty string if not found. Stops at the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ".agentctl", ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile parses the YAML file at the given path. Unknown keys are
// ignored: the decoder runs with KnownFields(false), and Validate does not
// report them either.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // unknown keys are ignored, not rejected at decode
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteToFile marshals cfg as YAML and writes it to path.
func WriteToFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// Watcher hot-reloads config.yaml on edit (SPEC_FULL.md §9 ambient stack:
// "internal/config watches config.yaml for edits and hot-reloads
// orchestrator concurrency/quality-gate defaults without a restart").
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string
}

// NewWatcher opens an fsnotify watch on the directory containing path (watch
// the directory, not the file itself, since editors commonly replace a file
// via rename rather than in-place write, which orphans a direct file watch).
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watch dir: %w", err)
	}
	return &Watcher{fsw: fsw, path: path}, nil
}

// Close releases the underlying fsnotify watch.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Next blocks until path is written, created, or renamed into place, then
// returns the freshly reloaded Config. Returns an error if the watch is
// closed or the reload fails.
func (w *Watcher) Next() (*Config, error) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil, fmt.Errorf("config watcher: closed")
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFromFile(w.path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil, fmt.Errorf("config watcher: closed")
			}
			return nil, fmt.Errorf("config watcher: %w", err)
		}
	}
}
