package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// configDoc is the minimal shape bootstrap needs to read out of config.yaml:
// just enough to decide whether the state root's schema is current.
type configDoc struct {
	SchemaVersion int `yaml:"schema_version"`
}

// Bootstrap implements spec.md §4.1 invariant 4: if the state root is
// missing, it is created; if present but its config's schema_version does
// not match CurrentSchemaVersion, the whole root is archived to a
// timestamped sibling directory and recreated empty.
func Bootstrap(stateRoot string) error {
	info, err := os.Stat(stateRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(stateRoot, 0o755)
		}
		return fmt.Errorf("store: stat state root %s: %w", stateRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store: state root %s exists and is not a directory", stateRoot)
	}

	configPath := filepath.Join(stateRoot, "config.yaml")
	raw, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Fresh root with no config yet: nothing to migrate.
			return nil
		}
		return fmt.Errorf("store: read %s: %w", configPath, err)
	}

	var cfg configDoc
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return archiveAndRecreate(stateRoot)
	}
	if cfg.SchemaVersion != CurrentSchemaVersion {
		return archiveAndRecreate(stateRoot)
	}
	return nil
}

func archiveAndRecreate(stateRoot string) error {
	parent := filepath.Dir(stateRoot)
	base := filepath.Base(stateRoot)
	archivePath := filepath.Join(parent, fmt.Sprintf("%s.archived-%s", base, time.Now().UTC().Format("20060102T150405Z")))

	if err := os.Rename(stateRoot, archivePath); err != nil {
		return fmt.Errorf("store: archive stale state root %s: %w", stateRoot, err)
	}
	if err := os.MkdirAll(stateRoot, 0o755); err != nil {
		return fmt.Errorf("store: recreate state root %s: %w", stateRoot, err)
	}
	return nil
}
