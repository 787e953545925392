package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentSchemaVersion is the schema_version written into every collection
// document. Bootstrap (see bootstrap.go) archives and recreates the state
// root when config.yaml's schema_version differs; collection documents
// themselves are not version-checked.
const CurrentSchemaVersion = 3

// Identifiable is implemented by every entity a Collection persists.
type Identifiable interface {
	EntityID() string
}

// Collection is a generic, file-backed repository for one entity kind,
// stored as a YAML collection and guarded by the two-level lock spec.md §4.1 invariant 2
// requires: a process-wide mutex plus an advisory OS file lock on a sidecar
// ".lock" file, held across the full read-modify-write span.
type Collection[T Identifiable] struct {
	path string
	key  string

	mu   sync.Mutex
	lock *fileLock
}

// NewCollection opens (but does not yet load) the collection file at path,
// keyed by key (e.g. "tasks", "runs", "review_cycles").
func NewCollection[T Identifiable](path, key string) (*Collection[T], error) {
	lock, err := newFileLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	return &Collection[T]{path: path, key: key, lock: lock}, nil
}

// Close releases the sidecar lock file handle.
func (c *Collection[T]) Close() error {
	return c.lock.Close()
}

func (c *Collection[T]) withLock(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = c.lock.Unlock() }()
	return fn()
}

// load reads the document, returning an empty slice if the file does not
// exist yet. Caller must hold c.mu (and, for read-modify-write spans, the
// file lock).
func (c *Collection[T]) load() ([]T, map[string]any, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, map[string]any{}, nil
		}
		return nil, nil, fmt.Errorf("store: read %s: %w", c.path, err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, nil, fmt.Errorf("store: parse %s: %w", c.path, err)
	}
	if generic == nil {
		generic = map[string]any{}
	}

	itemsRaw, ok := generic[c.key]
	delete(generic, c.key)
	delete(generic, "schema_version")

	if !ok || itemsRaw == nil {
		return nil, generic, nil
	}

	// Re-marshal just the items list into []T via YAML round-trip. This is
	// simpler and safer than type-switching through map[string]any by hand,
	// and keeps struct tags as the single source of truth for field names.
	itemBytes, err := yaml.Marshal(itemsRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("store: re-marshal %s items: %w", c.path, err)
	}
	var items []T
	if err := yaml.Unmarshal(itemBytes, &items); err != nil {
		return nil, nil, fmt.Errorf("store: decode %s items: %w", c.path, err)
	}
	return items, generic, nil
}

// save writes the document back, preserving any unknown top-level keys
// captured by the most recent load. Caller must hold c.mu and the file lock.
func (c *Collection[T]) save(items []T, extra map[string]any) error {
	out := map[string]any{
		"schema_version": CurrentSchemaVersion,
		c.key:            items,
	}
	for k, v := range extra {
		if k == c.key || k == "schema_version" {
			continue
		}
		out[k] = v
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", c.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir for %s: %w", c.path, err)
	}
	return AtomicWriteFile(c.path, data, 0o644)
}

// List returns every item in the collection.
func (c *Collection[T]) List() ([]T, error) {
	var out []T
	err := c.withLock(func() error {
		items, _, err := c.load()
		if err != nil {
			return err
		}
		out = items
		return nil
	})
	return out, err
}

// Get returns the item with the given id, or ok=false if absent.
func (c *Collection[T]) Get(id string) (item T, ok bool, err error) {
	err = c.withLock(func() error {
		items, _, lerr := c.load()
		if lerr != nil {
			return lerr
		}
		for _, it := range items {
			if it.EntityID() == id {
				item, ok = it, true
				return nil
			}
		}
		return nil
	})
	return item, ok, err
}

// Toucher is implemented by entities that carry an updated_at timestamp
// refreshed on every Upsert.
type Toucher interface {
	Touch(now time.Time)
}

// Upsert inserts item if its id is new, or replaces the existing entry.
// If item implements Toucher, its updated_at is refreshed to now.
func (c *Collection[T]) Upsert(item T) error {
	return c.withLock(func() error {
		items, extra, err := c.load()
		if err != nil {
			return err
		}
		if t, ok := any(&item).(Toucher); ok {
			t.Touch(time.Now())
		}
		id := item.EntityID()
		replaced := false
		for i, it := range items {
			if it.EntityID() == id {
				items[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			items = append(items, item)
		}
		return c.save(items, extra)
	})
}

// Delete removes the item with the given id. It is not an error if the id
// is absent.
func (c *Collection[T]) Delete(id string) error {
	return c.withLock(func() error {
		items, extra, err := c.load()
		if err != nil {
			return err
		}
		out := items[:0]
		for _, it := range items {
			if it.EntityID() != id {
				out = append(out, it)
			}
		}
		return c.save(out, extra)
	})
}

// Mutate loads the collection, runs fn over the full item slice under the
// single read-modify-write lock span, and persists whatever fn returns.
// This is the primitive ClaimNextRunnable (tasks.go) and other multi-step
// operations are built on, satisfying spec.md §4.1 invariant 2's
// requirement that the lock span the entire read-modify-write.
func (c *Collection[T]) Mutate(fn func([]T) ([]T, error)) error {
	return c.withLock(func() error {
		items, extra, err := c.load()
		if err != nil {
			return err
		}
		items, err = fn(items)
		if err != nil {
			return err
		}
		return c.save(items, extra)
	})
}
