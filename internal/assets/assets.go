// Package assets handles terrain asset lookup and caching.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when no data directory holds the asset.
var ErrNotFound = errors.New("asset not found")

// Manager handles asset loading from data directories.
type Manager struct {
	roots []fs.FS
	names []string
	cache *Cache
	mu    sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// AddDir adds a data directory to the manager.
// Directories are searched in reverse order (last added = highest priority).
func (m *Manager) AddDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("opening data dir %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("opening data dir %s: not a directory", path)
	}
	m.AddFS(path, os.DirFS(path))
	return nil
}

// AddFS adds any file system as a source.
func (m *Manager) AddFS(name string, fsys fs.FS) {
	m.mu.Lock()
	m.roots = append(m.roots, fsys)
	m.names = append(m.names, name)
	m.mu.Unlock()
}

// Load loads a file from the data directories.
func (m *Manager) Load(path string) ([]byte, error) {
	key := filepath.ToSlash(filepath.Clean(path))

	// Check cache first
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.roots) - 1; i >= 0; i-- {
		data, err := fs.ReadFile(m.roots[i], key)
		if err == nil {
			m.cache.Set(key, data)
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s from %s: %w", key, m.names[i], err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Source returns the name of the directory that would serve path.
func (m *Manager) Source(path string) (string, bool) {
	key := filepath.ToSlash(filepath.Clean(path))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.roots) - 1; i >= 0; i-- {
		if _, err := fs.Stat(m.roots[i], key); err == nil {
			return m.names[i], true
		}
	}
	return "", false
}

// Invalidate drops path from the cache so the next Load rereads it.
func (m *Manager) Invalidate(path string) {
	m.cache.Delete(filepath.ToSlash(filepath.Clean(path)))
}

// Close drops every source.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roots = nil
	m.names = nil
	m.cache.Clear()
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Delete removes an item.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
