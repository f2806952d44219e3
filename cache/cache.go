// Package cache is a content-addressed store of generated assets.
// Identical input never triggers duplicate generation while an entry
// is present; entries are never invalidated.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"viral-content-pipeline/types"
)

// Key is a stable fingerprint of (scene content, stage kind, style
// parameters, provider).
type Key string

// Fingerprint derives a cache key. Content whitespace is collapsed so
// formatting differences in the same script text hash identically.
func Fingerprint(kind types.AssetKind, content, style, provider string) Key {
	normalized := strings.Join(strings.Fields(content), " ")
	h := sha256.New()
	for _, part := range []string{string(kind), normalized, style, provider} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Cache holds assets keyed by fingerprint, with per-key mutual
// exclusion so concurrent scene tasks never generate the same asset
// twice. Different keys proceed fully in parallel.
type Cache struct {
	mu           sync.Mutex
	entries      map[Key]types.SceneAsset
	locks        map[Key]*sync.Mutex
	manifestPath string
	// saveMu serializes manifest writes; Put calls for different keys
	// run concurrently.
	saveMu sync.Mutex
}

// New creates a cache, loading the persisted manifest when one exists.
func New(manifestPath string) *Cache {
	c := &Cache{
		entries:      make(map[Key]types.SceneAsset),
		locks:        make(map[Key]*sync.Mutex),
		manifestPath: manifestPath,
	}
	c.loadManifest()
	return c
}

// Get returns the cached asset for key, if present.
func (c *Cache) Get(key Key) (types.SceneAsset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	asset, ok := c.entries[key]
	return asset, ok
}

// Put stores an asset under key and persists the manifest.
func (c *Cache) Put(key Key, asset types.SceneAsset) {
	c.mu.Lock()
	c.entries[key] = asset
	c.mu.Unlock()
	c.saveManifest()
}

// Do returns the cached asset for key or generates it, holding the
// key's lock around the check-generate-store sequence. The bool
// reports whether the result was a cache hit.
func (c *Cache) Do(key Key, generate func() (types.SceneAsset, error)) (types.SceneAsset, bool, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if asset, ok := c.Get(key); ok {
		return asset, true, nil
	}

	asset, err := generate()
	if err != nil {
		return asset, false, err
	}
	// Placeholders are not cached: the next run should retry the
	// real provider instead of replaying the stand-in.
	if asset.Status == types.AssetSuccess {
		c.Put(key, asset)
	}
	return asset, false, nil
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) keyLock(key Key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}

func (c *Cache) loadManifest() {
	if c.manifestPath == "" {
		return
	}
	data, err := os.ReadFile(c.manifestPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("could not read cache manifest")
		}
		return
	}
	entries := make(map[Key]types.SceneAsset)
	if err := json.Unmarshal(data, &entries); err != nil {
		logrus.WithError(err).Warn("cache manifest corrupt, starting empty")
		return
	}
	c.entries = entries
	logrus.WithField("entries", len(entries)).Debug("cache manifest loaded")
}

func (c *Cache) saveManifest() {
	if c.manifestPath == "" {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.manifestPath), 0755); err != nil {
		return
	}

	// Write-then-rename so a crash or racing reader never sees a
	// half-written manifest.
	tmp := c.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logrus.WithError(err).Warn("could not save cache manifest")
		return
	}
	if err := os.Rename(tmp, c.manifestPath); err != nil {
		logrus.WithError(err).Warn("could not save cache manifest")
	}
}
