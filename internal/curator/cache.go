package curator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"taskforge/internal/logging"
)

// advisoryCache persists phase outputs as JSON under
// <out>/context-curator/cache/. It is strictly advisory: corrupted or
// unreadable entries cause a single fall-through to regeneration.
type advisoryCache struct {
	dir string
}

func newAdvisoryCache(outputRoot string) *advisoryCache {
	return &advisoryCache{dir: filepath.Join(outputRoot, "context-curator", "cache")}
}

// hashKey derives the cache key from the inputs that determine the output.
func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *advisoryCache) path(name, key string) string {
	return filepath.Join(c.dir, name+"-"+key+".json")
}

// get loads a cached entry into v. Any failure reads as a miss.
func (c *advisoryCache) get(name, key string, v interface{}) bool {
	data, err := os.ReadFile(c.path(name, key))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logging.Cache("corrupted cache entry %s-%s, regenerating: %v", name, key, err)
		os.Remove(c.path(name, key))
		return false
	}
	logging.Cache("cache hit: %s-%s", name, key)
	return true
}

// put stores v. Failures are logged, never surfaced.
func (c *advisoryCache) put(name, key string, v interface{}) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		logging.Cache("cannot create cache dir: %v", err)
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.Cache("cannot marshal cache entry %s-%s: %v", name, key, err)
		return
	}
	if err := os.WriteFile(c.path(name, key), data, 0644); err != nil {
		logging.Cache("cannot write cache entry %s-%s: %v", name, key, err)
	}
}
