// Package meshcache persists per-object meshes between runs so unchanged
// objects are not recomputed. Entries live on disk under
// <root>/<time>-<channel>/<time>-<label>.mesh with an optional in-memory
// front.
package meshcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"

	"labelmesh/internal/models"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/mesh"
)

// MergedName is the file name of the persisted merged buffer.
const MergedName = "merged.obj"

// Cache maps object keys to meshes. Save is asynchronous; call Flush before
// relying on the files.
type Cache struct {
	root string
	mem  *freecache.Cache

	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	hits   uint64
	misses uint64
}

// New creates a cache rooted at root. memBytes sizes the in-memory front; 0
// disables it.
func New(root string, memBytes int) *Cache {
	c := &Cache{root: root}
	if memBytes > 0 {
		c.mem = freecache.NewCache(memBytes)
		logging.Infof("Created freecache of ~ %s for object meshes", humanize.Bytes(uint64(memBytes)))
	}
	return c
}

// Root returns the directory the cache writes under.
func (c *Cache) Root() string { return c.root }

// ShouldRecompute reports whether label must be meshed again. A nil set
// means everything changed; otherwise only members did.
func ShouldRecompute(updated models.LabelSet, label uint64) bool {
	if updated == nil {
		return true
	}
	return updated.Contains(label)
}

func (c *Cache) dir(time, channel int) string {
	return filepath.Join(c.root, fmt.Sprintf("%d-%d", time, channel))
}

// Path returns the file holding key.
func (c *Cache) Path(key models.ObjectKey) string {
	return filepath.Join(c.dir(key.Time, key.Channel), fmt.Sprintf("%d-%d.mesh", key.Time, key.Label))
}

// Load returns the cached mesh for key. Missing, unreadable and corrupt
// entries are all misses.
func (c *Cache) Load(key models.ObjectKey) (*mesh.Mesh, bool) {
	if c.mem != nil {
		data, err := c.mem.Get([]byte(key.String()))
		if err == nil {
			if m, err := Decode(data); err == nil {
				atomic.AddUint64(&c.hits, 1)
				return m, true
			}
			c.mem.Del([]byte(key.String()))
		} else if err != freecache.ErrNotFound {
			logging.Debugf("Memory cache lookup for %s failed: %v", key, err)
		}
	}

	data, err := os.ReadFile(c.Path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Debugf("Unable to read cached mesh %s: %v", c.Path(key), err)
		}
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	m, err := Decode(data)
	if err != nil {
		logging.Debugf("Ignoring cached mesh %s: %v", c.Path(key), err)
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	c.remember(key, data)
	atomic.AddUint64(&c.hits, 1)
	return m, true
}

func (c *Cache) remember(key models.ObjectKey, data []byte) {
	if c.mem == nil {
		return
	}
	if err := c.mem.Set([]byte(key.String()), data, 0); err != nil {
		logging.Debugf("Unable to keep %s in memory: %v", key, err)
	}
}

// Save writes m for key in the background. The in-memory front is updated
// before Save returns.
func (c *Cache) Save(key models.ObjectKey, m *mesh.Mesh) {
	data, err := Encode(m)
	if err != nil {
		c.fail(fmt.Errorf("encoding %s: %w", key, err))
		return
	}
	c.remember(key, data)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := writeFile(c.Path(key), data); err != nil {
			c.fail(err)
		}
	}()
}

func (c *Cache) fail(err error) {
	logging.Errorf("Mesh cache: %v", err)
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

// Flush waits for pending writes and returns the first error since the last
// Flush.
func (c *Cache) Flush() error {
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	if n := len(c.errs); n > 1 {
		err = fmt.Errorf("%w (and %d more)", err, n-1)
	}
	c.errs = nil
	return err
}

// Counts returns how many loads hit and missed.
func (c *Cache) Counts() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// SaveMerged persists the merged buffer of one (time, channel).
func (c *Cache) SaveMerged(time, channel int, buf []byte) error {
	return writeFile(filepath.Join(c.dir(time, channel), MergedName), buf)
}

// LoadMerged reads a buffer written by SaveMerged.
func (c *Cache) LoadMerged(time, channel int) ([]byte, error) {
	return os.ReadFile(filepath.Join(c.dir(time, channel), MergedName))
}

// writeFile writes through a temporary file so readers never see a partial
// entry.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
