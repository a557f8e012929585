package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"callfuse/internal/observ"
)

// Current schema version - increment when DiskPayload format changes
const diskCacheSchemaVersion uint16 = 1

// DiskCache stores transformed outputs keyed by input digest on disk.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload stores a cached transform result for fast re-runs.
type DiskPayload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	// Input identity
	Input       Digest
	Fingerprint string

	// Transformed module text
	Output string

	// Merge statistics
	FuncsSeen       uint32
	FuncsChanged    uint32
	GroupsMerged    uint32
	CallsEliminated uint32
}

// OpenDiskCache initializes and returns a disk cache at the standard location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// OpenDiskCacheAt initializes a disk cache rooted at an explicit directory.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) pathFor(key Digest) string {
	hexKey := hex.EncodeToString(key[:])
	// Subdirectory keeps the cache root readable and easy to sweep.
	return filepath.Join(c.dir, "out", hexKey+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *DiskCache) Put(key Digest, payload *DiskPayload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err = os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("failed to remove temp file: %v", err)
		}
	}()

	enc := msgpack.NewEncoder(f)
	err = enc.Encode(payload)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Atomic replace
	return os.Rename(f.Name(), p)
}

// Get reads and deserializes a payload from the disk cache. It reports false
// on a miss, including payloads written by an older schema.
func (c *DiskCache) Get(key Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.pathFor(key)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			panic(closeErr)
		}
	}()
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(out); err != nil {
		return false, err
	}
	if out.Schema != diskCacheSchemaVersion {
		return false, nil
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Rename out of the way first so concurrent readers never see a
	// half-deleted tree.
	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// statsToPayload converts merge statistics for caching.
func statsToPayload(st observ.Stats, key Digest, fingerprint, output string) (*DiskPayload, error) {
	payload := &DiskPayload{
		Schema:      diskCacheSchemaVersion,
		Input:       key,
		Fingerprint: fingerprint,
		Output:      output,
	}
	var err error
	if payload.FuncsSeen, err = safecast.Conv[uint32](st.FuncsSeen); err != nil {
		return nil, fmt.Errorf("funcs seen overflow: %w", err)
	}
	if payload.FuncsChanged, err = safecast.Conv[uint32](st.FuncsChanged); err != nil {
		return nil, fmt.Errorf("funcs changed overflow: %w", err)
	}
	if payload.GroupsMerged, err = safecast.Conv[uint32](st.GroupsMerged); err != nil {
		return nil, fmt.Errorf("groups merged overflow: %w", err)
	}
	if payload.CallsEliminated, err = safecast.Conv[uint32](st.CallsEliminated); err != nil {
		return nil, fmt.Errorf("calls eliminated overflow: %w", err)
	}
	return payload, nil
}

// payloadToStats restores merge statistics from a cached payload.
func payloadToStats(payload *DiskPayload) observ.Stats {
	if payload == nil {
		return observ.Stats{}
	}
	return observ.Stats{
		FuncsSeen:       int(payload.FuncsSeen),
		FuncsChanged:    int(payload.FuncsChanged),
		GroupsMerged:    int(payload.GroupsMerged),
		CallsEliminated: int(payload.CallsEliminated),
	}
}
