// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package engine

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/dchest/siphash"
)

// cache is the process-wide, concurrent reader-bridge cache (spec §5
// "the segment cache is a concurrent map keyed by path; inserts use
// atomic insert-or-replace with last-writer-wins and a warning on
// overwrite; reads return a shared handle whose lifetime extends
// beyond cache eviction"). Grounded on tenant/dcache.Cache.
//
// Keys are siphash'd with a random process-local key rather than used
// as plain map[string] keys, mirroring tenant.go's ETag hashing: a
// host that supplies arbitrary directory paths as cache keys should
// not be able to target Go's map-collision-resistant-but-still-DoSable
// string hashing with crafted paths.
type cache struct {
	k0, k1 uint64

	mu   sync.Mutex
	rows map[uint64][]*cacheEntry
}

type cacheEntry struct {
	path   string
	bridge *readerBridge
}

func newCache() *cache {
	var seed [16]byte
	// crypto/rand is used only to seed the hash key at process start,
	// not on any data path; this is not a cryptographic use of
	// siphash, just a collision-resistant key selection.
	if _, err := rand.Read(seed[:]); err != nil {
		// Extremely unlikely; fall back to a fixed key rather than
		// leave k0/k1 zero (zero keys are a realistic flood target).
		binary.LittleEndian.PutUint64(seed[:8], 0x9f17c3fd5efd3ce4)
		binary.LittleEndian.PutUint64(seed[8:], 0xdbf1ba5f07eee2c0)
	}
	return &cache{
		k0:   binary.LittleEndian.Uint64(seed[:8]),
		k1:   binary.LittleEndian.Uint64(seed[8:]),
		rows: make(map[uint64][]*cacheEntry),
	}
}

func (c *cache) key(path string) uint64 {
	return siphash.Hash(c.k0, c.k1, []byte(path))
}

// get returns the cached bridge for path, if any.
func (c *cache) get(path string) (*readerBridge, bool) {
	h := c.key(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.rows[h] {
		if e.path == path {
			return e.bridge, true
		}
	}
	return nil, false
}

// insert performs atomic insert-or-replace: if path is already
// present, the old bridge is replaced (last-writer-wins) and logf is
// called with a warning -- the overwritten bridge is not closed here,
// since spec §5 requires its lifetime to "extend beyond cache
// eviction" for any in-flight searches still holding it.
func (c *cache) insert(path string, bridge *readerBridge, logf func(string, ...interface{})) {
	h := c.key(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.rows[h]
	for i, e := range row {
		if e.path == path {
			if logf != nil {
				logf("engine: overwriting cached reader bridge for %s", path)
			}
			row[i] = &cacheEntry{path: path, bridge: bridge}
			return
		}
	}
	c.rows[h] = append(row, &cacheEntry{path: path, bridge: bridge})
}

// remove evicts path from the cache and returns the bridge that was
// there, if any. Eviction does not close the bridge; the caller (e.g.
// FreeReader) decides that.
func (c *cache) remove(path string) (*readerBridge, bool) {
	h := c.key(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.rows[h]
	for i, e := range row {
		if e.path == path {
			c.rows[h] = append(row[:i], row[i+1:]...)
			return e.bridge, true
		}
	}
	return nil, false
}
