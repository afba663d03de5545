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
	"fmt"
	"math"
	"sync"

	"github.com/sneller-labs/sidx/bitmap"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/search"
	"github.com/sneller-labs/sidx/segment"
)

// Engine is the process-wide registry of writer and reader bridges
// (spec §9 "global mutable state... the writer-bridge and reader-bridge
// caches are process-wide. In a rewrite, prefer passing an explicit
// Engine handle owned by the host"). A host embeds one Engine and
// drives it through the seven operations below rather than reaching for
// package-level globals.
type Engine struct {
	Logger Logger

	mu      sync.Mutex
	writers map[string]*Writer

	readers *cache

	memMu   sync.Mutex
	memSegs map[string]map[string]*segment.MemoryReader // dir -> segID -> reader
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		writers: make(map[string]*Writer),
		readers: newCache(),
		memSegs: make(map[string]map[string]*segment.MemoryReader),
	}
}

func (e *Engine) lookupMem(dir, segID string) (*segment.MemoryReader, bool) {
	e.memMu.Lock()
	defer e.memMu.Unlock()
	r, ok := e.memSegs[dir][segID]
	return r, ok
}

func (e *Engine) registerMem(dir, segID string, r *segment.MemoryReader) {
	e.memMu.Lock()
	defer e.memMu.Unlock()
	if e.memSegs[dir] == nil {
		e.memSegs[dir] = make(map[string]*segment.MemoryReader)
	}
	e.memSegs[dir][segID] = r
}

func (e *Engine) forgetMem(dir, segID string) {
	e.memMu.Lock()
	defer e.memMu.Unlock()
	delete(e.memSegs[dir], segID)
}

// CreateIndex opens a new writer bridge for path that uses settings for
// every segment it commits (spec §6 create_index). The settings are held
// in memory by the writer only; they are not written to disk. It fails with
// Conflict if a writer bridge for path already exists (the writer
// lock file is the source of truth, so this also detects a writer left
// by a different process).
func (e *Engine) CreateIndex(path string, settingsJSON []byte) Result {
	settings, err := ParseSettings(settingsJSON)
	if err != nil {
		return fail(newErr(InvalidArgument, "create_index", path, err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.writers[path]; exists {
		return fail(newErr(Conflict, "create_index", path, fmt.Errorf("writer already open for %s", path)))
	}

	lock, err := acquireWriterLock(path)
	if err != nil {
		return fail(err)
	}
	e.writers[path] = newWriter(path, *settings, lock)
	return ok()
}

// Insert appends (row_id, sparse_vector) to path's open writer (spec
// §6 insert). vec uses the same (dim, weight) pair shape insert uses
// throughout the core packages.
func (e *Engine) Insert(path string, rowID uint32, vec []ramindex.Pair) Result {
	w, err := e.writer(path, "insert")
	if err != nil {
		return fail(err)
	}
	if err := w.Insert(rowID, vec); err != nil {
		return fail(err)
	}
	return ok()
}

// Commit seals path's open writer's accumulated rows into a new
// segment, appends it to the index's manifest, and returns (spec §6
// commit). The writer remains open afterward and may accept further
// inserts for the next segment (spec §4.4's builder-is-consumed
// semantics apply per-commit, not per-writer-lifetime).
func (e *Engine) Commit(path string) Result {
	w, err := e.writer(path, "commit")
	if err != nil {
		return fail(err)
	}
	res, err := w.Commit()
	if err != nil {
		return fail(err)
	}

	m, err := readManifest(path)
	if err != nil {
		return fail(err)
	}
	m.Segments = append(m.Segments, res.segID)
	if err := writeManifest(path, m); err != nil {
		return fail(err)
	}
	if res.postings != nil {
		e.registerMem(path, res.segID, segment.NewMemoryReader(res.meta, res.postings))
	}
	return ok()
}

// FreeWriter closes path's writer bridge and releases its lock file
// (spec §6 free_writer). Uncommitted inserts are discarded.
func (e *Engine) FreeWriter(path string) Result {
	e.mu.Lock()
	w, exists := e.writers[path]
	if exists {
		delete(e.writers, path)
	}
	e.mu.Unlock()
	if !exists {
		return fail(newErr(NotFound, "free_writer", path, fmt.Errorf("no writer open for %s", path)))
	}
	if err := w.lock.release(); err != nil {
		return fail(err)
	}
	return ok()
}

// LoadReader opens (or reopens) path's reader bridge: every segment
// currently listed in the manifest is opened and the bridge is
// inserted into the process-wide cache with insert-or-replace
// semantics (spec §6 load_reader, §5 segment cache).
func (e *Engine) LoadReader(path string) Result {
	bridge, err := loadReaderBridge(path, e.lookupMem)
	if err != nil {
		return fail(err)
	}
	e.readers.insert(path, bridge, e.logf)
	return ok()
}

// FreeReader evicts path's reader bridge from the cache and closes it
// (spec §6 free_reader). It is NotFound if no bridge is cached.
func (e *Engine) FreeReader(path string) Result {
	bridge, found := e.readers.remove(path)
	if !found {
		return fail(newErr(NotFound, "free_reader", path, fmt.Errorf("no reader loaded for %s", path)))
	}
	if err := bridge.Close(); err != nil {
		return fail(newErr(IO, "free_reader", path, err))
	}
	return ok()
}

// Search runs a top-k WAND search over path's cached reader bridge
// (spec §6 search). filterBytes is the raw packed alive-row bitmap
// (spec §6 "filter_bytes wire format"); empty bytes mean no filtering.
// With a non-empty filter, any row_id past the end of filterBytes is
// treated as not alive and never returned.
func (e *Engine) Search(path string, query []search.Term, filterBytes []byte, topK int) ([]search.Result, Result) {
	bridge, found := e.readers.get(path)
	if !found {
		return nil, fail(newErr(NotFound, "search", path, fmt.Errorf("no reader loaded for %s", path)))
	}
	for _, t := range query {
		if math.IsNaN(float64(t.Weight)) {
			return nil, fail(newErr(InvalidArgument, "search", path, fmt.Errorf("NaN query weight for dim %d", t.Dim)))
		}
	}
	var filter *bitmap.Bitmap
	if len(filterBytes) > 0 {
		filter = bitmap.FromBytes(filterBytes)
	}
	results, err := search.SearchMulti(bridge.segs, query, filter, topK)
	if err != nil {
		return nil, fail(newErr(IO, "search", path, err))
	}
	return results, ok()
}

func (e *Engine) writer(path, op string) (*Writer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, exists := e.writers[path]
	if !exists {
		return nil, newErr(NotFound, op, path, fmt.Errorf("no writer open for %s", path))
	}
	return w, nil
}
