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
	"os"
	"path/filepath"

	"github.com/sneller-labs/sidx/merge"
	"github.com/sneller-labs/sidx/segment"
)

// MergeAll compacts every segment currently listed in path's manifest
// into one new segment (spec §4.7). It is the host-triggered
// counterpart to the background merge cycle spec §7's policy describes
// ("background merge failures are logged and retried by the next merge
// cycle without affecting readers"): a failed MergeAll leaves the old
// segments and the old manifest untouched, so readers already loaded
// keep serving their snapshot.
//
// GC of the superseded segments (spec §4.7, §9 "SUPPLEMENTED
// FEATURES") happens only after the new segment's meta is durably
// written and the manifest has been rewritten to point at it -- a
// crash between those two steps and the unlink pass below leaves both
// old and new segment files on disk, which is safe, since the old ones
// are simply never opened again (grounded on db/gc.go's GC-as-a-
// distinct-retry-safe-phase-from-commit design).
func (e *Engine) MergeAll(path string, opts merge.Options) Result {
	m, err := readManifest(path)
	if err != nil {
		return fail(err)
	}
	if len(m.Segments) < 2 {
		return ok() // nothing to merge
	}

	inputs := make([]segment.Reader, 0, len(m.Segments))
	for _, id := range m.Segments {
		meta, err := segment.ReadMeta(path, id)
		if err != nil {
			return fail(newErr(Corruption, "merge", path, err))
		}
		if meta.Version.StorageKind == segment.StorageMemory {
			r, ok := e.lookupMem(path, id)
			if !ok {
				return fail(newErr(Corruption, "merge", path, fmt.Errorf("segment %s: memory segment not resident", id)))
			}
			inputs = append(inputs, r)
			continue
		}
		r, err := segment.Open(path, id)
		if err != nil {
			return fail(newErr(Corruption, "merge", path, err))
		}
		defer r.Close()
		inputs = append(inputs, r)
	}

	newID := newSegmentID("merged")
	if _, err := merge.Merge(path, newID, inputs, opts); err != nil {
		return fail(newErr(IO, "merge", path, err))
	}

	lock, err := acquireMetaLock(path)
	if err != nil {
		return fail(err)
	}
	defer lock.release()

	old := m.Segments
	if err := writeManifest(path, &manifest{Segments: []string{newID}}); err != nil {
		// The new segment's files are now orphaned on disk but the
		// manifest still points at the pre-merge set; a future
		// MergeAll call will simply redo the work.
		return fail(err)
	}

	e.gcSegments(path, old)
	return ok()
}

// gcSegments unlinks the on-disk files belonging to superseded
// segments. Errors are logged, not returned: a half-removed segment is
// inert (nothing references it from the manifest anymore) and will be
// retried on the next merge cycle that happens to name the same id,
// which never actually recurs -- so in practice a logged failure here
// just means a stray file lingers until an operator cleans it up.
func (e *Engine) gcSegments(dir string, segIDs []string) {
	for _, id := range segIDs {
		e.forgetMem(dir, id)
		for _, suffix := range []string{".meta.json", ".headers", ".postings", ".row_ids", ".blocks"} {
			p := filepath.Join(dir, id+suffix)
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				e.logf("engine: gc: removing %s: %v", p, err)
			}
		}
	}
}
