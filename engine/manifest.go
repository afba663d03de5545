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
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sneller-labs/sidx/fsutil"
)

const manifestName = ".manifest.json"

// manifest is the ordered list of segment ids currently visible for an
// index path, oldest first. It is the scaffold this project supplies
// for "the surrounding lifecycle management" spec.md §1 leaves to the
// implementer: a single small JSON file, written atomically the same
// way segment.Meta is (spec §8 scenario 6's crash-safety property
// extends to it for the same reason).
type manifest struct {
	Segments []string `json:"segments"`
}

func manifestPath(dir string) string {
	return filepath.Join(dir, manifestName)
}

// readManifest loads dir's manifest, falling back to a directory scan
// for orphaned "<seg>.meta.json" files if the manifest itself is
// missing -- e.g. a directory created by an older engine revision, or
// recovery after a manifest file was lost but segment files survived.
// The scan uses fsutil.VisitDir the way the teacher's db package
// discovers segment files under a table directory.
func readManifest(dir string) (*manifest, error) {
	b, err := os.ReadFile(manifestPath(dir))
	if err == nil {
		var m manifest
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, newErr(Corruption, "load_reader", dir, err)
		}
		return &m, nil
	}
	if !os.IsNotExist(err) {
		return nil, newErr(IO, "load_reader", dir, err)
	}

	var found []string
	root := os.DirFS(dir)
	walkErr := fsutil.VisitDir(root, ".", "", "*.meta.json", func(d fsutil.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		found = append(found, strings.TrimSuffix(d.Name(), ".meta.json"))
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		return nil, newErr(IO, "load_reader", dir, walkErr)
	}
	sort.Strings(found)
	return &manifest{Segments: found}, nil
}

// writeManifest persists m atomically (temp file + rename), mirroring
// segment.WriteMeta's crash-safety rationale exactly.
func writeManifest(dir string, m *manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return newErr(IO, "commit", dir, err)
	}
	final := manifestPath(dir)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return newErr(IO, "commit", dir, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return newErr(IO, "commit", dir, err)
	}
	return nil
}
