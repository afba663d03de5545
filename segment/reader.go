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

package segment

import (
	"fmt"

	"github.com/sneller-labs/sidx/posting"
)

// Reader is the read-only view both on-disk layouts expose, the shape
// the merger and the search path consume without caring which layout a
// given segment happens to use (spec §4.9's "C5/C6 expose per-dim
// posting views").
type Reader interface {
	Meta() *Meta
	Dim(dim uint32) (*posting.List, bool, error)
	Close() error
}

// Open opens segID under dir, dispatching on its meta's storage_kind.
func Open(dir, segID string) (Reader, error) {
	m, err := ReadMeta(dir, segID)
	if err != nil {
		return nil, err
	}
	switch m.Version.StorageKind {
	case StorageMmap:
		return OpenPlain(dir, segID)
	case StorageCompressedMmap:
		return OpenCompressed(dir, segID)
	default:
		return nil, fmt.Errorf("segment: unsupported storage_kind %q", m.Version.StorageKind)
	}
}
