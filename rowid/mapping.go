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

// Package rowid implements the per-segment internal-ordinal <->
// external-row_id translation (spec §4.10). A nil *Mapping means
// "identity": every operation on it behaves as though internal and
// external row_ids coincide, which is the common case for this
// library's host (row_ids assigned by the builder already are the
// host's external ids).
package rowid

// Mapping is a per-segment dense ordinal -> external row_id table,
// plus its inverse for translating host-supplied filter bitmaps.
type Mapping struct {
	toExternal []uint32
	toInternal map[uint32]uint32
}

// New builds a Mapping from an ordinal-ordered slice of external
// row_ids (toExternal[i] is the external id of internal ordinal i).
func New(toExternal []uint32) *Mapping {
	toInternal := make(map[uint32]uint32, len(toExternal))
	for i, ext := range toExternal {
		toInternal[ext] = uint32(i)
	}
	return &Mapping{toExternal: toExternal, toInternal: toInternal}
}

// External returns the external row_id for an internal ordinal. A nil
// Mapping, or an out-of-range ordinal, returns the ordinal unchanged
// (identity).
func (m *Mapping) External(internal uint32) uint32 {
	if m == nil || int(internal) >= len(m.toExternal) {
		return internal
	}
	return m.toExternal[internal]
}

// Internal returns the internal ordinal for an external row_id, and
// whether one exists. A nil Mapping always reports (external, true).
func (m *Mapping) Internal(external uint32) (uint32, bool) {
	if m == nil {
		return external, true
	}
	v, ok := m.toInternal[external]
	return v, ok
}

// TranslateRows maps a slice of external row_ids into internal
// ordinals, dropping any that have no mapping (deleted or never
// indexed rows). A nil Mapping returns rows unchanged.
func (m *Mapping) TranslateRows(rows []uint32) []uint32 {
	if m == nil {
		return rows
	}
	out := make([]uint32, 0, len(rows))
	for _, r := range rows {
		if v, ok := m.toInternal[r]; ok {
			out = append(out, v)
		}
	}
	return out
}
