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

//go:build !linux && !darwin

package segment

import "os"

// mmap falls back to a plain read on platforms the teacher never
// supported a real mmap path for either (only linux was covered by
// ion/blockfmt/mmap_linux.go); callers still see a read-only []byte,
// just not a paged-in view of the file.
func mmap(fp string) ([]byte, error) {
	return os.ReadFile(fp)
}

func munmap(mem []byte) error {
	return nil
}
