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

	"github.com/google/uuid"
)

// newSegmentID generates a uuid-suffixed segment file-name triple,
// replacing spec.md's generic "optional segment id suffix" (spec §6
// "persisted layout per segment"). Grounded on cmd/snellerd's
// per-request uuid.New().String() usage.
func newSegmentID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}
