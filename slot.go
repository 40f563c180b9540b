// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hopscotch

import (
	"fmt"
	"math/bits"
	"strings"
)

// maxNeighborhood is the largest supported neighborhood distance H. The
// neighborhood bitmap of a slot is a single uint64.
const maxNeighborhood = 64

// neighborhood is the bitmap stored at a home slot. Bit j is set iff the slot
// at home+j holds an element whose home is this slot. Only offsets in [0, H)
// are ever set.
type neighborhood uint64

func (n neighborhood) test(j int) bool {
	checkOffset(j)
	return n&(1<<uint(j)) != 0
}

func (n *neighborhood) set(j int) {
	checkOffset(j)
	*n |= 1 << uint(j)
}

func (n *neighborhood) clear(j int) {
	checkOffset(j)
	*n &^= 1 << uint(j)
}

// first returns the lowest set offset. The bitmap must be non-zero.
func (n neighborhood) first() int {
	return bits.TrailingZeros64(uint64(n))
}

// remove returns the bitmap with offset j cleared. Used when iterating.
func (n neighborhood) remove(j int) neighborhood {
	return n &^ (1 << uint(j))
}

func (n neighborhood) count() int {
	return bits.OnesCount64(uint64(n))
}

// String renders the bitmap as offsets 0..H-1 from left to right, trimmed to
// the highest set offset (at least 1 character).
func (n neighborhood) String() string {
	l := bits.Len64(uint64(n))
	if l == 0 {
		l = 1
	}
	var buf strings.Builder
	buf.Grow(l)
	for j := 0; j < l; j++ {
		if n&(1<<uint(j)) != 0 {
			buf.WriteString("1")
		} else {
			buf.WriteString("0")
		}
	}
	return buf.String()
}

func checkOffset(j int) {
	if invariants && (j < 0 || j >= maxNeighborhood) {
		panic(fmt.Sprintf("invariant failed: neighborhood offset %d out of range", j))
	}
}

// Slot holds one element of a Table along with the neighborhood bitmap used
// when the slot acts as a home. The two are independent: a slot may hold an
// element homed elsewhere while also being the home of other elements.
type Slot[T any] struct {
	value    T
	occupied bool
	hood     neighborhood
}

func (s *Slot[T]) isOccupied() bool {
	return s.occupied
}

func (s *Slot[T]) store(v T) {
	s.value = v
	s.occupied = true
}

// release empties the slot, leaving its neighborhood bitmap untouched.
func (s *Slot[T]) release() {
	var zero T
	s.value = zero
	s.occupied = false
}
