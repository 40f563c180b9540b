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

// Package hopscotch is a Go implementation of hopscotch hashing as described
// in "Hopscotch Hashing" by Herlihy, Shavit and Tzafrir (DISC 2008).
//
// # Hopscotch Hashing
//
// A hopscotch table is an open-addressing hash table in which every element
// lives within H slots of its home, the slot index obtained by taking the
// element's hash modulo the capacity. Each slot carries an H-bit neighborhood
// bitmap describing which of the H slots starting at it currently hold
// elements homed there:
//
//	index:     2   3   4   5   6
//	home:      2   2   3   2   -
//	bitmap[2]: 1101  (offsets 0, 1 and 3)
//	bitmap[3]: 0100  (offset 1)
//
// A lookup reads the bitmap at the home slot and compares at most H elements,
// so its cost does not depend on the load factor.
//
// Insertion linearly probes forward from the home for the first free slot. If
// that slot is within H of the home the element is stored there. Otherwise the
// free slot is moved backwards: among the H-1 slots preceding it we look for a
// home with an element that sits before the free slot and could legally live
// in the free slot, move that element forward, and continue from the slot it
// vacated. When no such element exists the table is resized and the insertion
// is retried, up to a bounded number of attempts.
//
// The slot array is linear; neighborhoods do not wrap around. A home near the
// end of the array therefore has a neighborhood clipped at the last slot.
//
// Removal clears the slot and the corresponding bit of the home bitmap. No
// tombstones are needed because lookups never probe beyond the neighborhood.
//
// # Elements
//
// A Table stores a set of unique values of any type T. The table learns how
// to hash and compare values from a Hasher supplied at construction, see
// HashFunc, SelfHasher, StringHasher, BytesHasher and IntegerHasher.
package hopscotch

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const debug = false

// Table is an unordered set of values organized with hopscotch hashing.
//
// A Table is NOT goroutine-safe.
type Table[T any] struct {
	hasher Hasher[T]
	// The allocator to use for the slots slice.
	allocator Allocator[T]
	logger    *zap.Logger
	// slots is capacity in length. It is replaced wholesale by resize.
	slots []Slot[T]
	// The number of occupied slots.
	count int
	// The load factor count/capacity may not exceed maxLoad once an insert
	// has completed.
	maxLoad float64
	// h is the neighborhood size: an element never lives at or beyond
	// home+h.
	h int
	// maxRetries bounds the placement attempts made by insert and resize.
	maxRetries int
}

// New constructs a new Table with the specified initial capacity that hashes
// and compares its elements with hasher. It returns an error wrapping
// ErrInvalidArgument if initialCapacity is not positive or an option is out
// of range.
func New[T any](initialCapacity int, hasher Hasher[T], options ...option[T]) (*Table[T], error) {
	t := &Table[T]{
		hasher:     hasher,
		allocator:  defaultAllocator[T]{},
		logger:     zap.NewNop(),
		maxLoad:    defaultMaxLoad,
		h:          defaultNeighborhood,
		maxRetries: defaultMaxRetries,
	}

	for _, op := range options {
		op.apply(t)
	}

	if err := t.validate(initialCapacity); err != nil {
		return nil, err
	}

	t.slots = t.allocator.AllocSlots(initialCapacity)
	t.checkInvariants()
	return t, nil
}

func (t *Table[T]) validate(capacity int) error {
	switch {
	case capacity <= 0:
		return errors.Wrapf(ErrInvalidArgument, "capacity %d is not positive", capacity)
	case t.hasher == nil:
		return errors.Wrap(ErrInvalidArgument, "hasher not set")
	case t.allocator == nil:
		return errors.Wrap(ErrInvalidArgument, "allocator not set")
	case !(t.maxLoad > 0 && t.maxLoad <= 1):
		return errors.Wrapf(ErrInvalidArgument, "max load %v not in (0, 1]", t.maxLoad)
	case t.h < 1 || t.h > maxNeighborhood:
		return errors.Wrapf(ErrInvalidArgument, "neighborhood %d not in [1, %d]", t.h, maxNeighborhood)
	case t.maxRetries < 1:
		return errors.Wrapf(ErrInvalidArgument, "max retries %d is not positive", t.maxRetries)
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return nil
}

// Close closes the table, releasing the slot array back to its configured
// allocator. It is unnecessary to close a table using the default allocator.
// A closed table is empty: Insert returns an error wrapping
// ErrInvalidArgument and lookups find nothing. Close itself is idempotent.
func (t *Table[T]) Close() {
	if t.slots != nil {
		t.allocator.FreeSlots(t.slots)
		t.slots = nil
	}
	t.count = 0
	t.allocator = nil
}

// Contains returns true iff a value equal to v is present.
func (t *Table[T]) Contains(v T) bool {
	_, ok := t.FindPosition(v)
	return ok
}

// FindPosition returns the index of the slot holding the value equal to v, or
// ok=false if there is none. At most H slots are examined.
func (t *Table[T]) FindPosition(v T) (index int, ok bool) {
	if len(t.slots) == 0 {
		return -1, false
	}
	return t.find(t.slots, t.home(v, len(t.slots)), v)
}

// ElementAt returns the value stored in the slot at index. It returns an
// error wrapping ErrIndexOutOfRange if index is outside [0, Capacity()) or
// the slot is free.
func (t *Table[T]) ElementAt(index int) (T, error) {
	if index < 0 || index >= len(t.slots) || !t.slots[index].isOccupied() {
		var zero T
		return zero, errors.Wrapf(ErrIndexOutOfRange,
			"slot %d is free or outside [0, %d)", index, len(t.slots))
	}
	return t.slots[index].value, nil
}

// Insert adds v to the table. It returns an error wrapping ErrDuplicateValue
// if an equal value is already present, in which case the table is
// unchanged. The table grows as needed to keep its load factor at or below
// the configured maximum.
//
// Every failed placement and every failed rehash counts against a single
// budget of attempts (see WithMaxRetries). Once it is spent, Insert returns an
// error wrapping ErrInsertUnresolvable. The table remains valid (it may have
// grown) but does not contain v.
func (t *Table[T]) Insert(v T) error {
	if t.allocator == nil {
		return errors.Wrap(ErrInvalidArgument, "insert into closed table")
	}
	if t.Contains(v) {
		return errors.Wrapf(ErrDuplicateValue, "%v", v)
	}

	// Before performing the insertion we may decide the table is getting
	// overcrowded.
	var failed int
	for t.overloaded(t.count + 1) {
		if err := t.grow(&failed); err != nil {
			return err
		}
	}

	for {
		if t.place(t.slots, v) {
			t.count++
			t.checkInvariants()
			return nil
		}
		failed++
		if failed >= t.maxRetries {
			t.logger.Warn("hopscotch: insert unresolvable",
				zap.Int("attempts", failed),
				zap.Int("capacity", len(t.slots)),
				zap.Int("count", t.count))
			return errUnresolvable(failed, len(t.slots), t.count)
		}
		t.logger.Debug("hopscotch: no free slot in neighborhood, resizing",
			zap.Int("attempt", failed),
			zap.Int("capacity", len(t.slots)))
		if err := t.grow(&failed); err != nil {
			return err
		}
	}
}

// Remove deletes the value equal to v from the table, returning true if it
// was present. It is a noop to remove a value that is not present. The table
// never shrinks.
func (t *Table[T]) Remove(v T) bool {
	if len(t.slots) == 0 {
		return false
	}
	h := t.home(v, len(t.slots))
	i, ok := t.find(t.slots, h, v)
	if !ok {
		if debug {
			fmt.Printf("remove(%v): home=%d not-found\n", v, h)
		}
		return false
	}

	// The vacated slot needs no marker: lookups only ever visit slots named
	// by a home bitmap.
	t.slots[i].release()
	t.slots[h].hood.clear(i - h)
	t.count--
	if debug {
		fmt.Printf("remove(%v): home=%d index=%d count=%d\n", v, h, i, t.count)
	}
	t.checkInvariants()
	return true
}

// All calls yield sequentially for each value present in the table, in slot
// order. If yield returns false, iteration stops. The table must not be
// mutated during iteration.
func (t *Table[T]) All(yield func(v T) bool) {
	for i := range t.slots {
		if t.slots[i].isOccupied() && !yield(t.slots[i].value) {
			return
		}
	}
}

// Clear deletes all values from the table, retaining its capacity.
func (t *Table[T]) Clear() {
	for i := range t.slots {
		t.slots[i] = Slot[T]{}
	}
	t.count = 0
	t.checkInvariants()
}

// Len returns the number of values in the table.
func (t *Table[T]) Len() int {
	return t.count
}

// Capacity returns the number of slots in the table.
func (t *Table[T]) Capacity() int {
	return len(t.slots)
}

// Load returns the current load factor, Len()/Capacity().
func (t *Table[T]) Load() float64 {
	if len(t.slots) == 0 {
		return 0
	}
	return float64(t.count) / float64(len(t.slots))
}

func (t *Table[T]) home(v T, capacity int) int {
	return int(t.hasher.Hash(v) % uint64(capacity))
}

func (t *Table[T]) overloaded(count int) bool {
	return float64(count) > float64(len(t.slots))*t.maxLoad
}

// find scans the neighborhood bitmap of home h from the lowest offset up and
// returns the first slot holding a value equal to v.
func (t *Table[T]) find(slots []Slot[T], h int, v T) (int, bool) {
	for hood := slots[h].hood; hood != 0; {
		j := hood.first()
		if t.hasher.Equal(slots[h+j].value, v) {
			return h + j, true
		}
		hood = hood.remove(j)
	}
	return -1, false
}

// place stores v, known not to be in slots, within the neighborhood of its
// home. It returns false if no free slot could be brought into that
// neighborhood. A failed placement may still have displaced other elements,
// each of which remains within its own neighborhood.
func (t *Table[T]) place(slots []Slot[T], v T) bool {
	n := len(slots)
	h := t.home(v, n)

	// The probe for a free slot is unbounded, but there is no wraparound.
	free := h
	for free < n && slots[free].isOccupied() {
		free++
	}
	if free == n {
		if debug {
			fmt.Printf("place(%v): home=%d no free slot before end\n", v, h)
		}
		return false
	}

	for free-h >= t.h {
		next, ok := t.displace(slots, free)
		if !ok {
			if debug {
				fmt.Printf("place(%v): home=%d free=%d stuck\n", v, h, free)
			}
			return false
		}
		free = next
	}

	slots[free].store(v)
	slots[h].hood.set(free - h)
	if debug {
		fmt.Printf("place(%v): home=%d index=%d hood=%s\n", v, h, free, slots[h].hood)
	}
	return true
}

// displace moves the free slot at index free closer to the start of the
// array. It looks at the homes in [free-(H-1), free-1], nearest to free
// first, for an element located before free. Such an element is moved into
// free, which is still within H of its home, and the index it vacated is
// returned.
func (t *Table[T]) displace(slots []Slot[T], free int) (int, bool) {
	lo := free - (t.h - 1)
	if lo < 0 {
		lo = 0
	}
	for home := free - 1; home >= lo; home-- {
		hood := slots[home].hood
		if hood == 0 {
			continue
		}
		// Offsets are visited in increasing order, so if the lowest one is not
		// before free then none is.
		j := hood.first()
		src := home + j
		if src >= free {
			continue
		}
		slots[free].store(slots[src].value)
		slots[src].release()
		slots[home].hood.clear(j)
		slots[home].hood.set(free - home)
		if debug {
			fmt.Printf("displace: home=%d %d -> %d hood=%s\n", home, src, free, slots[home].hood)
		}
		return src, true
	}
	return free, false
}

// nextCapacity returns the capacity to grow to from capacity c. It is always
// larger than c.
func (t *Table[T]) nextCapacity(c int) int {
	n := int(float64(c) / t.maxLoad)
	if n <= c {
		n = c + 1
	}
	return n
}

func (t *Table[T]) grow(failed *int) error {
	return t.resize(t.nextCapacity(len(t.slots)), failed)
}

// resize allocates a bigger slot array and places each element of the table
// into the new array (we know that no placement here will encounter an
// already-present value), and frees the old backing array. If an element
// cannot be placed, the new array is discarded and the rehash restarts at the
// next larger capacity. Each failed rehash increments *failed, and resize
// gives up once *failed reaches maxRetries.
func (t *Table[T]) resize(newCapacity int, failed *int) error {
	old := t.slots
	for {
		slots := t.allocator.AllocSlots(newCapacity)
		if t.rehashInto(old, slots) {
			t.logger.Debug("hopscotch: resized",
				zap.Int("old-capacity", len(old)),
				zap.Int("new-capacity", newCapacity),
				zap.Int("count", t.count))
			t.slots = slots
			if old != nil {
				t.allocator.FreeSlots(old)
			}
			t.checkInvariants()
			return nil
		}

		t.allocator.FreeSlots(slots)
		*failed++
		if *failed >= t.maxRetries {
			t.logger.Warn("hopscotch: rehash unresolvable",
				zap.Int("attempts", *failed),
				zap.Int("capacity", newCapacity),
				zap.Int("count", t.count))
			return errUnresolvable(*failed, newCapacity, t.count)
		}
		t.logger.Debug("hopscotch: rehash failed, growing further",
			zap.Int("attempt", *failed),
			zap.Int("capacity", newCapacity))
		newCapacity = t.nextCapacity(newCapacity)
	}
}

// rehashInto places every element of old, in slot order, into slots.
func (t *Table[T]) rehashInto(old, slots []Slot[T]) bool {
	for i := range old {
		if old[i].isOccupied() && !t.place(slots, old[i].value) {
			return false
		}
	}
	return true
}

func (t *Table[T]) checkInvariants() {
	if invariants {
		n := len(t.slots)

		// For every occupied slot, verify it lies within the neighborhood of
		// its home, that the home bitmap records it, and that it is the only
		// value of its kind.
		var used int
		for i := 0; i < n; i++ {
			s := &t.slots[i]
			if !s.isOccupied() {
				continue
			}
			used++
			h := t.home(s.value, n)
			if i < h || i-h >= t.h {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v outside neighborhood of home %d\n%s",
					i, s.value, h, t.debugString()))
			}
			if !t.slots[h].hood.test(i - h) {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v missing from bitmap of home %d\n%s",
					i, s.value, h, t.debugString()))
			}
			if p, ok := t.find(t.slots, h, s.value); !ok || p != i {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v found at %d (ok=%t)\n%s",
					i, s.value, p, ok, t.debugString()))
			}
		}

		// Verify no bitmap names a slot that is free or homed elsewhere.
		for h := 0; h < n; h++ {
			for hood := t.slots[h].hood; hood != 0; {
				j := hood.first()
				i := h + j
				if j >= t.h || i >= n || !t.slots[i].isOccupied() || t.home(t.slots[i].value, n) != h {
					panic(fmt.Sprintf("invariant failed: home(%d): stale offset %d\n%s",
						h, j, t.debugString()))
				}
				hood = hood.remove(j)
			}
		}

		if used != t.count {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but count is %d\n%s",
				used, t.count, t.debugString()))
		}
		if n > 0 && t.overloaded(t.count) {
			panic(fmt.Sprintf("invariant failed: count %d exceeds capacity %d at max load %v",
				t.count, n, t.maxLoad))
		}
	}
}

func (t *Table[T]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  count=%d  h=%d  max-load=%v\n", len(t.slots), t.count, t.h, t.maxLoad)
	for i := range t.slots {
		s := &t.slots[i]
		if s.isOccupied() {
			fmt.Fprintf(&buf, "  %4d: %v [home=%d hood=%s]\n", i, s.value, t.home(s.value, len(t.slots)), s.hood)
		} else {
			fmt.Fprintf(&buf, "  %4d: empty [hood=%s]\n", i, s.hood)
		}
	}
	return buf.String()
}
