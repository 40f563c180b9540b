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

import "go.uber.org/zap"

const (
	// DefaultCapacity is the initial capacity to pass to New when the caller
	// has no better estimate.
	DefaultCapacity = 100

	defaultMaxLoad      = 0.5
	defaultNeighborhood = 4
	defaultMaxRetries   = 5
)

// option provide an interface to do work on Table while it is being created.
type option[T any] interface {
	apply(t *Table[T])
}

type maxLoadOption[T any] struct {
	maxLoad float64
}

func (op maxLoadOption[T]) apply(t *Table[T]) {
	t.maxLoad = op.maxLoad
}

// WithMaxLoad is an option to specify the load factor above which the table
// grows. It must be in (0, 1]. The default is 0.5.
func WithMaxLoad[T any](maxLoad float64) option[T] {
	return maxLoadOption[T]{maxLoad}
}

type neighborhoodOption[T any] struct {
	h int
}

func (op neighborhoodOption[T]) apply(t *Table[T]) {
	t.h = op.h
}

// WithNeighborhood is an option to specify H, the maximum distance in slots
// between an element and its home. It must be in [1, 64]. The default is 4.
func WithNeighborhood[T any](h int) option[T] {
	return neighborhoodOption[T]{h}
}

type maxRetriesOption[T any] struct {
	n int
}

func (op maxRetriesOption[T]) apply(t *Table[T]) {
	t.maxRetries = op.n
}

// WithMaxRetries is an option to specify how many failed attempts a single
// Insert tolerates before it gives up with ErrInsertUnresolvable. A failed
// placement of the new value and a failed rehash into a grown array each
// count as one attempt, so one Insert grows the table at most n times beyond
// what its load factor requires. The default is 5.
func WithMaxRetries[T any](n int) option[T] {
	return maxRetriesOption[T]{n}
}

type loggerOption[T any] struct {
	logger *zap.Logger
}

func (op loggerOption[T]) apply(t *Table[T]) {
	t.logger = op.logger
}

// WithLogger is an option to specify the logger used for resize and retry
// events. The default discards everything.
func WithLogger[T any](logger *zap.Logger) option[T] {
	return loggerOption[T]{logger}
}

// Allocator specifies an interface for allocating and releasing the slot
// arrays used by a Table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// A table frees its previous slot array as soon as a resize has copied every
// element out of it. If the allocator is manually managing memory then
// Table.Close must be called in order to ensure the final array is freed.
type Allocator[T any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[T], n).
	AllocSlots(n int) []Slot[T]

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[T])
}

type defaultAllocator[T any] struct{}

func (defaultAllocator[T]) AllocSlots(n int) []Slot[T] {
	return make([]Slot[T], n)
}

func (defaultAllocator[T]) FreeSlots(v []Slot[T]) {
}

type allocatorOption[T any] struct {
	allocator Allocator[T]
}

func (op allocatorOption[T]) apply(t *Table[T]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table[T].
func WithAllocator[T any](allocator Allocator[T]) option[T] {
	return allocatorOption[T]{allocator}
}
