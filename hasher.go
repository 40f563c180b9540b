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
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// Hasher supplies the hash function and equality relation a Table uses for
// its elements. Equal values must hash identically and Hash must be
// deterministic for the lifetime of the table.
type Hasher[T any] interface {
	Hash(v T) uint64
	Equal(a, b T) bool
}

// Hashable is implemented by element types that hash themselves.
type Hashable[T any] interface {
	Hash() uint64
	Equal(other T) bool
}

type funcHasher[T any] struct {
	hash  func(T) uint64
	equal func(a, b T) bool
}

func (h funcHasher[T]) Hash(v T) uint64 { return h.hash(v) }
func (h funcHasher[T]) Equal(a, b T) bool { return h.equal(a, b) }

// HashFunc returns a Hasher built from an explicit hash and equality pair.
func HashFunc[T any](hash func(T) uint64, equal func(a, b T) bool) Hasher[T] {
	return funcHasher[T]{hash: hash, equal: equal}
}

type selfHasher[T Hashable[T]] struct{}

func (selfHasher[T]) Hash(v T) uint64 { return v.Hash() }
func (selfHasher[T]) Equal(a, b T) bool { return a.Equal(b) }

// SelfHasher returns a Hasher that defers to the element's own Hash and Equal
// methods.
func SelfHasher[T Hashable[T]]() Hasher[T] {
	return selfHasher[T]{}
}

type stringHasher struct{}

func (stringHasher) Hash(v string) uint64 { return xxhash.Sum64String(v) }
func (stringHasher) Equal(a, b string) bool { return a == b }

// StringHasher hashes strings with xxhash.
func StringHasher() Hasher[string] {
	return stringHasher{}
}

type bytesHasher struct{}

func (bytesHasher) Hash(v []byte) uint64 { return xxhash.Sum64(v) }
func (bytesHasher) Equal(a, b []byte) bool { return bytes.Equal(a, b) }

// BytesHasher hashes byte slices by content with xxhash. A value must not be
// mutated while it is stored in a table.
func BytesHasher() Hasher[[]byte] {
	return bytesHasher{}
}

type integerHasher[T constraints.Integer] struct{}

func (integerHasher[T]) Hash(v T) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return xxhash.Sum64(buf[:])
}

func (integerHasher[T]) Equal(a, b T) bool { return a == b }

// IntegerHasher hashes any integer type by the xxhash of its 64-bit
// little-endian encoding. Sign-extended negative values hash consistently.
func IntegerHasher[T constraints.Integer]() Hasher[T] {
	return integerHasher[T]{}
}
