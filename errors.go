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

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidArgument is returned by New when the initial capacity or one of
	// the options is out of range.
	ErrInvalidArgument = errors.New("hopscotch: invalid argument")

	// ErrDuplicateValue is returned by Insert when an equal value is already
	// present. The table is left unchanged.
	ErrDuplicateValue = errors.New("hopscotch: duplicate value")

	// ErrInsertUnresolvable is returned by Insert when displacement and every
	// allowed resize attempt failed to make room for the value. It indicates a
	// pathological hash function and is reported as an assertion failure (see
	// errors.IsAssertionFailure).
	ErrInsertUnresolvable = errors.New("hopscotch: insert unresolvable")

	// ErrIndexOutOfRange is returned by ElementAt for an index outside
	// [0, Capacity()) or a free slot.
	ErrIndexOutOfRange = errors.New("hopscotch: index out of range")
)

func errUnresolvable(attempts, capacity, count int) error {
	return errors.WithAssertionFailure(errors.Wrapf(ErrInsertUnresolvable,
		"no slot found after %d attempts (capacity=%d count=%d)", attempts, capacity, count))
}
