// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"unsafe"
)

// Sign marks a Type as signed. A signed value is sign-extended to 64
// bits when read and interpreted as two's-complement during
// aggregation.
const Sign Type = 0x8000

// Type describes the width and signedness of an exported field.
type Type uint16

const (
	U8 Type = iota
	U16
	U32
	U64
	Bool

	S8  = U8 | Sign
	S16 = U16 | Sign
	S32 = U32 | Sign
	S64 = U64 | Sign
)

// Aggr selects how matching leaves in a subtree are reduced when a
// descriptor is queried at an inner node.
type Aggr uint8

const (
	// None means the descriptor is only meaningful as a leaf; at an
	// inner node it reduces to 0.
	None Aggr = iota
	Sum
	Min
	Max
	CountZero
	Avg
)

// Value describes one exported field: a name, a byte offset into the
// backing struct supplied to (*Source).AddValues, the field's width
// and signedness, and the reduction used at inner nodes. Descriptors
// are static; producers declare them once, in an array, and pass
// pointers into that same array when querying. The identity of the
// array is the grouping key during aggregation, so a same-named
// descriptor in a different array never matches.
type Value struct {
	// Name of the stat. Must be unique within its array.
	Name string

	// Offset from the base address to the field holding the value.
	// Use unsafe.Offsetof.
	Offset uintptr

	// Type of the stat: Bool, U64, ...
	Type Type

	// Aggr is the reduction applied at inner nodes: Min, Max, Sum, ...
	Aggr Aggr

	// Mode is the presentation file mode; 0 means 0644. A mode
	// without write bits disables clearing through the
	// presentation layer.
	Mode uint32
}

// Signed reports whether the descriptor's readings are
// two's-complement values.
func (v *Value) Signed() bool {
	return v.Type&Sign != 0
}

// PresentationMode returns the file mode a presentation layer should
// give this value, applying the 0644 default.
func (v *Value) PresentationMode() uint32 {
	if v.Mode != 0 {
		return v.Mode
	}
	return 0644
}

// sameValues reports whether two descriptor slices are views of the
// same backing array. Array identity, not name equality, keys both
// duplicate detection and aggregation.
func sameValues(a, b []Value) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// readValue loads the field described by v from base. The base is
// guaranteed live by the owning source's read lock and the revoke
// contract; concurrent producer updates are not synchronized, so the
// reading may be torn on platforms without atomic word loads.
func readValue(base unsafe.Pointer, v *Value) uint64 {
	addr := unsafe.Add(base, v.Offset)

	switch v.Type {
	case U8, Bool:
		return uint64(*(*uint8)(addr))
	case S8:
		return uint64(int64(*(*int8)(addr)))
	case U16:
		return uint64(*(*uint16)(addr))
	case S16:
		return uint64(int64(*(*int16)(addr)))
	case U32:
		return uint64(*(*uint32)(addr))
	case S32:
		return uint64(int64(*(*int32)(addr)))
	case U64:
		return *(*uint64)(addr)
	case S64:
		return uint64(*(*int64)(addr))
	}
	return 0
}

// clearValue stores zero into the field described by v.
func clearValue(base unsafe.Pointer, v *Value) {
	addr := unsafe.Add(base, v.Offset)

	switch v.Type {
	case U8, S8, Bool:
		*(*uint8)(addr) = 0
	case U16, S16:
		*(*uint16)(addr) = 0
	case U32, S32:
		*(*uint32)(addr) = 0
	case U64, S64:
		*(*uint64)(addr) = 0
	}
}
