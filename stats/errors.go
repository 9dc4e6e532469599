// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import "errors"

var (
	// ErrExist is returned by AddValues when the source already
	// carries a group with the same descriptor array and base.
	ErrExist = errors.New("stats: value group already added")

	// ErrNotFound is returned by the query operations when the
	// descriptor (or name) is not attached to the starting source.
	// The accompanying value is always 0, so callers that ignore
	// the error get a safe default.
	ErrNotFound = errors.New("stats: value not found")
)
