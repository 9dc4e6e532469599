// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats implements the statsfs source tree: a hierarchy of
// named, refcounted sources that publish integer statistics living
// inside producer-owned structs.
//
// A producer creates a Source, attaches one or more descriptor arrays
// with AddValues — each attachment binds the array to a base pointer
// into one of the producer's own structs — and links the source under
// a parent with AddSubordinate. Attaching an array with a nil base
// declares the descriptors as aggregates at that node: querying one
// of them walks the subtree and reduces every matching leaf with the
// descriptor's aggregation rule.
//
// Sources are reference counted. Consumers that hand out long-lived
// handles (such as an open file in a presentation layer) must enter
// through TryGet, which refuses a source whose last reference is
// being dropped. Producers call Revoke just before freeing backing
// data; the source stays alive for existing handles and its own
// leaves read as zero from then on.
package stats
