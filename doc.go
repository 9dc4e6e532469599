// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This is a repository containing a userspace port of the statsfs
// statistics registry: a tree of named, refcounted sources publishing
// counters and gauges that live inside producer data structures, with
// on-demand aggregation across subtrees.
//
// Go to https://godoc.org/github.com/hanwen/statsfs/stats for the
// registry core, and https://godoc.org/github.com/hanwen/statsfs/statsfs
// for the FUSE presentation layer.
package lib
