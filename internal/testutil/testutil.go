// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"log"
	"os"
)

func init() {
	// For test, the date is irrelevant, but microseconds are.
	log.SetFlags(log.Lmicroseconds)
}

// VerboseTest returns true if the testing framework is run with
// DEBUG=1. Mount tests pass it on as the FUSE debug flag.
func VerboseTest() bool {
	return os.Getenv("DEBUG") == "1"
}

// TempDir creates a testing directory, panicking on failure.
func TempDir() string {
	dir, err := os.MkdirTemp("", "statsfs")
	if err != nil {
		panic(err)
	}
	return dir
}
