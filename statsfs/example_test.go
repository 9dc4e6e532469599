// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package statsfs_test

import (
	"log"
	"os"
	"unsafe"

	"github.com/hanwen/statsfs/stats"
	"github.com/hanwen/statsfs/statsfs"
)

type connStats struct {
	Accepted uint64
	Dropped  uint64
}

// A producer publishes counters that live in its own structs, then
// mounts the source tree. Reading /tmp/stats/accepted aggregates the
// counter across both listeners.
func Example() {
	values := []stats.Value{
		{Name: "accepted", Offset: unsafe.Offsetof(connStats{}.Accepted), Type: stats.U64, Aggr: stats.Sum},
		{Name: "dropped", Offset: unsafe.Offsetof(connStats{}.Dropped), Type: stats.U64, Aggr: stats.Sum},
	}

	server := stats.NewSource("server")
	defer server.Put()
	server.AddValues(values, nil)

	for _, name := range []string{"http", "https"} {
		st := &connStats{}
		listener := stats.NewSource("%s", name)
		listener.AddValues(values, unsafe.Pointer(st))
		server.AddSubordinate(listener)
		listener.Put()

		// st now feeds the tree; the producer updates it in place.
		go serve(st)
	}

	mntDir := "/tmp/stats"
	os.Mkdir(mntDir, 0755)
	fuseServer, err := statsfs.Mount(mntDir, server, nil)
	if err != nil {
		log.Panic(err)
	}
	log.Printf("unmount by calling 'fusermount -u %s'", mntDir)
	fuseServer.Wait()
}

func serve(st *connStats) {
	st.Accepted++
}
