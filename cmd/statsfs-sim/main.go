// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// statsfs-sim mounts a statsfs tree fed by a simulated hypervisor:
// a kvm source holding per-VM sources, each with per-vCPU
// subordinates whose counters tick in the background.
//
//	statsfs-sim --vms 2 --vcpus 4 /tmp/kvm-stats
//	cat /tmp/kvm-stats/vm1/exits        # aggregate over vm1's vCPUs
//	echo 0 > /tmp/kvm-stats/vm1/exits   # clear them
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/hanwen/statsfs/stats"
	"github.com/hanwen/statsfs/statsfs"
)

type vcpuStat struct {
	Exits     uint64
	HaltExits uint64
	Injected  uint64
	Preempted int64
	Online    uint8
}

func vcpuValues() []stats.Value {
	return []stats.Value{
		{Name: "exits", Offset: unsafe.Offsetof(vcpuStat{}.Exits), Type: stats.U64, Aggr: stats.Sum},
		{Name: "halt_exits", Offset: unsafe.Offsetof(vcpuStat{}.HaltExits), Type: stats.U64, Aggr: stats.Sum},
		{Name: "irq_injected", Offset: unsafe.Offsetof(vcpuStat{}.Injected), Type: stats.U64, Aggr: stats.Max},
		{Name: "preempted_ns", Offset: unsafe.Offsetof(vcpuStat{}.Preempted), Type: stats.S64, Aggr: stats.Avg},
		{Name: "online", Offset: unsafe.Offsetof(vcpuStat{}.Online), Type: stats.Bool, Aggr: stats.CountZero},
	}
}

type vmStat struct {
	MemBytes uint64
}

func vmValues() []stats.Value {
	return []stats.Value{
		{Name: "mem_bytes", Offset: unsafe.Offsetof(vmStat{}.MemBytes), Type: stats.U64, Aggr: stats.Sum, Mode: 0444},
	}
}

// tick drives one vCPU's counters, the way a producer would: plain
// atomics on its own fields, no registry involvement.
func tick(st *vcpuStat, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(10 * time.Millisecond):
			atomic.AddUint64(&st.Exits, uint64(rand.Intn(100)))
			atomic.AddUint64(&st.HaltExits, uint64(rand.Intn(3)))
			atomic.AddUint64(&st.Injected, uint64(rand.Intn(2)))
			atomic.AddInt64(&st.Preempted, int64(rand.Intn(2000)-1000))
		}
	}
}

func run(mntDir string, vms, vcpus int, debug bool) error {
	vcpuVals := vcpuValues()
	vmVals := vmValues()
	stop := make(chan struct{})

	kvm := stats.NewSource("kvm")
	defer kvm.Put()

	for i := 0; i < vms; i++ {
		vm := stats.NewSource("vm%d", i)
		vm.AddValues(vmVals, unsafe.Pointer(&vmStat{MemBytes: 512 << 20}))

		// The vCPU descriptors aggregate at the VM directory.
		vm.AddValues(vcpuVals, nil)

		for j := 0; j < vcpus; j++ {
			st := &vcpuStat{Online: 1}
			vcpu := stats.NewSource("vcpu%d", j)
			vcpu.AddValues(vcpuVals, unsafe.Pointer(st))
			vm.AddSubordinate(vcpu)
			vcpu.Put()

			go tick(st, stop)
		}

		kvm.AddSubordinate(vm)
		vm.Put()
	}

	opts := &statsfs.Options{}
	opts.MountOptions.Debug = debug
	server, err := statsfs.Mount(mntDir, kvm, opts)
	if err != nil {
		return fmt.Errorf("mount %s: %w", mntDir, err)
	}
	log.Printf("serving %d VMs x %d vCPUs on %s", vms, vcpus, mntDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGINT, unix.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("got %v, unmounting", s)
		close(stop)
		if err := server.Unmount(); err != nil {
			log.Printf("unmount: %v", err)
		}
	}()

	server.Wait()
	return nil
}

func main() {
	var (
		vms   int
		vcpus int
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "statsfs-sim MOUNTPOINT",
		Short: "serve simulated hypervisor statistics over statsfs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], vms, vcpus, debug)
		},
		SilenceUsage: true,
	}
	cmd.Flags().IntVar(&vms, "vms", 2, "number of simulated VMs")
	cmd.Flags().IntVar(&vcpus, "vcpus", 4, "number of vCPUs per VM")
	cmd.Flags().BoolVar(&debug, "debug", false, "print FUSE debug data")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
