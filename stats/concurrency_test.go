// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hanwen/statsfs/stats"
)

// Readers loop on aggregation while mutators churn the subtree and
// revoke leaves. The registry promises no torn source state; the
// values themselves are static here, so the test is meaningful under
// the race detector too.
func TestConcurrentReadersAndMutators(t *testing.T) {
	const (
		readers    = 4
		mutators   = 2
		iterations = 300
	)

	vals := newCounterValues(stats.Sum)

	root := stats.NewSource("root")
	defer root.Put()
	require.NoError(t, root.AddValues(vals, nil))

	for i := 0; i < 8; i++ {
		child := stats.NewSource("static%d", i)
		require.NoError(t, child.AddValues(vals, unsafe.Pointer(&counters{Requests: 1})))
		root.AddSubordinate(child)
		child.Put()
	}

	var g errgroup.Group

	for r := 0; r < readers; r++ {
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				if _, err := root.GetValue(&vals[0]); err != nil {
					return err
				}
				if _, err := root.GetValueByName("requests"); err != nil {
					return err
				}
			}
			return nil
		})
	}

	for m := 0; m < mutators; m++ {
		m := m
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				child := stats.NewSource("churn%d.%d", m, i)
				if err := child.AddValues(vals, unsafe.Pointer(&counters{Requests: 2})); err != nil {
					return err
				}
				root.AddSubordinate(child)
				child.Revoke()
				root.RemoveSubordinate(child)
				child.Put()
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())

	// The eight static leaves survived the churn intact.
	got, err := root.GetValue(&vals[0])
	require.NoError(t, err)
	require.Equal(t, uint64(8), got)
}
