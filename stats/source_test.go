// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats_test

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanwen/statsfs/stats"
)

func TestSourceName(t *testing.T) {
	s := stats.NewSource("vcpu%d", 3)
	defer s.Put()
	assert.Equal(t, "vcpu3", s.Name())

	long := stats.NewSource("%s", strings.Repeat("x", 1000))
	defer long.Put()
	assert.Len(t, long.Name(), 255)
}

func TestDuplicateAttach(t *testing.T) {
	vals := newCounterValues(stats.Sum)
	c := &counters{Requests: 5}

	parent := stats.NewSource("p")
	defer parent.Put()
	require.NoError(t, parent.AddValues(vals, nil))

	child := stats.NewSource("c")
	require.NoError(t, child.AddValues(vals, unsafe.Pointer(c)))
	require.ErrorIs(t, child.AddValues(vals, unsafe.Pointer(c)), stats.ErrExist)
	parent.AddSubordinate(child)
	child.Put()

	// Exactly one group survived: the leaf is folded once.
	got, err := parent.GetValue(&vals[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)

	// A different base for the same array is a distinct group.
	c2 := &counters{Requests: 7}
	sibling := stats.NewSource("c2")
	require.NoError(t, sibling.AddValues(vals, unsafe.Pointer(c)))
	require.NoError(t, sibling.AddValues(vals, unsafe.Pointer(c2)))
	sibling.Put()
}

func TestRemoveSubordinate(t *testing.T) {
	vals := newCounterValues(stats.Sum)
	parent, _, _ := twoChildTree(t, vals)
	defer parent.Put()

	subs := parent.Subordinates()
	require.Len(t, subs, 2)

	// Remove the left child (10) by name; list order is not relied on.
	parent.RemoveSubordinate(parent.LookupSubordinate("child0"))
	assert.Len(t, parent.Subordinates(), 1)

	// Removing a stranger is a no-op.
	stranger := stats.NewSource("stranger")
	parent.RemoveSubordinate(stranger)
	assert.Len(t, parent.Subordinates(), 1)
	stranger.Put()

	got, err := parent.GetValue(&vals[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(32), got)
}

func TestRefcountLifetime(t *testing.T) {
	parent := stats.NewSource("parent")
	child := stats.NewSource("child")

	parent.AddSubordinate(child)
	child.Put() // producer reference; parent's keeps it alive

	require.True(t, child.TryGet())
	child.Put()

	// Destroying the parent drops the last reference to the child.
	parent.Put()
	assert.False(t, child.TryGet())
}

func TestTryGetRace(t *testing.T) {
	s := stats.NewSource("s")
	require.True(t, s.TryGet())
	s.Put()
	s.Put()
	assert.False(t, s.TryGet())
}

func TestOpenHandleOutlivesProducer(t *testing.T) {
	vals := newCounterValues(stats.Sum)
	c := &counters{Requests: 9}

	s := stats.NewSource("s")
	require.NoError(t, s.AddValues(vals, unsafe.Pointer(c)))

	// Consumer takes a handle, as a presentation open path would.
	require.True(t, s.TryGet())

	// Producer revokes and drops its reference.
	s.Revoke()
	s.Put()

	got, err := s.GetValue(&vals[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)

	s.Put()
	assert.False(t, s.TryGet())
}

func TestPresentationSurface(t *testing.T) {
	vals := newCounterValues(stats.Sum)
	parent, _, _ := twoChildTree(t, vals)
	defer parent.Put()

	var names []string
	for _, v := range parent.Values() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"requests", "errors", "balance", "online"}, names)

	assert.NotNil(t, parent.LookupSubordinate("child0"))
	assert.Nil(t, parent.LookupSubordinate("nope"))

	v := parent.LookupValue("requests")
	require.NotNil(t, v)
	assert.Same(t, &vals[0], v)
	assert.Nil(t, parent.LookupValue("nope"))

	parent.SetPresentation(uint64(42))
	assert.Equal(t, uint64(42), parent.Presentation())
}

func TestPresentationMode(t *testing.T) {
	v := &stats.Value{Name: "n"}
	assert.Equal(t, uint32(0644), v.PresentationMode())
	v.Mode = 0444
	assert.Equal(t, uint32(0444), v.PresentationMode())
}
