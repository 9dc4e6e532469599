// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// maxNameLen bounds formatted source names so any source can be
// materialized as a directory entry.
const maxNameLen = 255

// valueGroup binds a descriptor array to a concrete base address. A
// nil base means the group is a placeholder (the descriptors are
// aggregates at this node) or has been revoked; the engine treats
// both the same way and skips it as a leaf.
type valueGroup struct {
	// base also keeps the producer struct reachable for the GC.
	// Revoke severs it, so handles outliving the producer read
	// zero rather than a recycled struct.
	base unsafe.Pointer

	values []Value
}

// Source is a node in the registry tree.
//
// The mutex covers the group and subordinate lists. Lock order is
// parent before child, which is well defined because the tree is
// acyclic; locks are never acquired upward.
type Source struct {
	refs int64

	mu sync.RWMutex

	name string

	// LIFO, mutated under mu.
	groups []*valueGroup
	subs   []*Source

	// pres is an opaque slot for a presentation layer (e.g. a
	// cached inode number). Cleared on destruction.
	pres any
}

// NewSource creates a source named by the format string, with a
// reference count of one. The formatted name is truncated at 255
// bytes.
func NewSource(format string, args ...any) *Source {
	name := fmt.Sprintf(format, args...)
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return &Source{
		refs: 1,
		name: name,
	}
}

// Name returns the source's name.
func (s *Source) Name() string {
	return s.name
}

// Get increases the reference count. It must only be called while
// the caller already holds a reference; consumer entry points racing
// with the final Put must use TryGet instead.
func (s *Source) Get() {
	if atomic.AddInt64(&s.refs, 1) == 1 {
		panic("stats: Get on destroyed Source")
	}
}

// TryGet increases the reference count unless it has already reached
// zero. It returns false for a source whose destruction is underway,
// so a racing last Put is never revived.
func (s *Source) TryGet() bool {
	for {
		c := atomic.LoadInt64(&s.refs)
		if c == 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.refs, c, c+1) {
			return true
		}
	}
}

// Put decreases the reference count. Dropping the last reference
// destroys the source: the write lock is taken first, so a destroying
// Put excludes aggregation walks that are still inside the subtree.
func (s *Source) Put() {
	c := atomic.AddInt64(&s.refs, -1)
	if c > 0 {
		return
	}
	if c < 0 {
		panic("stats: Put without matching Get")
	}

	s.mu.Lock()
	s.destroyLocked()
}

// destroyLocked runs with the write lock held and the refcount at
// zero; it releases the lock itself. Subordinates are unlinked and
// released one by one, which may recurse into their destruction
// (child lock taken after the parent's, consistent with the walk
// order).
func (s *Source) destroyLocked() {
	s.groups = nil

	for _, sub := range s.subs {
		sub.Put()
	}
	s.subs = nil
	s.pres = nil

	s.mu.Unlock()
}

// AddValues attaches the descriptor array to the source, bound to
// base. Every descriptor in the array becomes readable through this
// source. A nil base declares the array's descriptors as aggregates
// at this node. ErrExist is returned if the same (array, base) pair
// is already attached.
func (s *Source) AddValues(values []Value, base unsafe.Pointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.base == base && sameValues(g.values, values) {
			return ErrExist
		}
	}

	g := &valueGroup{
		base:   base,
		values: values,
	}
	s.groups = append([]*valueGroup{g}, s.groups...)
	return nil
}

// AddSubordinate links child under s, taking a reference on the
// child that is held until it is removed or s is destroyed. Callers
// must not create cycles; the registry does not check.
func (s *Source) AddSubordinate(child *Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	child.Get()
	s.subs = append([]*Source{child}, s.subs...)
}

// RemoveSubordinate unlinks child (matched by identity) and drops the
// reference the parent held. Removing a source that is not a
// subordinate is a no-op.
func (s *Source) RemoveSubordinate(child *Source) {
	s.mu.Lock()

	for i, sub := range s.subs {
		if sub == child {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			s.mu.Unlock()
			child.Put()
			return
		}
	}

	s.mu.Unlock()
}

// Revoke severs every value group from its backing data. The source
// and its files stay alive; its own leaves read zero from now on,
// while aggregates it holds still fold the live leaves of its
// subordinates. Producers
// call this just before freeing (or recycling) the structs passed to
// AddValues. Revocation is monotonic: a group's base is never
// reinstated.
func (s *Source) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		g.base = nil
	}
}

// Subordinates returns a snapshot of the subordinate list. The
// returned sources are not reference counted; callers handing them
// out must TryGet first.
func (s *Source) Subordinates() []*Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Source(nil), s.subs...)
}

// LookupSubordinate returns the first subordinate with the given
// name, or nil.
func (s *Source) LookupSubordinate(name string) *Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.name == name {
			return sub
		}
	}
	return nil
}

// Values returns the descriptors attached to this source, in group
// order, deduplicated by name.
func (s *Source) Values() []*Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Value
	seen := map[string]bool{}
	for _, g := range s.groups {
		for i := range g.values {
			v := &g.values[i]
			if seen[v.Name] {
				continue
			}
			seen[v.Name] = true
			out = append(out, v)
		}
	}
	return out
}

// LookupValue returns the descriptor with the given name attached to
// this source, or nil. Subordinates are not searched.
func (s *Source) LookupValue(name string) *Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookupValueLocked(name)
}

func (s *Source) lookupValueLocked(name string) *Value {
	for _, g := range s.groups {
		for i := range g.values {
			if g.values[i].Name == name {
				return &g.values[i]
			}
		}
	}
	return nil
}

// SetPresentation stores an opaque handle for a presentation layer.
func (s *Source) SetPresentation(p any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pres = p
}

// Presentation returns the handle stored with SetPresentation, or
// nil.
func (s *Source) Presentation() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pres
}
