// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"log"
	"math"
)

// aggregate accumulates leaf readings during a subtree walk. min and
// max hold two's-complement bit patterns when the descriptor is
// signed.
type aggregate struct {
	sum, min, max    uint64
	count, countZero uint32
}

func (a *aggregate) init(v *Value) {
	a.count, a.countZero, a.sum = 0, 0, 0
	if v.Signed() {
		a.max = 1 << 63 // math.MinInt64 as a bit pattern
		a.min = math.MaxInt64
	} else {
		a.max = 0
		a.min = math.MaxUint64
	}
}

func (a *aggregate) fold(x uint64, v *Value) {
	a.sum += x
	a.count++
	if x == 0 {
		a.countZero++
	}

	// Ties overwrite: >= and <= keep the latest of equal readings.
	if v.Signed() {
		if int64(x) >= int64(a.max) {
			a.max = x
		}
		if int64(x) <= int64(a.min) {
			a.min = x
		}
	} else {
		if x >= a.max {
			a.max = x
		}
		if x <= a.min {
			a.min = x
		}
	}
}

// result reduces the accumulator. A walk that folded no leaves (all
// groups revoked, or an inner node without matching subordinates)
// reduces to 0 for every aggregation kind, including signed Min/Max.
func (a *aggregate) result(v *Value) uint64 {
	if a.count == 0 {
		return 0
	}

	switch v.Aggr {
	case Sum:
		return a.sum
	case Min:
		return a.min
	case Max:
		return a.max
	case CountZero:
		return uint64(a.countZero)
	case Avg:
		if v.Signed() {
			return uint64(int64(a.sum) / int64(a.count))
		}
		return a.sum / uint64(a.count)
	}
	return 0
}

// findValue locates arg in g's descriptor array by pointer identity.
func (g *valueGroup) findValue(arg *Value) *Value {
	for i := range g.values {
		if &g.values[i] == arg {
			if g.values[i].Name != arg.Name {
				log.Printf("stats: descriptor identity/name mismatch for %q", arg.Name)
			}
			return arg
		}
	}
	return nil
}

// searchValue finds arg among the source's groups. The group it is
// found in becomes the reference group: its descriptor array keys the
// subtree walk. Called with the lock held.
func (s *Source) searchValue(arg *Value) (*Value, *valueGroup) {
	for _, g := range s.groups {
		if v := g.findValue(arg); v != nil {
			return v, g
		}
	}
	return nil, nil
}

// walkLeaves visits, depth first, every group in the subtree whose
// descriptor array is ref's, and calls fn on each live leaf. Read
// locks are taken parent-then-child, one level at a time; s's lock is
// held by the caller.
func (s *Source) walkLeaves(ref *valueGroup, fn func(g *valueGroup)) {
	for _, g := range s.groups {
		// Skip aggregates and revoked groups.
		if g.base == nil {
			continue
		}
		if !sameValues(g.values, ref.values) {
			continue
		}
		fn(g)
	}

	for _, sub := range s.subs {
		sub.mu.RLock()
		sub.walkLeaves(ref, fn)
		sub.mu.RUnlock()
	}
}

// getValueLocked implements GetValue with the read lock held.
func (s *Source) getValueLocked(arg *Value) (uint64, error) {
	if arg == nil {
		return 0, ErrNotFound
	}

	found, ref := s.searchValue(arg)
	if found == nil {
		return 0, ErrNotFound
	}

	// A leaf at the root: return the single reading, no recursion.
	if ref.base != nil {
		return readValue(ref.base, found), nil
	}

	var agg aggregate
	agg.init(found)
	s.walkLeaves(ref, func(g *valueGroup) {
		agg.fold(readValue(g.base, found), found)
	})
	return agg.result(found), nil
}

// GetValue reads the descriptor through this source. If the source
// holds the descriptor as a leaf (non-nil base), that reading is
// returned directly. If it holds it as an aggregate (nil base), the
// subtree is walked and every leaf bound to the same descriptor
// array is reduced with the descriptor's aggregation rule.
// ErrNotFound is returned, with a 0 value, when the descriptor is not
// attached to s; parents and siblings are never searched.
func (s *Source) GetValue(arg *Value) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getValueLocked(arg)
}

// GetValueByName resolves name against the descriptors attached to
// this source and reads the result as GetValue would. The name is
// resolved locally even though the value it denotes may aggregate
// over subordinates.
func (s *Source) GetValueByName(name string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.lookupValueLocked(name)
	if v == nil {
		return 0, ErrNotFound
	}
	return s.getValueLocked(v)
}

// Clear zeroes the descriptor's field: the single leaf if s holds it
// with a non-nil base, otherwise every matching leaf in the subtree.
func (s *Source) Clear(arg *Value) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if arg == nil {
		return ErrNotFound
	}

	found, ref := s.searchValue(arg)
	if found == nil {
		return ErrNotFound
	}

	if ref.base != nil {
		clearValue(ref.base, found)
		return nil
	}

	s.walkLeaves(ref, func(g *valueGroup) {
		clearValue(g.base, found)
	})
	return nil
}
