// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package role

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/metric"
)

// ListInput holds listing parameters. First and Max of -1 disable paging;
// First without Max returns everything from First to the end of the set.
type ListInput struct {
	Filter string // substring match on name, case-sensitive; "" matches all
	First  int
	Max    int
	Brief  bool // omit attributes from returned roles
}

// SetInstruments attaches cache hit/miss counters. Optional; nil counters are
// simply not recorded.
func (s *Store) SetInstruments(cacheHits, cacheMisses metric.Int64Counter) {
	s.cacheHits = cacheHits
	s.cacheMisses = cacheMisses
}

// List returns roles of a scope filtered by name substring, ordered by name,
// paged per ListInput. Results may be served from the listing cache; any write
// to the scope invalidates it before the write returns, so a list after a
// write always observes the write.
func (s *Store) List(ctx context.Context, scope Scope, in ListInput) ([]*Role, error) {
	if in.First < -1 || in.Max < -1 {
		return nil, fmt.Errorf("%w: first=%d max=%d", ErrInvalidArgument, in.First, in.Max)
	}

	key := ListKey(scope, in.Filter, in.First, in.Max, in.Brief)
	if roles, ok := s.cache.Get(scope, key); ok {
		if s.cacheHits != nil {
			s.cacheHits.Add(ctx, 1)
		}
		return roles, nil
	}
	if s.cacheMisses != nil {
		s.cacheMisses.Add(ctx, 1)
	}

	return s.cache.Fill(scope, key, func() ([]*Role, error) {
		all, err := s.repo.List(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to list roles: %w", err)
		}

		matched := all[:0:0]
		for _, r := range all {
			if in.Filter == "" || strings.Contains(r.Name, in.Filter) {
				matched = append(matched, r)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

		matched = Page(matched, in.First, in.Max)

		if in.Brief {
			brief := make([]*Role, len(matched))
			for i, r := range matched {
				c := *r
				c.Attributes = nil
				brief[i] = &c
			}
			matched = brief
		}
		return matched, nil
	})
}

// Page applies the engine's paging rules to an ordered slice: negative first
// starts at 0, negative max means "to the end", and a window past the end
// returns the remainder with no error.
func Page[T any](items []T, first, max int) []T {
	start := first
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return nil
	}
	end := len(items)
	if max >= 0 && start+max < end {
		end = start + max
	}
	return items[start:end]
}
