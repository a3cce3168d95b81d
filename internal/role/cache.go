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
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultListTTL bounds how long a listing may be served without touching the
// repository when no write has invalidated it.
const DefaultListTTL = 30 * time.Second

// ListCache is a short-lived cache over scope listings. Entries are keyed by
// (scope, filter, paging, brief) and invalidated as a whole scope on every
// write touching that scope. Fills for the same key are collapsed through
// singleflight; an invalidation evicts the scope's in-flight fills as well as
// its entries, so a reader arriving after a write neither joins a pre-write
// fill nor caches its result.
type ListCache struct {
	ttl   time.Duration
	group singleflight.Group

	mu       sync.RWMutex
	gens     map[string]uint64 // scope key -> generation
	entries  map[string]*listEntry
	inflight map[string]map[string]int // scope key -> fill key -> active callers
}

type listEntry struct {
	roles   []*Role
	gen     uint64
	expires time.Time
}

// NewListCache creates a cache with the given entry TTL. A zero ttl uses
// DefaultListTTL.
func NewListCache(ttl time.Duration) *ListCache {
	if ttl <= 0 {
		ttl = DefaultListTTL
	}
	return &ListCache{
		ttl:      ttl,
		gens:     make(map[string]uint64),
		entries:  make(map[string]*listEntry),
		inflight: make(map[string]map[string]int),
	}
}

// ListKey builds the canonical cache key for a listing request
func ListKey(scope Scope, filter string, first, max int, brief bool) string {
	var b strings.Builder
	b.WriteString(scope.Key())
	b.WriteByte('|')
	b.WriteString(filter)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(first))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(max))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(brief))
	return b.String()
}

// Get returns the cached listing for key, if present and fresh
func (c *ListCache) Get(scope Scope, key string) ([]*Role, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.gen != c.gens[scope.Key()] || time.Now().After(e.expires) {
		return nil, false
	}
	return e.roles, true
}

type fillResult struct {
	roles []*Role
	gen   uint64
}

// Fill computes the listing for key via fill, collapsing concurrent fills of
// the same key. The generation is captured inside the winning fill, so the
// result is cached only if no invalidation of the scope happened between the
// start of that fill and the insert. Callers that started before a write may
// still observe the pre-write listing; callers that start after never do,
// because InvalidateScope evicts the in-flight fill itself.
func (c *ListCache) Fill(scope Scope, key string, fill func() ([]*Role, error)) ([]*Role, error) {
	scopeKey := scope.Key()

	c.mu.Lock()
	if c.inflight[scopeKey] == nil {
		c.inflight[scopeKey] = make(map[string]int)
	}
	c.inflight[scopeKey][key]++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.inflight[scopeKey][key]--; c.inflight[scopeKey][key] <= 0 {
			delete(c.inflight[scopeKey], key)
		}
		c.mu.Unlock()
	}()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		gen := c.gens[scopeKey]
		c.mu.RUnlock()

		roles, err := fill()
		if err != nil {
			return nil, err
		}
		return fillResult{roles: roles, gen: gen}, nil
	})
	if err != nil {
		return nil, err
	}
	res := v.(fillResult)

	c.mu.Lock()
	if c.gens[scopeKey] == res.gen {
		c.entries[key] = &listEntry{
			roles:   res.roles,
			gen:     res.gen,
			expires: time.Now().Add(c.ttl),
		}
	}
	c.mu.Unlock()

	return res.roles, nil
}

// InvalidateScope drops every entry for a scope and forgets its in-flight
// fills, so the next Fill of any key in the scope recomputes instead of
// joining a fill that started before the write. Callers invoke it after the
// underlying write has been committed and before reporting the write
// complete, so a subsequent list observes the new state.
func (c *ListCache) InvalidateScope(scope Scope) {
	scopeKey := scope.Key()
	prefix := scopeKey + "|"

	c.mu.Lock()
	c.gens[scopeKey]++
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	stale := make([]string, 0, len(c.inflight[scopeKey]))
	for key := range c.inflight[scopeKey] {
		stale = append(stale, key)
	}
	c.mu.Unlock()

	for _, key := range stale {
		c.group.Forget(key)
	}
}
