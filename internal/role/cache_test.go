package role

import (
	"sync"
	"testing"
	"time"
)

// A write must be visible to every list that starts after it, even while a
// fill that started before the write is still running.
func TestListCache_WriteVisibleDuringInFlightFill(t *testing.T) {
	cache := NewListCache(time.Minute)
	scope := RealmScope()
	key := ListKey(scope, "", -1, -1, false)

	preWrite := []*Role{{ID: "r1", Name: "alpha"}}
	postWrite := []*Role{{ID: "r1", Name: "alpha"}, {ID: "r2", Name: "beta"}}

	fillStarted := make(chan struct{})
	releaseFill := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// This reader started before the write; it may legitimately see the
		// pre-write listing.
		cache.Fill(scope, key, func() ([]*Role, error) {
			close(fillStarted)
			<-releaseFill
			return preWrite, nil
		})
	}()

	<-fillStarted
	// The write commits and invalidates while the fill is blocked
	cache.InvalidateScope(scope)

	// A reader arriving after the write must not join the pre-write fill
	roles, err := cache.Fill(scope, key, func() ([]*Role, error) {
		return postWrite, nil
	})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if len(roles) != len(postWrite) {
		t.Fatalf("post-write Fill returned %d roles, want %d", len(roles), len(postWrite))
	}

	close(releaseFill)
	wg.Wait()

	// The finished pre-write fill must not have displaced the fresh entry
	cached, ok := cache.Get(scope, key)
	if !ok {
		t.Fatal("post-write listing not cached")
	}
	if len(cached) != len(postWrite) {
		t.Fatalf("cache serves %d roles, want %d", len(cached), len(postWrite))
	}
}

// A fill that races an invalidation must never be cached under the new
// generation.
func TestListCache_StaleFillNotCached(t *testing.T) {
	cache := NewListCache(time.Minute)
	scope := ClientScope("app-1")
	key := ListKey(scope, "", -1, -1, false)

	fillStarted := make(chan struct{})
	releaseFill := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cache.Fill(scope, key, func() ([]*Role, error) {
			close(fillStarted)
			<-releaseFill
			return []*Role{{ID: "r1", Name: "stale"}}, nil
		})
	}()

	<-fillStarted
	cache.InvalidateScope(scope)
	close(releaseFill)
	wg.Wait()

	if _, ok := cache.Get(scope, key); ok {
		t.Fatal("fill that raced an invalidation was cached")
	}
}
