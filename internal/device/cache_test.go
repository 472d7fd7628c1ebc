package device

import (
	"fmt"
	"sync"
	"testing"
)

func TestStateCache_GetSet(t *testing.T) {
	cache := NewStateCache()

	if _, ok := cache.Get("dev-1"); ok {
		t.Fatal("Get on empty cache should miss")
	}

	cache.Set("dev-1", State{"switch1": true})

	got, ok := cache.Get("dev-1")
	if !ok {
		t.Fatal("Get after Set should hit")
	}
	if !got.Equal(State{"switch1": true}) {
		t.Errorf("got %v, want {switch1:true}", got)
	}
}

func TestStateCache_SetOverwrites(t *testing.T) {
	cache := NewStateCache()
	cache.Set("dev-1", State{"switch1": false})
	cache.Set("dev-1", State{"switch1": true})

	got, _ := cache.Get("dev-1")
	if !got["switch1"] {
		t.Error("second Set should overwrite the first")
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestStateCache_CopiesInAndOut(t *testing.T) {
	cache := NewStateCache()

	in := State{"switch1": false}
	cache.Set("dev-1", in)
	in["switch1"] = true

	got, _ := cache.Get("dev-1")
	if got["switch1"] {
		t.Error("mutating the input map changed the cached state")
	}

	got["switch1"] = true
	again, _ := cache.Get("dev-1")
	if again["switch1"] {
		t.Error("mutating a returned map changed the cached state")
	}
}

func TestStateCache_RetainRelease(t *testing.T) {
	cache := NewStateCache()
	cache.Set("dev-1", State{"switch1": true})

	if n := cache.Retain("dev-1"); n != 1 {
		t.Fatalf("first Retain = %d, want 1", n)
	}
	if n := cache.Retain("dev-1"); n != 2 {
		t.Fatalf("second Retain = %d, want 2", n)
	}

	// First release: one watcher remains, state stays cached.
	if evicted := cache.Release("dev-1"); evicted {
		t.Error("Release with remaining watchers should not evict")
	}
	if _, ok := cache.Get("dev-1"); !ok {
		t.Fatal("state evicted while a watcher remained")
	}

	// Last release evicts.
	if evicted := cache.Release("dev-1"); !evicted {
		t.Error("final Release should evict")
	}
	if _, ok := cache.Get("dev-1"); ok {
		t.Error("state still cached after last watcher released")
	}
	if cache.Watchers("dev-1") != 0 {
		t.Errorf("Watchers() = %d, want 0", cache.Watchers("dev-1"))
	}
}

func TestStateCache_ReleaseWithoutRetain(t *testing.T) {
	cache := NewStateCache()
	cache.Set("dev-1", State{"switch1": true})

	if evicted := cache.Release("dev-1"); evicted {
		t.Error("Release without Retain should be a no-op")
	}
	if _, ok := cache.Get("dev-1"); !ok {
		t.Error("no-op Release must not evict")
	}
}

func TestStateCache_Delete(t *testing.T) {
	cache := NewStateCache()
	cache.Set("dev-1", State{"switch1": true})
	cache.Retain("dev-1")

	cache.Delete("dev-1")

	if _, ok := cache.Get("dev-1"); ok {
		t.Error("Delete should remove state regardless of watchers")
	}
	if cache.Watchers("dev-1") != 0 {
		t.Error("Delete should clear the watcher count")
	}
}

func TestStateCache_ConcurrentAccess(t *testing.T) {
	cache := NewStateCache()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("dev-%d", n%3)
			for j := 0; j < 100; j++ {
				cache.Retain(id)
				cache.Set(id, State{"switch1": j%2 == 0})
				cache.Get(id)
				cache.Release(id)
			}
		}(i)
	}
	wg.Wait()

	// All watchers released, so everything should be evicted.
	if cache.Len() != 0 {
		t.Errorf("Len() = %d after all releases, want 0", cache.Len())
	}
}
