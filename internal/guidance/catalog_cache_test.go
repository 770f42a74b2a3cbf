package guidance_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-guidance/internal/guidance"
	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	gets    int
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return false, errors.New("cache down")
	}
	data, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

// countingCatalog counts calls to Topics on the wrapped catalog.
type countingCatalog struct {
	guidance.TopicCatalog
	calls int
}

func (c *countingCatalog) Topics(ctx context.Context, subjectIDs ...string) ([]studyplan.Topic, error) {
	c.calls++
	return c.TopicCatalog.Topics(ctx, subjectIDs...)
}

func newCachedCatalog(t *testing.T) (*guidance.CachedCatalog, *countingCatalog, *fakeCache) {
	t.Helper()
	store := guidance.NewMemoryStore()
	for _, topic := range catalogTopics() {
		if err := store.UpsertTopic(context.Background(), topic); err != nil {
			t.Fatalf("UpsertTopic() error = %v", err)
		}
	}
	backing := &countingCatalog{TopicCatalog: store}
	cache := newFakeCache()
	return guidance.NewCachedCatalog(backing, cache, time.Minute), backing, cache
}

func TestCachedCatalog_ServesRepeatReadsFromCache(t *testing.T) {
	catalog, backing, cache := newCachedCatalog(t)
	ctx := context.Background()

	for range 3 {
		topics, err := catalog.Topics(ctx, "math")
		if err != nil {
			t.Fatalf("Topics() error = %v", err)
		}
		if len(topics) != 2 {
			t.Fatalf("len(Topics()) = %d, want 2", len(topics))
		}
	}
	if backing.calls != 1 {
		t.Errorf("backing Topics calls = %d, want 1", backing.calls)
	}
	if ttl := cache.ttls["guidance:topics:math"]; ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}
}

func TestCachedCatalog_EmptySubjectIsCached(t *testing.T) {
	catalog, backing, _ := newCachedCatalog(t)
	ctx := context.Background()

	for range 2 {
		topics, err := catalog.Topics(ctx, "history")
		if err != nil {
			t.Fatalf("Topics() error = %v", err)
		}
		if len(topics) != 0 {
			t.Errorf("Topics(history) = %+v, want empty", topics)
		}
	}
	if backing.calls != 1 {
		t.Errorf("backing Topics calls = %d, want 1", backing.calls)
	}
}

func TestCachedCatalog_MixedHitsAndMisses(t *testing.T) {
	catalog, backing, _ := newCachedCatalog(t)
	ctx := context.Background()

	if _, err := catalog.Topics(ctx, "math"); err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	topics, err := catalog.Topics(ctx, "science", "math", "math")
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	ids := []string{}
	for _, tp := range topics {
		ids = append(ids, tp.ID)
	}
	want := []string{"alg-1", "alg-2", "bio-1"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	if backing.calls != 2 {
		t.Errorf("backing Topics calls = %d, want 2", backing.calls)
	}
}

func TestCachedCatalog_UpsertInvalidatesOldAndNewSubject(t *testing.T) {
	catalog, backing, _ := newCachedCatalog(t)
	ctx := context.Background()

	if _, err := catalog.Topics(ctx, "math", "science"); err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	moved := studyplan.Topic{ID: "alg-2", SubjectID: "science", Name: "Quadratics", Order: 2, AvgMinutes: 30}
	if err := catalog.UpsertTopic(ctx, moved); err != nil {
		t.Fatalf("UpsertTopic() error = %v", err)
	}

	math, _ := catalog.Topics(ctx, "math")
	science, _ := catalog.Topics(ctx, "science")
	if len(math) != 1 {
		t.Errorf("len(math) = %d, want 1 after move", len(math))
	}
	if len(science) != 2 {
		t.Errorf("len(science) = %d, want 2 after move", len(science))
	}
	if backing.calls != 3 {
		t.Errorf("backing Topics calls = %d, want 3", backing.calls)
	}
}

func TestCachedCatalog_CacheErrorFallsThrough(t *testing.T) {
	catalog, _, cache := newCachedCatalog(t)
	cache.failGet = true

	topics, err := catalog.Topics(context.Background(), "math")
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	if len(topics) != 2 {
		t.Errorf("len(Topics()) = %d, want 2", len(topics))
	}
}

func TestCachedCatalog_AllTopicsBypassesCache(t *testing.T) {
	catalog, _, cache := newCachedCatalog(t)

	topics, err := catalog.Topics(context.Background())
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	if len(topics) != 3 {
		t.Errorf("len(Topics()) = %d, want 3", len(topics))
	}
	if cache.gets != 0 {
		t.Errorf("cache gets = %d, want 0", cache.gets)
	}
}
