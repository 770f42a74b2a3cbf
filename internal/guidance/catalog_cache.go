package guidance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

// TopicCache is the key/value cache CachedCatalog keeps subject topic lists
// in. *cache.Cache satisfies it.
type TopicCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedCatalog caches per-subject topic lists in front of another catalog.
// Writes through UpsertTopic invalidate the affected subjects; writes made
// elsewhere are seen once the entry expires or Invalidate is called.
type CachedCatalog struct {
	next   TopicCatalog
	cache  TopicCache
	ttl    time.Duration
	prefix string
}

func NewCachedCatalog(next TopicCatalog, cache TopicCache, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		prefix: "guidance:topics:",
	}
}

func (c *CachedCatalog) key(subjectID string) string {
	return c.prefix + subjectID
}

func (c *CachedCatalog) Topic(ctx context.Context, id string) (studyplan.Topic, error) {
	return c.next.Topic(ctx, id)
}

// Topics serves each subject from the cache, loading misses from the
// underlying catalog in one call. A request for all topics bypasses the cache.
func (c *CachedCatalog) Topics(ctx context.Context, subjectIDs ...string) ([]studyplan.Topic, error) {
	if len(subjectIDs) == 0 {
		return c.next.Topics(ctx)
	}

	subjects := slices.Clone(subjectIDs)
	slices.Sort(subjects)
	subjects = slices.Compact(subjects)

	topics := []studyplan.Topic{}
	var misses []string
	for _, id := range subjects {
		var cached []studyplan.Topic
		ok, err := c.cache.GetJSON(ctx, c.key(id), &cached)
		if err != nil {
			slog.Warn("topic cache read failed", "subject_id", id, "error", err)
		}
		if ok {
			topics = append(topics, cached...)
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		loaded, err := c.next.Topics(ctx, misses...)
		if err != nil {
			return nil, err
		}
		bySubject := make(map[string][]studyplan.Topic, len(misses))
		for _, t := range loaded {
			bySubject[t.SubjectID] = append(bySubject[t.SubjectID], t)
		}
		for _, id := range misses {
			list := bySubject[id]
			if list == nil {
				list = []studyplan.Topic{}
			}
			if err := c.cache.SetJSON(ctx, c.key(id), list, c.ttl); err != nil {
				slog.Warn("topic cache write failed", "subject_id", id, "error", err)
			}
			topics = append(topics, list...)
		}
	}

	sortTopicsByID(topics)
	return topics, nil
}

// UpsertTopic writes through and drops the cached lists of the topic's old
// and new subject.
func (c *CachedCatalog) UpsertTopic(ctx context.Context, topic studyplan.Topic) error {
	subjects := []string{topic.SubjectID}
	old, err := c.next.Topic(ctx, topic.ID)
	switch {
	case err == nil && old.SubjectID != topic.SubjectID:
		subjects = append(subjects, old.SubjectID)
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}

	if err := c.next.UpsertTopic(ctx, topic); err != nil {
		return err
	}
	return c.Invalidate(ctx, subjects...)
}

// Invalidate drops the cached topic lists of the given subjects.
func (c *CachedCatalog) Invalidate(ctx context.Context, subjectIDs ...string) error {
	keys := make([]string, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		keys = append(keys, c.key(id))
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate topics: %w", err)
	}
	return nil
}
