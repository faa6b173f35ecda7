package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabmarks/tabmarks/internal/domain"
)

// ListBookmarks returns all of the owner's bookmarks, newest first.
func (s *Store) ListBookmarks(ctx context.Context, owner string) ([]*domain.Bookmark, error) {
	ids, err := s.client.ZRevRange(ctx, OwnerIndexKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmark ids: %w", err)
	}

	if len(ids) == 0 {
		return []*domain.Bookmark{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BookmarkKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}

	bookmarks := make([]*domain.Bookmark, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a value, skip. The index member is
			// cleaned up on the next delete of that id.
			continue
		}
		var b domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bookmark: %w", err)
		}
		bookmarks = append(bookmarks, &b)
	}

	return bookmarks, nil
}

// GetBookmark retrieves a single bookmark by id.
func (s *Store) GetBookmark(ctx context.Context, id string) (*domain.Bookmark, error) {
	data, err := s.client.Get(ctx, BookmarkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}

	var b domain.Bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bookmark: %w", err)
	}
	return &b, nil
}

// InsertBookmark stores a new bookmark, assigns its creation timestamp
// (non-decreasing per owner) and publishes an insert event on the
// owner's channel. The stored record is returned.
func (s *Store) InsertBookmark(ctx context.Context, b *domain.Bookmark) (*domain.Bookmark, error) {
	createdAt, err := s.nextCreatedAt(ctx, b.Owner)
	if err != nil {
		return nil, err
	}

	stored := *b
	stored.CreatedAt = createdAt

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bookmark: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, BookmarkKey(stored.ID), data, 0)
	pipe.ZAdd(ctx, OwnerIndexKey(stored.Owner), redis.Z{
		Score:  float64(createdAt.UnixNano()),
		Member: stored.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save bookmark: %w", err)
	}

	s.publish(ctx, stored.Owner, domain.InsertEvent(&stored))
	return &stored, nil
}

// DeleteBookmark removes a bookmark scoped to both id and owner.
// Deleting a record that does not exist, or that belongs to another
// owner, fails with domain.ErrNotFound (the two cases are not
// distinguished on purpose).
func (s *Store) DeleteBookmark(ctx context.Context, id, owner string) error {
	existing, err := s.GetBookmark(ctx, id)
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return domain.ErrNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, BookmarkKey(id))
	pipe.ZRem(ctx, OwnerIndexKey(owner), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	s.publish(ctx, owner, domain.DeleteEvent(owner, id))
	return nil
}

// nextCreatedAt picks a creation timestamp that never runs backwards
// within one owner's index, even if the wall clock does.
func (s *Store) nextCreatedAt(ctx context.Context, owner string) (time.Time, error) {
	now := s.now().UTC()

	top, err := s.client.ZRevRangeWithScores(ctx, OwnerIndexKey(owner), 0, 0).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read owner index: %w", err)
	}
	if len(top) == 1 {
		last := time.Unix(0, int64(top[0].Score)).UTC()
		if now.Before(last) {
			now = last
		}
	}
	return now, nil
}

// publish sends a change event on the owner's channel. Best effort: the
// optimistic fallback on the reconciler side covers a dropped event.
func (s *Store) publish(ctx context.Context, owner string, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = s.client.Publish(ctx, EventsChannel(owner), data).Err()
}
