// Package reconciler maintains the per-identity in-memory bookmark view.
// Three unordered sources feed it: the initial load, optimistic local
// mutations with a delayed consistency check, and remote change
// notifications. Both the fallback path and the notification path are
// idempotent, so either may arrive first for the same mutation.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/tabmarks/tabmarks/internal/domain"
	"github.com/tabmarks/tabmarks/internal/feed"
	"github.com/tabmarks/tabmarks/internal/logger"
)

// ErrClosed is returned by operations on a view after teardown.
var ErrClosed = errors.New("bookmark view is closed")

// Store is the owner-scoped record store the view reconciles against.
type Store interface {
	ListBookmarks(ctx context.Context, owner string) ([]*domain.Bookmark, error)
	InsertBookmark(ctx context.Context, b *domain.Bookmark) (*domain.Bookmark, error)
	DeleteBookmark(ctx context.Context, id, owner string) error
}

// Subscription is a cancellable handle on one owner's change feed.
type Subscription interface {
	Events() <-chan domain.Event
	Statuses() <-chan feed.Status
	Close() error
}

// SubscribeFunc opens the owner's change feed.
type SubscribeFunc func(ctx context.Context, owner string) (Subscription, error)

// watcherBuffer bounds a watcher channel. A tab that stops reading
// loses events rather than stalling every other tab.
const watcherBuffer = 64

// View is one identity's reconciled bookmark list, newest first.
type View struct {
	owner         string
	store         Store
	clock         quartz.Clock
	fallbackDelay time.Duration
	log           logger.Logger

	mu       sync.Mutex
	list     []*domain.Bookmark
	present  map[string]struct{}
	deleting map[string]struct{}      // ids with an in-flight delete
	timers   map[*quartz.Timer]string // pending fallback timer -> bookmark id
	watchers map[chan domain.Event]struct{}
	closed   bool

	sub      Subscription
	pumpDone chan struct{}
}

// NewView creates an empty view for the owner. Call Load to populate it
// and attach to start consuming remote notifications.
func NewView(owner string, store Store, clock quartz.Clock, fallbackDelay time.Duration, log logger.Logger) *View {
	return &View{
		owner:         owner,
		store:         store,
		clock:         clock,
		fallbackDelay: fallbackDelay,
		log:           log.With(logger.String("owner", owner)),
		present:       make(map[string]struct{}),
		deleting:      make(map[string]struct{}),
		timers:        make(map[*quartz.Timer]string),
		watchers:      make(map[chan domain.Event]struct{}),
	}
}

// Load fetches the owner's records, newest first, and replaces local
// state wholesale. On failure the view is left empty and the error is
// returned for the caller to surface.
func (v *View) Load(ctx context.Context) error {
	list, err := v.store.ListBookmarks(ctx, v.owner)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}

	v.list = nil
	v.present = make(map[string]struct{})
	v.deleting = make(map[string]struct{})
	if err != nil {
		return fmt.Errorf("initial bookmark load: %w", err)
	}

	v.list = make([]*domain.Bookmark, len(list))
	copy(v.list, list)
	for _, b := range list {
		v.present[b.ID] = struct{}{}
	}
	return nil
}

// Create validates the submission, inserts it scoped to the owner and
// schedules the delayed consistency check that prepends the record if
// the remote notification never lands. Validation failures issue no
// store call; store failures leave local state untouched.
func (v *View) Create(ctx context.Context, title, url string) (*domain.Bookmark, error) {
	b, err := domain.NewBookmark(v.owner, title, url)
	if err != nil {
		return nil, err
	}

	stored, err := v.store.InsertBookmark(ctx, b)
	if err != nil {
		return nil, err
	}

	v.scheduleFallback(stored.ID, func() {
		v.applyInsert(stored)
	})
	return stored, nil
}

// Delete issues a delete scoped to both id and owner. A second delete
// for an id whose delete is still in flight is ignored. On success a
// delayed consistency check removes the record if the remote
// notification never lands; on failure the in-flight mark is cleared
// and the error returned.
func (v *View) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if _, inflight := v.deleting[id]; inflight {
		v.mu.Unlock()
		return nil
	}
	v.deleting[id] = struct{}{}
	v.mu.Unlock()

	if err := v.store.DeleteBookmark(ctx, id, v.owner); err != nil {
		v.mu.Lock()
		delete(v.deleting, id)
		v.mu.Unlock()
		return err
	}

	v.scheduleFallback(id, func() {
		v.applyDelete(id)
	})
	return nil
}

// Snapshot returns a copy of the current ordered list.
func (v *View) Snapshot() []*domain.Bookmark {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*domain.Bookmark, len(v.list))
	copy(out, v.list)
	return out
}

// Watch registers a channel receiving events as they are applied to the
// view. The channel is closed on view teardown or when cancel is called.
func (v *View) Watch() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, watcherBuffer)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.watchers[ch] = struct{}{}
	v.mu.Unlock()

	cancel := func() {
		v.mu.Lock()
		if _, ok := v.watchers[ch]; ok {
			delete(v.watchers, ch)
			close(ch)
		}
		v.mu.Unlock()
	}
	return ch, cancel
}

// attach wires the remote feed and starts the event pump.
func (v *View) attach(sub Subscription) {
	v.mu.Lock()
	v.sub = sub
	v.pumpDone = make(chan struct{})
	v.mu.Unlock()

	go v.pump(sub)
}

// Close tears the view down: pending fallback timers are stopped, the
// feed subscription released and watcher channels closed. No state
// mutation happens after Close returns.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	for t := range v.timers {
		t.Stop()
	}
	v.timers = nil
	for w := range v.watchers {
		close(w)
	}
	v.watchers = nil
	sub, pumpDone := v.sub, v.pumpDone
	v.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	if pumpDone != nil {
		<-pumpDone
	}
	return err
}

// pump consumes the subscription until it is closed, applying events
// and logging connection-status signals.
func (v *View) pump(sub Subscription) {
	defer close(v.pumpDone)

	events, statuses := sub.Events(), sub.Statuses()
	for events != nil || statuses != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			v.apply(ev)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			switch st.Kind {
			case feed.StatusConnected:
				v.log.Debug("change feed connected")
			case feed.StatusTimedOut:
				v.log.Debug("change feed receive timed out")
			default:
				v.log.Warn("change feed error", logger.Error(st.Err))
			}
		}
	}
}

func (v *View) apply(ev domain.Event) {
	switch ev.Kind {
	case domain.EventInsert:
		if ev.Bookmark != nil {
			v.applyInsert(ev.Bookmark)
		}
	case domain.EventDelete:
		v.applyDelete(ev.ID)
	}
}

// applyInsert prepends the record unless an entry with the same id is
// already present. Shared by the remote notification path and the
// optimistic fallback, whichever fires first wins.
func (v *View) applyInsert(b *domain.Bookmark) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if _, ok := v.present[b.ID]; ok {
		return
	}
	v.list = append([]*domain.Bookmark{b}, v.list...)
	v.present[b.ID] = struct{}{}
	v.notifyLocked(domain.InsertEvent(b))
}

// applyDelete removes the id if present and clears its in-flight mark.
// Pending fallback timers for the id are cancelled either way: a delete
// observed while the create fallback is still pending must not let that
// fallback resurrect the record.
func (v *View) applyDelete(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cancelFallbacksLocked(id)
	delete(v.deleting, id)
	if _, ok := v.present[id]; !ok {
		return
	}
	delete(v.present, id)
	for i, b := range v.list {
		if b.ID == id {
			v.list = append(v.list[:i], v.list[i+1:]...)
			break
		}
	}
	v.notifyLocked(domain.DeleteEvent(v.owner, id))
}

func (v *View) scheduleFallback(id string, fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	var t *quartz.Timer
	t = v.clock.AfterFunc(v.fallbackDelay, func() {
		fn()
		v.mu.Lock()
		delete(v.timers, t)
		v.mu.Unlock()
	})
	v.timers[t] = id
}

func (v *View) cancelFallbacksLocked(id string) {
	for t, tid := range v.timers {
		if tid != id {
			continue
		}
		t.Stop()
		delete(v.timers, t)
	}
}

func (v *View) notifyLocked(ev domain.Event) {
	for w := range v.watchers {
		select {
		case w <- ev:
		default:
			v.log.Warn("dropping event for slow watcher",
				logger.String("kind", string(ev.Kind)))
		}
	}
}
