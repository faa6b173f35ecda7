// Package feed delivers per-owner bookmark change notifications over
// Redis pub/sub. Subscribe returns an explicit cancellable handle; the
// owning component must Close it on teardown.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabmarks/tabmarks/internal/domain"
	"github.com/tabmarks/tabmarks/internal/logger"
	redisstore "github.com/tabmarks/tabmarks/internal/store/redis"
)

// StatusKind classifies connection-status signals. Consumers may log
// them but need not act: go-redis re-establishes the subscription on
// its own after a connection loss.
type StatusKind string

const (
	StatusConnected StatusKind = "connected"
	StatusError     StatusKind = "error"
	StatusTimedOut  StatusKind = "timed_out"
)

// Status is one connection-status signal from the feed.
type Status struct {
	Kind StatusKind
	Err  error
}

// defaultReceiveTimeout bounds a single receive so the loop can emit a
// timed-out status instead of blocking forever on a silent connection.
const defaultReceiveTimeout = 30 * time.Second

// Feed opens change-notification subscriptions, one channel per owner.
type Feed struct {
	client         *redis.Client
	log            logger.Logger
	receiveTimeout time.Duration
}

func New(client *redis.Client, log logger.Logger) *Feed {
	return &Feed{
		client:         client,
		log:            log,
		receiveTimeout: defaultReceiveTimeout,
	}
}

// Subscription is a live handle on one owner's change feed. Events
// stops delivering and is closed after Close returns.
type Subscription struct {
	events   chan domain.Event
	statuses chan Status
	pubsub   *redis.PubSub
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// Subscribe starts delivering the owner's insert/delete events.
func (f *Feed) Subscribe(ctx context.Context, owner string) (*Subscription, error) {
	pubsub := f.client.Subscribe(ctx, redisstore.EventsChannel(owner))

	sub := &Subscription{
		events:   make(chan domain.Event, 16),
		statuses: make(chan Status, 4),
		pubsub:   pubsub,
		done:     make(chan struct{}),
	}

	sub.wg.Add(1)
	go sub.receive(f.log.With(logger.String("owner", owner)), f.receiveTimeout)

	return sub, nil
}

// Events delivers the owner's change notifications in arrival order.
func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// Statuses delivers connection-status signals. Signals are dropped when
// nobody is draining the channel.
func (s *Subscription) Statuses() <-chan Status {
	return s.statuses
}

// Close unsubscribes. No events are delivered after it returns.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
		s.wg.Wait()
		close(s.events)
		close(s.statuses)
	})
	return err
}

func (s *Subscription) receive(log logger.Logger, timeout time.Duration) {
	defer s.wg.Done()

	for {
		msg, err := s.pubsub.ReceiveTimeout(context.Background(), timeout)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.signal(Status{Kind: StatusTimedOut, Err: err})
				continue
			}
			s.signal(Status{Kind: StatusError, Err: err})
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			s.signal(Status{Kind: StatusConnected})
		case *redis.Message:
			var ev domain.Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				log.Warn("dropping malformed change event", logger.Error(err))
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case *redis.Pong:
			// keepalive, nothing to do
		}
	}
}

// signal never blocks: status is advisory.
func (s *Subscription) signal(st Status) {
	select {
	case s.statuses <- st:
	default:
	}
}
