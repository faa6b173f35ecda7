package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/tabmarks/tabmarks/internal/logger"
)

// Manager owns at most one View and feed subscription per identity.
// Views are refcounted by their consumers (request handlers, websocket
// connections); unreferenced views are torn down by a periodic sweep
// once they have been idle long enough, and immediately on Drop.
type Manager struct {
	store         Store
	subscribe     SubscribeFunc
	clock         quartz.Clock
	fallbackDelay time.Duration
	idleTTL       time.Duration
	sweepInterval time.Duration
	log           logger.Logger

	mu       sync.Mutex
	views    map[string]*entry
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

type entry struct {
	view      *View
	refs      int
	idleSince time.Time

	// ready is closed once Load and Subscribe have finished; err holds
	// the init failure, if any. Later acquirers wait instead of racing
	// a second subscription for the same identity.
	ready chan struct{}
	err   error
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Store         Store
	Subscribe     SubscribeFunc
	Clock         quartz.Clock
	FallbackDelay time.Duration
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Logger        logger.Logger
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Manager{
		store:         opts.Store,
		subscribe:     opts.Subscribe,
		clock:         opts.Clock,
		fallbackDelay: opts.FallbackDelay,
		idleTTL:       opts.IdleTTL,
		sweepInterval: opts.SweepInterval,
		log:           opts.Logger,
		views:         make(map[string]*entry),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the periodic idle-view sweep.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	ticker := m.clock.NewTicker(m.sweepInterval)
	go func() {
		defer close(m.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep and closes every view. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		started := m.started
		views := m.views
		m.views = make(map[string]*entry)
		m.mu.Unlock()

		if started {
			<-m.done
		}
		for owner, e := range views {
			if err := e.view.Close(); err != nil {
				m.log.Warn("failed to close bookmark view",
					logger.String("owner", owner), logger.Error(err))
			}
		}
	})
}

// Acquire returns the owner's view, creating it (initial load plus feed
// subscription) on first use. Every Acquire must be paired with a
// Release.
func (m *Manager) Acquire(ctx context.Context, owner string) (*View, error) {
	m.mu.Lock()
	e, ok := m.views[owner]
	if ok {
		e.refs++
		m.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			m.Release(e.view)
			return nil, ctx.Err()
		}
		if e.err != nil {
			m.Release(e.view)
			return nil, e.err
		}
		return e.view, nil
	}

	e = &entry{
		view:  NewView(owner, m.store, m.clock, m.fallbackDelay, m.log),
		refs:  1,
		ready: make(chan struct{}),
	}
	m.views[owner] = e
	m.mu.Unlock()

	e.err = m.initView(ctx, owner, e.view)
	close(e.ready)

	if e.err != nil {
		m.mu.Lock()
		delete(m.views, owner)
		m.mu.Unlock()
		_ = e.view.Close()
		return nil, e.err
	}
	return e.view, nil
}

// Release drops the reference Acquire handed out. The view stays warm
// until the idle sweep collects it, so a tab reload does not re-fetch
// and re-subscribe. Releasing a view that has since been dropped or
// replaced is a no-op; it must never unref the replacement.
func (m *Manager) Release(v *View) {
	if v == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.views[v.owner]
	if !ok || e.view != v {
		return
	}
	e.refs--
	if e.refs <= 0 {
		e.refs = 0
		e.idleSince = m.clock.Now()
	}
}

// Drop closes the owner's view immediately, regardless of references.
// Used on logout and identity change; in-flight consumers observe
// ErrClosed. A later Acquire re-establishes the subscription.
func (m *Manager) Drop(owner string) {
	m.mu.Lock()
	e, ok := m.views[owner]
	if ok {
		delete(m.views, owner)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := e.view.Close(); err != nil {
		m.log.Warn("failed to close bookmark view",
			logger.String("owner", owner), logger.Error(err))
	}
	m.log.Info("dropped bookmark view", logger.String("owner", owner))
}

// sweep closes views that have been unreferenced longer than the idle TTL.
func (m *Manager) sweep() {
	now := m.clock.Now()

	m.mu.Lock()
	var expired []*entry
	var owners []string
	for owner, e := range m.views {
		if e.refs > 0 || e.idleSince.IsZero() {
			continue
		}
		if now.Sub(e.idleSince) < m.idleTTL {
			continue
		}
		delete(m.views, owner)
		expired = append(expired, e)
		owners = append(owners, owner)
	}
	m.mu.Unlock()

	for i, e := range expired {
		if err := e.view.Close(); err != nil {
			m.log.Warn("failed to close idle bookmark view",
				logger.String("owner", owners[i]), logger.Error(err))
			continue
		}
		m.log.Debug("swept idle bookmark view", logger.String("owner", owners[i]))
	}
}

func (m *Manager) initView(ctx context.Context, owner string, v *View) error {
	if err := v.Load(ctx); err != nil {
		return err
	}
	sub, err := m.subscribe(ctx, owner)
	if err != nil {
		return fmt.Errorf("subscribe change feed: %w", err)
	}
	v.attach(sub)
	return nil
}
