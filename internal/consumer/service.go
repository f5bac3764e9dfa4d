// Package consumer runs the attach/detach lifecycle of one regulator
// consumer: it keeps retrying a deferred attach until the supply shows up and
// detaches on shutdown.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"reg-consumer/internal/regulator"
)

var afterFn = time.After

// ErrNotAttached is returned by Show and Store while no supply is bound.
var ErrNotAttached = errors.New("consumer: supply not attached")

type Config struct {
	Supply        string
	RetryInterval time.Duration
}

type Snapshot struct {
	Supply   string `json:"supply"`
	Attached bool   `json:"attached"`
	Deferred bool   `json:"deferred"`
	Attempts int    `json:"attach_attempts"`

	Guard *regulator.Status `json:"guard,omitempty"`

	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

type Service struct {
	cfg    Config
	binder *regulator.Binder
	log    *zap.Logger

	mu    sync.RWMutex
	snap  Snapshot
	guard *regulator.Guard

	wg sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, provider regulator.Provider, log *zap.Logger) *Service {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 1 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	binder := regulator.NewBinder(regulator.BinderConfig{ResourceName: cfg.Supply}, provider, regulator.WithLogger(log))
	cfg.Supply = binder.ResourceName()
	return &Service{
		cfg:    cfg,
		binder: binder,
		log:    log.With(zap.String("supply", cfg.Supply)),
		snap:   Snapshot{Supply: cfg.Supply},
		stopCh: make(chan struct{}),
	}
}

// Guard returns the bound guard, if attach has succeeded.
func (s *Service) Guard() (*regulator.Guard, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guard, s.guard != nil
}

// Show reads the state attribute of the bound guard.
func (s *Service) Show() (string, error) {
	g, ok := s.Guard()
	if !ok {
		return "", ErrNotAttached
	}
	return g.Show(), nil
}

// Store writes the state attribute of the bound guard.
func (s *Service) Store(buf string) (int, error) {
	g, ok := s.Guard()
	if !ok {
		return 0, ErrNotAttached
	}
	return g.Store(buf)
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	snap := s.snap
	g := s.guard
	s.mu.RUnlock()
	if g != nil {
		st := g.Status()
		snap.Guard = &st
	}
	return snap
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}

// Start begins attaching in the background and returns immediately. The
// service is closed when ctx is canceled. Calls after the first are no-ops.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("consumer: service is nil")
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.attachLoop(ctx)
		}()

		go func() {
			select {
			case <-ctx.Done():
				s.Close()
			case <-s.stopCh:
			}
		}()
	})
	return nil
}

func (s *Service) attachLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		g, err := s.binder.Attach()
		if err == nil {
			s.mu.Lock()
			s.guard = g
			s.snap.Attached = true
			s.snap.Deferred = false
			s.snap.Attempts++
			s.snap.LastError = ""
			s.snap.LastUpdateAt = time.Now().UTC()
			s.mu.Unlock()
			return
		}

		deferred := errors.Is(err, regulator.ErrDeferred)
		s.setState(func(sn *Snapshot) {
			sn.Attempts++
			sn.Deferred = deferred
			sn.LastError = err.Error()
		})
		if !deferred {
			s.log.Error("attach failed, giving up", zap.Error(err))
			return
		}
		s.log.Debug("attach deferred, retrying", zap.Duration("in", s.cfg.RetryInterval))

		select {
		case <-afterFn(s.cfg.RetryInterval):
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// Close stops attach retries and detaches the supply, forcing it off if it
// was enabled. Safe to call more than once.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	// The attach loop may be inside Attach; let it publish before detaching.
	s.wg.Wait()

	s.mu.Lock()
	g := s.guard
	s.guard = nil
	s.snap.Attached = false
	s.mu.Unlock()

	if g != nil {
		s.binder.Detach(g)
	}
}
