// Package supply resolves configured supply names to regulator handles.
//
// Each backend reports a supply that is not present yet (missing device node,
// unexported line, simulator still "probing") as regulator.ErrDeferred so the
// consumer retries attach instead of failing.
package supply

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"reg-consumer/internal/config"
	"reg-consumer/internal/regulator"
)

// ErrBusy is returned when a supply is already held by another consumer.
var ErrBusy = errors.New("supply: already in use")

var nowFn = time.Now

// Registry implements regulator.Provider over declared supplies. A handle is
// exclusive: the name is claimed until the handle is closed.
type Registry struct {
	log *zap.Logger

	mu       sync.Mutex
	declared map[string]declared
	claimed  map[string]bool
	sims     map[string]*Sim
}

type declared struct {
	cfg config.SupplyConfig
	at  time.Time
}

func NewRegistry(supplies []config.SupplyConfig, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		log:      log,
		declared: make(map[string]declared, len(supplies)),
		claimed:  make(map[string]bool),
		sims:     make(map[string]*Sim),
	}
	for _, s := range supplies {
		r.Declare(s)
	}
	return r
}

// Declare adds or replaces a supply. Consumers waiting on the name resolve
// on their next attach attempt. Redeclaring a sim supply keeps its existing
// Sim and only updates its failure toggles, so a handle already claimed and
// Registry.Sim keep agreeing.
func (r *Registry) Declare(s config.SupplyConfig) {
	if s.Backend == "" {
		s.Backend = config.BackendSim
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declared[s.Name] = declared{cfg: s, at: nowFn()}
	if s.Backend == config.BackendSim {
		if sim, ok := r.sims[s.Name]; ok {
			sim.SetFail(s.Sim.FailEnable, s.Sim.FailDisable)
		} else {
			r.sims[s.Name] = newSim(s.Sim)
		}
	}
	r.log.Debug("supply declared", zap.String("supply", s.Name), zap.String("backend", s.Backend))
}

// Sim returns the simulated hardware behind a sim supply.
func (r *Registry) Sim(name string) (*Sim, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sims[name]
	return s, ok
}

func (r *Registry) Get(name string) (regulator.Handle, error) {
	r.mu.Lock()
	d, ok := r.declared[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("supply %q not declared: %w", name, regulator.ErrDeferred)
	}
	if r.claimed[name] {
		r.mu.Unlock()
		return nil, fmt.Errorf("supply %q: %w", name, ErrBusy)
	}
	r.claimed[name] = true
	sim := r.sims[name]
	r.mu.Unlock()

	h, err := r.open(d, sim)
	if err != nil {
		r.release(name)
		if errors.Is(err, os.ErrNotExist) && !errors.Is(err, regulator.ErrDeferred) {
			err = fmt.Errorf("%w: %w", regulator.ErrDeferred, err)
		}
		return nil, fmt.Errorf("supply %q (%s): %w", name, d.cfg.Backend, err)
	}
	return &claimedHandle{Handle: h, release: func() { r.release(name) }}, nil
}

func (r *Registry) open(d declared, sim *Sim) (regulator.Handle, error) {
	c := d.cfg
	switch c.Backend {
	case config.BackendSim:
		if wait := c.Sim.AvailableAfter - nowFn().Sub(d.at); wait > 0 {
			return nil, fmt.Errorf("probing, ready in %s: %w", wait.Round(time.Millisecond), regulator.ErrDeferred)
		}
		return sim.handle(), nil
	case config.BackendSysfs:
		return openSysfs(c.Sysfs)
	case config.BackendI2C:
		return openI2CFn(c.I2C)
	case config.BackendGPIO:
		return openGPIOFn(c.Name, c.GPIO)
	}
	return nil, fmt.Errorf("unknown backend %q", c.Backend)
}

func (r *Registry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claimed, name)
}

type claimedHandle struct {
	regulator.Handle
	once    sync.Once
	release func()
}

func (h *claimedHandle) Close() error {
	err := h.Handle.Close()
	h.once.Do(h.release)
	return err
}
