package supply

import (
	"errors"
	"sync"

	"reg-consumer/internal/config"
)

var (
	errSimRefused    = errors.New("sim: supply refused request")
	errSimUnbalanced = errors.New("sim: unbalanced disable")
)

// Sim is an in-memory supply for development and tests. Like a real
// regulator it rejects a disable that has no matching enable.
type Sim struct {
	mu          sync.Mutex
	on          bool
	enables     int
	disables    int
	failEnable  bool
	failDisable bool
}

func newSim(c config.SimConfig) *Sim {
	return &Sim{failEnable: c.FailEnable, failDisable: c.FailDisable}
}

// On reports the simulated output.
func (s *Sim) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// Counts returns the number of accepted enable and disable requests.
func (s *Sim) Counts() (enables, disables int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enables, s.disables
}

// SetFail makes subsequent enable and/or disable requests fail.
func (s *Sim) SetFail(enable, disable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEnable = enable
	s.failDisable = disable
}

func (s *Sim) handle() *simHandle { return &simHandle{sim: s} }

type simHandle struct {
	sim *Sim
}

func (h *simHandle) Enable() error {
	s := h.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEnable {
		return errSimRefused
	}
	s.on = true
	s.enables++
	return nil
}

func (h *simHandle) Disable() error {
	s := h.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDisable {
		return errSimRefused
	}
	if !s.on {
		return errSimUnbalanced
	}
	s.on = false
	s.disables++
	return nil
}

func (h *simHandle) Close() error { return nil }
