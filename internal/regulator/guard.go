// Package regulator keeps a logical enabled/disabled flag consistent with a
// controllable power supply.
//
// A Guard serializes every read and transition with a single mutex and holds
// it across the hardware call, so concurrent writers fully serialize. The
// cached flag only changes after the supply accepted the transition.
package regulator

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle is the borrowed reference to the underlying supply.
//
// Implementations must not call back into the Guard that owns them; the
// guard's mutex is not reentrant.
type Handle interface {
	Enable() error
	Disable() error
	// Close releases the hardware reference. It does not change the output.
	Close() error
}

// Status is a point-in-time view of a Guard, including the outcome of the
// most recent transition.
type Status struct {
	State       string    `json:"state"`
	Detached    bool      `json:"detached,omitempty"`
	Transitions uint64    `json:"transitions"`
	Failures    uint64    `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastChange  time.Time `json:"last_change_utc,omitempty"`
}

type Guard struct {
	log *zap.Logger

	mu       sync.Mutex
	enabled  State
	handle   Handle
	detached bool

	transitions uint64
	failures    uint64
	lastErr     string
	lastChange  time.Time
}

// NewGuard wraps h. The supply is assumed disabled at acquisition.
func NewGuard(h Handle, opts ...Option) *Guard {
	o := applyOptions(opts)
	return &Guard{log: o.log, handle: h, enabled: Disabled}
}

// State returns the cached flag.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Show renders the attribute read form.
func (g *Guard) Show() string {
	return g.State().String() + "\n"
}

// RequestState drives the supply to target. Requesting the current state is
// a no-op that never touches the supply. On failure the cached state is
// unchanged and a *TransitionError carrying the cause is returned.
func (g *Guard) RequestState(target State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requestLocked(target)
}

func (g *Guard) requestLocked(target State) error {
	if g.detached {
		return ErrDetached
	}
	if target == g.enabled {
		return nil
	}

	var err error
	if target == Enabled {
		err = g.handle.Enable()
	} else {
		err = g.handle.Disable()
	}
	if err != nil {
		g.failures++
		g.lastErr = err.Error()
		return &TransitionError{Target: target, Err: err}
	}

	g.enabled = target
	g.transitions++
	g.lastErr = ""
	g.lastChange = time.Now().UTC()
	return nil
}

// Store handles an attribute write. It always reports the whole buffer as
// consumed: malformed tokens and refused transitions are logged and show up
// in Status, not in the return value.
func (g *Guard) Store(buf string) (int, error) {
	target, err := ParseState(buf)
	if err != nil {
		g.log.Error("configuring invalid mode", zap.String("input", buf))
		return len(buf), nil
	}
	if err := g.RequestState(target); err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			g.log.Error("failed to configure state",
				zap.Stringer("target", target),
				zap.Error(te.Err))
		} else {
			g.log.Warn("state write ignored", zap.Error(err))
		}
	}
	return len(buf), nil
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		State:       g.enabled.String(),
		Detached:    g.detached,
		Transitions: g.transitions,
		Failures:    g.failures,
		LastError:   g.lastErr,
		LastChange:  g.lastChange,
	}
}

// shutdown forces the supply off if needed and releases the handle. It holds
// the lock for the whole sequence so no writer can re-enable in between.
// Errors are returned for logging only; the handle is released regardless.
func (g *Guard) shutdown() (disableErr, closeErr error, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detached {
		return nil, nil, false
	}
	if g.enabled == Enabled {
		disableErr = g.requestLocked(Disabled)
	}
	g.detached = true
	closeErr = g.handle.Close()
	g.handle = nil
	return disableErr, closeErr, true
}
