package regulator

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultResourceName is the supply name requested when none is configured.
const DefaultResourceName = "controlled"

// Provider resolves a supply name to a handle. It returns an error wrapping
// ErrDeferred while the supply is not available yet.
type Provider interface {
	Get(name string) (Handle, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(name string) (Handle, error)

func (f ProviderFunc) Get(name string) (Handle, error) { return f(name) }

type BinderConfig struct {
	ResourceName string
}

type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the diagnostics sink. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Binder ties a Guard to a supply handle over attach and detach.
type Binder struct {
	name     string
	provider Provider
	log      *zap.Logger
}

func NewBinder(cfg BinderConfig, provider Provider, opts ...Option) *Binder {
	name := strings.TrimSpace(cfg.ResourceName)
	if name == "" {
		name = DefaultResourceName
	}
	o := applyOptions(opts)
	return &Binder{
		name:     name,
		provider: provider,
		log:      o.log.With(zap.String("supply", name)),
	}
}

func (b *Binder) ResourceName() string { return b.name }

// Attach acquires the handle and returns a Guard in the Disabled state.
//
// A missing dependency yields an error matching ErrDeferred; the caller
// should retry later. Any other failure is an *AttachError.
func (b *Binder) Attach() (*Guard, error) {
	if b.provider == nil {
		return nil, &AttachError{Name: b.name, Err: errors.New("no provider")}
	}
	h, err := b.provider.Get(b.name)
	if err != nil {
		if errors.Is(err, ErrDeferred) {
			b.log.Debug("supply not ready, deferring", zap.Error(err))
			return nil, fmt.Errorf("attach %q: %w", b.name, err)
		}
		b.log.Error("failed to get supply", zap.Error(err))
		return nil, &AttachError{Name: b.name, Err: err}
	}
	if h == nil {
		return nil, &AttachError{Name: b.name, Err: errors.New("provider returned nil handle")}
	}
	g := NewGuard(h, WithLogger(b.log))
	b.log.Info("supply attached")
	return g, nil
}

// Detach forces the supply off if it is enabled and releases the handle.
// It never fails; errors are logged. Detaching twice is a no-op.
func (b *Binder) Detach(g *Guard) {
	if g == nil {
		return
	}
	disableErr, closeErr, ok := g.shutdown()
	if !ok {
		return
	}
	if disableErr != nil {
		b.log.Error("failed to disable supply on detach", zap.Error(disableErr))
	}
	if closeErr != nil {
		b.log.Warn("failed to release supply", zap.Error(closeErr))
	}
	b.log.Info("supply detached")
}
