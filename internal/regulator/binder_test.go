package regulator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBinder_DefaultName(t *testing.T) {
	var asked string
	b := NewBinder(BinderConfig{}, ProviderFunc(func(name string) (Handle, error) {
		asked = name
		return &fakeHandle{}, nil
	}))
	g, err := b.Attach()
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "controlled", asked)
	assert.Equal(t, Disabled, g.State())
}

func TestBinder_AttachDeferredThenSucceeds(t *testing.T) {
	ready := false
	h := &fakeHandle{}
	b := NewBinder(BinderConfig{ResourceName: "vcc"}, ProviderFunc(func(name string) (Handle, error) {
		if !ready {
			return nil, fmt.Errorf("supply %q: %w", name, ErrDeferred)
		}
		return h, nil
	}))

	g, err := b.Attach()
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrDeferred)
	var ae *AttachError
	assert.False(t, errors.As(err, &ae), "deferral must not be an AttachError")

	ready = true
	g, err = b.Attach()
	require.NoError(t, err)
	require.NotNil(t, g)
}

func TestBinder_AttachFatal(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	boom := errors.New("no such device")
	b := NewBinder(BinderConfig{}, ProviderFunc(func(string) (Handle, error) {
		return nil, boom
	}), WithLogger(zap.New(core)))

	g, err := b.Attach()
	assert.Nil(t, g)
	var ae *AttachError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "controlled", ae.Name)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, logs.FilterMessage("failed to get supply").Len())
}

func TestBinder_AttachNilProvider(t *testing.T) {
	_, err := NewBinder(BinderConfig{}, nil).Attach()
	var ae *AttachError
	assert.ErrorAs(t, err, &ae)
}

func TestBinder_DetachWhileEnabledDisablesOnce(t *testing.T) {
	h := &fakeHandle{}
	b := NewBinder(BinderConfig{}, ProviderFunc(func(string) (Handle, error) { return h, nil }))
	g, err := b.Attach()
	require.NoError(t, err)
	require.NoError(t, g.RequestState(Enabled))

	b.Detach(g)
	assert.EqualValues(t, 1, h.disableCalls.Load())
	assert.EqualValues(t, 1, h.closeCalls.Load())
	assert.Equal(t, Disabled, g.State())
	assert.True(t, g.Status().Detached)
}

func TestBinder_DetachReleasesEvenIfDisableFails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &fakeHandle{}
	b := NewBinder(BinderConfig{}, ProviderFunc(func(string) (Handle, error) { return h, nil }), WithLogger(zap.New(core)))
	g, err := b.Attach()
	require.NoError(t, err)
	require.NoError(t, g.RequestState(Enabled))

	h.failDisable.Store(true)
	b.Detach(g)
	assert.EqualValues(t, 1, h.disableCalls.Load())
	assert.EqualValues(t, 1, h.closeCalls.Load())
	assert.Equal(t, 1, logs.FilterMessage("failed to disable supply on detach").Len())
}

func TestBinder_DetachWhileDisabledSkipsDisable(t *testing.T) {
	h := &fakeHandle{closeErr: errors.New("busy")}
	b := NewBinder(BinderConfig{}, ProviderFunc(func(string) (Handle, error) { return h, nil }))
	g, err := b.Attach()
	require.NoError(t, err)

	b.Detach(g)
	b.Detach(g)
	assert.Zero(t, h.calls())
	assert.EqualValues(t, 1, h.closeCalls.Load())
}

func TestGuard_RejectsAfterDetach(t *testing.T) {
	h := &fakeHandle{}
	b := NewBinder(BinderConfig{}, ProviderFunc(func(string) (Handle, error) { return h, nil }))
	g, err := b.Attach()
	require.NoError(t, err)
	b.Detach(g)

	assert.ErrorIs(t, g.RequestState(Enabled), ErrDetached)
	n, err := g.Store("1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, h.calls())
}
