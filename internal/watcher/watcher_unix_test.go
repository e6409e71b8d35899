//go:build unix

package watcher

import (
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_OSSignal(t *testing.T) {
	w := New()
	w.Start()
	defer w.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	waitDone(t, w)
	assert.Equal(t, syscall.SIGINT, w.Signal())
}

func TestWatcher_ReleasesSignalsAfterFirstRequest(t *testing.T) {
	w := New()
	w.Start()
	defer w.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	waitDone(t, w)

	// Hold SIGINT ourselves so the second delivery does not kill the test.
	second := make(chan os.Signal, 1)
	signal.Notify(second, syscall.SIGINT)
	defer signal.Stop(second)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second SIGINT was not delivered")
	}
	assert.Empty(t, w.signals, "watcher still registered for SIGINT after the first request")
}

func TestWatcher_ProgrammaticTriggerReleasesSignals(t *testing.T) {
	w := New()
	w.Start()
	defer w.Stop()

	w.Trigger(syscall.SIGINT)
	waitDone(t, w)

	second := make(chan os.Signal, 1)
	signal.Notify(second, syscall.SIGTERM)
	defer signal.Stop(second)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("SIGTERM was not delivered")
	}
	assert.Empty(t, w.signals)
}
