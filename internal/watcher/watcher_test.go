package watcher

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not complete")
	}
}

func TestWatcher_CompletesOnSignal(t *testing.T) {
	w := New()
	w.StartWithNotify(false)
	defer w.Stop()

	w.signals <- syscall.SIGTERM

	waitDone(t, w)
	assert.Equal(t, syscall.SIGTERM, w.Signal())
}

func TestWatcher_OnlyFirstRequestCounts(t *testing.T) {
	w := New()
	w.StartWithNotify(false)
	defer w.Stop()

	var wg sync.WaitGroup
	for _, sig := range []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGINT} {
		wg.Add(1)
		go func(sig os.Signal) {
			defer wg.Done()
			w.Trigger(sig)
		}(sig)
	}
	wg.Wait()

	waitDone(t, w)
	require.NotNil(t, w.Signal())
}

func TestWatcher_NotDoneWithoutRequest(t *testing.T) {
	w := New()
	w.StartWithNotify(false)
	w.Stop()

	select {
	case <-w.Done():
		t.Fatal("watcher completed without a termination request")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Nil(t, w.Signal())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New()
	w.StartWithNotify(false)
	w.Stop()
	w.Stop()
}
