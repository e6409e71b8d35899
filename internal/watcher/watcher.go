package watcher

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// TerminationSignals are the signals that end a run early.
var TerminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Watcher completes exactly once, on the first termination request. It never
// touches the container; the orchestrator decides what a request means.
type Watcher struct {
	signals  chan os.Signal
	done     chan struct{}
	stopCh   chan struct{}
	fireOnce sync.Once
	stopOnce sync.Once
	notified atomic.Bool

	mu     sync.Mutex
	signal os.Signal
}

func New() *Watcher {
	return &Watcher{
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start begins listening for SIGINT and SIGTERM.
func (w *Watcher) Start() {
	w.StartWithNotify(true)
}

// StartWithNotify begins listening, optionally registering with OS signal
// handling. Tests pass false to avoid global signal state.
func (w *Watcher) StartWithNotify(notify bool) {
	if notify {
		w.notified.Store(true)
		signal.Notify(w.signals, TerminationSignals...)
	}

	started := make(chan struct{})
	go func() {
		close(started)

		select {
		case sig := <-w.signals:
			slog.Info("Received termination signal", "signal", sig)
			w.Trigger(sig)
		case <-w.stopCh:
		}
	}()

	<-started
}

// Trigger requests termination as if sig had been delivered. Only the first
// request counts. It also releases OS signal delivery, so a second Ctrl-C
// during cleanup gets the default behavior and kills the process.
func (w *Watcher) Trigger(sig os.Signal) {
	w.fireOnce.Do(func() {
		w.release()
		w.mu.Lock()
		w.signal = sig
		w.mu.Unlock()
		close(w.done)
	})
}

func (w *Watcher) release() {
	if w.notified.Load() {
		signal.Stop(w.signals)
	}
}

// Done is closed on the first termination request.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Signal returns the signal that fired Done, or nil.
func (w *Watcher) Signal() os.Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signal
}

// Stop deregisters from OS signal delivery if no request has done so yet.
func (w *Watcher) Stop() {
	w.release()
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}
