package app

import (
	"os"
	"syscall"
)

// Reason says which side of the race ended the streaming phase.
type Reason string

const (
	ReasonCompleted  Reason = "completed"
	ReasonTerminated Reason = "terminated"
	ReasonCancelled  Reason = "cancelled"
)

// interruptSignal is what a Ctrl-C read from a raw-mode terminal stands for.
var interruptSignal os.Signal = syscall.SIGINT

// Outcome describes how a run ended. A failed cleanup is carried in
// CleanupErr but does not change Reason or the exit status.
type Outcome struct {
	RunID       string
	ContainerID string
	Reason      Reason
	Signal      os.Signal
	ExitCode    int
	CleanupErr  error
}

// ExitStatus is the process exit status for the run: the container's exit
// code after a natural end, 128+N after signal N, and 1 otherwise.
func (o Outcome) ExitStatus() int {
	switch o.Reason {
	case ReasonCompleted:
		return o.ExitCode
	case ReasonTerminated:
		if sig, ok := o.Signal.(syscall.Signal); ok {
			return 128 + int(sig)
		}
		return 1
	default:
		return 1
	}
}
