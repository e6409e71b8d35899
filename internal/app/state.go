package app

import (
	"fmt"
	"log/slog"
	"time"
)

// Phase is a step of the run lifecycle.
type Phase string

const (
	PhaseProvisioning Phase = "provisioning"
	PhaseLaunching    Phase = "launching"
	PhaseStreaming    Phase = "streaming"
	PhaseCleaningUp   Phase = "cleaning_up"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Provisioning and Launching may fail; once a container is running the only
// way forward is through CleaningUp. Provisioning may also end in Done when
// the run is terminated before any container exists.
var transitions = map[Phase][]Phase{
	"":                {PhaseProvisioning},
	PhaseProvisioning: {PhaseLaunching, PhaseFailed, PhaseDone},
	PhaseLaunching:    {PhaseStreaming, PhaseFailed},
	PhaseStreaming:    {PhaseCleaningUp},
	PhaseCleaningUp:   {PhaseDone},
}

// runState tracks the phase of a single run.
type runState struct {
	RunID         string
	Phase         Phase
	History       []Phase
	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

func newRunState(runID string) *runState {
	now := time.Now()
	return &runState{
		RunID:         runID,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// advance moves to the next phase. An illegal transition is a bug in the
// orchestrator and is returned as an error rather than applied.
func (s *runState) advance(to Phase) error {
	if !s.canAdvance(to) {
		return fmt.Errorf("illegal phase transition %q -> %q", s.Phase, to)
	}

	slog.Debug("Run phase changed", "runId", s.RunID, "from", s.Phase, "to", to, "elapsed", time.Since(s.CreatedAt))
	s.Phase = to
	s.History = append(s.History, to)
	s.LastUpdatedAt = time.Now()
	return nil
}

func (s *runState) canAdvance(to Phase) bool {
	for _, next := range transitions[s.Phase] {
		if next == to {
			return true
		}
	}
	return false
}

// isTerminal reports whether the run has finished, successfully or not.
func (s *runState) isTerminal() bool {
	return s.Phase == PhaseDone || s.Phase == PhaseFailed
}
