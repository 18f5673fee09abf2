package domain

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProducing
	PhaseUploading
	PhasePruning
	PhaseCleaningUp
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProducing:
		return "producing"
	case PhaseUploading:
		return "uploading"
	case PhasePruning:
		return "pruning"
	case PhaseCleaningUp:
		return "cleaning_up"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// RunReport summarizes one orchestrator run.
type RunReport struct {
	Id     string
	Source string
	Kind   SourceKind

	StartedAt  time.Time
	FinishedAt time.Time

	// Phases entered by the run, in order
	Trace []Phase

	// Phase of the first failure, meaningful only when Err is not nil
	FailedPhase Phase

	Produced int
	Uploaded int
	Pruned   int

	Err error
}

func (r RunReport) Succeeded() bool {
	return r.Err == nil
}

func (r RunReport) ErrorCount() int {
	return len(multierr.Errors(r.Err))
}

func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type RunRecorder interface {
	RecordRun(context.Context, RunReport) error
}
