// Package job runs one ingestion job: it takes a stored PDF through
// extraction, chunking, embedding and upsert into the vector index, and
// records every state transition on the way.
package job

import (
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateReceived   State = "Received"
	StateExtracting State = "Extracting"
	StateChunking   State = "Chunking"
	StateEmbedding  State = "Embedding"
	StateUpserting  State = "Upserting"
	StateCompleted  State = "Completed"
	StateFailed     State = "Failed"
)

// pipeline is the only legal order of non-failure states.
var pipeline = []State{StateReceived, StateExtracting, StateChunking, StateEmbedding, StateUpserting, StateCompleted}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Reason tags a failed job.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonExtractionFailed  Reason = "ExtractionFailed"
	ReasonNoContent         Reason = "NoContent"
	ReasonEmbeddingFailed   Reason = "EmbeddingFailed"
	ReasonIndexFailed       Reason = "IndexFailed"
	ReasonInvalidDescriptor Reason = "InvalidDescriptor"
)

// Transient reports whether redelivering the same descriptor can succeed
// later. Content and descriptor problems are permanent.
func (r Reason) Transient() bool {
	return r == ReasonEmbeddingFailed || r == ReasonIndexFailed
}

var ErrIllegalTransition = errors.New("illegal job state transition")

type Transition struct {
	From   State
	To     State
	Reason Reason
	At     time.Time
}

// Job is the state machine of a single ingestion run. It is not safe for
// concurrent use; each delivery gets its own Job.
type Job struct {
	DocumentID  string
	state       State
	reason      Reason
	transitions []Transition
	now         func() time.Time
}

func newJob(documentID string, now func() time.Time) *Job {
	return &Job{DocumentID: documentID, state: StateReceived, now: now}
}

func (j *Job) State() State   { return j.state }
func (j *Job) Reason() Reason { return j.reason }

func (j *Job) Transitions() []Transition {
	return append([]Transition(nil), j.transitions...)
}

// advance moves to the next pipeline state. Skipping a state, going
// backwards, or leaving a terminal state is rejected.
func (j *Job) advance(to State) error {
	if j.state.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrIllegalTransition, j.state)
	}
	if next := nextState(j.state); next != to {
		return fmt.Errorf("%w: %s -> %s, expected %s", ErrIllegalTransition, j.state, to, next)
	}
	j.record(to, ReasonNone)
	return nil
}

// fail moves any non-terminal job to Failed.
func (j *Job) fail(reason Reason) error {
	if j.state.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrIllegalTransition, j.state)
	}
	if reason == ReasonNone {
		return fmt.Errorf("%w: failure needs a reason", ErrIllegalTransition)
	}
	j.reason = reason
	j.record(StateFailed, reason)
	return nil
}

func (j *Job) record(to State, reason Reason) {
	j.transitions = append(j.transitions, Transition{From: j.state, To: to, Reason: reason, At: j.now()})
	j.state = to
}

func nextState(s State) State {
	for i, p := range pipeline[:len(pipeline)-1] {
		if p == s {
			return pipeline[i+1]
		}
	}
	return ""
}
