package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/membership"
)

var (
	ErrCallFailed   = errors.New("distributed call failed")
	ErrCallTimedOut = errors.New("distributed call timed out")
)

type Outcome int

const (
	OutcomeAnswered Outcome = iota + 1
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

type result[T any] struct {
	outcome Outcome
	value   T
	err     error
}

// Answer is the outcome of a fan-out call: one entry per member the call
// was addressed to. It is not modified after the call returns.
type Answer[T any] struct {
	members []membership.Member
	results map[uuid.UUID]result[T]
}

func newAnswer[T any](members []membership.Member) *Answer[T] {
	return &Answer[T]{
		members: members,
		results: make(map[uuid.UUID]result[T], len(members)),
	}
}

func (a *Answer[T]) setAnswer(m membership.Member, v T) {
	a.results[m.ID] = result[T]{outcome: OutcomeAnswered, value: v}
}

func (a *Answer[T]) setFailed(m membership.Member, err error) {
	a.results[m.ID] = result[T]{outcome: OutcomeFailed, err: err}
}

func (a *Answer[T]) setTimedOut(m membership.Member) {
	a.results[m.ID] = result[T]{outcome: OutcomeTimedOut}
}

// Members returns the members the call was addressed to, in submission order.
func (a *Answer[T]) Members() []membership.Member {
	return a.members
}

// Outcome returns what happened on the member. It returns 0 for members the
// call was not addressed to.
func (a *Answer[T]) Outcome(m membership.Member) Outcome {
	return a.results[m.ID].outcome
}

// Answer returns the value returned by the member, if it answered in time.
func (a *Answer[T]) Answer(m membership.Member) (T, bool) {
	r := a.results[m.ID]
	return r.value, r.outcome == OutcomeAnswered
}

// HasTimedOut reports whether the member did not answer before the deadline.
func (a *Answer[T]) HasTimedOut(m membership.Member) bool {
	return a.results[m.ID].outcome == OutcomeTimedOut
}

// HasFailed reports whether the task raised an error on the member.
func (a *Answer[T]) HasFailed(m membership.Member) bool {
	return a.results[m.ID].outcome == OutcomeFailed
}

// Err returns the error raised by the member, or nil if it did not fail.
func (a *Answer[T]) Err(m membership.Member) error {
	r := a.results[m.ID]
	if r.outcome != OutcomeFailed {
		return nil
	}

	return r.err
}

// Answers returns the values of all members that answered, keyed by member ID.
func (a *Answer[T]) Answers() map[uuid.UUID]T {
	res := make(map[uuid.UUID]T)

	for id, r := range a.results {
		if r.outcome == OutcomeAnswered {
			res[id] = r.value
		}
	}

	return res
}

// PropagateErrors turns the per-member outcomes into a single error. If any
// member failed it returns a *FailedError, otherwise if any member timed out
// it returns a *TimeoutError. It returns nil when every member answered.
func (a *Answer[T]) PropagateErrors() error {
	var (
		failed   []string
		cause    error
		timedOut []string
	)

	for _, m := range a.members {
		r := a.results[m.ID]

		switch r.outcome {
		case OutcomeFailed:
			failed = append(failed, m.Name())

			if cause == nil {
				cause = r.err
			}
		case OutcomeTimedOut:
			timedOut = append(timedOut, m.Name())
		}
	}

	if len(failed) > 0 {
		return &FailedError{Members: failed, Cause: cause}
	}

	if len(timedOut) > 0 {
		return &TimeoutError{Members: timedOut}
	}

	return nil
}

// FailedError reports members on which the task raised an error. It wraps
// the error of the first failed member.
type FailedError struct {
	Members []string
	Cause   error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%s on [%s]: %v", ErrCallFailed, strings.Join(e.Members, ", "), e.Cause)
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}

func (e *FailedError) Is(target error) bool {
	return target == ErrCallFailed
}

// TimeoutError reports members that did not answer in time.
type TimeoutError struct {
	Members []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s on [%s]", ErrCallTimedOut, strings.Join(e.Members, ", "))
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrCallTimedOut
}
