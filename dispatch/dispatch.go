package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/membership"
)

var ErrNoTargets = errors.New("no member matches the selector")

// DefaultWaitFloor is the shortest wait granted to a ticket, so that tickets
// checked late in the loop are not timed out without a look.
const DefaultWaitFloor = 5 * time.Millisecond

type Config struct {
	Members   Members
	Transport Transport
	Logger    kitlog.Logger
	WaitFloor time.Duration
}

func DefaultConfig() Config {
	return Config{
		Logger:    kitlog.NewNopLogger(),
		WaitFloor: DefaultWaitFloor,
	}
}

// Dispatcher sends tasks to a selected set of members.
type Dispatcher struct {
	members   Members
	transport Transport
	logger    kitlog.Logger
	waitFloor time.Duration
}

func New(conf Config) *Dispatcher {
	return &Dispatcher{
		members:   conf.Members,
		transport: conf.Transport,
		logger:    conf.Logger,
		waitFloor: conf.WaitFloor,
	}
}

func (d *Dispatcher) targets(sel membership.Selector) ([]membership.Member, error) {
	targets := membership.Filter(d.members.Members(), sel)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	return targets, nil
}

// ticket tracks the execution of a task on one member.
type ticket struct {
	member membership.Member
	done   chan struct{}
	reply  []byte
	err    error
	cancel context.CancelFunc
}

func (d *Dispatcher) submit(ctx context.Context, m membership.Member, name string, args []byte) *ticket {
	ctx, cancel := context.WithCancel(ctx)

	t := &ticket{
		member: m,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(t.done)
		t.reply, t.err = d.transport.Execute(ctx, m, name, args)
	}()

	return t
}

// Call executes the task on every member accepted by the selector and waits
// for the answers. All members run the task in parallel and share a single
// deadline, so the call takes at most about timeout regardless of how many
// members are addressed. Tickets still running when the call returns are
// cancelled.
//
// The returned error is ErrNoTargets if the selector matches nobody, or the
// context error if ctx is done before the deadline. Per-member failures and
// timeouts are reported in the Answer.
func Call[T any](ctx context.Context, d *Dispatcher, task Task, sel membership.Selector, timeout time.Duration) (*Answer[T], error) {
	targets, err := d.targets(sel)
	if err != nil {
		return nil, err
	}

	args, err := encodeTask(task)
	if err != nil {
		return nil, err
	}

	name := task.TaskName()

	level.Debug(d.logger).Log("msg", "dispatching task", "task", name, "targets", len(targets), "timeout", timeout)

	tickets := make([]*ticket, len(targets))
	for i, m := range targets {
		tickets[i] = d.submit(ctx, m, name, args)
	}

	defer func() {
		for _, t := range tickets {
			t.cancel()
		}
	}()

	answer := newAnswer[T](targets)
	deadline := time.Now().Add(timeout)

	for _, t := range tickets {
		wait := time.Until(deadline)
		if wait < d.waitFloor {
			wait = d.waitFloor
		}

		d.await(ctx, answer, t, wait)
	}

	return answer, ctx.Err()
}

func (d *Dispatcher) await(ctx context.Context, answer recorder, t *ticket, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-t.done:
		if t.err != nil && ctx.Err() != nil {
			answer.recordTimeout(t.member)
			return
		}

		if t.err != nil {
			level.Debug(d.logger).Log("msg", "task failed", "member", t.member, "err", t.err)
			answer.recordFailure(t.member, t.err)

			return
		}

		answer.recordReply(t.member, t.reply)
	case <-timer.C:
		level.Debug(d.logger).Log("msg", "task timed out", "member", t.member)
		answer.recordTimeout(t.member)
	case <-ctx.Done():
		answer.recordTimeout(t.member)
	}
}

// CallAsync executes the task on every member accepted by the selector
// without waiting. The callback runs once, after every member has finished,
// with the values keyed by member ID. The task is expected not to fail: a
// member that fails is logged and left out of the callback values. There is
// no way to cancel the call.
func CallAsync[T any](d *Dispatcher, task Task, sel membership.Selector, callback func(map[uuid.UUID]T)) error {
	targets, err := d.targets(sel)
	if err != nil {
		return err
	}

	args, err := encodeTask(task)
	if err != nil {
		return err
	}

	name := task.TaskName()

	var (
		mut     sync.Mutex
		wg      sync.WaitGroup
		results = make(map[uuid.UUID]T, len(targets))
	)

	for _, m := range targets {
		wg.Add(1)

		go func(m membership.Member) {
			defer wg.Done()

			reply, err := d.transport.Execute(context.Background(), m, name, args)
			if err == nil {
				var v T

				if v, err = decodeResult[T](reply); err == nil {
					mut.Lock()
					results[m.ID] = v
					mut.Unlock()

					return
				}
			}

			level.Warn(d.logger).Log("msg", "async task failed", "task", name, "member", m, "err", err)
		}(m)
	}

	go func() {
		wg.Wait()
		callback(results)
	}()

	return nil
}

// recorder is the untyped side of an Answer, used while waiting on tickets.
type recorder interface {
	recordReply(m membership.Member, reply []byte)
	recordFailure(m membership.Member, err error)
	recordTimeout(m membership.Member)
}

func (a *Answer[T]) recordReply(m membership.Member, reply []byte) {
	v, err := decodeResult[T](reply)
	if err != nil {
		a.setFailed(m, fmt.Errorf("%s: %w", m.Name(), err))
		return
	}

	a.setAnswer(m, v)
}

func (a *Answer[T]) recordFailure(m membership.Member, err error) {
	a.setFailed(m, err)
}

func (a *Answer[T]) recordTimeout(m membership.Member) {
	a.setTimedOut(m)
}
