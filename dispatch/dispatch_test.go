package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/maxpoletaev/kluster/membership"
)

type echoTask struct {
	Text string `json:"text"`
}

func (echoTask) TaskName() string { return "echo" }

type echoResult struct {
	Text string `json:"text"`
	From string `json:"from"`
}

func testMember(name string, role membership.Role) membership.Member {
	return membership.Member{
		ID: uuid.New(),
		Attributes: membership.NewAttributes(map[string]string{
			membership.AttrNodeName:    name,
			membership.AttrProcessRole: string(role),
		}),
	}
}

func newTestDispatcher(t *testing.T, members ...membership.Member) (*Dispatcher, *MockTransport) {
	ctrl := gomock.NewController(t)

	mm := NewMockMembers(ctrl)
	mm.EXPECT().Members().Return(members).AnyTimes()

	tr := NewMockTransport(ctrl)

	conf := DefaultConfig()
	conf.Members = mm
	conf.Transport = tr

	return New(conf), tr
}

func echo(_ context.Context, m membership.Member, _ string, args []byte) ([]byte, error) {
	task, err := decodeResult[echoTask](args)
	if err != nil {
		return nil, err
	}

	return json.Marshal(echoResult{Text: task.Text, From: m.Name()})
}

func blockUntilDone(ctx context.Context, _ membership.Member, _ string, _ []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCall_AllAnswered(t *testing.T) {
	a := testMember("a", membership.RoleApp)
	b := testMember("b", membership.RoleWeb)
	d, tr := newTestDispatcher(t, a, b)

	tr.EXPECT().Execute(gomock.Any(), gomock.Any(), "echo", gomock.Any()).DoAndReturn(echo).Times(2)

	answer, err := Call[echoResult](context.Background(), d, echoTask{Text: "hi"}, membership.Any(), time.Second)
	require.NoError(t, err)
	require.NoError(t, answer.PropagateErrors())

	assert.Len(t, answer.Members(), 2)

	for _, m := range []membership.Member{a, b} {
		res, ok := answer.Answer(m)
		require.True(t, ok)
		assert.Equal(t, echoResult{Text: "hi", From: m.Name()}, res)
		assert.Equal(t, OutcomeAnswered, answer.Outcome(m))
	}

	assert.Len(t, answer.Answers(), 2)
}

func TestCall_SelectorLimitsTargets(t *testing.T) {
	app := testMember("app", membership.RoleApp)
	web := testMember("web", membership.RoleWeb)
	d, tr := newTestDispatcher(t, app, web)

	tr.EXPECT().Execute(gomock.Any(), web, "echo", gomock.Any()).DoAndReturn(echo).Times(1)

	answer, err := Call[echoResult](context.Background(), d, echoTask{Text: "x"}, membership.RoleIn(membership.RoleWeb), time.Second)
	require.NoError(t, err)

	assert.Equal(t, []membership.Member{web}, answer.Members())
	assert.Equal(t, Outcome(0), answer.Outcome(app))
}

func TestCall_NoTargets(t *testing.T) {
	d, _ := newTestDispatcher(t, testMember("app", membership.RoleApp))

	_, err := Call[echoResult](context.Background(), d, echoTask{}, membership.RoleIn(membership.RoleComputeEngine), time.Second)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestCall_SharedDeadline(t *testing.T) {
	a := testMember("a", membership.RoleApp)
	b := testMember("b", membership.RoleApp)
	c := testMember("c", membership.RoleApp)
	d, tr := newTestDispatcher(t, a, b, c)

	tr.EXPECT().Execute(gomock.Any(), a, "echo", gomock.Any()).DoAndReturn(echo)
	tr.EXPECT().Execute(gomock.Any(), b, "echo", gomock.Any()).DoAndReturn(blockUntilDone)
	tr.EXPECT().Execute(gomock.Any(), c, "echo", gomock.Any()).DoAndReturn(blockUntilDone)

	start := time.Now()

	answer, err := Call[echoResult](context.Background(), d, echoTask{Text: "t"}, membership.Any(), 200*time.Millisecond)
	require.NoError(t, err)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 350*time.Millisecond, "members must share one deadline")

	_, ok := answer.Answer(a)
	assert.True(t, ok)
	assert.True(t, answer.HasTimedOut(b))
	assert.True(t, answer.HasTimedOut(c))

	err = answer.PropagateErrors()
	assert.ErrorIs(t, err, ErrCallTimedOut)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, []string{"b", "c"}, timeoutErr.Members)
}

func TestCall_FailureTakesPriorityOverTimeout(t *testing.T) {
	a := testMember("a", membership.RoleApp)
	b := testMember("b", membership.RoleApp)
	d, tr := newTestDispatcher(t, a, b)

	boom := errors.New("boom")

	tr.EXPECT().Execute(gomock.Any(), a, "echo", gomock.Any()).DoAndReturn(blockUntilDone)
	tr.EXPECT().Execute(gomock.Any(), b, "echo", gomock.Any()).Return(nil, boom)

	answer, err := Call[echoResult](context.Background(), d, echoTask{}, membership.Any(), 50*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, answer.HasTimedOut(a))

	assert.True(t, answer.HasFailed(b))
	assert.Equal(t, boom, answer.Err(b))
	assert.False(t, answer.HasFailed(a))
	assert.NoError(t, answer.Err(a))

	err = answer.PropagateErrors()
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCallTimedOut)

	var failedErr *FailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, []string{"b"}, failedErr.Members)
}

func TestCall_UndecodableReplyIsFailure(t *testing.T) {
	a := testMember("a", membership.RoleApp)
	d, tr := newTestDispatcher(t, a)

	tr.EXPECT().Execute(gomock.Any(), a, "echo", gomock.Any()).Return([]byte("{not json"), nil)

	answer, err := Call[echoResult](context.Background(), d, echoTask{}, membership.Any(), time.Second)
	require.NoError(t, err)

	assert.True(t, answer.HasFailed(a))
	assert.Error(t, answer.Err(a))
}

func TestCall_LateMemberStillCollectedAfterDeadline(t *testing.T) {
	slow := testMember("slow", membership.RoleApp)
	fast := testMember("fast", membership.RoleApp)
	d, tr := newTestDispatcher(t, slow, fast)

	tr.EXPECT().Execute(gomock.Any(), slow, "echo", gomock.Any()).DoAndReturn(blockUntilDone)
	tr.EXPECT().Execute(gomock.Any(), fast, "echo", gomock.Any()).DoAndReturn(echo)

	// The slow member exhausts the whole timeout, the fast one has already
	// replied and must be collected within the wait floor.
	answer, err := Call[echoResult](context.Background(), d, echoTask{Text: "t"}, membership.Any(), 30*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, answer.HasTimedOut(slow))
	assert.False(t, answer.HasTimedOut(fast))

	v, ok := answer.Answer(fast)
	require.True(t, ok)
	assert.Equal(t, "fast", v.From)
}

func TestCall_CancelsPendingTickets(t *testing.T) {
	a := testMember("a", membership.RoleApp)
	d, tr := newTestDispatcher(t, a)

	cancelled := make(chan struct{})

	tr.EXPECT().Execute(gomock.Any(), a, "echo", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ membership.Member, _ string, _ []byte) ([]byte, error) {
			<-ctx.Done()
			close(cancelled)

			return nil, ctx.Err()
		},
	)

	answer, err := Call[echoResult](context.Background(), d, echoTask{}, membership.Any(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, answer.HasTimedOut(a))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("pending ticket was not cancelled")
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	a := testMember("a", membership.RoleApp)
	d, tr := newTestDispatcher(t, a)

	tr.EXPECT().Execute(gomock.Any(), a, "echo", gomock.Any()).DoAndReturn(blockUntilDone)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	answer, err := Call[echoResult](ctx, d, echoTask{}, membership.Any(), time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, answer)
	assert.True(t, answer.HasTimedOut(a))
}

func TestCallAsync(t *testing.T) {
	a := testMember("a", membership.RoleApp)
	b := testMember("b", membership.RoleApp)
	d, tr := newTestDispatcher(t, a, b)

	tr.EXPECT().Execute(gomock.Any(), a, "echo", gomock.Any()).DoAndReturn(echo)
	tr.EXPECT().Execute(gomock.Any(), b, "echo", gomock.Any()).Return(nil, errors.New("boom"))

	var (
		calls int
		mut   sync.Mutex
		got   map[uuid.UUID]echoResult
		done  = make(chan struct{})
	)

	err := CallAsync[echoResult](d, echoTask{Text: "async"}, membership.Any(), func(res map[uuid.UUID]echoResult) {
		mut.Lock()
		defer mut.Unlock()

		calls++
		got = res

		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback was not called")
	}

	mut.Lock()
	defer mut.Unlock()

	assert.Equal(t, 1, calls)
	assert.Equal(t, map[uuid.UUID]echoResult{a.ID: {Text: "async", From: "a"}}, got)
}

func TestCallAsync_NoTargets(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := CallAsync[echoResult](d, echoTask{}, membership.Any(), func(map[uuid.UUID]echoResult) {
		t.Error("callback must not run")
	})
	assert.ErrorIs(t, err, ErrNoTargets)
}
