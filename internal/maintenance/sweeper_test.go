package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/registry"
	"github.com/mossy-p/reception-signaling/internal/signaling"
	"github.com/mossy-p/reception-signaling/pkg/metrics"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type inbox struct {
	mu     sync.Mutex
	frames [][]byte
}

func (i *inbox) Enqueue(data []byte) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.frames = append(i.frames, data)
	return true
}

func (i *inbox) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.frames)
}

type fixture struct {
	clock *clock
	reg   *registry.Registry
	queue *calls.Queue
	hub   *signaling.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	reg := registry.New(registry.WithClock(clk.Now))
	queue := calls.NewQueue(reg, calls.WithClock(clk.Now))
	return &fixture{clock: clk, reg: reg, queue: queue, hub: signaling.NewHub(reg, queue)}
}

func (f *fixture) waitingCall(t *testing.T, visitorID string) (calls.Call, *inbox) {
	t.Helper()
	box := &inbox{}
	_, err := f.reg.Register(visitorID, models.RoleVisitor, models.Identity{}, box)
	require.NoError(t, err)
	call, err := f.queue.CreateCall(context.Background(), visitorID, "Support", "")
	require.NoError(t, err)
	return call, box
}

func TestRunOnceExpiresStaleCalls(t *testing.T) {
	f := newFixture(t)
	stale, box := f.waitingCall(t, "v-1")
	f.clock.Advance(10 * time.Minute)
	fresh, _ := f.waitingCall(t, "v-2")

	sweeper := NewSweeper(f.hub, f.queue, WithMaxWait(5*time.Minute))
	res := sweeper.RunOnce(context.Background())

	require.Equal(t, 1, res.Expired)
	require.Equal(t, 1, res.Waiting)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.WaitingCalls))

	got, err := f.queue.Get(stale.ID)
	require.NoError(t, err)
	require.Equal(t, calls.StatusRejected, got.Status)
	require.Equal(t, calls.ReasonExpired, got.EndReason)
	require.Equal(t, 1, box.count())

	got, err = f.queue.Get(fresh.ID)
	require.NoError(t, err)
	require.Equal(t, calls.StatusWaiting, got.Status)
}

func TestRunOnceWithoutMaxWaitLeavesCallsWaiting(t *testing.T) {
	f := newFixture(t)
	call, _ := f.waitingCall(t, "v-1")
	f.clock.Advance(24 * time.Hour)

	res := NewSweeper(f.hub, f.queue).RunOnce(context.Background())
	require.Zero(t, res.Expired)

	got, err := f.queue.Get(call.ID)
	require.NoError(t, err)
	require.Equal(t, calls.StatusWaiting, got.Status)
}

func TestRunOncePrunesFinishedCalls(t *testing.T) {
	f := newFixture(t)
	call, _ := f.waitingCall(t, "v-1")
	f.hub.Disconnect("v-1")
	f.clock.Advance(2 * time.Hour)

	res := NewSweeper(nil, f.queue, WithRetention(time.Hour)).RunOnce(context.Background())
	require.Equal(t, 1, res.Pruned)

	_, err := f.queue.Get(call.ID)
	require.Error(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	sweeper := NewSweeper(f.hub, f.queue, WithSchedule("not a schedule"))
	require.Error(t, sweeper.Start())
}

func TestStartSchedulesSweep(t *testing.T) {
	f := newFixture(t)
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	sweeper := NewSweeper(f.hub, f.queue, WithCron(c), WithSchedule("@every 1h"))

	require.NoError(t, sweeper.Start())
	require.Len(t, c.Entries(), 1)
	<-sweeper.Stop().Done()
}
