package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mossy-p/reception-signaling/internal/models"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
)

type recordingOutbox struct {
	mu     sync.Mutex
	frames [][]byte
}

func (o *recordingOutbox) Enqueue(data []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, data)
	return true
}

func steppingClock() func() time.Time {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var n int64
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func TestRegisterAndLookup(t *testing.T) {
	reg := New(WithClock(steppingClock()))
	out := &recordingOutbox{}

	conn, err := reg.Register("v-1", models.RoleVisitor, models.Identity{Name: "Ana"}, out)
	require.NoError(t, err)
	require.Equal(t, "v-1", conn.ID)

	got, err := reg.Lookup("v-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleVisitor, got.Role)
	require.Equal(t, "Ana", got.Identity.Name)

	require.True(t, got.Deliver([]byte("hi")))
	require.Len(t, out.frames, 1)
}

func TestRegisterDuplicate(t *testing.T) {
	reg := New()
	_, err := reg.Register("s-1", models.RoleStaff, models.Identity{}, nil)
	require.NoError(t, err)

	_, err = reg.Register("s-1", models.RoleStaff, models.Identity{}, nil)
	require.ErrorIs(t, err, apperrors.ErrDuplicateConnection)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	reg := New()
	_, err := reg.Register("x-1", models.Role("admin"), models.Identity{}, nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestLookupMissing(t *testing.T) {
	_, err := New().Lookup("ghost")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIdentify(t *testing.T) {
	reg := New()
	_, err := reg.Register("v-1", models.RoleVisitor, models.Identity{}, nil)
	require.NoError(t, err)

	require.NoError(t, reg.Identify("v-1", models.Identity{Name: "Ana", Email: "ana@example.com"}))
	conn, err := reg.Lookup("v-1")
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", conn.Identity.Email)

	require.ErrorIs(t, reg.Identify("ghost", models.Identity{}), apperrors.ErrNotFound)
}

func TestListByRoleIsOrderedSnapshot(t *testing.T) {
	reg := New(WithClock(steppingClock()))
	for _, id := range []string{"s-b", "v-1", "s-a", "s-c"} {
		role := models.RoleStaff
		if id[0] == 'v' {
			role = models.RoleVisitor
		}
		_, err := reg.Register(id, role, models.Identity{}, nil)
		require.NoError(t, err)
	}

	staff := reg.ListByRole(models.RoleStaff)
	require.Len(t, staff, 3)
	require.Equal(t, []string{"s-b", "s-a", "s-c"}, []string{staff[0].ID, staff[1].ID, staff[2].ID})
	require.Equal(t, 3, reg.Count(models.RoleStaff))
	require.Equal(t, 1, reg.Count(models.RoleVisitor))

	_, err := reg.Unregister("s-a")
	require.NoError(t, err)
	require.Len(t, staff, 3, "snapshot must not change after unregister")
	require.Len(t, reg.ListByRole(models.RoleStaff), 2)
}

func TestUnregisterRunsHookExactlyOnce(t *testing.T) {
	reg := New()
	var calls []string
	reg.OnUnregister(func(c Connection) {
		calls = append(calls, c.ID)
		_, err := reg.Lookup(c.ID)
		require.ErrorIs(t, err, apperrors.ErrNotFound, "hook must observe the connection as gone")
	})

	_, err := reg.Register("v-1", models.RoleVisitor, models.Identity{}, nil)
	require.NoError(t, err)

	conn, err := reg.Unregister("v-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleVisitor, conn.Role)

	_, err = reg.Unregister("v-1")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Equal(t, []string{"v-1"}, calls)
}

func TestConcurrentRegisterSameID(t *testing.T) {
	reg := New()
	const workers = 16

	var wg sync.WaitGroup
	var ok int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Register("dup", models.RoleStaff, models.Identity{}, nil); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), ok)
}
