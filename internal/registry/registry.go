package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/models"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/logger"
	"github.com/mossy-p/reception-signaling/pkg/metrics"
)

// Outbox accepts encoded frames for a single connection. Enqueue must not
// block; it returns false when the frame was dropped.
type Outbox interface {
	Enqueue(data []byte) bool
}

// Connection is a snapshot of a registered connection.
type Connection struct {
	ID          string
	Role        models.Role
	Identity    models.Identity
	ConnectedAt time.Time

	outbox Outbox
}

// Deliver hands a frame to the connection's outbox.
func (c Connection) Deliver(data []byte) bool {
	if c.outbox == nil {
		return false
	}
	return c.outbox.Enqueue(data)
}

// UnregisterHook runs synchronously after a connection has been removed.
type UnregisterHook func(Connection)

// Registry tracks live connections. It never touches the network itself.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	hook  UnregisterHook
	now   func() time.Time
	log   *zap.Logger
}

// Option customises the Registry.
type Option func(*Registry)

// WithClock overrides the clock used for ConnectedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		conns: make(map[string]*Connection),
		now:   time.Now,
		log:   logger.WithModule("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnUnregister installs the hook that drives call cleanup on disconnect.
func (r *Registry) OnUnregister(hook UnregisterHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

// Register adds a live connection.
func (r *Registry) Register(id string, role models.Role, identity models.Identity, outbox Outbox) (Connection, error) {
	if id == "" || !role.Valid() {
		return Connection{}, apperrors.ErrInvalidRequest.WithMessage("connection id and a valid role are required")
	}

	r.mu.Lock()
	if _, exists := r.conns[id]; exists {
		r.mu.Unlock()
		return Connection{}, apperrors.ErrDuplicateConnection.WithMessage("connection %s is already registered", id)
	}
	conn := &Connection{
		ID:          id,
		Role:        role,
		Identity:    identity,
		ConnectedAt: r.now(),
		outbox:      outbox,
	}
	r.conns[id] = conn
	r.mu.Unlock()

	metrics.ActiveConnections.WithLabelValues(string(role)).Inc()
	r.log.Debug("connection registered", zap.String("conn_id", id), zap.String("role", string(role)))
	return *conn, nil
}

// Lookup returns the connection registered under id.
func (r *Registry) Lookup(id string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, apperrors.ErrNotFound.WithMessage("connection %s not found", id)
	}
	return *conn, nil
}

// Identify replaces the identity attached to a live connection.
func (r *Registry) Identify(id string, identity models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return apperrors.ErrNotFound.WithMessage("connection %s not found", id)
	}
	conn.Identity = identity
	return nil
}

// ListByRole returns a snapshot of live connections with the given role,
// oldest connection first.
func (r *Registry) ListByRole(role models.Role) []Connection {
	r.mu.RLock()
	out := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn.Role == role {
			out = append(out, *conn)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of live connections with the given role.
func (r *Registry) Count(role models.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conn := range r.conns {
		if conn.Role == role {
			n++
		}
	}
	return n
}

// Unregister removes the connection and then runs the unregister hook. A
// second call for the same id returns ErrNotFound and runs nothing.
func (r *Registry) Unregister(id string) (Connection, error) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return Connection{}, apperrors.ErrNotFound.WithMessage("connection %s not found", id)
	}
	delete(r.conns, id)
	hook := r.hook
	r.mu.Unlock()

	metrics.ActiveConnections.WithLabelValues(string(conn.Role)).Dec()
	r.log.Debug("connection unregistered", zap.String("conn_id", id), zap.String("role", string(conn.Role)))

	if hook != nil {
		hook(*conn)
	}
	return *conn, nil
}
